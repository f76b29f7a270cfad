// Package regularization implements attendance regularization requests:
// an employee asks to correct the check-in/check-out times recorded for a
// day, and the correction goes through the manager → hr → admin chain.
package regularization

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// RECORD KIND
// =============================================================================

// Kind is the concrete approval.Kind for this domain.
type Kind string

const Regularization Kind = "regularization"

func (k Kind) KindID() string { return string(k) }

// Payable is false: regularizations end at approved or rejected.
func (k Kind) Payable() bool { return false }

func (k Kind) ValidatePayload(payload json.RawMessage) error {
	req, err := decode(payload)
	if err != nil {
		return err
	}
	return req.Validate()
}

func (k Kind) Summary(payload json.RawMessage) string {
	req, err := decode(payload)
	if err != nil {
		return "invalid regularization payload"
	}
	return fmt.Sprintf("%s %s-%s: %s", req.Date, req.CheckIn, req.CheckOut, req.Reason)
}

var _ approval.Kind = Regularization

func init() {
	approval.RegisterKind(Regularization)
}

// =============================================================================
// PAYLOAD
// =============================================================================

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Request is the payload of a regularization record.
type Request struct {
	Date     string `json:"date"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	Reason   string `json:"reason"`
}

func (r Request) Validate() error {
	if _, err := time.Parse(DateLayout, r.Date); err != nil {
		return fmt.Errorf("date must be YYYY-MM-DD: %q", r.Date)
	}
	in, err := time.Parse(ClockLayout, r.CheckIn)
	if err != nil {
		return fmt.Errorf("check_in must be HH:MM: %q", r.CheckIn)
	}
	out, err := time.Parse(ClockLayout, r.CheckOut)
	if err != nil {
		return fmt.Errorf("check_out must be HH:MM: %q", r.CheckOut)
	}
	if !out.After(in) {
		return errors.New("check_out must be after check_in")
	}
	if strings.TrimSpace(r.Reason) == "" {
		return errors.New("reason is required")
	}
	return nil
}

// Worked returns the corrected working time for the day.
func (r Request) Worked() (time.Duration, error) {
	in, err := time.Parse(ClockLayout, r.CheckIn)
	if err != nil {
		return 0, err
	}
	out, err := time.Parse(ClockLayout, r.CheckOut)
	if err != nil {
		return 0, err
	}
	return out.Sub(in), nil
}

// NewRecord builds an unsubmitted record for req.
func NewRecord(employee, manager approval.EmployeeID, req Request) (approval.Record, error) {
	if err := req.Validate(); err != nil {
		return approval.Record{}, err
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return approval.Record{}, fmt.Errorf("encode regularization: %w", err)
	}
	return approval.Record{
		Kind:       Regularization,
		EmployeeID: employee,
		ManagerID:  manager,
		Payload:    payload,
	}, nil
}

// Decode extracts the regularization payload from rec.
func Decode(rec approval.Record) (Request, error) {
	if rec.Kind == nil || rec.Kind.KindID() != Regularization.KindID() {
		return Request{}, fmt.Errorf("%w: expected %s record", approval.ErrUnknownKind, Regularization)
	}
	return decode(rec.Payload)
}

func decode(payload json.RawMessage) (Request, error) {
	var req Request
	if len(payload) == 0 {
		return req, errors.New("payload is required")
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return req, fmt.Errorf("decode regularization: %w", err)
	}
	return req, nil
}
