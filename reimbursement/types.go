/*
Package reimbursement implements expense reimbursement claims.

PURPOSE:
  A claim carries a category, an amount and the expense date. It goes
  through the manager → hr → admin chain like any other record, and once
  approved an admin can mark it as paid. Paid is terminal.

AMOUNTS:
  Amounts are decimal.Decimal so sums over many claims do not drift.
  On the wire they are JSON strings ("1250.50").
*/
package reimbursement

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// RECORD KIND
// =============================================================================

type Kind string

const Reimbursement Kind = "reimbursement"

func (k Kind) KindID() string { return string(k) }
func (k Kind) Payable() bool  { return true }

func (k Kind) ValidatePayload(payload json.RawMessage) error {
	c, err := decode(payload)
	if err != nil {
		return err
	}
	return c.Validate()
}

func (k Kind) Summary(payload json.RawMessage) string {
	c, err := decode(payload)
	if err != nil {
		return "invalid claim payload"
	}
	return fmt.Sprintf("%s %s %s on %s", c.Category, c.Amount.StringFixed(2), c.currency(), c.ExpenseDate)
}

// Totals implements approval.Totaler.
func (k Kind) Totals(recs []approval.Record) map[approval.Status]decimal.Decimal {
	return Totals(recs)
}

var (
	_ approval.Kind    = Reimbursement
	_ approval.Totaler = Reimbursement
)

func init() {
	approval.RegisterKind(Reimbursement)
}

// =============================================================================
// CATEGORIES
// =============================================================================

type Category string

const (
	CategoryTravel        Category = "travel"
	CategoryFood          Category = "food"
	CategoryAccommodation Category = "accommodation"
	CategoryFuel          Category = "fuel"
	CategoryInternet      Category = "internet"
	CategoryMedical       Category = "medical"
	CategoryOther         Category = "other"
)

var categories = map[Category]bool{
	CategoryTravel:        true,
	CategoryFood:          true,
	CategoryAccommodation: true,
	CategoryFuel:          true,
	CategoryInternet:      true,
	CategoryMedical:       true,
	CategoryOther:         true,
}

func (c Category) Valid() bool { return categories[c] }

// =============================================================================
// CLAIM
// =============================================================================

const DefaultCurrency = "INR"

type Claim struct {
	Category    Category        `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency,omitempty"`
	ExpenseDate string          `json:"expense_date"`
	Description string          `json:"description,omitempty"`
	ReceiptURL  string          `json:"receipt_url,omitempty"`
}

func (c Claim) Validate() error {
	if !c.Category.Valid() {
		return fmt.Errorf("unknown category %q", c.Category)
	}
	if !c.Amount.IsPositive() {
		return errors.New("amount must be positive")
	}
	if c.Amount.Exponent() < -2 {
		return errors.New("amount has more than two decimal places")
	}
	if _, err := time.Parse("2006-01-02", c.ExpenseDate); err != nil {
		return fmt.Errorf("expense_date must be YYYY-MM-DD: %q", c.ExpenseDate)
	}
	if c.Category == CategoryOther && strings.TrimSpace(c.Description) == "" {
		return errors.New("description is required for category other")
	}
	return nil
}

func (c Claim) currency() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

// NewRecord builds an unsubmitted record for c.
func NewRecord(employee, manager approval.EmployeeID, c Claim) (approval.Record, error) {
	if err := c.Validate(); err != nil {
		return approval.Record{}, err
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return approval.Record{}, fmt.Errorf("encode claim: %w", err)
	}
	return approval.Record{
		Kind:       Reimbursement,
		EmployeeID: employee,
		ManagerID:  manager,
		Payload:    payload,
	}, nil
}

func Decode(rec approval.Record) (Claim, error) {
	if rec.Kind == nil || rec.Kind.KindID() != Reimbursement.KindID() {
		return Claim{}, fmt.Errorf("%w: expected %s record", approval.ErrUnknownKind, Reimbursement)
	}
	return decode(rec.Payload)
}

func decode(payload json.RawMessage) (Claim, error) {
	var c Claim
	if len(payload) == 0 {
		return c, errors.New("payload is required")
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return c, fmt.Errorf("decode claim: %w", err)
	}
	return c, nil
}

// Totals sums claim amounts per status. Records that fail to decode are skipped.
func Totals(recs []approval.Record) map[approval.Status]decimal.Decimal {
	out := make(map[approval.Status]decimal.Decimal)
	for _, rec := range recs {
		c, err := Decode(rec)
		if err != nil {
			continue
		}
		out[rec.Status] = out[rec.Status].Add(c.Amount)
	}
	return out
}
