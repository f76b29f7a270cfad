/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the approval.Record model from the wire contract; the client package
  decodes the same types, so this file is the contract for both sides.

NAMING CONVENTION:
  - *DTO:      Response types returned to clients
  - *Request:  Request body types from clients
  - *Response: Envelopes

ENVELOPES:
  Every response has a "success" flag. Failures carry a human-readable
  "message" that clients show verbatim, plus a machine "code".

VALIDATION:
  Request types carry validator tags and are checked by decodeAndValidate
  in handlers.go before anything reaches the engine.

SEE ALSO:
  - handlers.go: Uses these types
  - client/client.go: Decodes them
*/
package api

import (
	"encoding/json"
	"time"

	"github.com/warp/approval-engine/approval"
)

// =============================================================================
// RECORDS
// =============================================================================

// RecordDTO is a record as seen by the requesting viewer. The display_*
// fields are resolved for the caller's role.
type RecordDTO struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	EmployeeID      string          `json:"employee_id"`
	ManagerID       string          `json:"manager_id,omitempty"`
	Status          string          `json:"status"`
	CurrentLevel    string          `json:"current_approval_level,omitempty"`
	Flow            approval.Flow   `json:"approval_flow"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Summary         string          `json:"summary"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`

	DisplayStatus string `json:"display_status"`
	Actionable    bool   `json:"actionable"`
	ApprovedByYou bool   `json:"approved_by_you,omitempty"`
}

func toRecordDTO(rec approval.Record, role approval.Role) RecordDTO {
	view := approval.Resolve(rec, role)
	dto := RecordDTO{
		ID:              string(rec.ID),
		EmployeeID:      string(rec.EmployeeID),
		ManagerID:       string(rec.ManagerID),
		Status:          string(rec.Status),
		CurrentLevel:    string(rec.CurrentLevel),
		Flow:            rec.Flow,
		RejectionReason: rec.RejectionReason,
		Notes:           rec.Notes,
		Payload:         rec.Payload,
		CreatedAt:       rec.CreatedAt,
		UpdatedAt:       rec.UpdatedAt,
		DisplayStatus:   string(view.Status),
		Actionable:      view.Actionable,
		ApprovedByYou:   view.ApprovedByYou,
	}
	if rec.Kind != nil {
		dto.Kind = rec.Kind.KindID()
		dto.Summary = rec.Kind.Summary(rec.Payload)
	}
	return dto
}

// ToRecord converts a wire record back into the model. Unregistered kinds
// fall back to approval.StringKind.
func (d RecordDTO) ToRecord() approval.Record {
	return approval.Record{
		ID:              approval.RecordID(d.ID),
		Kind:            approval.GetOrCreateKind(d.Kind),
		EmployeeID:      approval.EmployeeID(d.EmployeeID),
		ManagerID:       approval.EmployeeID(d.ManagerID),
		Status:          approval.Status(d.Status),
		CurrentLevel:    approval.Level(d.CurrentLevel),
		Flow:            d.Flow,
		RejectionReason: d.RejectionReason,
		Notes:           d.Notes,
		Payload:         d.Payload,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

// ListResponse is one server-side page.
type ListResponse struct {
	Success    bool        `json:"success"`
	Items      []RecordDTO `json:"items"`
	Page       int         `json:"page"`
	TotalPages int         `json:"total_pages"`
	Total      int         `json:"total"`
}

// RecordResponse answers single-record reads and mutations.
type RecordResponse struct {
	Success bool       `json:"success"`
	Message string     `json:"message,omitempty"`
	Record  *RecordDTO `json:"record,omitempty"`
}

type BulkResponse struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	FailedIDs []string `json:"failed_ids"`
}

// StatsResponse summarizes the caller's view of one queue. Totals is set
// for kinds with amounts and holds decimal strings per status.
type StatsResponse struct {
	Success bool              `json:"success"`
	Kind    string            `json:"kind"`
	Counts  map[string]int    `json:"counts"`
	Totals  map[string]string `json:"totals,omitempty"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// REQUESTS
// =============================================================================

type SubmitRequest struct {
	// EmployeeID defaults to the caller. Only approvers may submit on
	// behalf of someone else.
	EmployeeID string          `json:"employee_id" validate:"omitempty,max=64"`
	ManagerID  string          `json:"manager_id" validate:"omitempty,max=64"`
	Payload    json.RawMessage `json:"payload" validate:"required"`
}

type ApproveRequest struct {
	Comment string `json:"comment" validate:"max=1000"`
}

type RejectRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
	// Level defaults to the caller's level.
	Level string `json:"level" validate:"omitempty,oneof=manager hr admin"`
}

type BulkActionRequest struct {
	IDs     []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
	Action  string   `json:"action" validate:"required,oneof=approve reject"`
	Level   string   `json:"level" validate:"omitempty,oneof=manager hr admin"`
	Reason  string   `json:"reason,omitempty" validate:"required_if=Action reject,max=1000"`
	Comment string   `json:"comment,omitempty" validate:"max=1000"`
}

type NotesRequest struct {
	Notes string `json:"notes" validate:"max=5000"`
}

// =============================================================================
// SCENARIOS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ScenarioResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	Scenario string `json:"scenario,omitempty"`
	Records  int    `json:"records"`
}
