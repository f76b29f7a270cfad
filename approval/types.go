/*
Package approval provides the multi-level approval coordinator.

PURPOSE:
  Regularization requests and reimbursement claims move through the same
  sequential approval chain: manager, then HR, then admin. This package holds
  the kind-agnostic pieces shared by both queues: the record model, the state
  resolver, the selection manager, the action dispatcher, and the server-side
  engine that applies transitions to persisted records.

KEY CONCEPTS IN THIS FILE (types.go):
  - Role:   Who the viewer is (manager, hr, admin, superadmin, employee)
  - Level:  A step of the chain (manager, hr, admin)
  - Status: Overall lifecycle state of a record
  - Step:   Per-level sub-state inside the approval flow
  - Record: An approvable record of some Kind

DESIGN PRINCIPLES:
  1. One chain order, fixed: manager → hr → admin
  2. Exactly one level is actionable at a time
  3. The backend is the source of truth; clients refetch after every mutation
  4. Kinds live in domain packages; this package knows none of them

SEE ALSO:
  - resolver.go: Display status and actionability per viewer
  - chain.go: State machine transitions
  - kind.go: Kind registry
*/
package approval

import (
	"encoding/json"
	"time"
)

// =============================================================================
// ROLES AND LEVELS
// =============================================================================

type Role string

const (
	RoleEmployee   Role = "employee"
	RoleManager    Role = "manager"
	RoleHR         Role = "hr"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// IsAdmin reports whether the role may perform admin-only actions such as
// marking a claim as paid.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

type Level string

const (
	LevelNone    Level = ""
	LevelManager Level = "manager"
	LevelHR      Level = "hr"
	LevelAdmin   Level = "admin"
)

// Levels is the fixed chain order.
var Levels = []Level{LevelManager, LevelHR, LevelAdmin}

func (l Level) Valid() bool {
	switch l {
	case LevelManager, LevelHR, LevelAdmin:
		return true
	}
	return false
}

// Rank returns the position of l in the chain, or -1 for unknown levels.
func (l Level) Rank() int {
	for i, lv := range Levels {
		if lv == l {
			return i
		}
	}
	return -1
}

func ParseLevel(s string) (Level, bool) {
	l := Level(s)
	return l, l.Valid()
}

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusPaid     Status = "paid"
)

// Terminal reports whether no approval action can move the record anymore.
// Approved is not terminal for payable kinds (approved → paid).
func (s Status) Terminal() bool { return s == StatusRejected || s == StatusPaid }

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusPaid:
		return true
	}
	return false
}

type StepStatus string

const (
	StepPending  StepStatus = "pending"
	StepApproved StepStatus = "approved"
	StepRejected StepStatus = "rejected"
)

// Step is the per-level sub-state of an approval flow.
type Step struct {
	Status  StepStatus `json:"status"`
	ActedAt *time.Time `json:"acted_at,omitempty"`
	ActedBy EmployeeID `json:"acted_by,omitempty"`
	Comment string     `json:"comment,omitempty"`
}

// Flow maps each required level to its step. Levels that are not required
// for a record are absent.
type Flow map[Level]Step

func (f Flow) Clone() Flow {
	if f == nil {
		return nil
	}
	out := make(Flow, len(f))
	for k, v := range f {
		if v.ActedAt != nil {
			t := *v.ActedAt
			v.ActedAt = &t
		}
		out[k] = v
	}
	return out
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type EmployeeID string

// Actor is the identity performing an operation on the backend.
type Actor struct {
	EmployeeID EmployeeID
	Role       Role
}

// =============================================================================
// RECORD
// =============================================================================

// Record is an approvable record. Regularization requests and reimbursement
// claims share this shape; the kind-specific data travels in Payload.
type Record struct {
	ID         RecordID
	Kind       Kind
	EmployeeID EmployeeID
	ManagerID  EmployeeID

	Status          Status
	CurrentLevel    Level
	Flow            Flow
	RejectionReason string

	Notes   string
	Payload json.RawMessage

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep copy so callers can mutate without aliasing the
// flow map or payload of a cached record.
func (r Record) Clone() Record {
	r.Flow = r.Flow.Clone()
	if r.Payload != nil {
		r.Payload = append(json.RawMessage(nil), r.Payload...)
	}
	return r
}

// StepFor returns the flow entry for level and whether the level is part of
// this record's chain.
func (r Record) StepFor(level Level) (Step, bool) {
	s, ok := r.Flow[level]
	return s, ok
}
