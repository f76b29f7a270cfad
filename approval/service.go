/*
service.go - Collaborators of the coordinator

  Source   - the paginated "list records for my role" query
  Service  - approve / reject / bulk / mark-paid / notes endpoints
  Notifier - fire-and-forget success and error notices

The client package implements Source and Service over HTTP. Tests wire them
straight to an Engine.
*/
package approval

import (
	"context"
	"fmt"
	"strings"
)

// =============================================================================
// DATA SOURCE
// =============================================================================

// Query selects one page of records. An empty Status means all statuses.
type Query struct {
	Status Status
	Page   int
	Limit  int
}

const DefaultPageLimit = 10

// Normalize fills in defaults: page 1 and DefaultPageLimit.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 {
		q.Limit = DefaultPageLimit
	}
	return q
}

// Offset is the number of records before the requested page.
func (q Query) Offset() int {
	q = q.Normalize()
	return (q.Page - 1) * q.Limit
}

// Page is one server-side page of records.
type Page struct {
	Items      []Record
	Page       int
	TotalPages int
	Total      int
}

// TotalPagesFor returns the number of pages needed for total records.
func TotalPagesFor(total, limit int) int {
	if limit < 1 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

type Source interface {
	List(ctx context.Context, kind Kind, q Query) (Page, error)
}

// =============================================================================
// APPROVAL SERVICE
// =============================================================================

// Result is what every mutating call resolves to.
type Result struct {
	Success bool
	Message string
}

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Past renders the action for result notices: "approved", "rejected".
func (a Action) Past() string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	}
	return string(a)
}

func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionApprove, ActionReject:
		return a, nil
	}
	return "", &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", s)}
}

type BulkRequest struct {
	IDs     []RecordID
	Action  Action
	Level   Level
	Reason  string
	Comment string
}

type BulkResult struct {
	Result
	Processed int
	Failed    int
	FailedIDs []RecordID
}

type Service interface {
	Approve(ctx context.Context, kind Kind, id RecordID, level Level, comment string) (Result, error)
	Reject(ctx context.Context, kind Kind, id RecordID, level Level, reason string) (Result, error)
	Bulk(ctx context.Context, kind Kind, req BulkRequest) (BulkResult, error)
	MarkPaid(ctx context.Context, kind Kind, id RecordID) (Result, error)
	SaveNotes(ctx context.Context, kind Kind, id RecordID, notes string) (Result, error)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

type Notifier interface {
	Success(message string)
	Error(message string)
}

// NopNotifier discards notices.
type NopNotifier struct{}

func (NopNotifier) Success(string) {}
func (NopNotifier) Error(string)   {}
