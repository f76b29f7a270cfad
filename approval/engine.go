/*
engine.go - Server-side lifecycle of approvable records

PURPOSE:
  The Engine is the backend half of the coordinator: it owns the records,
  decides which levels a new record needs, and applies approve / reject /
  bulk / mark-paid transitions under a store transaction. It is the sole
  arbiter of valid transitions; clients only ever display what it returns.

REQUEST FLOW:
  Submit ──▶ ChainPolicy.RequiredLevels ──▶ Initialize ──▶ Save
  Approve/Reject/MarkPaid ──▶ WithTx { Get ──▶ Apply* ──▶ Save }
  Bulk ──▶ WithTx { for each id: Get ──▶ Apply* ──▶ Save }

VISIBILITY:
  hr, admin, superadmin: every record of the kind
  manager:               records whose ManagerID is the manager
  anyone else:           their own records

EXAMPLE:
  eng := approval.NewEngine(store.NewMemory())
  rec, err := eng.Submit(ctx, employee, approval.Record{Kind: reimbursement.Kind, Payload: p})
  rec, err = eng.Approve(ctx, manager, reimbursement.Kind, rec.ID, approval.LevelManager, "")
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Engine struct {
	Store  TxStore
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() RecordID

	chains map[string]ChainPolicy
}

func NewEngine(store TxStore) *Engine {
	return &Engine{
		Store:  store,
		Logger: zap.NewNop(),
		Now:    func() time.Time { return time.Now().UTC() },
		NewID:  func() RecordID { return RecordID(uuid.NewString()) },
		chains: make(map[string]ChainPolicy),
	}
}

// SetChain installs the chain policy for a kind. Kinds without one use FullChain.
func (e *Engine) SetChain(kind Kind, policy ChainPolicy) {
	e.chains[kind.KindID()] = policy
}

func (e *Engine) chainFor(kind Kind) ChainPolicy {
	if p, ok := e.chains[kind.KindID()]; ok {
		return p
	}
	return FullChain
}

// =============================================================================
// SUBMISSION
// =============================================================================

// Submit creates a record at the start of its chain.
func (e *Engine) Submit(ctx context.Context, actor Actor, rec Record) (Record, error) {
	if rec.Kind == nil {
		return Record{}, ErrUnknownKind
	}
	if err := rec.Kind.ValidatePayload(rec.Payload); err != nil {
		return Record{}, &ValidationError{Field: "payload", Message: err.Error()}
	}
	if rec.EmployeeID == "" {
		rec.EmployeeID = actor.EmployeeID
	}
	if rec.EmployeeID == "" {
		return Record{}, &ValidationError{Field: "employee_id", Message: "employee is required"}
	}
	if rec.ID == "" {
		rec.ID = e.NewID()
	}

	levels, err := e.chainFor(rec.Kind).RequiredLevels(rec)
	if err != nil {
		return Record{}, fmt.Errorf("resolve approval chain: %w", err)
	}
	if err := Initialize(&rec, levels, e.Now()); err != nil {
		return Record{}, err
	}
	if err := e.Store.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("failed to save record: %w", err)
	}

	e.Logger.Debug("record submitted",
		zap.String("kind", rec.Kind.KindID()),
		zap.String("record_id", string(rec.ID)),
		zap.String("current_level", string(rec.CurrentLevel)),
	)
	return rec, nil
}

// =============================================================================
// READS
// =============================================================================

func (e *Engine) Get(ctx context.Context, actor Actor, kind Kind, id RecordID) (Record, error) {
	rec, err := e.Store.Get(ctx, kind, id)
	if err != nil {
		return Record{}, err
	}
	if !canView(actor, rec) {
		return Record{}, fmt.Errorf("%w: record %s", ErrForbidden, id)
	}
	return rec, nil
}

// List returns one page of the records visible to actor.
func (e *Engine) List(ctx context.Context, actor Actor, kind Kind, q Query) (Page, error) {
	q = q.Normalize()
	if q.Status != "" && !q.Status.Valid() {
		return Page{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", q.Status)}
	}

	f := scopeFilter(actor)
	f.Status, f.Offset, f.Limit = q.Status, q.Offset(), q.Limit

	items, total, err := e.Store.List(ctx, kind, f)
	if err != nil {
		return Page{}, fmt.Errorf("failed to list records: %w", err)
	}
	return Page{
		Items:      items,
		Page:       q.Page,
		TotalPages: TotalPagesFor(total, q.Limit),
		Total:      total,
	}, nil
}

// StatusStats summarizes the records visible to one actor.
type StatusStats struct {
	Counts map[Status]int
	// Totals is nil unless the kind implements Totaler.
	Totals map[Status]decimal.Decimal
}

// Stats counts the records actor can list, per status. Kinds implementing
// Totaler also get amount totals.
func (e *Engine) Stats(ctx context.Context, actor Actor, kind Kind) (StatusStats, error) {
	f := scopeFilter(actor)
	st := StatusStats{Counts: make(map[Status]int)}
	totaler, hasTotals := kind.(Totaler)

	if counter, ok := e.Store.(StatusCounter); ok && f == (Filter{}) && !hasTotals {
		counts, err := counter.CountByStatus(ctx, kind)
		if err != nil {
			return StatusStats{}, fmt.Errorf("failed to count records: %w", err)
		}
		for s, n := range counts {
			st.Counts[s] = n
		}
		return st, nil
	}

	recs, _, err := e.Store.List(ctx, kind, f)
	if err != nil {
		return StatusStats{}, fmt.Errorf("failed to list records: %w", err)
	}
	for _, rec := range recs {
		st.Counts[rec.Status]++
	}
	if hasTotals {
		st.Totals = totaler.Totals(recs)
	}
	return st, nil
}

// scopeFilter restricts listings to what actor may see: everything for hr
// and above, the team for managers, their own records for everyone else.
func scopeFilter(actor Actor) Filter {
	switch actor.Role {
	case RoleHR, RoleAdmin, RoleSuperAdmin:
		return Filter{}
	case RoleManager:
		return Filter{ManagerID: actor.EmployeeID}
	}
	return Filter{EmployeeID: actor.EmployeeID}
}

func canView(actor Actor, rec Record) bool {
	switch actor.Role {
	case RoleHR, RoleAdmin, RoleSuperAdmin:
		return true
	case RoleManager:
		return rec.ManagerID == "" || rec.ManagerID == actor.EmployeeID || rec.EmployeeID == actor.EmployeeID
	}
	return rec.EmployeeID == actor.EmployeeID
}

// canApprove reports whether actor is in the record's reporting line. A
// manager may only act on their own reports.
func canApprove(actor Actor, rec Record) bool {
	if actor.Role == RoleManager {
		return rec.ManagerID == "" || rec.ManagerID == actor.EmployeeID
	}
	return RoleLevel(actor.Role) != LevelNone
}

// =============================================================================
// SINGLE-RECORD TRANSITIONS
// =============================================================================

// mutate loads id, applies fn and saves, all inside one store transaction.
func (e *Engine) mutate(ctx context.Context, kind Kind, id RecordID, fn func(*Record) error) (Record, error) {
	var out Record
	err := e.Store.WithTx(ctx, func(s Store) error {
		rec, err := s.Get(ctx, kind, id)
		if err != nil {
			return err
		}
		if err := fn(&rec); err != nil {
			return err
		}
		if err := s.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save record: %w", err)
		}
		out = rec
		return nil
	})
	return out, err
}

func (e *Engine) Approve(ctx context.Context, actor Actor, kind Kind, id RecordID, level Level, comment string) (Record, error) {
	rec, err := e.mutate(ctx, kind, id, func(rec *Record) error {
		if !canApprove(actor, *rec) {
			return fmt.Errorf("%w: %s is not in your team", ErrForbidden, rec.ID)
		}
		return ApplyApprove(rec, actor, level, strings.TrimSpace(comment), e.Now())
	})
	if err != nil {
		return Record{}, err
	}
	e.logTransition("approved", actor, rec, level)
	return rec, nil
}

func (e *Engine) Reject(ctx context.Context, actor Actor, kind Kind, id RecordID, level Level, reason string) (Record, error) {
	rec, err := e.mutate(ctx, kind, id, func(rec *Record) error {
		if !canApprove(actor, *rec) {
			return fmt.Errorf("%w: %s is not in your team", ErrForbidden, rec.ID)
		}
		return ApplyReject(rec, actor, level, reason, e.Now())
	})
	if err != nil {
		return Record{}, err
	}
	e.logTransition("rejected", actor, rec, level)
	return rec, nil
}

func (e *Engine) MarkPaid(ctx context.Context, actor Actor, kind Kind, id RecordID) (Record, error) {
	rec, err := e.mutate(ctx, kind, id, func(rec *Record) error {
		return ApplyPaid(rec, actor, e.Now())
	})
	if err != nil {
		return Record{}, err
	}
	e.logTransition("paid", actor, rec, LevelNone)
	return rec, nil
}

// UpdateNotes replaces the approver notes. Any approver who can see the
// record may edit them, in any status.
func (e *Engine) UpdateNotes(ctx context.Context, actor Actor, kind Kind, id RecordID, notes string) (Record, error) {
	return e.mutate(ctx, kind, id, func(rec *Record) error {
		if RoleLevel(actor.Role) == LevelNone || !canView(actor, *rec) {
			return fmt.Errorf("%w: role %q cannot edit notes", ErrForbidden, actor.Role)
		}
		rec.Notes = notes
		rec.UpdatedAt = e.Now()
		return nil
	})
}

// =============================================================================
// BULK
// =============================================================================

// Bulk applies one action to many records in a single transaction. Records
// that are missing or not waiting on the actor's level are reported as
// failed; any other error aborts the whole batch.
func (e *Engine) Bulk(ctx context.Context, actor Actor, kind Kind, req BulkRequest) (BulkResult, error) {
	if len(req.IDs) == 0 {
		return BulkResult{}, &ValidationError{Field: "ids", Message: "at least one id is required"}
	}
	if _, err := ParseAction(string(req.Action)); err != nil {
		return BulkResult{}, err
	}
	if req.Action == ActionReject && strings.TrimSpace(req.Reason) == "" {
		return BulkResult{}, &ValidationError{Field: "reason", Message: "rejection reason is required"}
	}
	if req.Level == LevelNone {
		req.Level = RoleLevel(actor.Role)
	}
	if RoleLevel(actor.Role) == LevelNone || RoleLevel(actor.Role) != req.Level {
		return BulkResult{}, fmt.Errorf("%w: role %q cannot act at level %q", ErrForbidden, actor.Role, req.Level)
	}

	var res BulkResult
	now := e.Now()
	seen := make(map[RecordID]bool, len(req.IDs))

	err := e.Store.WithTx(ctx, func(s Store) error {
		for _, id := range req.IDs {
			if seen[id] {
				continue
			}
			seen[id] = true

			rec, err := s.Get(ctx, kind, id)
			if errors.Is(err, ErrRecordNotFound) {
				res.fail(id)
				continue
			}
			if err != nil {
				return err
			}
			if !canApprove(actor, rec) {
				res.fail(id)
				continue
			}

			switch req.Action {
			case ActionApprove:
				err = ApplyApprove(&rec, actor, req.Level, strings.TrimSpace(req.Comment), now)
			case ActionReject:
				err = ApplyReject(&rec, actor, req.Level, req.Reason, now)
			}
			if errors.Is(err, ErrNotActionable) || errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrForbidden) {
				res.fail(id)
				continue
			}
			if err != nil {
				return err
			}
			if err := s.Save(ctx, rec); err != nil {
				return fmt.Errorf("failed to save record %s: %w", id, err)
			}
			res.Processed++
		}
		return nil
	})
	if err != nil {
		return BulkResult{}, err
	}

	res.Success = res.Processed > 0
	res.Message = fmt.Sprintf("%d record(s) %s, %d failed", res.Processed, req.Action.Past(), res.Failed)
	e.Logger.Info("bulk action",
		zap.String("kind", kind.KindID()),
		zap.String("action", string(req.Action)),
		zap.String("level", string(req.Level)),
		zap.String("actor", string(actor.EmployeeID)),
		zap.Int("processed", res.Processed),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (r *BulkResult) fail(id RecordID) {
	r.Failed++
	r.FailedIDs = append(r.FailedIDs, id)
}

func (e *Engine) logTransition(what string, actor Actor, rec Record, level Level) {
	e.Logger.Info("record "+what,
		zap.String("kind", rec.Kind.KindID()),
		zap.String("record_id", string(rec.ID)),
		zap.String("actor", string(actor.EmployeeID)),
		zap.String("role", string(actor.Role)),
		zap.String("level", string(level)),
		zap.String("status", string(rec.Status)),
		zap.String("current_level", string(rec.CurrentLevel)),
	)
}
