/*
dispatcher.go - Approve / reject / bulk / mark-paid actions

ACTION FLOW:
  1. Validate locally (actionable? reason present? ids selected?)
     Failures return *ValidationError and never reach the network.
  2. Take the busy flag for the record (or the bulk control).
  3. Call the Service once. No retries: at-most-once per user action.
  4. Success: notify, close the detail view / bulk modal, refetch the board.
     Failure: notify with the server's message, leave the board untouched.
  5. Release the busy flag (deferred, whatever the outcome).

Two actions on different records may be in flight at the same time; each
refetches on completion and the board keeps the newest load.
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const bulkBusyKey = "\x00bulk"

// DefaultNotesDelay is the auto-save delay for approver notes.
const DefaultNotesDelay = 800 * time.Millisecond

type Dispatcher struct {
	Board    *Board
	Service  Service
	Notifier Notifier
	Logger   *zap.Logger

	// NotesTimeout bounds each auto-save call.
	NotesTimeout time.Duration

	mu    sync.Mutex
	busy  map[string]struct{}
	notes *Debouncer
}

type DispatcherOption func(*Dispatcher)

func WithNotifier(n Notifier) DispatcherOption { return func(d *Dispatcher) { d.Notifier = n } }
func WithLogger(l *zap.Logger) DispatcherOption { return func(d *Dispatcher) { d.Logger = l } }

// WithNotesDelay overrides the notes auto-save debounce delay.
func WithNotesDelay(delay time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.notes = NewDebouncer(delay) }
}

func NewDispatcher(board *Board, svc Service, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		Board:        board,
		Service:      svc,
		Notifier:     NopNotifier{},
		Logger:       zap.NewNop(),
		NotesTimeout: 10 * time.Second,
		busy:         make(map[string]struct{}),
		notes:        NewDebouncer(DefaultNotesDelay),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close cancels pending note saves.
func (d *Dispatcher) Close() {
	d.notes.Stop()
}

// Busy reports whether an action for id is in flight.
func (d *Dispatcher) Busy(id RecordID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.busy[string(id)]
	return ok
}

func (d *Dispatcher) acquire(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.busy[key]; ok {
		return false
	}
	d.busy[key] = struct{}{}
	return true
}

func (d *Dispatcher) release(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.busy, key)
}

// =============================================================================
// SINGLE-ITEM ACTIONS
// =============================================================================

// ApproveSingle approves id at the viewer's level.
func (d *Dispatcher) ApproveSingle(ctx context.Context, id RecordID, comment string) error {
	rec, err := d.actionable(id)
	if err != nil {
		return d.refuse(err)
	}
	if !d.acquire(string(id)) {
		return ErrBusy
	}
	defer d.release(string(id))

	level := RoleLevel(d.Board.Role())
	res, err := d.Service.Approve(ctx, rec.Kind, id, level, comment)
	if err != nil {
		return d.remoteFailure("approve", id, err)
	}
	d.Notifier.Success(messageOr(res.Message, "Request approved"))
	d.Board.CloseDetail()
	d.refresh(ctx)
	return nil
}

// RejectSingle rejects id at the viewer's level. The reason is required.
func (d *Dispatcher) RejectSingle(ctx context.Context, id RecordID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return d.refuse(&ValidationError{Field: "reason", Message: "please provide a rejection reason"})
	}
	rec, err := d.actionable(id)
	if err != nil {
		return d.refuse(err)
	}
	if !d.acquire(string(id)) {
		return ErrBusy
	}
	defer d.release(string(id))

	level := RoleLevel(d.Board.Role())
	res, err := d.Service.Reject(ctx, rec.Kind, id, level, reason)
	if err != nil {
		return d.remoteFailure("reject", id, err)
	}
	d.Notifier.Success(messageOr(res.Message, "Request rejected"))
	d.Board.CloseDetail()
	d.refresh(ctx)
	return nil
}

// MarkAsPaid moves an approved claim to paid. Admin and superadmin only.
func (d *Dispatcher) MarkAsPaid(ctx context.Context, id RecordID) error {
	kind := d.Board.Kind()
	if !kind.Payable() {
		return d.refuse(&ValidationError{Field: "kind", Message: fmt.Sprintf("%s records cannot be paid", kind.KindID())})
	}
	if !d.Board.Role().IsAdmin() {
		return d.refuse(&ValidationError{Field: "role", Message: "only admins can mark records as paid"})
	}
	rec, ok := d.Board.Record(id)
	if !ok {
		return d.refuse(&ValidationError{Field: "id", Message: fmt.Sprintf("record %s is not on the current page", id)})
	}
	if rec.Status != StatusApproved {
		return d.refuse(&ValidationError{Field: "status", Message: "only approved records can be marked as paid"})
	}
	if !d.acquire(string(id)) {
		return ErrBusy
	}
	defer d.release(string(id))

	res, err := d.Service.MarkPaid(ctx, kind, id)
	if err != nil {
		return d.remoteFailure("mark as paid", id, err)
	}
	d.Notifier.Success(messageOr(res.Message, "Marked as paid"))
	d.Board.CloseDetail()
	d.refresh(ctx)
	return nil
}

// =============================================================================
// BULK ACTIONS
// =============================================================================

type BulkOptions struct {
	Reason  string
	Comment string
}

// BulkAction approves or rejects the given selected ids in one call.
func (d *Dispatcher) BulkAction(ctx context.Context, ids []RecordID, action Action, opts BulkOptions) (BulkResult, error) {
	if len(ids) == 0 {
		return BulkResult{}, d.refuse(&ValidationError{Field: "ids", Message: "select at least one record"})
	}
	if _, err := ParseAction(string(action)); err != nil {
		return BulkResult{}, d.refuse(err)
	}
	if !d.Board.containsAll(ids) {
		return BulkResult{}, d.refuse(&ValidationError{Field: "ids", Message: "bulk actions apply only to selected records"})
	}
	opts.Reason = strings.TrimSpace(opts.Reason)
	if action == ActionReject && opts.Reason == "" {
		return BulkResult{}, d.refuse(&ValidationError{Field: "reason", Message: "please provide a rejection reason"})
	}
	if !d.acquire(bulkBusyKey) {
		return BulkResult{}, ErrBusy
	}
	defer d.release(bulkBusyKey)

	req := BulkRequest{
		IDs:     append([]RecordID(nil), ids...),
		Action:  action,
		Level:   RoleLevel(d.Board.Role()),
		Reason:  opts.Reason,
		Comment: opts.Comment,
	}
	res, err := d.Service.Bulk(ctx, d.Board.Kind(), req)
	if err != nil {
		return BulkResult{}, d.remoteFailure("bulk "+string(action), "", err)
	}

	verb := action.Past()
	d.Notifier.Success(messageOr(res.Message, fmt.Sprintf("%d record(s) %s", res.Processed, verb)))
	if res.Failed > 0 {
		d.Notifier.Error(fmt.Sprintf("%d record(s) could not be %s", res.Failed, verb))
	}
	d.Board.ClearSelection()
	d.Board.CloseBulk()
	d.refresh(ctx)
	return res, nil
}

// =============================================================================
// NOTES AUTO-SAVE
// =============================================================================

// EditNotes schedules a debounced save of the approver notes for id.
func (d *Dispatcher) EditNotes(id RecordID, notes string) {
	kind := d.Board.Kind()
	d.notes.Trigger(string(id), func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.NotesTimeout)
		defer cancel()
		if _, err := d.Service.SaveNotes(ctx, kind, id, notes); err != nil {
			d.remoteFailure("save notes", id, err)
		}
	})
}

// PendingNotes returns the number of note saves waiting for their delay.
func (d *Dispatcher) PendingNotes() int { return d.notes.Pending() }

// =============================================================================
// HELPERS
// =============================================================================

func (d *Dispatcher) actionable(id RecordID) (Record, error) {
	rec, ok := d.Board.Record(id)
	if !ok {
		return Record{}, &ValidationError{Field: "id", Message: fmt.Sprintf("record %s is not on the current page", id)}
	}
	if !CanAct(rec, d.Board.Role()) {
		return Record{}, &ValidationError{Field: "id", Message: "this record is not awaiting your approval"}
	}
	return rec, nil
}

// refuse surfaces a local failure to the user and returns it.
func (d *Dispatcher) refuse(err error) error {
	msg := err.Error()
	var ve *ValidationError
	if errors.As(err, &ve) {
		msg = ve.Message
	}
	d.Notifier.Error(msg)
	return err
}

func (d *Dispatcher) remoteFailure(op string, id RecordID, err error) error {
	var re *RemoteError
	if !errors.As(err, &re) {
		re = &RemoteError{Op: op, Err: err}
	}
	d.Logger.Warn("approval action failed",
		zap.String("op", op),
		zap.String("kind", d.Board.Kind().KindID()),
		zap.String("record_id", string(id)),
		zap.Int("status_code", re.StatusCode),
		zap.Error(err),
	)
	d.Notifier.Error(re.UserMessage())
	return re
}

func (d *Dispatcher) refresh(ctx context.Context) {
	if err := d.Board.Load(ctx); err != nil {
		d.Logger.Warn("refetch after action failed",
			zap.String("kind", d.Board.Kind().KindID()),
			zap.Error(err),
		)
		d.Notifier.Error("Action succeeded but the list could not be refreshed")
	}
}

func messageOr(msg, fallback string) string {
	if msg != "" {
		return msg
	}
	return fallback
}
