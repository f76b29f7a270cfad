/*
board.go - Client-side read-through cache of one approval queue

PURPOSE:
  A Board is the state behind one review screen: the current query
  (status filter, page, limit), the page the Source returned, the bulk
  selection, the open detail record and whether the bulk modal is open.

  The board never infers post-action state. Every mutation ends in Load(),
  which replaces the page with ground truth and resets the selection.

PAGINATION:
  Always server-side. The board shows exactly what the Source returned for
  {status, page, limit}; it never slices locally.

CONCURRENCY:
  Safe for concurrent use. Each Load takes a generation number; when two
  loads overlap only the most recently started one is applied.
*/
package approval

import (
	"context"
	"fmt"
	"sync"
)

type Board struct {
	kind   Kind
	role   Role
	source Source

	mu        sync.Mutex
	query     Query
	page      Page
	selection *Selection
	detail    RecordID
	bulkOpen  bool
	gen       uint64
}

func NewBoard(kind Kind, role Role, source Source, limit int) *Board {
	return &Board{
		kind:      kind,
		role:      role,
		source:    source,
		query:     Query{Page: 1, Limit: limit}.Normalize(),
		selection: NewSelection(role),
	}
}

func (b *Board) Kind() Kind { return b.kind }
func (b *Board) Role() Role { return b.role }

// Load refetches the current query. Selection is cleared up front so stale
// ids never outlive a refresh, whether or not the fetch succeeds.
func (b *Board) Load(ctx context.Context) error {
	b.mu.Lock()
	b.gen++
	gen := b.gen
	q := b.query
	b.selection.Clear()
	b.mu.Unlock()

	page, err := b.source.List(ctx, b.kind, q)
	if err != nil {
		return fmt.Errorf("list %s records: %w", b.kind.KindID(), err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if gen != b.gen {
		return nil
	}
	b.page = page
	b.selection.Reset(page.Items)
	if b.detail != "" && !b.hasLocked(b.detail) {
		b.detail = ""
	}
	return nil
}

// SetStatusFilter changes the status filter, returns to page 1 and reloads.
func (b *Board) SetStatusFilter(ctx context.Context, status Status) error {
	if status != "" && !status.Valid() {
		return &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	b.mu.Lock()
	b.query.Status = status
	b.query.Page = 1
	b.mu.Unlock()
	return b.Load(ctx)
}

// SetPage moves to page n (1-based) and reloads.
func (b *Board) SetPage(ctx context.Context, n int) error {
	if n < 1 {
		return &ValidationError{Field: "page", Message: "page must be at least 1"}
	}
	b.mu.Lock()
	if tp := b.page.TotalPages; tp > 0 && n > tp {
		b.mu.Unlock()
		return &ValidationError{Field: "page", Message: fmt.Sprintf("page %d is beyond the last page %d", n, tp)}
	}
	b.query.Page = n
	b.mu.Unlock()
	return b.Load(ctx)
}

func (b *Board) Query() Query {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.query
}

// Page returns a copy of the current page.
func (b *Board) Page() Page {
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.page
	p.Items = make([]Record, len(b.page.Items))
	for i, rec := range b.page.Items {
		p.Items[i] = rec.Clone()
	}
	return p
}

// Views resolves every record on the page for the board's viewer.
func (b *Board) Views() []View {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]View, len(b.page.Items))
	for i, rec := range b.page.Items {
		out[i] = Resolve(rec.Clone(), b.role)
	}
	return out
}

func (b *Board) Record(id RecordID) (Record, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, rec := range b.page.Items {
		if rec.ID == id {
			return rec.Clone(), true
		}
	}
	return Record{}, false
}

func (b *Board) hasLocked(id RecordID) bool {
	for _, rec := range b.page.Items {
		if rec.ID == id {
			return true
		}
	}
	return false
}

// =============================================================================
// SELECTION
// =============================================================================

func (b *Board) ToggleOne(id RecordID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.ToggleOne(id)
}

func (b *Board) ToggleAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection.ToggleAll()
}

func (b *Board) Selected() []RecordID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.Selected()
}

func (b *Board) AllSelected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.selection.AllSelected()
}

func (b *Board) ClearSelection() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.selection.Clear()
}

// containsAll reports whether every id is currently selected.
func (b *Board) containsAll(ids []RecordID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		if !b.selection.Contains(id) {
			return false
		}
	}
	return true
}

// =============================================================================
// DETAIL VIEW AND BULK MODAL
// =============================================================================

func (b *Board) OpenDetail(id RecordID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasLocked(id) {
		return &ValidationError{Field: "id", Message: fmt.Sprintf("record %s is not on the current page", id)}
	}
	b.detail = id
	return nil
}

func (b *Board) CloseDetail() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.detail = ""
}

// Detail returns the record shown in the detail view, if one is open.
func (b *Board) Detail() (Record, bool) {
	b.mu.Lock()
	id := b.detail
	b.mu.Unlock()
	if id == "" {
		return Record{}, false
	}
	return b.Record(id)
}

// OpenBulk opens the bulk modal; it requires a non-empty selection.
func (b *Board) OpenBulk() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.selection.Len() == 0 {
		return &ValidationError{Field: "ids", Message: "select at least one record"}
	}
	b.bulkOpen = true
	return nil
}

func (b *Board) CloseBulk() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bulkOpen = false
}

func (b *Board) BulkOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bulkOpen
}
