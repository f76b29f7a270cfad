/*
store.go - Persistence interface for approvable records

PURPOSE:
  Defines the boundary between the Engine and the database. Records are
  owned by the backend; the Engine loads a record, applies one transition
  and saves it back, all inside WithTx so concurrent actions on the same
  record are serialized by the store.

IMPLEMENTATIONS:
  - approval/store/memory.go: In-memory, for tests and -db=memory
  - store/sqlite/sqlite.go:   SQLite (default)
  - store/postgres/postgres.go: PostgreSQL via pgx
*/
package approval

import "context"

// Filter narrows a List call. Zero values mean "no constraint".
type Filter struct {
	Status     Status
	ManagerID  EmployeeID
	EmployeeID EmployeeID
	Offset     int
	Limit      int
}

type Store interface {
	// Save inserts or replaces a record.
	Save(ctx context.Context, rec Record) error

	// Get returns ErrRecordNotFound when kind/id does not exist.
	Get(ctx context.Context, kind Kind, id RecordID) (Record, error)

	// List returns one page of records, newest first, and the total count
	// matching the filter.
	List(ctx context.Context, kind Kind, f Filter) ([]Record, int, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error nothing it wrote is kept.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Resetter is implemented by stores that can drop all records (demo reset).
type Resetter interface {
	Reset(ctx context.Context) error
}

// StatusCounter is implemented by stores that can summarize a queue.
type StatusCounter interface {
	CountByStatus(ctx context.Context, kind Kind) (map[Status]int, error)
}
