/*
Package sqlite provides a SQLite-backed implementation of approval.TxStore.

PURPOSE:
  Persists approvable records of every kind in a single table. The flow
  and the kind-specific payload are stored as JSON documents; the columns
  the list queries filter on (kind, status, manager, employee) are real
  columns with indexes.

KEY TABLES:
  records: one row per (kind, id)

INDEXES:
  - idx_records_kind_created:  default listing, newest first
  - idx_records_kind_status:   status filter
  - idx_records_kind_manager:  manager-scoped listings
  - idx_records_kind_employee: employee-scoped listings

TIMESTAMPS:
  Stored as Unix nanoseconds (INTEGER) so ORDER BY created_at is exact.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety, and a single connection: each
  ":memory:" connection would otherwise be a separate database.

USAGE:
  store, err := sqlite.New("./data/approvals.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := approval.NewEngine(store)

SEE ALSO:
  - approval/store.go: Interface definitions
  - approval/store/memory.go: In-memory implementation for testing
  - store/postgres: PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/approval-engine/approval"
)

// Store implements approval.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_level TEXT NOT NULL DEFAULT '',
		flow_json TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		payload_json TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (kind, id)
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind_created
		ON records(kind, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_kind_status
		ON records(kind, status, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_kind_manager
		ON records(kind, manager_id);
	CREATE INDEX IF NOT EXISTS idx_records_kind_employee
		ON records(kind, employee_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// RECORD STORE (approval.Store interface)
// =============================================================================

// Save inserts or replaces a record.
func (s *Store) Save(ctx context.Context, rec approval.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveRecord(ctx, s.db, rec)
}

func saveRecord(ctx context.Context, db dbtx, rec approval.Record) error {
	if rec.Kind == nil {
		return approval.ErrUnknownKind
	}
	flowJSON, err := json.Marshal(rec.Flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}

	query := `
		INSERT INTO records (kind, id, employee_id, manager_id, status, current_level,
			flow_json, rejection_reason, notes, payload_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, id) DO UPDATE SET
			employee_id = excluded.employee_id,
			manager_id = excluded.manager_id,
			status = excluded.status,
			current_level = excluded.current_level,
			flow_json = excluded.flow_json,
			rejection_reason = excluded.rejection_reason,
			notes = excluded.notes,
			payload_json = excluded.payload_json,
			updated_at = excluded.updated_at
	`

	_, err = db.ExecContext(ctx, query,
		rec.Kind.KindID(),
		string(rec.ID),
		string(rec.EmployeeID),
		string(rec.ManagerID),
		string(rec.Status),
		string(rec.CurrentLevel),
		string(flowJSON),
		rec.RejectionReason,
		rec.Notes,
		nullString(string(rec.Payload)),
		rec.CreatedAt.UnixNano(),
		rec.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

// Get returns approval.ErrRecordNotFound when kind/id does not exist.
func (s *Store) Get(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getRecord(ctx, s.db, kind, id)
}

const recordColumns = `id, employee_id, manager_id, status, current_level, flow_json,
	rejection_reason, notes, payload_json, created_at, updated_at`

func getRecord(ctx context.Context, db dbtx, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE kind = ? AND id = ?`
	rec, err := scanRecord(db.QueryRowContext(ctx, query, kind.KindID(), string(id)), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return approval.Record{}, approval.ErrRecordNotFound
	}
	return rec, err
}

// List returns one page of records, newest first, and the total count.
func (s *Store) List(ctx context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listRecords(ctx, s.db, kind, f)
}

func listRecords(ctx context.Context, db dbtx, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	where := []string{"kind = ?"}
	args := []any{kind.KindID()}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.ManagerID != "" {
		where = append(where, "manager_id = ?")
		args = append(args, string(f.ManagerID))
	}
	if f.EmployeeID != "" {
		where = append(where, "employee_id = ?")
		args = append(args, string(f.EmployeeID))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = -1 // no limit
	}
	query := `SELECT ` + recordColumns + ` FROM records WHERE ` + cond +
		` ORDER BY created_at DESC, id ASC LIMIT ? OFFSET ?`
	rows, err := db.QueryContext(ctx, query, append(args, limit, f.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []approval.Record
	for rows.Next() {
		rec, err := scanRecord(rows, kind)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	return out, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, kind approval.Kind) (approval.Record, error) {
	var (
		rec                  approval.Record
		id, emp, mgr         string
		status, level        string
		flowJSON             string
		payload              sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&id, &emp, &mgr, &status, &level, &flowJSON,
		&rec.RejectionReason, &rec.Notes, &payload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan record: %w", err)
	}

	rec.ID = approval.RecordID(id)
	rec.Kind = kind
	rec.EmployeeID = approval.EmployeeID(emp)
	rec.ManagerID = approval.EmployeeID(mgr)
	rec.Status = approval.Status(status)
	rec.CurrentLevel = approval.Level(level)
	if err := json.Unmarshal([]byte(flowJSON), &rec.Flow); err != nil {
		return rec, fmt.Errorf("failed to decode flow of %s: %w", id, err)
	}
	if payload.Valid {
		rec.Payload = json.RawMessage(payload.String)
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (approval.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store approval.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) Save(ctx context.Context, rec approval.Record) error {
	return saveRecord(ctx, ts.tx, rec)
}

func (ts *txStore) Get(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	return getRecord(ctx, ts.tx, kind, id)
}

func (ts *txStore) List(ctx context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	return listRecords(ctx, ts.tx, kind, f)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, "DELETE FROM records")
	return err
}

// CountByStatus returns the number of records of kind per status.
func (s *Store) CountByStatus(ctx context.Context, kind approval.Kind) (map[approval.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM records WHERE kind = ? GROUP BY status", kind.KindID())
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	out := make(map[approval.Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[approval.Status(status)] = n
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
