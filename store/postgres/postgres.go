/*
Package postgres provides a PostgreSQL implementation of approval.TxStore
on top of pgx.

PURPOSE:
  Same table shape as store/sqlite, with native types: JSONB for the flow
  and payload, TIMESTAMPTZ for timestamps. Concurrency control is left to
  the database: WithTx reads rows with SELECT ... FOR UPDATE, so two
  approvals of the same record serialize and the second one sees the
  level already moved on.

USAGE:
  store, err := postgres.New(ctx, os.Getenv("DATABASE_URL"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - store/sqlite/sqlite.go
  - approval/store.go
*/
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/warp/approval-engine/approval"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn and creates the schema if needed.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS approval_records (
		kind TEXT NOT NULL,
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		manager_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		current_level TEXT NOT NULL DEFAULT '',
		flow JSONB NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		payload JSONB,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (kind, id)
	);
	CREATE INDEX IF NOT EXISTS approval_records_kind_created_idx
		ON approval_records (kind, created_at DESC);
	CREATE INDEX IF NOT EXISTS approval_records_kind_status_idx
		ON approval_records (kind, status, created_at DESC);
	CREATE INDEX IF NOT EXISTS approval_records_kind_manager_idx
		ON approval_records (kind, manager_id);
	CREATE INDEX IF NOT EXISTS approval_records_kind_employee_idx
		ON approval_records (kind, employee_id);
	`)
	return err
}

// =============================================================================
// RECORD STORE
// =============================================================================

func (s *Store) Save(ctx context.Context, rec approval.Record) error {
	return saveRecord(ctx, s.pool, rec)
}

func saveRecord(ctx context.Context, q querier, rec approval.Record) error {
	if rec.Kind == nil {
		return approval.ErrUnknownKind
	}
	flow, err := json.Marshal(rec.Flow)
	if err != nil {
		return fmt.Errorf("failed to encode flow: %w", err)
	}
	var payload any
	if len(rec.Payload) > 0 {
		payload = string(rec.Payload)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO approval_records (kind, id, employee_id, manager_id, status, current_level,
			flow, rejection_reason, notes, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8, $9, $10::jsonb, $11, $12)
		ON CONFLICT (kind, id) DO UPDATE SET
			employee_id = EXCLUDED.employee_id,
			manager_id = EXCLUDED.manager_id,
			status = EXCLUDED.status,
			current_level = EXCLUDED.current_level,
			flow = EXCLUDED.flow,
			rejection_reason = EXCLUDED.rejection_reason,
			notes = EXCLUDED.notes,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		rec.Kind.KindID(), string(rec.ID), string(rec.EmployeeID), string(rec.ManagerID),
		string(rec.Status), string(rec.CurrentLevel), string(flow),
		rec.RejectionReason, rec.Notes, payload, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save record: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	return getRecord(ctx, s.pool, kind, id, false)
}

const recordColumns = `id, employee_id, manager_id, status, current_level, flow,
	rejection_reason, notes, payload, created_at, updated_at`

func getRecord(ctx context.Context, q querier, kind approval.Kind, id approval.RecordID, forUpdate bool) (approval.Record, error) {
	sql := `SELECT ` + recordColumns + ` FROM approval_records WHERE kind = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	rec, err := scanRecord(q.QueryRow(ctx, sql, kind.KindID(), string(id)), kind)
	if errors.Is(err, pgx.ErrNoRows) {
		return approval.Record{}, approval.ErrRecordNotFound
	}
	return rec, err
}

func (s *Store) List(ctx context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	return listRecords(ctx, s.pool, kind, f)
}

func listRecords(ctx context.Context, q querier, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	where := []string{"kind = $1"}
	args := []any{kind.KindID()}
	add := func(col, val string) {
		args = append(args, val)
		where = append(where, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.ManagerID != "" {
		add("manager_id", string(f.ManagerID))
	}
	if f.EmployeeID != "" {
		add("employee_id", string(f.EmployeeID))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM approval_records WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	var limit any // NULL means no limit
	if f.Limit > 0 {
		limit = f.Limit
	}
	sql := fmt.Sprintf(`SELECT %s FROM approval_records WHERE %s
		ORDER BY created_at DESC, id ASC LIMIT $%d OFFSET $%d`,
		recordColumns, cond, len(args)+1, len(args)+2)
	rows, err := q.Query(ctx, sql, append(args, limit, f.Offset)...)
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

func scanRecord(row pgx.Row, kind approval.Kind) (approval.Record, error) {
	var (
		rec                  approval.Record
		id, emp, mgr         string
		status, level        string
		flow, payload        []byte
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &emp, &mgr, &status, &level, &flow,
		&rec.RejectionReason, &rec.Notes, &payload, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
	if err := json.Unmarshal(flow, &rec.Flow); err != nil {
		return rec, fmt.Errorf("failed to decode flow of %s: %w", id, err)
	}
	if len(payload) > 0 {
		rec.Payload = json.RawMessage(payload)
	}
	rec.CreatedAt = createdAt.UTC()
	rec.UpdatedAt = updatedAt.UTC()
	return rec, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn in a transaction. Records read through the transaction
// are locked until it ends.
func (s *Store) WithTx(ctx context.Context, fn func(approval.Store) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

func (ts *txStore) Save(ctx context.Context, rec approval.Record) error {
	return saveRecord(ctx, ts.tx, rec)
}

func (ts *txStore) Get(ctx context.Context, kind approval.Kind, id approval.RecordID) (approval.Record, error) {
	return getRecord(ctx, ts.tx, kind, id, true)
}

func (ts *txStore) List(ctx context.Context, kind approval.Kind, f approval.Filter) ([]approval.Record, int, error) {
	return listRecords(ctx, ts.tx, kind, f)
}

// =============================================================================
// UTILITIES
// =============================================================================

func (s *Store) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM approval_records")
	return err
}

func (s *Store) CountByStatus(ctx context.Context, kind approval.Kind) (map[approval.Status]int, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT status, COUNT(*) FROM approval_records WHERE kind = $1 GROUP BY status", kind.KindID())
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
