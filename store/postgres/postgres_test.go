package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/warp/approval-engine/approval"
)

// These tests need a real PostgreSQL. Set APPROVALS_PG_DSN to reuse a
// database, or APPROVALS_PG_TESTS=1 to start a container.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("APPROVALS_PG_DSN")
	if dsn == "" {
		if os.Getenv("APPROVALS_PG_TESTS") != "1" {
			t.Skip("set APPROVALS_PG_TESTS=1 or APPROVALS_PG_DSN to run PostgreSQL tests")
		}
		c, err := tcpostgres.Run(ctx,
			"postgres:16",
			tcpostgres.WithDatabase("approvals"),
			tcpostgres.WithUsername("approvals"),
			tcpostgres.WithPassword("approvals"),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Terminate(context.Background()) })
		dsn, err = c.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
	}

	var (
		store *Store
		err   error
	)
	// the container accepts connections slightly after it reports ready
	for i := 0; i < 20; i++ {
		store, err = New(ctx, dsn)
		if err == nil {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	require.NoError(t, err)
	require.NoError(t, store.Reset(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

var kind = approval.StringKind{ID: "reimbursement", CanPay: true}

func testRecord(id string, mgr approval.EmployeeID, at time.Time) approval.Record {
	rec := approval.Record{
		ID:         approval.RecordID(id),
		Kind:       kind,
		EmployeeID: "emp-1",
		ManagerID:  mgr,
		Payload:    json.RawMessage(`{"amount": "42.00"}`),
	}
	_ = approval.Initialize(&rec, approval.Levels, at)
	return rec
}

func TestPostgres_SaveGetList(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		mgr := approval.EmployeeID("mgr-1")
		if i%2 == 0 {
			mgr = "mgr-2"
		}
		require.NoError(t, store.Save(ctx, testRecord(fmt.Sprintf("r%d", i), mgr, base.Add(time.Duration(i)*time.Hour))))
	}

	got, err := store.Get(ctx, kind, "r3")
	require.NoError(t, err)
	assert.Equal(t, approval.LevelManager, got.CurrentLevel)
	assert.JSONEq(t, `{"amount":"42.00"}`, string(got.Payload))
	assert.True(t, got.CreatedAt.Equal(base.Add(3*time.Hour)))

	items, total, err := store.List(ctx, kind, approval.Filter{Offset: 5, Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, items, 2)
	assert.Equal(t, approval.RecordID("r0"), items[1].ID)

	_, total, err = store.List(ctx, kind, approval.Filter{ManagerID: "mgr-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	_, err = store.Get(ctx, kind, "missing")
	assert.ErrorIs(t, err, approval.ErrRecordNotFound)
}

func TestPostgres_ConcurrentApprovalsSerialize(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	eng := approval.NewEngine(store)
	rec, err := eng.Submit(ctx, approval.Actor{EmployeeID: "emp-1", Role: approval.RoleEmployee},
		approval.Record{Kind: kind, Payload: json.RawMessage(`{}`)})
	require.NoError(t, err)

	mgr := approval.Actor{EmployeeID: "mgr-1", Role: approval.RoleManager}
	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = eng.Approve(ctx, mgr, kind, rec.ID, approval.LevelManager, "")
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, approval.ErrNotActionable)
		}
	}
	assert.Equal(t, 1, ok)

	counts, err := store.CountByStatus(ctx, kind)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[approval.StatusPending])
}
