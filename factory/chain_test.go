package factory_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
	"github.com/warp/approval-engine/approval/store"
	"github.com/warp/approval-engine/factory"
	"github.com/warp/approval-engine/reimbursement"
)

const conditionalYAML = `
chains:
  reimbursement:
    levels:
      - level: admin
        when: 'double(payload.amount) > 5000.0'
      - level: manager
      - level: hr
        when: 'payload.category != "internet"'
`

func claim(t *testing.T, category reimbursement.Category, amount string) approval.Record {
	t.Helper()
	rec, err := reimbursement.NewRecord("emp-1", "mgr-1", reimbursement.Claim{
		Category:    category,
		Amount:      decimal.RequireFromString(amount),
		ExpenseDate: "2025-03-01",
		Description: "test",
	})
	require.NoError(t, err)
	return rec
}

func TestChainFactory_ConditionalLevels(t *testing.T) {
	f, err := factory.NewChainFactory()
	require.NoError(t, err)
	policies, err := f.Parse([]byte(conditionalYAML))
	require.NoError(t, err)
	chain := policies["reimbursement"]
	require.NotNil(t, chain)

	tests := []struct {
		name     string
		category reimbursement.Category
		amount   string
		want     []approval.Level
	}{
		{"small travel", reimbursement.CategoryTravel, "1200.50", []approval.Level{approval.LevelManager, approval.LevelHR}},
		{"large travel", reimbursement.CategoryTravel, "7500", []approval.Level{approval.LevelManager, approval.LevelHR, approval.LevelAdmin}},
		{"small internet", reimbursement.CategoryInternet, "999", []approval.Level{approval.LevelManager}},
		{"boundary is exclusive", reimbursement.CategoryFood, "5000", []approval.Level{approval.LevelManager, approval.LevelHR}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := chain.RequiredLevels(claim(t, tt.category, tt.amount))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestChainFactory_LevelsInChainOrder(t *testing.T) {
	f, err := factory.NewChainFactory()
	require.NoError(t, err)
	policies, err := f.Parse([]byte(conditionalYAML))
	require.NoError(t, err)

	chain := policies["reimbursement"].(*factory.Chain)
	levels := chain.Levels()
	require.Len(t, levels, 3)
	assert.Equal(t, "manager", levels[0].Level)
	assert.Equal(t, "hr", levels[1].Level)
	assert.Equal(t, "admin", levels[2].Level)
	assert.NotEmpty(t, levels[2].When)
}

func TestChainFactory_RejectsBadDefinitions(t *testing.T) {
	f, err := factory.NewChainFactory()
	require.NoError(t, err)

	bad := map[string]string{
		"unknown level":  "chains:\n  x:\n    levels:\n      - level: ceo\n",
		"duplicate":      "chains:\n  x:\n    levels:\n      - level: hr\n      - level: hr\n",
		"bad expression": "chains:\n  x:\n    levels:\n      - level: hr\n        when: 'payload.amount >'\n",
		"undeclared var": "chains:\n  x:\n    levels:\n      - level: hr\n        when: 'amount > 1'\n",
		"empty":          "chains: {}\n",
		"not yaml":       "chains: [",
	}
	for name, doc := range bad {
		_, err := f.Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestChain_NonBooleanCondition(t *testing.T) {
	f, err := factory.NewChainFactory()
	require.NoError(t, err)
	policies, err := f.Parse([]byte("chains:\n  x:\n    levels:\n      - level: hr\n        when: 'payload.note'\n"))
	require.NoError(t, err)

	_, err = policies["x"].RequiredLevels(approval.Record{Payload: json.RawMessage(`{"note":"hi"}`)})
	assert.Error(t, err)
}

func TestChain_MissingPayloadField(t *testing.T) {
	f, err := factory.NewChainFactory()
	require.NoError(t, err)
	policies, err := f.Parse([]byte(conditionalYAML))
	require.NoError(t, err)

	_, err = policies["reimbursement"].RequiredLevels(approval.Record{Payload: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

func TestDefaultChains_FullChain(t *testing.T) {
	policies, err := factory.DefaultChains()
	require.NoError(t, err)

	for _, kind := range []string{"regularization", "reimbursement"} {
		levels, err := policies[kind].RequiredLevels(approval.Record{})
		require.NoError(t, err, kind)
		assert.Equal(t, approval.Levels, levels, kind)
	}
}

func TestLoadAndInstall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(conditionalYAML), 0o644))

	f, err := factory.NewChainFactory()
	require.NoError(t, err)
	policies, err := f.Load(path)
	require.NoError(t, err)

	eng := approval.NewEngine(store.NewMemory())
	factory.Install(eng, policies)

	rec, err := eng.Submit(context.Background(),
		approval.Actor{EmployeeID: "emp-1", Role: approval.RoleEmployee},
		claim(t, reimbursement.CategoryInternet, "300"),
	)
	require.NoError(t, err)
	assert.Len(t, rec.Flow, 1)
	assert.Equal(t, approval.LevelManager, rec.CurrentLevel)

	_, err = f.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
