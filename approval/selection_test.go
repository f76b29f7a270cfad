package approval_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/approval-engine/approval"
)

// mixedPage is one page as seen by hr: two records waiting on hr, one still
// with the manager, one already approved, one rejected.
func mixedPage() []approval.Record {
	return []approval.Record{
		pendingAt("hr-1", approval.LevelHR),
		pendingAt("mgr-1", approval.LevelManager),
		pendingAt("hr-2", approval.LevelHR),
		finished("done-1", approval.StatusApproved),
		finished("rej-1", approval.StatusRejected),
	}
}

func TestSelection_ToggleOne(t *testing.T) {
	s := approval.NewSelection(approval.RoleHR)
	s.Reset(mixedPage())

	require.NoError(t, s.ToggleOne("hr-1"))
	assert.True(t, s.Contains("hr-1"))
	assert.False(t, s.AllSelected())

	require.NoError(t, s.ToggleOne("hr-1"))
	assert.False(t, s.Contains("hr-1"))
	assert.Equal(t, 0, s.Len())
}

func TestSelection_RefusesNonActionable(t *testing.T) {
	s := approval.NewSelection(approval.RoleHR)
	s.Reset(mixedPage())

	for _, id := range []approval.RecordID{"mgr-1", "done-1", "rej-1", "missing"} {
		err := s.ToggleOne(id)
		assert.ErrorIs(t, err, approval.ErrSelectionDenied, id)
	}
	assert.Equal(t, 0, s.Len())
}

func TestSelection_ToggleAllSelectsOnlyActionable(t *testing.T) {
	s := approval.NewSelection(approval.RoleHR)
	s.Reset(mixedPage())

	s.ToggleAll()
	assert.Equal(t, []approval.RecordID{"hr-1", "hr-2"}, s.Selected())
	assert.True(t, s.AllSelected())

	s.ToggleAll()
	assert.Empty(t, s.Selected())
	assert.False(t, s.AllSelected())
}

func TestSelection_AllSelectedTracksIndividualToggles(t *testing.T) {
	s := approval.NewSelection(approval.RoleHR)
	s.Reset(mixedPage())

	require.NoError(t, s.ToggleOne("hr-1"))
	require.NoError(t, s.ToggleOne("hr-2"))
	assert.True(t, s.AllSelected(), "every actionable record is selected")

	require.NoError(t, s.ToggleOne("hr-2"))
	assert.False(t, s.AllSelected())

	// select-all from a partial selection selects everything
	s.ToggleAll()
	assert.Equal(t, 2, s.Len())
	assert.True(t, s.AllSelected())
}

func TestSelection_NothingActionable(t *testing.T) {
	s := approval.NewSelection(approval.RoleEmployee)
	s.Reset(mixedPage())

	s.ToggleAll()
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.AllSelected())
}

func TestSelection_ResetDropsStaleIDs(t *testing.T) {
	s := approval.NewSelection(approval.RoleHR)
	s.Reset(mixedPage())
	s.ToggleAll()
	require.Equal(t, 2, s.Len())

	s.Reset([]approval.Record{pendingAt("hr-3", approval.LevelHR)})
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.Contains("hr-1"))
	assert.ErrorIs(t, s.ToggleOne("hr-1"), approval.ErrSelectionDenied)
}

func TestSelection_SubsetOfActionable(t *testing.T) {
	for _, role := range allViewers {
		s := approval.NewSelection(role)
		page := mixedPage()
		s.Reset(page)
		for _, rec := range page {
			_ = s.ToggleOne(rec.ID)
		}
		s.ToggleAll()
		s.ToggleAll()
		s.ToggleAll()

		byID := map[approval.RecordID]approval.Record{}
		for _, rec := range page {
			byID[rec.ID] = rec
		}
		for _, id := range s.Selected() {
			assert.True(t, approval.CanAct(byID[id], role), "role %s selected %s", role, id)
		}
	}
}
