package sqlite

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/conflict"
)

func newTestConflict(t *testing.T, tenant model.Tenant, flowID model.FlowID) *conflict.Record {
	t.Helper()

	candidate := mustCandidate(t, "web-01", "web-01.corp.local", "10.0.0.1")
	existing := mustCandidate(t, "web-01-legacy", "web-01.corp.local", "10.0.0.50")

	rec, err := conflict.NewRecord(tenant, flowID, asset.KeyHostname, candidate, existing)
	require.NoError(t, err)
	return rec
}

func TestConflictRepository_SaveAllAndFindPending(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewConflictRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	first := newTestConflict(t, tenant, flowID)
	second := newTestConflict(t, tenant, flowID)
	require.NoError(t, repo.SaveAll(ctx, []*conflict.Record{first, second}))

	pending, err := repo.FindPending(ctx, tenant, flowID)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, asset.KeyHostname, pending[0].Dimension())
	assert.Equal(t, "web-01", pending[0].Candidate().Name)
	assert.Equal(t, "web-01-legacy", pending[0].Existing().Name)
	assert.Equal(t, conflict.ResolutionPending, pending[0].Status())

	count, err := repo.CountPending(ctx, tenant, flowID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestConflictRepository_ResolveAndUpdate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewConflictRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	rec := newTestConflict(t, tenant, flowID)
	require.NoError(t, repo.SaveAll(ctx, []*conflict.Record{rec}))

	require.NoError(t, rec.Resolve(conflict.ResolutionKeepExisting))
	require.NoError(t, repo.Update(ctx, rec))

	found, err := repo.FindByID(ctx, tenant, rec.ID())
	require.NoError(t, err)
	assert.Equal(t, conflict.ResolutionResolved, found.Status())
	assert.Equal(t, conflict.ResolutionKeepExisting, found.Decision())
	require.NotNil(t, found.ResolvedAt())

	// Resolved records no longer count as pending
	count, err := repo.CountPending(ctx, tenant, flowID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestConflictRepository_UpdateUnknownRecord(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewConflictRepository(db)

	rec := newTestConflict(t, testTenant(t), model.NewFlowID())
	err := repo.Update(context.Background(), rec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conflict not found")
}
