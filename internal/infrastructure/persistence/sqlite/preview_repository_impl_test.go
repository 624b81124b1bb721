package sqlite

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
)

func TestPreviewRepository_SaveAndLoadPreservesOrder(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreviewRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	var records []preview.Record
	for _, id := range []string{"m-3", "m-1", "m-2"} {
		rec, err := preview.NewRecord(id, map[string]string{"source_column": id})
		require.NoError(t, err)
		records = append(records, rec)
	}
	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "field_mapping", records))

	loaded, err := repo.LoadSet(ctx, tenant, flowID, "field_mapping")
	require.NoError(t, err)
	require.Len(t, loaded, 3)

	// Insertion order, not temp-ID order
	assert.Equal(t, "m-3", loaded[0].TempID)
	assert.Equal(t, "m-1", loaded[1].TempID)
	assert.Equal(t, "m-2", loaded[2].TempID)
	assert.Equal(t, "m-1", loaded[1].Fields["source_column"])
}

func TestPreviewRepository_EditOverlaySurvivesReload(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreviewRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	edited, err := preview.NewRecord("m-1", map[string]string{
		"source_column": "Server Name",
		"target_field":  "description",
	})
	require.NoError(t, err)
	edited.UserEdit = map[string]string{"target_field": "name"}

	plain, err := preview.NewRecord("m-2", map[string]string{
		"source_column": "FQDN",
		"target_field":  "hostname",
	})
	require.NoError(t, err)

	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "field_mapping", []preview.Record{edited, plain}))

	loaded, err := repo.LoadSet(ctx, tenant, flowID, "field_mapping")
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// The snapshot and the overlay come back as stored, so the edit
	// provenance survives a restart
	assert.Equal(t, "description", loaded[0].Fields["target_field"])
	assert.Equal(t, map[string]string{"target_field": "name"}, loaded[0].UserEdit)
	assert.Equal(t, "name", loaded[0].Merged()["target_field"])

	assert.Nil(t, loaded[1].UserEdit)
	assert.Equal(t, "hostname", loaded[1].Merged()["target_field"])
}

func TestPreviewRepository_SaveSetReplacesWholesale(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreviewRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	first, err := preview.NewRecord("old-1", map[string]string{"name": "stale"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "asset_conflict", []preview.Record{first}))

	second, err := preview.NewRecord("new-1", map[string]string{"name": "fresh"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "asset_conflict", []preview.Record{second}))

	loaded, err := repo.LoadSet(ctx, tenant, flowID, "asset_conflict")
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "new-1", loaded[0].TempID)
}

func TestPreviewRepository_SetsAreIndependentPerGate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewPreviewRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	mapping, err := preview.NewRecord("m-1", map[string]string{"source_column": "Name"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "field_mapping", []preview.Record{mapping}))

	conflictRec, err := preview.NewRecord("c-1", map[string]string{"name": "web-01"})
	require.NoError(t, err)
	require.NoError(t, repo.SaveSet(ctx, tenant, flowID, "asset_conflict", []preview.Record{conflictRec}))

	require.NoError(t, repo.DeleteSet(ctx, tenant, flowID, "field_mapping"))

	mappings, err := repo.LoadSet(ctx, tenant, flowID, "field_mapping")
	require.NoError(t, err)
	assert.Empty(t, mappings)

	conflicts, err := repo.LoadSet(ctx, tenant, flowID, "asset_conflict")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "c-1", conflicts[0].TempID)
}
