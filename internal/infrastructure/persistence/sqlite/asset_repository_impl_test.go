package sqlite

import (
	"context"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

func mustCandidate(t *testing.T, name, hostname, ip string) asset.Candidate {
	t.Helper()
	c, err := asset.NewCandidate(name, hostname, ip, asset.CategoryServer, map[string]string{"env": "prod"})
	require.NoError(t, err)
	return c
}

func TestAssetRepository_CreateAndFindByID(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAssetRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	a, err := asset.NewAsset(tenant, flowID, mustCandidate(t, "web-01", "web-01.corp.local", "10.0.0.1"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))

	found, err := repo.FindByID(ctx, tenant, a.ID())
	require.NoError(t, err)
	assert.Equal(t, a.Name(), found.Name())
	assert.Equal(t, a.Hostname(), found.Hostname())
	assert.Equal(t, a.IPAddress(), found.IPAddress())
	assert.Equal(t, asset.CategoryServer, found.Category())
	assert.Equal(t, "prod", found.Attributes()["env"])
	assert.Equal(t, flowID, found.FlowID())
}

func TestAssetRepository_FindByNaturalKeys(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAssetRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	for _, c := range []asset.Candidate{
		mustCandidate(t, "Web-01", "web-01.corp.local", "10.0.0.1"),
		mustCandidate(t, "db-01", "db-01.corp.local", "10.0.0.2"),
		mustCandidate(t, "cache-01", "cache-01.corp.local", "10.0.0.3"),
	} {
		a, err := asset.NewAsset(tenant, flowID, c)
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, a))
	}

	// One query covers the whole batch; matching is case-insensitive
	// because both sides are normalized
	matches, err := repo.FindByNaturalKeys(ctx, tenant, repository.NaturalKeyQuery{
		Dimension: asset.KeyName,
		Values:    []string{asset.NormalizeKey("WEB-01"), asset.NormalizeKey("db-01"), asset.NormalizeKey("absent")},
	})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	byHostname, err := repo.FindByNaturalKeys(ctx, tenant, repository.NaturalKeyQuery{
		Dimension: asset.KeyHostname,
		Values:    []string{asset.NormalizeKey("CACHE-01.corp.local")},
	})
	require.NoError(t, err)
	require.Len(t, byHostname, 1)
	assert.Equal(t, "cache-01", byHostname[0].Name())

	empty, err := repo.FindByNaturalKeys(ctx, tenant, repository.NaturalKeyQuery{Dimension: asset.KeyAddress})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAssetRepository_FindByNaturalKeysIsTenantScoped(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAssetRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)

	a, err := asset.NewAsset(tenant, model.NewFlowID(), mustCandidate(t, "shared-name", "h1", "10.0.0.9"))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, a))

	otherTenant, err := model.NewTenant("acct-002", "eng-002")
	require.NoError(t, err)

	matches, err := repo.FindByNaturalKeys(ctx, otherTenant, repository.NaturalKeyQuery{
		Dimension: asset.KeyName,
		Values:    []string{asset.NormalizeKey("shared-name")},
	})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestAssetRepository_CountByFlow(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewAssetRepository(db)
	ctx := context.Background()
	tenant := testTenant(t)
	flowID := model.NewFlowID()

	for _, name := range []string{"a-01", "a-02"} {
		a, err := asset.NewAsset(tenant, flowID, mustCandidate(t, name, "", ""))
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, a))
	}
	other, err := asset.NewAsset(tenant, model.NewFlowID(), mustCandidate(t, "b-01", "", ""))
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))

	count, err := repo.CountByFlow(ctx, tenant, flowID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
