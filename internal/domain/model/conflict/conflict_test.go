package conflict

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
)

func newTestRecord(t *testing.T) *Record {
	t.Helper()
	tenant, err := model.NewTenant("acct-001", "eng-001")
	require.NoError(t, err)

	candidate := asset.Candidate{TempID: "tmp-1", Name: "web-01", Category: asset.CategoryServer}
	existing := asset.Candidate{TempID: "asset-9", Name: "web-01", Category: asset.CategoryServer}
	rec, err := NewRecord(tenant, model.NewFlowID(), asset.KeyName, candidate, existing)
	require.NoError(t, err)
	return rec
}

func TestNewRecordStartsPending(t *testing.T) {
	rec := newTestRecord(t)

	assert.NotEmpty(t, rec.ID())
	assert.Equal(t, ResolutionPending, rec.Status())
	assert.Empty(t, string(rec.Decision()))
	assert.Nil(t, rec.ResolvedAt())
	assert.Equal(t, asset.KeyName, rec.Dimension())
}

func TestNewRecord_RequiresCandidateID(t *testing.T) {
	tenant, err := model.NewTenant("acct-001", "eng-001")
	require.NoError(t, err)

	_, err = NewRecord(tenant, model.NewFlowID(), asset.KeyName,
		asset.Candidate{Name: "nameless"}, asset.Candidate{})
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	for _, decision := range []Resolution{
		ResolutionKeepExisting, ResolutionCreateAnyway, ResolutionMergeCandidate,
	} {
		rec := newTestRecord(t)
		require.NoError(t, rec.Resolve(decision))
		assert.Equal(t, ResolutionResolved, rec.Status())
		assert.Equal(t, decision, rec.Decision())
		require.NotNil(t, rec.ResolvedAt())
	}
}

func TestResolve_RejectsUnknownDecision(t *testing.T) {
	rec := newTestRecord(t)
	err := rec.Resolve(Resolution("flip_a_coin"))
	require.Error(t, err)
	assert.Equal(t, ResolutionPending, rec.Status())
}

func TestResolve_OnlyOnce(t *testing.T) {
	rec := newTestRecord(t)
	require.NoError(t, rec.Resolve(ResolutionKeepExisting))

	err := rec.Resolve(ResolutionCreateAnyway)
	require.Error(t, err)
	assert.Equal(t, ResolutionKeepExisting, rec.Decision())
}

func TestReconstructRecord(t *testing.T) {
	tenant, err := model.NewTenant("acct-001", "eng-001")
	require.NoError(t, err)
	created := time.Now().Add(-time.Hour)
	resolved := time.Now()

	rec := ReconstructRecord("conf-1", tenant, model.NewFlowID(), asset.KeyHostname,
		asset.Candidate{TempID: "tmp-1", Name: "web-01"},
		asset.Candidate{TempID: "asset-9", Name: "web-1"},
		ResolutionResolved, ResolutionMergeCandidate, created, &resolved)

	assert.Equal(t, "conf-1", rec.ID())
	assert.Equal(t, ResolutionResolved, rec.Status())
	assert.Equal(t, ResolutionMergeCandidate, rec.Decision())
	require.NotNil(t, rec.ResolvedAt())
}
