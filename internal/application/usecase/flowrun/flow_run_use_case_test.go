package flowrun

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agentgw "github.com/YoshitsuguKoike/assetflow/internal/adapter/gateway/agent"
	storagegw "github.com/YoshitsuguKoike/assetflow/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/assetflow/internal/application/dto"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

type stubReader struct {
	records []flow.RawRecord
	err     error
}

func (r *stubReader) Read(string) ([]flow.RawRecord, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.records, nil
}

// fixture wires the use case over sqlite :memory: with a scripted agent
type fixture struct {
	useCase   input.FlowUseCase
	agent     *agentgw.MockGateway
	storage   *storagegw.MockStorageGateway
	reader    *stubReader
	assets    repository.AssetRepository
	conflicts repository.ConflictRepository
	previews  repository.PreviewRepository
	db        *sql.DB
}

func newFixture(t *testing.T, autoApprove bool) *fixture {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, sqlite.NewMigrator(db).Migrate())

	f := &fixture{
		agent:   agentgw.NewMockGateway(),
		storage: storagegw.NewMockStorageGateway(),
		reader: &stubReader{records: []flow.RawRecord{
			{Row: 1, Fields: map[string]string{"Server Name": "web-01", "FQDN": "web-01.corp.local", "IP Address": "10.0.1.15"}},
			{Row: 2, Fields: map[string]string{"Server Name": "db-primary", "FQDN": "db1.corp.local", "IP Address": "10.0.2.10"}},
		}},
		assets:    sqlite.NewAssetRepository(db),
		conflicts: sqlite.NewConflictRepository(db),
		previews:  sqlite.NewPreviewRepository(db),
		db:        db,
	}

	f.useCase = NewFlowRunUseCase(Config{
		Flows:               sqlite.NewFlowRepository(db),
		Assets:              f.assets,
		Conflicts:           f.conflicts,
		Previews:            f.previews,
		Agent:               f.agent,
		Reader:              f.reader,
		Storage:             f.storage,
		TxManager:           transaction.NewMockTransactionManager(),
		AutoApproveMappings: autoApprove,
		ImportTimeout:       time.Minute,
	})
	return f
}

func (f *fixture) scriptHappyPath() {
	f.agent.ScriptPayload(model.PhaseFieldMapping.String(), map[string]interface{}{
		"mappings": []interface{}{
			map[string]interface{}{"source_column": "Server Name", "target_field": "name", "confidence": 0.95},
			map[string]interface{}{"source_column": "FQDN", "target_field": "hostname", "confidence": 0.95},
			map[string]interface{}{"source_column": "IP Address", "target_field": "ip_address", "confidence": 0.95},
		},
	})
	f.agent.ScriptPayload(model.PhaseDataCleansing.String(), map[string]interface{}{
		"records": []interface{}{
			map[string]interface{}{"row": 1, "fields": map[string]interface{}{
				"name": "web-01", "hostname": "web-01.corp.local", "ip_address": "10.0.1.15",
			}},
			map[string]interface{}{"row": 2, "fields": map[string]interface{}{
				"name": "db-primary", "hostname": "db1.corp.local", "ip_address": "10.0.2.10",
			}},
		},
	})
	f.agent.ScriptPayload(model.PhaseInventory.String(), map[string]interface{}{
		"servers": []interface{}{
			map[string]interface{}{"name": "web-01", "hostname": "web-01.corp.local", "ip_address": "10.0.1.15"},
			map[string]interface{}{"name": "db-primary", "hostname": "db1.corp.local", "ip_address": "10.0.2.10"},
		},
	})
	f.agent.ScriptPayload(model.PhaseDependencyAnalysis.String(), map[string]interface{}{
		"edges": []interface{}{
			map[string]interface{}{"from": "web-01", "to": "db-primary", "kind": "connects_to", "confidence": 0.6},
		},
	})
	f.agent.ScriptPayload(model.PhaseDebtAnalysis.String(), map[string]interface{}{
		"findings": []interface{}{},
	})
}

func startRequest() dto.StartFlowRequest {
	return dto.StartFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		UserID:       "user-001",
		SourcePath:   "/imports/assets.csv",
	}
}

func tenantFor(t *testing.T) model.Tenant {
	t.Helper()
	tenant, err := model.NewTenant("acct-001", "eng-001")
	require.NoError(t, err)
	return tenant
}

func TestStart_RunsToCompletion(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()

	resp, err := f.useCase.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted.String(), resp.Status)
	assert.Equal(t, 100, resp.Progress)
	assert.Equal(t, 2, resp.Created)
	assert.Contains(t, resp.Summary, "fully succeeded")

	count, err := f.assets.CountByFlow(context.Background(), tenantFor(t), mustFlowID(t, resp.FlowID))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Import snapshot plus completion report
	assert.Equal(t, 2, f.storage.Count())

	status, err := f.useCase.Status(context.Background(), dto.FlowStatusRequest{
		AccountID: "acct-001", EngagementID: "eng-001", FlowID: resp.FlowID, Verify: true,
	})
	require.NoError(t, err)
	assert.True(t, status.PhaseCompletion[model.PhaseDebtAnalysis.String()])
	require.NotNil(t, status.Integrity)
	assert.True(t, status.Integrity.Valid)
	assert.NotEmpty(t, status.CompletedAt)
}

func TestStart_PausesForMappingApproval(t *testing.T) {
	f := newFixture(t, false)
	f.scriptHappyPath()

	resp, err := f.useCase.Start(context.Background(), startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusAwaitingApproval.String(), resp.Status)
	assert.Equal(t, model.PhaseApproveFieldMapping.String(), resp.CurrentPhase)
	assert.Equal(t, 3, resp.PendingApprovals)
	assert.Contains(t, resp.Summary, "awaiting field-mapping approval")
}

func TestSubmitApproval_ContinuesToCompletion(t *testing.T) {
	f := newFixture(t, false)
	f.scriptHappyPath()
	ctx := context.Background()

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)

	pending, err := f.previews.LoadSet(ctx, tenantFor(t), mustFlowID(t, started.FlowID), "field_mapping")
	require.NoError(t, err)
	require.Len(t, pending, 3)

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.TempID)
	}

	resp, err := f.useCase.SubmitApproval(ctx, dto.ApprovalRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		ApprovedIDs:  ids,
		Edits:        map[string]map[string]string{ids[0]: {"target_field": "name"}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted.String(), resp.Status)
	assert.Equal(t, 2, resp.Created)
}

func TestSubmitApproval_RequiresAwaitingFlow(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)

	_, err = f.useCase.SubmitApproval(ctx, dto.ApprovalRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		ApprovedIDs:  []string{"tmp-1"},
	})
	require.Error(t, err)

	var validation *flow.ValidationFailure
	assert.ErrorAs(t, err, &validation)
}

func TestConflictHoldAndResolution(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()
	tenant := tenantFor(t)

	// Pre-existing asset sharing a name with one incoming candidate
	prior, err := asset.NewCandidate("db-primary", "old-db.corp.local", "10.9.9.9", asset.CategoryServer, nil)
	require.NoError(t, err)
	existing, err := asset.NewAsset(tenant, model.NewFlowID(), prior)
	require.NoError(t, err)
	require.NoError(t, f.assets.Create(ctx, existing))

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)

	assert.Equal(t, model.StatusAwaitingApproval.String(), started.Status)
	assert.Equal(t, 1, started.PendingConflicts)
	assert.Equal(t, 1, started.Created, "the conflict-free candidate is created before the pause")
	assert.Contains(t, started.Summary, "awaiting conflict resolution")

	flowID := mustFlowID(t, started.FlowID)
	conflicts, err := f.conflicts.FindPending(ctx, tenant, flowID)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)

	resolved, err := f.useCase.SubmitConflictResolutions(ctx, dto.ConflictResolutionsRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		Resolutions: []dto.ConflictResolutionDTO{{
			ConflictID: conflicts[0].ID(),
			Resolution: "create_anyway",
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted.String(), resolved.Status)
	assert.Equal(t, 2, resolved.Created, "the resolved candidate is folded into the summary")

	remaining, err := f.conflicts.CountPending(ctx, tenant, flowID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestResume_ConflictHoldIsCheckpointed(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()
	tenant := tenantFor(t)

	prior, err := asset.NewCandidate("db-primary", "old-db.corp.local", "10.9.9.9", asset.CategoryServer, nil)
	require.NoError(t, err)
	existing, err := asset.NewAsset(tenant, model.NewFlowID(), prior)
	require.NoError(t, err)
	require.NoError(t, f.assets.Create(ctx, existing))

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)
	require.Equal(t, model.StatusAwaitingApproval.String(), started.Status)
	require.Equal(t, 1, started.PendingConflicts)

	paused, err := f.useCase.Pause(ctx, dto.PauseFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		Reason:       "maintenance window",
	})
	require.NoError(t, err)
	require.Equal(t, model.StatusPaused.String(), paused.Status)

	// Resuming with conflicts still pending re-enters the hold; the
	// reported status and the stored one must agree.
	resumed, err := f.useCase.Resume(ctx, dto.ResumeFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingApproval.String(), resumed.Status)
	assert.Equal(t, 1, resumed.PendingConflicts)

	stored, err := sqlite.NewFlowRepository(f.db).Recover(ctx, tenant, mustFlowID(t, started.FlowID))
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.StatusAwaitingApproval, stored.Status())
}

func TestSubmitConflictResolutions_RequiresPendingConflicts(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)

	_, err = f.useCase.SubmitConflictResolutions(ctx, dto.ConflictResolutionsRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		Resolutions:  []dto.ConflictResolutionDTO{{ConflictID: "x", Resolution: "keep_existing"}},
	})
	require.Error(t, err)
}

func TestPauseAndResume(t *testing.T) {
	f := newFixture(t, false)
	f.scriptHappyPath()
	ctx := context.Background()

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)
	require.Equal(t, model.StatusAwaitingApproval.String(), started.Status)

	paused, err := f.useCase.Pause(ctx, dto.PauseFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
		Reason:       "maintenance window",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused.String(), paused.Status)

	// Resuming a paused flow re-enters the approval gate
	resumed, err := f.useCase.Resume(ctx, dto.ResumeFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAwaitingApproval.String(), resumed.Status)
	assert.Equal(t, 3, resumed.PendingApprovals)
}

func TestResume_CompletedFlowIsRejected(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()

	started, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted.String(), started.Status)

	_, err = f.useCase.Resume(ctx, dto.ResumeFlowRequest{
		AccountID:    "acct-001",
		EngagementID: "eng-001",
		FlowID:       started.FlowID,
	})
	require.Error(t, err)

	var validation *flow.ValidationFailure
	assert.ErrorAs(t, err, &validation)
}

func TestStart_UnreadableSource(t *testing.T) {
	f := newFixture(t, true)
	f.reader.err = errors.New("no such file")

	_, err := f.useCase.Start(context.Background(), startRequest())
	require.Error(t, err)

	var validation *flow.ValidationFailure
	assert.ErrorAs(t, err, &validation)
}

func TestStart_AgentFailureFailsTheRun(t *testing.T) {
	f := newFixture(t, true)
	// Only field mapping scripted to fail; nothing else matters
	f.agent.ScriptError(model.PhaseFieldMapping.String(), errors.New("agent unavailable"))

	resp, err := f.useCase.Start(context.Background(), startRequest())
	require.Error(t, err)

	var critical *flow.CriticalPhaseFailure
	assert.ErrorAs(t, err, &critical)
	require.NotNil(t, resp)
	assert.Equal(t, model.StatusFailed.String(), resp.Status)
}

func TestExpire(t *testing.T) {
	f := newFixture(t, true)
	f.scriptHappyPath()
	ctx := context.Background()

	_, err := f.useCase.Start(ctx, startRequest())
	require.NoError(t, err)

	// Nothing is old enough yet
	removed, err := f.useCase.Expire(ctx, dto.ExpireRequest{RetentionDays: 30})
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func mustFlowID(t *testing.T, id string) model.FlowID {
	t.Helper()
	flowID, err := model.NewFlowIDFromString(id)
	require.NoError(t, err)
	return flowID
}
