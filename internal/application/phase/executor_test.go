package phase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

// stubAgent is a minimal scriptable gateway for exercising the executor
// template without the adapter layer
type stubAgent struct {
	mu      sync.Mutex
	payload map[string]interface{}
	err     error
	calls   int
	name    string
}

func (s *stubAgent) Invoke(_ context.Context, _ output.AgentRequest) (*output.AgentResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &output.AgentResult{Payload: s.payload, Confidence: 0.9, AgentType: s.name}, nil
}

func (s *stubAgent) AgentType() string { return s.name }

func (s *stubAgent) HealthCheck(context.Context) error { return nil }

func (s *stubAgent) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memFlowRepo struct {
	mu        sync.Mutex
	updates   int
	updateErr error
}

func (r *memFlowRepo) Init(context.Context, *flow.FlowState) error { return nil }

func (r *memFlowRepo) Update(context.Context, *flow.FlowState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	return r.updateErr
}

func (r *memFlowRepo) Recover(context.Context, model.Tenant, model.FlowID) (*flow.FlowState, error) {
	return nil, nil
}

func (r *memFlowRepo) ValidateIntegrity(context.Context, model.Tenant, model.FlowID) (*repository.IntegrityReport, error) {
	return &repository.IntegrityReport{Valid: true}, nil
}

func (r *memFlowRepo) ExpireStale(context.Context, time.Time) ([]model.FlowID, error) {
	return nil, nil
}

func (r *memFlowRepo) List(context.Context, model.Tenant, int) ([]*flow.FlowState, error) {
	return nil, nil
}

func runningFlow(t *testing.T) *flow.FlowState {
	t.Helper()
	tenant, err := model.NewTenant("acct-001", "eng-001")
	require.NoError(t, err)
	fs, err := flow.NewFlowState(tenant, "user-001")
	require.NoError(t, err)
	fs.SetRawRecords([]flow.RawRecord{
		{Row: 1, Fields: map[string]string{"Server Name": "web-01", "IP Address": "10.0.1.15"}},
		{Row: 2, Fields: map[string]string{"Server Name": "web-02", "IP Address": "10.0.1.16"}},
	})
	require.NoError(t, fs.SetStatus(model.StatusRunning))
	return fs
}

func mappingsPayload() map[string]interface{} {
	return map[string]interface{}{
		"mappings": []interface{}{
			map[string]interface{}{"source_column": "Server Name", "target_field": "name", "confidence": 0.95},
			map[string]interface{}{"source_column": "IP Address", "target_field": "ip_address", "confidence": 0.95},
		},
	}
}

func TestFieldMapping_AgentPath(t *testing.T) {
	flows := &memFlowRepo{}
	agent := &stubAgent{name: "mock", payload: mappingsPayload()}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, nil, nil, nil))
	fs := runningFlow(t)

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.True(t, fs.PhaseCompleted(model.PhaseFieldMapping))
	require.Len(t, fs.FieldMappings(), 2)
	assert.Equal(t, flow.MappingMethodAgent, fs.FieldMappings()[0].Method)
	assert.GreaterOrEqual(t, flows.updates, 2, "start and completion checkpoints")
}

func TestFieldMapping_PreviouslyCompletedSkipsAgent(t *testing.T) {
	flows := &memFlowRepo{}
	agent := &stubAgent{name: "mock", payload: mappingsPayload()}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, nil, nil, nil))
	fs := runningFlow(t)
	fs.SetFieldMappings([]flow.FieldMapping{{SourceColumn: "Server Name", TargetField: "name"}})
	require.NoError(t, fs.CompletePhase(model.PhaseFieldMapping))

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	assert.Contains(t, outcome.Detail, "previously completed")
	assert.Equal(t, 0, agent.callCount(), "a completed phase must not re-invoke the agent")
}

func TestFieldMapping_FallsBackWhenAgentFails(t *testing.T) {
	flows := &memFlowRepo{}
	agent := &stubAgent{name: "claude-cli", err: errors.New("agent process exited 1")}
	fallback := &stubAgent{name: "rules", payload: mappingsPayload()}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, fallback, nil, nil))
	fs := runningFlow(t)

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDegraded, outcome.Status)
	assert.Equal(t, 1, fallback.callCount())
	assert.True(t, fs.PhaseCompleted(model.PhaseFieldMapping))
	require.NotEmpty(t, fs.Warnings(), "degradation is recorded as a warning")
}

func TestFieldMapping_BothAgentsFail(t *testing.T) {
	flows := &memFlowRepo{}
	agent := &stubAgent{name: "claude-cli", err: errors.New("agent down")}
	fallback := &stubAgent{name: "rules", err: errors.New("rules panic")}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, fallback, nil, nil))
	fs := runningFlow(t)

	outcome, err := exec.Execute(context.Background(), fs)
	require.Error(t, err)

	var critical *flow.CriticalPhaseFailure
	assert.ErrorAs(t, err, &critical)
	assert.Equal(t, OutcomeFailed, outcome.Status)
	assert.False(t, fs.PhaseCompleted(model.PhaseFieldMapping))
	require.NotEmpty(t, fs.Errors())
}

func TestFieldMapping_MalformedPayloadTriggersFallback(t *testing.T) {
	flows := &memFlowRepo{}
	agent := &stubAgent{name: "claude-cli", payload: map[string]interface{}{"mappings": "not a list"}}
	fallback := &stubAgent{name: "rules", payload: mappingsPayload()}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, fallback, nil, nil))
	fs := runningFlow(t)

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, OutcomeDegraded, outcome.Status)
	assert.Equal(t, 1, fallback.callCount())
	assert.True(t, fs.PhaseCompleted(model.PhaseFieldMapping))
}

func TestImportValidation(t *testing.T) {
	flows := &memFlowRepo{}
	exec := NewImportValidationExecutor(NewBase(flows, nil, nil, nil, nil), time.Minute)
	fs := runningFlow(t)
	fs.SetRawRecords([]flow.RawRecord{
		{Row: 1, Fields: map[string]string{"name": "web-01"}},
		{Row: 2, Fields: map[string]string{"name": "   "}},
		{Row: 3, Fields: map[string]string{"name": "=HYPERLINK(evil)"}},
	})

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, OutcomeSucceeded, outcome.Status)
	require.Len(t, fs.RawRecords(), 2, "the blank row is rejected")
	assert.Equal(t, "HYPERLINK(evil)", fs.RawRecords()[1].Fields["name"], "formula prefixes are stripped")
	require.NotEmpty(t, fs.Warnings())
}

func TestImportValidation_AllRecordsInvalid(t *testing.T) {
	flows := &memFlowRepo{}
	exec := NewImportValidationExecutor(NewBase(flows, nil, nil, nil, nil), time.Minute)
	fs := runningFlow(t)
	fs.SetRawRecords([]flow.RawRecord{{Row: 1, Fields: map[string]string{}}})

	outcome, err := exec.Execute(context.Background(), fs)
	require.Error(t, err)

	var validation *flow.ValidationFailure
	assert.ErrorAs(t, err, &validation)
	assert.Equal(t, OutcomeFailed, outcome.Status)
}

func TestImportValidation_EmptyBatch(t *testing.T) {
	flows := &memFlowRepo{}
	exec := NewImportValidationExecutor(NewBase(flows, nil, nil, nil, nil), time.Minute)
	fs := runningFlow(t)
	fs.SetRawRecords([]flow.RawRecord{})

	_, err := exec.Execute(context.Background(), fs)
	require.Error(t, err)

	var validation *flow.ValidationFailure
	assert.ErrorAs(t, err, &validation)
}

func TestStartCheckpointFailureIsNotFatal(t *testing.T) {
	flows := &memFlowRepo{updateErr: errors.New("transient")}
	agent := &stubAgent{name: "mock", payload: mappingsPayload()}
	exec := NewFieldMappingExecutor(NewBase(flows, agent, nil, nil, nil))
	fs := runningFlow(t)

	outcome, err := exec.Execute(context.Background(), fs)
	require.NoError(t, err, "checkpoint failures on a recomputable phase are warnings")
	assert.Equal(t, OutcomeSucceeded, outcome.Status)
}
