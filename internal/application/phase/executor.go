package phase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

// OutcomeStatus classifies how a phase execution ended
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeDegraded  OutcomeStatus = "degraded"
	OutcomePaused    OutcomeStatus = "paused"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome is the result of executing one phase
type Outcome struct {
	Phase      model.Phase
	Status     OutcomeStatus
	Detail     string
	Confidence float64
}

// Paused reports whether the phase stopped for a human decision
func (o *Outcome) Paused() bool {
	return o.Status == OutcomePaused
}

// Definition declares a phase's fixed execution properties. Fallback
// eligibility is a declared property, never inferred from code paths:
// phases whose output feeds irreversible materialization must not be
// eligible.
type Definition struct {
	Name             model.Phase
	FallbackEligible bool
	Timeout          time.Duration // zero means no engine-imposed bound
}

// Executor runs one named phase against a FlowState
type Executor interface {
	Definition() Definition
	Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error)
}

// criticalCheckpointRetries bounds retry of the completion checkpoint of a
// phase that performed irreversible work; losing that write would make the
// pipeline unable to tell, on restart, whether creation already happened.
const criticalCheckpointRetries = 3

// Base carries the collaborators shared by all phase executors and
// implements the template steps: start checkpoint, agent invocation with
// declared fallback policy, completion checkpoint, failure recording.
type Base struct {
	flows    repository.FlowRepository
	agent    output.AgentGateway
	fallback output.AgentGateway // nil unless the phase declares eligibility
	notifier output.Notifier
	logger   app.Logger
}

// NewBase creates the shared executor plumbing
func NewBase(flows repository.FlowRepository, agent output.AgentGateway, fallback output.AgentGateway, notifier output.Notifier, logger app.Logger) Base {
	if logger == nil {
		logger = app.GetLogger()
	}
	return Base{flows: flows, agent: agent, fallback: fallback, notifier: notifier, logger: logger}
}

// Flows exposes the flow repository to concrete executors
func (b *Base) Flows() repository.FlowRepository {
	return b.flows
}

// begin marks the phase current and writes the phase-start checkpoint so a
// crash mid-phase is observable on recovery as "started, not completed".
// A start-checkpoint failure is a warning, not a phase failure.
func (b *Base) begin(ctx context.Context, fs *flow.FlowState, def Definition) error {
	if err := fs.BeginPhase(def.Name); err != nil {
		return err
	}
	if fs.Status() == model.StatusInitializing {
		if err := fs.SetStatus(model.StatusRunning); err != nil {
			return err
		}
	}
	if err := b.flows.Update(ctx, fs); err != nil {
		b.logger.Warn("phase-start checkpoint for %s failed: %v", def.Name, err)
	}
	b.emit(fs, def.Name, output.EventPhaseStart, "phase started")
	return nil
}

// complete sets the completion flag and writes the completion checkpoint.
// When the phase performed irreversible creation the checkpoint is
// critical: it is retried and, if still failing, escalated.
func (b *Base) complete(ctx context.Context, fs *flow.FlowState, def Definition, critical bool) error {
	if err := fs.CompletePhase(def.Name); err != nil {
		return err
	}

	var lastErr error
	attempts := 1
	if critical {
		attempts = criticalCheckpointRetries
	}
	for i := 0; i < attempts; i++ {
		if lastErr = b.flows.Update(ctx, fs); lastErr == nil {
			b.emit(fs, def.Name, output.EventCompletion, "phase completed")
			return nil
		}
		b.logger.Warn("completion checkpoint for %s failed (attempt %d/%d): %v", def.Name, i+1, attempts, lastErr)
		time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
	}

	if critical {
		return &flow.TransientStoreError{Op: fmt.Sprintf("%s completion checkpoint", def.Name), Err: lastErr}
	}
	// Non-critical checkpoint failure does not fail the phase
	return nil
}

// fail records the failure on the FlowState, writes the failure checkpoint
// and returns a failed outcome alongside the causal error. The orchestrator
// does not retry; failure is terminal for the run unless a human resumes
// with corrected input.
func (b *Base) fail(ctx context.Context, fs *flow.FlowState, def Definition, cause error) (*Outcome, error) {
	fs.AppendError(def.Name, cause.Error())
	if err := b.flows.Update(ctx, fs); err != nil {
		b.logger.Warn("failure checkpoint for %s failed: %v", def.Name, err)
	}
	b.emit(fs, def.Name, output.EventError, cause.Error())
	return &Outcome{Phase: def.Name, Status: OutcomeFailed, Detail: cause.Error()}, cause
}

// previouslyCompleted is the idempotency guard: a phase whose completion
// flag is already set returns its stored result and performs no side
// effects, which prevents duplicate entity creation when a paused flow is
// re-entered by an automatic re-execution trigger.
func (b *Base) previouslyCompleted(def Definition) *Outcome {
	return &Outcome{
		Phase:      def.Name,
		Status:     OutcomeSucceeded,
		Detail:     "previously completed; returning stored result",
		Confidence: 1.0,
	}
}

// invoke calls the Phase Agent, applying the phase's declared timeout and
// fallback policy. The degraded flag reports that the deterministic
// fallback produced the result.
func (b *Base) invoke(ctx context.Context, fs *flow.FlowState, def Definition, input map[string]interface{}) (*output.AgentResult, bool, error) {
	invocationCtx := ctx
	if def.Timeout > 0 {
		var cancel context.CancelFunc
		invocationCtx, cancel = context.WithTimeout(ctx, def.Timeout)
		defer cancel()
	}

	req := output.AgentRequest{
		Phase:   def.Name.String(),
		Input:   input,
		Timeout: def.Timeout,
		Context: map[string]string{
			"flow_id":       fs.ID().String(),
			"account_id":    fs.Tenant().AccountID(),
			"engagement_id": fs.Tenant().EngagementID(),
		},
	}

	result, err := b.agent.Invoke(invocationCtx, req)
	if err == nil {
		return result, false, nil
	}

	if !def.FallbackEligible || b.fallback == nil {
		return nil, false, &flow.CriticalPhaseFailure{
			Phase:  def.Name,
			Reason: "phase agent did not return a valid result and the phase is not fallback-eligible",
			Err:    err,
		}
	}

	b.logger.Warn("agent failed for %s, using deterministic fallback: %v", def.Name, err)
	result, fbErr := b.fallback.Invoke(ctx, req)
	if fbErr != nil {
		return nil, false, &flow.CriticalPhaseFailure{
			Phase:  def.Name,
			Reason: "both phase agent and fallback failed",
			Err:    errors.Join(err, fbErr),
		}
	}
	return result, true, nil
}

// recordDegradation marks a fallback result on the FlowState
func (b *Base) recordDegradation(fs *flow.FlowState, def Definition, reason string) {
	degradation := &flow.AdvisoryDegradation{Phase: def.Name, Reason: reason}
	fs.AppendWarning(def.Name, degradation.Error())
}

// recordInsights appends agent insights and broadcasts them best-effort
func (b *Base) recordInsights(fs *flow.FlowState, def Definition, result *output.AgentResult) {
	for _, insight := range result.Insights {
		fs.AppendInsight(flow.NewAgentInsight(def.Name, insight, result.Confidence))
		b.emit(fs, def.Name, output.EventInsight, insight)
	}
}

// emit sends a best-effort observability event; emission failures are
// logged and never reach the flow's error state
func (b *Base) emit(fs *flow.FlowState, phase model.Phase, kind output.EventKind, message string) {
	if b.notifier == nil {
		return
	}
	event := output.Event{
		FlowID:  fs.ID().String(),
		Phase:   phase.String(),
		Kind:    kind,
		Message: message,
		At:      time.Now(),
		Metadata: map[string]string{
			"account_id":    fs.Tenant().AccountID(),
			"engagement_id": fs.Tenant().EngagementID(),
		},
	}
	if err := b.notifier.Emit(event); err != nil {
		b.logger.Warn("event emission failed for %s: %v", phase, err)
	}
}

// runAgentPhase is the shared template for phases whose work is one agent
// invocation interpreted into a FlowState payload: idempotency guard,
// start checkpoint, invocation with fallback policy, interpretation,
// completion checkpoint.
func (b *Base) runAgentPhase(
	ctx context.Context,
	fs *flow.FlowState,
	def Definition,
	buildInput func(fs *flow.FlowState) map[string]interface{},
	interpret func(fs *flow.FlowState, result *output.AgentResult, degraded bool) error,
) (*Outcome, error) {
	if fs.PhaseCompleted(def.Name) {
		return b.previouslyCompleted(def), nil
	}

	if err := b.begin(ctx, fs, def); err != nil {
		return b.fail(ctx, fs, def, err)
	}

	input := buildInput(fs)
	result, degraded, err := b.invoke(ctx, fs, def, input)
	if err != nil {
		return b.fail(ctx, fs, def, err)
	}

	if interpErr := interpret(fs, result, degraded); interpErr != nil {
		// A malformed agent payload counts as an agent failure. For a
		// fallback-eligible phase the deterministic substitute gets one
		// chance before the phase fails.
		if degraded || !def.FallbackEligible || b.fallback == nil {
			return b.fail(ctx, fs, def, interpErr)
		}
		b.logger.Warn("agent payload for %s rejected, using deterministic fallback: %v", def.Name, interpErr)
		fbResult, fbErr := b.fallback.Invoke(ctx, output.AgentRequest{
			Phase: def.Name.String(),
			Input: input,
		})
		if fbErr != nil {
			return b.fail(ctx, fs, def, &flow.CriticalPhaseFailure{
				Phase:  def.Name,
				Reason: "agent payload invalid and fallback failed",
				Err:    errors.Join(interpErr, fbErr),
			})
		}
		if err := interpret(fs, fbResult, true); err != nil {
			return b.fail(ctx, fs, def, err)
		}
		result = fbResult
		degraded = true
	}

	b.recordInsights(fs, def, result)
	if degraded {
		b.recordDegradation(fs, def, "phase agent unavailable")
	}

	if err := b.complete(ctx, fs, def, false); err != nil {
		return b.fail(ctx, fs, def, err)
	}

	status := OutcomeSucceeded
	if degraded {
		status = OutcomeDegraded
	}
	return &Outcome{Phase: def.Name, Status: status, Confidence: result.Confidence}, nil
}
