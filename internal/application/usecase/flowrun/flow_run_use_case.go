package flowrun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/application/approval"
	"github.com/YoshitsuguKoike/assetflow/internal/application/dto"
	"github.com/YoshitsuguKoike/assetflow/internal/application/materializer"
	"github.com/YoshitsuguKoike/assetflow/internal/application/phase"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/input"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/conflict"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

const defaultRetentionDays = 30

// Config carries the collaborators and tuning for the flow use case
type Config struct {
	Flows     repository.FlowRepository
	Assets    repository.AssetRepository
	Conflicts repository.ConflictRepository
	Previews  repository.PreviewRepository

	Agent     output.AgentGateway
	Fallback  output.AgentGateway
	Reader    output.ImportSourceReader
	Storage   output.StorageGateway
	TxManager output.TransactionManager
	Notifier  output.Notifier
	Logger    app.Logger

	AutoApproveMappings bool
	ImportTimeout       time.Duration
	RetentionDays       int
}

// pipelineStep is one entry of the execution table: either a single
// executor or a parallel group
type pipelineStep struct {
	single   phase.Executor
	parallel *phase.ParallelGroupExecutor
}

func (s pipelineStep) completed(fs *flow.FlowState) bool {
	if s.parallel != nil {
		for _, p := range s.parallel.Phases() {
			if !fs.PhaseCompleted(p) {
				return false
			}
		}
		return true
	}
	return fs.PhaseCompleted(s.single.Definition().Name)
}

func (s pipelineStep) execute(ctx context.Context, fs *flow.FlowState) (*phase.Outcome, error) {
	if s.parallel != nil {
		return s.parallel.Execute(ctx, fs)
	}
	return s.single.Execute(ctx, fs)
}

// FlowRunUseCase drives the pipeline: it owns the phase table, walks a
// flow through it group by group, and handles the two human pauses
// (field-mapping approval and conflict resolution).
type FlowRunUseCase struct {
	flows     repository.FlowRepository
	assets    repository.AssetRepository
	conflicts repository.ConflictRepository
	gate      *approval.Gate
	reader    output.ImportSourceReader
	storage   output.StorageGateway
	txManager output.TransactionManager
	logger    app.Logger

	approve   *phase.ApproveFieldMappingExecutor
	steps     []pipelineStep
	retention time.Duration
}

// NewFlowRunUseCase wires the phase executors and the execution table
func NewFlowRunUseCase(cfg Config) input.FlowUseCase {
	logger := cfg.Logger
	if logger == nil {
		logger = app.GetLogger()
	}

	gate := approval.NewGate(cfg.Previews, cfg.Flows)
	mat := materializer.NewMaterializer(cfg.Assets, cfg.Conflicts, logger)
	base := phase.NewBase(cfg.Flows, cfg.Agent, cfg.Fallback, cfg.Notifier, logger)

	approve := phase.NewApproveFieldMappingExecutor(base, gate, cfg.AutoApproveMappings)
	dependency := phase.NewDependencyAnalysisExecutor(base)
	debt := phase.NewDebtAnalysisExecutor(base)

	// The two analysis phases are independent and run as one fan-out group
	steps := []pipelineStep{
		{single: phase.NewImportValidationExecutor(base, cfg.ImportTimeout)},
		{single: phase.NewFieldMappingExecutor(base)},
		{single: approve},
		{single: phase.NewDataCleansingExecutor(base)},
		{single: phase.NewInventoryExecutor(base, mat)},
		{parallel: phase.NewParallelGroupExecutor(base, dependency, debt)},
	}

	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = defaultRetentionDays
	}

	return &FlowRunUseCase{
		flows:     cfg.Flows,
		assets:    cfg.Assets,
		conflicts: cfg.Conflicts,
		gate:      gate,
		reader:    cfg.Reader,
		storage:   cfg.Storage,
		txManager: cfg.TxManager,
		logger:    logger,
		approve:   approve,
		steps:     steps,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Start creates a flow for an import source and drives it
func (u *FlowRunUseCase) Start(ctx context.Context, req dto.StartFlowRequest) (*dto.FlowRunResponse, error) {
	tenant, err := model.NewTenant(req.AccountID, req.EngagementID)
	if err != nil {
		return nil, &flow.ValidationFailure{Phase: model.PhaseImportValidation, Reason: err.Error()}
	}

	records, err := u.reader.Read(req.SourcePath)
	if err != nil {
		return nil, &flow.ValidationFailure{
			Phase:  model.PhaseImportValidation,
			Reason: fmt.Sprintf("import source unreadable: %v", err),
		}
	}

	fs, err := flow.NewFlowState(tenant, req.UserID)
	if err != nil {
		return nil, &flow.ValidationFailure{Phase: model.PhaseImportValidation, Reason: err.Error()}
	}
	fs.SetRawRecords(records)

	if err := u.flows.Init(ctx, fs); err != nil {
		return nil, &flow.TransientStoreError{Op: "init flow", Err: err}
	}

	u.archiveImportSnapshot(ctx, fs, records, req.SourcePath)

	return u.drive(ctx, fs)
}

// Resume validates and continues a paused flow
func (u *FlowRunUseCase) Resume(ctx context.Context, req dto.ResumeFlowRequest) (*dto.FlowRunResponse, error) {
	fs, err := u.recover(ctx, req.AccountID, req.EngagementID, req.FlowID)
	if err != nil {
		return nil, err
	}

	// Consistency is checked before any phase runs; a corrupted record
	// surfaces as a structured failure, never a silent repair
	if problems := fs.ValidateConsistency(); len(problems) > 0 {
		return nil, &flow.ValidationFailure{
			Phase:  fs.CurrentPhase(),
			Reason: fmt.Sprintf("persisted state is inconsistent: %v", problems),
		}
	}

	switch fs.Status() {
	case model.StatusPaused:
		if err := fs.SetStatus(model.StatusRunning); err != nil {
			return nil, err
		}
	case model.StatusAwaitingApproval:
		// Re-entering an awaiting flow just re-reports what it waits for
		return u.respond(ctx, fs), nil
	case model.StatusCompleted, model.StatusFailed:
		return nil, &flow.ValidationFailure{
			Phase:  fs.CurrentPhase(),
			Reason: fmt.Sprintf("flow is %s and cannot be resumed", fs.Status()),
		}
	}

	return u.drive(ctx, fs)
}

// Pause stops a running flow at its current phase
func (u *FlowRunUseCase) Pause(ctx context.Context, req dto.PauseFlowRequest) (*dto.FlowRunResponse, error) {
	fs, err := u.recover(ctx, req.AccountID, req.EngagementID, req.FlowID)
	if err != nil {
		return nil, err
	}

	if err := fs.SetStatus(model.StatusPaused); err != nil {
		return nil, &flow.ValidationFailure{Phase: fs.CurrentPhase(), Reason: err.Error()}
	}
	if req.Reason != "" {
		fs.AppendWarning(fs.CurrentPhase(), "paused: "+req.Reason)
	}
	if err := u.flows.Update(ctx, fs); err != nil {
		return nil, &flow.TransientStoreError{Op: "pause checkpoint", Err: err}
	}

	return u.respond(ctx, fs), nil
}

// SubmitApproval delivers a field-mapping decision and continues the flow
func (u *FlowRunUseCase) SubmitApproval(ctx context.Context, req dto.ApprovalRequest) (*dto.FlowRunResponse, error) {
	fs, err := u.recover(ctx, req.AccountID, req.EngagementID, req.FlowID)
	if err != nil {
		return nil, err
	}
	if fs.Status() != model.StatusAwaitingApproval {
		return nil, &flow.ValidationFailure{
			Phase:  fs.CurrentPhase(),
			Reason: fmt.Sprintf("flow is %s, not awaiting approval", fs.Status()),
		}
	}

	decision := preview.Decision{ApprovedIDs: req.ApprovedIDs, Edits: req.Edits}
	approved, err := u.gate.SubmitDecision(ctx, fs, approval.GateFieldMapping, decision)
	if err != nil {
		return nil, err
	}

	if err := fs.SetStatus(model.StatusRunning); err != nil {
		return nil, err
	}
	if _, err := u.approve.ApplyDecision(ctx, fs, approved); err != nil {
		return u.finishFailed(ctx, fs, err)
	}

	return u.drive(ctx, fs)
}

// SubmitConflictResolutions applies human decisions to the pending
// conflict set. The whole batch lands in one transaction; the flow
// continues only once no conflicts remain.
func (u *FlowRunUseCase) SubmitConflictResolutions(ctx context.Context, req dto.ConflictResolutionsRequest) (*dto.FlowRunResponse, error) {
	fs, err := u.recover(ctx, req.AccountID, req.EngagementID, req.FlowID)
	if err != nil {
		return nil, err
	}
	if !fs.ConflictResolutionPending() {
		return nil, &flow.ValidationFailure{
			Phase:  model.PhaseInventory,
			Reason: "flow has no conflicts awaiting resolution",
		}
	}

	var createdIDs []string
	err = u.txManager.InTransaction(ctx, func(txCtx context.Context) error {
		for _, res := range req.Resolutions {
			created, err := u.applyResolution(txCtx, fs, res)
			if err != nil {
				return err
			}
			if created != "" {
				createdIDs = append(createdIDs, created)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	remaining, err := u.conflicts.CountPending(ctx, fs.Tenant(), fs.ID())
	if err != nil {
		return nil, &flow.TransientStoreError{Op: "count pending conflicts", Err: err}
	}

	// Fold the late creations into the stored summary
	summary := *fs.Inventory()
	summary.Created += len(createdIDs)
	summary.CreatedIDs = append(summary.CreatedIDs, createdIDs...)
	summary.ConflictResolutionPending = remaining > 0
	fs.SetInventory(&summary)

	if remaining > 0 {
		if err := u.flows.Update(ctx, fs); err != nil {
			return nil, &flow.TransientStoreError{Op: "resolution checkpoint", Err: err}
		}
		return u.respond(ctx, fs), nil
	}

	if err := fs.SetStatus(model.StatusRunning); err != nil {
		return nil, err
	}
	return u.drive(ctx, fs)
}

// Status reports the state of one run
func (u *FlowRunUseCase) Status(ctx context.Context, req dto.FlowStatusRequest) (*dto.FlowStatusResponse, error) {
	fs, err := u.recover(ctx, req.AccountID, req.EngagementID, req.FlowID)
	if err != nil {
		return nil, err
	}

	resp := u.project(ctx, fs)
	if req.Verify {
		report, err := u.flows.ValidateIntegrity(ctx, fs.Tenant(), fs.ID())
		if err != nil {
			return nil, err
		}
		resp.Integrity = &dto.IntegrityDTO{
			Valid:    report.Valid,
			Errors:   report.Errors,
			Warnings: report.Warnings,
		}
	}
	return resp, nil
}

// Expire removes stale flows past the retention window along with their
// stored artifacts
func (u *FlowRunUseCase) Expire(ctx context.Context, req dto.ExpireRequest) (int, error) {
	retention := u.retention
	if req.RetentionDays > 0 {
		retention = time.Duration(req.RetentionDays) * 24 * time.Hour
	}

	removed, err := u.flows.ExpireStale(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}

	// Artifact cleanup is best-effort: the flows are already gone, so a
	// storage failure only leaves orphaned files behind
	for _, id := range removed {
		if err := u.storage.DeleteArtifacts(ctx, id.String()); err != nil {
			u.logger.Warn("delete artifacts for expired flow %s: %v", id, err)
		}
	}
	return len(removed), nil
}

// drive advances the flow through the phase table until it completes,
// fails, or pauses for a human decision
func (u *FlowRunUseCase) drive(ctx context.Context, fs *flow.FlowState) (*dto.FlowRunResponse, error) {
	for _, step := range u.steps {
		// A completed materialization with conflicts still pending holds
		// the pipeline at the gate even though the phase flag is set. A
		// resumed flow re-enters here as running; the hold is checkpointed
		// so the stored status matches what the caller is told.
		if fs.ConflictResolutionPending() {
			if fs.Status() == model.StatusRunning {
				if err := fs.SetStatus(model.StatusAwaitingApproval); err != nil {
					return nil, err
				}
				if err := u.flows.Update(ctx, fs); err != nil {
					return nil, &flow.TransientStoreError{Op: "conflict hold checkpoint", Err: err}
				}
			}
			return u.respond(ctx, fs), nil
		}
		if step.completed(fs) {
			continue
		}

		outcome, err := step.execute(ctx, fs)
		if err != nil {
			return u.finishFailed(ctx, fs, err)
		}
		if outcome.Paused() {
			return u.respond(ctx, fs), nil
		}
	}

	return u.finishCompleted(ctx, fs)
}

// finishCompleted terminates the run successfully and archives the
// completion report
func (u *FlowRunUseCase) finishCompleted(ctx context.Context, fs *flow.FlowState) (*dto.FlowRunResponse, error) {
	if err := fs.MarkCompleted(); err != nil {
		return nil, err
	}
	if err := u.flows.Update(ctx, fs); err != nil {
		return nil, &flow.TransientStoreError{Op: "completion checkpoint", Err: err}
	}

	u.archiveReport(ctx, fs)
	return u.respond(ctx, fs), nil
}

// finishFailed classifies the cause: validation failures leave the flow
// paused and resumable with corrected input, everything else is terminal
func (u *FlowRunUseCase) finishFailed(ctx context.Context, fs *flow.FlowState, cause error) (*dto.FlowRunResponse, error) {
	var validation *flow.ValidationFailure
	if errors.As(cause, &validation) && !fs.Status().IsTerminal() {
		if err := fs.SetStatus(model.StatusPaused); err != nil {
			u.logger.Warn("could not pause flow %s after validation failure: %v", fs.ID(), err)
		}
	} else if !fs.Status().IsTerminal() {
		if err := fs.MarkFailed(); err != nil {
			u.logger.Warn("could not mark flow %s failed: %v", fs.ID(), err)
		}
	}

	if err := u.flows.Update(ctx, fs); err != nil {
		u.logger.Warn("failure checkpoint for flow %s failed: %v", fs.ID(), err)
	}
	return u.respond(ctx, fs), cause
}

// applyResolution executes one conflict decision. Returns the created
// asset ID when the decision materializes the candidate.
func (u *FlowRunUseCase) applyResolution(ctx context.Context, fs *flow.FlowState, res dto.ConflictResolutionDTO) (string, error) {
	rec, err := u.conflicts.FindByID(ctx, fs.Tenant(), res.ConflictID)
	if err != nil {
		return "", &flow.ValidationFailure{
			Phase:  model.PhaseInventory,
			Reason: fmt.Sprintf("conflict %s: %v", res.ConflictID, err),
		}
	}
	if !rec.FlowID().Equals(fs.ID()) {
		return "", &flow.ValidationFailure{
			Phase:  model.PhaseInventory,
			Reason: fmt.Sprintf("conflict %s belongs to a different flow", res.ConflictID),
		}
	}

	decision := conflict.Resolution(res.Resolution)
	if err := rec.Resolve(decision); err != nil {
		return "", &flow.ValidationFailure{Phase: model.PhaseInventory, Reason: err.Error()}
	}

	var createdID string
	switch decision {
	case conflict.ResolutionKeepExisting:
		// Candidate is dropped; nothing to create
	case conflict.ResolutionCreateAnyway, conflict.ResolutionMergeCandidate:
		candidate := rec.Candidate()
		if len(res.Edits) > 0 {
			merged := preview.MergeEdits(candidate.Fields(), res.Edits)
			candidate = asset.CandidateFromFields(candidate.TempID, merged)
		}
		created, err := asset.NewAsset(fs.Tenant(), fs.ID(), candidate)
		if err != nil {
			return "", &flow.ValidationFailure{Phase: model.PhaseInventory, Reason: err.Error()}
		}
		if err := u.assets.Create(ctx, created); err != nil {
			return "", &flow.TransientStoreError{Op: "create resolved asset", Err: err}
		}
		createdID = created.ID()
	}

	if err := u.conflicts.Update(ctx, rec); err != nil {
		return "", &flow.TransientStoreError{Op: "update conflict", Err: err}
	}
	return createdID, nil
}

func (u *FlowRunUseCase) recover(ctx context.Context, accountID, engagementID, flowID string) (*flow.FlowState, error) {
	tenant, err := model.NewTenant(accountID, engagementID)
	if err != nil {
		return nil, &flow.ValidationFailure{Phase: model.PhaseImportValidation, Reason: err.Error()}
	}
	id, err := model.NewFlowIDFromString(flowID)
	if err != nil {
		return nil, &flow.ValidationFailure{Phase: model.PhaseImportValidation, Reason: fmt.Sprintf("invalid flow ID: %v", err)}
	}

	fs, err := u.flows.Recover(ctx, tenant, id)
	if err != nil {
		return nil, &flow.TransientStoreError{Op: "recover flow", Err: err}
	}
	if fs == nil {
		return nil, fmt.Errorf("flow not found: %s", flowID)
	}
	return fs, nil
}

// respond projects the run into the compact response used by run-style
// operations. Pending counts are best-effort reads.
func (u *FlowRunUseCase) respond(ctx context.Context, fs *flow.FlowState) *dto.FlowRunResponse {
	resp := &dto.FlowRunResponse{
		FlowID:       fs.ID().String(),
		Status:       fs.Status().String(),
		CurrentPhase: fs.CurrentPhase().String(),
		Progress:     fs.Progress(),
		Summary:      summarize(fs),
	}

	if inv := fs.Inventory(); inv != nil {
		resp.Created = inv.Created
		resp.Duplicates = inv.Duplicates
		resp.Failed = inv.Failed
	}

	if fs.ConflictResolutionPending() {
		if count, err := u.conflicts.CountPending(ctx, fs.Tenant(), fs.ID()); err == nil {
			resp.PendingConflicts = count
		}
	} else if fs.Status() == model.StatusAwaitingApproval {
		if pending, err := u.gate.Pending(ctx, fs, approval.GateFieldMapping); err == nil {
			resp.PendingApprovals = len(pending)
		}
	}
	return resp
}

// project builds the full status projection
func (u *FlowRunUseCase) project(ctx context.Context, fs *flow.FlowState) *dto.FlowStatusResponse {
	run := u.respond(ctx, fs)

	completion := make(map[string]bool, len(model.AllPhases()))
	for p, done := range fs.PhaseCompletion() {
		completion[p.String()] = done
	}

	resp := &dto.FlowStatusResponse{
		FlowID:          run.FlowID,
		AccountID:       fs.Tenant().AccountID(),
		EngagementID:    fs.Tenant().EngagementID(),
		UserID:          fs.UserID(),
		Status:          run.Status,
		CurrentPhase:    run.CurrentPhase,
		Progress:        run.Progress,
		PhaseCompletion: completion,
		Summary:         run.Summary,
		PendingApproval: run.PendingApprovals,
		PendingConflict: run.PendingConflicts,
		Created:         run.Created,
		Duplicates:      run.Duplicates,
		Failed:          run.Failed,
		StartedAt:       fs.StartedAt().String(),
		UpdatedAt:       fs.UpdatedAt().String(),
	}
	if fs.CompletedAt() != nil {
		resp.CompletedAt = fs.CompletedAt().String()
	}

	for _, d := range fs.Errors() {
		resp.Errors = append(resp.Errors, diagnosticDTO(d))
	}
	for _, d := range fs.Warnings() {
		resp.Warnings = append(resp.Warnings, diagnosticDTO(d))
	}
	for _, i := range fs.Insights() {
		resp.Insights = append(resp.Insights, dto.InsightDTO{
			Phase:      i.Phase.String(),
			Insight:    i.Insight,
			Confidence: i.Confidence,
			At:         i.At.Format(time.RFC3339),
		})
	}
	return resp
}

func diagnosticDTO(d flow.Diagnostic) dto.DiagnosticDTO {
	return dto.DiagnosticDTO{
		Phase:   d.Phase.String(),
		Message: d.Message,
		At:      d.At.Format(time.RFC3339),
	}
}

// summarize words the outcome for humans
func summarize(fs *flow.FlowState) string {
	switch fs.Status() {
	case model.StatusFailed:
		return "failed"
	case model.StatusAwaitingApproval:
		if fs.ConflictResolutionPending() {
			return "awaiting conflict resolution"
		}
		return "awaiting field-mapping approval"
	case model.StatusPaused:
		return "paused"
	case model.StatusCompleted:
		inv := fs.Inventory()
		if inv == nil {
			return "completed"
		}
		if inv.Failed > 0 {
			return fmt.Sprintf("partially succeeded: %d created, %d failed", inv.Created, inv.Failed)
		}
		if inv.Duplicates > 0 {
			return fmt.Sprintf("partially succeeded with duplicates: %d created, %d skipped", inv.Created, inv.Duplicates)
		}
		return fmt.Sprintf("fully succeeded: %d assets created", inv.Created)
	default:
		return string(fs.Status())
	}
}

// archiveImportSnapshot stores the parsed import as an artifact. Failures
// are logged; archival never blocks the pipeline.
func (u *FlowRunUseCase) archiveImportSnapshot(ctx context.Context, fs *flow.FlowState, records []flow.RawRecord, sourcePath string) {
	if u.storage == nil {
		return
	}
	content, err := json.Marshal(records)
	if err != nil {
		u.logger.Warn("marshal import snapshot failed: %v", err)
		return
	}
	_, err = u.storage.SaveArtifact(ctx, output.SaveArtifactRequest{
		FlowID:       fs.ID().String(),
		ArtifactType: output.ArtifactTypeImportSnapshot,
		Content:      content,
		ContentType:  "application/json",
		Metadata: map[string]string{
			"source_path": sourcePath,
			"account_id":  fs.Tenant().AccountID(),
		},
	})
	if err != nil {
		u.logger.Warn("archive import snapshot for %s failed: %v", fs.ID(), err)
	}
}

// archiveReport stores the completion report as an artifact
func (u *FlowRunUseCase) archiveReport(ctx context.Context, fs *flow.FlowState) {
	if u.storage == nil {
		return
	}
	report := map[string]interface{}{
		"flow_id":   fs.ID().String(),
		"status":    fs.Status().String(),
		"summary":   summarize(fs),
		"inventory": fs.Inventory(),
		"graph":     fs.DependencyGraph(),
		"debt":      fs.DebtReport(),
		"warnings":  fs.Warnings(),
	}
	content, err := json.Marshal(report)
	if err != nil {
		u.logger.Warn("marshal completion report failed: %v", err)
		return
	}
	_, err = u.storage.SaveArtifact(ctx, output.SaveArtifactRequest{
		FlowID:       fs.ID().String(),
		ArtifactType: output.ArtifactTypeReport,
		Content:      content,
		ContentType:  "application/json",
	})
	if err != nil {
		u.logger.Warn("archive completion report for %s failed: %v", fs.ID(), err)
	}
}
