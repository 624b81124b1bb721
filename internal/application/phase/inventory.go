package phase

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/application/materializer"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// inventoryBuckets maps the payload keys an inventory result may carry to
// the asset category each bucket materializes as. The agent must return at
// least one of them.
var inventoryBuckets = map[string]asset.Category{
	"servers":      asset.CategoryServer,
	"applications": asset.CategoryApplication,
	"devices":      asset.CategoryDevice,
	"assets":       asset.CategoryGeneric,
}

// InventoryExecutor classifies cleaned records into asset candidates and
// drives the conflict-aware materializer. Not fallback-eligible: its
// output is irreversible entity creation. When collisions are detected the
// phase still completes (with the conflict_resolution_pending sub-flag set)
// so a naive retry cannot re-process the conflict-free subset, and the flow
// pauses for human resolution.
type InventoryExecutor struct {
	Base
	def Definition
	mat *materializer.Materializer
}

// NewInventoryExecutor creates the materialization phase
func NewInventoryExecutor(base Base, mat *materializer.Materializer) *InventoryExecutor {
	return &InventoryExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseInventory,
			FallbackEligible: false,
		},
		mat: mat,
	}
}

// Definition returns the phase properties
func (e *InventoryExecutor) Definition() Definition {
	return e.def
}

// Execute materializes the inventory
func (e *InventoryExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	// The guard matters most here: re-executing a completed
	// materialization would create duplicate entities
	if fs.PhaseCompleted(e.def.Name) {
		return e.previouslyCompleted(e.def), nil
	}

	if err := e.begin(ctx, fs, e.def); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	result, _, err := e.invoke(ctx, fs, e.def, buildInventoryInput(fs))
	if err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	candidates, err := candidatesFromPayload(result.Payload)
	if err != nil {
		return e.fail(ctx, fs, e.def, &flow.CriticalPhaseFailure{
			Phase:  e.def.Name,
			Reason: "agent returned no materializable inventory",
			Err:    err,
		})
	}
	e.recordInsights(fs, e.def, result)

	// Checkpoint writes are suspended across the bulk creation; the
	// completion checkpoint below consolidates them
	matResult, err := e.mat.Materialize(ctx, fs.Tenant(), fs.ID(), candidates)
	if err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	if matResult.AllFailed() {
		return e.fail(ctx, fs, e.def, fmt.Errorf("all %d candidates failed to materialize", len(candidates)))
	}

	summary := summarize(matResult)
	fs.SetInventory(summary)
	for _, d := range matResult.Duplicates {
		fs.AppendWarning(e.def.Name, fmt.Sprintf("candidate %q matches an existing asset; skipped as duplicate", d.Name))
	}

	// The completion checkpoint is critical: entities were just created
	// irreversibly, and losing this write would leave recovery unable to
	// tell that creation happened
	if err := e.complete(ctx, fs, e.def, true); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	if summary.ConflictResolutionPending {
		if err := fs.SetStatus(model.StatusAwaitingApproval); err != nil {
			return e.fail(ctx, fs, e.def, err)
		}
		if err := e.Flows().Update(ctx, fs); err != nil {
			return e.fail(ctx, fs, e.def, &flow.TransientStoreError{Op: "conflict pause checkpoint", Err: err})
		}
		e.emit(fs, e.def.Name, output.EventProgress, fmt.Sprintf("%d conflicts awaiting resolution", summary.Conflicts))
		return &Outcome{
			Phase:  e.def.Name,
			Status: OutcomePaused,
			Detail: fmt.Sprintf("created %d, %d conflicts awaiting resolution", summary.Created, summary.Conflicts),
		}, nil
	}

	return &Outcome{
		Phase:      e.def.Name,
		Status:     OutcomeSucceeded,
		Detail:     fmt.Sprintf("created %d, %d duplicates, %d failed", summary.Created, summary.Duplicates, summary.Failed),
		Confidence: result.Confidence,
	}, nil
}

func buildInventoryInput(fs *flow.FlowState) map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(fs.CleanedRecords()))
	for _, r := range fs.CleanedRecords() {
		records = append(records, map[string]interface{}{
			"row":    r.Row,
			"fields": r.Fields,
		})
	}
	return map[string]interface{}{"records": records}
}

// candidatesFromPayload builds asset candidates from the agent's bucketed
// inventory payload. At least one bucket must be present and non-empty.
func candidatesFromPayload(payload map[string]interface{}) ([]asset.Candidate, error) {
	var candidates []asset.Candidate
	seenBucket := false

	for key, category := range inventoryBuckets {
		items, ok := optionalList(payload, key)
		if !ok {
			continue
		}
		seenBucket = true
		for i, item := range items {
			name := objString(item, "name")
			if name == "" {
				return nil, fmt.Errorf("%s entry %d has no name", key, i)
			}
			candidate, err := asset.NewCandidate(
				name,
				objString(item, "hostname"),
				objString(item, "ip_address"),
				category,
				objStringMap(item, "attributes"),
			)
			if err != nil {
				return nil, fmt.Errorf("%s entry %d: %w", key, i, err)
			}
			candidates = append(candidates, candidate)
		}
	}

	if !seenBucket {
		return nil, fmt.Errorf("payload contains none of servers, applications, devices or assets")
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("payload buckets are all empty")
	}
	return candidates, nil
}

func summarize(r *materializer.Result) *flow.InventorySummary {
	summary := &flow.InventorySummary{
		Created:    len(r.Created),
		Duplicates: len(r.Duplicates),
		Failed:     r.FailedCount,
	}
	for _, a := range r.Created {
		summary.CreatedIDs = append(summary.CreatedIDs, a.ID())
	}

	conflictingCandidates := make(map[string]bool)
	for _, record := range r.Conflicting {
		conflictingCandidates[record.Candidate().TempID] = true
	}
	summary.Conflicts = len(conflictingCandidates)
	summary.ConflictResolutionPending = summary.Conflicts > 0
	return summary
}
