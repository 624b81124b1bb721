package approval

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
)

// Gate names for the two approval-gated phases
const (
	GateFieldMapping = "field_mapping"
	GateConflict     = "asset_conflict"
)

// Gate is the reusable pause/resume primitive for phases that need a
// human decision before continuing. RequestApproval persists the preview
// set and returns immediately; the flow then stays in awaiting_approval
// until SubmitDecision arrives. There is no timeout: approval is a human
// workflow step, not a service-level agreement.
type Gate struct {
	previews repository.PreviewRepository
	flows    repository.FlowRepository
}

// NewGate creates an approval gate
func NewGate(previews repository.PreviewRepository, flows repository.FlowRepository) *Gate {
	return &Gate{previews: previews, flows: flows}
}

// RequestApproval persists the candidate previews for a gate, moves the
// flow to awaiting_approval and checkpoints it. It does not block; the
// returned token identifies the pending preview set.
func (g *Gate) RequestApproval(ctx context.Context, fs *flow.FlowState, gate string, records []preview.Record) (string, error) {
	if len(records) == 0 {
		return "", fmt.Errorf("approval requested with no candidates for gate %s", gate)
	}

	if err := g.previews.SaveSet(ctx, fs.Tenant(), fs.ID(), gate, records); err != nil {
		return "", fmt.Errorf("save preview set: %w", err)
	}

	if fs.Status() != model.StatusAwaitingApproval {
		if err := fs.SetStatus(model.StatusAwaitingApproval); err != nil {
			return "", err
		}
	}
	if err := g.flows.Update(ctx, fs); err != nil {
		return "", &flow.TransientStoreError{Op: "approval checkpoint", Err: err}
	}

	return previewToken(fs.ID(), gate), nil
}

// Pending returns the stored preview set for a gate
func (g *Gate) Pending(ctx context.Context, fs *flow.FlowState, gate string) ([]preview.Record, error) {
	return g.previews.LoadSet(ctx, fs.Tenant(), fs.ID(), gate)
}

// SubmitDecision merges the decision's edits over the stored candidates
// (edited fields win), filters to the approved IDs, consumes the preview
// set and returns the effective records for the gated phase to resume
// with. Approved IDs that match no stored candidate fail the decision.
func (g *Gate) SubmitDecision(ctx context.Context, fs *flow.FlowState, gate string, decision preview.Decision) ([]preview.Record, error) {
	if err := decision.Validate(); err != nil {
		return nil, &flow.ValidationFailure{Phase: fs.CurrentPhase(), Reason: err.Error()}
	}

	stored, err := g.previews.LoadSet(ctx, fs.Tenant(), fs.ID(), gate)
	if err != nil {
		return nil, fmt.Errorf("load preview set: %w", err)
	}
	if len(stored) == 0 {
		return nil, &flow.ValidationFailure{
			Phase:  fs.CurrentPhase(),
			Reason: fmt.Sprintf("no pending approval for gate %s", gate),
		}
	}

	byID := make(map[string]preview.Record, len(stored))
	for _, r := range stored {
		byID[r.TempID] = r
	}

	var approved []preview.Record
	for _, id := range decision.ApprovedIDs {
		record, ok := byID[id]
		if !ok {
			return nil, &flow.ValidationFailure{
				Phase:  fs.CurrentPhase(),
				Reason: fmt.Sprintf("approved ID %s matches no pending candidate", id),
			}
		}
		if edits, ok := decision.Edits[id]; ok {
			record.UserEdit = edits
			record.Fields = preview.MergeEdits(record.Fields, edits)
		}
		approved = append(approved, record)
	}

	if err := g.previews.DeleteSet(ctx, fs.Tenant(), fs.ID(), gate); err != nil {
		return nil, fmt.Errorf("consume preview set: %w", err)
	}

	return approved, nil
}

func previewToken(id model.FlowID, gate string) string {
	return id.String() + "/" + gate
}
