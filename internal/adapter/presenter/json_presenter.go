package presenter

import (
	"encoding/json"
	"io"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// JSONPresenter implements output.FlowPresenter for JSON output
// Formats all output as JSON for programmatic consumption
type JSONPresenter struct {
	output io.Writer
}

// NewJSONPresenter creates a new JSON presenter
func NewJSONPresenter(out io.Writer) output.FlowPresenter {
	return &JSONPresenter{output: out}
}

// PresentSuccess presents a successful result as JSON
func (p *JSONPresenter) PresentSuccess(message string, data interface{}) error {
	result := map[string]interface{}{
		"success": true,
		"message": message,
		"data":    data,
	}
	return json.NewEncoder(p.output).Encode(result)
}

// PresentError presents an error as JSON
func (p *JSONPresenter) PresentError(err error) error {
	result := map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	}
	return json.NewEncoder(p.output).Encode(result)
}

// PresentProgress presents progress information as JSON
func (p *JSONPresenter) PresentProgress(message string, progress int, total int) error {
	if total <= 0 {
		total = 100
	}
	result := map[string]interface{}{
		"type":     "progress",
		"message":  message,
		"progress": progress,
		"total":    total,
		"percent":  float64(progress) / float64(total) * 100,
	}
	return json.NewEncoder(p.output).Encode(result)
}

// PresentFlowStatus presents the state of one pipeline run as JSON
func (p *JSONPresenter) PresentFlowStatus(status output.FlowStatusView) error {
	result := map[string]interface{}{
		"flow_id":          status.FlowID,
		"account_id":       status.AccountID,
		"engagement_id":    status.EngagementID,
		"status":           status.Status,
		"current_phase":    status.CurrentPhase,
		"progress":         status.Progress,
		"phase_completion": status.PhaseCompletion,
		"summary":          status.Summary,
		"pending_approval": status.PendingApproval,
		"pending_conflict": status.PendingConflict,
		"errors":           status.ErrorCount,
		"warnings":         status.WarningCount,
		"created":          status.Created,
		"duplicates":       status.Duplicates,
		"failed":           status.Failed,
		"started_at":       status.StartedAt,
		"updated_at":       status.UpdatedAt,
		"completed_at":     status.CompletedAt,
	}
	return json.NewEncoder(p.output).Encode(result)
}
