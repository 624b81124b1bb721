package presenter

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/YoshitsuguKoike/assetflow/internal/application/dto"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// phaseOrder lists the pipeline phases in execution order for display
var phaseOrder = []string{
	"import_validation",
	"field_mapping",
	"approve_field_mapping",
	"data_cleansing",
	"inventory_materialization",
	"dependency_analysis",
	"debt_analysis",
}

// CLIFlowPresenter implements output.FlowPresenter for terminal output
// Formats pipeline state in a human-readable text format
type CLIFlowPresenter struct {
	output io.Writer
}

// NewCLIFlowPresenter creates a new CLI flow presenter
func NewCLIFlowPresenter(out io.Writer) output.FlowPresenter {
	return &CLIFlowPresenter{output: out}
}

// PresentSuccess presents a successful result
func (p *CLIFlowPresenter) PresentSuccess(message string, data interface{}) error {
	fmt.Fprintf(p.output, "%s %s\n", color.GreenString("✓"), message)

	switch v := data.(type) {
	case *dto.FlowRunResponse:
		p.presentRun(v)
	case *dto.FlowStatusResponse:
		p.presentStatus(v)
	case nil:
	default:
		fmt.Fprintf(p.output, "%+v\n", data)
	}
	return nil
}

// PresentError presents an error
func (p *CLIFlowPresenter) PresentError(err error) error {
	fmt.Fprintf(p.output, "%s Error: %v\n", color.RedString("✗"), err)
	return err
}

// PresentProgress presents progress information
func (p *CLIFlowPresenter) PresentProgress(message string, progress int, total int) error {
	if total <= 0 {
		total = 100
	}
	width := 20
	filled := progress * width / total
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
	fmt.Fprintf(p.output, "\r%s [%s] %d%%", message, bar, progress*100/total)
	return nil
}

// PresentFlowStatus presents the state of one pipeline run
func (p *CLIFlowPresenter) PresentFlowStatus(status output.FlowStatusView) error {
	fmt.Fprintf(p.output, "Flow: %s\n", status.FlowID)
	fmt.Fprintf(p.output, "Tenant: %s/%s\n", status.AccountID, status.EngagementID)
	fmt.Fprintf(p.output, "Status: %s\n", colorizeStatus(status.Status))
	fmt.Fprintf(p.output, "Phase: %s (%d%%)\n", status.CurrentPhase, status.Progress)

	for _, phase := range phaseOrder {
		marker := color.HiBlackString("·")
		if status.PhaseCompletion[phase] {
			marker = color.GreenString("✓")
		} else if phase == status.CurrentPhase {
			marker = color.YellowString("→")
		}
		fmt.Fprintf(p.output, "  %s %s\n", marker, phase)
	}

	if status.Summary != "" {
		fmt.Fprintf(p.output, "Summary: %s\n", status.Summary)
	}
	if status.PendingApproval > 0 {
		fmt.Fprintf(p.output, "%s %d field mappings awaiting approval\n",
			color.YellowString("!"), status.PendingApproval)
	}
	if status.PendingConflict > 0 {
		fmt.Fprintf(p.output, "%s %d conflicts awaiting resolution\n",
			color.YellowString("!"), status.PendingConflict)
	}
	if status.ErrorCount > 0 || status.WarningCount > 0 {
		fmt.Fprintf(p.output, "Diagnostics: %d errors, %d warnings\n",
			status.ErrorCount, status.WarningCount)
	}
	return nil
}

func (p *CLIFlowPresenter) presentRun(resp *dto.FlowRunResponse) {
	fmt.Fprintf(p.output, "Flow: %s\n", resp.FlowID)
	fmt.Fprintf(p.output, "Status: %s\n", colorizeStatus(resp.Status))
	fmt.Fprintf(p.output, "Phase: %s (%d%%)\n", resp.CurrentPhase, resp.Progress)
	if resp.Summary != "" {
		fmt.Fprintf(p.output, "Summary: %s\n", resp.Summary)
	}
	if resp.PendingApprovals > 0 {
		fmt.Fprintf(p.output, "%s %d field mappings awaiting approval; run `assetflow approve`\n",
			color.YellowString("!"), resp.PendingApprovals)
	}
	if resp.PendingConflicts > 0 {
		fmt.Fprintf(p.output, "%s %d conflicts awaiting resolution; run `assetflow resolve-conflicts`\n",
			color.YellowString("!"), resp.PendingConflicts)
	}
	if resp.Created > 0 || resp.Duplicates > 0 || resp.Failed > 0 {
		fmt.Fprintf(p.output, "Inventory: %d created, %d duplicates, %d failed\n",
			resp.Created, resp.Duplicates, resp.Failed)
	}
}

func (p *CLIFlowPresenter) presentStatus(resp *dto.FlowStatusResponse) {
	view := output.FlowStatusView{
		FlowID:          resp.FlowID,
		AccountID:       resp.AccountID,
		EngagementID:    resp.EngagementID,
		Status:          resp.Status,
		CurrentPhase:    resp.CurrentPhase,
		Progress:        resp.Progress,
		PhaseCompletion: resp.PhaseCompletion,
		Summary:         resp.Summary,
		PendingApproval: resp.PendingApproval,
		PendingConflict: resp.PendingConflict,
		ErrorCount:      len(resp.Errors),
		WarningCount:    len(resp.Warnings),
	}
	_ = p.PresentFlowStatus(view)

	p.presentDiagnostics("Errors", resp.Errors, color.New(color.FgRed))
	p.presentDiagnostics("Warnings", resp.Warnings, color.New(color.FgYellow))

	if len(resp.Insights) > 0 {
		fmt.Fprintln(p.output, "Insights:")
		for _, insight := range resp.Insights {
			fmt.Fprintf(p.output, "  [%s] %s (confidence %.2f)\n",
				insight.Phase, insight.Insight, insight.Confidence)
		}
	}

	if resp.Integrity != nil {
		if resp.Integrity.Valid {
			fmt.Fprintf(p.output, "%s persisted state is consistent\n", color.GreenString("✓"))
		} else {
			fmt.Fprintf(p.output, "%s persisted state failed integrity checks:\n", color.RedString("✗"))
			for _, msg := range resp.Integrity.Errors {
				fmt.Fprintf(p.output, "  - %s\n", msg)
			}
		}
	}
}

func (p *CLIFlowPresenter) presentDiagnostics(title string, diagnostics []dto.DiagnosticDTO, c *color.Color) {
	if len(diagnostics) == 0 {
		return
	}
	fmt.Fprintf(p.output, "%s:\n", title)
	// Group by phase so repeated diagnostics read together
	byPhase := map[string][]string{}
	for _, d := range diagnostics {
		byPhase[d.Phase] = append(byPhase[d.Phase], d.Message)
	}
	phases := make([]string, 0, len(byPhase))
	for phase := range byPhase {
		phases = append(phases, phase)
	}
	sort.Strings(phases)
	for _, phase := range phases {
		for _, msg := range byPhase[phase] {
			fmt.Fprintf(p.output, "  %s %s\n", c.Sprintf("[%s]", phase), msg)
		}
	}
}

func colorizeStatus(status string) string {
	switch status {
	case "completed":
		return color.GreenString(status)
	case "running", "initializing":
		return color.CyanString(status)
	case "awaiting_approval", "paused":
		return color.YellowString(status)
	case "failed", "expired":
		return color.RedString(status)
	default:
		return status
	}
}
