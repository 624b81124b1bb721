package phase

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// DebtAnalysisExecutor scores technical-debt findings against the
// materialized inventory. Identical in shape to dependency analysis and
// fully asynchronous like every other phase; the two run as a parallel
// group once materialization is done.
type DebtAnalysisExecutor struct {
	Base
	def Definition
}

// NewDebtAnalysisExecutor creates the debt analysis phase
func NewDebtAnalysisExecutor(base Base) *DebtAnalysisExecutor {
	return &DebtAnalysisExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseDebtAnalysis,
			FallbackEligible: true,
		},
	}
}

// Definition returns the phase properties
func (e *DebtAnalysisExecutor) Definition() Definition {
	return e.def
}

// Execute produces the debt report
func (e *DebtAnalysisExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	return e.runAgentPhase(ctx, fs, e.def, buildAnalysisInput, interpretDebtReport)
}

// InvokeAgent runs the agent call without touching the FlowState, so the
// phase can execute as a parallel-group branch
func (e *DebtAnalysisExecutor) InvokeAgent(ctx context.Context, fs *flow.FlowState, input map[string]interface{}) (*output.AgentResult, bool, error) {
	return e.invoke(ctx, fs, e.def, input)
}

// Interpret applies a gathered result to the FlowState after fan-in
func (e *DebtAnalysisExecutor) Interpret(fs *flow.FlowState, result *output.AgentResult, degraded bool) error {
	return interpretDebtReport(fs, result, degraded)
}

func interpretDebtReport(fs *flow.FlowState, result *output.AgentResult, degraded bool) error {
	items, err := payloadList(result.Payload, "findings")
	if err != nil {
		return err
	}

	report := &flow.DebtReport{
		Findings:   make([]flow.DebtFinding, 0, len(items)),
		Confidence: result.Confidence,
		Degraded:   degraded,
	}
	for i, item := range items {
		assetName := objString(item, "asset_name")
		if assetName == "" {
			return fmt.Errorf("finding %d has no asset_name", i)
		}
		report.Findings = append(report.Findings, flow.DebtFinding{
			AssetName: assetName,
			Category:  objString(item, "category"),
			Detail:    objString(item, "detail"),
			Severity:  objString(item, "severity"),
			Score:     objFloat(item, "score"),
		})
	}

	fs.SetDebtReport(report)
	return nil
}
