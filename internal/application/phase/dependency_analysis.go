package phase

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// DependencyAnalysisExecutor infers relationships between materialized
// assets. Advisory output: fallback-eligible, with a co-location heuristic
// as the deterministic substitute. Declares no timeout; agent analysis
// duration is not bounded by the engine.
type DependencyAnalysisExecutor struct {
	Base
	def Definition
}

// NewDependencyAnalysisExecutor creates the dependency analysis phase
func NewDependencyAnalysisExecutor(base Base) *DependencyAnalysisExecutor {
	return &DependencyAnalysisExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseDependencyAnalysis,
			FallbackEligible: true,
		},
	}
}

// Definition returns the phase properties
func (e *DependencyAnalysisExecutor) Definition() Definition {
	return e.def
}

// Execute produces the dependency graph
func (e *DependencyAnalysisExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	return e.runAgentPhase(ctx, fs, e.def, buildAnalysisInput, interpretDependencyGraph)
}

// InvokeAgent runs the agent call without touching the FlowState, so the
// phase can execute as a parallel-group branch
func (e *DependencyAnalysisExecutor) InvokeAgent(ctx context.Context, fs *flow.FlowState, input map[string]interface{}) (*output.AgentResult, bool, error) {
	return e.invoke(ctx, fs, e.def, input)
}

// Interpret applies a gathered result to the FlowState after fan-in
func (e *DependencyAnalysisExecutor) Interpret(fs *flow.FlowState, result *output.AgentResult, degraded bool) error {
	return interpretDependencyGraph(fs, result, degraded)
}

// buildAnalysisInput is shared with debt analysis: both consume the
// materialized inventory and cleaned records
func buildAnalysisInput(fs *flow.FlowState) map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(fs.CleanedRecords()))
	for _, r := range fs.CleanedRecords() {
		records = append(records, map[string]interface{}{
			"row":    r.Row,
			"fields": r.Fields,
		})
	}

	input := map[string]interface{}{"records": records}
	if inv := fs.Inventory(); inv != nil {
		input["inventory"] = map[string]interface{}{
			"created":     inv.Created,
			"created_ids": inv.CreatedIDs,
		}
	}
	return input
}

func interpretDependencyGraph(fs *flow.FlowState, result *output.AgentResult, degraded bool) error {
	items, err := payloadList(result.Payload, "edges")
	if err != nil {
		return err
	}

	graph := &flow.DependencyGraph{
		Edges:      make([]flow.DependencyEdge, 0, len(items)),
		Confidence: result.Confidence,
		Degraded:   degraded,
	}
	for i, item := range items {
		from := objString(item, "from")
		to := objString(item, "to")
		if from == "" || to == "" {
			return fmt.Errorf("edge %d is missing from or to", i)
		}
		graph.Edges = append(graph.Edges, flow.DependencyEdge{
			From:       from,
			To:         to,
			Kind:       objString(item, "kind"),
			Confidence: objFloat(item, "confidence"),
		})
	}

	fs.SetDependencyGraph(graph)
	return nil
}
