package phase

import (
	"context"
	"fmt"
	"sync"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// AnalysisBranch is a phase that can run inside a parallel group: its
// agent invocation is side-effect free and its interpretation step is
// applied separately, after fan-in, so concurrent branches never write
// the FlowState at the same time.
type AnalysisBranch interface {
	Definition() Definition
	InvokeAgent(ctx context.Context, fs *flow.FlowState, input map[string]interface{}) (*output.AgentResult, bool, error)
	Interpret(fs *flow.FlowState, result *output.AgentResult, degraded bool) error
}

// ParallelGroupExecutor fans independent analysis phases out concurrently
// and fans in by awaiting all of them. A branch failure becomes a partial
// result on the FlowState; it never cancels or corrupts the sibling.
type ParallelGroupExecutor struct {
	Base
	branches []AnalysisBranch
}

// NewParallelGroupExecutor creates a fan-out executor over the branches
func NewParallelGroupExecutor(base Base, branches ...AnalysisBranch) *ParallelGroupExecutor {
	return &ParallelGroupExecutor{Base: base, branches: branches}
}

// Phases returns the phase names in the group
func (g *ParallelGroupExecutor) Phases() []model.Phase {
	names := make([]model.Phase, 0, len(g.branches))
	for _, br := range g.branches {
		names = append(names, br.Definition().Name)
	}
	return names
}

// Execute runs every not-yet-completed branch concurrently, gathers all
// results, merges them into the FlowState and writes one consolidated
// checkpoint once every branch has resolved.
func (g *ParallelGroupExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	var pending []AnalysisBranch
	for _, br := range g.branches {
		if !fs.PhaseCompleted(br.Definition().Name) {
			pending = append(pending, br)
		}
	}
	if len(pending) == 0 {
		return &Outcome{
			Phase:      pending0Name(g.branches),
			Status:     OutcomeSucceeded,
			Detail:     "previously completed; returning stored results",
			Confidence: 1.0,
		}, nil
	}

	if err := g.begin(ctx, fs, pending[0].Definition()); err != nil {
		return g.fail(ctx, fs, pending[0].Definition(), err)
	}
	for _, br := range pending[1:] {
		g.emit(fs, br.Definition().Name, output.EventPhaseStart, "phase started")
	}

	// One input snapshot shared by all branches; branches read it only
	input := buildAnalysisInput(fs)

	type branchResult struct {
		branch   AnalysisBranch
		result   *output.AgentResult
		degraded bool
		err      error
	}
	results := make([]branchResult, len(pending))

	var wg sync.WaitGroup
	for i, br := range pending {
		wg.Add(1)
		go func(i int, br AnalysisBranch) {
			defer wg.Done()
			result, degraded, err := br.InvokeAgent(ctx, fs, input)
			results[i] = branchResult{branch: br, result: result, degraded: degraded, err: err}
		}(i, br)
	}
	// Gather, don't cancel: a failing branch never interrupts its sibling
	wg.Wait()

	failed := 0
	for _, r := range results {
		def := r.branch.Definition()
		if r.err == nil {
			r.err = r.branch.Interpret(fs, r.result, r.degraded)
		}
		if r.err != nil {
			failed++
			fs.AppendError(def.Name, r.err.Error())
			g.emit(fs, def.Name, output.EventError, r.err.Error())
			continue
		}

		g.recordInsights(fs, def, r.result)
		if r.degraded {
			g.recordDegradation(fs, def, "phase agent unavailable")
		}
		if err := fs.CompletePhase(def.Name); err != nil {
			failed++
			fs.AppendError(def.Name, err.Error())
			continue
		}
		g.emit(fs, def.Name, output.EventCompletion, "phase completed")
	}

	// Consolidated checkpoint after fan-in. Analyses are recomputable, so
	// a checkpoint failure here is a warning, not a phase failure.
	if err := g.Flows().Update(ctx, fs); err != nil {
		g.logger.Warn("fan-in checkpoint failed: %v", err)
	}

	groupName := pending[0].Definition().Name
	if failed == len(pending) {
		return &Outcome{
			Phase:  groupName,
			Status: OutcomeFailed,
			Detail: "all analysis branches failed",
		}, fmt.Errorf("all %d analysis branches failed", len(pending))
	}
	if failed > 0 {
		return &Outcome{
			Phase:  groupName,
			Status: OutcomeDegraded,
			Detail: fmt.Sprintf("%d of %d analysis branches failed; partial results recorded", failed, len(pending)),
		}, nil
	}
	return &Outcome{Phase: groupName, Status: OutcomeSucceeded}, nil
}

func pending0Name(branches []AnalysisBranch) model.Phase {
	if len(branches) > 0 {
		return branches[0].Definition().Name
	}
	return ""
}
