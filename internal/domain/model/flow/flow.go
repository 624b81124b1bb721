package flow

import (
	"errors"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
)

// FlowState is the durable record of one pipeline run. All mutation goes
// through its methods so that every invariant is established at creation
// and preserved on each transition; fields are never probed for presence.
type FlowState struct {
	id     model.FlowID
	tenant model.Tenant
	userID string

	currentPhase model.Phase
	status       model.FlowStatus
	progress     int
	phaseDone    map[model.Phase]bool

	rawRecords      []RawRecord
	fieldMappings   []FieldMapping
	cleanedRecords  []CleanedRecord
	inventory       *InventorySummary
	dependencyGraph *DependencyGraph
	debtReport      *DebtReport

	errs     []Diagnostic
	warnings []Diagnostic
	insights []AgentInsight

	startedAt   model.Timestamp
	updatedAt   model.Timestamp
	completedAt *model.Timestamp
}

// NewFlowState creates a FlowState for a fresh pipeline run
func NewFlowState(tenant model.Tenant, userID string) (*FlowState, error) {
	if userID == "" {
		return nil, errors.New("user ID cannot be empty")
	}

	now := model.NewTimestamp()
	done := make(map[model.Phase]bool, len(model.AllPhases()))
	for _, p := range model.AllPhases() {
		done[p] = false
	}

	return &FlowState{
		id:           model.NewFlowID(),
		tenant:       tenant,
		userID:       userID,
		currentPhase: model.PhaseImportValidation,
		status:       model.StatusInitializing,
		phaseDone:    done,
		startedAt:    now,
		updatedAt:    now,
	}, nil
}

// ReconstructFlowState rebuilds a FlowState from persisted data
func ReconstructFlowState(
	id model.FlowID,
	tenant model.Tenant,
	userID string,
	currentPhase model.Phase,
	status model.FlowStatus,
	progress int,
	phaseDone map[model.Phase]bool,
	rawRecords []RawRecord,
	fieldMappings []FieldMapping,
	cleanedRecords []CleanedRecord,
	inventory *InventorySummary,
	dependencyGraph *DependencyGraph,
	debtReport *DebtReport,
	errs []Diagnostic,
	warnings []Diagnostic,
	insights []AgentInsight,
	startedAt time.Time,
	updatedAt time.Time,
	completedAt *time.Time,
) *FlowState {
	if phaseDone == nil {
		phaseDone = make(map[model.Phase]bool, len(model.AllPhases()))
	}
	for _, p := range model.AllPhases() {
		if _, ok := phaseDone[p]; !ok {
			phaseDone[p] = false
		}
	}

	var completed *model.Timestamp
	if completedAt != nil {
		ts := model.NewTimestampFromTime(*completedAt)
		completed = &ts
	}

	return &FlowState{
		id:              id,
		tenant:          tenant,
		userID:          userID,
		currentPhase:    currentPhase,
		status:          status,
		progress:        progress,
		phaseDone:       phaseDone,
		rawRecords:      rawRecords,
		fieldMappings:   fieldMappings,
		cleanedRecords:  cleanedRecords,
		inventory:       inventory,
		dependencyGraph: dependencyGraph,
		debtReport:      debtReport,
		errs:            errs,
		warnings:        warnings,
		insights:        insights,
		startedAt:       model.NewTimestampFromTime(startedAt),
		updatedAt:       model.NewTimestampFromTime(updatedAt),
		completedAt:     completed,
	}
}

// ID returns the flow ID
func (f *FlowState) ID() model.FlowID {
	return f.id
}

// Tenant returns the tenant scope
func (f *FlowState) Tenant() model.Tenant {
	return f.tenant
}

// UserID returns the initiating user
func (f *FlowState) UserID() string {
	return f.userID
}

// CurrentPhase returns the phase the run is currently in
func (f *FlowState) CurrentPhase() model.Phase {
	return f.currentPhase
}

// Status returns the lifecycle status
func (f *FlowState) Status() model.FlowStatus {
	return f.status
}

// Progress returns the completion percentage
func (f *FlowState) Progress() int {
	return f.progress
}

// PhaseCompleted reports whether a phase has durably completed
func (f *FlowState) PhaseCompleted(p model.Phase) bool {
	return f.phaseDone[p]
}

// PhaseCompletion returns a copy of the full completion map
func (f *FlowState) PhaseCompletion() map[model.Phase]bool {
	out := make(map[model.Phase]bool, len(f.phaseDone))
	for p, done := range f.phaseDone {
		out[p] = done
	}
	return out
}

// RawRecords returns the imported records
func (f *FlowState) RawRecords() []RawRecord {
	return f.rawRecords
}

// FieldMappings returns the column mappings
func (f *FlowState) FieldMappings() []FieldMapping {
	return f.fieldMappings
}

// CleanedRecords returns the cleansed records
func (f *FlowState) CleanedRecords() []CleanedRecord {
	return f.cleanedRecords
}

// Inventory returns the materialization summary (nil until that phase ran)
func (f *FlowState) Inventory() *InventorySummary {
	return f.inventory
}

// DependencyGraph returns the dependency analysis result
func (f *FlowState) DependencyGraph() *DependencyGraph {
	return f.dependencyGraph
}

// DebtReport returns the debt analysis result
func (f *FlowState) DebtReport() *DebtReport {
	return f.debtReport
}

// Errors returns the ordered error diagnostics
func (f *FlowState) Errors() []Diagnostic {
	return f.errs
}

// Warnings returns the ordered warning diagnostics
func (f *FlowState) Warnings() []Diagnostic {
	return f.warnings
}

// Insights returns the ordered agent insights
func (f *FlowState) Insights() []AgentInsight {
	return f.insights
}

// StartedAt returns the creation timestamp
func (f *FlowState) StartedAt() model.Timestamp {
	return f.startedAt
}

// UpdatedAt returns the last mutation timestamp
func (f *FlowState) UpdatedAt() model.Timestamp {
	return f.updatedAt
}

// CompletedAt returns the termination timestamp (nil while live)
func (f *FlowState) CompletedAt() *model.Timestamp {
	return f.completedAt
}

// ConflictResolutionPending reports whether materialization completed with
// collisions still awaiting a human decision
func (f *FlowState) ConflictResolutionPending() bool {
	return f.inventory != nil && f.inventory.ConflictResolutionPending
}

func (f *FlowState) touch() {
	f.updatedAt = model.NewTimestamp()
}

// SetStatus transitions the lifecycle status, enforcing the transition table
func (f *FlowState) SetStatus(next model.FlowStatus) error {
	if !next.IsValid() {
		return fmt.Errorf("invalid status: %s", next)
	}
	if f.status == next {
		return nil
	}
	if !f.status.CanTransitionTo(next) {
		return fmt.Errorf("invalid status transition from %s to %s", f.status, next)
	}
	f.status = next
	f.touch()
	return nil
}

// BeginPhase marks a phase as the current one. Persisting the flow right
// after this call is the phase-start checkpoint: a crash mid-phase is then
// observable on recovery as "started, not completed".
func (f *FlowState) BeginPhase(p model.Phase) error {
	if !p.IsValid() {
		return fmt.Errorf("invalid phase: %s", p)
	}
	if f.status.IsTerminal() {
		return fmt.Errorf("cannot begin phase %s: flow is %s", p, f.status)
	}
	f.currentPhase = p
	f.touch()
	return nil
}

// CompletePhase marks a phase completed. It refuses to set the flag unless
// the payload that phase produces is present, so that phase_completion[p]
// implies the payload exists in the same logical update.
func (f *FlowState) CompletePhase(p model.Phase) error {
	if !p.IsValid() {
		return fmt.Errorf("invalid phase: %s", p)
	}
	if err := f.payloadPresent(p); err != nil {
		return err
	}
	f.phaseDone[p] = true
	f.recomputeProgress()
	f.touch()
	return nil
}

// payloadPresent verifies the payload a phase produces is non-null
func (f *FlowState) payloadPresent(p model.Phase) error {
	missing := func(field string) error {
		return fmt.Errorf("cannot complete %s: %s payload is missing", p, field)
	}
	switch p {
	case model.PhaseImportValidation:
		if f.rawRecords == nil {
			return missing("raw_records")
		}
	case model.PhaseFieldMapping, model.PhaseApproveFieldMapping:
		if f.fieldMappings == nil {
			return missing("field_mappings")
		}
	case model.PhaseDataCleansing:
		if f.cleanedRecords == nil {
			return missing("cleaned_records")
		}
	case model.PhaseInventory:
		if f.inventory == nil {
			return missing("asset_inventory_summary")
		}
	case model.PhaseDependencyAnalysis:
		if f.dependencyGraph == nil {
			return missing("dependency_graph")
		}
	case model.PhaseDebtAnalysis:
		if f.debtReport == nil {
			return missing("debt_findings")
		}
	}
	return nil
}

func (f *FlowState) recomputeProgress() {
	total := len(model.AllPhases())
	done := 0
	for _, completed := range f.phaseDone {
		if completed {
			done++
		}
	}
	f.progress = done * 100 / total
}

// SetRawRecords stores the import validation payload
func (f *FlowState) SetRawRecords(records []RawRecord) {
	f.rawRecords = records
	f.touch()
}

// SetFieldMappings stores the field mapping payload
func (f *FlowState) SetFieldMappings(mappings []FieldMapping) {
	f.fieldMappings = mappings
	f.touch()
}

// SetCleanedRecords stores the cleansing payload
func (f *FlowState) SetCleanedRecords(records []CleanedRecord) {
	f.cleanedRecords = records
	f.touch()
}

// SetInventory stores the materialization summary
func (f *FlowState) SetInventory(summary *InventorySummary) {
	f.inventory = summary
	f.touch()
}

// SetDependencyGraph stores the dependency analysis result
func (f *FlowState) SetDependencyGraph(graph *DependencyGraph) {
	f.dependencyGraph = graph
	f.touch()
}

// SetDebtReport stores the debt analysis result
func (f *FlowState) SetDebtReport(report *DebtReport) {
	f.debtReport = report
	f.touch()
}

// AppendError records an error diagnostic for a phase
func (f *FlowState) AppendError(phase model.Phase, message string) {
	f.errs = append(f.errs, NewDiagnostic(phase, message))
	f.touch()
}

// AppendWarning records a warning diagnostic for a phase
func (f *FlowState) AppendWarning(phase model.Phase, message string) {
	f.warnings = append(f.warnings, NewDiagnostic(phase, message))
	f.touch()
}

// AppendInsight records an agent insight for a phase
func (f *FlowState) AppendInsight(insight AgentInsight) {
	f.insights = append(f.insights, insight)
	f.touch()
}

// MarkCompleted terminates the run successfully
func (f *FlowState) MarkCompleted() error {
	if err := f.SetStatus(model.StatusCompleted); err != nil {
		return err
	}
	ts := model.NewTimestamp()
	f.completedAt = &ts
	return nil
}

// MarkFailed terminates the run with a failure
func (f *FlowState) MarkFailed() error {
	if err := f.SetStatus(model.StatusFailed); err != nil {
		return err
	}
	ts := model.NewTimestamp()
	f.completedAt = &ts
	return nil
}

// prerequisites returns the phases that must be complete before p may
// complete. The two analysis phases are mutually independent.
func prerequisites(p model.Phase) []model.Phase {
	order := model.AllPhases()
	var prereqs []model.Phase
	for _, q := range order {
		if q == p {
			break
		}
		prereqs = append(prereqs, q)
	}
	if p == model.PhaseDebtAnalysis {
		// Drop the sibling analysis phase; only materialization gates it
		filtered := prereqs[:0]
		for _, q := range prereqs {
			if q != model.PhaseDependencyAnalysis {
				filtered = append(filtered, q)
			}
		}
		prereqs = filtered
	}
	return prereqs
}

// ValidateConsistency checks that the current phase and the completed-phase
// set are internally consistent. Used before resuming a paused flow; a
// non-empty result makes the resume fail with a structured validation error.
func (f *FlowState) ValidateConsistency() []string {
	var problems []string

	if !f.currentPhase.IsValid() {
		problems = append(problems, fmt.Sprintf("current phase %q is not a known phase", f.currentPhase))
		return problems
	}

	// A phase must not be both current and completed on a live run. The one
	// sanctioned exception is materialization completed with conflicts
	// still pending resolution.
	if !f.status.IsTerminal() && f.phaseDone[f.currentPhase] && !f.ConflictResolutionPending() {
		problems = append(problems, fmt.Sprintf("phase %s is both current and completed", f.currentPhase))
	}

	for _, p := range model.AllPhases() {
		if !f.phaseDone[p] {
			continue
		}
		for _, prereq := range prerequisites(p) {
			if !f.phaseDone[prereq] {
				problems = append(problems,
					fmt.Sprintf("phase %s is completed but its prerequisite %s is not", p, prereq))
			}
		}
	}

	return problems
}
