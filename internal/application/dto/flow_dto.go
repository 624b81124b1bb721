package dto

// StartFlowRequest begins a new pipeline run over one import source
type StartFlowRequest struct {
	AccountID    string
	EngagementID string
	UserID       string
	SourcePath   string // CSV or JSON import file
}

// ResumeFlowRequest resumes a paused run
type ResumeFlowRequest struct {
	AccountID    string
	EngagementID string
	FlowID       string
}

// PauseFlowRequest pauses a running flow
type PauseFlowRequest struct {
	AccountID    string
	EngagementID string
	FlowID       string
	Reason       string
}

// ApprovalRequest submits a field-mapping approval decision
type ApprovalRequest struct {
	AccountID    string
	EngagementID string
	FlowID       string
	ApprovedIDs  []string
	Edits        map[string]map[string]string
}

// ConflictResolutionDTO is one human decision about one collision
type ConflictResolutionDTO struct {
	ConflictID string            `json:"conflict_id"`
	Resolution string            `json:"resolution"` // keep_existing, create_anyway, merge_candidate
	Edits      map[string]string `json:"edits,omitempty"`
}

// ConflictResolutionsRequest submits decisions for the materializer's
// pending conflict set
type ConflictResolutionsRequest struct {
	AccountID    string
	EngagementID string
	FlowID       string
	Resolutions  []ConflictResolutionDTO
}

// FlowStatusRequest requests the state of one run
type FlowStatusRequest struct {
	AccountID    string
	EngagementID string
	FlowID       string
	Verify       bool // also run a persisted-state integrity check
}

// FlowRunResponse reports the outcome of a drive through the pipeline
type FlowRunResponse struct {
	FlowID           string
	Status           string
	CurrentPhase     string
	Progress         int
	Summary          string
	PendingApprovals int
	PendingConflicts int
	Created          int
	Duplicates       int
	Failed           int
}

// FlowStatusResponse is the full projection of one run
type FlowStatusResponse struct {
	FlowID          string
	AccountID       string
	EngagementID    string
	UserID          string
	Status          string
	CurrentPhase    string
	Progress        int
	PhaseCompletion map[string]bool
	Summary         string
	PendingApproval int
	PendingConflict int
	Errors          []DiagnosticDTO
	Warnings        []DiagnosticDTO
	Insights        []InsightDTO
	Created         int
	Duplicates      int
	Failed          int
	StartedAt       string
	UpdatedAt       string
	CompletedAt     string
	Integrity       *IntegrityDTO
}

// DiagnosticDTO is one phase-tagged error or warning
type DiagnosticDTO struct {
	Phase   string
	Message string
	At      string
}

// InsightDTO is one phase-tagged agent insight
type InsightDTO struct {
	Phase      string
	Insight    string
	Confidence float64
	At         string
}

// IntegrityDTO reports a persisted-state integrity check
type IntegrityDTO struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// ExpireRequest removes stale runs past the retention window
type ExpireRequest struct {
	RetentionDays int
}
