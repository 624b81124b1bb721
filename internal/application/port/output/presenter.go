package output

// Presenter defines the interface for presenting output to users
// Different implementations can format output for CLI, JSON, or other formats
type Presenter interface {
	// PresentSuccess presents a successful result
	PresentSuccess(message string, data interface{}) error

	// PresentError presents an error
	PresentError(err error) error

	// PresentProgress presents progress information
	PresentProgress(message string, progress int, total int) error
}

// FlowPresenter specifically handles flow status presentation
type FlowPresenter interface {
	Presenter

	// PresentFlowStatus presents the state of one pipeline run
	PresentFlowStatus(status FlowStatusView) error
}

// FlowStatusView is the presentable projection of one pipeline run
type FlowStatusView struct {
	FlowID          string
	AccountID       string
	EngagementID    string
	Status          string
	CurrentPhase    string
	Progress        int
	PhaseCompletion map[string]bool
	Summary         string
	PendingApproval int
	PendingConflict int
	ErrorCount      int
	WarningCount    int
	Created         int
	Duplicates      int
	Failed          int
	StartedAt       string
	UpdatedAt       string
	CompletedAt     string
}
