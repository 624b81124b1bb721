package output

import "time"

// EventKind classifies an observability event
type EventKind string

const (
	EventPhaseStart EventKind = "phase_start"
	EventProgress   EventKind = "progress"
	EventCompletion EventKind = "completion"
	EventError      EventKind = "error"
	EventInsight    EventKind = "insight"
)

// Event is one best-effort observability notification
type Event struct {
	FlowID   string
	Phase    string
	Kind     EventKind
	Message  string
	At       time.Time
	Metadata map[string]string
}

// Notifier emits observability events. Emission is best-effort: failures
// are logged by the caller and never reach the flow's error state.
type Notifier interface {
	Emit(event Event) error
}
