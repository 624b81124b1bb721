package notify

import (
	"github.com/YoshitsuguKoike/assetflow/internal/app"
	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// LogNotifier writes observability events to the application logger.
// It is the default event sink when no external channel is configured.
type LogNotifier struct {
	logger app.Logger
}

// NewLogNotifier creates a notifier backed by the given logger
func NewLogNotifier(logger app.Logger) *LogNotifier {
	if logger == nil {
		logger = app.GetLogger()
	}
	return &LogNotifier{logger: logger}
}

// Emit logs the event; errors at error level, the rest at info
func (n *LogNotifier) Emit(event output.Event) error {
	switch event.Kind {
	case output.EventError:
		n.logger.Error("[%s] %s: %s", event.FlowID, event.Phase, event.Message)
	default:
		n.logger.Info("[%s] %s %s: %s", event.FlowID, event.Phase, event.Kind, event.Message)
	}
	return nil
}
