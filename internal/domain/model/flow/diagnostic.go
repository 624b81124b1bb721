package flow

import (
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
)

// Diagnostic is one error or warning observation tagged with the phase
// that produced it
type Diagnostic struct {
	Phase   model.Phase `json:"phase"`
	Message string      `json:"message"`
	At      time.Time   `json:"at"`
}

// NewDiagnostic creates a Diagnostic stamped with the current time
func NewDiagnostic(phase model.Phase, message string) Diagnostic {
	return Diagnostic{Phase: phase, Message: message, At: time.Now()}
}

// AgentInsight is one advisory observation emitted by a Phase Agent
type AgentInsight struct {
	Phase      model.Phase `json:"phase"`
	Insight    string      `json:"insight"`
	Confidence float64     `json:"confidence"`
	At         time.Time   `json:"at"`
}

// NewAgentInsight creates an AgentInsight stamped with the current time
func NewAgentInsight(phase model.Phase, insight string, confidence float64) AgentInsight {
	return AgentInsight{Phase: phase, Insight: insight, Confidence: confidence, At: time.Now()}
}
