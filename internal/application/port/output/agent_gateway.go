package output

import (
	"context"
	"time"
)

// AgentGateway is the interface for Phase Agent invocation. The engine
// treats the agent as a black box that either returns a schema-valid
// structured payload for the requested phase or fails; a partially
// structured payload is never silently accepted as complete.
type AgentGateway interface {
	// Invoke runs the agent for one phase
	Invoke(ctx context.Context, req AgentRequest) (*AgentResult, error)

	// AgentType returns the gateway identifier (claude-cli, rules, mock)
	AgentType() string

	// HealthCheck verifies the agent is available
	HealthCheck(ctx context.Context) error
}

// AgentRequest represents one phase analysis request
type AgentRequest struct {
	Phase   string                 // Pipeline phase name
	Input   map[string]interface{} // Phase-specific input document
	Timeout time.Duration          // Zero means no engine-imposed bound
	Context map[string]string      // Tenant and flow identifiers for tracing
}

// AgentResult represents a structured phase analysis result
type AgentResult struct {
	Payload    map[string]interface{} // Phase-specific structured payload
	Insights   []string               // Advisory observations
	Confidence float64                // Agent's confidence in the payload (0.0-1.0)
	Duration   time.Duration          // Invocation duration
	AgentType  string                 // Gateway that produced the result
}
