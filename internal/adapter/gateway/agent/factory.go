package agent

import (
	"fmt"
	"os/exec"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// NewAgentGateway creates an agent gateway based on agent type
// Supported types: claude-cli, rules, mock
// Note: User is responsible for ensuring the agent is available (e.g., claude CLI installed)
func NewAgentGateway(agentType string, timeout time.Duration) (output.AgentGateway, error) {
	switch agentType {
	case "claude-cli":
		// CLI version (assumes `claude` command is available)
		return NewClaudeCLIGateway(timeout), nil

	case "rules":
		return NewRuleBasedGateway(), nil

	case "mock":
		return NewMockGateway(), nil

	default:
		return nil, fmt.Errorf("unknown agent type: %s (supported: claude-cli, rules, mock)", agentType)
	}
}

// GetAvailableAgents returns a list of available agent types
func GetAvailableAgents() []string {
	agents := []string{}

	// Check if the Claude CLI is on PATH
	if _, err := exec.LookPath("claude"); err == nil {
		agents = append(agents, "claude-cli")
	}

	// The deterministic gateway is always available
	agents = append(agents, "rules", "mock")

	return agents
}
