package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
)

// MockGateway is a scriptable AgentGateway for tests. Results are keyed
// by phase; unscripted phases fail so tests notice unexpected calls.
type MockGateway struct {
	mu      sync.Mutex
	results map[string]*output.AgentResult
	errors  map[string]error
	calls   []string
	healthy bool
	latency time.Duration
}

// NewMockGateway creates a healthy mock with no scripted results
func NewMockGateway() *MockGateway {
	return &MockGateway{
		results: make(map[string]*output.AgentResult),
		errors:  make(map[string]error),
		healthy: true,
	}
}

// ScriptResult registers the result Invoke returns for a phase
func (g *MockGateway) ScriptResult(phase string, result *output.AgentResult) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.results[phase] = result
}

// ScriptPayload registers a payload-only result with full confidence
func (g *MockGateway) ScriptPayload(phase string, payload map[string]interface{}) {
	g.ScriptResult(phase, &output.AgentResult{
		Payload:    payload,
		Confidence: 1.0,
		AgentType:  "mock",
	})
}

// ScriptError makes Invoke fail for a phase
func (g *MockGateway) ScriptError(phase string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errors[phase] = err
}

// SetHealthy controls the HealthCheck outcome
func (g *MockGateway) SetHealthy(healthy bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.healthy = healthy
}

// SetLatency adds an artificial delay to every Invoke
func (g *MockGateway) SetLatency(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latency = d
}

// Calls returns the phases Invoke was called with, in order
func (g *MockGateway) Calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	calls := make([]string, len(g.calls))
	copy(calls, g.calls)
	return calls
}

// Invoke returns the scripted result or error for the requested phase
func (g *MockGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Phase)
	err := g.errors[req.Phase]
	result := g.results[req.Phase]
	latency := g.latency
	g.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, fmt.Errorf("no scripted result for phase %s", req.Phase)
	}
	copied := *result
	copied.AgentType = g.AgentType()
	return &copied, nil
}

// AgentType returns the gateway identifier
func (g *MockGateway) AgentType() string {
	return "mock"
}

// HealthCheck reflects the configured health state
func (g *MockGateway) HealthCheck(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.healthy {
		return fmt.Errorf("mock agent marked unhealthy")
	}
	return nil
}
