package service

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// AgentPool bounds concurrent agent invocations per gateway type. The
// Claude CLI spawns a full process per call, so the analysis fan-out and
// concurrent flows must share a small number of slots; the deterministic
// gateways are cheap and get wider limits.
type AgentPool struct {
	maxPerAgent map[string]int // gateway type -> max concurrent invocations
	current     map[string]int // gateway type -> active invocations
	mu          sync.Mutex
}

// AgentPoolConfig holds per-gateway concurrency limits
type AgentPoolConfig struct {
	MaxPerAgent map[string]int
}

// NewAgentPool creates a pool with the default limits
func NewAgentPool() *AgentPool {
	return &AgentPool{
		maxPerAgent: map[string]int{
			"claude-cli": 2, // one process per invocation
			"rules":      8,
			"mock":       8,
		},
		current: make(map[string]int),
	}
}

// NewAgentPoolWithConfig creates a pool with custom limits
func NewAgentPoolWithConfig(config AgentPoolConfig) *AgentPool {
	pool := &AgentPool{
		maxPerAgent: make(map[string]int),
		current:     make(map[string]int),
	}
	for agent, max := range config.MaxPerAgent {
		pool.maxPerAgent[agent] = max
	}
	return pool
}

// TryAcquire attempts to take a slot for the gateway type.
// Returns false when the pool is full.
func (p *AgentPool) TryAcquire(agent string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	max, exists := p.maxPerAgent[agent]
	if !exists {
		max = 1 // unknown gateways run one at a time
	}
	if p.current[agent] >= max {
		return false
	}
	p.current[agent]++
	return true
}

// Acquire blocks until a slot is free or the context ends
func (p *AgentPool) Acquire(ctx context.Context, agent string) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.TryAcquire(agent) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s agent slot: %w", agent, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Release returns a slot for the gateway type
func (p *AgentPool) Release(agent string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current[agent] > 0 {
		p.current[agent]--
	}
}

// Current returns the number of active invocations for a gateway type
func (p *AgentPool) Current(agent string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current[agent]
}

// Max returns the concurrency limit for a gateway type
func (p *AgentPool) Max(agent string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	max, exists := p.maxPerAgent[agent]
	if !exists {
		return 1
	}
	return max
}

// SetLimit updates the concurrency limit for a gateway type
func (p *AgentPool) SetLimit(agent string, max int) error {
	if max < 1 {
		return fmt.Errorf("max must be >= 1, got: %d", max)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.maxPerAgent[agent] = max
	return nil
}

// idle reports whether no invocation holds a slot
func (p *AgentPool) idle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, n := range p.current {
		if n > 0 {
			return false
		}
	}
	return true
}

// Stats returns current usage for every configured gateway type
func (p *AgentPool) Stats() map[string]AgentStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := make(map[string]AgentStats, len(p.maxPerAgent))
	for agent, max := range p.maxPerAgent {
		stats[agent] = AgentStats{
			Agent:   agent,
			Current: p.current[agent],
			Max:     max,
		}
	}
	return stats
}

// AgentStats is a snapshot of one gateway type's slot usage
type AgentStats struct {
	Agent   string
	Current int
	Max     int
}

// Available reports whether the gateway type has free slots
func (s AgentStats) Available() bool {
	return s.Current < s.Max
}
