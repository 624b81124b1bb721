package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTenantPools_CreatesPoolOnFirstUse(t *testing.T) {
	pools := NewTenantPools(AgentPoolConfig{}, 0)
	assert.Equal(t, 0, pools.Size())

	assert.True(t, pools.TryAcquire("acme/2026-audit", "claude-cli"))
	assert.Equal(t, 1, pools.Size())

	// Default limits apply to each tenant pool
	assert.Equal(t, 2, pools.Pool("acme/2026-audit").Max("claude-cli"))
}

func TestTenantPools_IndependentBudgets(t *testing.T) {
	pools := NewTenantPools(AgentPoolConfig{
		MaxPerAgent: map[string]int{"claude-cli": 1},
	}, 0)

	assert.True(t, pools.TryAcquire("acme/2026-audit", "claude-cli"))
	assert.False(t, pools.TryAcquire("acme/2026-audit", "claude-cli"),
		"acme's budget is spent")

	// globex still has a full budget of its own
	assert.True(t, pools.TryAcquire("globex/2026-audit", "claude-cli"))

	pools.Release("acme/2026-audit", "claude-cli")
	assert.Equal(t, 0, pools.Pool("acme/2026-audit").Current("claude-cli"))
	assert.Equal(t, 1, pools.Pool("globex/2026-audit").Current("claude-cli"))
}

func TestTenantPools_AcquireBlocksPerTenant(t *testing.T) {
	pools := NewTenantPools(AgentPoolConfig{
		MaxPerAgent: map[string]int{"claude-cli": 1},
	}, 0)
	require.NoError(t, pools.Acquire(context.Background(), "acme/2026-audit", "claude-cli"))

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	err := pools.Acquire(ctx, "acme/2026-audit", "claude-cli")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A different tenant is not held up
	require.NoError(t, pools.Acquire(context.Background(), "globex/2026-audit", "claude-cli"))
}

func TestTenantPools_EvictsIdlePools(t *testing.T) {
	pools := NewTenantPools(AgentPoolConfig{}, time.Minute)

	clock := time.Now()
	pools.now = func() time.Time { return clock }

	pools.TryAcquire("acme/2026-audit", "mock")
	pools.Release("acme/2026-audit", "mock")
	pools.TryAcquire("globex/2026-audit", "mock") // slot stays held
	require.Equal(t, 2, pools.Size())

	clock = clock.Add(2 * time.Minute)

	// The next acquire sweeps: acme's idle pool goes, globex's pool has a
	// slot in flight and survives.
	pools.TryAcquire("initech/2026-audit", "mock")
	stats := pools.Stats()
	assert.NotContains(t, stats, "acme/2026-audit")
	assert.Contains(t, stats, "globex/2026-audit")
	assert.Contains(t, stats, "initech/2026-audit")
}

func TestTenantPools_RecreatesEvictedPool(t *testing.T) {
	pools := NewTenantPools(AgentPoolConfig{
		MaxPerAgent: map[string]int{"mock": 1},
	}, time.Minute)

	clock := time.Now()
	pools.now = func() time.Time { return clock }

	assert.True(t, pools.TryAcquire("acme/2026-audit", "mock"))
	pools.Release("acme/2026-audit", "mock")

	clock = clock.Add(2 * time.Minute)

	// A fresh pool is built on the next use, with its full budget
	assert.True(t, pools.TryAcquire("acme/2026-audit", "mock"))
	assert.Equal(t, 1, pools.Pool("acme/2026-audit").Current("mock"))
}
