package service

import (
	"context"
	"sync"
	"time"
)

// defaultIdleTTL is how long a tenant's pool may sit unused before it is
// dropped. A long-running daemon serving many one-off tenants would
// otherwise accumulate an entry per tenant forever.
const defaultIdleTTL = 15 * time.Minute

// TenantPools scopes agent concurrency per tenant. Each tenant gets its
// own AgentPool on first acquire, so one tenant's analysis fan-out cannot
// starve another tenant's flows. Pools idle past the TTL are evicted on
// the next acquire.
type TenantPools struct {
	config  AgentPoolConfig
	idleTTL time.Duration
	now     func() time.Time

	mu    sync.Mutex
	pools map[string]*tenantPoolEntry
}

type tenantPoolEntry struct {
	pool     *AgentPool
	lastUsed time.Time
}

// NewTenantPools creates a tenant-scoped pool set. Every tenant pool is
// built from the same config; an empty config means the default limits.
// A non-positive idleTTL selects the default.
func NewTenantPools(config AgentPoolConfig, idleTTL time.Duration) *TenantPools {
	if idleTTL <= 0 {
		idleTTL = defaultIdleTTL
	}
	return &TenantPools{
		config:  config,
		idleTTL: idleTTL,
		now:     time.Now,
		pools:   make(map[string]*tenantPoolEntry),
	}
}

// Acquire blocks until the tenant's pool grants a slot for the gateway
// type, creating the pool on first use.
func (t *TenantPools) Acquire(ctx context.Context, tenant, agent string) error {
	return t.forTenant(tenant).Acquire(ctx, agent)
}

// TryAcquire attempts to take a slot without blocking
func (t *TenantPools) TryAcquire(tenant, agent string) bool {
	return t.forTenant(tenant).TryAcquire(agent)
}

// Release returns the tenant's slot for the gateway type
func (t *TenantPools) Release(tenant, agent string) {
	t.mu.Lock()
	entry, ok := t.pools[tenant]
	if ok {
		entry.lastUsed = t.now()
	}
	t.mu.Unlock()

	if ok {
		entry.pool.Release(agent)
	}
}

// Pool returns the tenant's pool, creating it on first use
func (t *TenantPools) Pool(tenant string) *AgentPool {
	return t.forTenant(tenant)
}

// Size returns the number of live tenant pools
func (t *TenantPools) Size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pools)
}

// Stats returns slot usage per tenant
func (t *TenantPools) Stats() map[string]map[string]AgentStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make(map[string]map[string]AgentStats, len(t.pools))
	for tenant, entry := range t.pools {
		stats[tenant] = entry.pool.Stats()
	}
	return stats
}

func (t *TenantPools) forTenant(tenant string) *AgentPool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictLocked()

	entry, ok := t.pools[tenant]
	if !ok {
		entry = &tenantPoolEntry{pool: t.newPool()}
		t.pools[tenant] = entry
	}
	entry.lastUsed = t.now()
	return entry.pool
}

func (t *TenantPools) newPool() *AgentPool {
	if len(t.config.MaxPerAgent) == 0 {
		return NewAgentPool()
	}
	return NewAgentPoolWithConfig(t.config)
}

// evictLocked drops pools idle past the TTL. A pool with slots still in
// flight is never evicted, however stale its timestamp.
func (t *TenantPools) evictLocked() {
	cutoff := t.now().Add(-t.idleTTL)
	for tenant, entry := range t.pools {
		if entry.lastUsed.Before(cutoff) && entry.pool.idle() {
			delete(t.pools, tenant)
		}
	}
}
