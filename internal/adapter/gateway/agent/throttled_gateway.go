package agent

import (
	"context"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/application/service"
)

// ThrottledGateway wraps an AgentGateway with tenant-scoped concurrency
// control. Flows for the same tenant share that tenant's slots, so a slow
// agent backs them up instead of forking more processes; other tenants
// keep their own budget.
type ThrottledGateway struct {
	inner output.AgentGateway
	pools *service.TenantPools
}

// NewThrottledGateway wraps the gateway. A nil pool set disables throttling.
func NewThrottledGateway(inner output.AgentGateway, pools *service.TenantPools) *ThrottledGateway {
	return &ThrottledGateway{inner: inner, pools: pools}
}

// Invoke waits for a slot in the requesting tenant's pool, then delegates
func (g *ThrottledGateway) Invoke(ctx context.Context, req output.AgentRequest) (*output.AgentResult, error) {
	if g.pools != nil {
		tenant := tenantScope(req.Context)
		if err := g.pools.Acquire(ctx, tenant, g.inner.AgentType()); err != nil {
			return nil, err
		}
		defer g.pools.Release(tenant, g.inner.AgentType())
	}
	return g.inner.Invoke(ctx, req)
}

// AgentType returns the wrapped gateway's identifier
func (g *ThrottledGateway) AgentType() string {
	return g.inner.AgentType()
}

// HealthCheck delegates without taking a slot
func (g *ThrottledGateway) HealthCheck(ctx context.Context) error {
	return g.inner.HealthCheck(ctx)
}

// tenantScope derives the pool key from the request context. Requests
// without tenant identifiers share one scope.
func tenantScope(ctx map[string]string) string {
	account := ctx["account_id"]
	engagement := ctx["engagement_id"]
	if account == "" && engagement == "" {
		return "unscoped"
	}
	return account + "/" + engagement
}
