package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/application/service"
)

func tenantRequest(phase, account, engagement string) output.AgentRequest {
	return output.AgentRequest{
		Phase: phase,
		Context: map[string]string{
			"account_id":    account,
			"engagement_id": engagement,
		},
	}
}

func TestThrottledGateway_Delegates(t *testing.T) {
	mock := NewMockGateway()
	mock.ScriptPayload("field_mapping", map[string]interface{}{"mappings": []interface{}{}})

	gw := NewThrottledGateway(mock, service.NewTenantPools(service.AgentPoolConfig{}, 0))

	result, err := gw.Invoke(context.Background(), tenantRequest("field_mapping", "acme", "2026-audit"))
	require.NoError(t, err)
	assert.NotNil(t, result.Payload)
	assert.Equal(t, "mock", gw.AgentType())
}

func TestThrottledGateway_BlocksWhenTenantPoolExhausted(t *testing.T) {
	mock := NewMockGateway()
	mock.ScriptPayload("debt_analysis", map[string]interface{}{"findings": []interface{}{}})

	pools := service.NewTenantPools(service.AgentPoolConfig{
		MaxPerAgent: map[string]int{"mock": 1},
	}, 0)
	require.NoError(t, pools.Acquire(context.Background(), "acme/2026-audit", "mock"))

	gw := NewThrottledGateway(mock, pools)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	_, err := gw.Invoke(ctx, tenantRequest("debt_analysis", "acme", "2026-audit"))
	require.Error(t, err)

	pools.Release("acme/2026-audit", "mock")
	result, err := gw.Invoke(context.Background(), tenantRequest("debt_analysis", "acme", "2026-audit"))
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 0, pools.Pool("acme/2026-audit").Current("mock"), "slot is released after the call")
}

func TestThrottledGateway_TenantsDoNotShareSlots(t *testing.T) {
	mock := NewMockGateway()
	mock.ScriptPayload("debt_analysis", map[string]interface{}{"findings": []interface{}{}})

	pools := service.NewTenantPools(service.AgentPoolConfig{
		MaxPerAgent: map[string]int{"mock": 1},
	}, 0)
	require.NoError(t, pools.Acquire(context.Background(), "acme/2026-audit", "mock"))

	gw := NewThrottledGateway(mock, pools)

	// acme's only slot is held, but globex runs immediately
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	result, err := gw.Invoke(ctx, tenantRequest("debt_analysis", "globex", "2026-audit"))
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, 1, pools.Pool("acme/2026-audit").Current("mock"))
	assert.Equal(t, 0, pools.Pool("globex/2026-audit").Current("mock"))
}

func TestThrottledGateway_NilPools(t *testing.T) {
	mock := NewMockGateway()
	mock.ScriptPayload("field_mapping", map[string]interface{}{"mappings": []interface{}{}})

	gw := NewThrottledGateway(mock, nil)
	_, err := gw.Invoke(context.Background(), output.AgentRequest{Phase: "field_mapping"})
	require.NoError(t, err)
	require.NoError(t, gw.HealthCheck(context.Background()))
}
