package repository

import (
	"context"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// FlowRepository is the single source of truth for FlowState. Every
// checkpoint in a phase execution flows through Update; Recover
// reconstructs the state after a process restart.
type FlowRepository interface {
	// Init persists a freshly created FlowState
	Init(ctx context.Context, f *flow.FlowState) error

	// Update persists the full current FlowState as one logical write.
	// The phase-completion flag and the payload it guards are always
	// written together.
	Update(ctx context.Context, f *flow.FlowState) error

	// Recover reconstructs a FlowState by ID. Returns nil without error
	// when no such flow exists.
	Recover(ctx context.Context, tenant model.Tenant, id model.FlowID) (*flow.FlowState, error)

	// ValidateIntegrity checks the persisted row against the flow
	// invariants without mutating it
	ValidateIntegrity(ctx context.Context, tenant model.Tenant, id model.FlowID) (*IntegrityReport, error)

	// ExpireStale deletes flows older than the cutoff and returns the
	// IDs of the removed flows so callers can retire their artifacts.
	// Flows newer than the cutoff are never touched, whatever their
	// status.
	ExpireStale(ctx context.Context, olderThan time.Time) ([]model.FlowID, error)

	// List returns flow summaries for a tenant, newest first
	List(ctx context.Context, tenant model.Tenant, limit int) ([]*flow.FlowState, error)
}

// IntegrityReport is the result of a persisted-state integrity check
type IntegrityReport struct {
	Valid    bool
	Errors   []string
	Warnings []string
}
