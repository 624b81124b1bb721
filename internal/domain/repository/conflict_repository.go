package repository

import (
	"context"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/conflict"
)

// ConflictRepository persists natural-key collision records detected by
// the materializer and consumed by human conflict resolution
type ConflictRepository interface {
	// SaveAll persists a batch of conflict records in one transaction
	SaveAll(ctx context.Context, records []*conflict.Record) error

	// FindPending returns the unresolved conflicts for a flow
	FindPending(ctx context.Context, tenant model.Tenant, flowID model.FlowID) ([]*conflict.Record, error)

	// FindByID retrieves one conflict record
	FindByID(ctx context.Context, tenant model.Tenant, id string) (*conflict.Record, error)

	// Update persists a resolution decision
	Update(ctx context.Context, record *conflict.Record) error

	// CountPending returns the number of unresolved conflicts for a flow
	CountPending(ctx context.Context, tenant model.Tenant, flowID model.FlowID) (int, error)
}
