package repository

import (
	"context"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
)

// PreviewRepository stores the ordered candidate snapshots an
// approval-gated phase generates before pausing. One set exists per
// (flow, gate) pair and is replaced wholesale on each gate entry.
type PreviewRepository interface {
	// SaveSet replaces the preview set for a gate
	SaveSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string, records []preview.Record) error

	// LoadSet returns the preview set for a gate in insertion order
	LoadSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string) ([]preview.Record, error)

	// DeleteSet removes a consumed preview set
	DeleteSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string) error
}
