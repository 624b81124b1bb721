package repository

import (
	"context"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
)

// NaturalKeyQuery is one bulk lookup across a whole candidate batch:
// all normalized values for a single natural-key dimension
type NaturalKeyQuery struct {
	Dimension asset.NaturalKeyDimension
	Values    []string
}

// AssetRepository persists inventory assets and answers the bulk
// natural-key lookups the materializer needs. One query per dimension
// covers the entire batch; lookups are never issued per candidate.
type AssetRepository interface {
	// Create persists a new asset
	Create(ctx context.Context, a *asset.Asset) error

	// FindByNaturalKeys returns all existing assets matching any of the
	// given normalized values on the query's dimension, tenant-scoped
	FindByNaturalKeys(ctx context.Context, tenant model.Tenant, query NaturalKeyQuery) ([]*asset.Asset, error)

	// FindByID retrieves one asset
	FindByID(ctx context.Context, tenant model.Tenant, id string) (*asset.Asset, error)

	// List returns assets for a tenant, newest first
	List(ctx context.Context, tenant model.Tenant, limit int) ([]*asset.Asset, error)

	// CountByFlow returns how many assets a flow created
	CountByFlow(ctx context.Context, tenant model.Tenant, flowID model.FlowID) (int, error)
}
