package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

// AssetRepositoryImpl implements repository.AssetRepository with SQLite.
// Normalized natural-key values are stored in dedicated indexed columns
// so one IN query per dimension covers a whole candidate batch.
type AssetRepositoryImpl struct {
	db *sql.DB
}

// NewAssetRepository creates a new SQLite-based asset repository
func NewAssetRepository(db *sql.DB) repository.AssetRepository {
	return &AssetRepositoryImpl{db: db}
}

func (r *AssetRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

const assetColumns = `id, account_id, engagement_id, flow_id, name, hostname, ip_address,
	       category, attributes, created_at, updated_at`

// keyColumn maps a natural-key dimension onto its normalized column
func keyColumn(dim asset.NaturalKeyDimension) (string, error) {
	switch dim {
	case asset.KeyName:
		return "name_key", nil
	case asset.KeyHostname:
		return "hostname_key", nil
	case asset.KeyAddress:
		return "ip_key", nil
	default:
		return "", fmt.Errorf("unknown natural-key dimension: %s", dim)
	}
}

// Create persists a new asset
func (r *AssetRepositoryImpl) Create(ctx context.Context, a *asset.Asset) error {
	attrsJSON, err := json.Marshal(a.Attributes())
	if err != nil {
		return fmt.Errorf("marshal attributes failed: %w", err)
	}

	query := `
		INSERT INTO assets (id, account_id, engagement_id, flow_id, name, hostname, ip_address,
		                    category, attributes, name_key, hostname_key, ip_key,
		                    created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	db := r.getDB(ctx)
	_, err = db.ExecContext(ctx, query,
		a.ID(), a.Tenant().AccountID(), a.Tenant().EngagementID(), a.FlowID().String(),
		a.Name(), a.Hostname(), a.IPAddress(),
		a.Category().String(), string(attrsJSON),
		asset.NormalizeKey(a.Name()), asset.NormalizeKey(a.Hostname()), asset.NormalizeKey(a.IPAddress()),
		formatTime(a.CreatedAt().Value()), formatTime(a.UpdatedAt().Value()),
	)
	if err != nil {
		return fmt.Errorf("create asset failed: %w", err)
	}
	return nil
}

// FindByNaturalKeys returns all existing assets matching any of the given
// normalized values on the query's dimension. One call per dimension
// serves the entire batch; values are deduplicated by the caller.
func (r *AssetRepositoryImpl) FindByNaturalKeys(ctx context.Context, tenant model.Tenant, query repository.NaturalKeyQuery) ([]*asset.Asset, error) {
	if len(query.Values) == 0 {
		return nil, nil
	}

	column, err := keyColumn(query.Dimension)
	if err != nil {
		return nil, err
	}

	placeholders := strings.Repeat("?, ", len(query.Values)-1) + "?"
	stmt := fmt.Sprintf(`
		SELECT `+assetColumns+`
		FROM assets
		WHERE account_id = ? AND engagement_id = ? AND %s IN (%s)
	`, column, placeholders)

	args := []interface{}{tenant.AccountID(), tenant.EngagementID()}
	for _, v := range query.Values {
		args = append(args, v)
	}

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("natural-key lookup failed: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// FindByID retrieves one asset
func (r *AssetRepositoryImpl) FindByID(ctx context.Context, tenant model.Tenant, id string) (*asset.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE id = ? AND account_id = ? AND engagement_id = ?
	`

	db := r.getDB(ctx)
	a, err := scanAsset(db.QueryRowContext(ctx, query, id, tenant.AccountID(), tenant.EngagementID()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("asset not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns assets for a tenant, newest first
func (r *AssetRepositoryImpl) List(ctx context.Context, tenant model.Tenant, limit int) ([]*asset.Asset, error) {
	query := `
		SELECT ` + assetColumns + `
		FROM assets
		WHERE account_id = ? AND engagement_id = ?
		ORDER BY created_at DESC
	`
	args := []interface{}{tenant.AccountID(), tenant.EngagementID()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list assets failed: %w", err)
	}
	defer rows.Close()

	return collectAssets(rows)
}

// CountByFlow returns how many assets a flow created
func (r *AssetRepositoryImpl) CountByFlow(ctx context.Context, tenant model.Tenant, flowID model.FlowID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM assets
		WHERE account_id = ? AND engagement_id = ? AND flow_id = ?
	`

	db := r.getDB(ctx)
	var count int
	err := db.QueryRowContext(ctx, query, tenant.AccountID(), tenant.EngagementID(), flowID.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count assets failed: %w", err)
	}
	return count, nil
}

func collectAssets(rows *sql.Rows) ([]*asset.Asset, error) {
	var assets []*asset.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assets failed: %w", err)
	}
	return assets, nil
}

func scanAsset(row rowScanner) (*asset.Asset, error) {
	var (
		id, accountID, engagementID, flowIDStr string
		name                                   string
		hostname, ipAddress, attrsJSON         sql.NullString
		category                               string
		createdAt, updatedAt                   string
	)

	err := row.Scan(
		&id, &accountID, &engagementID, &flowIDStr, &name, &hostname, &ipAddress,
		&category, &attrsJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan asset failed: %w", err)
	}

	tenant, err := model.NewTenant(accountID, engagementID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant: %w", err)
	}
	flowID, err := model.NewFlowIDFromString(flowIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid flow ID: %w", err)
	}

	var attrs map[string]string
	if attrsJSON.Valid && attrsJSON.String != "" {
		if err := json.Unmarshal([]byte(attrsJSON.String), &attrs); err != nil {
			return nil, fmt.Errorf("unmarshal attributes failed: %w", err)
		}
	}

	createdAtTime, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at failed: %w", err)
	}
	updatedAtTime, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at failed: %w", err)
	}
	return asset.ReconstructAsset(
		id, tenant, flowID,
		name, hostname.String, ipAddress.String,
		asset.Category(category), attrs,
		createdAtTime, updatedAtTime,
	), nil
}
