package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

// PreviewRepositoryImpl implements repository.PreviewRepository with
// SQLite. Insertion order is preserved through an explicit position
// column; a gate's set is replaced wholesale on each save.
type PreviewRepositoryImpl struct {
	db *sql.DB
}

// NewPreviewRepository creates a new SQLite-based preview repository
func NewPreviewRepository(db *sql.DB) repository.PreviewRepository {
	return &PreviewRepositoryImpl{db: db}
}

func (r *PreviewRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

// SaveSet replaces the preview set for a gate
func (r *PreviewRepositoryImpl) SaveSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string, records []preview.Record) error {
	db := r.getDB(ctx)

	_, err := db.ExecContext(ctx,
		"DELETE FROM previews WHERE account_id = ? AND engagement_id = ? AND flow_id = ? AND gate = ?",
		tenant.AccountID(), tenant.EngagementID(), flowID.String(), gate,
	)
	if err != nil {
		return fmt.Errorf("clear preview set failed: %w", err)
	}

	// The agent snapshot and the edit overlay are stored separately so a
	// recovery can still tell which values the user changed
	query := `
		INSERT INTO previews (account_id, engagement_id, flow_id, gate, position, temp_id, fields, user_edits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	for i, rec := range records {
		fieldsJSON, err := json.Marshal(rec.Fields)
		if err != nil {
			return fmt.Errorf("marshal preview fields failed: %w", err)
		}

		var editsJSON interface{}
		if len(rec.UserEdit) > 0 {
			raw, err := json.Marshal(rec.UserEdit)
			if err != nil {
				return fmt.Errorf("marshal preview edits failed: %w", err)
			}
			editsJSON = string(raw)
		}

		_, err = db.ExecContext(ctx, query,
			tenant.AccountID(), tenant.EngagementID(), flowID.String(), gate,
			i, rec.TempID, string(fieldsJSON), editsJSON,
		)
		if err != nil {
			return fmt.Errorf("save preview record %d failed: %w", i, err)
		}
	}
	return nil
}

// LoadSet returns the preview set for a gate in insertion order
func (r *PreviewRepositoryImpl) LoadSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string) ([]preview.Record, error) {
	query := `
		SELECT temp_id, fields, user_edits
		FROM previews
		WHERE account_id = ? AND engagement_id = ? AND flow_id = ? AND gate = ?
		ORDER BY position
	`

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, query,
		tenant.AccountID(), tenant.EngagementID(), flowID.String(), gate)
	if err != nil {
		return nil, fmt.Errorf("load preview set failed: %w", err)
	}
	defer rows.Close()

	var records []preview.Record
	for rows.Next() {
		var (
			tempID     string
			fieldsJSON string
			editsJSON  sql.NullString
		)
		if err := rows.Scan(&tempID, &fieldsJSON, &editsJSON); err != nil {
			return nil, fmt.Errorf("scan preview record failed: %w", err)
		}

		var fields map[string]string
		if err := json.Unmarshal([]byte(fieldsJSON), &fields); err != nil {
			return nil, fmt.Errorf("unmarshal preview fields failed: %w", err)
		}

		rec, err := preview.NewRecord(tempID, fields)
		if err != nil {
			return nil, fmt.Errorf("reconstruct preview record failed: %w", err)
		}
		if editsJSON.Valid && editsJSON.String != "" {
			if err := json.Unmarshal([]byte(editsJSON.String), &rec.UserEdit); err != nil {
				return nil, fmt.Errorf("unmarshal preview edits failed: %w", err)
			}
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate preview records failed: %w", err)
	}
	return records, nil
}

// DeleteSet removes a consumed preview set
func (r *PreviewRepositoryImpl) DeleteSet(ctx context.Context, tenant model.Tenant, flowID model.FlowID, gate string) error {
	db := r.getDB(ctx)
	_, err := db.ExecContext(ctx,
		"DELETE FROM previews WHERE account_id = ? AND engagement_id = ? AND flow_id = ? AND gate = ?",
		tenant.AccountID(), tenant.EngagementID(), flowID.String(), gate,
	)
	if err != nil {
		return fmt.Errorf("delete preview set failed: %w", err)
	}
	return nil
}
