package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/asset"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/conflict"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

// ConflictRepositoryImpl implements repository.ConflictRepository with
// SQLite. Candidate and existing-asset snapshots are stored as full JSON
// documents so resolution needs no joins back into the assets table.
type ConflictRepositoryImpl struct {
	db *sql.DB
}

// NewConflictRepository creates a new SQLite-based conflict repository
func NewConflictRepository(db *sql.DB) repository.ConflictRepository {
	return &ConflictRepositoryImpl{db: db}
}

func (r *ConflictRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

const conflictColumns = `id, account_id, engagement_id, flow_id, dimension,
	       candidate, existing, status, decision, created_at, resolved_at`

// SaveAll persists a batch of conflict records
func (r *ConflictRepositoryImpl) SaveAll(ctx context.Context, records []*conflict.Record) error {
	query := `
		INSERT INTO conflicts (` + conflictColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	db := r.getDB(ctx)
	for _, rec := range records {
		candidateJSON, err := json.Marshal(rec.Candidate())
		if err != nil {
			return fmt.Errorf("marshal candidate failed: %w", err)
		}
		existingJSON, err := json.Marshal(rec.Existing())
		if err != nil {
			return fmt.Errorf("marshal existing failed: %w", err)
		}

		var resolvedAt interface{}
		if rec.ResolvedAt() != nil {
			resolvedAt = formatTime(rec.ResolvedAt().Value())
		}

		_, err = db.ExecContext(ctx, query,
			rec.ID(), rec.Tenant().AccountID(), rec.Tenant().EngagementID(), rec.FlowID().String(),
			string(rec.Dimension()), string(candidateJSON), string(existingJSON),
			rec.Status().String(), string(rec.Decision()),
			formatTime(rec.CreatedAt().Value()), resolvedAt,
		)
		if err != nil {
			return fmt.Errorf("save conflict %s failed: %w", rec.ID(), err)
		}
	}
	return nil
}

// FindPending returns the unresolved conflicts for a flow, oldest first
func (r *ConflictRepositoryImpl) FindPending(ctx context.Context, tenant model.Tenant, flowID model.FlowID) ([]*conflict.Record, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE account_id = ? AND engagement_id = ? AND flow_id = ? AND status = ?
		ORDER BY created_at
	`

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, query,
		tenant.AccountID(), tenant.EngagementID(), flowID.String(), conflict.ResolutionPending.String())
	if err != nil {
		return nil, fmt.Errorf("find pending conflicts failed: %w", err)
	}
	defer rows.Close()

	var records []*conflict.Record
	for rows.Next() {
		rec, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts failed: %w", err)
	}
	return records, nil
}

// FindByID retrieves one conflict record
func (r *ConflictRepositoryImpl) FindByID(ctx context.Context, tenant model.Tenant, id string) (*conflict.Record, error) {
	query := `
		SELECT ` + conflictColumns + `
		FROM conflicts
		WHERE id = ? AND account_id = ? AND engagement_id = ?
	`

	db := r.getDB(ctx)
	rec, err := scanConflict(db.QueryRowContext(ctx, query, id, tenant.AccountID(), tenant.EngagementID()))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conflict not found: %s", id)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update persists a resolution decision
func (r *ConflictRepositoryImpl) Update(ctx context.Context, record *conflict.Record) error {
	var resolvedAt interface{}
	if record.ResolvedAt() != nil {
		resolvedAt = formatTime(record.ResolvedAt().Value())
	}

	query := `
		UPDATE conflicts SET status = ?, decision = ?, resolved_at = ?
		WHERE id = ? AND account_id = ? AND engagement_id = ?
	`

	db := r.getDB(ctx)
	result, err := db.ExecContext(ctx, query,
		record.Status().String(), string(record.Decision()), resolvedAt,
		record.ID(), record.Tenant().AccountID(), record.Tenant().EngagementID(),
	)
	if err != nil {
		return fmt.Errorf("update conflict failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected failed: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conflict not found: %s", record.ID())
	}
	return nil
}

// CountPending returns the number of unresolved conflicts for a flow
func (r *ConflictRepositoryImpl) CountPending(ctx context.Context, tenant model.Tenant, flowID model.FlowID) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM conflicts
		WHERE account_id = ? AND engagement_id = ? AND flow_id = ? AND status = ?
	`

	db := r.getDB(ctx)
	var count int
	err := db.QueryRowContext(ctx, query,
		tenant.AccountID(), tenant.EngagementID(), flowID.String(), conflict.ResolutionPending.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count pending conflicts failed: %w", err)
	}
	return count, nil
}

func scanConflict(row rowScanner) (*conflict.Record, error) {
	var (
		id, accountID, engagementID, flowIDStr string
		dimension                              string
		candidateJSON, existingJSON            string
		status                                 string
		decision                               sql.NullString
		createdAt                              string
		resolvedAt                             sql.NullString
	)

	err := row.Scan(
		&id, &accountID, &engagementID, &flowIDStr, &dimension,
		&candidateJSON, &existingJSON, &status, &decision, &createdAt, &resolvedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan conflict failed: %w", err)
	}

	tenant, err := model.NewTenant(accountID, engagementID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant: %w", err)
	}
	flowID, err := model.NewFlowIDFromString(flowIDStr)
	if err != nil {
		return nil, fmt.Errorf("invalid flow ID: %w", err)
	}

	var candidate, existing asset.Candidate
	if err := json.Unmarshal([]byte(candidateJSON), &candidate); err != nil {
		return nil, fmt.Errorf("unmarshal candidate failed: %w", err)
	}
	if err := json.Unmarshal([]byte(existingJSON), &existing); err != nil {
		return nil, fmt.Errorf("unmarshal existing failed: %w", err)
	}

	createdAtTime, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at failed: %w", err)
	}
	var resolvedAtTime *time.Time
	if resolvedAt.Valid && resolvedAt.String != "" {
		t, err := parseTime(resolvedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse resolved_at failed: %w", err)
		}
		resolvedAtTime = &t
	}

	return conflict.ReconstructRecord(
		id, tenant, flowID,
		asset.NaturalKeyDimension(dimension),
		candidate, existing,
		conflict.ResolutionStatus(status), conflict.Resolution(decision.String),
		createdAtTime, resolvedAtTime,
	), nil
}
