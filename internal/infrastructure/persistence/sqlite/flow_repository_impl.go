package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/repository"
	"github.com/YoshitsuguKoike/assetflow/internal/infrastructure/transaction"
)

// dbExecutor is an interface for executing database queries
// Both *sql.DB and *sql.Tx implement this interface
type dbExecutor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// FlowRepositoryImpl implements repository.FlowRepository with SQLite.
// The whole FlowState is persisted as one row; phase payloads, the
// completion map and diagnostics are JSON columns written in a single
// statement so the flag-implies-payload invariant survives any crash.
type FlowRepositoryImpl struct {
	db *sql.DB
}

// NewFlowRepository creates a new SQLite-based flow repository
func NewFlowRepository(db *sql.DB) repository.FlowRepository {
	return &FlowRepositoryImpl{db: db}
}

// getDB returns the transaction from context when one is active,
// otherwise the database connection
func (r *FlowRepositoryImpl) getDB(ctx context.Context) dbExecutor {
	if tx, ok := transaction.GetTxFromContext(ctx); ok {
		return tx
	}
	return r.db
}

const flowColumns = `id, account_id, engagement_id, user_id, current_phase, status, progress,
	       phase_completion, raw_records, field_mappings, cleaned_records,
	       inventory, dependency_graph, debt_report, errors, warnings, insights,
	       started_at, updated_at, completed_at`

// Init persists a freshly created FlowState
func (r *FlowRepositoryImpl) Init(ctx context.Context, f *flow.FlowState) error {
	cols, err := marshalFlow(f)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO flows (` + flowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	db := r.getDB(ctx)
	_, err = db.ExecContext(ctx, query,
		f.ID().String(), f.Tenant().AccountID(), f.Tenant().EngagementID(), f.UserID(),
		f.CurrentPhase().String(), f.Status().String(), f.Progress(),
		cols.phaseCompletion, cols.rawRecords, cols.fieldMappings, cols.cleanedRecords,
		cols.inventory, cols.dependencyGraph, cols.debtReport,
		cols.errs, cols.warnings, cols.insights,
		formatTime(f.StartedAt().Value()), formatTime(f.UpdatedAt().Value()), cols.completedAt,
	)
	if err != nil {
		return fmt.Errorf("init flow failed: %w", err)
	}
	return nil
}

// Update persists the full current FlowState as one logical write
func (r *FlowRepositoryImpl) Update(ctx context.Context, f *flow.FlowState) error {
	cols, err := marshalFlow(f)
	if err != nil {
		return err
	}

	query := `
		UPDATE flows SET
			user_id = ?, current_phase = ?, status = ?, progress = ?,
			phase_completion = ?, raw_records = ?, field_mappings = ?, cleaned_records = ?,
			inventory = ?, dependency_graph = ?, debt_report = ?,
			errors = ?, warnings = ?, insights = ?,
			updated_at = ?, completed_at = ?
		WHERE id = ? AND account_id = ? AND engagement_id = ?
	`

	db := r.getDB(ctx)
	result, err := db.ExecContext(ctx, query,
		f.UserID(), f.CurrentPhase().String(), f.Status().String(), f.Progress(),
		cols.phaseCompletion, cols.rawRecords, cols.fieldMappings, cols.cleanedRecords,
		cols.inventory, cols.dependencyGraph, cols.debtReport,
		cols.errs, cols.warnings, cols.insights,
		formatTime(f.UpdatedAt().Value()), cols.completedAt,
		f.ID().String(), f.Tenant().AccountID(), f.Tenant().EngagementID(),
	)
	if err != nil {
		return fmt.Errorf("update flow failed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected failed: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("flow not found: %s", f.ID())
	}
	return nil
}

// Recover reconstructs a FlowState by ID. Returns nil without error when
// no such flow exists; absence is a normal answer, not a failure.
func (r *FlowRepositoryImpl) Recover(ctx context.Context, tenant model.Tenant, id model.FlowID) (*flow.FlowState, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE id = ? AND account_id = ? AND engagement_id = ?
	`

	db := r.getDB(ctx)
	f, err := scanFlow(db.QueryRowContext(ctx, query, id.String(), tenant.AccountID(), tenant.EngagementID()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// ValidateIntegrity checks the persisted row against the flow invariants
// without mutating it
func (r *FlowRepositoryImpl) ValidateIntegrity(ctx context.Context, tenant model.Tenant, id model.FlowID) (*repository.IntegrityReport, error) {
	f, err := r.Recover(ctx, tenant, id)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return &repository.IntegrityReport{
			Valid:  false,
			Errors: []string{fmt.Sprintf("flow not found: %s", id)},
		}, nil
	}

	report := &repository.IntegrityReport{Valid: true}
	if errs := f.ValidateConsistency(); len(errs) > 0 {
		report.Valid = false
		report.Errors = errs
	}

	if g := f.DependencyGraph(); g != nil && g.Degraded {
		report.Warnings = append(report.Warnings, "dependency graph was produced by the deterministic fallback")
	}
	if d := f.DebtReport(); d != nil && d.Degraded {
		report.Warnings = append(report.Warnings, "debt report was produced by the deterministic fallback")
	}
	return report, nil
}

// ExpireStale deletes flows not updated since the cutoff and returns the
// IDs of the removed flows. A flow updated at or after the cutoff is
// never touched, whatever its status. Selection and deletion share one
// transaction and the delete targets the selected IDs, so a flow
// checkpointed in between is neither reported nor removed.
func (r *FlowRepositoryImpl) ExpireStale(ctx context.Context, olderThan time.Time) ([]model.FlowID, error) {
	var tx *sql.Tx
	ownTx := false
	if ctxTx, ok := transaction.GetTxFromContext(ctx); ok {
		tx = ctxTx
	} else {
		var err error
		tx, err = r.db.BeginTx(ctx, nil)
		if err != nil {
			return nil, fmt.Errorf("begin expire transaction failed: %w", err)
		}
		ownTx = true
		defer tx.Rollback()
	}

	rows, err := tx.QueryContext(ctx, "SELECT id FROM flows WHERE updated_at < ?", formatTime(olderThan))
	if err != nil {
		return nil, fmt.Errorf("list stale flows failed: %w", err)
	}

	var ids []model.FlowID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan stale flow ID failed: %w", err)
		}
		id, err := model.NewFlowIDFromString(raw)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("invalid stale flow ID %q: %w", raw, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate stale flows failed: %w", err)
	}
	rows.Close()
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM flows WHERE id IN ("+placeholders+")", args...); err != nil {
		return nil, fmt.Errorf("expire flows failed: %w", err)
	}

	if ownTx {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit expire transaction failed: %w", err)
		}
	}
	return ids, nil
}

// List returns flows for a tenant, newest first
func (r *FlowRepositoryImpl) List(ctx context.Context, tenant model.Tenant, limit int) ([]*flow.FlowState, error) {
	query := `
		SELECT ` + flowColumns + `
		FROM flows
		WHERE account_id = ? AND engagement_id = ?
		ORDER BY started_at DESC
	`
	args := []interface{}{tenant.AccountID(), tenant.EngagementID()}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	db := r.getDB(ctx)
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list flows failed: %w", err)
	}
	defer rows.Close()

	var flows []*flow.FlowState
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows failed: %w", err)
	}
	return flows, nil
}

// marshaledFlow holds the JSON column values of one flow row
type marshaledFlow struct {
	phaseCompletion string
	rawRecords      sql.NullString
	fieldMappings   sql.NullString
	cleanedRecords  sql.NullString
	inventory       sql.NullString
	dependencyGraph sql.NullString
	debtReport      sql.NullString
	errs            sql.NullString
	warnings        sql.NullString
	insights        sql.NullString
	completedAt     interface{}
}

func marshalFlow(f *flow.FlowState) (*marshaledFlow, error) {
	completion, err := json.Marshal(f.PhaseCompletion())
	if err != nil {
		return nil, fmt.Errorf("marshal phase completion failed: %w", err)
	}

	cols := &marshaledFlow{phaseCompletion: string(completion)}
	for _, col := range []struct {
		name  string
		value interface{}
		empty bool
		dst   *sql.NullString
	}{
		{"raw_records", f.RawRecords(), len(f.RawRecords()) == 0, &cols.rawRecords},
		{"field_mappings", f.FieldMappings(), len(f.FieldMappings()) == 0, &cols.fieldMappings},
		{"cleaned_records", f.CleanedRecords(), len(f.CleanedRecords()) == 0, &cols.cleanedRecords},
		{"inventory", f.Inventory(), f.Inventory() == nil, &cols.inventory},
		{"dependency_graph", f.DependencyGraph(), f.DependencyGraph() == nil, &cols.dependencyGraph},
		{"debt_report", f.DebtReport(), f.DebtReport() == nil, &cols.debtReport},
		{"errors", f.Errors(), len(f.Errors()) == 0, &cols.errs},
		{"warnings", f.Warnings(), len(f.Warnings()) == 0, &cols.warnings},
		{"insights", f.Insights(), len(f.Insights()) == 0, &cols.insights},
	} {
		if col.empty {
			continue
		}
		data, err := json.Marshal(col.value)
		if err != nil {
			return nil, fmt.Errorf("marshal %s failed: %w", col.name, err)
		}
		*col.dst = sql.NullString{String: string(data), Valid: true}
	}

	if f.CompletedAt() != nil {
		cols.completedAt = formatTime(f.CompletedAt().Value())
	}
	return cols, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFlow(row rowScanner) (*flow.FlowState, error) {
	var (
		id, accountID, engagementID, userID string
		currentPhase, status                string
		progress                            int
		phaseCompletion                     string
		rawRecords, fieldMappings           sql.NullString
		cleanedRecords, inventory           sql.NullString
		dependencyGraph, debtReport         sql.NullString
		errs, warnings, insights            sql.NullString
		startedAt, updatedAt                string
		completedAt                         sql.NullString
	)

	err := row.Scan(
		&id, &accountID, &engagementID, &userID, &currentPhase, &status, &progress,
		&phaseCompletion, &rawRecords, &fieldMappings, &cleanedRecords,
		&inventory, &dependencyGraph, &debtReport, &errs, &warnings, &insights,
		&startedAt, &updatedAt, &completedAt,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan flow failed: %w", err)
	}

	flowID, err := model.NewFlowIDFromString(id)
	if err != nil {
		return nil, fmt.Errorf("invalid flow ID: %w", err)
	}
	tenant, err := model.NewTenant(accountID, engagementID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant: %w", err)
	}

	phaseDone := make(map[model.Phase]bool)
	if err := json.Unmarshal([]byte(phaseCompletion), &phaseDone); err != nil {
		return nil, fmt.Errorf("unmarshal phase completion failed: %w", err)
	}

	var (
		raw      []flow.RawRecord
		mappings []flow.FieldMapping
		cleaned  []flow.CleanedRecord
		inv      *flow.InventorySummary
		graph    *flow.DependencyGraph
		report   *flow.DebtReport
		errList  []flow.Diagnostic
		warnList []flow.Diagnostic
		insList  []flow.AgentInsight
	)
	for _, col := range []struct {
		name string
		src  sql.NullString
		dst  interface{}
	}{
		{"raw_records", rawRecords, &raw},
		{"field_mappings", fieldMappings, &mappings},
		{"cleaned_records", cleanedRecords, &cleaned},
		{"inventory", inventory, &inv},
		{"dependency_graph", dependencyGraph, &graph},
		{"debt_report", debtReport, &report},
		{"errors", errs, &errList},
		{"warnings", warnings, &warnList},
		{"insights", insights, &insList},
	} {
		if !col.src.Valid || col.src.String == "" {
			continue
		}
		if err := json.Unmarshal([]byte(col.src.String), col.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s failed: %w", col.name, err)
		}
	}

	startedAtTime, err := parseTime(startedAt)
	if err != nil {
		return nil, fmt.Errorf("parse started_at failed: %w", err)
	}
	updatedAtTime, err := parseTime(updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at failed: %w", err)
	}
	var completedAtTime *time.Time
	if completedAt.Valid && completedAt.String != "" {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse completed_at failed: %w", err)
		}
		completedAtTime = &t
	}

	return flow.ReconstructFlowState(
		flowID, tenant, userID,
		model.Phase(currentPhase), model.FlowStatus(status), progress, phaseDone,
		raw, mappings, cleaned, inv, graph, report,
		errList, warnList, insList,
		startedAtTime, updatedAtTime, completedAtTime,
	), nil
}

// formatTime stores timestamps as RFC3339 UTC strings so lexical
// comparison in SQL matches chronological order
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime parses a stored timestamp
func parseTime(timeStr string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, timeStr); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("parse time failed: %q", timeStr)
}
