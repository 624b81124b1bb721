package phase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// maxFieldLength bounds any single imported cell
const maxFieldLength = 4096

// ImportValidationExecutor validates the raw import batch: structural,
// content and security checks. Validation is deterministic, so there is no
// Phase Agent invocation and no fallback; a batch with zero valid records
// is a ValidationFailure.
type ImportValidationExecutor struct {
	Base
	def Definition
}

// NewImportValidationExecutor creates the import validation phase
func NewImportValidationExecutor(base Base, timeout time.Duration) *ImportValidationExecutor {
	return &ImportValidationExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseImportValidation,
			FallbackEligible: false,
			Timeout:          timeout,
		},
	}
}

// Definition returns the phase properties
func (e *ImportValidationExecutor) Definition() Definition {
	return e.def
}

// Execute filters the raw records down to the valid subset
func (e *ImportValidationExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	if fs.PhaseCompleted(e.def.Name) {
		return e.previouslyCompleted(e.def), nil
	}

	if err := e.begin(ctx, fs, e.def); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	validationCtx := ctx
	if e.def.Timeout > 0 {
		var cancel context.CancelFunc
		validationCtx, cancel = context.WithTimeout(ctx, e.def.Timeout)
		defer cancel()
	}

	raw := fs.RawRecords()
	if len(raw) == 0 {
		return e.fail(ctx, fs, e.def, &flow.ValidationFailure{
			Phase:  e.def.Name,
			Reason: "import batch contains no records",
		})
	}

	var valid []flow.RawRecord
	rejected := 0
	for _, record := range raw {
		select {
		case <-validationCtx.Done():
			return e.fail(ctx, fs, e.def, fmt.Errorf("import validation timed out: %w", validationCtx.Err()))
		default:
		}

		if reason := validateRecord(record); reason != "" {
			rejected++
			fs.AppendWarning(e.def.Name, fmt.Sprintf("row %d rejected: %s", record.Row, reason))
			continue
		}
		valid = append(valid, sanitizeRecord(record))
	}

	if len(valid) == 0 {
		return e.fail(ctx, fs, e.def, &flow.ValidationFailure{
			Phase:  e.def.Name,
			Reason: fmt.Sprintf("all %d records failed validation", len(raw)),
		})
	}

	fs.SetRawRecords(valid)
	if rejected > 0 {
		fs.AppendWarning(e.def.Name, fmt.Sprintf("%d of %d records rejected", rejected, len(raw)))
	}

	if err := e.complete(ctx, fs, e.def, false); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	return &Outcome{
		Phase:      e.def.Name,
		Status:     OutcomeSucceeded,
		Detail:     fmt.Sprintf("%d valid records, %d rejected", len(valid), rejected),
		Confidence: 1.0,
	}, nil
}

// validateRecord returns a rejection reason, or empty when valid
func validateRecord(r flow.RawRecord) string {
	if len(r.Fields) == 0 {
		return "record has no fields"
	}
	hasValue := false
	for key, value := range r.Fields {
		if strings.TrimSpace(key) == "" {
			return "record has an empty column name"
		}
		if len(value) > maxFieldLength {
			return fmt.Sprintf("field %q exceeds %d characters", key, maxFieldLength)
		}
		if strings.TrimSpace(value) != "" {
			hasValue = true
		}
	}
	if !hasValue {
		return "record has no values"
	}
	return ""
}

// sanitizeRecord strips spreadsheet formula prefixes so imported values
// can never execute when re-exported
func sanitizeRecord(r flow.RawRecord) flow.RawRecord {
	clean := flow.RawRecord{Row: r.Row, Fields: make(map[string]string, len(r.Fields))}
	for key, value := range r.Fields {
		trimmed := strings.TrimSpace(value)
		for len(trimmed) > 0 && strings.ContainsAny(trimmed[:1], "=+-@") {
			trimmed = trimmed[1:]
		}
		clean.Fields[strings.TrimSpace(key)] = trimmed
	}
	return clean
}
