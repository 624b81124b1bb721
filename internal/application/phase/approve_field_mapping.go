package phase

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/YoshitsuguKoike/assetflow/internal/application/approval"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/preview"
)

// ApproveFieldMappingExecutor pauses the pipeline until a human approves
// the proposed field mappings. On first execution it snapshots the
// mappings into a preview set and moves the flow to awaiting_approval; on
// decision submission ApplyDecision installs the approved, edit-merged
// subset as the effective mapping.
type ApproveFieldMappingExecutor struct {
	Base
	def         Definition
	gate        *approval.Gate
	autoApprove bool
}

// NewApproveFieldMappingExecutor creates the mapping approval phase
func NewApproveFieldMappingExecutor(base Base, gate *approval.Gate, autoApprove bool) *ApproveFieldMappingExecutor {
	return &ApproveFieldMappingExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseApproveFieldMapping,
			FallbackEligible: false,
		},
		gate:        gate,
		autoApprove: autoApprove,
	}
}

// Definition returns the phase properties
func (e *ApproveFieldMappingExecutor) Definition() Definition {
	return e.def
}

// Execute requests approval and pauses, or auto-approves when configured
func (e *ApproveFieldMappingExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	if fs.PhaseCompleted(e.def.Name) {
		return e.previouslyCompleted(e.def), nil
	}

	if err := e.begin(ctx, fs, e.def); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	mappings := fs.FieldMappings()
	if len(mappings) == 0 {
		return e.fail(ctx, fs, e.def, &flow.ValidationFailure{
			Phase:  e.def.Name,
			Reason: "no field mappings to approve",
		})
	}

	if e.autoApprove {
		if err := e.complete(ctx, fs, e.def, false); err != nil {
			return e.fail(ctx, fs, e.def, err)
		}
		return &Outcome{
			Phase:      e.def.Name,
			Status:     OutcomeSucceeded,
			Detail:     "auto-approved by configuration",
			Confidence: 1.0,
		}, nil
	}

	records := make([]preview.Record, 0, len(mappings))
	for _, m := range mappings {
		record, err := preview.NewRecord(uuid.New().String(), mappingFields(m))
		if err != nil {
			return e.fail(ctx, fs, e.def, err)
		}
		records = append(records, record)
	}

	if _, err := e.gate.RequestApproval(ctx, fs, approval.GateFieldMapping, records); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	return &Outcome{
		Phase:  e.def.Name,
		Status: OutcomePaused,
		Detail: fmt.Sprintf("%d mappings awaiting approval", len(records)),
	}, nil
}

// ApplyDecision installs the approved mappings and completes the phase.
// Called by the orchestrator after the gate resolves a submitted decision.
func (e *ApproveFieldMappingExecutor) ApplyDecision(ctx context.Context, fs *flow.FlowState, approved []preview.Record) (*Outcome, error) {
	if fs.PhaseCompleted(e.def.Name) {
		return e.previouslyCompleted(e.def), nil
	}

	mappings := make([]flow.FieldMapping, 0, len(approved))
	for _, record := range approved {
		fields := record.Fields
		m := flow.FieldMapping{
			SourceColumn: fields["source_column"],
			TargetField:  fields["target_field"],
			Method:       flow.MappingMethod(fields["method"]),
		}
		if c, err := strconv.ParseFloat(fields["confidence"], 64); err == nil {
			m.Confidence = c
		}
		if len(record.UserEdit) > 0 {
			m.Method = flow.MappingMethodUser
			m.Confidence = 1.0
		}
		if m.SourceColumn == "" || m.TargetField == "" {
			return e.fail(ctx, fs, e.def, &flow.ValidationFailure{
				Phase:  e.def.Name,
				Reason: fmt.Sprintf("approved mapping %s has no source or target after edits", record.TempID),
			})
		}
		mappings = append(mappings, m)
	}

	fs.SetFieldMappings(mappings)
	if err := e.complete(ctx, fs, e.def, false); err != nil {
		return e.fail(ctx, fs, e.def, err)
	}

	return &Outcome{
		Phase:      e.def.Name,
		Status:     OutcomeSucceeded,
		Detail:     fmt.Sprintf("%d mappings approved", len(mappings)),
		Confidence: 1.0,
	}, nil
}

func mappingFields(m flow.FieldMapping) map[string]string {
	return map[string]string{
		"source_column": m.SourceColumn,
		"target_field":  m.TargetField,
		"confidence":    strconv.FormatFloat(m.Confidence, 'f', 2, 64),
		"method":        string(m.Method),
	}
}
