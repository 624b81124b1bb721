package phase

import (
	"context"
	"fmt"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// DataCleansingExecutor applies the approved field mappings and asks the
// Phase Agent to normalize the records. Its output feeds irreversible
// materialization, so the phase is not fallback-eligible: a malformed
// agent result raises a CriticalPhaseFailure instead of silently
// substituting incomplete data.
type DataCleansingExecutor struct {
	Base
	def Definition
}

// NewDataCleansingExecutor creates the data cleansing phase
func NewDataCleansingExecutor(base Base) *DataCleansingExecutor {
	return &DataCleansingExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseDataCleansing,
			FallbackEligible: false,
		},
	}
}

// Definition returns the phase properties
func (e *DataCleansingExecutor) Definition() Definition {
	return e.def
}

// Execute produces the cleaned record set
func (e *DataCleansingExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	return e.runAgentPhase(ctx, fs, e.def, buildCleansingInput, interpretCleanedRecords)
}

func buildCleansingInput(fs *flow.FlowState) map[string]interface{} {
	mappings := make([]map[string]interface{}, 0, len(fs.FieldMappings()))
	for _, m := range fs.FieldMappings() {
		mappings = append(mappings, map[string]interface{}{
			"source_column": m.SourceColumn,
			"target_field":  m.TargetField,
		})
	}

	records := make([]map[string]interface{}, 0, len(fs.RawRecords()))
	for _, r := range fs.RawRecords() {
		records = append(records, map[string]interface{}{
			"row":    r.Row,
			"fields": r.Fields,
		})
	}

	return map[string]interface{}{
		"mappings": mappings,
		"records":  records,
	}
}

func interpretCleanedRecords(fs *flow.FlowState, result *output.AgentResult, _ bool) error {
	items, err := payloadList(result.Payload, "records")
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("agent returned no cleaned records")
	}

	targets := make(map[string]bool, len(fs.FieldMappings()))
	for _, m := range fs.FieldMappings() {
		targets[m.TargetField] = true
	}

	cleaned := make([]flow.CleanedRecord, 0, len(items))
	for i, item := range items {
		fields := objStringMap(item, "fields")
		if len(fields) == 0 {
			return fmt.Errorf("cleaned record %d has no fields", i)
		}
		// Every mapped target must survive cleansing; a record that lost
		// mapped fields is a schema violation, not a tolerable gap
		for target := range targets {
			if _, ok := fields[target]; !ok {
				return fmt.Errorf("cleaned record %d is missing mapped field %q", i, target)
			}
		}
		record := flow.CleanedRecord{
			Row:    objInt(item, "row"),
			Fields: fields,
		}
		if notes, ok := item["notes"].([]interface{}); ok {
			for _, n := range notes {
				if s, ok := n.(string); ok {
					record.Notes = append(record.Notes, s)
				}
			}
		}
		cleaned = append(cleaned, record)
	}

	fs.SetCleanedRecords(cleaned)
	return nil
}
