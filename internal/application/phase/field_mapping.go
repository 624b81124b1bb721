package phase

import (
	"context"
	"fmt"
	"sort"

	"github.com/YoshitsuguKoike/assetflow/internal/application/port/output"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model"
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// sampleRowLimit bounds how many rows are shown to the agent as context
const sampleRowLimit = 5

// FieldMappingExecutor asks the Phase Agent to map source columns onto
// canonical inventory fields. The phase is advisory and fallback-eligible:
// when the agent is unavailable a deterministic exact/fuzzy header match
// substitutes, with a lower-confidence marker.
type FieldMappingExecutor struct {
	Base
	def Definition
}

// NewFieldMappingExecutor creates the field mapping phase
func NewFieldMappingExecutor(base Base) *FieldMappingExecutor {
	return &FieldMappingExecutor{
		Base: base,
		def: Definition{
			Name:             model.PhaseFieldMapping,
			FallbackEligible: true,
		},
	}
}

// Definition returns the phase properties
func (e *FieldMappingExecutor) Definition() Definition {
	return e.def
}

// Execute derives field mappings from the validated records
func (e *FieldMappingExecutor) Execute(ctx context.Context, fs *flow.FlowState) (*Outcome, error) {
	return e.runAgentPhase(ctx, fs, e.def, buildMappingInput, interpretMappings)
}

func buildMappingInput(fs *flow.FlowState) map[string]interface{} {
	records := fs.RawRecords()

	columnSet := make(map[string]bool)
	for _, r := range records {
		for col := range r.Fields {
			columnSet[col] = true
		}
	}
	columns := make([]string, 0, len(columnSet))
	for col := range columnSet {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	samples := make([]map[string]string, 0, sampleRowLimit)
	for i, r := range records {
		if i >= sampleRowLimit {
			break
		}
		samples = append(samples, r.Fields)
	}

	return map[string]interface{}{
		"columns":     columns,
		"sample_rows": samples,
	}
}

func interpretMappings(fs *flow.FlowState, result *output.AgentResult, degraded bool) error {
	items, err := payloadList(result.Payload, "mappings")
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("agent returned no field mappings")
	}

	method := flow.MappingMethodAgent
	if degraded {
		method = flow.MappingMethodFuzzy
	}

	mappings := make([]flow.FieldMapping, 0, len(items))
	for i, item := range items {
		source := objString(item, "source_column")
		target := objString(item, "target_field")
		if source == "" || target == "" {
			return fmt.Errorf("mapping %d is missing source_column or target_field", i)
		}
		m := flow.FieldMapping{
			SourceColumn: source,
			TargetField:  target,
			Confidence:   objFloat(item, "confidence"),
			Method:       method,
		}
		if declared := objString(item, "method"); declared != "" {
			m.Method = flow.MappingMethod(declared)
		}
		mappings = append(mappings, m)
	}

	fs.SetFieldMappings(mappings)
	return nil
}
