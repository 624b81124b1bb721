package flow

// Phase payloads accumulated on a FlowState as the pipeline advances.
// These are plain data carriers; they are persisted as JSON documents
// alongside the flow row.

// RawRecord is one row of the imported tabular source, untouched except
// for header normalization
type RawRecord struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
}

// FieldMapping maps one source column onto a canonical inventory field
type FieldMapping struct {
	SourceColumn string        `json:"source_column"`
	TargetField  string        `json:"target_field"`
	Confidence   float64       `json:"confidence"`
	Method       MappingMethod `json:"method"`
}

// MappingMethod records how a field mapping was derived
type MappingMethod string

const (
	MappingMethodAgent MappingMethod = "agent"
	MappingMethodExact MappingMethod = "exact"
	MappingMethodFuzzy MappingMethod = "fuzzy"
	MappingMethodUser  MappingMethod = "user"
)

// CleanedRecord is one record after the cleansing phase
type CleanedRecord struct {
	Row    int               `json:"row"`
	Fields map[string]string `json:"fields"`
	Notes  []string          `json:"notes,omitempty"`
}

// InventorySummary is the result of the materialization phase
type InventorySummary struct {
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Conflicts  int      `json:"conflicts"`
	Failed     int      `json:"failed"`
	CreatedIDs []string `json:"created_ids,omitempty"`

	// ConflictResolutionPending is set when the conflict-free subset has
	// been created but collisions still await a human decision
	ConflictResolutionPending bool `json:"conflict_resolution_pending"`
}

// DependencyEdge is one inferred relationship between two inventory assets
type DependencyEdge struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Kind       string  `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// DependencyGraph is the result of the dependency analysis phase
type DependencyGraph struct {
	Edges      []DependencyEdge `json:"edges"`
	Confidence float64          `json:"confidence"`
	Degraded   bool             `json:"degraded"`
}

// DebtFinding is one technical-debt observation against an asset
type DebtFinding struct {
	AssetName string  `json:"asset_name"`
	Category  string  `json:"category"`
	Detail    string  `json:"detail"`
	Severity  string  `json:"severity"`
	Score     float64 `json:"score"`
}

// DebtReport is the result of the debt analysis phase
type DebtReport struct {
	Findings   []DebtFinding `json:"findings"`
	Confidence float64       `json:"confidence"`
	Degraded   bool          `json:"degraded"`
}
