package preview

import (
	"errors"
)

// Record is one keyed snapshot generated before an approval-gated phase
// proceeds. The gate is generic: the fields may describe a proposed field
// mapping or a candidate asset. UserEdit is an optional overlay applied
// over the fields when the approval decision arrives.
type Record struct {
	TempID   string            `json:"temp_id"`
	Fields   map[string]string `json:"fields"`
	UserEdit map[string]string `json:"user_edit,omitempty"`
}

// NewRecord creates a preview record
func NewRecord(tempID string, fields map[string]string) (Record, error) {
	if tempID == "" {
		return Record{}, errors.New("temp ID cannot be empty")
	}
	if fields == nil {
		fields = map[string]string{}
	}
	return Record{TempID: tempID, Fields: fields}, nil
}

// Decision is the approval input: the approved temp IDs plus optional
// per-candidate edits keyed the same way
type Decision struct {
	ApprovedIDs []string                     `json:"approved_ids"`
	Edits       map[string]map[string]string `json:"edits,omitempty"`
}

// Validate checks the decision is well-formed
func (d Decision) Validate() error {
	if len(d.ApprovedIDs) == 0 {
		return errors.New("decision approves no candidates")
	}
	seen := make(map[string]bool, len(d.ApprovedIDs))
	for _, id := range d.ApprovedIDs {
		if id == "" {
			return errors.New("approved ID cannot be empty")
		}
		if seen[id] {
			return errors.New("duplicate approved ID: " + id)
		}
		seen[id] = true
	}
	return nil
}

// MergeEdits applies an edit overlay onto a field snapshot. Edited fields
// overwrite the original; fields absent from the edit are kept.
func MergeEdits(fields, edits map[string]string) map[string]string {
	merged := make(map[string]string, len(fields)+len(edits))
	for k, v := range fields {
		merged[k] = v
	}
	for k, v := range edits {
		merged[k] = v
	}
	return merged
}

// Merged returns the record's fields with its stored edit overlay applied
func (r Record) Merged() map[string]string {
	return MergeEdits(r.Fields, r.UserEdit)
}
