package preview

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecord(t *testing.T) {
	rec, err := NewRecord("tmp-1", map[string]string{"name": "web-01"})
	require.NoError(t, err)
	assert.Equal(t, "tmp-1", rec.TempID)
	assert.Equal(t, "web-01", rec.Fields["name"])

	_, err = NewRecord("", nil)
	require.Error(t, err)
}

func TestNewRecord_NilFieldsBecomeEmptyMap(t *testing.T) {
	rec, err := NewRecord("tmp-1", nil)
	require.NoError(t, err)
	assert.NotNil(t, rec.Fields)
}

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name     string
		decision Decision
		wantErr  bool
	}{
		{"valid", Decision{ApprovedIDs: []string{"a", "b"}}, false},
		{"empty", Decision{}, true},
		{"blank ID", Decision{ApprovedIDs: []string{"a", ""}}, true},
		{"duplicate ID", Decision{ApprovedIDs: []string{"a", "a"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.decision.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMergeEdits(t *testing.T) {
	fields := map[string]string{"name": "web-01", "category": "server"}
	edits := map[string]string{"name": "web-01-prod", "env": "prod"}

	merged := MergeEdits(fields, edits)

	assert.Equal(t, "web-01-prod", merged["name"], "edits overwrite originals")
	assert.Equal(t, "server", merged["category"], "untouched fields survive")
	assert.Equal(t, "prod", merged["env"], "new fields are added")
	assert.Equal(t, "web-01", fields["name"], "input maps are not mutated")
}

func TestRecordMerged(t *testing.T) {
	rec := Record{
		TempID:   "tmp-1",
		Fields:   map[string]string{"target_field": "hostname"},
		UserEdit: map[string]string{"target_field": "fqdn"},
	}
	assert.Equal(t, "fqdn", rec.Merged()["target_field"])
}
