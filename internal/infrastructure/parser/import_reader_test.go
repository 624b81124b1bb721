package parser

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportReader_ReadCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	csv := "Name, Hostname ,IP Address\nweb-01,web-01.corp.local,10.0.0.1\ndb-01,db-01.corp.local,10.0.0.2\n"
	require.NoError(t, afero.WriteFile(fs, "/import/assets.csv", []byte(csv), 0644))

	records, err := NewImportReader(fs).Read("/import/assets.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Row)
	assert.Equal(t, "web-01", records[0].Fields["Name"])
	// Header whitespace is trimmed
	assert.Equal(t, "web-01.corp.local", records[0].Fields["Hostname"])
	assert.Equal(t, "10.0.0.2", records[1].Fields["IP Address"])
}

func TestImportReader_ReadCSVRaggedRows(t *testing.T) {
	fs := afero.NewMemMapFs()
	csv := "Name,Hostname\nweb-01,web-01.corp.local,extra\ndb-01\n"
	require.NoError(t, afero.WriteFile(fs, "/assets.csv", []byte(csv), 0644))

	records, err := NewImportReader(fs).Read("/assets.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Extra cells beyond the header are dropped, short rows keep what they have
	assert.Equal(t, "web-01", records[0].Fields["Name"])
	assert.Equal(t, "db-01", records[1].Fields["Name"])
	_, ok := records[1].Fields["Hostname"]
	assert.False(t, ok)
}

func TestImportReader_ReadJSON(t *testing.T) {
	fs := afero.NewMemMapFs()
	doc := `[
		{"Name": "web-01", "CPU Cores": 8, "Virtual": true, "Notes": null},
		{"Name": "db-01", "Tags": ["prod", "db"]}
	]`
	require.NoError(t, afero.WriteFile(fs, "/assets.json", []byte(doc), 0644))

	records, err := NewImportReader(fs).Read("/assets.json")
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "web-01", records[0].Fields["Name"])
	assert.Equal(t, "8", records[0].Fields["CPU Cores"])
	assert.Equal(t, "true", records[0].Fields["Virtual"])
	assert.Equal(t, "", records[0].Fields["Notes"])
	assert.Equal(t, `["prod","db"]`, records[1].Fields["Tags"])
}

func TestImportReader_UnsupportedFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/assets.xlsx", []byte("binary"), 0644))

	_, err := NewImportReader(fs).Read("/assets.xlsx")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported import format")
}

func TestImportReader_MissingFile(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := NewImportReader(fs).Read("/absent.csv")
	require.Error(t, err)
}
