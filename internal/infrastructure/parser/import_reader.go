package parser

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// ImportReader loads tabular import sources (CSV or JSON) into raw
// records. Headers are trimmed but otherwise untouched; row numbers are
// 1-based over the data rows so diagnostics match what a spreadsheet user
// sees.
type ImportReader struct {
	fs afero.Fs
}

// NewImportReader creates a reader over the given filesystem
func NewImportReader(fs afero.Fs) *ImportReader {
	return &ImportReader{fs: fs}
}

// Read parses the source file into raw records based on its extension
func (r *ImportReader) Read(path string) ([]flow.RawRecord, error) {
	content, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read import source failed: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return parseCSV(content)
	case ".json":
		return parseJSON(content)
	default:
		return nil, fmt.Errorf("unsupported import format: %s (expected .csv or .json)", filepath.Ext(path))
	}
}

func parseCSV(content []byte) ([]flow.RawRecord, error) {
	reader := csv.NewReader(strings.NewReader(string(content)))
	reader.FieldsPerRecord = -1 // ragged rows are the validator's problem

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("import source is empty")
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	records := make([]flow.RawRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		fields := make(map[string]string, len(header))
		for j, value := range row {
			if j >= len(header) || header[j] == "" {
				continue
			}
			fields[header[j]] = value
		}
		records = append(records, flow.RawRecord{Row: i + 1, Fields: fields})
	}
	return records, nil
}

func parseJSON(content []byte) ([]flow.RawRecord, error) {
	var rows []map[string]interface{}
	if err := json.Unmarshal(content, &rows); err != nil {
		return nil, fmt.Errorf("parse JSON failed: %w (expected an array of objects)", err)
	}

	records := make([]flow.RawRecord, 0, len(rows))
	for i, row := range rows {
		fields := make(map[string]string, len(row))
		for key, value := range row {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			fields[key] = stringifyValue(value)
		}
		records = append(records, flow.RawRecord{Row: i + 1, Fields: fields})
	}
	return records, nil
}

// stringifyValue flattens a JSON scalar into the string form the pipeline
// works with. Nested structures are re-encoded as compact JSON.
func stringifyValue(v interface{}) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
