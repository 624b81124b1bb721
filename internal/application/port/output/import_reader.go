package output

import (
	"github.com/YoshitsuguKoike/assetflow/internal/domain/model/flow"
)

// ImportSourceReader loads a tabular import source into raw records.
// Implementations decide which file formats they accept.
type ImportSourceReader interface {
	Read(path string) ([]flow.RawRecord, error)
}
