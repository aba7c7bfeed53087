package fetcher

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-validator/internal/model"
)

// SnapshotData is source id -> ticker -> field -> raw value.
type SnapshotData map[model.SourceID]map[string]map[string]any

// Snapshot serves quotes from a file captured earlier, for offline runs.
type Snapshot struct {
	data SnapshotData
}

// NewSnapshot wraps in-memory snapshot data.
func NewSnapshot(data SnapshotData) *Snapshot {
	if data == nil {
		data = SnapshotData{}
	}
	return &Snapshot{data: data}
}

// LoadSnapshot reads a .json, .yaml or .yml snapshot file.
func LoadSnapshot(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "snapshot: read %s", path)
	}

	var data SnapshotData
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, eris.Wrapf(err, "snapshot: parse %s", path)
		}
	case ".json":
		dec := json.NewDecoder(strings.NewReader(string(raw)))
		dec.UseNumber()
		if err := dec.Decode(&data); err != nil {
			return nil, eris.Wrapf(err, "snapshot: parse %s", path)
		}
	default:
		return nil, eris.Errorf("snapshot: unsupported file type %q", filepath.Ext(path))
	}
	return NewSnapshot(data), nil
}

// Fetch implements Fetcher.
func (s *Snapshot) Fetch(ctx context.Context, source model.DataSource, ticker string) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, fetchErr(source, ticker, err)
	}
	fields, ok := s.data[source.ID][ticker]
	if !ok {
		return nil, fetchErr(source, ticker, eris.New("ticker not in snapshot"))
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out, nil
}
