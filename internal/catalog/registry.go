// Package catalog holds the static description of every data source and the
// validation rules applied to it. Both tables are immutable once built and safe
// to share between concurrent sessions.
package catalog

import (
	"strings"

	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/model"
)

// Registry maps a source identifier to its descriptive metadata.
type Registry struct {
	order []model.SourceID
	byID  map[model.SourceID]model.DataSource
}

// NewRegistry validates sources and builds a registry. Every known source must
// be described exactly once.
func NewRegistry(sources []model.DataSource) (*Registry, error) {
	r := &Registry{byID: make(map[model.SourceID]model.DataSource, len(sources))}
	for _, src := range sources {
		if err := validateSource(src); err != nil {
			return nil, err
		}
		if _, dup := r.byID[src.ID]; dup {
			return nil, configErr(src.ID, "described more than once")
		}
		r.byID[src.ID] = src
	}
	for _, id := range KnownSources {
		if _, ok := r.byID[id]; !ok {
			return nil, configErr(id, "no source metadata configured")
		}
		r.order = append(r.order, id)
	}
	return r, nil
}

// Source returns the metadata for id.
func (r *Registry) Source(id model.SourceID) (model.DataSource, error) {
	src, ok := r.byID[id]
	if !ok {
		return model.DataSource{}, configErr(id, "unknown source")
	}
	return src, nil
}

// IDs returns all registered source identifiers in default run order.
func (r *Registry) IDs() []model.SourceID {
	out := make([]model.SourceID, len(r.order))
	copy(out, r.order)
	return out
}

// Sources returns all registered sources in default run order.
func (r *Registry) Sources() []model.DataSource {
	out := make([]model.DataSource, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Resolve validates a caller-supplied list of source ids, keeping the caller's
// order and dropping duplicates. An empty list selects every source.
func (r *Registry) Resolve(ids []string) ([]model.SourceID, error) {
	if len(ids) == 0 {
		return r.IDs(), nil
	}
	seen := make(map[model.SourceID]bool, len(ids))
	out := make([]model.SourceID, 0, len(ids))
	for _, raw := range ids {
		id := model.SourceID(strings.TrimSpace(raw))
		if _, ok := r.byID[id]; !ok {
			return nil, configErr(id, "unknown source")
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out, nil
}

func validateSource(src model.DataSource) error {
	if !isKnown(src.ID) {
		return configErr(src.ID, "unknown source")
	}
	if src.DisplayName == "" {
		return configErr(src.ID, "display name is required")
	}
	if src.TargetFileID == "" {
		return configErr(src.ID, "target file id is required")
	}
	if !strings.Contains(src.ItemURLTemplate, model.TickerPlaceholder) {
		return configErr(src.ID, "item url template must contain %s", model.TickerPlaceholder)
	}
	for _, fm := range src.FieldMappings {
		if fm.SourceField == "" || fm.TargetField == "" {
			return configErr(src.ID, "field mapping requires source and target field")
		}
		if !compare.KnownTransform(fm.Transform) {
			return configErr(src.ID, "field %s: unknown transform %q", fm.TargetField, fm.Transform)
		}
	}
	return nil
}
