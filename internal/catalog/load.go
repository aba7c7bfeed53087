package catalog

import (
	"bytes"
	"errors"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/market-validator/internal/model"
)

// overrideFile is the on-disk shape of a catalog override. Entries replace the
// built-in entry with the same id; everything else keeps its built-in value.
type overrideFile struct {
	Sources []model.DataSource        `yaml:"sources"`
	Rules   []model.ValidationRuleSet `yaml:"rules"`
}

// Builtin returns the registry and rule catalog compiled into the binary.
func Builtin() (*Registry, *RuleCatalog) {
	reg, err := NewRegistry(builtinSources())
	if err != nil {
		panic(err)
	}
	rules, err := NewRuleCatalog(builtinRuleSets())
	if err != nil {
		panic(err)
	}
	return reg, rules
}

// Load builds the registry and rule catalog, applying the YAML override at path
// when path is non-empty. Unknown keys and unknown source ids are rejected.
func Load(path string) (*Registry, *RuleCatalog, error) {
	sources := builtinSources()
	sets := builtinRuleSets()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "catalog: read overrides %s", path)
		}
		var ov overrideFile
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&ov); err != nil && !errors.Is(err, io.EOF) {
			return nil, nil, eris.Wrapf(err, "catalog: parse overrides %s", path)
		}
		if sources, err = mergeSources(sources, ov.Sources); err != nil {
			return nil, nil, err
		}
		if sets, err = mergeRuleSets(sets, ov.Rules); err != nil {
			return nil, nil, err
		}
	}

	reg, err := NewRegistry(sources)
	if err != nil {
		return nil, nil, err
	}
	rules, err := NewRuleCatalog(sets)
	if err != nil {
		return nil, nil, err
	}
	return reg, rules, nil
}

func mergeSources(base, overrides []model.DataSource) ([]model.DataSource, error) {
	for _, ov := range overrides {
		if !isKnown(ov.ID) {
			return nil, configErr(ov.ID, "unknown source in overrides")
		}
		for i := range base {
			if base[i].ID == ov.ID {
				base[i] = ov
			}
		}
	}
	return base, nil
}

func mergeRuleSets(base, overrides []model.ValidationRuleSet) ([]model.ValidationRuleSet, error) {
	for _, ov := range overrides {
		if !isKnown(ov.Source) {
			return nil, configErr(ov.Source, "unknown source in overrides")
		}
		for i := range base {
			if base[i].Source == ov.Source {
				base[i] = ov
			}
		}
	}
	return base, nil
}
