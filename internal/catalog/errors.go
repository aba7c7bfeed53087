package catalog

import (
	"fmt"

	"github.com/sells-group/market-validator/internal/model"
)

// ConfigurationError reports an unknown source or an invalid catalog entry.
// It is fatal: a run never starts with a configuration it cannot honor.
type ConfigurationError struct {
	Source model.SourceID
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("catalog: %s", e.Reason)
	}
	return fmt.Sprintf("catalog: source %q: %s", e.Source, e.Reason)
}

func configErr(id model.SourceID, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Source: id, Reason: fmt.Sprintf(format, args...)}
}
