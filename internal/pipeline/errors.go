package pipeline

import (
	"fmt"

	"github.com/sells-group/market-validator/internal/model"
)

// Agent names recorded as provenance on session records.
const (
	AgentDispatcher   = "dispatcher"
	AgentUpdater      = "updater"
	AgentOrchestrator = "orchestrator"
)

// MissingRequiredFieldError is recorded when a fetch succeeds but lacks a
// field whose rule is marked required. The rest of the ticker is still checked.
type MissingRequiredFieldError struct {
	Source model.SourceID
	Ticker string
	Field  string
}

func (e *MissingRequiredFieldError) Error() string {
	return fmt.Sprintf("required field %q missing for %s/%s", e.Field, e.Source, e.Ticker)
}
