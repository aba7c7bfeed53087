package model

import "time"

// Action classifies what should happen to a detected difference.
type Action string

const (
	ActionUpdate Action = "update"
	ActionFlag   Action = "flag"
	ActionSkip   Action = "skip"
)

// Discrepancy is a difference between a stored and a freshly fetched value.
type Discrepancy struct {
	Ticker       string  `json:"ticker"`
	Name         string  `json:"name"`
	Field        string  `json:"field"`
	CurrentValue float64 `json:"current_value"`
	FetchedValue float64 `json:"fetched_value"`
	PercentDiff  float64 `json:"percent_diff"`
	Action       Action  `json:"action"`
	// Anomaly marks the discrepancy for manual review. It never changes Action.
	Anomaly bool `json:"anomaly,omitempty"`
}

// AppliedChange is one change the Updater declares it made.
type AppliedChange struct {
	Ticker   string  `json:"ticker"`
	Field    string  `json:"field"`
	OldValue float64 `json:"old_value"`
	NewValue float64 `json:"new_value"`
}

// ModificationRecord is appended once per applied change.
type ModificationRecord struct {
	Timestamp time.Time `json:"timestamp"`
	File      string    `json:"file"`
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	Field     string    `json:"field"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Agent     string    `json:"agent"`
}

// ErrorRecord captures a failure that was contained instead of aborting the session.
type ErrorRecord struct {
	Timestamp   time.Time `json:"timestamp"`
	Agent       string    `json:"agent"`
	Task        string    `json:"task"`
	Error       string    `json:"error"`
	Recoverable bool      `json:"recoverable"`
	RetryCount  int       `json:"retry_count"`
}

// SourceReport summarizes one source's run. It is not mutated once produced.
// Items are validated field values: a value is validated when a stored value,
// a rule and a fetched value all exist for it. Discrepancies counts the
// differences that warranted an update, applied or not.
type SourceReport struct {
	Source         SourceID `json:"source"`
	SourceName     string   `json:"source_name"`
	ItemsValidated int      `json:"items_validated"`
	ItemsUpdated   int      `json:"items_updated"`
	ItemsSkipped   int      `json:"items_skipped"`
	Discrepancies  int      `json:"discrepancies"`
	Errors         int      `json:"errors"`
}

// Completed reports whether the source finished without any error.
func (r SourceReport) Completed() bool {
	return r.Errors == 0
}
