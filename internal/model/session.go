package model

import "time"

// Phase is a step of the session state machine. Phases only move forward.
type Phase int

const (
	PhaseInitialization Phase = iota
	PhaseValidation
	PhaseModification
	PhaseFinalization
)

func (p Phase) String() string {
	switch p {
	case PhaseInitialization:
		return "initialization"
	case PhaseValidation:
		return "validation"
	case PhaseModification:
		return "modification"
	case PhaseFinalization:
		return "finalization"
	default:
		return "unknown"
	}
}

// SessionStatus is the only surfaced success signal of a finished run.
type SessionStatus string

const (
	SessionStatusSuccess SessionStatus = "success"
	SessionStatusPartial SessionStatus = "partial"
)

// SessionTotals aggregates all source reports of a session.
type SessionTotals struct {
	Sources        int           `json:"sources"`
	ItemsValidated int           `json:"items_validated"`
	ItemsUpdated   int           `json:"items_updated"`
	ItemsSkipped   int           `json:"items_skipped"`
	Discrepancies  int           `json:"discrepancies"`
	Errors         int           `json:"errors"`
	Modifications  int           `json:"modifications"`
	Anomalies      int           `json:"anomalies"`
	Status         SessionStatus `json:"status"`
	Cancelled      bool          `json:"cancelled,omitempty"`
}

// SessionSnapshot is a frozen copy of a session handed to renderers.
type SessionSnapshot struct {
	SessionID     string               `json:"session_id"`
	Date          string               `json:"date"`
	DryRun        bool                 `json:"dry_run"`
	Phase         Phase                `json:"phase"`
	Sources       []SourceReport       `json:"sources"`
	Modifications []ModificationRecord `json:"modifications"`
	Errors        []ErrorRecord        `json:"errors"`
	Reviews       []Discrepancy        `json:"reviews"`
	Totals        SessionTotals        `json:"totals"`
	StartedAt     time.Time            `json:"started_at"`
}
