package pipeline

import (
	"slices"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/market-validator/internal/model"
)

// SessionState accumulates one run. It is owned by a single orchestrator
// goroutine; phases only move forward and lists only grow.
type SessionState struct {
	id        string
	date      string
	dryRun    bool
	startedAt time.Time

	phase         model.Phase
	sources       []model.SourceReport
	modifications []model.ModificationRecord
	errors        []model.ErrorRecord
	reviews       []model.Discrepancy
	cancelled     bool
}

// NewSessionState starts a session in the initialization phase.
func NewSessionState(id, date string, dryRun bool, startedAt time.Time) *SessionState {
	return &SessionState{
		id:        id,
		date:      date,
		dryRun:    dryRun,
		startedAt: startedAt,
		phase:     model.PhaseInitialization,
	}
}

// ID returns the session id.
func (s *SessionState) ID() string { return s.id }

// Phase returns the current phase.
func (s *SessionState) Phase() model.Phase { return s.phase }

// Advance moves to phase p. Staying in the current phase is a no-op; moving
// backward is an error and leaves the state unchanged.
func (s *SessionState) Advance(p model.Phase) error {
	if p < s.phase {
		return eris.Errorf("session %s: cannot move from %s back to %s", s.id, s.phase, p)
	}
	s.phase = p
	return nil
}

// Record appends the outcome of one source.
func (s *SessionState) Record(res DispatchResult) {
	s.sources = append(s.sources, res.Report)
	s.modifications = append(s.modifications, res.Modifications...)
	s.errors = append(s.errors, res.Errors...)
	s.reviews = append(s.reviews, res.Reviews...)
}

// MarkCancelled notes that the run stopped early.
func (s *SessionState) MarkCancelled() { s.cancelled = true }

// Snapshot returns a frozen copy with computed totals.
func (s *SessionState) Snapshot() model.SessionSnapshot {
	snap := model.SessionSnapshot{
		SessionID:     s.id,
		Date:          s.date,
		DryRun:        s.dryRun,
		Phase:         s.phase,
		Sources:       slices.Clone(s.sources),
		Modifications: slices.Clone(s.modifications),
		Errors:        slices.Clone(s.errors),
		Reviews:       slices.Clone(s.reviews),
		StartedAt:     s.startedAt,
	}
	snap.Totals = totals(snap, s.cancelled)
	return snap
}

func totals(snap model.SessionSnapshot, cancelled bool) model.SessionTotals {
	t := model.SessionTotals{
		Sources:       len(snap.Sources),
		Errors:        len(snap.Errors),
		Modifications: len(snap.Modifications),
		Cancelled:     cancelled,
	}
	for _, r := range snap.Sources {
		t.ItemsValidated += r.ItemsValidated
		t.ItemsUpdated += r.ItemsUpdated
		t.ItemsSkipped += r.ItemsSkipped
		t.Discrepancies += r.Discrepancies
	}
	for _, d := range snap.Reviews {
		if d.Anomaly {
			t.Anomalies++
		}
	}
	t.Status = model.SessionStatusSuccess
	if t.Errors > 0 || cancelled {
		t.Status = model.SessionStatusPartial
	}
	return t
}
