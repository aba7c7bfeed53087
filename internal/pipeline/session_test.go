package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-validator/internal/model"
)

func TestSessionState_AdvanceIsMonotonic(t *testing.T) {
	s := NewSessionState("s1", "2026-03-02", false, time.Now())
	assert.Equal(t, model.PhaseInitialization, s.Phase())

	require.NoError(t, s.Advance(model.PhaseValidation))
	require.NoError(t, s.Advance(model.PhaseValidation))
	require.NoError(t, s.Advance(model.PhaseFinalization))

	err := s.Advance(model.PhaseModification)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot move from finalization back to modification")
	assert.Equal(t, model.PhaseFinalization, s.Phase())
}

func TestSessionState_SnapshotTotals(t *testing.T) {
	s := NewSessionState("s1", "2026-03-02", false, time.Now())
	s.Record(DispatchResult{
		Report:        model.SourceReport{Source: model.SourceKoreanETF, ItemsValidated: 4, ItemsUpdated: 2, ItemsSkipped: 2, Discrepancies: 2},
		Modifications: []model.ModificationRecord{{Ticker: "A"}, {Ticker: "B"}},
		Reviews:       []model.Discrepancy{{Ticker: "A", Anomaly: true}, {Ticker: "B"}},
	})
	s.Record(DispatchResult{
		Report: model.SourceReport{Source: model.SourceForex, ItemsValidated: 1, ItemsSkipped: 1},
	})

	snap := s.Snapshot()
	assert.Equal(t, model.SessionTotals{
		Sources:        2,
		ItemsValidated: 5,
		ItemsUpdated:   2,
		ItemsSkipped:   3,
		Discrepancies:  2,
		Modifications:  2,
		Anomalies:      1,
		Status:         model.SessionStatusSuccess,
	}, snap.Totals)
}

func TestSessionState_ErrorsMakePartial(t *testing.T) {
	s := NewSessionState("s1", "2026-03-02", false, time.Now())
	s.Record(DispatchResult{
		Report: model.SourceReport{Source: model.SourceIndices, Errors: 1},
		Errors: []model.ErrorRecord{{Agent: AgentDispatcher, Recoverable: true}},
	})
	assert.Equal(t, model.SessionStatusPartial, s.Snapshot().Totals.Status)
}

func TestSessionState_CancelledIsPartial(t *testing.T) {
	s := NewSessionState("s1", "2026-03-02", true, time.Now())
	s.MarkCancelled()

	tot := s.Snapshot().Totals
	assert.True(t, tot.Cancelled)
	assert.Equal(t, model.SessionStatusPartial, tot.Status)
}

func TestSessionState_SnapshotIsFrozen(t *testing.T) {
	s := NewSessionState("s1", "2026-03-02", false, time.Now())
	s.Record(DispatchResult{Report: model.SourceReport{Source: model.SourceUSETF}})

	snap := s.Snapshot()
	s.Record(DispatchResult{Report: model.SourceReport{Source: model.SourceForex}})

	assert.Len(t, snap.Sources, 1)
	assert.Len(t, s.Snapshot().Sources, 2)
}
