package pipeline

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/model"
)

var generatedAt = time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC)

func sampleSnapshot() model.SessionSnapshot {
	s := NewSessionState("sess-1", "2026-03-02", false, generatedAt)
	s.Record(DispatchResult{
		Report: model.SourceReport{
			Source: model.SourceKoreanETF, SourceName: "Korean ETFs",
			ItemsValidated: 3, ItemsUpdated: 1, ItemsSkipped: 2, Discrepancies: 1,
		},
		Modifications: []model.ModificationRecord{{
			File: "korean-etfs", Ticker: "069500", Name: "KODEX 200", Field: "price",
			OldValue: 35820, NewValue: 36000, Agent: AgentUpdater,
		}},
		Reviews: []model.Discrepancy{
			{Ticker: "A", Field: "change", CurrentValue: 100, FetchedValue: 120, PercentDiff: 20, Action: model.ActionUpdate, Anomaly: true},
			{Ticker: "B", Field: "nav", CurrentValue: 100, FetchedValue: -1, PercentDiff: 101, Action: model.ActionFlag, Anomaly: true},
			{Ticker: "C", Field: "nav", CurrentValue: 100, FetchedValue: -1, PercentDiff: 1, Action: model.ActionFlag},
			{Ticker: "D", Field: "price", CurrentValue: 100, FetchedValue: 112, PercentDiff: 12, Action: model.ActionUpdate},
			{Ticker: "E", Field: "price", CurrentValue: 100, FetchedValue: 106, PercentDiff: 6, Action: model.ActionUpdate},
		},
	})
	s.Record(DispatchResult{
		Report: model.SourceReport{Source: model.SourceForex, SourceName: "Foreign Exchange", ItemsValidated: 1, ItemsSkipped: 1, Errors: 2},
		Errors: []model.ErrorRecord{
			{Agent: AgentDispatcher, Task: "validate forex/USDKRW.rate", Error: "required field missing", Recoverable: true},
			{Agent: AgentDispatcher, Task: "fetch forex/JPYKRW", Error: "timeout", RetryCount: 3},
		},
	})
	return s.Snapshot()
}

func section(report, heading string) string {
	_, rest, ok := strings.Cut(report, heading+"\n")
	if !ok {
		return ""
	}
	if i := strings.Index(rest, "\n## "); i >= 0 {
		return rest[:i]
	}
	return rest
}

func TestRenderValidationReport(t *testing.T) {
	report := RenderValidationReport(sampleSnapshot(), compare.DefaultThresholds(), generatedAt)

	assert.True(t, strings.HasPrefix(report, "# Market Data Validation Report\n"))
	assert.Contains(t, report, "- Session: sess-1")
	assert.Contains(t, report, "- Mode: LIVE")
	assert.Contains(t, report, "- Status: PARTIAL")
	assert.Contains(t, report, "- Generated at: 2026-03-02T18:30:00Z")
	assert.Contains(t, report, "| Items validated | 4 |")
	assert.Contains(t, report, "| Anomalies | 2 |")
	assert.Contains(t, report, "| korean-etf | Korean ETFs | 3 | 1 | 2 | 1 | 0 | COMPLETED |")
	assert.Contains(t, report, "| forex | Foreign Exchange | 1 | 0 | 1 | 0 | 2 | PARTIAL |")
	assert.Contains(t, report, "- `069500` KODEX 200 price: 35,820.00 -> 36,000.00 (korean-etfs, updater)")
}

func TestRenderValidationReport_ReviewBuckets(t *testing.T) {
	report := RenderValidationReport(sampleSnapshot(), compare.DefaultThresholds(), generatedAt)
	review := section(report, "## Manual Review")

	anomalies := strings.Index(review, "### Anomalies (over 15.00%)")
	flagged := strings.Index(review, "### Flagged values")
	secondary := strings.Index(review, "### Secondary verification (10.00% or more)")
	high := strings.Index(review, "### High priority (5.00% or more)")
	assert.True(t, anomalies >= 0 && anomalies < flagged && flagged < secondary && secondary < high, review)

	assert.Contains(t, review[anomalies:flagged], "`A` ")
	assert.Contains(t, review[anomalies:flagged], "`B` ")
	assert.Contains(t, review[flagged:secondary], "`C` ")
	assert.Contains(t, review[secondary:high], "`D` ")
	assert.Contains(t, review[secondary:high], "(12.00%)")
	assert.Contains(t, review[high:], "`E` ")
}

func TestRenderValidationReport_Errors(t *testing.T) {
	report := RenderValidationReport(sampleSnapshot(), compare.DefaultThresholds(), generatedAt)
	errs := section(report, "## Errors")

	rec, nonrec, ok := strings.Cut(errs, "### Non-recoverable (needs manual intervention)")
	assert.True(t, ok)
	assert.Contains(t, rec, "### Recoverable (retryable)")
	assert.Contains(t, rec, "- [dispatcher] validate forex/USDKRW.rate: required field missing")
	assert.Contains(t, nonrec, "- [dispatcher] fetch forex/JPYKRW: timeout (retries: 3)")
}

func TestRenderValidationReport_ModificationCap(t *testing.T) {
	s := NewSessionState("sess-2", "2026-03-02", false, generatedAt)
	var mods []model.ModificationRecord
	for i := range 53 {
		mods = append(mods, model.ModificationRecord{Ticker: fmt.Sprintf("T%02d", i), Field: "price", OldValue: 1, NewValue: 2})
	}
	s.Record(DispatchResult{Report: model.SourceReport{Source: model.SourceUSETF}, Modifications: mods})

	report := RenderValidationReport(s.Snapshot(), compare.DefaultThresholds(), generatedAt)
	mods50 := section(report, "## Modifications")

	assert.Equal(t, MaxModificationsShown, strings.Count(mods50, "\n- `T"))
	assert.Contains(t, mods50, "`T49`")
	assert.NotContains(t, mods50, "`T50`")
	assert.Contains(t, mods50, "... and 3 more modifications")
}

func TestRenderValidationReport_Empty(t *testing.T) {
	s := NewSessionState("sess-3", "2026-03-02", true, generatedAt)
	report := RenderValidationReport(s.Snapshot(), compare.Thresholds{}, generatedAt)

	assert.Contains(t, report, "- Mode: DRY RUN")
	assert.Contains(t, report, "- Status: SUCCESS")
	assert.Contains(t, report, "No sources were processed.")
	assert.Contains(t, report, "Dry run: no modifications were applied.")
	assert.Contains(t, report, "No errors.")
}

func TestRenderValidationReport_Deterministic(t *testing.T) {
	snap := sampleSnapshot()
	a := RenderValidationReport(snap, compare.DefaultThresholds(), generatedAt)
	b := RenderValidationReport(snap, compare.DefaultThresholds(), generatedAt)
	assert.Equal(t, a, b)
}

func TestRenderDailyTasks(t *testing.T) {
	tasks := RenderDailyTasks(sampleSnapshot(), generatedAt)

	assert.True(t, strings.HasPrefix(tasks, "# Daily Tasks: 2026-03-02\n"))
	assert.Contains(t, tasks, "- [x] Korean ETFs: COMPLETED\n")
	assert.Contains(t, tasks, "- [ ] Foreign Exchange: PARTIAL (2 errors)\n")
	assert.Contains(t, tasks, "Validated 4 items, updated 1, found 1 discrepancies.")
	assert.Contains(t, tasks, "- [ ] Review 2 anomalies")
	assert.Contains(t, tasks, "- [ ] Investigate 1 non-recoverable errors")
}

func TestRenderDailyTasks_NoFollowUps(t *testing.T) {
	s := NewSessionState("sess-4", "2026-03-02", false, generatedAt)
	s.Record(DispatchResult{Report: model.SourceReport{Source: model.SourceIndices}})

	tasks := RenderDailyTasks(s.Snapshot(), generatedAt)
	assert.Contains(t, tasks, "- [x] indices: COMPLETED")
	assert.NotContains(t, tasks, "Follow-ups")
}

func TestNumber(t *testing.T) {
	p := newPrinter()
	assert.Equal(t, "1,234,567.89", number(p, 1234567.891))
	assert.Equal(t, "0.0523", number(p, 0.0523))
	assert.Equal(t, "0.00", number(p, 0))
	assert.Equal(t, "-12.50", number(p, -12.5))
}
