package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-validator/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "abc12345-6789-0000-0000-000000000000",
			Date:      "2025-01-15",
			Status:    model.RunStatusPartial,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
			Result: &model.RunResult{Totals: model.SessionTotals{
				ItemsValidated: 12,
				ItemsUpdated:   3,
				Errors:         1,
			}},
		},
		{
			ID:        "def12345-6789-0000-0000-000000000000",
			Date:      "2025-01-15",
			DryRun:    true,
			Status:    model.RunStatusRunning,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-1 * time.Hour),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "VALIDATED")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "partial")
	assert.Contains(t, output, "12")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "dry-run")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "2025-01-15 10:30")
}

func TestStoredReport(t *testing.T) {
	run := &model.Run{ID: "r1", Status: model.RunStatusRunning}
	_, err := storedReport(run, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "has not finished")

	run.Result = &model.RunResult{Report: "# report", DailyTasks: "# tasks"}
	text, err := storedReport(run, false)
	require.NoError(t, err)
	assert.Equal(t, "# report", text)

	text, err = storedReport(run, true)
	require.NoError(t, err)
	assert.Equal(t, "# tasks", text)
}

func TestStoredReport_FailedRun(t *testing.T) {
	run := &model.Run{
		ID:     "r2",
		Status: model.RunStatusFailed,
		Result: &model.RunResult{Error: "orchestrator: prepare output: read-only"},
	}
	_, err := storedReport(run, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start: orchestrator: prepare output: read-only")
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}
