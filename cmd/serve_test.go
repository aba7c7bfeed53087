package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	artifactmocks "github.com/sells-group/market-validator/internal/artifact/mocks"
	"github.com/sells-group/market-validator/internal/catalog"
	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/pipeline"
	"github.com/sells-group/market-validator/internal/store"
	"github.com/sells-group/market-validator/internal/store/mocks"
)

type fakeRunner struct {
	mu    sync.Mutex
	calls []pipeline.RunOptions
}

func (f *fakeRunner) Run(_ context.Context, opts pipeline.RunOptions) (*pipeline.Outcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, opts)
	return &pipeline.Outcome{RunID: opts.RunID, Snapshot: model.SessionSnapshot{
		Totals: model.SessionTotals{Status: model.SessionStatusSuccess},
	}}, nil
}

func newTestAPI(t *testing.T, history store.Store) (*api, *fakeRunner) {
	t.Helper()
	reg, _ := catalog.Builtin()
	runner := &fakeRunner{}
	return newAPI(context.Background(), runner, reg, history), runner
}

func do(t *testing.T, h http.Handler, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	rr := do(t, a.routes(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestCreateRun_Accepted(t *testing.T) {
	a, runner := newTestAPI(t, nil)

	body := []byte(`{"date":"2025-01-15","sources":["korean-etf","forex"],"dry_run":true}`)
	rr := do(t, a.routes(), http.MethodPost, "/runs", body)
	require.Equal(t, http.StatusAccepted, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "accepted", resp["status"])
	assert.NotEmpty(t, resp["run_id"])

	a.wait()
	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, resp["run_id"], call.RunID)
	assert.Equal(t, "2025-01-15", call.Date)
	assert.Equal(t, []string{"korean-etf", "forex"}, call.Sources)
	assert.True(t, call.DryRun)
	assert.True(t, call.Verbose, "verbose unless the request turns it off")
}

func TestCreateRun_VerboseOff(t *testing.T) {
	a, runner := newTestAPI(t, nil)

	rr := do(t, a.routes(), http.MethodPost, "/runs", []byte(`{"verbose":false}`))
	require.Equal(t, http.StatusAccepted, rr.Code)

	a.wait()
	require.Len(t, runner.calls, 1)
	assert.False(t, runner.calls[0].Verbose)
}

func TestCreateRun_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad json", `{`, "invalid request body"},
		{"bad date", `{"date":"15/01/2025"}`, "YYYY-MM-DD"},
		{"unknown source", `{"sources":["crypto"]}`, "unknown source"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, runner := newTestAPI(t, nil)

			rr := do(t, a.routes(), http.MethodPost, "/runs", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Contains(t, rr.Body.String(), tt.want)
			a.wait()
			assert.Empty(t, runner.calls)
		})
	}
}

func TestListRuns(t *testing.T) {
	history := mocks.NewMockStore(t)
	history.On("ListRuns", mock.Anything, store.RunFilter{
		Status: model.RunStatusPartial,
		Date:   "2025-01-15",
		Limit:  5,
		Offset: 10,
	}).Return([]model.Run{{ID: "r1", Date: "2025-01-15", Status: model.RunStatusPartial}}, nil)
	a, _ := newTestAPI(t, history)

	rr := do(t, a.routes(), http.MethodGet, "/runs?status=partial&date=2025-01-15&limit=5&offset=10", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "r1", runs[0].ID)
}

func TestListRuns_Empty(t *testing.T) {
	history := mocks.NewMockStore(t)
	history.On("ListRuns", mock.Anything, store.RunFilter{}).Return(nil, nil)
	a, _ := newTestAPI(t, history)

	rr := do(t, a.routes(), http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestListRuns_BadLimit(t *testing.T) {
	a, _ := newTestAPI(t, mocks.NewMockStore(t))

	rr := do(t, a.routes(), http.MethodGet, "/runs?limit=ten", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestListRuns_HistoryDisabled(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	rr := do(t, a.routes(), http.MethodGet, "/runs", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestGetRun(t *testing.T) {
	history := mocks.NewMockStore(t)
	history.On("GetRun", mock.Anything, "r1").Return(&model.Run{ID: "r1", Status: model.RunStatusComplete}, nil)
	history.On("GetRun", mock.Anything, "missing").Return(nil, eris.Wrap(store.ErrRunNotFound, "sqlite: get run missing"))
	history.On("GetRun", mock.Anything, "broken").Return(nil, eris.New("disk I/O error"))
	a, _ := newTestAPI(t, history)
	h := a.routes()

	rr := do(t, h, http.MethodGet, "/runs/r1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusComplete, run.Status)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/runs/missing", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/runs/broken", nil).Code)
}

func TestGetReport(t *testing.T) {
	history := mocks.NewMockStore(t)
	history.On("GetRun", mock.Anything, "done").Return(&model.Run{
		ID:     "done",
		Status: model.RunStatusComplete,
		Result: &model.RunResult{Report: "# Validation Report", DailyTasks: "# Daily Tasks"},
	}, nil)
	history.On("GetRun", mock.Anything, "running").Return(&model.Run{ID: "running", Status: model.RunStatusRunning}, nil)
	a, _ := newTestAPI(t, history)
	h := a.routes()

	rr := do(t, h, http.MethodGet, "/runs/done/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "# Validation Report", rr.Body.String())
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/markdown")

	rr = do(t, h, http.MethodGet, "/runs/done/report?kind=tasks", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "# Daily Tasks", rr.Body.String())

	rr = do(t, h, http.MethodGet, "/runs/running/report", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestCreateRun_InitFailureRecordedAsFailed(t *testing.T) {
	ctx := context.Background()
	history, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })
	require.NoError(t, history.Migrate(ctx))

	writer := artifactmocks.NewMockWriter(t)
	writer.On("Prepare", mock.Anything, "2025-01-15").Return("", eris.New("read-only file system")).Once()

	reg, rules := catalog.Builtin()
	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Registry: reg,
		Rules:    rules,
		Writer:   writer,
		Recorder: history,
	})
	a := newAPI(ctx, orch, reg, history)
	h := a.routes()

	rr := do(t, h, http.MethodPost, "/runs", []byte(`{"date":"2025-01-15","sources":["forex"]}`))
	require.Equal(t, http.StatusAccepted, rr.Code)
	var accepted map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &accepted))
	runID := accepted["run_id"]
	a.wait()

	rr = do(t, h, http.MethodGet, "/runs/"+runID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, "2025-01-15", run.Date)
	require.NotNil(t, run.Result)
	assert.Contains(t, run.Result.Error, "read-only file system")

	rr = do(t, h, http.MethodGet, "/runs/"+runID+"/report", nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "failed to start")

	rr = do(t, h, http.MethodGet, "/runs", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, runID, runs[0].ID)
}

func TestCORSPreflight(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/runs", nil)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	a.routes().ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
