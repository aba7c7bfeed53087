package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/market-validator/internal/artifact"
	artifactmocks "github.com/sells-group/market-validator/internal/artifact/mocks"
	"github.com/sells-group/market-validator/internal/catalog"
	"github.com/sells-group/market-validator/internal/dataset"
	datasetmocks "github.com/sells-group/market-validator/internal/dataset/mocks"
	"github.com/sells-group/market-validator/internal/fetcher"
	"github.com/sells-group/market-validator/internal/model"
)

type fakeRecorder struct {
	created   []*model.Run
	completed map[string]*model.RunResult
	statuses  map[string]model.RunStatus
}

func (r *fakeRecorder) CreateRun(_ context.Context, run *model.Run) error {
	r.created = append(r.created, run)
	return nil
}

func (r *fakeRecorder) CompleteRun(_ context.Context, id string, status model.RunStatus, result *model.RunResult) error {
	if r.completed == nil {
		r.completed = map[string]*model.RunResult{}
		r.statuses = map[string]model.RunStatus{}
	}
	r.completed[id] = result
	r.statuses[id] = status
	return nil
}

type fakeNotifier struct {
	snaps []model.SessionSnapshot
	err   error
}

func (n *fakeNotifier) SessionFinished(_ context.Context, snap model.SessionSnapshot) error {
	n.snaps = append(n.snaps, snap)
	return n.err
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, model.DataSource, string) (map[string]any, error) {
	panic("parser exploded")
}

// cancellingFetcher delegates, then cancels the run once the call returns.
type cancellingFetcher struct {
	next   fetcher.Fetcher
	cancel context.CancelFunc
}

func (c cancellingFetcher) Fetch(ctx context.Context, src model.DataSource, ticker string) (map[string]any, error) {
	fields, err := c.next.Fetch(ctx, src, ticker)
	c.cancel()
	return fields, err
}

type fixture struct {
	fs       afero.Fs
	data     *dataset.FileStore
	recorder *fakeRecorder
	notifier *fakeNotifier
	deps     Deps
}

func newFixture(t *testing.T, quotes fetcher.SnapshotData) *fixture {
	t.Helper()
	reg, rules := fastCatalog(t)
	fs := afero.NewMemMapFs()
	data := dataset.NewFileStore(fs, "/data")
	ctx := context.Background()

	require.NoError(t, data.Save(ctx, "korean-etfs", []model.BaselineItem{
		{Ticker: "069500", Name: "KODEX 200", Fields: map[string]float64{"price": 35820}},
		{Ticker: "102110", Name: "TIGER 200", Fields: map[string]float64{"price": 35900}},
	}))
	require.NoError(t, data.Save(ctx, "forex", []model.BaselineItem{
		{Ticker: "USDKRW", Name: "USD/KRW", Fields: map[string]float64{"rate": 1385.2}},
	}))

	f := &fixture{
		fs:       fs,
		data:     data,
		recorder: &fakeRecorder{},
		notifier: &fakeNotifier{},
	}
	f.deps = Deps{
		Registry: reg,
		Rules:    rules,
		Baseline: data,
		Fetcher:  fetcher.NewSnapshot(quotes),
		Updater:  data,
		Writer:   artifact.NewFileWriter(fs, "/out"),
		Recorder: f.recorder,
		Notifier: f.notifier,
		Observer: NopObserver{},
	}
	return f
}

func fixedClock(o *Orchestrator) {
	o.now = func() time.Time { return time.Date(2026, 3, 2, 18, 30, 0, 0, time.UTC) }
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceKoreanETF: {
			"069500": {"price": "36,000"},
			"102110": {"price": "35,900"},
		},
	})
	o := NewOrchestrator(f.deps)
	fixedClock(o)

	out, err := o.Run(context.Background(), RunOptions{
		RunID:   "run-1",
		Date:    "2026-03-02",
		Sources: []string{"korean-etf"},
	})
	require.NoError(t, err)

	snap := out.Snapshot
	assert.Equal(t, model.PhaseFinalization, snap.Phase)
	require.Len(t, snap.Sources, 1)
	assert.Equal(t, 2, snap.Sources[0].ItemsValidated)
	assert.Equal(t, 1, snap.Sources[0].ItemsUpdated)
	assert.Equal(t, 0, snap.Sources[0].Errors)
	assert.Equal(t, model.SessionStatusSuccess, snap.Totals.Status)

	require.Len(t, snap.Modifications, 1)
	assert.Equal(t, 35820.0, snap.Modifications[0].OldValue)
	assert.Equal(t, 36000.0, snap.Modifications[0].NewValue)

	items, err := f.data.Load(context.Background(), "korean-etfs")
	require.NoError(t, err)
	assert.Equal(t, 36000.0, items[0].Fields["price"])

	report, err := afero.ReadFile(f.fs, "/out/2026-03-02/validation-report.md")
	require.NoError(t, err)
	assert.Equal(t, out.Report, string(report))
	assert.Contains(t, out.Report, "- Status: SUCCESS")
	assert.Contains(t, out.Report, "- Generated at: 2026-03-02T18:30:00Z")

	tasks, err := afero.ReadFile(f.fs, "/out/2026-03-02/daily-tasks.md")
	require.NoError(t, err)
	assert.Contains(t, string(tasks), "- [x] Korean ETFs: COMPLETED")

	require.Len(t, f.recorder.created, 1)
	assert.Equal(t, "run-1", f.recorder.created[0].ID)
	assert.Equal(t, model.RunStatusRunning, f.recorder.created[0].Status)
	assert.Equal(t, model.RunStatusComplete, f.recorder.statuses["run-1"])
	assert.Equal(t, "/out/2026-03-02/validation-report.md", f.recorder.completed["run-1"].ReportPath)

	require.Len(t, f.notifier.snaps, 1)
	assert.Empty(t, out.Warnings)
}

func TestOrchestrator_UnknownSourceAborts(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{Sources: []string{"crypto"}})
	require.Error(t, err)

	var cfgErr *catalog.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, model.SourceID("crypto"), cfgErr.Source)

	require.Len(t, f.recorder.created, 1)
	assert.Equal(t, model.RunStatusFailed, f.recorder.created[0].Status)
	exists, _ := afero.DirExists(f.fs, "/out")
	assert.False(t, exists)
}

func TestOrchestrator_InvalidDateAborts(t *testing.T) {
	f := newFixture(t, nil)
	_, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{Date: "02/03/2026"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run date")
}

func TestOrchestrator_DefaultsToTodayAndAllSources(t *testing.T) {
	f := newFixture(t, nil)
	o := NewOrchestrator(f.deps)
	fixedClock(o)

	out, err := o.Run(context.Background(), RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, "2026-03-02", out.Snapshot.Date)
	require.Len(t, out.Snapshot.Sources, len(catalog.KnownSources))
	for i, id := range catalog.KnownSources {
		assert.Equal(t, id, out.Snapshot.Sources[i].Source)
	}
}

func TestOrchestrator_FaultIsolation(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceKoreanETF: {"069500": {"price": "36,000"}},
		model.SourceForex:     {"USDKRW": {"rate": "1,390.00"}},
	})
	o := NewOrchestrator(f.deps)
	fixedClock(o)

	// 102110 is missing from the snapshot; us-etfs has no baseline file.
	out, err := o.Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"korean-etf", "us-etf", "forex"},
	})
	require.NoError(t, err)

	snap := out.Snapshot
	require.Len(t, snap.Sources, 3)

	korean, us, fx := snap.Sources[0], snap.Sources[1], snap.Sources[2]
	assert.Equal(t, 1, korean.ItemsValidated)
	assert.Equal(t, 1, korean.ItemsUpdated)
	assert.Equal(t, 1, korean.Errors)

	assert.Equal(t, model.SourceUSETF, us.Source)
	assert.Equal(t, 1, us.Errors)
	assert.Equal(t, 0, us.ItemsValidated)

	assert.Equal(t, 1, fx.ItemsValidated)
	assert.Equal(t, 1, fx.ItemsUpdated)

	assert.Equal(t, model.SessionStatusPartial, snap.Totals.Status)

	var agents []string
	for _, e := range snap.Errors {
		agents = append(agents, e.Agent)
		assert.False(t, e.Recoverable)
	}
	assert.ElementsMatch(t, []string{AgentDispatcher, AgentOrchestrator}, agents)
	assert.Equal(t, 3, snap.Errors[0].RetryCount)

	assert.Contains(t, out.DailyTasks, "- [ ] Korean ETFs: PARTIAL (1 errors)")
	assert.Contains(t, out.DailyTasks, "- [ ] US ETFs: PARTIAL (1 errors)")
	assert.Contains(t, out.DailyTasks, "- [x] Foreign Exchange: COMPLETED")
	assert.Equal(t, model.RunStatusPartial, f.recorder.statuses[out.RunID])

	exists, err := afero.Exists(f.fs, "/out/2026-03-02/daily-tasks.md")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestOrchestrator_DryRunTotals(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceKoreanETF: {
			"069500": {"price": "36,000"},
			"102110": {"price": "37,000"},
		},
		model.SourceForex: {"USDKRW": {"rate": "1,390.00"}},
	})

	out, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"korean-etf", "forex"},
		DryRun:  true,
	})
	require.NoError(t, err)

	tot := out.Snapshot.Totals
	assert.Equal(t, 3, tot.Discrepancies)
	assert.Equal(t, 0, tot.ItemsUpdated)
	assert.Equal(t, 0, tot.Modifications)
	assert.Empty(t, out.Snapshot.Modifications)
	assert.Contains(t, out.Report, "Dry run: no modifications were applied.")

	items, err := f.data.Load(context.Background(), "korean-etfs")
	require.NoError(t, err)
	assert.Equal(t, 35820.0, items[0].Fields["price"])
}

func TestOrchestrator_TotalsMatchModifications(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceKoreanETF: {
			"069500": {"price": "36,000"},
			"102110": {"price": "37,000"},
		},
		model.SourceForex: {"USDKRW": {"rate": "1,390.00"}},
	})

	out, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"korean-etf", "forex"},
	})
	require.NoError(t, err)

	sum := 0
	for _, r := range out.Snapshot.Sources {
		sum += r.ItemsUpdated
		assert.LessOrEqual(t, r.ItemsUpdated, r.ItemsValidated)
	}
	assert.Equal(t, 3, sum)
	assert.Len(t, out.Snapshot.Modifications, sum)
}

func TestOrchestrator_RecoversFromPanic(t *testing.T) {
	f := newFixture(t, nil)
	f.deps.Fetcher = panicFetcher{}

	out, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"korean-etf", "forex"},
	})
	require.NoError(t, err)

	require.Len(t, out.Snapshot.Sources, 2)
	require.Len(t, out.Snapshot.Errors, 2)
	for _, e := range out.Snapshot.Errors {
		assert.Equal(t, AgentOrchestrator, e.Agent)
		assert.Contains(t, e.Error, "panic: parser exploded")
	}
	assert.NotEmpty(t, out.Report)
}

func TestOrchestrator_CancellationFinalizes(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceKoreanETF: {
			"069500": {"price": "36,000"},
			"102110": {"price": "37,000"},
		},
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.deps.Fetcher = cancellingFetcher{next: f.deps.Fetcher, cancel: cancel}

	out, err := NewOrchestrator(f.deps).Run(ctx, RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"korean-etf", "forex"},
	})
	require.NoError(t, err)

	snap := out.Snapshot
	assert.True(t, snap.Totals.Cancelled)
	assert.Equal(t, model.SessionStatusPartial, snap.Totals.Status)
	require.Len(t, snap.Sources, 1, "forex never starts")
	assert.Equal(t, 1, snap.Sources[0].ItemsValidated)
	assert.Contains(t, out.Report, "PARTIAL (cancelled)")

	exists, err := afero.Exists(f.fs, "/out/2026-03-02/validation-report.md")
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, f.notifier.snaps, 1)
}

func TestOrchestrator_FinalizationFailuresAreWarnings(t *testing.T) {
	f := newFixture(t, nil)
	w := artifactmocks.NewMockWriter(t)
	w.On("Prepare", mock.Anything, "2026-03-02").Return("/out/2026-03-02", nil)
	w.On("Write", mock.Anything, "2026-03-02", mock.Anything).Return(artifact.Paths{}, errors.New("disk full"))
	f.deps.Writer = w
	f.notifier.err = errors.New("webhook 500")

	out, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"forex"},
	})
	require.NoError(t, err)

	assert.Len(t, out.Warnings, 2)
	assert.Contains(t, out.Warnings[0], "disk full")
	assert.Contains(t, out.Warnings[1], "webhook 500")
	assert.Equal(t, "write reports: disk full", f.recorder.completed[out.RunID].Error)
}

func TestOrchestrator_PrepareFailureAborts(t *testing.T) {
	f := newFixture(t, nil)
	w := artifactmocks.NewMockWriter(t)
	w.On("Prepare", mock.Anything, "2026-03-02").Return("", errors.New("read-only"))
	f.deps.Writer = w

	_, err := NewOrchestrator(f.deps).Run(context.Background(), RunOptions{RunID: "run-1", Date: "2026-03-02"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "prepare output")

	require.Len(t, f.recorder.created, 1)
	assert.Equal(t, "run-1", f.recorder.created[0].ID)
	assert.Equal(t, model.RunStatusFailed, f.recorder.statuses["run-1"])
	assert.Contains(t, f.recorder.completed["run-1"].Error, "read-only")
}

func TestOrchestrator_InitFailureRecordsFailedRun(t *testing.T) {
	f := newFixture(t, nil)
	o := NewOrchestrator(f.deps)
	fixedClock(o)

	_, err := o.Run(context.Background(), RunOptions{RunID: "run-2", Sources: []string{"crypto"}})
	require.Error(t, err)

	require.Len(t, f.recorder.created, 1)
	run := f.recorder.created[0]
	assert.Equal(t, "2026-03-02", run.Date)
	assert.Equal(t, []model.SourceID{"crypto"}, run.Sources)
	assert.Equal(t, model.RunStatusFailed, run.Status)
	assert.Equal(t, model.RunStatusFailed, f.recorder.statuses["run-2"])
	assert.Contains(t, f.recorder.completed["run-2"].Error, "crypto")
}

func TestOrchestrator_BaselineLoadFailure(t *testing.T) {
	f := newFixture(t, fetcher.SnapshotData{
		model.SourceForex: {"USDKRW": {"rate": "1,390.00"}},
	})
	loader := datasetmocks.NewMockBaselineLoader(t)
	loader.On("Load", mock.Anything, "forex").Return(nil, errors.New("permission denied"))
	f.deps.Baseline = loader
	o := NewOrchestrator(f.deps)
	fixedClock(o)

	out, err := o.Run(context.Background(), RunOptions{
		Date:    "2026-03-02",
		Sources: []string{"forex"},
	})
	require.NoError(t, err)

	snap := out.Snapshot
	require.Len(t, snap.Sources, 1)
	assert.Equal(t, "Foreign Exchange", snap.Sources[0].SourceName)
	assert.Equal(t, 1, snap.Sources[0].Errors)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, AgentOrchestrator, snap.Errors[0].Agent)
	assert.Contains(t, snap.Errors[0].Error, "load baseline forex")
	assert.Contains(t, snap.Errors[0].Error, "permission denied")
	assert.Empty(t, snap.Modifications)
	assert.Equal(t, model.SessionStatusPartial, snap.Totals.Status)
}
