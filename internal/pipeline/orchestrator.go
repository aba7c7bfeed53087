package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/market-validator/internal/artifact"
	"github.com/sells-group/market-validator/internal/catalog"
	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/dataset"
	"github.com/sells-group/market-validator/internal/fetcher"
	"github.com/sells-group/market-validator/internal/model"
)

// DateLayout is the run date format.
const DateLayout = "2006-01-02"

// RunRecorder keeps the run history index.
type RunRecorder interface {
	CreateRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, id string, status model.RunStatus, result *model.RunResult) error
}

// Notifier is told about every finished session.
type Notifier interface {
	SessionFinished(ctx context.Context, snap model.SessionSnapshot) error
}

// RunOptions are the caller-facing options of one session.
type RunOptions struct {
	// RunID is the run history id. Generated when empty.
	RunID   string
	Date    string
	Sources []string
	DryRun  bool
	Verbose bool
}

// Outcome is the result of a session that reached finalization.
type Outcome struct {
	RunID      string
	Snapshot   model.SessionSnapshot
	Report     string
	DailyTasks string
	Paths      artifact.Paths
	// Warnings lists finalization steps that failed after the reports were
	// rendered. They never change the session status.
	Warnings []string
}

// Deps are the collaborators of an Orchestrator. Recorder, Notifier and
// Observer are optional.
type Deps struct {
	Registry   *catalog.Registry
	Rules      *catalog.RuleCatalog
	Baseline   dataset.BaselineLoader
	Fetcher    fetcher.Fetcher
	Updater    dataset.Updater
	Writer     artifact.Writer
	Recorder   RunRecorder
	Notifier   Notifier
	Observer   Observer
	Thresholds compare.Thresholds
}

// Orchestrator drives one session through initialization, validation,
// modification and finalization. Sources run one at a time in order.
type Orchestrator struct {
	deps Deps
	now  func() time.Time
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(deps Deps) *Orchestrator {
	deps.Thresholds = deps.Thresholds.WithDefaults()
	return &Orchestrator{deps: deps, now: time.Now}
}

// Run executes a session. It returns an error only when initialization fails
// (unknown source, bad date, unusable output location), in which case the run
// is recorded as failed; every later failure is recorded in the session and
// the reports are still produced.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*Outcome, error) {
	startedAt := o.now()
	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	date, ids, err := o.initialize(ctx, opts, startedAt)
	if err != nil {
		o.recordFailedStart(context.WithoutCancel(ctx), runID, opts, startedAt, err)
		return nil, err
	}

	state := NewSessionState(uuid.NewString(), date, opts.DryRun, startedAt)
	log := zap.L().With(
		zap.String("session_id", state.ID()),
		zap.String("run_id", runID),
		zap.String("date", date),
		zap.Bool("dry_run", opts.DryRun),
	)
	log.Info("session starting", zap.Int("sources", len(ids)))

	out := &Outcome{RunID: runID}
	if o.deps.Recorder != nil {
		err := o.deps.Recorder.CreateRun(ctx, &model.Run{
			ID:        runID,
			SessionID: state.ID(),
			Date:      date,
			Sources:   ids,
			DryRun:    opts.DryRun,
			Status:    model.RunStatusRunning,
			CreatedAt: startedAt,
			UpdatedAt: startedAt,
		})
		if err != nil {
			log.Warn("could not record run start", zap.Error(err))
			out.Warnings = append(out.Warnings, "record run: "+err.Error())
		}
	}

	obs := o.deps.Observer
	if obs == nil {
		obs = ObserverFor(opts.Verbose)
	}
	dispatcher := NewDispatcher(o.deps.Fetcher, o.deps.Updater, obs, o.deps.Thresholds)
	dispatcher.now = o.now

	o.advance(state, model.PhaseValidation)
	for _, id := range ids {
		if ctx.Err() != nil {
			log.Warn("session cancelled, finalizing with partial results")
			state.MarkCancelled()
			break
		}
		res, err := o.runSource(ctx, dispatcher, id, opts.DryRun)
		if err != nil {
			log.Error("source failed", zap.String("source", string(id)), zap.Error(err))
			res = o.failedSource(id, err)
			obs.SourceCompleted(res.Report)
		}
		state.Record(res)
	}
	if ctx.Err() != nil {
		state.MarkCancelled()
	}
	o.advance(state, model.PhaseModification)

	o.advance(state, model.PhaseFinalization)
	o.finalize(context.WithoutCancel(ctx), state, out, log)
	return out, nil
}

// initialize resolves the run date and sources and prepares the output
// location. Nothing is dispatched when it fails.
func (o *Orchestrator) initialize(ctx context.Context, opts RunOptions, startedAt time.Time) (string, []model.SourceID, error) {
	date, err := resolveDate(opts.Date, startedAt)
	if err != nil {
		return "", nil, err
	}
	ids, err := o.deps.Registry.Resolve(opts.Sources)
	if err != nil {
		return "", nil, err
	}
	for _, id := range ids {
		if _, err := o.deps.Rules.RuleSet(id); err != nil {
			return "", nil, err
		}
	}
	if _, err := o.deps.Writer.Prepare(ctx, date); err != nil {
		return "", nil, eris.Wrap(err, "orchestrator: prepare output")
	}
	return date, ids, nil
}

// recordFailedStart leaves a failed run in the history so a caller holding
// runID can tell a session that never started from an unknown id.
func (o *Orchestrator) recordFailedStart(ctx context.Context, runID string, opts RunOptions, startedAt time.Time, cause error) {
	if o.deps.Recorder == nil {
		return
	}
	log := zap.L().With(zap.String("run_id", runID))
	log.Error("session failed to start", zap.Error(cause))

	date := opts.Date
	if date == "" {
		date = startedAt.Format(DateLayout)
	}
	sources := make([]model.SourceID, len(opts.Sources))
	for i, s := range opts.Sources {
		sources[i] = model.SourceID(s)
	}
	run := &model.Run{
		ID:        runID,
		Date:      date,
		Sources:   sources,
		DryRun:    opts.DryRun,
		Status:    model.RunStatusFailed,
		CreatedAt: startedAt,
		UpdatedAt: startedAt,
	}
	if err := o.deps.Recorder.CreateRun(ctx, run); err != nil {
		log.Warn("could not record failed run", zap.Error(err))
		return
	}
	if err := o.deps.Recorder.CompleteRun(ctx, runID, model.RunStatusFailed, &model.RunResult{Error: cause.Error()}); err != nil {
		log.Warn("could not record failed run result", zap.Error(err))
	}
}

func (o *Orchestrator) runSource(ctx context.Context, d *Dispatcher, id model.SourceID, dryRun bool) (res DispatchResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("panic: %v", r)
		}
	}()

	src, err := o.deps.Registry.Source(id)
	if err != nil {
		return DispatchResult{}, err
	}
	rules, err := o.deps.Rules.RuleSet(id)
	if err != nil {
		return DispatchResult{}, err
	}
	baseline, err := o.deps.Baseline.Load(ctx, src.TargetFileID)
	if err != nil {
		return DispatchResult{}, eris.Wrapf(err, "load baseline %s", src.TargetFileID)
	}
	return d.Run(ctx, DispatchInput{
		Source:   src,
		Rules:    rules,
		Baseline: baseline,
		DryRun:   dryRun,
	}), nil
}

func (o *Orchestrator) failedSource(id model.SourceID, err error) DispatchResult {
	name := string(id)
	if src, srcErr := o.deps.Registry.Source(id); srcErr == nil {
		name = src.DisplayName
	}
	return DispatchResult{
		Report: model.SourceReport{Source: id, SourceName: name, Errors: 1},
		Errors: []model.ErrorRecord{{
			Timestamp:   o.now(),
			Agent:       AgentOrchestrator,
			Task:        fmt.Sprintf("validate source %s", id),
			Error:       err.Error(),
			Recoverable: false,
		}},
	}
}

func (o *Orchestrator) advance(state *SessionState, p model.Phase) {
	if err := state.Advance(p); err != nil {
		zap.L().Error("session phase", zap.Error(err))
		return
	}
	zap.L().Debug("session phase", zap.String("session_id", state.ID()), zap.Stringer("phase", p))
}

func (o *Orchestrator) finalize(ctx context.Context, state *SessionState, out *Outcome, log *zap.Logger) {
	snap := state.Snapshot()
	generatedAt := o.now()

	out.Snapshot = snap
	out.Report = RenderValidationReport(snap, o.deps.Thresholds, generatedAt)
	out.DailyTasks = RenderDailyTasks(snap, generatedAt)

	paths, err := o.deps.Writer.Write(ctx, snap.Date, artifact.Artifacts{
		Report:     out.Report,
		DailyTasks: out.DailyTasks,
	})
	if err != nil {
		log.Error("could not write reports", zap.Error(err))
		out.Warnings = append(out.Warnings, "write reports: "+err.Error())
	}
	out.Paths = paths

	if o.deps.Recorder != nil {
		result := &model.RunResult{
			Totals:        snap.Totals,
			SourceReports: snap.Sources,
			Report:        out.Report,
			DailyTasks:    out.DailyTasks,
			ReportPath:    paths.Report,
			TasksPath:     paths.DailyTasks,
		}
		if len(out.Warnings) > 0 {
			result.Error = out.Warnings[len(out.Warnings)-1]
		}
		if err := o.deps.Recorder.CompleteRun(ctx, out.RunID, model.RunStatusFor(snap.Totals.Status), result); err != nil {
			log.Warn("could not record run result", zap.Error(err))
			out.Warnings = append(out.Warnings, "record run result: "+err.Error())
		}
	}

	if o.deps.Notifier != nil {
		if err := o.deps.Notifier.SessionFinished(ctx, snap); err != nil {
			log.Warn("could not send notifications", zap.Error(err))
			out.Warnings = append(out.Warnings, "notify: "+err.Error())
		}
	}

	log.Info("session finished",
		zap.String("status", string(snap.Totals.Status)),
		zap.Int("items_validated", snap.Totals.ItemsValidated),
		zap.Int("items_updated", snap.Totals.ItemsUpdated),
		zap.Int("errors", snap.Totals.Errors),
		zap.Bool("cancelled", snap.Totals.Cancelled),
	)
}

func resolveDate(raw string, now time.Time) (string, error) {
	if raw == "" {
		return now.Format(DateLayout), nil
	}
	if _, err := time.Parse(DateLayout, raw); err != nil {
		return "", eris.Wrapf(err, "invalid run date %q, want YYYY-MM-DD", raw)
	}
	return raw, nil
}
