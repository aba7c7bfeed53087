package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/dataset"
	"github.com/sells-group/market-validator/internal/fetcher"
	"github.com/sells-group/market-validator/internal/model"
	"github.com/sells-group/market-validator/internal/resilience"
)

// DispatchInput is everything the Dispatcher needs for one source.
type DispatchInput struct {
	Source   model.DataSource
	Rules    model.ValidationRuleSet
	Baseline []model.BaselineItem
	DryRun   bool
}

// DispatchResult is what one source contributes to the session.
type DispatchResult struct {
	Report        model.SourceReport
	Modifications []model.ModificationRecord
	Errors        []model.ErrorRecord
	// Reviews holds the discrepancies a reviewer should look at: anomalies,
	// flagged values and anything at or above the high-priority level.
	Reviews []model.Discrepancy
	// Updates is the batch that was (or in a dry run, would have been) sent
	// to the Updater.
	Updates []model.Discrepancy
}

// Dispatcher validates one source: fetch each ticker, compare against the
// stored baseline and hand the update batch to the Updater.
type Dispatcher struct {
	fetcher    fetcher.Fetcher
	updater    dataset.Updater
	observer   Observer
	thresholds compare.Thresholds
	now        func() time.Time
}

// NewDispatcher creates a Dispatcher. A nil observer disables progress callbacks.
func NewDispatcher(f fetcher.Fetcher, u dataset.Updater, obs Observer, th compare.Thresholds) *Dispatcher {
	if obs == nil {
		obs = NopObserver{}
	}
	return &Dispatcher{
		fetcher:    f,
		updater:    u,
		observer:   obs,
		thresholds: th.WithDefaults(),
		now:        time.Now,
	}
}

// Run processes the tickers of in.Baseline sequentially, in order, up to the
// rule set's session cap. Every Fetcher call, retries included, is spaced by
// at least WaitBetweenRequestsMs. Cancellation is checked between tickers;
// whatever was gathered before it is returned.
func (d *Dispatcher) Run(ctx context.Context, in DispatchInput) DispatchResult {
	src, rules := in.Source, in.Rules
	log := zap.L().With(zap.String("source", string(src.ID)))

	res := DispatchResult{
		Report: model.SourceReport{Source: src.ID, SourceName: src.DisplayName},
	}

	items := in.Baseline
	if rules.MaxItemsPerSession > 0 && len(items) > rules.MaxItemsPerSession {
		log.Info("session cap reached, remaining tickers deferred",
			zap.Int("cap", rules.MaxItemsPerSession),
			zap.Int("deferred", len(items)-rules.MaxItemsPerSession),
		)
		items = items[:rules.MaxItemsPerSession]
	}

	pacer := newPacer(rules.WaitBetweenRequestsMs)
	names := make(map[string]string, len(items))

	for i, item := range items {
		if ctx.Err() != nil {
			log.Warn("dispatch cancelled", zap.Int("processed", i), zap.Int("total", len(items)))
			break
		}
		names[item.Ticker] = item.Name
		d.observer.TickerStarted(src.ID, item.Ticker, i, len(items))

		outcome := TickerOutcome{Source: src.ID, Ticker: item.Ticker, Index: i, Total: len(items)}
		fields, retries, err := d.fetch(ctx, pacer, src, rules, item.Ticker)
		outcome.Retries = retries
		if err != nil {
			outcome.Err = err
			if ctx.Err() == nil {
				res.Errors = append(res.Errors, model.ErrorRecord{
					Timestamp:   d.now(),
					Agent:       AgentDispatcher,
					Task:        fmt.Sprintf("fetch %s/%s", src.ID, item.Ticker),
					Error:       err.Error(),
					Recoverable: false,
					RetryCount:  retries,
				})
			}
			d.observer.TickerFinished(outcome)
			continue
		}

		ev := d.evaluate(src, rules, item, fields)
		res.Report.ItemsValidated += ev.validated
		res.Report.ItemsSkipped += ev.validated - len(ev.updates)
		res.Report.Discrepancies += len(ev.updates)
		res.Updates = append(res.Updates, ev.updates...)
		res.Reviews = append(res.Reviews, ev.reviews...)
		for _, missing := range ev.missing {
			res.Errors = append(res.Errors, model.ErrorRecord{
				Timestamp:   d.now(),
				Agent:       AgentDispatcher,
				Task:        fmt.Sprintf("validate %s/%s.%s", src.ID, missing.Ticker, missing.Field),
				Error:       missing.Error(),
				Recoverable: true,
			})
		}

		outcome.Validated = ev.validated
		outcome.Discrepancies = len(ev.updates)
		d.observer.TickerFinished(outcome)
	}

	d.applyUpdates(ctx, in, names, &res)

	res.Report.Errors = len(res.Errors)
	d.observer.SourceCompleted(res.Report)
	return res
}

func (d *Dispatcher) fetch(ctx context.Context, pacer *rate.Limiter, src model.DataSource, rules model.ValidationRuleSet, ticker string) (map[string]any, int, error) {
	attempts := 1
	if rules.RetryOnError {
		attempts = rules.MaxRetries + 1
	}
	retries := 0
	fields, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts:   attempts,
		ShouldRetry:   resilience.AlwaysRetry,
		BeforeAttempt: pacer.Wait,
		OnRetry: func(attempt int, err error) {
			retries = attempt
			zap.L().Debug("retrying fetch",
				zap.String("source", string(src.ID)),
				zap.String("ticker", ticker),
				zap.Int("attempt", attempt),
				zap.Bool("transient", transientFetch(err)),
				zap.Error(err),
			)
		},
	}, func(ctx context.Context) (map[string]any, error) {
		return d.fetcher.Fetch(ctx, src, ticker)
	})
	if err != nil {
		return nil, retries, err
	}
	if fields == nil {
		fields = map[string]any{}
	}
	return fields, retries, nil
}

// transientFetch reports whether a failed fetch looked temporary.
func transientFetch(err error) bool {
	var fe *fetcher.FetchError
	return errors.As(err, &fe) && fe.Transient()
}

type evaluation struct {
	validated int
	updates   []model.Discrepancy
	reviews   []model.Discrepancy
	missing   []*MissingRequiredFieldError
}

// evaluate compares every ruled field of one fetched ticker. Fields without a
// rule or without a stored value are never evaluated.
func (d *Dispatcher) evaluate(src model.DataSource, rules model.ValidationRuleSet, item model.BaselineItem, fields map[string]any) evaluation {
	var ev evaluation
	for _, rule := range rules.Rules {
		mapping := mappingFor(src, rule.Field)
		raw, ok := fields[mapping.SourceField]
		if !ok || raw == nil {
			if rule.Required {
				ev.missing = append(ev.missing, &MissingRequiredFieldError{
					Source: src.ID, Ticker: item.Ticker, Field: rule.Field,
				})
			}
			continue
		}
		stored, ok := item.Fields[rule.Field]
		if !ok {
			continue
		}

		fetched := compare.Apply(mapping.Transform, raw)
		ev.validated++

		cmp := compare.Compare(stored, fetched, rule.ThresholdPercent)
		if !cmp.NeedsUpdate {
			continue
		}
		disc := model.Discrepancy{
			Ticker:       item.Ticker,
			Name:         item.Name,
			Field:        rule.Field,
			CurrentValue: stored,
			FetchedValue: fetched,
			PercentDiff:  cmp.PercentDiff,
			Action:       model.ActionUpdate,
			Anomaly:      compare.DetectAnomaly(stored, fetched, d.thresholds.AnomalyCeiling),
		}
		if fetched < 0 && !rule.AllowNegative {
			disc.Action = model.ActionFlag
		}

		if disc.Action == model.ActionUpdate {
			ev.updates = append(ev.updates, disc)
		}
		if disc.Anomaly || disc.Action == model.ActionFlag || disc.PercentDiff >= d.thresholds.HighPriority {
			ev.reviews = append(ev.reviews, disc)
		}
	}
	return ev
}

// applyUpdates sends the whole batch in one Updater call and turns the
// declared changes into modification records.
func (d *Dispatcher) applyUpdates(ctx context.Context, in DispatchInput, names map[string]string, res *DispatchResult) {
	if len(res.Updates) == 0 {
		return
	}
	log := zap.L().With(zap.String("source", string(in.Source.ID)), zap.Int("batch", len(res.Updates)))
	if in.DryRun {
		log.Info("dry run, update batch not applied")
		return
	}
	if ctx.Err() != nil {
		log.Warn("cancelled before update batch was applied")
		return
	}

	changes, err := d.updater.Apply(ctx, in.Source.TargetFileID, res.Updates)
	if err != nil {
		log.Error("update batch failed", zap.Error(err))
		res.Errors = append(res.Errors, model.ErrorRecord{
			Timestamp:   d.now(),
			Agent:       AgentUpdater,
			Task:        fmt.Sprintf("apply %s", in.Source.TargetFileID),
			Error:       err.Error(),
			Recoverable: false,
		})
		res.Report.ItemsUpdated = 0
		return
	}

	// A ticker listed twice in the baseline is requested twice.
	type key struct{ ticker, field string }
	requested := make(map[key]int, len(res.Updates))
	for _, u := range res.Updates {
		requested[key{u.Ticker, u.Field}]++
	}

	ts := d.now()
	for _, c := range changes {
		k := key{c.Ticker, c.Field}
		if requested[k] == 0 {
			log.Warn("updater reported a change that was not requested",
				zap.String("ticker", c.Ticker),
				zap.String("field", c.Field),
			)
			continue
		}
		requested[k]--
		res.Modifications = append(res.Modifications, model.ModificationRecord{
			Timestamp: ts,
			File:      in.Source.TargetFileID,
			Ticker:    c.Ticker,
			Name:      names[c.Ticker],
			Field:     c.Field,
			OldValue:  c.OldValue,
			NewValue:  c.NewValue,
			Agent:     AgentUpdater,
		})
	}
	res.Report.ItemsUpdated = len(res.Modifications)
	log.Info("update batch applied", zap.Int("applied", len(res.Modifications)))
}

// mappingFor finds how a ruled field is read from the fetched payload. A
// field with no mapping is read under its own name as a plain float.
func mappingFor(src model.DataSource, field string) model.FieldMapping {
	for _, m := range src.FieldMappings {
		if m.TargetField == field {
			return m
		}
	}
	return model.FieldMapping{SourceField: field, TargetField: field, Transform: model.TransformPlainFloat}
}

// newPacer spaces calls by waitMs with no burst beyond the first call.
func newPacer(waitMs int) *rate.Limiter {
	if waitMs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(waitMs)*time.Millisecond), 1)
}
