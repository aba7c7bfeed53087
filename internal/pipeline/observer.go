package pipeline

import (
	"go.uber.org/zap"

	"github.com/sells-group/market-validator/internal/model"
)

// TickerOutcome describes how one ticker went.
type TickerOutcome struct {
	Source        model.SourceID
	Ticker        string
	Index         int
	Total         int
	Validated     int
	Discrepancies int
	Retries       int
	Err           error
}

// Observer receives progress callbacks. Calls are synchronous and arrive in
// processing order: TickerStarted and TickerFinished for every ticker, then
// SourceCompleted once per source.
type Observer interface {
	TickerStarted(source model.SourceID, ticker string, index, total int)
	TickerFinished(outcome TickerOutcome)
	SourceCompleted(report model.SourceReport)
}

// NopObserver ignores all progress.
type NopObserver struct{}

func (NopObserver) TickerStarted(model.SourceID, string, int, int) {}
func (NopObserver) TickerFinished(TickerOutcome)                   {}
func (NopObserver) SourceCompleted(model.SourceReport)             {}

// LogObserver writes progress to the global zap logger.
type LogObserver struct{}

func (LogObserver) TickerStarted(source model.SourceID, ticker string, index, total int) {
	zap.L().Info("validating ticker",
		zap.String("source", string(source)),
		zap.String("ticker", ticker),
		zap.Int("index", index+1),
		zap.Int("total", total),
	)
}

func (LogObserver) TickerFinished(o TickerOutcome) {
	fields := []zap.Field{
		zap.String("source", string(o.Source)),
		zap.String("ticker", o.Ticker),
		zap.Int("validated", o.Validated),
		zap.Int("discrepancies", o.Discrepancies),
		zap.Int("retries", o.Retries),
	}
	if o.Err != nil {
		zap.L().Warn("ticker failed", append(fields, zap.Error(o.Err))...)
		return
	}
	zap.L().Info("ticker done", fields...)
}

func (LogObserver) SourceCompleted(r model.SourceReport) {
	zap.L().Info("source complete",
		zap.String("source", string(r.Source)),
		zap.Int("items_validated", r.ItemsValidated),
		zap.Int("items_updated", r.ItemsUpdated),
		zap.Int("items_skipped", r.ItemsSkipped),
		zap.Int("discrepancies", r.Discrepancies),
		zap.Int("errors", r.Errors),
	)
}

// ObserverFor picks the observer for a run's verbosity.
func ObserverFor(verbose bool) Observer {
	if verbose {
		return LogObserver{}
	}
	return NopObserver{}
}
