package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/market-validator/internal/artifact"
	"github.com/sells-group/market-validator/internal/catalog"
	"github.com/sells-group/market-validator/internal/compare"
	"github.com/sells-group/market-validator/internal/config"
	"github.com/sells-group/market-validator/internal/dataset"
	"github.com/sells-group/market-validator/internal/fetcher"
	"github.com/sells-group/market-validator/internal/notify"
	"github.com/sells-group/market-validator/internal/pipeline"
	"github.com/sells-group/market-validator/internal/store"
	anthropicpkg "github.com/sells-group/market-validator/pkg/anthropic"
)

// appEnv holds everything the validate and serve commands need.
type appEnv struct {
	Store        store.Store // nil when store.driver is none
	Registry     *catalog.Registry
	Rules        *catalog.RuleCatalog
	Orchestrator *pipeline.Orchestrator
	closers      []func() error
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			zap.L().Warn("close failed", zap.Error(err))
		}
	}
}

// initApp validates the configuration for mode and wires the orchestrator.
// Callers should defer env.Close().
func initApp(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg, rules, err := catalog.Load(cfg.Catalog.RulesFile)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Registry: reg, Rules: rules}

	f, err := initFetcher(cfg, rules)
	if err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if st != nil {
		env.closers = append(env.closers, st.Close)
		if err := st.Migrate(ctx); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
		env.Store = st
	}

	fs := afero.NewOsFs()
	data := dataset.NewFileStore(fs, cfg.Dataset.Dir)
	deps := pipeline.Deps{
		Registry:   reg,
		Rules:      rules,
		Baseline:   data,
		Fetcher:    f,
		Updater:    data,
		Writer:     artifact.NewFileWriter(fs, cfg.Output.Dir),
		Thresholds: thresholds(cfg.Validation),
	}
	if env.Store != nil {
		deps.Recorder = env.Store
	}
	if n := initNotifier(env); len(n) > 0 {
		deps.Notifier = n
	}
	env.Orchestrator = pipeline.NewOrchestrator(deps)
	return env, nil
}

// initStore opens the run history backend. It returns nil when the driver is none.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "validator.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "none":
		return nil, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initFetcher(c *config.Config, rules fetcher.RuleLookup) (fetcher.Fetcher, error) {
	switch c.Fetcher.Kind {
	case "http", "":
		return fetcher.NewHTTP(fetcher.HTTPOptions{
			UserAgent: c.Fetcher.UserAgent,
			Timeout:   c.Fetcher.Timeout(),
			HostRate:  rate.Limit(c.Fetcher.HostRate),
			Envelope:  c.Fetcher.Envelope,
		}), nil
	case "snapshot":
		return fetcher.LoadSnapshot(c.Fetcher.SnapshotPath)
	case "agent":
		client := anthropicpkg.NewClient(c.Anthropic.Key)
		return fetcher.NewAgent(client, fetcher.AgentOptions{
			Model:     c.Anthropic.Model,
			MaxTokens: c.Anthropic.MaxTokens,
			Rules:     rules,
		}), nil
	default:
		return nil, eris.Errorf("unsupported fetcher kind: %s", c.Fetcher.Kind)
	}
}

// initNotifier builds the configured notification channels. A Kafka producer
// that cannot connect is skipped with a warning.
func initNotifier(env *appEnv) notify.Multi {
	var n notify.Multi
	if cfg.Notify.WebhookURL != "" {
		n = append(n, notify.NewAlerter(cfg.Notify.WebhookURL))
	}
	if len(cfg.Notify.Kafka.Brokers) > 0 {
		pub, err := notify.NewPublisher(cfg.Notify.Kafka)
		if err != nil {
			zap.L().Warn("kafka publisher disabled", zap.Error(err))
		} else {
			env.closers = append(env.closers, pub.Close)
			n = append(n, pub)
		}
	}
	return n
}

func thresholds(v config.ValidationConfig) compare.Thresholds {
	return compare.Thresholds{
		AnomalyCeiling:  v.AnomalyCeilingPercent,
		SecondaryReview: v.SecondaryReviewPercent,
		HighPriority:    v.HighPriorityPercent,
	}
}
