package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Output     OutputConfig     `yaml:"output" mapstructure:"output"`
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Fetcher    FetcherConfig    `yaml:"fetcher" mapstructure:"fetcher"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notify     NotifyConfig     `yaml:"notify" mapstructure:"notify"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OutputConfig configures where date-scoped reports are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// DatasetConfig points at the stored target files.
type DatasetConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// CatalogConfig optionally overrides the built-in sources and rule sets.
type CatalogConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// ValidationConfig holds the review thresholds and run defaults.
type ValidationConfig struct {
	AnomalyCeilingPercent  float64 `yaml:"anomaly_ceiling_percent" mapstructure:"anomaly_ceiling_percent"`
	SecondaryReviewPercent float64 `yaml:"secondary_review_percent" mapstructure:"secondary_review_percent"`
	HighPriorityPercent    float64 `yaml:"high_priority_percent" mapstructure:"high_priority_percent"`
	DryRun                 bool    `yaml:"dry_run" mapstructure:"dry_run"`
}

// FetcherConfig selects and tunes the Fetcher implementation.
type FetcherConfig struct {
	Kind         string  `yaml:"kind" mapstructure:"kind"` // http, snapshot or agent
	SnapshotPath string  `yaml:"snapshot_path" mapstructure:"snapshot_path"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	Envelope     string  `yaml:"envelope" mapstructure:"envelope"`
	HostRate     float64 `yaml:"host_rate" mapstructure:"host_rate"`
}

// Timeout returns the per-request timeout.
func (f FetcherConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// AnthropicConfig holds Anthropic API settings for the agent fetcher.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotifyConfig configures end-of-session notifications. Empty values disable
// the corresponding channel.
type NotifyConfig struct {
	WebhookURL string      `yaml:"webhook_url" mapstructure:"webhook_url"`
	Kafka      KafkaConfig `yaml:"kafka" mapstructure:"kafka"`
}

// KafkaConfig configures the session event producer.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers" mapstructure:"brokers"`
	Topic    string   `yaml:"topic" mapstructure:"topic"`
	ClientID string   `yaml:"client_id" mapstructure:"client_id"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("VALIDATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "validator.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("output.dir", "reports")
	v.SetDefault("dataset.dir", "data")
	v.SetDefault("catalog.rules_file", "")
	v.SetDefault("validation.anomaly_ceiling_percent", 15.0)
	v.SetDefault("validation.secondary_review_percent", 10.0)
	v.SetDefault("validation.high_priority_percent", 5.0)
	v.SetDefault("validation.dry_run", false)
	v.SetDefault("fetcher.kind", "http")
	v.SetDefault("fetcher.snapshot_path", "")
	v.SetDefault("fetcher.timeout_secs", 30)
	v.SetDefault("fetcher.user_agent", "market-validator/1.0")
	v.SetDefault("fetcher.envelope", "")
	v.SetDefault("fetcher.host_rate", 5.0)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "validator.sessions")
	v.SetDefault("notify.kafka.client_id", "market-validator")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. All problems are
// reported together.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "validate", "serve":
		errs = append(errs, c.validateRun()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "sessions":
		errs = append(errs, c.validateStore()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateRun() []string {
	errs := c.validateStore()
	if c.Output.Dir == "" {
		errs = append(errs, "output.dir is required")
	}
	if c.Dataset.Dir == "" {
		errs = append(errs, "dataset.dir is required")
	}

	switch c.Fetcher.Kind {
	case "http":
	case "snapshot":
		if c.Fetcher.SnapshotPath == "" {
			errs = append(errs, "fetcher.snapshot_path is required for the snapshot fetcher")
		}
	case "agent":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required for the agent fetcher")
		}
	default:
		errs = append(errs, fmt.Sprintf("fetcher.kind %q must be http, snapshot or agent", c.Fetcher.Kind))
	}

	v := c.Validation
	if v.AnomalyCeilingPercent <= 0 || v.SecondaryReviewPercent <= 0 || v.HighPriorityPercent <= 0 {
		errs = append(errs, "validation thresholds must be > 0")
	}
	return errs
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	case "none":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite, postgres or none", c.Store.Driver))
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
