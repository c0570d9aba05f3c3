package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jthadison/tmt-sub003/internal/types"
	"github.com/jthadison/tmt-sub003/pkg/errors"
	"github.com/jthadison/tmt-sub003/pkg/utils"
)

const (
	EnvironmentPractice = "practice"
	EnvironmentLive     = "live"

	practiceBaseURL = "https://api-fxpractice.oanda.com"
	liveBaseURL     = "https://api-fxtrade.oanda.com"
)

// Config is the top-level configuration for the execution engine.
type Config struct {
	Broker  BrokerConfig  `yaml:"broker" json:"broker" jsonschema:"description=Broker gateway connection settings"`
	Engine  EngineConfig  `yaml:"engine" json:"engine" jsonschema:"description=Order engine tuning"`
	Risk    RiskConfig    `yaml:"risk" json:"risk" jsonschema:"description=Risk limits and monitoring"`
	Journal JournalConfig `yaml:"journal" json:"journal" jsonschema:"description=Trade journal storage"`
	Ops     OpsConfig     `yaml:"ops" json:"ops" jsonschema:"description=Operational HTTP listener"`
	Logging LoggingConfig `yaml:"logging" json:"logging" jsonschema:"description=Logger settings"`
}

// BrokerConfig holds credentials and transport tuning for the broker REST API.
type BrokerConfig struct {
	// Environment selects the broker endpoint: practice or live.
	Environment string `yaml:"environment" json:"environment" jsonschema:"description=Broker environment,enum=practice,enum=live" validate:"required,oneof=practice live"`
	APIToken    string `yaml:"api_token" json:"api_token" jsonschema:"description=Bearer token for the broker API" validate:"required"`
	AccountID   string `yaml:"account_id" json:"account_id" jsonschema:"description=Default broker account id" validate:"required"`
	// BaseURL overrides the environment endpoint, used for testing.
	BaseURL string `yaml:"base_url" json:"base_url" jsonschema:"description=Endpoint override for testing"`
	// AllowLive must be set explicitly before the live environment is accepted.
	AllowLive bool `yaml:"allow_live" json:"allow_live" jsonschema:"description=Explicit opt-in required for the live environment"`

	TimeoutMs      int `yaml:"timeout_ms" json:"timeout_ms" jsonschema:"description=Per request timeout in milliseconds,default=5000"`
	MaxConnections int `yaml:"max_connections" json:"max_connections" jsonschema:"description=Pooled connections to the broker,default=10"`
	// RateLimitPerSecond bounds in-flight request starts; callers wait, never fail.
	RateLimitPerSecond int `yaml:"rate_limit_per_second" json:"rate_limit_per_second" jsonschema:"description=Request starts per second,default=30"`
	RateBurst          int `yaml:"rate_burst" json:"rate_burst" jsonschema:"description=Burst allowance on the rate gate,default=10"`
	// MaxRetries applies to idempotent reads only; order placements never retry.
	MaxRetries     int `yaml:"max_retries" json:"max_retries" jsonschema:"description=Retry attempts for idempotent reads,default=3"`
	RetryWaitMinMs int `yaml:"retry_wait_min_ms" json:"retry_wait_min_ms" jsonschema:"description=Initial retry backoff in milliseconds,default=100"`
	RetryWaitMaxMs int `yaml:"retry_wait_max_ms" json:"retry_wait_max_ms" jsonschema:"description=Backoff ceiling in milliseconds,default=2000"`
	LatencyWindow  int `yaml:"latency_window" json:"latency_window" jsonschema:"description=Samples kept per operation for latency percentiles,default=1024"`
}

// EngineConfig tunes the order manager and background loops.
type EngineConfig struct {
	Workers   int `yaml:"workers" json:"workers" jsonschema:"description=Execution worker goroutines,default=4"`
	QueueSize int `yaml:"queue_size" json:"queue_size" jsonschema:"description=Bounded execution queue length,default=64"`

	PriceRefreshMs    int `yaml:"price_refresh_ms" json:"price_refresh_ms" jsonschema:"description=Price refresh interval in milliseconds,default=1000"`
	ReconcileMs       int `yaml:"reconcile_ms" json:"reconcile_ms" jsonschema:"description=Broker reconciliation interval in milliseconds,default=30000"`
	SummaryRefreshMs  int `yaml:"summary_refresh_ms" json:"summary_refresh_ms" jsonschema:"description=Account summary refresh interval in milliseconds,default=5000"`
	ExpirySweepMs     int `yaml:"expiry_sweep_ms" json:"expiry_sweep_ms" jsonschema:"description=GTD expiry sweep interval in milliseconds,default=10000"`
	MarketTimeoutMs   int `yaml:"market_timeout_ms" json:"market_timeout_ms" jsonschema:"description=Synchronous market order wait in milliseconds,default=5000"`
	CompletedTTLMs    int `yaml:"completed_ttl_ms" json:"completed_ttl_ms" jsonschema:"description=Completed order cache TTL in milliseconds,default=3600000"`
	CompletedCapacity int `yaml:"completed_capacity" json:"completed_capacity" jsonschema:"description=Completed order cache max entries,default=10000"`
}

// RiskConfig carries the default limit set plus per account overrides.
type RiskConfig struct {
	Limits types.RiskLimits `yaml:"limits" json:"limits" jsonschema:"description=Default risk limits"`
	// AccountLimits overrides the default limits per account id.
	AccountLimits map[string]types.RiskLimits `yaml:"account_limits" json:"account_limits" jsonschema:"description=Per account limit overrides"`
	MonitorMs     int                         `yaml:"monitor_ms" json:"monitor_ms" jsonschema:"description=Kill switch trigger evaluation interval in milliseconds,default=2000"`
}

// JournalConfig configures the duckdb trade journal.
type JournalConfig struct {
	// Path is the duckdb database file; empty runs in memory.
	Path string `yaml:"path" json:"path" jsonschema:"description=Journal database file (empty for in-memory)"`
	// ExportDir receives parquet exports, empty disables exporting.
	ExportDir string `yaml:"export_dir" json:"export_dir" jsonschema:"description=Directory for parquet exports"`
}

// OpsConfig configures the operational HTTP listener.
type OpsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled" jsonschema:"description=Serve /healthz and /metrics"`
	Listen  string `yaml:"listen" json:"listen" jsonschema:"description=Ops listener address,default=:8086"`
}

// LoggingConfig configures the application logger.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level" jsonschema:"description=Log level,enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies .env and environment overrides, fills defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env file is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "read config %s", path)
	}

	cfg := &Config{} //nolint:exhaustruct // populated from YAML
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "parse config", err)
	}

	applyEnvOverrides(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Schema returns the JSON schema for the configuration file.
func Schema() (string, error) {
	out, err := utils.GetSchemaFromConfig(&Config{}) //nolint:exhaustruct // empty value for schema generation
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "marshal config schema", err)
	}

	return out, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BROKER_ENVIRONMENT"); v != "" {
		cfg.Broker.Environment = v
	}

	if v := os.Getenv("BROKER_API_TOKEN"); v != "" {
		cfg.Broker.APIToken = v
	}

	if v := os.Getenv("BROKER_ACCOUNT_ID"); v != "" {
		cfg.Broker.AccountID = v
	}

	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}

	if v := os.Getenv("BROKER_ALLOW_LIVE"); v != "" {
		if allow, err := strconv.ParseBool(v); err == nil {
			cfg.Broker.AllowLive = allow
		}
	}

	if v := os.Getenv("JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}

	if v := os.Getenv("OPS_LISTEN"); v != "" {
		cfg.Ops.Listen = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// applyDefaults fills zero fields with working defaults.
func (c *Config) applyDefaults() {
	if c.Broker.Environment == "" {
		c.Broker.Environment = EnvironmentPractice
	}

	if c.Broker.TimeoutMs == 0 {
		c.Broker.TimeoutMs = 5000
	}

	if c.Broker.MaxConnections == 0 {
		c.Broker.MaxConnections = 10
	}

	if c.Broker.RateLimitPerSecond == 0 {
		c.Broker.RateLimitPerSecond = 30
	}

	if c.Broker.RateBurst == 0 {
		c.Broker.RateBurst = 10
	}

	if c.Broker.MaxRetries == 0 {
		c.Broker.MaxRetries = 3
	}

	if c.Broker.RetryWaitMinMs == 0 {
		c.Broker.RetryWaitMinMs = 100
	}

	if c.Broker.RetryWaitMaxMs == 0 {
		c.Broker.RetryWaitMaxMs = 2000
	}

	if c.Broker.LatencyWindow == 0 {
		c.Broker.LatencyWindow = 1024
	}

	if c.Engine.Workers == 0 {
		c.Engine.Workers = 4
	}

	if c.Engine.QueueSize == 0 {
		c.Engine.QueueSize = 64
	}

	if c.Engine.PriceRefreshMs == 0 {
		c.Engine.PriceRefreshMs = 1000
	}

	if c.Engine.ReconcileMs == 0 {
		c.Engine.ReconcileMs = 30000
	}

	if c.Engine.SummaryRefreshMs == 0 {
		c.Engine.SummaryRefreshMs = 5000
	}

	if c.Engine.ExpirySweepMs == 0 {
		c.Engine.ExpirySweepMs = 10000
	}

	if c.Engine.MarketTimeoutMs == 0 {
		c.Engine.MarketTimeoutMs = 5000
	}

	if c.Engine.CompletedTTLMs == 0 {
		c.Engine.CompletedTTLMs = int(time.Hour / time.Millisecond)
	}

	if c.Engine.CompletedCapacity == 0 {
		c.Engine.CompletedCapacity = 10000
	}

	if c.Risk.MonitorMs == 0 {
		c.Risk.MonitorMs = 2000
	}

	if c.Ops.Listen == "" {
		c.Ops.Listen = ":8086"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate validates the Config struct.
func (c *Config) Validate() error {
	validate := validator.New()

	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid config", err)
	}

	if c.Broker.Environment == EnvironmentLive && !c.Broker.AllowLive {
		return errors.New(errors.ErrCodeInvalidConfiguration, "live environment requires allow_live: true")
	}

	if err := c.Risk.Limits.Validate(); err != nil {
		return err
	}

	for accountID := range c.Risk.AccountLimits {
		limits := c.Risk.AccountLimits[accountID]
		if err := limits.Validate(); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "account %s limits", accountID)
		}
	}

	return nil
}

// BrokerBaseURL resolves the endpoint: explicit override first, then the
// environment default.
func (c *Config) BrokerBaseURL() string {
	if c.Broker.BaseURL != "" {
		return c.Broker.BaseURL
	}

	if c.Broker.Environment == EnvironmentLive {
		return liveBaseURL
	}

	return practiceBaseURL
}

// Timeout returns the per request timeout.
func (b *BrokerConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// RetryWaitMin returns the initial retry backoff.
func (b *BrokerConfig) RetryWaitMin() time.Duration {
	return time.Duration(b.RetryWaitMinMs) * time.Millisecond
}

// RetryWaitMax returns the retry backoff ceiling.
func (b *BrokerConfig) RetryWaitMax() time.Duration {
	return time.Duration(b.RetryWaitMaxMs) * time.Millisecond
}

// PriceRefreshInterval returns the price refresher tick.
func (e *EngineConfig) PriceRefreshInterval() time.Duration {
	return time.Duration(e.PriceRefreshMs) * time.Millisecond
}

// ReconcileInterval returns the reconciliation tick.
func (e *EngineConfig) ReconcileInterval() time.Duration {
	return time.Duration(e.ReconcileMs) * time.Millisecond
}

// SummaryRefreshInterval returns the account summary refresh tick.
func (e *EngineConfig) SummaryRefreshInterval() time.Duration {
	return time.Duration(e.SummaryRefreshMs) * time.Millisecond
}

// ExpirySweepInterval returns the GTD expiry sweep tick.
func (e *EngineConfig) ExpirySweepInterval() time.Duration {
	return time.Duration(e.ExpirySweepMs) * time.Millisecond
}

// MarketTimeout returns the synchronous market order wait bound.
func (e *EngineConfig) MarketTimeout() time.Duration {
	return time.Duration(e.MarketTimeoutMs) * time.Millisecond
}

// CompletedTTL returns the completed order cache TTL.
func (e *EngineConfig) CompletedTTL() time.Duration {
	return time.Duration(e.CompletedTTLMs) * time.Millisecond
}

// MonitorInterval returns the kill switch trigger evaluation tick.
func (r *RiskConfig) MonitorInterval() time.Duration {
	return time.Duration(r.MonitorMs) * time.Millisecond
}
