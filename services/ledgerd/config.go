package ledgerd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration for ledgerd.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	DatabaseDSN   string          `yaml:"database"`
	RatesPath     string          `yaml:"rates"`
	ReportsDir    string          `yaml:"reports_dir"`
	Paused        []string        `yaml:"paused"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Scheduler     SchedulerConfig `yaml:"scheduler"`
	Payout        PayoutConfig    `yaml:"payout"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

// AuthConfig configures HMAC bearer token verification.
type AuthConfig struct {
	Disabled      bool     `yaml:"disabled"`
	HMACSecret    string   `yaml:"hmac_secret"`
	HMACSecretEnv string   `yaml:"hmac_secret_env"`
	Issuer        string   `yaml:"issuer"`
	Audience      string   `yaml:"audience"`
	ScopeClaim    string   `yaml:"scope_claim"`
	ClockSkew     Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds request throughput per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// SchedulerConfig controls the daily maintenance run.
type SchedulerConfig struct {
	Disabled         bool     `yaml:"disabled"`
	RunHour          int      `yaml:"run_hour"`
	RunMinute        int      `yaml:"run_minute"`
	Timezone         string   `yaml:"timezone"`
	AutoApproveAfter Duration `yaml:"auto_approve_after"`
	SettleBatch      int      `yaml:"settle_batch"`
	PayoutBatch      int      `yaml:"payout_batch"`
	ExportStatements bool     `yaml:"export_statements"`
}

// PayoutConfig points the payout sweep at an HTTP payout rail. Without an
// endpoint the sweep is skipped.
type PayoutConfig struct {
	Endpoint  string   `yaml:"endpoint"`
	APIKey    string   `yaml:"api_key"`
	APIKeyEnv string   `yaml:"api_key_env"`
	Timeout   Duration `yaml:"timeout"`
}

// LoggingConfig configures the structured log sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// TelemetryConfig toggles OpenTelemetry exporters.
type TelemetryConfig struct {
	Traces  bool `yaml:"traces"`
	Metrics bool `yaml:"metrics"`
}

// LoadConfig reads configuration from the supplied path.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	dec := yaml.NewDecoder(file)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(&cfg)
	if err := cfg.Auth.normalise(); err != nil {
		return cfg, fmt.Errorf("auth: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":7090"
	}
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = "ledger.db"
	}
	if cfg.RatesPath == "" {
		cfg.RatesPath = "services/ledgerd/rates.toml"
	}
	if cfg.ReportsDir == "" {
		cfg.ReportsDir = "reports"
	}
	if cfg.Auth.ScopeClaim == "" {
		cfg.Auth.ScopeClaim = "scope"
	}
	if cfg.Auth.ClockSkew.Duration <= 0 {
		cfg.Auth.ClockSkew.Duration = 2 * time.Minute
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 50
	}
	if cfg.Scheduler.Timezone == "" {
		cfg.Scheduler.Timezone = "UTC"
	}
	if cfg.Scheduler.AutoApproveAfter.Duration <= 0 {
		cfg.Scheduler.AutoApproveAfter.Duration = 14 * 24 * time.Hour
	}
	if cfg.Scheduler.SettleBatch <= 0 {
		cfg.Scheduler.SettleBatch = 500
	}
	if cfg.Scheduler.PayoutBatch <= 0 {
		cfg.Scheduler.PayoutBatch = 100
	}
	if cfg.Payout.APIKey == "" && cfg.Payout.APIKeyEnv != "" {
		cfg.Payout.APIKey = strings.TrimSpace(os.Getenv(cfg.Payout.APIKeyEnv))
	}
	if cfg.Payout.Timeout.Duration <= 0 {
		cfg.Payout.Timeout.Duration = 10 * time.Second
	}
}

func (a *AuthConfig) normalise() error {
	if a.Disabled {
		return nil
	}
	if strings.TrimSpace(a.HMACSecret) == "" && a.HMACSecretEnv != "" {
		a.HMACSecret = strings.TrimSpace(os.Getenv(a.HMACSecretEnv))
	}
	if strings.TrimSpace(a.HMACSecret) == "" {
		return fmt.Errorf("hmac secret must be configured")
	}
	return nil
}

func validateConfig(cfg Config) error {
	if cfg.Scheduler.RunHour < 0 || cfg.Scheduler.RunHour > 23 {
		return fmt.Errorf("scheduler: run_hour must be between 0 and 23")
	}
	if cfg.Scheduler.RunMinute < 0 || cfg.Scheduler.RunMinute > 59 {
		return fmt.Errorf("scheduler: run_minute must be between 0 and 59")
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return fmt.Errorf("scheduler: timezone: %w", err)
	}
	return nil
}
