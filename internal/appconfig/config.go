// Package appconfig exposes process-wide ambient settings loaded from YAML
// and overlaid with environment variables. It never carries the domain
// documents (weights, asset mapping, credentials, execution cache) — those
// are plain JSON per the wire contract and live in their own packages.
package appconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// App captures process-wide runtime settings: identity, metrics, logging.
type App struct {
	Name        string `yaml:"name" env:"APP_NAME"`
	Env         string `yaml:"env" env:"APP_ENV"`
	MetricsAddr string `yaml:"metrics_addr" env:"METRICS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
}

// Cycle controls the cycle driver's pacing and concurrency knobs (spec §4.9,
// §5). Zero values fall back to the spec's defaults at construction time.
type Cycle struct {
	Period                    time.Duration `yaml:"period" env:"CYCLE_PERIOD"`
	PerAccountSymbolConcurrency int         `yaml:"per_account_symbol_concurrency" env:"PER_ACCOUNT_SYMBOL_CONCURRENCY"`
	MaxReconcileRetries       int           `yaml:"max_reconcile_retries" env:"MAX_RECONCILE_RETRIES"`
	AdapterFetchTimeout       time.Duration `yaml:"adapter_fetch_timeout" env:"ADAPTER_FETCH_TIMEOUT"`
	OrderTimeout              time.Duration `yaml:"order_timeout" env:"ORDER_TIMEOUT"`
	SoftDeadline              time.Duration `yaml:"soft_deadline" env:"CYCLE_SOFT_DEADLINE"`
	CloseThreshold            time.Duration `yaml:"close_threshold" env:"CLOSE_THRESHOLD"`
	SpecCacheTTL              time.Duration `yaml:"spec_cache_ttl" env:"SPEC_CACHE_TTL"`
}

// Risk guards the size of any single computed order regardless of what the
// aggregator asked for. Zero means unguarded.
type Risk struct {
	MaxNotionalPerOrder float64 `yaml:"max_notional_per_order" env:"MAX_NOTIONAL_PER_ORDER"`
}

// Profiling controls the optional grafana/pyroscope-go continuous profiler.
type Profiling struct {
	Enabled    bool   `yaml:"enabled" env:"PROFILING_ENABLED"`
	ServerAddr string `yaml:"server_addr" env:"PYROSCOPE_SERVER_ADDR"`
}

// Paths points at the domain documents described in spec §6.
type Paths struct {
	WeightConfig      string `yaml:"weight_config" env:"WEIGHT_CONFIG_PATH"`
	AssetMapping      string `yaml:"asset_mapping" env:"ASSET_MAPPING_PATH"`
	Credentials       string `yaml:"credentials" env:"CREDENTIALS_PATH"`
	ExecutionCacheDir string `yaml:"execution_cache_dir" env:"EXECUTION_CACHE_DIR"`
	RawSignalsDir     string `yaml:"raw_signals_dir" env:"RAW_SIGNALS_DIR"`
}

// Config collects every ambient configuration leaf.
type Config struct {
	App       App       `yaml:"app"`
	Cycle     Cycle     `yaml:"cycle"`
	Risk      Risk      `yaml:"risk"`
	Profiling Profiling `yaml:"profiling"`
	Paths     Paths     `yaml:"paths"`
}

// Defaults returns the spec's default constants (§6), used to fill any
// zero-valued field after loading.
func Defaults() Config {
	return Config{
		App: App{Name: "trade-engine", Env: "production", MetricsAddr: ":9090", LogLevel: "info"},
		Cycle: Cycle{
			Period:                      10 * time.Second,
			PerAccountSymbolConcurrency: 10,
			MaxReconcileRetries:         2,
			AdapterFetchTimeout:         5 * time.Second,
			OrderTimeout:                15 * time.Second,
			SoftDeadline:                60 * time.Second,
			CloseThreshold:              5 * time.Second,
			SpecCacheTTL:                time.Hour,
		},
		Paths: Paths{
			WeightConfig:      "signal_weight_config.json",
			AssetMapping:      "asset_mapping_config.json",
			Credentials:       "credentials.json",
			ExecutionCacheDir: ".",
			RawSignalsDir:     "raw_signals",
		},
	}
}

// Load reads a YAML file from disk, applies spec defaults to zero fields,
// then overlays environment variables on top.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	applyDefaults(&cfg)

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}
	return &cfg, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.App.Name == "" {
		cfg.App.Name = d.App.Name
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = d.App.MetricsAddr
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = d.App.LogLevel
	}
	if cfg.Cycle.Period <= 0 {
		cfg.Cycle.Period = d.Cycle.Period
	}
	if cfg.Cycle.PerAccountSymbolConcurrency <= 0 {
		cfg.Cycle.PerAccountSymbolConcurrency = d.Cycle.PerAccountSymbolConcurrency
	}
	if cfg.Cycle.MaxReconcileRetries <= 0 {
		cfg.Cycle.MaxReconcileRetries = d.Cycle.MaxReconcileRetries
	}
	if cfg.Cycle.AdapterFetchTimeout <= 0 {
		cfg.Cycle.AdapterFetchTimeout = d.Cycle.AdapterFetchTimeout
	}
	if cfg.Cycle.OrderTimeout <= 0 {
		cfg.Cycle.OrderTimeout = d.Cycle.OrderTimeout
	}
	if cfg.Cycle.SoftDeadline <= 0 {
		cfg.Cycle.SoftDeadline = d.Cycle.SoftDeadline
	}
	if cfg.Cycle.CloseThreshold <= 0 {
		cfg.Cycle.CloseThreshold = d.Cycle.CloseThreshold
	}
	if cfg.Cycle.SpecCacheTTL <= 0 {
		cfg.Cycle.SpecCacheTTL = d.Cycle.SpecCacheTTL
	}
	if cfg.Paths.WeightConfig == "" {
		cfg.Paths.WeightConfig = d.Paths.WeightConfig
	}
	if cfg.Paths.AssetMapping == "" {
		cfg.Paths.AssetMapping = d.Paths.AssetMapping
	}
	if cfg.Paths.Credentials == "" {
		cfg.Paths.Credentials = d.Paths.Credentials
	}
	if cfg.Paths.ExecutionCacheDir == "" {
		cfg.Paths.ExecutionCacheDir = d.Paths.ExecutionCacheDir
	}
	if cfg.Paths.RawSignalsDir == "" {
		cfg.Paths.RawSignalsDir = d.Paths.RawSignalsDir
	}
}
