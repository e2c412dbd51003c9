// Package config loads the gateway's configuration surface: the backend
// pool, the ingress allow-list, scanner wiring, cache sizing, concurrency
// limits, and stream-mediation thresholds. Loaded with viper (YAML file +
// SENTRY_-prefixed env overrides), the same mechanism the teacher repo uses.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration surface described in spec.md §6.
type Config struct {
	Listen     ListenConfig     `mapstructure:"listen"`
	Backends   []BackendConfig  `mapstructure:"backends"`
	AllowList  []string         `mapstructure:"allow_list"`
	Language   LanguageConfig   `mapstructure:"language_detection"`
	Input      ScanStageConfig  `mapstructure:"input_scan"`
	Output     ScanStageConfig  `mapstructure:"output_scan"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Stream     StreamConfig     `mapstructure:"stream"`
	RequestTimeoutSec int        `mapstructure:"request_timeout_sec"`
	Log        LogConfig        `mapstructure:"log"`
}

// ListenConfig is the ingress bind address.
type ListenConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// BackendConfig names one upstream Ollama-style backend.
type BackendConfig struct {
	Name    string `mapstructure:"name"`
	BaseURL string `mapstructure:"base_url"`
	Weight  int    `mapstructure:"weight"`
}

// LanguageConfig toggles language detection.
type LanguageConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ScannerConfig names one scanner and its parameters. Params are
// scanner-specific (e.g. regex patterns, a reason string, a threshold).
type ScannerConfig struct {
	Name   string                 `mapstructure:"name"`
	Params map[string]interface{} `mapstructure:"params"`
}

// ScanStageConfig configures one direction (input or output) of scanning.
type ScanStageConfig struct {
	Enabled           bool            `mapstructure:"enabled"`
	Scanners          []ScannerConfig `mapstructure:"scanners"`
	Policy            string          `mapstructure:"policy"` // run_all | fail_fast
	BlockOnScanError  bool            `mapstructure:"block_on_scanner_error"`
}

// CacheConfig configures ScanCache.
type CacheConfig struct {
	Backend    string `mapstructure:"backend"` // memory | external
	TTLSec     int    `mapstructure:"ttl_sec"`
	MaxEntries int    `mapstructure:"max_entries"`
	RedisAddr  string `mapstructure:"redis_addr"`
}

// ModelLimitConfig is a per-model override; ParallelLimit may be the
// literal string "auto".
type ModelLimitConfig struct {
	Model         string `mapstructure:"model"`
	ParallelLimit string `mapstructure:"parallel_limit"`
	QueueLimit    int    `mapstructure:"queue_limit"`
}

// ConcurrencyConfig configures the default and per-model admission limits.
type ConcurrencyConfig struct {
	DefaultParallelLimit string             `mapstructure:"default_parallel_limit"`
	DefaultQueueLimit    int                `mapstructure:"default_queue_limit"`
	Models               []ModelLimitConfig `mapstructure:"models"`
}

// StreamConfig configures StreamMediator thresholds.
type StreamConfig struct {
	ScanBytes int `mapstructure:"scan_bytes"`
	ScanMs    int `mapstructure:"scan_ms"`
	MaxBufferBytes int `mapstructure:"max_buffer_bytes"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ParallelLimit resolves a configured parallel limit string ("auto" or an
// integer) against the host's available memory, per spec.md §4.5.
func ParallelLimit(raw string, availableMemGB int) int {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		raw = "auto"
	}
	if raw != "auto" {
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n > 0 {
			return n
		}
		return 1
	}
	switch {
	case availableMemGB >= 16:
		return 4
	case availableMemGB >= 8:
		return 2
	default:
		return 1
	}
}

// Load reads configuration from configPath (if non-empty), a set of
// conventional search locations otherwise, and SENTRY_-prefixed env vars,
// in that order of increasing precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("sentrygate")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/sentrygate")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("SENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.Backends) == 0 {
		return nil, fmt.Errorf("config: at least one backend must be configured")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.host", "0.0.0.0")
	v.SetDefault("listen.port", 8787)
	v.SetDefault("listen.mode", "release")

	v.SetDefault("language_detection.enabled", true)

	v.SetDefault("input_scan.enabled", true)
	v.SetDefault("input_scan.policy", "fail_fast")
	v.SetDefault("input_scan.block_on_scanner_error", true)

	v.SetDefault("output_scan.enabled", true)
	v.SetDefault("output_scan.policy", "run_all")
	v.SetDefault("output_scan.block_on_scanner_error", false)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_sec", 300)
	v.SetDefault("cache.max_entries", 10000)

	v.SetDefault("concurrency.default_parallel_limit", "auto")
	v.SetDefault("concurrency.default_queue_limit", 64)

	v.SetDefault("stream.scan_bytes", 256)
	v.SetDefault("stream.scan_ms", 750)
	v.SetDefault("stream.max_buffer_bytes", 8192)

	v.SetDefault("request_timeout_sec", 300)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// RequestTimeout returns the configured request deadline as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	if c.RequestTimeoutSec <= 0 {
		return 300 * time.Second
	}
	return time.Duration(c.RequestTimeoutSec) * time.Second
}
