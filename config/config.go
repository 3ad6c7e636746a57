package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yml"

type Config struct {
	App       AppConfig               `yaml:"app"`
	Fetch     FetchConfig             `yaml:"fetch"`
	Arbitrage ArbitrageConfig         `yaml:"arbitrage"`
	Sources   map[string]SourceConfig `yaml:"sources"`
	Alert     AlertConfig             `yaml:"alert"`
	Dashboard DashboardConfig         `yaml:"dashboard"`
	Redis     RedisConfig             `yaml:"redis"`
	Storage   StorageConfig           `yaml:"storage"`
	Metrics   MetricsConfig           `yaml:"metrics"`
	Logging   LoggingConfig           `yaml:"logging"`
}

type AppConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type FetchConfig struct {
	// Interval is the target period between cycle starts.
	Interval       time.Duration `yaml:"interval"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type ArbitrageConfig struct {
	// MinSpread in percentage points per funding interval.
	MinSpread float64 `yaml:"min_spread"`
}

// SourceConfig overrides one exchange adapter. Zero values keep the
// adapter's built-in endpoints.
type SourceConfig struct {
	Enabled     *bool    `yaml:"enabled"`
	URL         string   `yaml:"url"`
	FallbackURL string   `yaml:"fallback_url"`
	Hosts       []string `yaml:"hosts"`
}

// IsEnabled reports whether the source takes part in cycles; sources are on
// unless explicitly disabled.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type AlertConfig struct {
	TelegramToken string        `yaml:"telegram_token"`
	TelegramURL   string        `yaml:"telegram_url"`
	ChatIDs       []string      `yaml:"chat_ids"`
	Cooldown      time.Duration `yaml:"cooldown"`
	TopN          int           `yaml:"top_n"`
	DashboardURL  string        `yaml:"dashboard_url"`
	// MessagesPerSecond paces sends across chat ids.
	MessagesPerSecond float64 `yaml:"messages_per_second"`
}

type DashboardConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	LogHistory     int           `yaml:"log_history"`
	MetricsHistory int           `yaml:"metrics_history"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Key             string `yaml:"key"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type MetricsConfig struct {
	CloudWatch     bool          `yaml:"cloudwatch"`
	Region         string        `yaml:"region"`
	Namespace      string        `yaml:"namespace"`
	DashboardName  string        `yaml:"dashboard_name"`
	ReportInterval time.Duration `yaml:"report_interval"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		App: AppConfig{Name: "fundingflow", Version: "1.0"},
		Fetch: FetchConfig{
			Interval:       5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			RequestTimeout: 25 * time.Second,
		},
		Arbitrage: ArbitrageConfig{MinSpread: 0.025},
		Sources:   map[string]SourceConfig{},
		Alert: AlertConfig{
			TelegramURL:       "https://api.telegram.org",
			Cooldown:          time.Hour,
			TopN:              10,
			MessagesPerSecond: 1,
		},
		Dashboard: DashboardConfig{
			Enabled:        true,
			Address:        "0.0.0.0:5000",
			SampleInterval: 5 * time.Second,
			LogHistory:     200,
			MetricsHistory: 200,
		},
		Redis: RedisConfig{
			Addr:    "localhost:6379",
			Key:     "fundingflow:latest",
			Channel: "fundingflow:snapshots",
		},
		Storage: StorageConfig{S3: S3Config{Key: "latest.json"}},
		Metrics: MetricsConfig{
			Namespace:      "FundingFlow",
			DashboardName:  "FundingFlow",
			ReportInterval: time.Minute,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

// LoadConfig reads the YAML file at path on top of Default, applies
// environment overrides and validates the result. A missing file yields the
// defaults except in production-like environments.
func LoadConfig(path string) (*Config, error) {
	config := Default()

	path = ResolvePath(path)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, fs.ErrNotExist) && !CurrentEnvironment().RequiresConfigFile():
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if config.Sources == nil {
		config.Sources = map[string]SourceConfig{}
	}

	if err := applyEnv(&config); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(cfg *Config) error {
	if v := strings.TrimSpace(os.Getenv("FETCH_INTERVAL")); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return fmt.Errorf("FETCH_INTERVAL: %w", err)
		}
		cfg.Fetch.Interval = d
	}
	if v := strings.TrimSpace(os.Getenv("MIN_SPREAD")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MIN_SPREAD: %w", err)
		}
		cfg.Arbitrage.MinSpread = f
	}
	if v := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN")); v != "" {
		cfg.Alert.TelegramToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_IDS"); strings.TrimSpace(v) != "" {
		cfg.Alert.ChatIDs = splitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("DASHBOARD_ADDR")); v != "" {
		cfg.Dashboard.Address = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("S3_BUCKET")); v != "" {
		cfg.Storage.S3.Bucket = v
		cfg.Storage.S3.Enabled = true
	}
	if v := strings.TrimSpace(os.Getenv("AWS_REGION")); v != "" {
		cfg.Storage.S3.Region = v
		cfg.Metrics.Region = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
		cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
	}
	if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
		cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
	}
	return nil
}

// parseSeconds accepts plain seconds ("5", "2.5") or a Go duration ("1m").
func parseSeconds(v string) (time.Duration, error) {
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	return time.ParseDuration(v)
}

func splitList(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func validateConfig(cfg *Config) error {
	if cfg.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}

	if cfg.Fetch.Interval < 0 {
		return fmt.Errorf("fetch.interval must not be negative")
	}
	if cfg.Fetch.ConnectTimeout <= 0 {
		return fmt.Errorf("fetch.connect_timeout must be greater than 0")
	}
	if cfg.Fetch.RequestTimeout <= 0 {
		return fmt.Errorf("fetch.request_timeout must be greater than 0")
	}

	if cfg.Arbitrage.MinSpread < 0 {
		return fmt.Errorf("arbitrage.min_spread must not be negative")
	}

	if cfg.Alert.Cooldown < 0 {
		return fmt.Errorf("alert.cooldown must not be negative")
	}
	if cfg.Alert.TopN <= 0 {
		return fmt.Errorf("alert.top_n must be greater than 0")
	}
	if cfg.Alert.MessagesPerSecond <= 0 {
		return fmt.Errorf("alert.messages_per_second must be greater than 0")
	}

	if cfg.Dashboard.Enabled && strings.TrimSpace(cfg.Dashboard.Address) == "" {
		return fmt.Errorf("dashboard.address is required when the dashboard is enabled")
	}

	if cfg.Redis.Enabled {
		if cfg.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required when redis is enabled")
		}
		if cfg.Redis.Key == "" && cfg.Redis.Channel == "" {
			return fmt.Errorf("redis.key or redis.channel is required when redis is enabled")
		}
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if cfg.Storage.S3.Key == "" {
			return fmt.Errorf("storage.s3.key is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	if cfg.Metrics.CloudWatch && cfg.Metrics.Region == "" {
		return fmt.Errorf("metrics.region is required when cloudwatch is enabled")
	}

	for name := range cfg.Sources {
		if !knownSource(name) {
			return fmt.Errorf("sources.%s is not a known exchange", name)
		}
	}

	return nil
}

// SourceNames lists the configurable exchange keys in registry order.
var SourceNames = []string{
	"binance", "bybit", "gateio", "okx", "kucoin", "bitget", "mexc", "htx", "bingx",
	"kraken", "dydx", "bitmex", "phemex", "hyperliquid", "coinex", "bitunix", "btse", "coinbase",
}

func knownSource(name string) bool {
	for _, n := range SourceNames {
		if n == name {
			return true
		}
	}
	return false
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
