// Package config defines the top-level configuration for the arbitrage
// monitor and provides validation helpers.
package config

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by ARBMON_* environment variables.
type Config struct {
	Polymarket PolymarketConfig `toml:"polymarket"`
	Kalshi     KalshiConfig     `toml:"kalshi"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Embedding  EmbeddingConfig  `toml:"embedding"`
	Matching   MatchingConfig   `toml:"matching"`
	Detection  DetectionConfig  `toml:"detection"`
	Monitor    MonitorConfig    `toml:"monitor"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// PolymarketConfig holds Polymarket Gamma API parameters.
type PolymarketConfig struct {
	GammaHost      string `toml:"gamma_host"`
	PageSize       int    `toml:"page_size"`
	MaxPages       int    `toml:"max_pages"`
	RequestsPerSec int    `toml:"requests_per_sec"`
}

// KalshiConfig holds Kalshi exchange API parameters. The public market
// endpoints used here do not require credentials, but a key can be supplied
// to raise rate limits.
type KalshiConfig struct {
	BaseURL        string `toml:"base_url"`
	ApiKey         string `toml:"api_key"`
	PageSize       int    `toml:"page_size"`
	MaxPages       int    `toml:"max_pages"`
	RequestsPerSec int    `toml:"requests_per_sec"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for archival.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// EmbeddingConfig holds parameters for the sentence embedding service used
// by the semantic scorer. When Enabled is false, or the service is
// unreachable, matching runs in degraded mode with the semantic weight
// redistributed over the remaining scorers.
type EmbeddingConfig struct {
	Enabled   bool     `toml:"enabled"`
	Endpoint  string   `toml:"endpoint"`
	Model     string   `toml:"model"`
	BatchSize int      `toml:"batch_size"`
	Timeout   duration `toml:"timeout"`
	CacheTTL  duration `toml:"cache_ttl"`
}

// ManualPair declares two listings equivalent regardless of their computed
// similarity. Either side may also be excluded by listing it under
// [[matching.excluded_pairs]].
type ManualPair struct {
	PolyID   string `toml:"poly_id"`
	KalshiID string `toml:"kalshi_id"`
}

// MatchingConfig holds similarity engine parameters. The three weights must
// sum to 1.
type MatchingConfig struct {
	LexicalWeight  float64 `toml:"lexical_weight"`
	SemanticWeight float64 `toml:"semantic_weight"`
	KeywordWeight  float64 `toml:"keyword_weight"`
	// MatchThreshold is the overall score at or above which a pair is a match.
	MatchThreshold float64 `toml:"match_threshold"`
	// ConsideredFloor is the overall score at or above which a non-match is
	// persisted for review. This trims storage only; the engine scores and
	// returns every combination.
	ConsideredFloor float64 `toml:"considered_floor"`
	// ReasonThreshold is the per-scorer score at or above which that scorer
	// contributes a reason string to the record.
	ReasonThreshold float64      `toml:"reason_threshold"`
	MinTokenLength  int          `toml:"min_token_length"`
	ManualPairs     []ManualPair `toml:"manual_pairs"`
	ExcludedPairs   []ManualPair `toml:"excluded_pairs"`
}

// DetectionConfig holds opportunity detection parameters. Fee rates and the
// slippage buffer are fractions of notional (0.01 = 1%).
type DetectionConfig struct {
	FeeRates map[string]float64 `toml:"fee_rates"`
	// MinVolumes gates pairs on per-platform 24h volume; a pair with either
	// side below its platform's minimum is skipped.
	MinVolumes        map[string]float64 `toml:"min_volumes"`
	SlippageBuffer    float64            `toml:"slippage_buffer"`
	MinNetProfit      float64            `toml:"min_net_profit"`
	MinProfitPct      float64            `toml:"min_profit_pct"`
	MinConfidence     float64            `toml:"min_confidence"`
	MaxPositionSize   float64            `toml:"max_position_size"`
	VolumeCapFraction float64            `toml:"volume_cap_fraction"`
	// VolumeSaturation is the 24h volume at which the volume confidence
	// factor reaches 1.
	VolumeSaturation float64 `toml:"volume_saturation"`
	// QuoteMaxAge is the quote age at which the freshness factor decays to 0.
	QuoteMaxAge duration `toml:"quote_max_age"`
}

// MonitorConfig holds monitor loop parameters.
type MonitorConfig struct {
	Interval          duration `toml:"interval"`
	LockTTL           duration `toml:"lock_ttl"`
	AlertCooldown     duration `toml:"alert_cooldown"`
	MinProfitForAlert float64  `toml:"min_profit_for_alert"`
	RetentionDays     int      `toml:"retention_days"`
	ArchiveEnabled    bool     `toml:"archive_enabled"`
	ArchiveCron       string   `toml:"archive_cron"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			GammaHost:      "https://gamma-api.polymarket.com",
			PageSize:       100,
			MaxPages:       20,
			RequestsPerSec: 10,
		},
		Kalshi: KalshiConfig{
			BaseURL:        "https://api.elections.kalshi.com/trade-api/v2",
			PageSize:       100,
			MaxPages:       20,
			RequestsPerSec: 10,
		},
		Postgres: PostgresConfig{
			DSN:           "",
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "arbmon-data",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Embedding: EmbeddingConfig{
			Enabled:   true,
			Endpoint:  "http://localhost:8080",
			Model:     "all-MiniLM-L6-v2",
			BatchSize: 32,
			Timeout:   duration{10 * time.Second},
			CacheTTL:  duration{24 * time.Hour},
		},
		Matching: MatchingConfig{
			LexicalWeight:   0.4,
			SemanticWeight:  0.4,
			KeywordWeight:   0.2,
			MatchThreshold:  0.8,
			ConsideredFloor: 0.5,
			ReasonThreshold: 0.7,
			MinTokenLength:  3,
		},
		Detection: DetectionConfig{
			FeeRates: map[string]float64{
				"polymarket": 0.01,
				"kalshi":     0.02,
			},
			MinVolumes: map[string]float64{
				"polymarket": 100,
				"kalshi":     50,
			},
			SlippageBuffer:    0.02,
			MinNetProfit:      0.01,
			MinProfitPct:      0.05,
			MinConfidence:     0.5,
			MaxPositionSize:   100,
			VolumeCapFraction: 0.1,
			VolumeSaturation:  10_000,
			QuoteMaxAge:       duration{5 * time.Minute},
		},
		Monitor: MonitorConfig{
			Interval:          duration{60 * time.Second},
			LockTTL:           duration{2 * time.Minute},
			AlertCooldown:     duration{15 * time.Minute},
			MinProfitForAlert: 0.10,
			RetentionDays:     90,
			ArchiveEnabled:    false,
			ArchiveCron:       "0 3 * * *",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"opportunity", "cycle_error"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"monitor": true,
	"once":    true,
	"serve":   true,
	"full":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// weightEpsilon is the tolerance when checking that matching weights sum to 1.
const weightEpsilon = 1e-6

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: monitor, once, serve, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Platform endpoints
	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.PageSize < 1 {
		errs = append(errs, "polymarket: page_size must be >= 1")
	}
	if c.Kalshi.BaseURL == "" {
		errs = append(errs, "kalshi: base_url must not be empty")
	}
	if c.Kalshi.PageSize < 1 {
		errs = append(errs, "kalshi: page_size must be >= 1")
	}

	// Postgres
	if strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.PoolMaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}
	if c.Postgres.PoolMinConns < 0 {
		errs = append(errs, "postgres: pool_min_conns must be >= 0")
	}
	if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3 settings are only required when archival is on.
	if c.Monitor.ArchiveEnabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when monitor.archive_enabled is set")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when monitor.archive_enabled is set")
		}
	}

	// Embedding
	if c.Embedding.Enabled {
		if c.Embedding.Endpoint == "" {
			errs = append(errs, "embedding: endpoint must not be empty when enabled")
		}
		if c.Embedding.BatchSize < 1 {
			errs = append(errs, "embedding: batch_size must be >= 1")
		}
		if c.Embedding.Timeout.Duration <= 0 {
			errs = append(errs, "embedding: timeout must be > 0")
		}
	}

	// Matching
	m := c.Matching
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"lexical_weight", m.LexicalWeight},
		{"semantic_weight", m.SemanticWeight},
		{"keyword_weight", m.KeywordWeight},
	} {
		if w.value < 0 || w.value > 1 {
			errs = append(errs, fmt.Sprintf("matching: %s must be in [0, 1], got %g", w.name, w.value))
		}
	}
	if sum := m.LexicalWeight + m.SemanticWeight + m.KeywordWeight; math.Abs(sum-1.0) > weightEpsilon {
		errs = append(errs, fmt.Sprintf("matching: weights must sum to 1, got %g", sum))
	}
	if m.MatchThreshold < 0 || m.MatchThreshold > 1 {
		errs = append(errs, fmt.Sprintf("matching: match_threshold must be in [0, 1], got %g", m.MatchThreshold))
	}
	if m.ConsideredFloor < 0 || m.ConsideredFloor > m.MatchThreshold {
		errs = append(errs, fmt.Sprintf("matching: considered_floor must be in [0, match_threshold], got %g", m.ConsideredFloor))
	}
	if m.MinTokenLength < 1 {
		errs = append(errs, "matching: min_token_length must be >= 1")
	}
	for i, p := range m.ManualPairs {
		if p.PolyID == "" || p.KalshiID == "" {
			errs = append(errs, fmt.Sprintf("matching: manual_pairs[%d] must set both poly_id and kalshi_id", i))
		}
	}

	// Detection
	d := c.Detection
	for venue, rate := range d.FeeRates {
		if rate < 0 || rate >= 1 {
			errs = append(errs, fmt.Sprintf("detection: fee_rates[%s] must be in [0, 1), got %g", venue, rate))
		}
	}
	for venue, vol := range d.MinVolumes {
		if vol < 0 {
			errs = append(errs, fmt.Sprintf("detection: min_volumes[%s] must be >= 0, got %g", venue, vol))
		}
	}
	if d.SlippageBuffer < 0 {
		errs = append(errs, fmt.Sprintf("detection: slippage_buffer must be >= 0, got %g", d.SlippageBuffer))
	}
	if d.MinNetProfit < 0 {
		errs = append(errs, fmt.Sprintf("detection: min_net_profit must be >= 0, got %g", d.MinNetProfit))
	}
	if d.MinProfitPct < 0 {
		errs = append(errs, fmt.Sprintf("detection: min_profit_pct must be >= 0, got %g", d.MinProfitPct))
	}
	if d.MinConfidence < 0 || d.MinConfidence > 1 {
		errs = append(errs, fmt.Sprintf("detection: min_confidence must be in [0, 1], got %g", d.MinConfidence))
	}
	if d.MaxPositionSize <= 0 {
		errs = append(errs, "detection: max_position_size must be > 0")
	}
	if d.VolumeCapFraction <= 0 || d.VolumeCapFraction > 1 {
		errs = append(errs, fmt.Sprintf("detection: volume_cap_fraction must be in (0, 1], got %g", d.VolumeCapFraction))
	}
	if d.VolumeSaturation <= 0 {
		errs = append(errs, "detection: volume_saturation must be > 0")
	}
	if d.QuoteMaxAge.Duration <= 0 {
		errs = append(errs, "detection: quote_max_age must be > 0")
	}

	// Monitor
	if c.Monitor.Interval.Duration <= 0 {
		errs = append(errs, "monitor: interval must be > 0")
	}
	if c.Monitor.LockTTL.Duration <= 0 {
		errs = append(errs, "monitor: lock_ttl must be > 0")
	}
	if c.Monitor.MinProfitForAlert < 0 {
		errs = append(errs, "monitor: min_profit_for_alert must be >= 0")
	}
	if c.Monitor.RetentionDays < 1 {
		errs = append(errs, "monitor: retention_days must be >= 1")
	}
	if c.Monitor.ArchiveEnabled && strings.TrimSpace(c.Monitor.ArchiveCron) == "" {
		errs = append(errs, "monitor: archive_cron must be set when archiving is enabled")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
