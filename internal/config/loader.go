package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies ARBMON_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known ARBMON_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Polymarket ──
	setStr(&cfg.Polymarket.GammaHost, "ARBMON_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.PageSize, "ARBMON_POLYMARKET_PAGE_SIZE")
	setInt(&cfg.Polymarket.MaxPages, "ARBMON_POLYMARKET_MAX_PAGES")

	// ── Kalshi ──
	setStr(&cfg.Kalshi.BaseURL, "ARBMON_KALSHI_BASE_URL")
	setStr(&cfg.Kalshi.ApiKey, "ARBMON_KALSHI_API_KEY")
	setInt(&cfg.Kalshi.PageSize, "ARBMON_KALSHI_PAGE_SIZE")
	setInt(&cfg.Kalshi.MaxPages, "ARBMON_KALSHI_MAX_PAGES")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "ARBMON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "ARBMON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "ARBMON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "ARBMON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "ARBMON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "ARBMON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "ARBMON_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "ARBMON_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "ARBMON_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "ARBMON_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "ARBMON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "ARBMON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "ARBMON_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "ARBMON_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "ARBMON_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "ARBMON_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "ARBMON_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "ARBMON_S3_REGION")
	setStr(&cfg.S3.Bucket, "ARBMON_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "ARBMON_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "ARBMON_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "ARBMON_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "ARBMON_S3_FORCE_PATH_STYLE")

	// ── Embedding ──
	setBool(&cfg.Embedding.Enabled, "ARBMON_EMBEDDING_ENABLED")
	setStr(&cfg.Embedding.Endpoint, "ARBMON_EMBEDDING_ENDPOINT")
	setStr(&cfg.Embedding.Model, "ARBMON_EMBEDDING_MODEL")
	setInt(&cfg.Embedding.BatchSize, "ARBMON_EMBEDDING_BATCH_SIZE")
	setDuration(&cfg.Embedding.Timeout, "ARBMON_EMBEDDING_TIMEOUT")
	setDuration(&cfg.Embedding.CacheTTL, "ARBMON_EMBEDDING_CACHE_TTL")

	// ── Matching ──
	setFloat64(&cfg.Matching.LexicalWeight, "ARBMON_MATCHING_LEXICAL_WEIGHT")
	setFloat64(&cfg.Matching.SemanticWeight, "ARBMON_MATCHING_SEMANTIC_WEIGHT")
	setFloat64(&cfg.Matching.KeywordWeight, "ARBMON_MATCHING_KEYWORD_WEIGHT")
	setFloat64(&cfg.Matching.MatchThreshold, "ARBMON_MATCHING_MATCH_THRESHOLD")
	setFloat64(&cfg.Matching.ConsideredFloor, "ARBMON_MATCHING_CONSIDERED_FLOOR")
	setFloat64(&cfg.Matching.ReasonThreshold, "ARBMON_MATCHING_REASON_THRESHOLD")
	setInt(&cfg.Matching.MinTokenLength, "ARBMON_MATCHING_MIN_TOKEN_LENGTH")

	// ── Detection ──
	setFloat64(&cfg.Detection.SlippageBuffer, "ARBMON_DETECTION_SLIPPAGE_BUFFER")
	setFloat64(&cfg.Detection.MinNetProfit, "ARBMON_DETECTION_MIN_NET_PROFIT")
	setFloat64(&cfg.Detection.MinProfitPct, "ARBMON_DETECTION_MIN_PROFIT_PCT")
	setFloat64(&cfg.Detection.MinConfidence, "ARBMON_DETECTION_MIN_CONFIDENCE")
	setFloat64(&cfg.Detection.MaxPositionSize, "ARBMON_DETECTION_MAX_POSITION_SIZE")
	setFloat64(&cfg.Detection.VolumeCapFraction, "ARBMON_DETECTION_VOLUME_CAP_FRACTION")
	setFloat64(&cfg.Detection.VolumeSaturation, "ARBMON_DETECTION_VOLUME_SATURATION")
	setDuration(&cfg.Detection.QuoteMaxAge, "ARBMON_DETECTION_QUOTE_MAX_AGE")

	// ── Monitor ──
	setDuration(&cfg.Monitor.Interval, "ARBMON_MONITOR_INTERVAL")
	setDuration(&cfg.Monitor.LockTTL, "ARBMON_MONITOR_LOCK_TTL")
	setDuration(&cfg.Monitor.AlertCooldown, "ARBMON_MONITOR_ALERT_COOLDOWN")
	setFloat64(&cfg.Monitor.MinProfitForAlert, "ARBMON_MONITOR_MIN_PROFIT_FOR_ALERT")
	setInt(&cfg.Monitor.RetentionDays, "ARBMON_MONITOR_RETENTION_DAYS")
	setBool(&cfg.Monitor.ArchiveEnabled, "ARBMON_MONITOR_ARCHIVE_ENABLED")
	setStr(&cfg.Monitor.ArchiveCron, "ARBMON_MONITOR_ARCHIVE_CRON")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "ARBMON_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "ARBMON_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "ARBMON_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "ARBMON_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "ARBMON_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "ARBMON_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "ARBMON_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "ARBMON_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "ARBMON_MODE")
	setStr(&cfg.LogLevel, "ARBMON_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
