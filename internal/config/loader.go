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
// built-in defaults, applies POINTLINE_* environment variable overrides, and
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

// applyEnvOverrides reads well-known POINTLINE_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "POINTLINE_DATABASE_DSN")
	setStr(&cfg.Database.Host, "POINTLINE_DATABASE_HOST")
	setInt(&cfg.Database.Port, "POINTLINE_DATABASE_PORT")
	setStr(&cfg.Database.Database, "POINTLINE_DATABASE_NAME")
	setStr(&cfg.Database.User, "POINTLINE_DATABASE_USER")
	setStr(&cfg.Database.Password, "POINTLINE_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "POINTLINE_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "POINTLINE_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "POINTLINE_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "POINTLINE_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POINTLINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POINTLINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POINTLINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POINTLINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POINTLINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POINTLINE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.QueueKey, "POINTLINE_REDIS_QUEUE_KEY")

	// ── Settlement ──
	setFloat64(&cfg.Settlement.FeeRate, "POINTLINE_SETTLEMENT_FEE_RATE")
	setDuration(&cfg.Settlement.StalenessThreshold, "POINTLINE_SETTLEMENT_STALENESS_THRESHOLD")
	setDuration(&cfg.Settlement.PollInterval, "POINTLINE_SETTLEMENT_POLL_INTERVAL")
	setInt(&cfg.Settlement.PollBatchSize, "POINTLINE_SETTLEMENT_POLL_BATCH_SIZE")
	setDuration(&cfg.Settlement.PushBackoff, "POINTLINE_SETTLEMENT_PUSH_BACKOFF")
	setDuration(&cfg.Settlement.ClaimTTL, "POINTLINE_SETTLEMENT_CLAIM_TTL")
	setDuration(&cfg.Settlement.FeeAccountTTL, "POINTLINE_SETTLEMENT_FEE_ACCOUNT_TTL")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POINTLINE_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "POINTLINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "POINTLINE_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.S3.Endpoint, "POINTLINE_ARCHIVE_S3_ENDPOINT")
	setStr(&cfg.Archive.S3.Region, "POINTLINE_ARCHIVE_S3_REGION")
	setStr(&cfg.Archive.S3.Bucket, "POINTLINE_ARCHIVE_S3_BUCKET")
	setStr(&cfg.Archive.S3.AccessKey, "POINTLINE_ARCHIVE_S3_ACCESS_KEY")
	setStr(&cfg.Archive.S3.SecretKey, "POINTLINE_ARCHIVE_S3_SECRET_KEY")
	setBool(&cfg.Archive.S3.UseSSL, "POINTLINE_ARCHIVE_S3_USE_SSL")
	setBool(&cfg.Archive.S3.ForcePathStyle, "POINTLINE_ARCHIVE_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POINTLINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POINTLINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POINTLINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POINTLINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POINTLINE_MODE")
	setStr(&cfg.LogLevel, "POINTLINE_LOG_LEVEL")
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
