// Package config defines the top-level configuration for the pointline
// settlement worker and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POINTLINE_* environment
// variables.
type Config struct {
	Database   DatabaseConfig   `toml:"database"`
	Redis      RedisConfig      `toml:"redis"`
	Settlement SettlementConfig `toml:"settlement"`
	Archive    ArchiveConfig    `toml:"archive"`
	Notify     NotifyConfig     `toml:"notify"`
	Mode       string           `toml:"mode"`
	LogLevel   string           `toml:"log_level"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
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

// RedisConfig holds Redis connection parameters. Redis carries the push-path
// job queue and the best-effort claim locks.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	QueueKey   string `toml:"queue_key"`
}

// SettlementConfig holds the settlement engine parameters.
type SettlementConfig struct {
	// FeeRate is the fraction of each winning payout retained by the
	// platform, e.g. 0.02 for 2%.
	FeeRate float64 `toml:"fee_rate"`
	// StalenessThreshold is how long a processing claim is honoured before
	// another worker may treat it as abandoned and reclaim the job.
	StalenessThreshold duration `toml:"staleness_threshold"`
	PollInterval       duration `toml:"poll_interval"`
	PollBatchSize      int      `toml:"poll_batch_size"`
	// PushBackoff is the wait between retries after a queue consumption
	// error on the push path.
	PushBackoff duration `toml:"push_backoff"`
	// ClaimTTL bounds the best-effort Redis claim lock taken before a
	// push-path dispatch.
	ClaimTTL duration `toml:"claim_ttl"`
	// FeeAccountTTL is how long the resolved platform fee account id may be
	// cached before it is re-read from the store.
	FeeAccountTTL duration `toml:"fee_account_ttl"`
}

// ArchiveConfig holds cold-storage archival parameters.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	Interval      duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
	S3            S3Config `toml:"s3"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "pointline",
			User:          "pointline",
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
			QueueKey:   "settlement:jobs",
		},
		Settlement: SettlementConfig{
			FeeRate:            0.02,
			StalenessThreshold: duration{15 * time.Minute},
			PollInterval:       duration{30 * time.Second},
			PollBatchSize:      10,
			PushBackoff:        duration{5 * time.Second},
			ClaimTTL:           duration{30 * time.Second},
			FeeAccountTTL:      duration{5 * time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Interval:      duration{24 * time.Hour},
			RetentionDays: 90,
			S3: S3Config{
				Endpoint:       "http://localhost:9000",
				Region:         "us-east-1",
				Bucket:         "pointline-archive",
				UseSSL:         false,
				ForcePathStyle: true,
			},
		},
		Notify: NotifyConfig{
			Events: []string{"job_failed", "insufficient_balance", "archive_completed"},
		},
		Mode:     "worker",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"worker":  true,
	"archive": true,
	"full":    true,
	"seed":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: worker, archive, full, seed)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 {
		errs = append(errs, "database: pool_min_conns must be >= 0")
	}
	if c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must not exceed pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.QueueKey == "" {
		errs = append(errs, "redis: queue_key must not be empty")
	}

	// Settlement
	if c.Settlement.FeeRate < 0 || c.Settlement.FeeRate >= 1 {
		errs = append(errs, fmt.Sprintf("settlement: fee_rate must be in [0, 1), got %g", c.Settlement.FeeRate))
	}
	if c.Settlement.StalenessThreshold.Duration <= 0 {
		errs = append(errs, "settlement: staleness_threshold must be positive")
	}
	if c.Settlement.PollInterval.Duration <= 0 {
		errs = append(errs, "settlement: poll_interval must be positive")
	}
	if c.Settlement.PollBatchSize < 1 {
		errs = append(errs, "settlement: poll_batch_size must be >= 1")
	}
	if c.Settlement.PushBackoff.Duration <= 0 {
		errs = append(errs, "settlement: push_backoff must be positive")
	}
	if c.Settlement.ClaimTTL.Duration <= 0 {
		errs = append(errs, "settlement: claim_ttl must be positive")
	}
	if c.Settlement.FeeAccountTTL.Duration <= 0 {
		errs = append(errs, "settlement: fee_account_ttl must be positive")
	}

	// Archive
	if c.Archive.Enabled {
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1 when enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive when enabled")
		}
		if c.Archive.S3.Endpoint == "" {
			errs = append(errs, "archive: s3.endpoint must not be empty when enabled")
		}
		if c.Archive.S3.Bucket == "" {
			errs = append(errs, "archive: s3.bucket must not be empty when enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
