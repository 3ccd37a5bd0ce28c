package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/pointline/pointline/internal/blob/s3"
	"github.com/pointline/pointline/internal/cache/redis"
	"github.com/pointline/pointline/internal/config"
	"github.com/pointline/pointline/internal/domain"
	"github.com/pointline/pointline/internal/notify"
	"github.com/pointline/pointline/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the application modes need.
// It is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Postgres stores.
	SettlementStore *postgres.SettlementStore
	AccountStore    *postgres.AccountStore
	JobStore        *postgres.JobStore
	MarketStore     *postgres.MarketStore
	PositionStore   *postgres.PositionStore
	LedgerStore     *postgres.LedgerStore
	AuditStore      *postgres.AuditStore

	// Redis.
	JobQueue    domain.JobQueue
	LockManager domain.LockManager

	// Cold storage. Nil unless the mode archives.
	BlobWriter *s3blob.Writer

	// Notifications.
	Notifier *notify.Notifier
}

// needsS3 reports whether the given mode requires object storage. Archive
// mode always does; full mode only when archival is enabled.
func needsS3(mode string, archiveEnabled bool) bool {
	switch strings.ToLower(mode) {
	case "archive":
		return true
	case "full":
		return archiveEnabled
	default:
		return false
	}
}

// Wire constructs the concrete dependency implementations from the given
// configuration. The returned cleanup function releases every resource in
// reverse acquisition order and must be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Database.DSN,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.PoolMaxConns,
		MinConns: cfg.Database.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Database.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.SettlementStore = postgres.NewSettlementStore(pool)
	deps.AccountStore = postgres.NewAccountStore(pool)
	deps.JobStore = postgres.NewJobStore(pool)
	deps.MarketStore = postgres.NewMarketStore(pool)
	deps.PositionStore = postgres.NewPositionStore(pool)
	deps.LedgerStore = postgres.NewLedgerStore(pool)
	deps.AuditStore = postgres.NewAuditStore(pool)

	// --- Redis ---
	redisClient, err := redis.New(ctx, redis.ClientConfig{
		Addr:       cfg.Redis.Addr,
		Password:   cfg.Redis.Password,
		DB:         cfg.Redis.DB,
		PoolSize:   cfg.Redis.PoolSize,
		MaxRetries: cfg.Redis.MaxRetries,
		TLSEnabled: cfg.Redis.TLSEnabled,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: redis: %w", err)
	}
	closers = append(closers, func() { _ = redisClient.Close() })

	deps.JobQueue = redis.NewJobQueue(redisClient, cfg.Redis.QueueKey)
	deps.LockManager = redis.NewLockManager(redisClient)

	// --- S3 cold storage ---
	if needsS3(cfg.Mode, cfg.Archive.Enabled) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.Archive.S3.Endpoint,
			Region:         cfg.Archive.S3.Region,
			Bucket:         cfg.Archive.S3.Bucket,
			AccessKey:      cfg.Archive.S3.AccessKey,
			SecretKey:      cfg.Archive.S3.SecretKey,
			UseSSL:         cfg.Archive.S3.UseSSL,
			ForcePathStyle: cfg.Archive.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
