package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/pointline/pointline/internal/blob/s3"
	"github.com/pointline/pointline/internal/intake"
	"github.com/pointline/pointline/internal/ledger"
	"github.com/pointline/pointline/internal/settle"
	"github.com/pointline/pointline/internal/treasury"
)

// WorkerMode runs the settlement engine: the push consumer on the Redis
// queue and the fallback poller, both dispatching into the idempotent
// coordinator.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")

	runner := a.buildIntake(deps)
	return runner.Run(ctx)
}

// ArchiveMode runs only the cold-storage archiver loop.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	archiver := a.buildArchiver(deps)
	err := archiver.RunLoop(ctx,
		a.cfg.Archive.Interval.Duration,
		time.Duration(a.cfg.Archive.RetentionDays)*24*time.Hour,
	)
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("archive mode: %w", err)
}

// FullMode runs the settlement engine and, when archival is enabled, the
// archiver loop alongside it.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	runner := a.buildIntake(deps)
	g.Go(func() error {
		return runner.Run(ctx)
	})

	if a.cfg.Archive.Enabled && deps.BlobWriter != nil {
		archiver := a.buildArchiver(deps)
		g.Go(func() error {
			err := archiver.RunLoop(ctx,
				a.cfg.Archive.Interval.Duration,
				time.Duration(a.cfg.Archive.RetentionDays)*24*time.Hour,
			)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver loop: %w", err)
		})
	}

	return g.Wait()
}

// SeedMode provisions a small demo dataset (accounts, grants, a market with
// staked positions, and a queued settlement job) and exits.
func (a *App) SeedMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting seed mode")

	s := newSeeder(
		deps.AccountStore,
		deps.MarketStore,
		deps.PositionStore,
		deps.JobStore,
		deps.SettlementStore,
		ledger.New(deps.SettlementStore, a.root),
		deps.JobQueue,
		a.root,
	)
	return s.Run(ctx)
}

// buildIntake assembles the full settlement path: ledger service, treasury
// provider, fee policy, coordinator, and both intake loops.
func (a *App) buildIntake(deps *Dependencies) *intake.Runner {
	ledgerSvc := ledger.New(deps.SettlementStore, a.root)
	feeAccounts := treasury.NewProvider(deps.SettlementStore, a.cfg.Settlement.FeeAccountTTL.Duration)

	coordinator := settle.NewCoordinator(
		deps.SettlementStore,
		ledgerSvc,
		settle.NewFeePolicy(a.cfg.Settlement.FeeRate),
		feeAccounts,
		a.cfg.Settlement.StalenessThreshold.Duration,
		deps.Notifier,
		a.root,
	)

	push := intake.NewPushConsumer(
		deps.JobQueue,
		deps.LockManager,
		coordinator,
		a.cfg.Settlement.PushBackoff.Duration,
		a.cfg.Settlement.ClaimTTL.Duration,
		a.root,
	)
	poll := intake.NewPoller(
		deps.SettlementStore,
		coordinator,
		a.cfg.Settlement.PollInterval.Duration,
		a.cfg.Settlement.PollBatchSize,
		a.root,
	)

	return intake.NewRunner(push, poll, a.root)
}

// buildArchiver assembles the cold-storage archiver over the pool-level
// stores.
func (a *App) buildArchiver(deps *Dependencies) *s3blob.Archiver {
	return s3blob.NewArchiver(
		deps.BlobWriter,
		deps.JobStore,
		deps.LedgerStore,
		deps.AuditStore,
		deps.AuditStore,
		deps.Notifier,
		a.root,
	)
}
