package settle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/pointline/pointline/internal/domain"
	"github.com/pointline/pointline/internal/ledger"
	"github.com/pointline/pointline/internal/notify"
)

// systemActor is recorded on ledger entries when the settlement job carries
// no resolver identity.
const systemActor = "system:settlement"

// FeeAccounts resolves the platform account that collects settlement fees.
type FeeAccounts interface {
	FeeAccount(ctx context.Context) (int64, error)
}

// Coordinator settles one job at a time: it validates the referenced market
// and winning option, partitions open positions into winners and losers,
// credits net payouts and the collected fee through the ledger service, and
// finalizes market and job state — all inside one transaction. Settle is
// idempotent per job id; duplicate delivery from either intake path is a
// safe no-op.
type Coordinator struct {
	store     domain.SettlementStore
	ledger    *ledger.Service
	fees      FeePolicy
	treasury  FeeAccounts
	staleness time.Duration
	notifier  *notify.Notifier
	logger    *slog.Logger
}

// NewCoordinator creates a Coordinator. staleness bounds how long an active
// processing claim is honoured before another worker may reclaim the job.
func NewCoordinator(
	store domain.SettlementStore,
	ledgerSvc *ledger.Service,
	fees FeePolicy,
	treasury FeeAccounts,
	staleness time.Duration,
	notifier *notify.Notifier,
	logger *slog.Logger,
) *Coordinator {
	return &Coordinator{
		store:     store,
		ledger:    ledgerSvc,
		fees:      fees,
		treasury:  treasury,
		staleness: staleness,
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "settle")),
	}
}

// Settle processes one settlement job. All effects commit together or not at
// all. Returns nil when the job completed now, had already completed, or is
// actively claimed by another worker (cooperative yield). A missing job row
// returns domain.ErrNotFound without recording anything. Every other error
// rolls the transaction back and is recorded as the job's failure, with the
// attempts increment re-applied by a dedicated statement.
func (c *Coordinator) Settle(ctx context.Context, jobID int64) error {
	err := c.store.WithinTx(ctx, func(ctx context.Context, tx domain.SettlementTx) error {
		return c.settle(ctx, tx, jobID, time.Now().UTC())
	})

	switch {
	case err == nil:
		return nil

	case errors.Is(err, domain.ErrJobActive):
		// Another worker holds a fresh claim; yield without marking failure.
		c.logger.DebugContext(ctx, "job actively claimed elsewhere, yielding",
			slog.Int64("job_id", jobID),
		)
		return nil

	case errors.Is(err, domain.ErrNotFound):
		// No job row to record a failure against.
		c.logger.WarnContext(ctx, "settlement job not found",
			slog.Int64("job_id", jobID),
		)
		return err
	}

	c.logger.ErrorContext(ctx, "settlement failed",
		slog.Int64("job_id", jobID),
		slog.String("error", err.Error()),
	)

	if recErr := c.store.RecordFailure(ctx, jobID, err.Error()); recErr != nil {
		c.logger.ErrorContext(ctx, "could not record job failure",
			slog.Int64("job_id", jobID),
			slog.String("error", recErr.Error()),
		)
	}

	if errors.Is(err, domain.ErrInsufficientBalance) {
		// A negative balance in a credit-only flow means the books are
		// wrong; page the operators, not just the retry loop.
		_ = c.notifier.Notify(ctx, "insufficient_balance", "Accounting invariant violated",
			fmt.Sprintf("settlement job %d aborted: %v", jobID, err))
	} else {
		_ = c.notifier.Notify(ctx, "job_failed", "Settlement job failed",
			fmt.Sprintf("job %d: %v", jobID, err))
	}

	return err
}

func (c *Coordinator) settle(ctx context.Context, tx domain.SettlementTx, jobID int64, now time.Time) error {
	// Lock order: job row first, then positions, then accounts.
	job, err := tx.JobForUpdate(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("settlement job %d: %w", jobID, domain.ErrNotFound)
		}
		return err
	}

	switch {
	case job.Status == domain.JobStatusCompleted:
		// Terminal and absorbing.
		return nil
	case job.Status == domain.JobStatusProcessing &&
		job.StartedAt != nil && now.Sub(*job.StartedAt) < c.staleness:
		return domain.ErrJobActive
	}

	if err := tx.MarkJobProcessing(ctx, jobID, now); err != nil {
		return err
	}

	market, err := tx.GetMarket(ctx, job.MarketID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("market %d: %w", job.MarketID, domain.ErrValidation)
		}
		return err
	}

	if market.Status == domain.MarketStatusResolved {
		// A prior attempt resolved the market but did not finalize the job
		// row, or a duplicate resolution request arrived. Converge.
		c.logger.InfoContext(ctx, "market already resolved, completing job",
			slog.Int64("job_id", jobID),
			slog.Int64("market_id", market.ID),
		)
		return tx.MarkJobCompleted(ctx, jobID, now)
	}

	winning, err := tx.GetOption(ctx, job.ResultOptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("option %d: %w", job.ResultOptionID, domain.ErrValidation)
		}
		return err
	}
	if winning.MarketID != market.ID {
		return fmt.Errorf("option %d does not belong to market %d: %w",
			winning.ID, market.ID, domain.ErrValidation)
	}

	positions, err := tx.OpenPositionsForUpdate(ctx, market.ID)
	if err != nil {
		return err
	}

	payouts := make(map[int64]int64)
	var totalFees int64

	for _, pos := range positions {
		var net int64
		if pos.OptionID == winning.ID {
			gross := grossPayout(pos.StakePoints, pos.OddsAtPurchase)
			fee := c.fees.Fee(gross)
			net = gross - fee
			if net < 0 {
				net = 0
			}
			totalFees += fee
		}
		if err := tx.SettlePosition(ctx, pos.ID, net, now); err != nil {
			return err
		}
		if net > 0 {
			payouts[pos.AccountID] += net
		}
	}

	actor := job.ResolvedBy
	if actor == "" {
		actor = systemActor
	}

	// Accounts are credited in ascending id order as part of the global
	// lock-acquisition order.
	accountIDs := make([]int64, 0, len(payouts))
	for id := range payouts {
		accountIDs = append(accountIDs, id)
	}
	sort.Slice(accountIDs, func(i, j int) bool { return accountIDs[i] < accountIDs[j] })

	for _, accountID := range accountIDs {
		_, err := c.ledger.Apply(ctx, tx, ledger.Mutation{
			Actor:       actor,
			AccountID:   accountID,
			Delta:       payouts[accountID],
			Action:      domain.ActionBetPayout,
			Reason:      fmt.Sprintf("payout for market %d", market.ID),
			RelatedKind: "market",
			RelatedID:   market.ID,
			Metadata: map[string]any{
				"job_id":    job.ID,
				"option_id": winning.ID,
			},
		})
		if err != nil {
			return err
		}
	}

	if totalFees > 0 {
		feeAccountID, err := c.treasury.FeeAccount(ctx)
		if err != nil {
			return fmt.Errorf("resolve fee account: %w", err)
		}
		_, err = c.ledger.Apply(ctx, tx, ledger.Mutation{
			Actor:       actor,
			AccountID:   feeAccountID,
			Delta:       totalFees,
			Action:      domain.ActionFeeCredit,
			Reason:      fmt.Sprintf("fees for market %d", market.ID),
			RelatedKind: "market",
			RelatedID:   market.ID,
			Metadata:    map[string]any{"job_id": job.ID},
		})
		if err != nil {
			return err
		}
	}

	if err := tx.ResolveMarket(ctx, market.ID, winning.ID, now); err != nil {
		return err
	}

	payoutDetail := make(map[string]any, len(payouts))
	for accountID, net := range payouts {
		payoutDetail[fmt.Sprintf("%d", accountID)] = net
	}
	if err := tx.AppendAudit(ctx, "settlement_completed", map[string]any{
		"job_id":     job.ID,
		"market_id":  market.ID,
		"option_id":  winning.ID,
		"positions":  len(positions),
		"total_fees": totalFees,
		"payouts":    payoutDetail,
	}); err != nil {
		return err
	}

	if err := tx.MarkJobCompleted(ctx, jobID, now); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "settlement completed",
		slog.Int64("job_id", job.ID),
		slog.Int64("market_id", market.ID),
		slog.Int64("option_id", winning.ID),
		slog.Int("positions", len(positions)),
		slog.Int("winners", len(payouts)),
		slog.Int64("total_fees", totalFees),
	)

	return nil
}
