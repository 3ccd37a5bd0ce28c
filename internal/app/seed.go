package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pointline/pointline/internal/domain"
)

const (
	seedActor       = "seed"
	seedSignupGrant = 1000
)

// Narrow store surfaces the seeder runs against, so it tests without a
// database.

type accountCreator interface {
	Create(ctx context.Context, kind domain.AccountKind, systemTag *string) (int64, error)
}

type marketCreator interface {
	Create(ctx context.Context, question string) (int64, error)
	CreateOption(ctx context.Context, marketID int64, label string) (int64, error)
}

type positionCreator interface {
	Create(ctx context.Context, p domain.Position) (int64, error)
}

type jobCreator interface {
	Create(ctx context.Context, marketID, resultOptionID int64, resolvedBy string) (int64, error)
}

type systemAccountFinder interface {
	FindAccountBySystemTag(ctx context.Context, tag string) (domain.Account, error)
}

type ledgerWriter interface {
	Grant(ctx context.Context, accountID, points int64, actor, reason string) (domain.LedgerEntry, error)
	Adjust(ctx context.Context, accountID, delta int64, actor, reason string) (domain.LedgerEntry, error)
}

type jobEnqueuer interface {
	Enqueue(ctx context.Context, jobID int64) error
}

// seeder provisions a small working dataset for development and smoke
// testing: the platform fee account, user accounts with a registration
// grant, one open market with a yes/no option pair, staked positions, and a
// queued settlement job pushed onto the queue. Balances only ever move
// through the ledger service.
type seeder struct {
	accounts  accountCreator
	markets   marketCreator
	positions positionCreator
	jobs      jobCreator
	finder    systemAccountFinder
	ledger    ledgerWriter
	queue     jobEnqueuer
	logger    *slog.Logger
}

func newSeeder(
	accounts accountCreator,
	markets marketCreator,
	positions positionCreator,
	jobs jobCreator,
	finder systemAccountFinder,
	ledger ledgerWriter,
	queue jobEnqueuer,
	logger *slog.Logger,
) *seeder {
	return &seeder{
		accounts:  accounts,
		markets:   markets,
		positions: positions,
		jobs:      jobs,
		finder:    finder,
		ledger:    ledger,
		queue:     queue,
		logger:    logger.With(slog.String("component", "seed")),
	}
}

// Run creates the demo dataset and enqueues the resulting settlement job.
func (s *seeder) Run(ctx context.Context) error {
	feeAccountID, err := s.ensureFeeCollector(ctx)
	if err != nil {
		return err
	}

	var users []int64
	for i := 0; i < 2; i++ {
		id, err := s.accounts.Create(ctx, domain.AccountKindUser, nil)
		if err != nil {
			return fmt.Errorf("seed: create user account: %w", err)
		}
		if _, err := s.ledger.Grant(ctx, id, seedSignupGrant, seedActor, "registration grant"); err != nil {
			return fmt.Errorf("seed: grant account %d: %w", id, err)
		}
		users = append(users, id)
	}

	marketID, err := s.markets.Create(ctx, "will the home team win on saturday")
	if err != nil {
		return fmt.Errorf("seed: create market: %w", err)
	}
	yesID, err := s.markets.CreateOption(ctx, marketID, "yes")
	if err != nil {
		return fmt.Errorf("seed: create yes option: %w", err)
	}
	noID, err := s.markets.CreateOption(ctx, marketID, "no")
	if err != nil {
		return fmt.Errorf("seed: create no option: %w", err)
	}

	wagers := []struct {
		account int64
		option  int64
		stake   int64
		odds    float64
	}{
		{account: users[0], option: yesID, stake: 100, odds: 2.0},
		{account: users[1], option: noID, stake: 150, odds: 1.8},
	}
	for _, w := range wagers {
		if _, err := s.ledger.Adjust(ctx, w.account, -w.stake, seedActor, "wager stake"); err != nil {
			return fmt.Errorf("seed: stake account %d: %w", w.account, err)
		}
		if _, err := s.positions.Create(ctx, domain.Position{
			MarketID:       marketID,
			AccountID:      w.account,
			OptionID:       w.option,
			StakePoints:    w.stake,
			OddsAtPurchase: w.odds,
		}); err != nil {
			return fmt.Errorf("seed: create position for account %d: %w", w.account, err)
		}
	}

	jobID, err := s.jobs.Create(ctx, marketID, yesID, seedActor)
	if err != nil {
		return fmt.Errorf("seed: create settlement job: %w", err)
	}
	if err := s.queue.Enqueue(ctx, jobID); err != nil {
		return fmt.Errorf("seed: enqueue job %d: %w", jobID, err)
	}

	s.logger.InfoContext(ctx, "seed dataset created",
		slog.Int64("market_id", marketID),
		slog.Int64("job_id", jobID),
		slog.Int64("fee_account_id", feeAccountID),
		slog.Int("accounts", len(users)),
	)
	return nil
}

// ensureFeeCollector returns the platform fee account, creating it when the
// tag is not yet present.
func (s *seeder) ensureFeeCollector(ctx context.Context) (int64, error) {
	acct, err := s.finder.FindAccountBySystemTag(ctx, domain.SystemTagFeeCollector)
	if err == nil {
		return acct.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("seed: find fee collector: %w", err)
	}

	tag := domain.SystemTagFeeCollector
	id, err := s.accounts.Create(ctx, domain.AccountKindSystem, &tag)
	if err != nil {
		return 0, fmt.Errorf("seed: create fee collector: %w", err)
	}
	return id, nil
}
