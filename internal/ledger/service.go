// Package ledger is the sole writer of account point balances. Every
// mutation flows through Apply, which enforces the non-negative-balance
// invariant and appends a ledger entry plus an audit record inside the
// caller's unit of work.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pointline/pointline/internal/domain"
)

// Mutation describes one signed delta against one account, together with the
// provenance fields recorded on the resulting ledger entry.
type Mutation struct {
	Actor       string
	AccountID   int64
	Delta       int64
	Action      domain.LedgerAction
	Reason      string
	RelatedKind string
	RelatedID   int64
	Metadata    map[string]any
}

// Service applies balance mutations. Settlement calls Apply inside its own
// transaction; registration grants and admin adjustments use the standalone
// entry points, which open a transaction of their own and route through the
// same Apply path.
type Service struct {
	uow    domain.UnitOfWork
	logger *slog.Logger
}

// New creates a ledger Service on top of the given unit-of-work provider.
func New(uow domain.UnitOfWork, logger *slog.Logger) *Service {
	return &Service{
		uow:    uow,
		logger: logger.With(slog.String("component", "ledger")),
	}
}

// Apply locks the target account, computes the new balance, and persists the
// balance together with an append-only ledger entry and an audit record. A
// resulting negative balance fails with domain.ErrInsufficientBalance and
// writes nothing; the caller must abort its transaction. In the settlement
// flow every delta is a non-negative credit, so hitting that error there
// indicates an accounting bug upstream.
func (s *Service) Apply(ctx context.Context, tx domain.LedgerTx, m Mutation) (domain.LedgerEntry, error) {
	acct, err := tx.AccountForUpdate(ctx, m.AccountID)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: account %d: %w", m.AccountID, err)
	}

	before := acct.PointsBalance
	after := before + m.Delta
	if after < 0 {
		return domain.LedgerEntry{}, fmt.Errorf(
			"ledger: account %d balance %d + delta %d: %w",
			m.AccountID, before, m.Delta, domain.ErrInsufficientBalance,
		)
	}

	if err := tx.UpdateAccountBalance(ctx, m.AccountID, after); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: update account %d: %w", m.AccountID, err)
	}

	entry := domain.LedgerEntry{
		Actor:        m.Actor,
		AccountID:    m.AccountID,
		Action:       m.Action,
		Reason:       m.Reason,
		PointsDelta:  m.Delta,
		PointsBefore: before,
		PointsAfter:  after,
		Metadata:     m.Metadata,
	}
	if m.RelatedKind != "" {
		kind := m.RelatedKind
		id := m.RelatedID
		entry.RelatedKind = &kind
		entry.RelatedID = &id
	}

	if err := tx.AppendLedger(ctx, entry); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: append entry: %w", err)
	}

	// An unauditable mutation must not commit; the audit error aborts the
	// enclosing transaction.
	if err := tx.AppendAudit(ctx, "points_mutated", map[string]any{
		"actor":      m.Actor,
		"account_id": m.AccountID,
		"action":     string(m.Action),
		"delta":      m.Delta,
		"before":     before,
		"after":      after,
		"reason":     m.Reason,
	}); err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: audit entry: %w", err)
	}

	s.logger.DebugContext(ctx, "balance mutated",
		slog.Int64("account_id", m.AccountID),
		slog.String("action", string(m.Action)),
		slog.Int64("delta", m.Delta),
		slog.Int64("after", after),
	)

	return entry, nil
}

// Grant credits a registration or promotional grant to an account in its own
// transaction.
func (s *Service) Grant(ctx context.Context, accountID, points int64, actor, reason string) (domain.LedgerEntry, error) {
	if points <= 0 {
		return domain.LedgerEntry{}, fmt.Errorf("ledger: grant of %d points: %w", points, domain.ErrValidation)
	}
	return s.applyStandalone(ctx, Mutation{
		Actor:     actor,
		AccountID: accountID,
		Delta:     points,
		Action:    domain.ActionSignupGrant,
		Reason:    reason,
	})
}

// Adjust applies a manual admin adjustment (positive or negative) in its own
// transaction. Negative adjustments are still subject to the non-negative
// balance invariant.
func (s *Service) Adjust(ctx context.Context, accountID, delta int64, actor, reason string) (domain.LedgerEntry, error) {
	return s.applyStandalone(ctx, Mutation{
		Actor:     actor,
		AccountID: accountID,
		Delta:     delta,
		Action:    domain.ActionAdminAdjust,
		Reason:    reason,
	})
}

func (s *Service) applyStandalone(ctx context.Context, m Mutation) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx domain.SettlementTx) error {
		var applyErr error
		entry, applyErr = s.Apply(ctx, tx, m)
		return applyErr
	})
	if err != nil {
		return domain.LedgerEntry{}, err
	}
	return entry, nil
}
