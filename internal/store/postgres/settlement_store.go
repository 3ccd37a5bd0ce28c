package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// SettlementStore implements domain.SettlementStore. Each settlement runs
// inside one pgx transaction; row-level FOR UPDATE locks serialize workers
// racing on the same job, positions, or accounts.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a SettlementStore backed by the given pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// WithinTx runs fn inside a single transaction. The transaction commits iff
// fn returns nil; any error (or panic) rolls back every effect.
func (s *SettlementStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SettlementTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin settlement tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(ctx, &settlementTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit settlement tx: %w", err)
	}
	return nil
}

// RecordFailure marks a job failed after its settlement transaction rolled
// back. The attempts increment made inside the rolled-back transaction is
// re-applied here so the counter survives the rollback. Completed is a
// terminal state: a failure record arriving after another worker completed
// the job is a no-op.
func (s *SettlementStore) RecordFailure(ctx context.Context, jobID int64, message string) error {
	const query = `
		UPDATE settlement_jobs SET
			status        = 'failed',
			attempts      = attempts + 1,
			error_message = $2
		WHERE id = $1 AND status <> 'completed'`

	tag, err := s.pool.Exec(ctx, query, jobID, message)
	if err != nil {
		return fmt.Errorf("postgres: record job %d failure: %w", jobID, err)
	}
	if tag.RowsAffected() == 0 {
		var status string
		err := s.pool.QueryRow(ctx,
			`SELECT status FROM settlement_jobs WHERE id = $1`, jobID).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("postgres: record job %d failure: %w", jobID, err)
		}
	}
	return nil
}

// ListRetryable returns up to limit jobs in queued or failed state, oldest
// first. Used by the poll path of the job intake.
func (s *SettlementStore) ListRetryable(ctx context.Context, limit int) ([]domain.SettlementJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobSelectCols+` FROM settlement_jobs
		 WHERE status IN ('queued', 'failed')
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list retryable jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan retryable jobs: %w", err)
	}
	return jobs, nil
}

// FindAccountBySystemTag returns the system account carrying the given tag.
func (s *SettlementStore) FindAccountBySystemTag(ctx context.Context, tag string) (domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE system_tag = $1`, tag)

	acct, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: find account by tag %s: %w", tag, err)
	}
	return acct, nil
}

// Compile-time interface check.
var _ domain.SettlementStore = (*SettlementStore)(nil)

// ---------------------------------------------------------------------------
// settlementTx
// ---------------------------------------------------------------------------

// settlementTx implements domain.SettlementTx over one pgx transaction.
type settlementTx struct {
	tx pgx.Tx
}

const jobSelectCols = `id, market_id, result_option_id, status, attempts,
	started_at, completed_at, error_message, resolved_by, created_at`

const accountSelectCols = `id, kind, system_tag, points_balance, created_at, updated_at`

func (t *settlementTx) JobForUpdate(ctx context.Context, id int64) (domain.SettlementJob, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+jobSelectCols+` FROM settlement_jobs WHERE id = $1 FOR UPDATE`, id)

	job, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementJob{}, domain.ErrNotFound
		}
		return domain.SettlementJob{}, fmt.Errorf("postgres: lock job %d: %w", id, err)
	}
	return job, nil
}

func (t *settlementTx) MarkJobProcessing(ctx context.Context, id int64, now time.Time) error {
	const query = `
		UPDATE settlement_jobs SET
			status        = 'processing',
			attempts      = attempts + 1,
			started_at    = $2,
			error_message = NULL
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("postgres: mark job %d processing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *settlementTx) MarkJobCompleted(ctx context.Context, id int64, now time.Time) error {
	const query = `
		UPDATE settlement_jobs SET
			status       = 'completed',
			completed_at = $2
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("postgres: mark job %d completed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *settlementTx) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, question, status, result_option_id, created_at, resolved_at
		 FROM markets WHERE id = $1`, id)

	var m domain.Market
	var status string
	err := row.Scan(&m.ID, &m.Question, &status, &m.ResultOptionID, &m.CreatedAt, &m.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	m.Status = domain.MarketStatus(status)
	return m, nil
}

func (t *settlementTx) GetOption(ctx context.Context, id int64) (domain.Option, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT id, market_id, label FROM options WHERE id = $1`, id)

	var o domain.Option
	err := row.Scan(&o.ID, &o.MarketID, &o.Label)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Option{}, domain.ErrNotFound
		}
		return domain.Option{}, fmt.Errorf("postgres: get option %d: %w", id, err)
	}
	return o, nil
}

func (t *settlementTx) ResolveMarket(ctx context.Context, marketID, optionID int64, now time.Time) error {
	const query = `
		UPDATE markets SET
			status           = 'resolved',
			result_option_id = $2,
			resolved_at      = $3
		WHERE id = $1 AND status = 'open'`

	tag, err := t.tx.Exec(ctx, query, marketID, optionID, now)
	if err != nil {
		return fmt.Errorf("postgres: resolve market %d: %w", marketID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// OpenPositionsForUpdate locks all open positions of a market. The ordering
// by account id is part of the global lock-acquisition order and must not
// change.
func (t *settlementTx) OpenPositionsForUpdate(ctx context.Context, marketID int64) ([]domain.Position, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT id, market_id, account_id, option_id, stake_points,
			odds_at_purchase, status, payout_points, placed_at, settled_at
		 FROM positions
		 WHERE market_id = $1 AND status = 'open'
		 ORDER BY account_id ASC, id ASC
		 FOR UPDATE`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: lock open positions for market %d: %w", marketID, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		var p domain.Position
		var status string
		if err := rows.Scan(
			&p.ID, &p.MarketID, &p.AccountID, &p.OptionID, &p.StakePoints,
			&p.OddsAtPurchase, &status, &p.PayoutPoints, &p.PlacedAt, &p.SettledAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		p.Status = domain.PositionStatus(status)
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: lock open positions rows: %w", err)
	}
	return positions, nil
}

func (t *settlementTx) SettlePosition(ctx context.Context, positionID, payoutPoints int64, now time.Time) error {
	const query = `
		UPDATE positions SET
			status        = 'settled',
			payout_points = $2,
			settled_at    = $3
		WHERE id = $1 AND status = 'open'`

	tag, err := t.tx.Exec(ctx, query, positionID, payoutPoints, now)
	if err != nil {
		return fmt.Errorf("postgres: settle position %d: %w", positionID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *settlementTx) AccountForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1 FOR UPDATE`, id)

	acct, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: lock account %d: %w", id, err)
	}
	return acct, nil
}

func (t *settlementTx) UpdateAccountBalance(ctx context.Context, id int64, balance int64) error {
	const query = `
		UPDATE accounts SET
			points_balance = $2,
			updated_at     = NOW()
		WHERE id = $1`

	tag, err := t.tx.Exec(ctx, query, id, balance)
	if err != nil {
		return fmt.Errorf("postgres: update account %d balance: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (t *settlementTx) AppendLedger(ctx context.Context, e domain.LedgerEntry) error {
	metadata, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("postgres: marshal ledger metadata: %w", err)
	}

	const query = `
		INSERT INTO ledger_entries (
			actor, account_id, action, reason,
			points_delta, points_before, points_after,
			related_kind, related_id, metadata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = t.tx.Exec(ctx, query,
		e.Actor, e.AccountID, string(e.Action), e.Reason,
		e.PointsDelta, e.PointsBefore, e.PointsAfter,
		e.RelatedKind, e.RelatedID, metadata,
	)
	if err != nil {
		return fmt.Errorf("postgres: append ledger entry for account %d: %w", e.AccountID, err)
	}
	return nil
}

func (t *settlementTx) AppendAudit(ctx context.Context, event string, detail map[string]any) error {
	detailJSON, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal audit detail: %w", err)
	}

	_, err = t.tx.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, detailJSON)
	if err != nil {
		return fmt.Errorf("postgres: append audit event %s: %w", event, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Row scanners shared with the pool-level stores.
// ---------------------------------------------------------------------------

func scanJobRow(row pgx.Row) (domain.SettlementJob, error) {
	var j domain.SettlementJob
	var status string
	err := row.Scan(
		&j.ID, &j.MarketID, &j.ResultOptionID, &status, &j.Attempts,
		&j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.ResolvedBy, &j.CreatedAt,
	)
	if err != nil {
		return domain.SettlementJob{}, err
	}
	j.Status = domain.JobStatus(status)
	return j, nil
}

func scanJobRows(rows pgx.Rows) ([]domain.SettlementJob, error) {
	var jobs []domain.SettlementJob
	for rows.Next() {
		var j domain.SettlementJob
		var status string
		if err := rows.Scan(
			&j.ID, &j.MarketID, &j.ResultOptionID, &status, &j.Attempts,
			&j.StartedAt, &j.CompletedAt, &j.ErrorMessage, &j.ResolvedBy, &j.CreatedAt,
		); err != nil {
			return nil, err
		}
		j.Status = domain.JobStatus(status)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanAccountRow(row pgx.Row) (domain.Account, error) {
	var a domain.Account
	var kind string
	err := row.Scan(&a.ID, &kind, &a.SystemTag, &a.PointsBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, err
	}
	a.Kind = domain.AccountKind(kind)
	return a, nil
}
