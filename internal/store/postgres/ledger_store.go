package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// LedgerStore provides pool-level reads of the append-only ledger. Entries
// are only ever written inside a settlement transaction; there is no update
// or delete path.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

const ledgerSelectCols = `id, actor, account_id, action, reason,
	points_delta, points_before, points_after,
	related_kind, related_id, metadata, created_at`

// ListByAccount returns ledger entries for one account, newest first.
func (s *LedgerStore) ListByAccount(ctx context.Context, accountID int64, opts domain.ListOpts) ([]domain.LedgerEntry, error) {
	query := `SELECT ` + ledgerSelectCols + ` FROM ledger_entries WHERE account_id = $1`
	args := []any{accountID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries for account %d: %w", accountID, err)
	}
	defer rows.Close()

	return scanLedgerRows(rows)
}

// ListBefore returns all ledger entries created strictly before the given
// cutoff. Used by the cold-storage archiver.
func (s *LedgerStore) ListBefore(ctx context.Context, before time.Time) ([]domain.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+ledgerSelectCols+` FROM ledger_entries
		 WHERE created_at < $1
		 ORDER BY created_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ledger entries before %s: %w", before, err)
	}
	defer rows.Close()

	return scanLedgerRows(rows)
}

func scanLedgerRows(rows pgx.Rows) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry
	for rows.Next() {
		var e domain.LedgerEntry
		var action string
		var metadata []byte

		if err := rows.Scan(
			&e.ID, &e.Actor, &e.AccountID, &action, &e.Reason,
			&e.PointsDelta, &e.PointsBefore, &e.PointsAfter,
			&e.RelatedKind, &e.RelatedID, &metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan ledger entry: %w", err)
		}
		e.Action = domain.LedgerAction(action)

		if metadata != nil {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal ledger metadata: %w", err)
			}
		}

		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: ledger entry rows: %w", err)
	}
	return entries, nil
}
