package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// AccountStore provides pool-level account reads and creation. All balance
// mutation goes through the ledger service inside a settlement transaction;
// this store never touches points_balance directly.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore creates an AccountStore backed by the given pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

// Create inserts a new account and returns its assigned id.
func (s *AccountStore) Create(ctx context.Context, kind domain.AccountKind, systemTag *string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (kind, system_tag) VALUES ($1, $2) RETURNING id`,
		string(kind), systemTag,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create account: %w", err)
	}
	return id, nil
}

// GetByID retrieves a single account by its id.
func (s *AccountStore) GetByID(ctx context.Context, id int64) (domain.Account, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+accountSelectCols+` FROM accounts WHERE id = $1`, id)

	acct, err := scanAccountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Account{}, domain.ErrNotFound
		}
		return domain.Account{}, fmt.Errorf("postgres: get account %d: %w", id, err)
	}
	return acct, nil
}
