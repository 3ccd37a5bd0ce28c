package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// MarketStore provides pool-level market and option reads and creation.
// Resolution of a market only ever happens inside the settlement
// transaction.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a MarketStore backed by the given pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

// Create inserts an open market and returns its assigned id.
func (s *MarketStore) Create(ctx context.Context, question string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO markets (question) VALUES ($1) RETURNING id`, question,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create market: %w", err)
	}
	return id, nil
}

// CreateOption inserts an option belonging to the given market.
func (s *MarketStore) CreateOption(ctx context.Context, marketID int64, label string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO options (market_id, label) VALUES ($1, $2) RETURNING id`,
		marketID, label,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create option for market %d: %w", marketID, err)
	}
	return id, nil
}

// GetByID retrieves a single market by its id.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
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
