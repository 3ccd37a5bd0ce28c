package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// PositionStore provides pool-level position reads and creation. Settling a
// position only ever happens inside the settlement transaction.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

// Create inserts an open position and returns its assigned id. Odds are
// fixed at stake time and immutable thereafter.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO positions (market_id, account_id, option_id, stake_points, odds_at_purchase)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		p.MarketID, p.AccountID, p.OptionID, p.StakePoints, p.OddsAtPurchase,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create position: %w", err)
	}
	return id, nil
}

// ListByMarket returns all positions of a market, settled or open.
func (s *PositionStore) ListByMarket(ctx context.Context, marketID int64) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, market_id, account_id, option_id, stake_points,
			odds_at_purchase, status, payout_points, placed_at, settled_at
		 FROM positions
		 WHERE market_id = $1
		 ORDER BY account_id ASC, id ASC`, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions for market %d: %w", marketID, err)
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
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}
