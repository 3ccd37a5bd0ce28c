package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pointline/pointline/internal/domain"
)

// JobStore provides pool-level settlement job reads and creation. Claiming
// and completing jobs happens inside the settlement transaction via
// SettlementStore.
type JobStore struct {
	pool *pgxpool.Pool
}

// NewJobStore creates a JobStore backed by the given pool.
func NewJobStore(pool *pgxpool.Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Create inserts a queued settlement job and returns its assigned id. The
// caller is expected to also enqueue the id on the push channel; the poll
// path will pick the row up regardless.
func (s *JobStore) Create(ctx context.Context, marketID, resultOptionID int64, resolvedBy string) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO settlement_jobs (market_id, result_option_id, resolved_by)
		 VALUES ($1, $2, $3) RETURNING id`,
		marketID, resultOptionID, resolvedBy,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create settlement job: %w", err)
	}
	return id, nil
}

// GetByID retrieves a single settlement job by its id.
func (s *JobStore) GetByID(ctx context.Context, id int64) (domain.SettlementJob, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobSelectCols+` FROM settlement_jobs WHERE id = $1`, id)

	job, err := scanJobRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SettlementJob{}, domain.ErrNotFound
		}
		return domain.SettlementJob{}, fmt.Errorf("postgres: get job %d: %w", id, err)
	}
	return job, nil
}

// ListCompletedBefore returns all completed jobs whose completion time is
// strictly before the given cutoff. Used by the cold-storage archiver.
func (s *JobStore) ListCompletedBefore(ctx context.Context, before time.Time) ([]domain.SettlementJob, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobSelectCols+` FROM settlement_jobs
		 WHERE status = 'completed' AND completed_at < $1
		 ORDER BY completed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list completed jobs before %s: %w", before, err)
	}
	defer rows.Close()

	jobs, err := scanJobRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan completed jobs: %w", err)
	}
	return jobs, nil
}
