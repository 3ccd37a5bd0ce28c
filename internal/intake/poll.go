package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

// RetryScanner lists jobs eligible for (re)settlement. It is satisfied by
// the Postgres settlement store.
type RetryScanner interface {
	ListRetryable(ctx context.Context, limit int) ([]domain.SettlementJob, error)
}

// Poller periodically scans persisted jobs in queued or failed state and
// dispatches them oldest first. It is the fallback delivery path when the
// notification channel drops or never saw a job, and the only path that
// retries failed jobs.
type Poller struct {
	source     RetryScanner
	dispatcher Dispatcher
	interval   time.Duration
	batchSize  int
	logger     *slog.Logger
}

// NewPoller creates a Poller that scans every interval for up to batchSize
// jobs.
func NewPoller(
	source RetryScanner,
	dispatcher Dispatcher,
	interval time.Duration,
	batchSize int,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		source:     source,
		dispatcher: dispatcher,
		interval:   interval,
		batchSize:  batchSize,
		logger:     logger.With(slog.String("component", "intake.poll")),
	}
}

// Run scans immediately on start and then on every tick until ctx is
// cancelled. Scan errors are logged and retried on the next interval; they
// never terminate the loop.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "poller starting",
		slog.Duration("interval", p.interval),
		slog.Int("batch_size", p.batchSize),
	)

	p.scan(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.scan(ctx)
		}
	}
}

// scan dispatches one batch sequentially. Ordering is oldest first but
// correctness is not order-sensitive: the coordinator is idempotent per job
// id.
func (p *Poller) scan(ctx context.Context) {
	jobs, err := p.source.ListRetryable(ctx, p.batchSize)
	if err != nil {
		p.logger.ErrorContext(ctx, "retryable scan failed",
			slog.String("error", err.Error()),
		)
		return
	}
	if len(jobs) == 0 {
		return
	}

	p.logger.InfoContext(ctx, "dispatching retryable jobs",
		slog.Int("count", len(jobs)),
	)

	for _, job := range jobs {
		if ctx.Err() != nil {
			return
		}
		if err := p.dispatcher.Settle(ctx, job.ID); err != nil {
			p.logger.WarnContext(ctx, "poll dispatch did not complete",
				slog.Int64("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
