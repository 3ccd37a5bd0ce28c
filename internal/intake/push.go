// Package intake feeds settlement job ids to the coordinator over two
// redundant delivery paths: a blocking push consumer on the Redis queue and
// a periodic poll over persisted job rows. Both paths converge on the same
// idempotent entry point, so duplicate dispatch of a job id is a safe no-op.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

// Dispatcher is the settlement entry point both intake paths converge on.
// It is satisfied by *settle.Coordinator.
type Dispatcher interface {
	Settle(ctx context.Context, jobID int64) error
}

// PushConsumer blocks on the job queue and dispatches each received id. On
// any consumption error it backs off for a fixed interval and retries the
// blocking wait; the loop never exits except on context cancellation.
type PushConsumer struct {
	queue      domain.JobQueue
	locks      domain.LockManager
	dispatcher Dispatcher
	backoff    time.Duration
	claimTTL   time.Duration
	logger     *slog.Logger
}

// NewPushConsumer creates a PushConsumer. locks may be nil, in which case
// every received id is dispatched without a claim guard.
func NewPushConsumer(
	queue domain.JobQueue,
	locks domain.LockManager,
	dispatcher Dispatcher,
	backoff, claimTTL time.Duration,
	logger *slog.Logger,
) *PushConsumer {
	return &PushConsumer{
		queue:      queue,
		locks:      locks,
		dispatcher: dispatcher,
		backoff:    backoff,
		claimTTL:   claimTTL,
		logger:     logger.With(slog.String("component", "intake.push")),
	}
}

// Run consumes the queue until ctx is cancelled.
func (p *PushConsumer) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "push consumer starting",
		slog.Duration("backoff", p.backoff),
	)

	for {
		jobID, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, domain.ErrMalformedPayload) {
				// Reject at the boundary; nothing to retry.
				p.logger.WarnContext(ctx, "dropping malformed queue payload",
					slog.String("error", err.Error()),
				)
				continue
			}

			p.logger.ErrorContext(ctx, "queue consume failed, backing off",
				slog.String("error", err.Error()),
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.backoff):
			}
			continue
		}

		p.dispatch(ctx, jobID)
	}
}

// dispatch settles one job, optionally guarded by a best-effort claim lock
// so workers sharing the queue do not pile onto the same id. The coordinator
// stays idempotent either way.
func (p *PushConsumer) dispatch(ctx context.Context, jobID int64) {
	if p.locks != nil {
		unlock, err := p.locks.Acquire(ctx, fmt.Sprintf("settle:%d", jobID), p.claimTTL)
		switch {
		case errors.Is(err, domain.ErrLockHeld):
			p.logger.DebugContext(ctx, "job claimed by another worker, skipping",
				slog.Int64("job_id", jobID),
			)
			return
		case err != nil:
			// Claim guard unavailable; proceed without it.
			p.logger.WarnContext(ctx, "claim lock unavailable, dispatching anyway",
				slog.Int64("job_id", jobID),
				slog.String("error", err.Error()),
			)
		default:
			defer unlock()
		}
	}

	// Settle records failures itself; nothing further to do here.
	if err := p.dispatcher.Settle(ctx, jobID); err != nil {
		p.logger.WarnContext(ctx, "push dispatch did not complete",
			slog.Int64("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
