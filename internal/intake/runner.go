package intake

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Runner supervises both intake paths as concurrent goroutines. Each
// respects ctx cancellation; if either returns a non-context error the
// shared context is cancelled and Run returns that error.
type Runner struct {
	push   *PushConsumer
	poll   *Poller
	logger *slog.Logger
}

// NewRunner creates a Runner over the given push consumer and poller.
func NewRunner(push *PushConsumer, poll *Poller, logger *slog.Logger) *Runner {
	return &Runner{
		push:   push,
		poll:   poll,
		logger: logger.With(slog.String("component", "intake")),
	}
}

// Run blocks until ctx is cancelled or one of the intake loops fails.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := r.push.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("push consumer: %w", err)
	})

	g.Go(func() error {
		err := r.poll.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("poller: %w", err)
	})

	err := g.Wait()
	if err != nil {
		r.logger.Error("intake stopped with error", slog.String("error", err.Error()))
		return err
	}

	r.logger.Info("intake stopped cleanly")
	return nil
}
