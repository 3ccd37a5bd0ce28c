package intake

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// recordingDispatcher records every dispatched job id.
type recordingDispatcher struct {
	mu   sync.Mutex
	ids  []int64
	errs map[int64]error
}

func (d *recordingDispatcher) Settle(ctx context.Context, jobID int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = append(d.ids, jobID)
	if d.errs != nil {
		return d.errs[jobID]
	}
	return nil
}

func (d *recordingDispatcher) seen() []int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int64(nil), d.ids...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// waitFor polls cond until it returns true or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
