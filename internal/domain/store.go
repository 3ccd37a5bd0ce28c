package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerTx is the slice of a settlement transaction the ledger service needs
// to mutate one account. Every call operates inside the caller's unit of
// work; AccountForUpdate takes a row-level exclusive lock held until commit
// or rollback.
type LedgerTx interface {
	AccountForUpdate(ctx context.Context, id int64) (Account, error)
	UpdateAccountBalance(ctx context.Context, id int64, balance int64) error
	AppendLedger(ctx context.Context, entry LedgerEntry) error
	AppendAudit(ctx context.Context, event string, detail map[string]any) error
}

// SettlementTx is the full set of operations available inside one settlement
// unit of work. All reads suffixed ForUpdate acquire exclusive row locks;
// the documented lock order is job → positions (by account id ascending) →
// accounts (by account id ascending).
type SettlementTx interface {
	LedgerTx

	JobForUpdate(ctx context.Context, id int64) (SettlementJob, error)
	// MarkJobProcessing sets status=processing, increments attempts, stamps
	// started_at, and clears any prior error message.
	MarkJobProcessing(ctx context.Context, id int64, now time.Time) error
	MarkJobCompleted(ctx context.Context, id int64, now time.Time) error

	GetMarket(ctx context.Context, id int64) (Market, error)
	GetOption(ctx context.Context, id int64) (Option, error)
	ResolveMarket(ctx context.Context, marketID, optionID int64, now time.Time) error

	// OpenPositionsForUpdate locks and returns all open positions of a
	// market ordered by account id ascending.
	OpenPositionsForUpdate(ctx context.Context, marketID int64) ([]Position, error)
	SettlePosition(ctx context.Context, positionID, payoutPoints int64, now time.Time) error
}

// UnitOfWork runs a function inside a single atomic transaction. The
// transaction commits iff fn returns nil; any error rolls back every effect.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx SettlementTx) error) error
}

// SettlementStore is the persistence surface the settlement subsystem runs
// against.
type SettlementStore interface {
	UnitOfWork

	// RecordFailure marks a job failed and re-applies the attempts increment
	// lost in the rollback. It runs as a dedicated statement outside the
	// settlement transaction and never touches a job that has since reached
	// the terminal completed state.
	RecordFailure(ctx context.Context, jobID int64, message string) error

	// ListRetryable returns up to limit jobs in queued or failed state,
	// oldest first.
	ListRetryable(ctx context.Context, limit int) ([]SettlementJob, error)

	FindAccountBySystemTag(ctx context.Context, tag string) (Account, error)
}

// JobQueue is the push-style delivery channel for settlement job ids.
type JobQueue interface {
	Enqueue(ctx context.Context, jobID int64) error
	// Dequeue blocks until a job id is available or ctx is cancelled.
	Dequeue(ctx context.Context) (int64, error)
}

// LockManager provides best-effort distributed claim locks. Settlement
// correctness never depends on these; they only reduce duplicate work
// between workers racing on the same job id.
type LockManager interface {
	// Acquire returns an unlock function on success, or ErrLockHeld when the
	// lock is already taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter uploads a single object to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
