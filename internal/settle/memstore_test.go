package settle

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

// memState is the full mutable state of the in-memory store. Transactions
// operate on the live state and restore a deep-copied snapshot on error, so
// rollback semantics match the real store.
type memState struct {
	jobs      map[int64]*domain.SettlementJob
	markets   map[int64]*domain.Market
	options   map[int64]*domain.Option
	positions map[int64]*domain.Position
	accounts  map[int64]*domain.Account
	ledger    []domain.LedgerEntry
	audit     []domain.AuditEntry
}

func newMemState() *memState {
	return &memState{
		jobs:      make(map[int64]*domain.SettlementJob),
		markets:   make(map[int64]*domain.Market),
		options:   make(map[int64]*domain.Option),
		positions: make(map[int64]*domain.Position),
		accounts:  make(map[int64]*domain.Account),
	}
}

func (s *memState) clone() *memState {
	c := newMemState()
	for id, j := range s.jobs {
		cp := *j
		c.jobs[id] = &cp
	}
	for id, m := range s.markets {
		cp := *m
		c.markets[id] = &cp
	}
	for id, o := range s.options {
		cp := *o
		c.options[id] = &cp
	}
	for id, p := range s.positions {
		cp := *p
		c.positions[id] = &cp
	}
	for id, a := range s.accounts {
		cp := *a
		c.accounts[id] = &cp
	}
	c.ledger = append([]domain.LedgerEntry(nil), s.ledger...)
	c.audit = append([]domain.AuditEntry(nil), s.audit...)
	return c
}

// memStore implements domain.SettlementStore in memory. WithinTx is
// serialized by a mutex, which mirrors the row-lock serialization the real
// store gets from locking the job row first.
type memStore struct {
	mu    sync.Mutex
	state *memState
}

func newMemStore() *memStore {
	return &memStore{state: newMemState()}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.SettlementTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(ctx, &memTx{state: s.state}); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

func (s *memStore) RecordFailure(ctx context.Context, jobID int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.state.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status == domain.JobStatusCompleted {
		return nil
	}
	job.Status = domain.JobStatusFailed
	job.Attempts++
	job.ErrorMessage = &message
	return nil
}

func (s *memStore) ListRetryable(ctx context.Context, limit int) ([]domain.SettlementJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var jobs []domain.SettlementJob
	for _, j := range s.state.jobs {
		if j.Status == domain.JobStatusQueued || j.Status == domain.JobStatusFailed {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	if limit > 0 && len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *memStore) FindAccountBySystemTag(ctx context.Context, tag string) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.state.accounts {
		if a.SystemTag != nil && *a.SystemTag == tag {
			return *a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}

var _ domain.SettlementStore = (*memStore)(nil)

// memTx implements domain.SettlementTx over the live state.
type memTx struct {
	state *memState
}

func (t *memTx) JobForUpdate(ctx context.Context, id int64) (domain.SettlementJob, error) {
	job, ok := t.state.jobs[id]
	if !ok {
		return domain.SettlementJob{}, domain.ErrNotFound
	}
	return *job, nil
}

func (t *memTx) MarkJobProcessing(ctx context.Context, id int64, now time.Time) error {
	job, ok := t.state.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusProcessing
	job.Attempts++
	started := now
	job.StartedAt = &started
	job.ErrorMessage = nil
	return nil
}

func (t *memTx) MarkJobCompleted(ctx context.Context, id int64, now time.Time) error {
	job, ok := t.state.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	job.Status = domain.JobStatusCompleted
	completed := now
	job.CompletedAt = &completed
	return nil
}

func (t *memTx) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	m, ok := t.state.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return *m, nil
}

func (t *memTx) GetOption(ctx context.Context, id int64) (domain.Option, error) {
	o, ok := t.state.options[id]
	if !ok {
		return domain.Option{}, domain.ErrNotFound
	}
	return *o, nil
}

func (t *memTx) ResolveMarket(ctx context.Context, marketID, optionID int64, now time.Time) error {
	m, ok := t.state.markets[marketID]
	if !ok {
		return domain.ErrNotFound
	}
	m.Status = domain.MarketStatusResolved
	result := optionID
	m.ResultOptionID = &result
	resolved := now
	m.ResolvedAt = &resolved
	return nil
}

func (t *memTx) OpenPositionsForUpdate(ctx context.Context, marketID int64) ([]domain.Position, error) {
	var positions []domain.Position
	for _, p := range t.state.positions {
		if p.MarketID == marketID && p.Status == domain.PositionStatusOpen {
			positions = append(positions, *p)
		}
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].AccountID != positions[j].AccountID {
			return positions[i].AccountID < positions[j].AccountID
		}
		return positions[i].ID < positions[j].ID
	})
	return positions, nil
}

func (t *memTx) SettlePosition(ctx context.Context, positionID, payoutPoints int64, now time.Time) error {
	p, ok := t.state.positions[positionID]
	if !ok || p.Status != domain.PositionStatusOpen {
		return domain.ErrNotFound
	}
	p.Status = domain.PositionStatusSettled
	payout := payoutPoints
	p.PayoutPoints = &payout
	settled := now
	p.SettledAt = &settled
	return nil
}

func (t *memTx) AccountForUpdate(ctx context.Context, id int64) (domain.Account, error) {
	a, ok := t.state.accounts[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return *a, nil
}

func (t *memTx) UpdateAccountBalance(ctx context.Context, id int64, balance int64) error {
	a, ok := t.state.accounts[id]
	if !ok {
		return domain.ErrNotFound
	}
	if balance < 0 {
		return fmt.Errorf("balance constraint violated: %w", domain.ErrInsufficientBalance)
	}
	a.PointsBalance = balance
	return nil
}

func (t *memTx) AppendLedger(ctx context.Context, entry domain.LedgerEntry) error {
	entry.ID = int64(len(t.state.ledger) + 1)
	entry.CreatedAt = time.Now().UTC()
	t.state.ledger = append(t.state.ledger, entry)
	return nil
}

func (t *memTx) AppendAudit(ctx context.Context, event string, detail map[string]any) error {
	t.state.audit = append(t.state.audit, domain.AuditEntry{
		ID:        int64(len(t.state.audit) + 1),
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	return nil
}

var _ domain.SettlementTx = (*memTx)(nil)
