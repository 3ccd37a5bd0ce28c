// Package treasury resolves platform-owned accounts. The fee-collection
// account id is read from the store and cached with a TTL; the provider is
// an explicitly owned, context-passed service object rather than a
// module-level variable, so concurrent workers never see hidden staleness.
package treasury

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pointline/pointline/internal/domain"
)

// AccountSource looks up system accounts by tag. It is satisfied by the
// Postgres settlement store.
type AccountSource interface {
	FindAccountBySystemTag(ctx context.Context, tag string) (domain.Account, error)
}

// Provider caches the platform fee account id for a bounded TTL. It is safe
// for concurrent use.
type Provider struct {
	source AccountSource
	ttl    time.Duration

	mu        sync.Mutex
	accountID int64
	fetchedAt time.Time
}

// NewProvider creates a Provider with the given cache TTL.
func NewProvider(source AccountSource, ttl time.Duration) *Provider {
	return &Provider{
		source: source,
		ttl:    ttl,
	}
}

// FeeAccount returns the id of the platform fee-collection account, reading
// it from the store when the cached value is missing or older than the TTL.
func (p *Provider) FeeAccount(ctx context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accountID != 0 && time.Since(p.fetchedAt) < p.ttl {
		return p.accountID, nil
	}

	acct, err := p.source.FindAccountBySystemTag(ctx, domain.SystemTagFeeCollector)
	if err != nil {
		return 0, fmt.Errorf("treasury: resolve fee account: %w", err)
	}

	p.accountID = acct.ID
	p.fetchedAt = time.Now()
	return p.accountID, nil
}

// Invalidate drops the cached account id so the next FeeAccount call re-reads
// the store. Call after re-seeding or rotating platform accounts.
func (p *Provider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accountID = 0
	p.fetchedAt = time.Time{}
}
