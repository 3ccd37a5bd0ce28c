package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pointline/pointline/internal/domain"
)

type fakeAccounts struct {
	nextID  int64
	kinds   []domain.AccountKind
	tags    []*string
	created []int64
}

func (f *fakeAccounts) Create(ctx context.Context, kind domain.AccountKind, systemTag *string) (int64, error) {
	f.nextID++
	f.kinds = append(f.kinds, kind)
	f.tags = append(f.tags, systemTag)
	f.created = append(f.created, f.nextID)
	return f.nextID, nil
}

type fakeMarkets struct {
	questions []string
	options   []string
}

func (f *fakeMarkets) Create(ctx context.Context, question string) (int64, error) {
	f.questions = append(f.questions, question)
	return 500, nil
}

func (f *fakeMarkets) CreateOption(ctx context.Context, marketID int64, label string) (int64, error) {
	f.options = append(f.options, label)
	return 500 + int64(len(f.options)), nil
}

type fakePositions struct {
	created []domain.Position
}

func (f *fakePositions) Create(ctx context.Context, p domain.Position) (int64, error) {
	f.created = append(f.created, p)
	return int64(len(f.created)), nil
}

type fakeJobs struct {
	marketID       int64
	resultOptionID int64
	resolvedBy     string
}

func (f *fakeJobs) Create(ctx context.Context, marketID, resultOptionID int64, resolvedBy string) (int64, error) {
	f.marketID = marketID
	f.resultOptionID = resultOptionID
	f.resolvedBy = resolvedBy
	return 900, nil
}

type fakeFinder struct {
	account domain.Account
	err     error
}

func (f *fakeFinder) FindAccountBySystemTag(ctx context.Context, tag string) (domain.Account, error) {
	return f.account, f.err
}

type ledgerCall struct {
	accountID int64
	delta     int64
	reason    string
}

type fakeLedger struct {
	grants  []ledgerCall
	adjusts []ledgerCall
}

func (f *fakeLedger) Grant(ctx context.Context, accountID, points int64, actor, reason string) (domain.LedgerEntry, error) {
	f.grants = append(f.grants, ledgerCall{accountID: accountID, delta: points, reason: reason})
	return domain.LedgerEntry{}, nil
}

func (f *fakeLedger) Adjust(ctx context.Context, accountID, delta int64, actor, reason string) (domain.LedgerEntry, error) {
	f.adjusts = append(f.adjusts, ledgerCall{accountID: accountID, delta: delta, reason: reason})
	return domain.LedgerEntry{}, nil
}

type fakeEnqueuer struct {
	enqueued []int64
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, jobID int64) error {
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func newTestSeeder(accounts *fakeAccounts, markets *fakeMarkets, positions *fakePositions, jobs *fakeJobs, finder *fakeFinder, led *fakeLedger, queue *fakeEnqueuer) *seeder {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newSeeder(accounts, markets, positions, jobs, finder, led, queue, logger)
}

func TestSeedBuildsFullDataset(t *testing.T) {
	accounts := &fakeAccounts{}
	markets := &fakeMarkets{}
	positions := &fakePositions{}
	jobs := &fakeJobs{}
	finder := &fakeFinder{err: domain.ErrNotFound}
	led := &fakeLedger{}
	queue := &fakeEnqueuer{}

	s := newTestSeeder(accounts, markets, positions, jobs, finder, led, queue)
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Fee collector plus two users.
	if len(accounts.created) != 3 {
		t.Fatalf("accounts created = %d, want 3", len(accounts.created))
	}
	if accounts.kinds[0] != domain.AccountKindSystem {
		t.Errorf("first account kind = %s, want system", accounts.kinds[0])
	}
	if accounts.tags[0] == nil || *accounts.tags[0] != domain.SystemTagFeeCollector {
		t.Errorf("fee collector tag = %v, want %q", accounts.tags[0], domain.SystemTagFeeCollector)
	}

	// Every user gets the signup grant.
	if len(led.grants) != 2 {
		t.Fatalf("grants = %d, want 2", len(led.grants))
	}
	for _, g := range led.grants {
		if g.delta != seedSignupGrant {
			t.Errorf("grant of %d points, want %d", g.delta, seedSignupGrant)
		}
	}

	if len(markets.questions) != 1 {
		t.Fatalf("markets created = %d, want 1", len(markets.questions))
	}
	if len(markets.options) != 2 {
		t.Fatalf("options created = %d, want 2", len(markets.options))
	}

	// Each wager deducts its stake through the ledger before the position
	// exists.
	if len(positions.created) != 2 || len(led.adjusts) != 2 {
		t.Fatalf("positions = %d, adjusts = %d, want 2 each", len(positions.created), len(led.adjusts))
	}
	for i, p := range positions.created {
		if led.adjusts[i].accountID != p.AccountID {
			t.Errorf("stake %d charged to account %d, position owned by %d", i, led.adjusts[i].accountID, p.AccountID)
		}
		if led.adjusts[i].delta != -p.StakePoints {
			t.Errorf("stake %d delta = %d, want %d", i, led.adjusts[i].delta, -p.StakePoints)
		}
		if p.MarketID != 500 {
			t.Errorf("position %d market = %d, want 500", i, p.MarketID)
		}
	}

	if jobs.marketID != 500 || jobs.resolvedBy != seedActor {
		t.Errorf("job created for market %d by %q, want 500 by %q", jobs.marketID, jobs.resolvedBy, seedActor)
	}
	if len(queue.enqueued) != 1 || queue.enqueued[0] != 900 {
		t.Errorf("enqueued = %v, want [900]", queue.enqueued)
	}
}

func TestSeedReusesExistingFeeCollector(t *testing.T) {
	tag := domain.SystemTagFeeCollector
	accounts := &fakeAccounts{}
	finder := &fakeFinder{account: domain.Account{
		ID:        7,
		Kind:      domain.AccountKindSystem,
		SystemTag: &tag,
	}}

	s := newTestSeeder(accounts, &fakeMarkets{}, &fakePositions{}, &fakeJobs{}, finder, &fakeLedger{}, &fakeEnqueuer{})
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Only the two user accounts are created.
	if len(accounts.created) != 2 {
		t.Fatalf("accounts created = %d, want 2", len(accounts.created))
	}
	for i, kind := range accounts.kinds {
		if kind != domain.AccountKindUser {
			t.Errorf("account %d kind = %s, want user", i, kind)
		}
	}
}
