package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/storage"
	"sharedspese/internal/storage/memory"
)

var fixedNow = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memory.Store
	flaky     *flakyStore
	guard     *lease.Local
	publisher *recordingPublisher
	sync      *SyncOrchestrator
	ledger    *Ledger
	svc       *CalendarService
	gen       *MonthGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store:     memory.New(),
		guard:     lease.NewLocal(),
		publisher: &recordingPublisher{},
	}
	for _, u := range []core.User{
		{ID: "alice", Email: "alice@example.com", Name: "Alice", Currency: "EUR"},
		{ID: "bob", Email: "bob@example.com", Name: "Bob"},
		{ID: "carol", Email: "carol@example.com", Name: "Carol"},
		{ID: "mallory", Email: "mallory@example.com", Name: "Mallory"},
	} {
		require.NoError(t, f.store.SaveUser(ctx, u))
	}

	f.flaky = &flakyStore{Store: f.store}
	f.sync = NewSyncOrchestrator(f.flaky, f.guard, nil, f.publisher).WithClock(func() time.Time { return fixedNow })
	f.ledger = NewLedger(f.flaky, f.sync).WithClock(func() time.Time { return fixedNow })
	f.svc = NewCalendarService(f.ledger)
	f.gen = NewMonthGenerator(f.ledger, GeneratorConfig{SessionTimeout: 5 * time.Second, Concurrency: 2})
	return f
}

// session creates a session owned by alice with the given accepted members.
func (f *fixture) session(t *testing.T, typ core.SessionType, members ...string) *core.Session {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.CreateSession(ctx, SessionInput{Name: "Casa", OwnerID: "alice", Type: typ})
	require.NoError(t, err)
	for _, m := range members {
		_, err := f.svc.AddParticipant(ctx, "alice", sess.ID, ParticipantInput{UserID: m, CanEdit: true})
		require.NoError(t, err)
	}
	sess, err = f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	return sess
}

func (f *fixture) monthAllocations(t *testing.T, sessionID string, ym core.YearMonth) map[string]core.Allocation {
	t.Helper()
	allocs, err := f.store.ListMonthAllocations(context.Background(), sessionID, ym)
	require.NoError(t, err)
	out := make(map[string]core.Allocation, len(allocs))
	for _, a := range allocs {
		out[a.UserID] = a
	}
	return out
}

func (f *fixture) mirrors(t *testing.T, userID string) []core.PersonalExpense {
	t.Helper()
	list, err := f.store.ListPersonalExpenses(context.Background(), userID)
	require.NoError(t, err)
	var out []core.PersonalExpense
	for _, p := range list {
		if p.IsFromSharedSession {
			out = append(out, p)
		}
	}
	return out
}

func expenseInput(name string, cents int64, date time.Time) ExpenseInput {
	return ExpenseInput{Name: name, Amount: core.Cents(cents), Date: date, PayerID: "alice"}
}

func share(id string, pct string) core.Share {
	return core.Share{ParticipantID: id, Percentage: decimal.RequireFromString(pct)}
}

func ym(y int, m time.Month) core.YearMonth {
	return core.YearMonth{Year: y, Month: m}
}

// flakyStore fails the first failAtomic transactions and the user lookup
// of failUser, and counts transactions.
type flakyStore struct {
	storage.Store

	mu         sync.Mutex
	failAtomic int
	failUser   string
	calls      int
}

func (s *flakyStore) Atomic(ctx context.Context, fn func(tx storage.Store) error) error {
	s.mu.Lock()
	s.calls++
	fail := s.failAtomic > 0
	if fail {
		s.failAtomic--
	}
	failUser := s.failUser
	s.mu.Unlock()

	if fail {
		return errors.New("database is locked")
	}
	return s.Store.Atomic(ctx, func(tx storage.Store) error {
		return fn(&flakyTx{Store: tx, failUser: failUser})
	})
}

func (s *flakyStore) set(failAtomic int, failUser string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAtomic, s.failUser, s.calls = failAtomic, failUser, 0
}

func (s *flakyStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type flakyTx struct {
	storage.Store
	failUser string
}

func (t *flakyTx) GetUser(ctx context.Context, id string) (*core.User, error) {
	if id != "" && id == t.failUser {
		return nil, errors.New("user directory unavailable")
	}
	return t.Store.GetUser(ctx, id)
}

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishMirrorSync(_ context.Context, allocationID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, allocationID)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}
