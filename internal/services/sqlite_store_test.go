package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/storage"
)

// newSQLiteService wires the calendar service over a real SQLite database
// with alice and bob as users.
func newSQLiteService(t *testing.T) (*CalendarService, *storage.SQLiteRepository) {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	for _, u := range []core.User{
		{ID: "alice", Email: "alice@example.com", Name: "Alice", Currency: "EUR"},
		{ID: "bob", Email: "bob@example.com", Name: "Bob"},
	} {
		require.NoError(t, repo.SaveUser(ctx, u))
	}

	clock := func() time.Time { return fixedNow }
	sync := NewSyncOrchestrator(repo, lease.NewLocal(), nil, nil).WithClock(clock)
	return NewCalendarService(NewLedger(repo, sync).WithClock(clock)), repo
}

func TestCalendarService_SQLite_UpdateExpenseMoves(t *testing.T) {
	ctx := context.Background()
	svc, repo := newSQLiteService(t)

	sess, err := svc.CreateSession(ctx, SessionInput{Name: "Casa", OwnerID: "alice"})
	require.NoError(t, err)
	_, err = svc.AddParticipant(ctx, "alice", sess.ID, ParticipantInput{UserID: "bob", CanEdit: true})
	require.NoError(t, err)

	added, err := svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Gas", 4000, core.NewDate(2024, time.March, 5)))
	require.NoError(t, err)

	tests := []struct {
		name   string
		date   time.Time
		target core.YearMonth
		source core.YearMonth
	}{
		{name: "to an earlier month", date: core.NewDate(2024, time.February, 5), target: ym(2024, time.February), source: ym(2024, time.March)},
		{name: "to a later month", date: core.NewDate(2024, time.April, 5), target: ym(2024, time.April), source: ym(2024, time.February)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.UpdateExpense(ctx, "alice", sess.ID, added.Expense.ID, expenseInput("Gas", 4000, tt.date))
			require.NoError(t, err)

			target, err := repo.ListMonthAllocations(ctx, sess.ID, tt.target)
			require.NoError(t, err)
			assert.Len(t, target, 2)

			source, err := repo.ListMonthAllocations(ctx, sess.ID, tt.source)
			require.NoError(t, err)
			assert.Empty(t, source)

			expenses, err := svc.ListMonthExpenses(ctx, sess.ID, tt.target)
			require.NoError(t, err)
			require.Len(t, expenses, 1)
			assert.Equal(t, added.Expense.ID, expenses[0].ID)

			bob, err := repo.ListPersonalExpenses(ctx, "bob")
			require.NoError(t, err)
			require.Len(t, bob, 1)
			assert.Equal(t, tt.target.Day(core.MirrorDay), bob[0].Date)
		})
	}
}
