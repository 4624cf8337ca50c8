package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedspese/internal/core"
)

func TestCalendarService_CreateSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sess, err := f.svc.CreateSession(ctx, SessionInput{Name: "  Casa ", OwnerID: "alice", Type: core.SessionPermanent})
	require.NoError(t, err)

	assert.Equal(t, "Casa", sess.Name)
	assert.Equal(t, "EUR", sess.Currency)
	require.Len(t, sess.Participants, 1)
	assert.Equal(t, core.RoleOwner, sess.Participants[0].Role)
	assert.True(t, sess.Participants[0].Accepted())

	stored, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, stored.Months, 36)
	assert.Equal(t, ym(2024, time.January), stored.Months[0].YearMonth)
	assert.Equal(t, ym(2026, time.December), stored.Months[35].YearMonth)
	require.Len(t, stored.Months[0].Distribution, 1)
	assert.Equal(t, "100", stored.Months[0].Distribution[0].Percentage.String())

	t.Run("unknown owner", func(t *testing.T) {
		_, err := f.svc.CreateSession(ctx, SessionInput{Name: "X", OwnerID: "nobody"})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
	t.Run("empty name", func(t *testing.T) {
		_, err := f.svc.CreateSession(ctx, SessionInput{Name: " ", OwnerID: "alice"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestCalendarService_AddExpense_SplitsByDistribution(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	_, err := f.svc.UpdateDistribution(ctx, "alice", sess.ID, []core.Share{share("alice", "60"), share("bob", "40")}, ym(2024, time.January))
	require.NoError(t, err)

	res, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Spesa", 10000, core.NewDate(2024, time.March, 5)))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Copies)
	assert.Equal(t, []core.YearMonth{ym(2024, time.March)}, res.Touched)
	require.Len(t, res.Allocations, 2)
	assert.True(t, res.Sync.OK())
	assert.Len(t, res.Sync.Synced, 2)

	allocs := f.monthAllocations(t, sess.ID, ym(2024, time.March))
	assert.Equal(t, int64(6000), allocs["alice"].Amount.Cents)
	assert.Equal(t, int64(4000), allocs["bob"].Amount.Cents)
	assert.Equal(t, int64(10000), allocs["alice"].Total.Cents)
	assert.Equal(t, core.StatusPending, allocs["bob"].Status)

	mirrors := f.mirrors(t, "alice")
	require.Len(t, mirrors, 1)
	m := mirrors[0]
	assert.Equal(t, "Casa - 60% (March 2024)", m.Description)
	assert.Equal(t, core.NewDate(2024, time.March, 15), m.Date)
	assert.Equal(t, int64(6000), m.Amount.Cents)
	assert.Equal(t, allocs["alice"].ID, m.AllocationID)
	assert.Equal(t, m.ID, allocs["alice"].PersonalExpenseID)
	assert.False(t, m.IsRecurring)
	require.NotNil(t, m.SessionRef)
	assert.Equal(t, sess.ID, m.SessionRef.SessionID)
}

func TestCalendarService_AddExpense_ThreeWayResidualGoesToFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob", "carol")

	_, err := f.svc.UpdateDistribution(ctx, "alice", sess.ID,
		[]core.Share{share("alice", "33.34"), share("bob", "33.33"), share("carol", "33.33")}, ym(2024, time.January))
	require.NoError(t, err)

	_, err = f.svc.AddExpense(ctx, "bob", sess.ID, expenseInput("Cena", 1000, core.NewDate(2024, time.February, 1)))
	require.NoError(t, err)

	allocs := f.monthAllocations(t, sess.ID, ym(2024, time.February))
	assert.Equal(t, int64(334), allocs["alice"].Amount.Cents)
	assert.Equal(t, int64(333), allocs["bob"].Amount.Cents)
	assert.Equal(t, int64(333), allocs["carol"].Amount.Cents)
}

func TestCalendarService_AddExpense_RecurringProjectsThreeYears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionPermanent, "bob")

	in := expenseInput("Affitto", 12000, core.NewDate(2024, time.January, 15))
	in.Recurring = true
	res, err := f.svc.AddExpense(ctx, "alice", sess.ID, in)
	require.NoError(t, err)
	assert.Equal(t, 37, res.Copies)
	assert.Len(t, res.Touched, 37)
	assert.NotEmpty(t, res.Expense.RecurrenceGroupID)

	stored, err := f.store.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	seen := 0
	for _, m := range stored.Months {
		if m.YearMonth.After(ym(2027, time.January)) {
			assert.Empty(t, m.Expenses, "month %s", m.YearMonth)
			continue
		}
		seen++
		assert.Equal(t, int64(12000), m.Total.Cents, "month %s", m.YearMonth)
		require.Len(t, m.Expenses, 1)
		assert.Equal(t, res.Expense.RecurrenceGroupID, m.Expenses[0].RecurrenceGroupID)
		assert.Equal(t, 15, m.Expenses[0].Date.Day())
	}
	assert.Equal(t, 37, seen)

	last := f.monthAllocations(t, sess.ID, ym(2027, time.January))
	assert.Equal(t, int64(6000), last["alice"].Amount.Cents)
	assert.Equal(t, int64(6000), last["bob"].Amount.Cents)

	mirrors := f.mirrors(t, "bob")
	assert.Len(t, mirrors, 37)
	for _, m := range mirrors {
		assert.True(t, m.IsRecurring)
	}
}

func TestCalendarService_AddExpense_PeriodBounded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	in := expenseInput("Palestra", 3000, core.NewDate(2024, time.January, 31))
	in.RecurrenceEnd = core.NewDate(2024, time.April, 30)
	res, err := f.svc.AddExpense(ctx, "alice", sess.ID, in)
	require.NoError(t, err)

	assert.Equal(t, 4, res.Copies)
	assert.True(t, res.Expense.IsRecurring)
	feb, err := f.svc.ListMonthExpenses(ctx, sess.ID, ym(2024, time.February))
	require.NoError(t, err)
	require.Len(t, feb, 1)
	assert.Equal(t, 29, feb[0].Date.Day())
	assert.True(t, feb[0].IsRecurring)

	may, err := f.svc.ListMonthExpenses(ctx, sess.ID, ym(2024, time.May))
	require.NoError(t, err)
	assert.Empty(t, may)
}

func TestCalendarService_AddExpense_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	tests := []struct {
		name    string
		actor   string
		session string
		in      ExpenseInput
		wantErr error
		noWrite bool
	}{
		{name: "empty name", actor: "alice", session: sess.ID, in: expenseInput("  ", 100, fixedNow), wantErr: core.ErrValidation, noWrite: true},
		{name: "zero amount", actor: "alice", session: sess.ID, in: expenseInput("X", 0, fixedNow), wantErr: core.ErrValidation, noWrite: true},
		{name: "negative amount", actor: "alice", session: sess.ID, in: expenseInput("X", -5, fixedNow), wantErr: core.ErrValidation, noWrite: true},
		{name: "not a participant", actor: "mallory", session: sess.ID, in: expenseInput("X", 100, fixedNow), wantErr: core.ErrForbidden},
		{name: "payer outside session", actor: "alice", session: sess.ID, in: ExpenseInput{Name: "X", Amount: core.Cents(100), Date: fixedNow, PayerID: "carol"}, wantErr: core.ErrValidation},
		{name: "unknown session", actor: "alice", session: "missing", in: expenseInput("X", 100, fixedNow), wantErr: core.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.flaky.set(0, "")
			_, err := f.svc.AddExpense(ctx, tt.actor, tt.session, tt.in)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.noWrite {
				assert.Zero(t, f.flaky.callCount())
			} else {
				assert.Equal(t, 1, f.flaky.callCount(), "domain errors are not retried")
			}
		})
	}

	allocs, err := f.store.ListSessionAllocations(ctx, sess.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
}

func TestCalendarService_RemoveExpense_NonRecurringLeavesOtherMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	jan, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Luce", 5000, core.NewDate(2024, time.January, 3)))
	require.NoError(t, err)
	_, err = f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Gas", 3000, core.NewDate(2024, time.February, 3)))
	require.NoError(t, err)
	febBefore := f.monthAllocations(t, sess.ID, ym(2024, time.February))

	res, err := f.svc.RemoveExpense(ctx, "alice", sess.ID, jan.Expense.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Removed)
	assert.Equal(t, []core.YearMonth{ym(2024, time.January)}, res.Touched)

	assert.Empty(t, f.monthAllocations(t, sess.ID, ym(2024, time.January)))
	assert.Equal(t, febBefore, f.monthAllocations(t, sess.ID, ym(2024, time.February)))

	mirrors := f.mirrors(t, "bob")
	require.Len(t, mirrors, 1)
	assert.Equal(t, time.February, mirrors[0].SessionRef.Month)

	t.Run("unknown expense", func(t *testing.T) {
		_, err := f.svc.RemoveExpense(ctx, "alice", sess.ID, "nope")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestCalendarService_RemoveExpense_RecurringFromMiddle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionPermanent, "bob")

	in := expenseInput("Internet", 3000, core.NewDate(2024, time.January, 15))
	in.Recurring = true
	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, in)
	require.NoError(t, err)

	june, err := f.svc.ListMonthExpenses(ctx, sess.ID, ym(2024, time.June))
	require.NoError(t, err)
	require.Len(t, june, 1)

	res, err := f.svc.RemoveExpense(ctx, "alice", sess.ID, june[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 32, res.Removed)

	for m := ym(2024, time.January); m.Before(ym(2024, time.June)); m = m.Next() {
		got, err := f.svc.ListMonthExpenses(ctx, sess.ID, m)
		require.NoError(t, err)
		assert.Len(t, got, 1, "month %s", m)
		assert.Len(t, f.monthAllocations(t, sess.ID, m), 2)
	}
	for m := ym(2024, time.June); !m.After(ym(2027, time.January)); m = m.Next() {
		got, err := f.svc.ListMonthExpenses(ctx, sess.ID, m)
		require.NoError(t, err)
		assert.Empty(t, got, "month %s", m)
	}
	assert.Len(t, f.mirrors(t, "alice"), 5)
}

func TestCalendarService_RemoveExpense_NeedsDeleteCapability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	res, err := f.svc.AddExpense(ctx, "bob", sess.ID, expenseInput("Pizza", 2000, fixedNow))
	require.NoError(t, err)

	_, err = f.svc.RemoveExpense(ctx, "bob", sess.ID, res.Expense.ID)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.RemoveExpense(ctx, "alice", sess.ID, res.Expense.ID)
	assert.NoError(t, err)
}

func TestCalendarService_UpdateExpense(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	added, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Treno", 4000, core.NewDate(2024, time.January, 20)))
	require.NoError(t, err)

	t.Run("same month", func(t *testing.T) {
		res, err := f.svc.UpdateExpense(ctx, "bob", sess.ID, added.Expense.ID, expenseInput("Treno AV", 5000, core.NewDate(2024, time.January, 21)))
		require.NoError(t, err)
		assert.Equal(t, []core.YearMonth{ym(2024, time.January)}, res.Touched)
		assert.Equal(t, int64(2500), f.monthAllocations(t, sess.ID, ym(2024, time.January))["bob"].Amount.Cents)
	})

	t.Run("moved to another month", func(t *testing.T) {
		res, err := f.svc.UpdateExpense(ctx, "alice", sess.ID, added.Expense.ID, expenseInput("Treno AV", 5000, core.NewDate(2024, time.February, 2)))
		require.NoError(t, err)
		assert.Equal(t, []core.YearMonth{ym(2024, time.January), ym(2024, time.February)}, res.Touched)
		assert.Empty(t, f.monthAllocations(t, sess.ID, ym(2024, time.January)))
		assert.Len(t, f.monthAllocations(t, sess.ID, ym(2024, time.February)), 2)
		assert.Len(t, f.mirrors(t, "bob"), 1)
	})

	t.Run("invalid input", func(t *testing.T) {
		_, err := f.svc.UpdateExpense(ctx, "alice", sess.ID, added.Expense.ID, expenseInput("", 5000, fixedNow))
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestCalendarService_UpdateDistribution_LeavesEarlierMonths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionPermanent, "bob")

	in := expenseInput("Affitto", 10000, core.NewDate(2024, time.January, 15))
	in.Recurring = true
	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, in)
	require.NoError(t, err)

	before := map[core.YearMonth]map[string]core.Allocation{}
	for m := ym(2024, time.January); m.Before(ym(2024, time.July)); m = m.Next() {
		before[m] = f.monthAllocations(t, sess.ID, m)
	}

	res, err := f.svc.UpdateDistribution(ctx, "alice", sess.ID, []core.Share{share("alice", "70"), share("bob", "30")}, ym(2024, time.July))
	require.NoError(t, err)
	assert.Equal(t, ym(2024, time.July), res.Touched[0])
	assert.Len(t, res.Touched, 31)

	for m, want := range before {
		assert.Equal(t, want, f.monthAllocations(t, sess.ID, m), "month %s", m)
	}
	for _, m := range []core.YearMonth{ym(2024, time.July), ym(2025, time.March), ym(2027, time.January)} {
		allocs := f.monthAllocations(t, sess.ID, m)
		assert.Equal(t, int64(7000), allocs["alice"].Amount.Cents, "month %s", m)
		assert.Equal(t, int64(3000), allocs["bob"].Amount.Cents, "month %s", m)
	}

	t.Run("rejects bad shares", func(t *testing.T) {
		_, err := f.svc.UpdateDistribution(ctx, "alice", sess.ID, []core.Share{share("alice", "40"), share("bob", "40")}, ym(2024, time.July))
		assert.ErrorIs(t, err, core.ErrValidation)
	})
	t.Run("rejects outsiders", func(t *testing.T) {
		_, err := f.svc.UpdateDistribution(ctx, "alice", sess.ID, []core.Share{share("alice", "50"), share("mallory", "50")}, ym(2024, time.July))
		assert.ErrorIs(t, err, core.ErrValidation)
	})
}

func TestCalendarService_SetAllocationStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Spesa", 10000, core.NewDate(2024, time.March, 5)))
	require.NoError(t, err)
	bobAlloc := f.monthAllocations(t, sess.ID, ym(2024, time.March))["bob"]

	res, err := f.svc.SetAllocationStatus(ctx, "bob", bobAlloc.ID, core.StatusAccepted)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAccepted, res.Allocation.Status)
	assert.True(t, res.Sync.OK())
	assert.Equal(t, core.StatusAccepted, f.mirrors(t, "bob")[0].AllocationStatus)

	_, err = f.svc.SetAllocationStatus(ctx, "bob", bobAlloc.ID, core.StatusPending)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.SetAllocationStatus(ctx, "mallory", bobAlloc.ID, core.StatusPaid)
	assert.ErrorIs(t, err, core.ErrForbidden)

	_, err = f.svc.SetAllocationStatus(ctx, "bob", bobAlloc.ID, "refunded")
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.SetAllocationStatus(ctx, "alice", bobAlloc.ID, core.StatusPaid)
	require.NoError(t, err)

	t.Run("regeneration keeps identity and status", func(t *testing.T) {
		_, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Extra", 2000, core.NewDate(2024, time.March, 20)))
		require.NoError(t, err)

		got := f.monthAllocations(t, sess.ID, ym(2024, time.March))["bob"]
		assert.Equal(t, bobAlloc.ID, got.ID)
		assert.Equal(t, core.StatusPaid, got.Status)
		assert.Equal(t, int64(6000), got.Amount.Cents)

		mirrors := f.mirrors(t, "bob")
		require.Len(t, mirrors, 1)
		assert.Equal(t, int64(6000), mirrors[0].Amount.Cents)
		assert.Equal(t, core.StatusPaid, mirrors[0].AllocationStatus)
	})
}

func TestCalendarService_Participants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Spesa", 10000, core.NewDate(2024, time.March, 5)))
	require.NoError(t, err)
	require.Len(t, f.mirrors(t, "bob"), 1)

	t.Run("only the owner manages members", func(t *testing.T) {
		_, err := f.svc.AddParticipant(ctx, "bob", sess.ID, ParticipantInput{UserID: "carol"})
		assert.ErrorIs(t, err, core.ErrForbidden)
	})

	t.Run("duplicate member", func(t *testing.T) {
		_, err := f.svc.AddParticipant(ctx, "alice", sess.ID, ParticipantInput{UserID: "bob"})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("pending invitation does not rebalance", func(t *testing.T) {
		res, err := f.svc.AddParticipant(ctx, "alice", sess.ID, ParticipantInput{Email: "dave@example.com", Name: "Dave"})
		require.NoError(t, err)
		assert.Empty(t, res.Touched)
		assert.Len(t, f.monthAllocations(t, sess.ID, ym(2024, time.March)), 2)
	})

	t.Run("accepted member rebalances every month", func(t *testing.T) {
		res, err := f.svc.AddParticipant(ctx, "alice", sess.ID, ParticipantInput{UserID: "carol"})
		require.NoError(t, err)
		assert.Len(t, res.Touched, 36)
		allocs := f.monthAllocations(t, sess.ID, ym(2024, time.March))
		assert.Equal(t, int64(3334), allocs["alice"].Amount.Cents)
		assert.Equal(t, int64(3333), allocs["carol"].Amount.Cents)
	})

	t.Run("removing a member drops their mirrors", func(t *testing.T) {
		_, err := f.svc.RemoveParticipant(ctx, "alice", sess.ID, "bob")
		require.NoError(t, err)
		assert.Empty(t, f.mirrors(t, "bob"))

		allocs := f.monthAllocations(t, sess.ID, ym(2024, time.March))
		assert.Len(t, allocs, 2)
		assert.Equal(t, int64(5000), allocs["alice"].Amount.Cents)
		assert.Equal(t, "Casa - 50% (March 2024)", f.mirrors(t, "alice")[0].Description)
	})

	t.Run("owner cannot be removed", func(t *testing.T) {
		_, err := f.svc.RemoveParticipant(ctx, "alice", sess.ID, "alice")
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := f.svc.RemoveParticipant(ctx, "alice", sess.ID, "mallory")
		assert.ErrorIs(t, err, core.ErrNotFound)
	})
}

func TestCalendarService_ArchiveSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionPermanent, "bob")

	assert.ErrorIs(t, f.svc.ArchiveSession(ctx, "bob", sess.ID), core.ErrForbidden)
	require.NoError(t, f.svc.ArchiveSession(ctx, "alice", sess.ID))

	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("X", 100, fixedNow))
	assert.ErrorIs(t, err, core.ErrValidation)

	ids, err := f.store.ListActivePermanentSessions(ctx)
	require.NoError(t, err)
	assert.NotContains(t, ids, sess.ID)
}

func TestCalendarService_ReadAccessors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sess := f.session(t, core.SessionSingle, "bob")

	_, err := f.svc.AddExpense(ctx, "alice", sess.ID, expenseInput("Spesa", 10000, core.NewDate(2024, time.March, 5)))
	require.NoError(t, err)

	got, err := f.svc.GetSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.Participants, 2)

	all, err := f.svc.ListSessionAllocations(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending := core.StatusPending
	mine, err := f.svc.ListUserAllocations(ctx, "bob", &pending)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	bogus := core.AllocationStatus("lost")
	_, err = f.svc.ListUserAllocations(ctx, "bob", &bogus)
	assert.ErrorIs(t, err, core.ErrValidation)

	ov, err := f.svc.MonthSummary(ctx, sess.ID, ym(2024, time.March))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), ov.Total.Cents)
	assert.Equal(t, 1, ov.ExpenseCount)
	assert.Len(t, ov.ByParticipant, 2)

	_, err = f.svc.MonthSummary(ctx, sess.ID, ym(2030, time.March))
	assert.ErrorIs(t, err, core.ErrNotFound)

	none, err := f.svc.ListMonthExpenses(ctx, sess.ID, ym(2030, time.March))
	require.NoError(t, err)
	assert.Empty(t, none)
}
