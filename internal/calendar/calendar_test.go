package calendar

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sharedspese/internal/core"
)

func ym(y int, m time.Month) core.YearMonth { return core.YearMonth{Year: y, Month: m} }

func TestInitCreatesThreeYears(t *testing.T) {
	shares := []core.Share{{ParticipantID: "a", Percentage: decimal.NewFromInt(100)}}
	c := Init(2024, 3, shares)

	assert.Equal(t, 36, c.Len())
	latest, ok := c.Latest()
	require.True(t, ok)
	assert.Equal(t, ym(2026, time.December), latest)

	m, ok := c.Month(ym(2025, time.June))
	require.True(t, ok)
	require.Len(t, m.Distribution, 1)
	assert.True(t, m.Total.IsZero())
}

func TestAppendAndRemoveKeepTotals(t *testing.T) {
	c := New(nil)
	c.Append(ym(2024, 1), core.Expense{ID: "e1", Amount: core.Cents(1000)})
	m := c.Append(ym(2024, 1), core.Expense{ID: "e2", Amount: core.Cents(550)})
	assert.Equal(t, int64(1550), m.Total.Cents)

	removed, ok := c.RemoveExpense(ym(2024, 1), "e1")
	require.True(t, ok)
	assert.Equal(t, "e1", removed.ID)
	assert.Equal(t, int64(550), m.Total.Cents)

	_, ok = c.RemoveExpense(ym(2024, 1), "missing")
	assert.False(t, ok)
}

func TestRemoveSeriesByGroupAndSignature(t *testing.T) {
	c := New(nil)
	grouped := core.Expense{Name: "Rent", Amount: core.Cents(100), PayerID: "a", IsRecurring: true, RecurrenceGroupID: "g1"}
	lookalike := core.Expense{Name: "Rent", Amount: core.Cents(100), PayerID: "a", IsRecurring: true, RecurrenceGroupID: "g2"}
	legacy := core.Expense{Name: "Gym", Amount: core.Cents(30), PayerID: "b", IsRecurring: true}
	for i := 0; i < 4; i++ {
		month := ym(2024, 1).AddMonths(i)
		g := grouped
		g.ID = "g1-" + month.String()
		l := lookalike
		l.ID = "g2-" + month.String()
		lg := legacy
		lg.ID = "legacy-" + month.String()
		c.Append(month, g)
		c.Append(month, l)
		c.Append(month, lg)
	}

	origin := grouped
	origin.ID = "g1-2024-02"
	touched := c.RemoveSeries(origin, ym(2024, 2))
	assert.Equal(t, []core.YearMonth{ym(2024, 2), ym(2024, 3), ym(2024, 4)}, touched)

	jan, _ := c.Month(ym(2024, 1))
	assert.Len(t, jan.Expenses, 3, "months before the origin are untouched")
	mar, _ := c.Month(ym(2024, 3))
	assert.Len(t, mar.Expenses, 2, "the look-alike series with another group id survives")

	legacyOrigin := legacy
	legacyOrigin.ID = "legacy-2024-01"
	touched = c.RemoveSeries(legacyOrigin, ym(2024, 1))
	assert.Len(t, touched, 4)
	assert.Len(t, jan.Expenses, 2)
}

func TestSameSeries(t *testing.T) {
	base := core.Expense{Name: "Rent", Amount: core.Cents(100), PayerID: "a", IsRecurring: true}
	grouped := base
	grouped.RecurrenceGroupID = "g1"
	other := base
	other.RecurrenceGroupID = "g2"
	oneOff := base
	oneOff.IsRecurring = false

	tests := []struct {
		name string
		a, b core.Expense
		want bool
	}{
		{"same group", grouped, grouped, true},
		{"different groups", grouped, other, false},
		{"group on one side only", grouped, base, false},
		{"group on the other side only", base, grouped, false},
		{"signature without groups", base, base, true},
		{"not recurring", base, oneOff, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SameSeries(tt.a, tt.b))
		})
	}
}

func TestSetDistributionValidates(t *testing.T) {
	c := New(nil)
	err := c.SetDistribution(ym(2024, 1), []core.Share{{ParticipantID: "a", Percentage: decimal.NewFromInt(90)}})
	require.ErrorIs(t, err, core.ErrValidation)
	_, ok := c.Month(ym(2024, 1))
	assert.False(t, ok, "invalid distribution must not create the month")
}

func TestFromAndMonthsAreOrdered(t *testing.T) {
	c := New(nil)
	for _, m := range []core.YearMonth{ym(2025, 3), ym(2024, 12), ym(2025, 1)} {
		c.Ensure(m)
	}
	got := c.From(ym(2025, 1))
	require.Len(t, got, 2)
	assert.Equal(t, ym(2025, 1), got[0].YearMonth)
	assert.Equal(t, ym(2025, 3), got[1].YearMonth)
}
