// Package calendar implements the per-session year/month aggregate.
//
// Months are kept in an arena indexed by core.YearMonth; callers mutate
// them only through Calendar methods, which keep every month's Total equal
// to the sum of its expenses.
package calendar

import (
	"sort"

	"sharedspese/internal/allocation"
	"sharedspese/internal/core"
)

type Calendar struct {
	months map[core.YearMonth]*core.Month
}

// New builds a calendar over the given months. Months are cloned.
func New(months []*core.Month) *Calendar {
	c := &Calendar{months: make(map[core.YearMonth]*core.Month, len(months))}
	for _, m := range months {
		cm := m.Clone()
		cm.Recalculate()
		c.months[m.YearMonth] = cm
	}
	return c
}

// Init creates every month of `years` consecutive years starting at
// firstYear, each empty and carrying shares.
func Init(firstYear, years int, shares []core.Share) *Calendar {
	c := New(nil)
	start := core.YearMonth{Year: firstYear, Month: 1}
	for i := 0; i < years*12; i++ {
		m, _ := c.Ensure(start.AddMonths(i))
		m.Distribution = append([]core.Share(nil), shares...)
	}
	return c
}

func (c *Calendar) Len() int { return len(c.months) }

func (c *Calendar) Month(ym core.YearMonth) (*core.Month, bool) {
	m, ok := c.months[ym]
	return m, ok
}

// Ensure returns the month bucket for ym, creating an empty one if needed.
func (c *Calendar) Ensure(ym core.YearMonth) (*core.Month, bool) {
	if m, ok := c.months[ym]; ok {
		return m, false
	}
	m := &core.Month{YearMonth: ym}
	c.months[ym] = m
	return m, true
}

// Months returns every month in chronological order.
func (c *Calendar) Months() []*core.Month {
	out := make([]*core.Month, 0, len(c.months))
	for _, m := range c.months {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth.Before(out[j].YearMonth) })
	return out
}

// From returns the months at or after ym in chronological order.
func (c *Calendar) From(ym core.YearMonth) []*core.Month {
	var out []*core.Month
	for _, m := range c.Months() {
		if !m.YearMonth.Before(ym) {
			out = append(out, m)
		}
	}
	return out
}

// Latest returns the furthest materialised month.
func (c *Calendar) Latest() (core.YearMonth, bool) {
	var latest core.YearMonth
	found := false
	for ym := range c.months {
		if !found || ym.After(latest) {
			latest, found = ym, true
		}
	}
	return latest, found
}

// Append adds e to the bucket for ym (created if missing).
func (c *Calendar) Append(ym core.YearMonth, e core.Expense) *core.Month {
	m, _ := c.Ensure(ym)
	m.Expenses = append(m.Expenses, e)
	m.Recalculate()
	return m
}

// FindExpense locates an expense instance by id.
func (c *Calendar) FindExpense(id string) (core.YearMonth, core.Expense, bool) {
	for ym, m := range c.months {
		for _, e := range m.Expenses {
			if e.ID == id {
				return ym, e, true
			}
		}
	}
	return core.YearMonth{}, core.Expense{}, false
}

// ReplaceExpense overwrites the instance with the same id in month ym.
func (c *Calendar) ReplaceExpense(ym core.YearMonth, e core.Expense) bool {
	m, ok := c.months[ym]
	if !ok {
		return false
	}
	for i := range m.Expenses {
		if m.Expenses[i].ID == e.ID {
			m.Expenses[i] = e
			m.Recalculate()
			return true
		}
	}
	return false
}

// RemoveExpense deletes one instance from month ym.
func (c *Calendar) RemoveExpense(ym core.YearMonth, id string) (core.Expense, bool) {
	m, ok := c.months[ym]
	if !ok {
		return core.Expense{}, false
	}
	for i, e := range m.Expenses {
		if e.ID == id {
			m.Expenses = append(m.Expenses[:i:i], m.Expenses[i+1:]...)
			m.Recalculate()
			return e, true
		}
	}
	return core.Expense{}, false
}

// RemoveSeries deletes every instance belonging to the same series as
// origin in months at or after from. It returns the touched months.
func (c *Calendar) RemoveSeries(origin core.Expense, from core.YearMonth) []core.YearMonth {
	var touched []core.YearMonth
	for _, m := range c.From(from) {
		kept := m.Expenses[:0:0]
		for _, e := range m.Expenses {
			if e.ID == origin.ID || SameSeries(origin, e) {
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) != len(m.Expenses) {
			m.Expenses = kept
			m.Recalculate()
			touched = append(touched, m.YearMonth)
		}
	}
	return touched
}

// SetDistribution overwrites the split of month ym.
func (c *Calendar) SetDistribution(ym core.YearMonth, shares []core.Share) error {
	if err := allocation.ValidateShares(shares); err != nil {
		return err
	}
	m, _ := c.Ensure(ym)
	m.Distribution = append([]core.Share(nil), shares...)
	return nil
}

// SameSeries reports whether b is a projected copy of the same recurring
// series as a. Copies written with a recurrence group id match on it;
// only when neither side has one do they fall back to the
// description/amount/payer signature.
func SameSeries(a, b core.Expense) bool {
	if !a.IsRecurring || !b.IsRecurring {
		return false
	}
	if a.RecurrenceGroupID != "" || b.RecurrenceGroupID != "" {
		return a.RecurrenceGroupID == b.RecurrenceGroupID
	}
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.Amount == b.Amount &&
		a.PayerID == b.PayerID
}
