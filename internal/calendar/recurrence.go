// This file implements the strategy registry for projecting an expense
// into the months it must appear in.

package calendar

import (
	"fmt"
	"sync"
	"time"

	"sharedspese/internal/core"
)

// DefaultHorizonYears bounds recurring expenses without an explicit end.
const DefaultHorizonYears = 3

// Recurrence names a projection policy.
type Recurrence string

const (
	Once    Recurrence = "once"
	Monthly Recurrence = "monthly"
	Period  Recurrence = "period"
)

// Policy decides which months an expense is copied into.
type Policy interface {
	// Occurrences returns the dates of every copy, origin first.
	Occurrences(origin, end time.Time) []time.Time
}

// OncePolicy keeps the expense in its own month only.
type OncePolicy struct{}

func (OncePolicy) Occurrences(origin, _ time.Time) []time.Time {
	return []time.Time{origin}
}

// MonthlyPolicy repeats the expense every month for HorizonYears.
type MonthlyPolicy struct {
	HorizonYears int
}

func (p MonthlyPolicy) Occurrences(origin, _ time.Time) []time.Time {
	years := p.HorizonYears
	if years <= 0 {
		years = DefaultHorizonYears
	}
	return monthlyUntil(origin, origin.AddDate(years, 0, 0))
}

// PeriodPolicy repeats the expense every month until an explicit end date.
type PeriodPolicy struct{}

func (PeriodPolicy) Occurrences(origin, end time.Time) []time.Time {
	if end.IsZero() {
		return MonthlyPolicy{}.Occurrences(origin, end)
	}
	return monthlyUntil(origin, end)
}

// monthlyUntil yields the origin day in each month while not after end.
// Days missing from short months are clamped to the month's last day.
func monthlyUntil(origin, end time.Time) []time.Time {
	start := core.YM(origin)
	var out []time.Time
	for i := 0; ; i++ {
		d := start.AddMonths(i).Day(origin.Day())
		if d.After(end) {
			break
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = append(out, origin)
	}
	return out
}

var policiesMu sync.RWMutex

var policies = map[Recurrence]Policy{
	Once:    OncePolicy{},
	Monthly: MonthlyPolicy{HorizonYears: DefaultHorizonYears},
	Period:  PeriodPolicy{},
}

// RecurrenceOf classifies an expense: an explicit end date makes it
// period-bounded, the recurring flag alone makes it monthly.
func RecurrenceOf(e core.Expense) Recurrence {
	switch {
	case !e.RecurrenceEnd.IsZero():
		return Period
	case e.IsRecurring:
		return Monthly
	default:
		return Once
	}
}

// PolicyFor returns the policy registered for the expense's recurrence.
func PolicyFor(e core.Expense) (Policy, error) {
	r := RecurrenceOf(e)
	policiesMu.RLock()
	p, ok := policies[r]
	policiesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown recurrence: %s", r)
	}
	return p, nil
}

// RegisterPolicy overrides or adds the policy for a recurrence kind.
func RegisterPolicy(r Recurrence, p Policy) {
	policiesMu.Lock()
	defer policiesMu.Unlock()
	policies[r] = p
}
