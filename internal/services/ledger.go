// Package services implements the shared-session engine: the calendar
// service that records raw expenses, the month generator that keeps
// permanent sessions materialised, and the sync orchestrator that mirrors
// allocations into personal expense lists.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"sharedspese/internal/allocation"
	"sharedspese/internal/calendar"
	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/storage"
)

// Ledger holds what the calendar service and the month generator share:
// the store, the per-session mutation lock and the orchestrator that runs
// after every commit.
type Ledger struct {
	store storage.Store
	sync  *SyncOrchestrator
	locks *lease.KeyedMutex
	now   func() time.Time
	newID func() string
}

// NewLedger creates a ledger over store. sync may be nil, in which case
// allocations are written but never mirrored.
func NewLedger(store storage.Store, sync *SyncOrchestrator) *Ledger {
	return &Ledger{
		store: store,
		sync:  sync,
		locks: lease.NewKeyedMutex(),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
}

// WithClock replaces the ledger's time source.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

// Store returns the underlying store.
func (l *Ledger) Store() storage.Store { return l.store }

// mutation edits a session inside a transaction. It returns the months
// whose allocations must be regenerated.
type mutation func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error)

// ChangeResult is what a committed session change produced: the session
// as written, the regenerated months and their allocations, and the
// outcome of mirroring those allocations.
type ChangeResult struct {
	Session     *core.Session
	Touched     []core.YearMonth
	Allocations []core.Allocation
	Sync        SyncReport
}

// isDomainError reports errors the caller must see unchanged; retrying
// them cannot succeed.
func isDomainError(err error) bool {
	var failure *core.SyncFailure
	return errors.Is(err, core.ErrValidation) ||
		errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrForbidden) ||
		errors.Is(err, core.ErrMirrorReadOnly) ||
		errors.Is(err, core.ErrInvalidAmount) ||
		errors.Is(err, core.ErrEmptyName) ||
		errors.Is(err, core.ErrEmptyDescription) ||
		errors.As(err, &failure)
}

// atomic runs fn in a store transaction, retrying once on a store
// failure. fn must not leak state between attempts.
func (l *Ledger) atomic(ctx context.Context, op string, fn func(tx storage.Store) error) error {
	err := l.store.Atomic(ctx, fn)
	if err == nil || isDomainError(err) || ctx.Err() != nil {
		return err
	}

	slog.WarnContext(ctx, "Transaction failed, retrying",
		"operation", op,
		"error", err)

	err = l.store.Atomic(ctx, fn)
	if err == nil || isDomainError(err) {
		return err
	}
	return &core.StoreTransactionError{Op: op, Err: err}
}

// mutate loads the session under its lock, applies fn, regenerates the
// touched months and commits. The resulting allocations are synced after
// the commit and after the lock is released.
func (l *Ledger) mutate(ctx context.Context, op, sessionID string, fn mutation) (*ChangeResult, error) {
	res, err := l.commit(ctx, op, sessionID, fn)
	if err != nil {
		return nil, err
	}
	if l.sync != nil && len(res.Allocations) > 0 {
		res.Sync = l.sync.SyncBatch(ctx, res.Allocations)
	}
	return res, nil
}

func (l *Ledger) commit(ctx context.Context, op, sessionID string, fn mutation) (*ChangeResult, error) {
	unlock := l.locks.Lock(sessionID)
	defer unlock()

	var res *ChangeResult
	err := l.atomic(ctx, op, func(tx storage.Store) error {
		res = nil
		sess, err := tx.GetSession(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		if sess.IsArchived() {
			return core.Invalid("session", "session %s is archived", sessionID)
		}

		cal := calendar.New(sess.Months)
		touched, err := fn(tx, sess, cal)
		if err != nil {
			return err
		}

		allocs, err := l.regenerate(ctx, tx, sess, cal, touched)
		if err != nil {
			return err
		}
		sess.Months = cal.Months()
		res = &ChangeResult{Session: sess, Touched: uniqueMonths(touched), Allocations: allocs}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// regenerate rewrites the allocations of every touched month from the
// month's total and distribution, and persists the months themselves.
func (l *Ledger) regenerate(ctx context.Context, tx storage.Store, sess *core.Session, cal *calendar.Calendar, touched []core.YearMonth) ([]core.Allocation, error) {
	touched = uniqueMonths(touched)
	if len(touched) == 0 {
		return nil, nil
	}

	equal := allocation.EqualSplit(sess.AcceptedParticipants())
	months := make([]*core.Month, 0, len(touched))
	for _, ym := range touched {
		m, _ := cal.Ensure(ym)
		if len(m.Distribution) == 0 {
			m.Distribution = append([]core.Share(nil), equal...)
		}
		months = append(months, m)
	}

	if err := tx.SaveMonths(ctx, sess.ID, months); err != nil {
		return nil, fmt.Errorf("save months: %w", err)
	}

	var all []core.Allocation
	for _, m := range months {
		allocs, err := l.allocate(ctx, tx, sess, m)
		if err != nil {
			return nil, err
		}
		if err := tx.ReplaceMonthAllocations(ctx, sess.ID, m.YearMonth, allocs); err != nil {
			return nil, fmt.Errorf("replace allocations for %s: %w", m.YearMonth, err)
		}

		keep := make([]string, 0, len(allocs))
		for _, a := range allocs {
			keep = append(keep, a.UserID)
		}
		removed, err := tx.DeleteMirrorsForPeriod(ctx, sess.ID, m.YearMonth, keep)
		if err != nil {
			return nil, fmt.Errorf("delete orphan mirrors for %s: %w", m.YearMonth, err)
		}
		if removed > 0 {
			slog.InfoContext(ctx, "Removed orphan mirrors",
				"session_id", sess.ID,
				"period", m.YearMonth.String(),
				"count", removed)
		}

		all = append(all, allocs...)
	}

	slog.DebugContext(ctx, "Regenerated allocations",
		"session_id", sess.ID,
		"months", len(months),
		"allocations", len(all))

	return all, nil
}

// allocate computes the allocations of one month. Identity, status and
// mirror link of a user's previous allocation for the month are kept.
func (l *Ledger) allocate(ctx context.Context, tx storage.Store, sess *core.Session, m *core.Month) ([]core.Allocation, error) {
	if m.Total.IsZero() {
		return nil, nil
	}

	amounts, err := allocation.ComputeShares(m.Total, m.Distribution)
	if err != nil {
		return nil, fmt.Errorf("compute shares for %s: %w", m.YearMonth, err)
	}

	prev, err := tx.ListMonthAllocations(ctx, sess.ID, m.YearMonth)
	if err != nil {
		return nil, fmt.Errorf("list allocations for %s: %w", m.YearMonth, err)
	}
	byUser := make(map[string]core.Allocation, len(prev))
	for _, a := range prev {
		byUser[a.UserID] = a
	}

	now := l.now()
	out := make([]core.Allocation, 0, len(amounts))
	for i, sa := range amounts {
		if sa.Amount.Cents <= 0 {
			continue
		}
		share := m.Distribution[i]
		a := core.Allocation{
			ID:              l.newID(),
			SessionID:       sess.ID,
			UserID:          sa.ParticipantID,
			ParticipantName: share.Name,
			Year:            m.Year,
			Month:           m.Month,
			Amount:          sa.Amount,
			Percentage:      share.Percentage,
			Total:           m.Total,
			Currency:        sess.EffectiveCurrency(),
			Status:          core.StatusPending,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if p, ok := byUser[a.UserID]; ok {
			a.ID = p.ID
			a.Status = p.Status
			a.PersonalExpenseID = p.PersonalExpenseID
			a.CreatedAt = p.CreatedAt
		}
		out = append(out, a)
	}
	return out, nil
}

func uniqueMonths(in []core.YearMonth) []core.YearMonth {
	seen := make(map[core.YearMonth]struct{}, len(in))
	out := make([]core.YearMonth, 0, len(in))
	for _, ym := range in {
		if _, ok := seen[ym]; ok {
			continue
		}
		seen[ym] = struct{}{}
		out = append(out, ym)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// resolveShares validates shares against the session's accepted
// participants and fills missing names. Nil shares mean an equal split.
func resolveShares(sess *core.Session, shares []core.Share) ([]core.Share, error) {
	if shares == nil {
		shares = allocation.EqualSplit(sess.AcceptedParticipants())
	}
	if err := allocation.ValidateShares(shares); err != nil {
		return nil, err
	}
	out := make([]core.Share, len(shares))
	for i, s := range shares {
		p, ok := sess.Participant(s.ParticipantID)
		if !ok {
			return nil, core.Invalid("shares", "participant %s is not an accepted member of session %s", s.ParticipantID, sess.ID)
		}
		if s.Name == "" {
			s.Name = p.Name
		}
		out[i] = s
	}
	return out, nil
}

// overwriteDistribution sets shares on every month of months and returns
// their periods.
func overwriteDistribution(cal *calendar.Calendar, months []*core.Month, shares []core.Share) ([]core.YearMonth, error) {
	touched := make([]core.YearMonth, 0, len(months))
	for _, m := range months {
		if err := cal.SetDistribution(m.YearMonth, shares); err != nil {
			return nil, err
		}
		touched = append(touched, m.YearMonth)
	}
	return touched, nil
}
