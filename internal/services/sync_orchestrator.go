package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"sharedspese/internal/cache"
	"sharedspese/internal/core"
	"sharedspese/internal/lease"
	"sharedspese/internal/storage"
)

// MirrorCategory is the category given to mirrored personal expenses.
const MirrorCategory = "shared"

// SyncOutcome says what a sync did to the mirror.
type SyncOutcome string

const (
	SyncCreated  SyncOutcome = "created"
	SyncUpdated  SyncOutcome = "updated"
	SyncInFlight SyncOutcome = "in_flight"
)

// SyncResult describes one allocation sync.
type SyncResult struct {
	AllocationID      string
	PersonalExpenseID string
	Outcome           SyncOutcome
}

// SyncReport collects the outcome of a batch. A failure never stops the
// remaining allocations.
type SyncReport struct {
	Synced   []SyncResult
	InFlight []string
	Failures []*core.SyncFailure
}

// OK reports whether every allocation was mirrored or already being mirrored.
func (r SyncReport) OK() bool { return len(r.Failures) == 0 }

// MirrorPublisher hands failed syncs to a retry transport.
type MirrorPublisher interface {
	PublishMirrorSync(ctx context.Context, allocationID, reason string) error
}

// SyncOrchestrator keeps each allocation's personal-expense mirror in step
// with the allocation.
type SyncOrchestrator struct {
	store     storage.Store
	guard     lease.Guard
	users     *cache.LRUCache[core.User]
	publisher MirrorPublisher
	now       func() time.Time
	newID     func() string
}

// NewSyncOrchestrator creates an orchestrator. users and publisher are
// optional.
func NewSyncOrchestrator(store storage.Store, guard lease.Guard, users *cache.LRUCache[core.User], publisher MirrorPublisher) *SyncOrchestrator {
	if guard == nil {
		guard = lease.NewLocal()
	}
	return &SyncOrchestrator{
		store:     store,
		guard:     guard,
		users:     users,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// WithClock replaces the orchestrator's time source.
func (o *SyncOrchestrator) WithClock(now func() time.Time) *SyncOrchestrator {
	o.now = now
	return o
}

// MirrorDescription renders the description of a mirrored expense, e.g.
// "Casa - 60% (January 2024)".
func MirrorDescription(sessionName string, a core.Allocation) string {
	return fmt.Sprintf("%s - %s%% (%s %d)", sessionName, a.Percentage.Round(2).String(), a.Month, a.Year)
}

func syncKey(allocationID string) string {
	return "sync:" + allocationID
}

// SyncAllocationToPersonalExpense creates or updates the mirror of one
// allocation. When another sync of the same allocation is running it
// returns an in-flight result and does nothing. Failures are returned as
// *core.SyncFailure.
func (o *SyncOrchestrator) SyncAllocationToPersonalExpense(ctx context.Context, allocationID string) (*SyncResult, error) {
	release, acquired, err := o.guard.TryAcquire(ctx, syncKey(allocationID))
	if err != nil {
		return nil, &core.SyncFailure{AllocationID: allocationID, Err: fmt.Errorf("acquire sync lease: %w", err)}
	}
	if !acquired {
		slog.DebugContext(ctx, "Sync already in flight", "allocation_id", allocationID)
		return &SyncResult{AllocationID: allocationID, Outcome: SyncInFlight}, nil
	}
	defer release()

	var (
		res    *SyncResult
		userID string
	)
	err = o.store.Atomic(ctx, func(tx storage.Store) error {
		a, err := tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return fmt.Errorf("load allocation: %w", err)
		}
		userID = a.UserID

		sess, err := tx.GetSession(ctx, a.SessionID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		user, err := o.user(ctx, tx, a.UserID)
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}

		mirror, err := o.findMirror(ctx, tx, *a)
		if err != nil {
			return err
		}

		res, err = o.writeMirror(ctx, tx, sess, user, *a, mirror)
		return err
	})
	if err != nil {
		slog.WarnContext(ctx, "Allocation sync failed",
			"allocation_id", allocationID,
			"user_id", userID,
			"error", err)
		o.recordFailure(ctx, allocationID)
		return nil, &core.SyncFailure{AllocationID: allocationID, UserID: userID, Err: err}
	}

	slog.DebugContext(ctx, "Allocation synced",
		"allocation_id", allocationID,
		"mirror_id", res.PersonalExpenseID,
		"outcome", string(res.Outcome))
	return res, nil
}

// recordFailure moves the allocation behind healthy reconcile candidates.
// It runs outside the failed transaction.
func (o *SyncOrchestrator) recordFailure(ctx context.Context, allocationID string) {
	if ctx.Err() != nil {
		return
	}
	err := o.store.RecordSyncFailure(ctx, allocationID, o.now())
	if err == nil || errors.Is(err, core.ErrNotFound) {
		return
	}
	slog.ErrorContext(ctx, "Failed to record sync failure",
		"allocation_id", allocationID,
		"error", err)
}

func (o *SyncOrchestrator) user(ctx context.Context, tx storage.Store, id string) (core.User, error) {
	load := func(ctx context.Context) (core.User, error) {
		u, err := tx.GetUser(ctx, id)
		if err != nil {
			return core.User{}, err
		}
		return *u, nil
	}
	if o.users == nil {
		return load(ctx)
	}
	return o.users.GetOrLoad(ctx, id, load)
}

// findMirror looks the mirror up by the allocation's stored link, then by
// allocation id, then by (user, session, period). First match wins.
func (o *SyncOrchestrator) findMirror(ctx context.Context, tx storage.Store, a core.Allocation) (*core.PersonalExpense, error) {
	if a.PersonalExpenseID != "" {
		p, err := tx.GetPersonalExpense(ctx, a.PersonalExpenseID)
		switch {
		case err == nil && p.IsFromSharedSession && p.UserID == a.UserID:
			return p, nil
		case err != nil && !errors.Is(err, core.ErrNotFound):
			return nil, fmt.Errorf("load linked mirror: %w", err)
		}
	}

	p, err := tx.FindMirrorByAllocation(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("find mirror by allocation: %w", err)
	}
	if p != nil {
		return p, nil
	}

	p, err = tx.FindMirrorByPeriod(ctx, a.UserID, a.SessionID, a.Period())
	if err != nil {
		return nil, fmt.Errorf("find mirror by period: %w", err)
	}
	return p, nil
}

func (o *SyncOrchestrator) writeMirror(ctx context.Context, tx storage.Store, sess *core.Session, user core.User, a core.Allocation, mirror *core.PersonalExpense) (*SyncResult, error) {
	now := o.now()
	currency := a.Currency
	if currency == "" {
		currency = user.Currency
	}
	if currency == "" {
		currency = core.DefaultCurrency
	}

	outcome := SyncUpdated
	if mirror == nil {
		outcome = SyncCreated
		mirror = &core.PersonalExpense{
			ID:                  o.newID(),
			UserID:              a.UserID,
			Kind:                core.KindExpense,
			Category:            MirrorCategory,
			IsFromSharedSession: true,
			CreatedAt:           now,
		}
	}

	mirror.Name = sess.Name
	mirror.Description = MirrorDescription(sess.Name, a)
	mirror.Amount = a.Amount
	mirror.Currency = currency
	mirror.Date = a.Period().Day(core.MirrorDay)
	mirror.IsRecurring = sess.IsPermanent()
	mirror.AllocationID = a.ID
	mirror.AllocationStatus = a.Status
	mirror.SessionRef = &core.SessionReference{
		SessionID:   sess.ID,
		SessionName: sess.Name,
		Percentage:  a.Percentage,
		Total:       a.Total,
		Year:        a.Year,
		Month:       a.Month,
	}
	mirror.UpdatedAt = now

	if outcome == SyncCreated {
		if err := tx.CreatePersonalExpense(ctx, *mirror); err != nil {
			return nil, fmt.Errorf("create mirror: %w", err)
		}
	} else if err := tx.UpdatePersonalExpense(ctx, *mirror); err != nil {
		return nil, fmt.Errorf("update mirror: %w", err)
	}

	if a.PersonalExpenseID != mirror.ID {
		a.PersonalExpenseID = mirror.ID
		a.UpdatedAt = now
		if err := tx.UpdateAllocation(ctx, a); err != nil {
			return nil, fmt.Errorf("link mirror to allocation: %w", err)
		}
	}

	return &SyncResult{AllocationID: a.ID, PersonalExpenseID: mirror.ID, Outcome: outcome}, nil
}

// SyncBatch syncs each allocation independently. Failed and in-flight
// allocations are handed to the publisher when one is configured.
func (o *SyncOrchestrator) SyncBatch(ctx context.Context, allocations []core.Allocation) SyncReport {
	var report SyncReport
	for _, a := range allocations {
		res, err := o.SyncAllocationToPersonalExpense(ctx, a.ID)
		if err != nil {
			var failure *core.SyncFailure
			if !errors.As(err, &failure) {
				failure = &core.SyncFailure{AllocationID: a.ID, UserID: a.UserID, Err: err}
			}
			report.Failures = append(report.Failures, failure)
			o.publish(ctx, a.ID, failure.Error())
			continue
		}
		if res.Outcome == SyncInFlight {
			report.InFlight = append(report.InFlight, a.ID)
			o.publish(ctx, a.ID, "sync in flight")
			continue
		}
		report.Synced = append(report.Synced, *res)
	}

	if len(report.Failures) > 0 {
		slog.WarnContext(ctx, "Sync batch completed with failures",
			"synced", len(report.Synced),
			"in_flight", len(report.InFlight),
			"failed", len(report.Failures))
	}
	return report
}

func (o *SyncOrchestrator) publish(ctx context.Context, allocationID, reason string) {
	if o.publisher == nil {
		return
	}
	if err := o.publisher.PublishMirrorSync(ctx, allocationID, reason); err != nil {
		slog.ErrorContext(ctx, "Failed to publish mirror sync retry",
			"allocation_id", allocationID,
			"error", err)
	}
}
