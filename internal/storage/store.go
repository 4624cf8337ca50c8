package storage

import (
	"context"
	"time"

	"sharedspese/internal/core"
)

// MaxSyncAttempts is the number of failed syncs after which an allocation
// leaves the reconcile candidates. Regenerating its month resets the count.
const MaxSyncAttempts = 10

// SessionStore persists sessions, their participants and their months.
type SessionStore interface {
	// GetSession loads the session with participants and every month.
	GetSession(ctx context.Context, id string) (*core.Session, error)
	// SaveSession upserts the session row and replaces its participants.
	SaveSession(ctx context.Context, s *core.Session) error
	// SaveMonths upserts the given months and replaces their expenses.
	SaveMonths(ctx context.Context, sessionID string, months []*core.Month) error
	// ListActivePermanentSessions returns ids of non-archived permanent sessions.
	ListActivePermanentSessions(ctx context.Context) ([]string, error)
}

// AllocationStore persists the per-session allocation ledger.
type AllocationStore interface {
	GetAllocation(ctx context.Context, id string) (*core.Allocation, error)
	// ReplaceMonthAllocations deletes every allocation of the month and
	// inserts allocs in their place.
	ReplaceMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth, allocs []core.Allocation) error
	ListMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth) ([]core.Allocation, error)
	ListSessionAllocations(ctx context.Context, sessionID string) ([]core.Allocation, error)
	// ListUserAllocations filters by status when status is not nil.
	ListUserAllocations(ctx context.Context, userID string, status *core.AllocationStatus) ([]core.Allocation, error)
	// UpdateAllocation writes status, PersonalExpenseID and UpdatedAt.
	UpdateAllocation(ctx context.Context, a core.Allocation) error
	// ListUnmirroredAllocations returns allocations without a mirror that
	// have failed fewer than MaxSyncAttempts syncs. Never-failed allocations
	// come first, oldest first, then the least recently failed.
	ListUnmirroredAllocations(ctx context.Context, limit int) ([]core.Allocation, error)
	// RecordSyncFailure counts one failed sync of the allocation at at.
	RecordSyncFailure(ctx context.Context, allocationID string, at time.Time) error
}

// PersonalExpenseStore persists per-user personal expenses, mirrors included.
type PersonalExpenseStore interface {
	GetPersonalExpense(ctx context.Context, id string) (*core.PersonalExpense, error)
	// FindMirrorByAllocation returns nil, nil when no mirror references the allocation.
	FindMirrorByAllocation(ctx context.Context, allocationID string) (*core.PersonalExpense, error)
	// FindMirrorByPeriod returns nil, nil when the user has no mirror for the period.
	FindMirrorByPeriod(ctx context.Context, userID, sessionID string, ym core.YearMonth) (*core.PersonalExpense, error)
	CreatePersonalExpense(ctx context.Context, p core.PersonalExpense) error
	UpdatePersonalExpense(ctx context.Context, p core.PersonalExpense) error
	DeletePersonalExpense(ctx context.Context, id string) error
	ListPersonalExpenses(ctx context.Context, userID string) ([]core.PersonalExpense, error)
	// DeleteMirrorsForPeriod removes the session's mirrors for ym whose
	// user is not in keepUserIDs. It returns how many were removed.
	DeleteMirrorsForPeriod(ctx context.Context, sessionID string, ym core.YearMonth, keepUserIDs []string) (int, error)
}

// UserStore reads user accounts owned by the auth collaborator.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	SaveUser(ctx context.Context, u core.User) error
}

// Store is the full persistence port of the engine.
type Store interface {
	SessionStore
	AllocationStore
	PersonalExpenseStore
	UserStore

	// Atomic runs fn inside one transaction. Either every write made
	// through tx commits or none does.
	Atomic(ctx context.Context, fn func(tx Store) error) error
}
