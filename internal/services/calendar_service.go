package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"sharedspese/internal/allocation"
	"sharedspese/internal/calendar"
	"sharedspese/internal/core"
	"sharedspese/internal/storage"
)

// CalendarYears is how many calendar years a new session materialises.
const CalendarYears = 3

// ExpenseInput is what a participant submits for a raw session expense.
// A non-zero RecurrenceEnd implies Recurring.
type ExpenseInput struct {
	Name          string
	Description   string
	Amount        core.Money
	Date          time.Time
	Category      string
	PayerID       string
	Recurring     bool
	RecurrenceEnd time.Time
}

// SessionInput describes a new session.
type SessionInput struct {
	Name     string
	OwnerID  string
	Currency string
	Type     core.SessionType
}

// ParticipantInput describes a member added to a session. Members with a
// UserID join accepted; members known only by email stay pending.
type ParticipantInput struct {
	UserID    string
	Name      string
	Email     string
	CanEdit   bool
	CanDelete bool
}

// AddExpenseResult is returned by AddExpense.
type AddExpenseResult struct {
	ChangeResult
	Expense core.Expense
	Copies  int
}

// RemoveExpenseResult is returned by RemoveExpense.
type RemoveExpenseResult struct {
	ChangeResult
	Removed int
}

// StatusResult is returned by SetAllocationStatus.
type StatusResult struct {
	Allocation core.Allocation
	Sync       SyncReport
}

// CalendarService records raw expenses in session calendars and keeps the
// allocation ledger and the personal mirrors in step with them.
type CalendarService struct {
	*Ledger
}

func NewCalendarService(l *Ledger) *CalendarService {
	return &CalendarService{Ledger: l}
}

func (in ExpenseInput) expense(id string, now time.Time) core.Expense {
	e := core.Expense{
		ID:            id,
		Name:          strings.TrimSpace(in.Name),
		Description:   strings.TrimSpace(in.Description),
		Amount:        in.Amount,
		Date:          in.Date,
		Category:      strings.TrimSpace(in.Category),
		PayerID:       in.PayerID,
		IsRecurring:   in.Recurring || !in.RecurrenceEnd.IsZero(),
		RecurrenceEnd: in.RecurrenceEnd,
		CreatedAt:     now,
	}
	return e
}

// AddExpense records an expense and every projected copy its recurrence
// policy asks for, then regenerates and syncs the touched months.
func (s *CalendarService) AddExpense(ctx context.Context, actorID, sessionID string, in ExpenseInput) (*AddExpenseResult, error) {
	origin := in.expense(s.newID(), s.now())
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if origin.IsRecurring {
		origin.RecurrenceGroupID = s.newID()
	}
	policy, err := calendar.PolicyFor(origin)
	if err != nil {
		return nil, core.Invalid("recurrence", "%v", err)
	}

	var copies int
	res, err := s.mutate(ctx, "add_expense", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := sess.Authorize(actorID, false, false); err != nil {
			return nil, err
		}
		if origin.PayerID != "" {
			if _, ok := sess.Participant(origin.PayerID); !ok {
				return nil, core.Invalid("payer", "%s is not a member of the session", origin.PayerID)
			}
		}

		dates := policy.Occurrences(origin.Date, origin.RecurrenceEnd)
		copies = len(dates)
		touched := make([]core.YearMonth, 0, len(dates))
		for i, d := range dates {
			e := origin
			if i > 0 {
				e.ID = s.newID()
			}
			e.Date = d
			cal.Append(core.YM(d), e)
			touched = append(touched, core.YM(d))
		}
		return touched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("add expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense added",
		"session_id", sessionID,
		"expense_id", origin.ID,
		"amount_cents", origin.Amount.Cents,
		"recurrence", string(calendar.RecurrenceOf(origin)),
		"copies", copies,
		"allocations", len(res.Allocations))

	return &AddExpenseResult{ChangeResult: *res, Expense: origin, Copies: copies}, nil
}

// UpdateExpense edits one expense instance. Moving it to another month
// regenerates both months.
func (s *CalendarService) UpdateExpense(ctx context.Context, actorID, sessionID, expenseID string, in ExpenseInput) (*ChangeResult, error) {
	res, err := s.mutate(ctx, "update_expense", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := sess.Authorize(actorID, true, false); err != nil {
			return nil, err
		}
		ym, old, ok := cal.FindExpense(expenseID)
		if !ok {
			return nil, core.NotFound("expense", expenseID)
		}

		e := in.expense(old.ID, old.CreatedAt)
		e.IsRecurring = old.IsRecurring
		e.RecurrenceGroupID = old.RecurrenceGroupID
		e.RecurrenceEnd = old.RecurrenceEnd
		if err := e.Validate(); err != nil {
			return nil, err
		}

		target := core.YM(e.Date)
		if target == ym {
			cal.ReplaceExpense(ym, e)
			return []core.YearMonth{ym}, nil
		}
		cal.RemoveExpense(ym, old.ID)
		cal.Append(target, e)
		return []core.YearMonth{ym, target}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("update expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense updated",
		"session_id", sessionID,
		"expense_id", expenseID,
		"months", len(res.Touched))
	return res, nil
}

// RemoveExpense deletes an expense. For a recurring expense the instance
// and every later instance of its series go; earlier months stay.
func (s *CalendarService) RemoveExpense(ctx context.Context, actorID, sessionID, expenseID string) (*RemoveExpenseResult, error) {
	var removed int
	res, err := s.mutate(ctx, "remove_expense", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := sess.Authorize(actorID, false, true); err != nil {
			return nil, err
		}
		ym, e, ok := cal.FindExpense(expenseID)
		if !ok {
			return nil, core.NotFound("expense", expenseID)
		}

		before := countExpenses(cal)
		var touched []core.YearMonth
		if e.IsRecurring {
			touched = cal.RemoveSeries(e, ym)
		} else {
			cal.RemoveExpense(ym, expenseID)
			touched = []core.YearMonth{ym}
		}
		removed = before - countExpenses(cal)
		return touched, nil
	})
	if err != nil {
		return nil, fmt.Errorf("remove expense: %w", err)
	}

	slog.InfoContext(ctx, "Expense removed",
		"session_id", sessionID,
		"expense_id", expenseID,
		"removed", removed,
		"months", len(res.Touched))
	return &RemoveExpenseResult{ChangeResult: *res, Removed: removed}, nil
}

func countExpenses(cal *calendar.Calendar) int {
	n := 0
	for _, m := range cal.Months() {
		n += len(m.Expenses)
	}
	return n
}

// UpdateDistribution sets shares on month from and every later
// materialised month. Earlier months keep their split and allocations.
func (s *CalendarService) UpdateDistribution(ctx context.Context, actorID, sessionID string, shares []core.Share, from core.YearMonth) (*ChangeResult, error) {
	if !from.Valid() {
		return nil, core.Invalid("from", "invalid month %s", from)
	}
	if err := allocation.ValidateShares(shares); err != nil {
		return nil, err
	}

	res, err := s.mutate(ctx, "update_distribution", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := sess.Authorize(actorID, true, false); err != nil {
			return nil, err
		}
		resolved, err := resolveShares(sess, shares)
		if err != nil {
			return nil, err
		}
		months := cal.From(from)
		if len(months) == 0 {
			m, _ := cal.Ensure(from)
			months = []*core.Month{m}
		}
		return overwriteDistribution(cal, months, resolved)
	})
	if err != nil {
		return nil, fmt.Errorf("update distribution: %w", err)
	}

	slog.InfoContext(ctx, "Distribution updated",
		"session_id", sessionID,
		"from", from.String(),
		"shares", allocation.Describe(shares),
		"months", len(res.Touched))
	return res, nil
}

// SetAllocationStatus moves an allocation forward through
// pending, accepted, paid and re-syncs its mirror. Only the allocated
// user or the session owner may do so.
func (s *CalendarService) SetAllocationStatus(ctx context.Context, actorID, allocationID string, status core.AllocationStatus) (*StatusResult, error) {
	if !status.Valid() {
		return nil, core.Invalid("status", "unknown allocation status %q", status)
	}

	var updated core.Allocation
	err := s.atomic(ctx, "set_allocation_status", func(tx storage.Store) error {
		a, err := tx.GetAllocation(ctx, allocationID)
		if err != nil {
			return err
		}
		sess, err := tx.GetSession(ctx, a.SessionID)
		if err != nil {
			return err
		}
		if actorID != a.UserID && actorID != sess.OwnerID {
			return fmt.Errorf("user %s on allocation %s: %w", actorID, allocationID, core.ErrForbidden)
		}
		if a.Status.Regresses(status) {
			return core.Invalid("status", "cannot move allocation from %s back to %s", a.Status, status)
		}
		if a.Status != status {
			a.Status = status
			a.UpdatedAt = s.now()
			if err := tx.UpdateAllocation(ctx, *a); err != nil {
				return fmt.Errorf("update allocation: %w", err)
			}
		}
		updated = *a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("set allocation status: %w", err)
	}

	res := &StatusResult{Allocation: updated}
	if s.sync != nil {
		res.Sync = s.sync.SyncBatch(ctx, []core.Allocation{updated})
	}

	slog.InfoContext(ctx, "Allocation status updated",
		"allocation_id", allocationID,
		"status", string(status))
	return res, nil
}

// CreateSession creates a session owned by in.OwnerID with its calendar
// initialised for the current and the two following years.
func (s *CalendarService) CreateSession(ctx context.Context, in SessionInput) (*core.Session, error) {
	if in.Type == "" {
		in.Type = core.SessionSingle
	}
	now := s.now()
	sess := &core.Session{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		OwnerID:   in.OwnerID,
		Currency:  strings.ToUpper(strings.TrimSpace(in.Currency)),
		Type:      in.Type,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := sess.Validate(); err != nil {
		return nil, err
	}

	err := s.atomic(ctx, "create_session", func(tx storage.Store) error {
		owner, err := tx.GetUser(ctx, in.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		sess.Participants = []core.Participant{{
			UserID:    owner.ID,
			Name:      owner.Name,
			Email:     owner.Email,
			Role:      core.RoleOwner,
			Status:    core.InvitationAccepted,
			CanEdit:   true,
			CanDelete: true,
		}}
		if sess.Currency == "" {
			sess.Currency = owner.Currency
		}

		cal := calendar.Init(now.Year(), CalendarYears, allocation.EqualSplit(sess.Participants))
		sess.Months = cal.Months()

		if err := tx.SaveSession(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
		if err := tx.SaveMonths(ctx, sess.ID, sess.Months); err != nil {
			return fmt.Errorf("save months: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	slog.InfoContext(ctx, "Session created",
		"session_id", sess.ID,
		"type", string(sess.Type),
		"owner_id", sess.OwnerID,
		"months", len(sess.Months))
	return sess, nil
}

// AddParticipant adds a member and rebalances every month to an equal
// split among accepted members. Only the owner may add members.
func (s *CalendarService) AddParticipant(ctx context.Context, actorID, sessionID string, in ParticipantInput) (*ChangeResult, error) {
	res, err := s.mutate(ctx, "add_participant", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := requireOwner(sess, actorID); err != nil {
			return nil, err
		}

		p := core.Participant{
			UserID:    in.UserID,
			Name:      strings.TrimSpace(in.Name),
			Email:     strings.TrimSpace(in.Email),
			Role:      core.RoleMember,
			Status:    core.InvitationPending,
			CanEdit:   in.CanEdit,
			CanDelete: in.CanDelete,
		}
		if p.UserID != "" {
			u, err := tx.GetUser(ctx, p.UserID)
			if err != nil {
				return nil, fmt.Errorf("load participant: %w", err)
			}
			p.Status = core.InvitationAccepted
			if p.Name == "" {
				p.Name = u.Name
			}
			if p.Email == "" {
				p.Email = u.Email
			}
		}
		if p.UserID == "" && p.Email == "" {
			return nil, core.Invalid("participant", "user id or email is required")
		}
		for _, existing := range sess.Participants {
			if (p.UserID != "" && existing.UserID == p.UserID) || (p.Email != "" && strings.EqualFold(existing.Email, p.Email)) {
				return nil, core.Invalid("participant", "already a member of session %s", sess.ID)
			}
		}

		sess.Participants = append(sess.Participants, p)
		sess.UpdatedAt = s.now()
		if err := tx.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		if !p.Accepted() {
			return nil, nil
		}
		return overwriteDistribution(cal, cal.Months(), allocation.EqualSplit(sess.AcceptedParticipants()))
	})
	if err != nil {
		return nil, fmt.Errorf("add participant: %w", err)
	}

	slog.InfoContext(ctx, "Participant added",
		"session_id", sessionID,
		"user_id", in.UserID,
		"months", len(res.Touched))
	return res, nil
}

// RemoveParticipant removes a member and rebalances every month among the
// remaining accepted members. Their mirrors are removed with their
// allocations. The owner cannot be removed.
func (s *CalendarService) RemoveParticipant(ctx context.Context, actorID, sessionID, userID string) (*ChangeResult, error) {
	res, err := s.mutate(ctx, "remove_participant", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := requireOwner(sess, actorID); err != nil {
			return nil, err
		}
		if userID == sess.OwnerID {
			return nil, core.Invalid("participant", "the owner cannot leave session %s", sess.ID)
		}
		idx := slices.IndexFunc(sess.Participants, func(p core.Participant) bool { return p.UserID == userID })
		if idx < 0 {
			return nil, core.NotFound("participant", userID)
		}

		sess.Participants = slices.Delete(sess.Participants, idx, idx+1)
		sess.UpdatedAt = s.now()
		if err := tx.SaveSession(ctx, sess); err != nil {
			return nil, fmt.Errorf("save session: %w", err)
		}
		return overwriteDistribution(cal, cal.Months(), allocation.EqualSplit(sess.AcceptedParticipants()))
	})
	if err != nil {
		return nil, fmt.Errorf("remove participant: %w", err)
	}

	slog.InfoContext(ctx, "Participant removed",
		"session_id", sessionID,
		"user_id", userID,
		"months", len(res.Touched))
	return res, nil
}

// ArchiveSession soft-deletes a session. Archived sessions reject every
// further change and are skipped by the month generator.
func (s *CalendarService) ArchiveSession(ctx context.Context, actorID, sessionID string) error {
	_, err := s.mutate(ctx, "archive_session", sessionID, func(tx storage.Store, sess *core.Session, cal *calendar.Calendar) ([]core.YearMonth, error) {
		if err := requireOwner(sess, actorID); err != nil {
			return nil, err
		}
		now := s.now()
		sess.ArchivedAt = now
		sess.UpdatedAt = now
		return nil, tx.SaveSession(ctx, sess)
	})
	if err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	slog.InfoContext(ctx, "Session archived", "session_id", sessionID)
	return nil
}

func requireOwner(sess *core.Session, actorID string) error {
	if sess.OwnerID == actorID {
		return nil
	}
	if p, ok := sess.Participant(actorID); ok && p.Role == core.RoleOwner {
		return nil
	}
	return fmt.Errorf("user %s is not the owner of session %s: %w", actorID, sess.ID, core.ErrForbidden)
}

// GetSession returns the session with every materialised month.
func (s *CalendarService) GetSession(ctx context.Context, sessionID string) (*core.Session, error) {
	return s.store.GetSession(ctx, sessionID)
}

func (s *CalendarService) ListSessionAllocations(ctx context.Context, sessionID string) ([]core.Allocation, error) {
	return s.store.ListSessionAllocations(ctx, sessionID)
}

// ListUserAllocations lists a user's allocations across sessions,
// filtered by status when status is not nil.
func (s *CalendarService) ListUserAllocations(ctx context.Context, userID string, status *core.AllocationStatus) ([]core.Allocation, error) {
	if status != nil && !status.Valid() {
		return nil, core.Invalid("status", "unknown allocation status %q", *status)
	}
	return s.store.ListUserAllocations(ctx, userID, status)
}

// ListMonthExpenses returns the raw expenses of one month. A month that
// was never materialised has none.
func (s *CalendarService) ListMonthExpenses(ctx context.Context, sessionID string, ym core.YearMonth) ([]core.Expense, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m, ok := calendar.New(sess.Months).Month(ym)
	if !ok {
		return nil, nil
	}
	return m.Expenses, nil
}

// MonthSummary summarises one month of a session.
func (s *CalendarService) MonthSummary(ctx context.Context, sessionID string, ym core.YearMonth) (core.MonthOverview, error) {
	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return core.MonthOverview{}, err
	}
	m, ok := calendar.New(sess.Months).Month(ym)
	if !ok {
		return core.MonthOverview{}, core.NotFound("month", fmt.Sprintf("%s/%s", sessionID, ym))
	}
	allocs, err := s.store.ListMonthAllocations(ctx, sessionID, ym)
	if err != nil {
		return core.MonthOverview{}, fmt.Errorf("list allocations: %w", err)
	}
	return core.NewMonthOverview(m, allocs), nil
}
