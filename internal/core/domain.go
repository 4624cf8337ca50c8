package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	SessionSingle    SessionType = "single"
	SessionPermanent SessionType = "permanent"

	RoleOwner  Role = "owner"
	RoleMember Role = "member"

	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"

	StatusPending  AllocationStatus = "pending"
	StatusAccepted AllocationStatus = "accepted"
	StatusPaid     AllocationStatus = "paid"

	KindExpense ExpenseKind = "expense"
	KindIncome  ExpenseKind = "income"
)

// MirrorDay is the day of month used for mirrored personal expenses, away
// from month boundaries so timezone shifts never move it to another month.
const MirrorDay = 15

// DefaultCurrency is used when neither session nor user declare one.
const DefaultCurrency = "EUR"

type (
	SessionType      string
	Role             string
	InvitationStatus string
	AllocationStatus string
	ExpenseKind      string

	// Participant is a member of a shared session. UserID stays empty until
	// the invitation is accepted.
	Participant struct {
		UserID    string
		Name      string
		Email     string
		Role      Role
		Status    InvitationStatus
		CanEdit   bool
		CanDelete bool
	}

	// Session is a named group expense ledger.
	Session struct {
		ID           string
		Name         string
		OwnerID      string
		Currency     string
		Type         SessionType
		Participants []Participant
		Months       []*Month // ordered by (year, month)
		ArchivedAt   time.Time
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}

	// Share is one participant's percentage of a month's total.
	Share struct {
		ParticipantID string
		Name          string
		Percentage    decimal.Decimal
	}

	// ShareAmount is the monetary result of applying a Share to a total.
	ShareAmount struct {
		ParticipantID string
		Amount        Money
	}

	// Month holds the raw expenses of one calendar month and the split in
	// force for it.
	Month struct {
		YearMonth
		Expenses     []Expense
		Total        Money
		Distribution []Share
	}

	// Expense is a raw expense recorded in a session month. Projected copies
	// of a recurring expense share RecurrenceGroupID but have their own ID.
	Expense struct {
		ID                string
		Name              string
		Description       string
		Amount            Money
		Date              time.Time
		Category          string
		PayerID           string
		IsRecurring       bool
		RecurrenceGroupID string
		RecurrenceEnd     time.Time
		CreatedAt         time.Time
	}

	// Allocation is the derived fact "participant P owes A (Pct of T) in
	// session S for year Y, month M".
	Allocation struct {
		ID                string
		SessionID         string
		UserID            string
		ParticipantName   string
		Year              int
		Month             time.Month
		Amount            Money
		Percentage        decimal.Decimal
		Total             Money
		Currency          string
		Status            AllocationStatus
		PersonalExpenseID string
		CreatedAt         time.Time
		UpdatedAt         time.Time
		// SyncAttempts counts failed mirror syncs since the allocation was
		// written.
		SyncAttempts    int
		LastSyncAttempt time.Time
	}

	// SessionReference links a mirrored personal expense back to its session
	// period.
	SessionReference struct {
		SessionID   string
		SessionName string
		Percentage  decimal.Decimal
		Total       Money
		Year        int
		Month       time.Month
	}

	// PersonalExpense is an entry of a user's personal expense list. Entries
	// with IsFromSharedSession set are mirrors owned by the sync process.
	PersonalExpense struct {
		ID                  string
		UserID              string
		Name                string
		Description         string
		Amount              Money
		Currency            string
		Date                time.Time
		Category            string
		Kind                ExpenseKind
		IsRecurring         bool
		IsFromSharedSession bool
		AllocationID        string
		AllocationStatus    AllocationStatus
		SessionRef          *SessionReference
		CreatedAt           time.Time
		UpdatedAt           time.Time
	}

	// User is the subset of the account record the engine reads.
	User struct {
		ID       string
		Email    string
		Name     string
		Currency string
	}
)

// NewDate creates a UTC date from year, month, day.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func (t SessionType) Valid() bool {
	return t == SessionSingle || t == SessionPermanent
}

func (s AllocationStatus) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusAccepted:
		return 1
	case StatusPaid:
		return 2
	default:
		return -1
	}
}

func (s AllocationStatus) Valid() bool { return s.rank() >= 0 }

// Regresses reports whether moving from s to next goes backwards.
func (s AllocationStatus) Regresses(next AllocationStatus) bool {
	return next.rank() < s.rank()
}

// Accepted reports whether the participant can take part in splits.
func (p Participant) Accepted() bool {
	return p.Status == InvitationAccepted && p.UserID != ""
}

func (s *Session) IsPermanent() bool { return s.Type == SessionPermanent }

func (s *Session) IsArchived() bool { return !s.ArchivedAt.IsZero() }

// AcceptedParticipants returns accepted members in session order.
func (s *Session) AcceptedParticipants() []Participant {
	out := make([]Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.Accepted() {
			out = append(out, p)
		}
	}
	return out
}

// Participant returns the accepted participant with the given user id.
func (s *Session) Participant(userID string) (Participant, bool) {
	for _, p := range s.Participants {
		if p.Accepted() && p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

// Authorize checks that userID may perform a mutation on the session.
// Owners may always edit and delete; members need the matching flag.
func (s *Session) Authorize(userID string, needEdit, needDelete bool) error {
	p, ok := s.Participant(userID)
	if !ok {
		return fmt.Errorf("user %s in session %s: %w", userID, s.ID, ErrForbidden)
	}
	if p.Role == RoleOwner || s.OwnerID == userID {
		return nil
	}
	if needEdit && !p.CanEdit {
		return fmt.Errorf("user %s cannot edit session %s: %w", userID, s.ID, ErrForbidden)
	}
	if needDelete && !p.CanDelete {
		return fmt.Errorf("user %s cannot delete in session %s: %w", userID, s.ID, ErrForbidden)
	}
	return nil
}

func (s *Session) EffectiveCurrency() string {
	if s.Currency == "" {
		return DefaultCurrency
	}
	return s.Currency
}

func (s *Session) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return Invalid("name", "must not be empty")
	}
	if !s.Type.Valid() {
		return Invalid("type", "unknown session type %q", s.Type)
	}
	if s.OwnerID == "" {
		return Invalid("owner", "must not be empty")
	}
	return nil
}

// Recalculate recomputes Total from the month's expenses.
func (m *Month) Recalculate() {
	var total Money
	for _, e := range m.Expenses {
		total = total.Add(e.Amount)
	}
	m.Total = total
}

// Clone returns a deep copy of the month.
func (m *Month) Clone() *Month {
	c := &Month{YearMonth: m.YearMonth, Total: m.Total}
	c.Expenses = append([]Expense(nil), m.Expenses...)
	c.Distribution = append([]Share(nil), m.Distribution...)
	return c
}

// Validate checks the fields a caller must provide for a raw expense.
func (e Expense) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return &ValidationError{Field: "name", Reason: ErrEmptyName.Error()}
	}
	if len(e.Name) > 200 {
		return Invalid("name", "too long (max 200 characters)")
	}
	if err := e.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}
	if e.Date.IsZero() {
		return Invalid("date", "must not be zero")
	}
	if !e.RecurrenceEnd.IsZero() && e.RecurrenceEnd.Before(e.Date) {
		return Invalid("recurrence_end", "must not be before the expense date")
	}
	return nil
}

// Key returns the allocation's (session, user, period) identity.
func (a Allocation) Key() AllocationKey {
	return AllocationKey{SessionID: a.SessionID, UserID: a.UserID, Period: YearMonth{Year: a.Year, Month: a.Month}}
}

func (a Allocation) Period() YearMonth {
	return YearMonth{Year: a.Year, Month: a.Month}
}

// AllocationKey is the uniqueness key of allocations.
type AllocationKey struct {
	SessionID string
	UserID    string
	Period    YearMonth
}

// Validate checks a user-owned personal expense.
func (p PersonalExpense) Validate() error {
	if p.UserID == "" {
		return Invalid("user", "must not be empty")
	}
	if strings.TrimSpace(p.Name) == "" {
		return &ValidationError{Field: "name", Reason: ErrEmptyName.Error()}
	}
	if err := p.Amount.Validate(); err != nil {
		return &ValidationError{Field: "amount", Reason: "must be a positive number"}
	}
	if p.Date.IsZero() {
		return Invalid("date", "must not be zero")
	}
	switch p.Kind {
	case KindExpense, KindIncome:
	default:
		return Invalid("kind", "unknown kind %q", p.Kind)
	}
	return nil
}
