package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"sharedspese/internal/core"

	_ "modernc.org/sqlite"
)

const (
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
	dateLayout = "2006-01-02"
)

// SQLiteRepository implements Store on a SQLite database. Inside Atomic
// the callback receives a repository bound to the open transaction.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	inTx    bool
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; transactions queue on the pool instead of
	// failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return NewSQLiteRepositoryFromDB(db), nil
}

// NewSQLiteRepositoryFromDB wraps an already opened and migrated database.
func NewSQLiteRepositoryFromDB(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, queries: New(db)}
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil && !r.inTx {
		return r.db.Close()
	}
	return nil
}

func (r *SQLiteRepository) Atomic(ctx context.Context, fn func(tx Store) error) error {
	if r.inTx {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	txRepo := &SQLiteRepository{db: r.db, queries: r.queries.WithTx(tx), inTx: true}
	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// within runs multi-statement writes atomically, reusing the current
// transaction when there is one.
func (r *SQLiteRepository) within(ctx context.Context, fn func(q *Queries) error) error {
	return r.Atomic(ctx, func(tx Store) error {
		return fn(tx.(*SQLiteRepository).queries)
	})
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*core.Session, error) {
	row, err := r.queries.GetSession(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NotFound("session", id)
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	participants, err := r.queries.ListSessionParticipants(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list session participants: %w", err)
	}
	months, err := r.queries.ListSessionMonths(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list session months: %w", err)
	}
	expenses, err := r.queries.ListSessionExpenses(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list session expenses: %w", err)
	}
	return sessionFromRows(row, participants, months, expenses)
}

func (r *SQLiteRepository) SaveSession(ctx context.Context, s *core.Session) error {
	if s == nil || s.ID == "" {
		return core.Invalid("id", "must not be empty")
	}
	return r.within(ctx, func(q *Queries) error {
		if err := q.UpsertSession(ctx, Session{
			ID:         s.ID,
			Name:       s.Name,
			OwnerID:    s.OwnerID,
			Currency:   s.Currency,
			Type:       string(s.Type),
			ArchivedAt: nullTime(s.ArchivedAt),
			CreatedAt:  formatTime(s.CreatedAt),
			UpdatedAt:  formatTime(s.UpdatedAt),
		}); err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		if err := q.DeleteSessionParticipants(ctx, s.ID); err != nil {
			return fmt.Errorf("delete session participants: %w", err)
		}
		for i, p := range s.Participants {
			if err := q.InsertSessionParticipant(ctx, SessionParticipant{
				SessionID: s.ID,
				Position:  int64(i),
				UserID:    p.UserID,
				Name:      p.Name,
				Email:     p.Email,
				Role:      string(p.Role),
				Status:    string(p.Status),
				CanEdit:   p.CanEdit,
				CanDelete: p.CanDelete,
			}); err != nil {
				return fmt.Errorf("insert session participant: %w", err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) SaveMonths(ctx context.Context, sessionID string, months []*core.Month) error {
	return r.within(ctx, func(q *Queries) error {
		if _, err := q.GetSession(ctx, sessionID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return core.NotFound("session", sessionID)
			}
			return fmt.Errorf("get session: %w", err)
		}
		// Clear every month before inserting any expense: an expense moved
		// between two of the given months must not meet its old row.
		for _, m := range months {
			dist, err := encodeDistribution(m.Distribution)
			if err != nil {
				return err
			}
			year, month := int64(m.Year), int64(m.Month)
			if err := q.UpsertSessionMonth(ctx, SessionMonth{
				SessionID:    sessionID,
				Year:         year,
				Month:        month,
				TotalCents:   m.Total.Cents,
				Distribution: dist,
			}); err != nil {
				return fmt.Errorf("upsert session month %s: %w", m.YearMonth, err)
			}
			if err := q.DeleteMonthExpenses(ctx, sessionID, year, month); err != nil {
				return fmt.Errorf("delete month expenses %s: %w", m.YearMonth, err)
			}
		}
		for _, m := range months {
			year, month := int64(m.Year), int64(m.Month)
			for i, e := range m.Expenses {
				if err := q.InsertSessionExpense(ctx, SessionExpense{
					ID:                e.ID,
					SessionID:         sessionID,
					Year:              year,
					Month:             month,
					Position:          int64(i),
					Name:              e.Name,
					Description:       e.Description,
					AmountCents:       e.Amount.Cents,
					ExpenseDate:       e.Date.Format(dateLayout),
					Category:          e.Category,
					PayerID:           e.PayerID,
					IsRecurring:       e.IsRecurring,
					RecurrenceGroupID: e.RecurrenceGroupID,
					RecurrenceEnd:     nullDate(e.RecurrenceEnd),
					CreatedAt:         formatTime(e.CreatedAt),
				}); err != nil {
					return fmt.Errorf("insert session expense %s: %w", e.ID, err)
				}
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListActivePermanentSessions(ctx context.Context) ([]string, error) {
	ids, err := r.queries.ListActivePermanentSessionIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list permanent sessions: %w", err)
	}
	return ids, nil
}

func (r *SQLiteRepository) GetAllocation(ctx context.Context, id string) (*core.Allocation, error) {
	row, err := r.queries.GetAllocation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NotFound("allocation", id)
		}
		return nil, fmt.Errorf("get allocation: %w", err)
	}
	a, err := allocationFromRow(row)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *SQLiteRepository) ReplaceMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth, allocs []core.Allocation) error {
	year, month := int64(ym.Year), int64(ym.Month)
	return r.within(ctx, func(q *Queries) error {
		if err := q.DeleteMonthAllocations(ctx, sessionID, year, month); err != nil {
			return fmt.Errorf("delete month allocations: %w", err)
		}
		for i, a := range allocs {
			if a.SessionID != sessionID || a.Period() != ym {
				return fmt.Errorf("allocation %s does not belong to %s %s", a.ID, sessionID, ym)
			}
			if err := q.InsertAllocation(ctx, Allocation{
				ID:                a.ID,
				SessionID:         a.SessionID,
				UserID:            a.UserID,
				ParticipantName:   a.ParticipantName,
				Year:              year,
				Month:             month,
				Position:          int64(i),
				AmountCents:       a.Amount.Cents,
				Percentage:        a.Percentage.String(),
				TotalCents:        a.Total.Cents,
				Currency:          a.Currency,
				Status:            string(a.Status),
				PersonalExpenseID: a.PersonalExpenseID,
				CreatedAt:         formatTime(a.CreatedAt),
				UpdatedAt:         formatTime(a.UpdatedAt),
				SyncAttempts:      int64(a.SyncAttempts),
				LastSyncAttempt:   formatTime(a.LastSyncAttempt),
			}); err != nil {
				return fmt.Errorf("insert allocation for user %s: %w", a.UserID, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRepository) ListMonthAllocations(ctx context.Context, sessionID string, ym core.YearMonth) ([]core.Allocation, error) {
	rows, err := r.queries.ListMonthAllocations(ctx, sessionID, int64(ym.Year), int64(ym.Month))
	if err != nil {
		return nil, fmt.Errorf("list month allocations: %w", err)
	}
	return allocationsFromRows(rows)
}

func (r *SQLiteRepository) ListSessionAllocations(ctx context.Context, sessionID string) ([]core.Allocation, error) {
	rows, err := r.queries.ListSessionAllocations(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session allocations: %w", err)
	}
	return allocationsFromRows(rows)
}

func (r *SQLiteRepository) ListUserAllocations(ctx context.Context, userID string, status *core.AllocationStatus) ([]core.Allocation, error) {
	var (
		rows []Allocation
		err  error
	)
	if status == nil {
		rows, err = r.queries.ListUserAllocations(ctx, userID)
	} else {
		rows, err = r.queries.ListUserAllocationsByStatus(ctx, userID, string(*status))
	}
	if err != nil {
		return nil, fmt.Errorf("list user allocations: %w", err)
	}
	return allocationsFromRows(rows)
}

func (r *SQLiteRepository) UpdateAllocation(ctx context.Context, a core.Allocation) error {
	n, err := r.queries.UpdateAllocationState(ctx, string(a.Status), a.PersonalExpenseID, formatTime(a.UpdatedAt), a.ID)
	if err != nil {
		return fmt.Errorf("update allocation: %w", err)
	}
	if n == 0 {
		return core.NotFound("allocation", a.ID)
	}
	return nil
}

func (r *SQLiteRepository) ListUnmirroredAllocations(ctx context.Context, limit int) ([]core.Allocation, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.queries.ListUnmirroredAllocations(ctx, MaxSyncAttempts, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("list unmirrored allocations: %w", err)
	}
	return allocationsFromRows(rows)
}

func (r *SQLiteRepository) RecordSyncFailure(ctx context.Context, allocationID string, at time.Time) error {
	n, err := r.queries.RecordAllocationSyncFailure(ctx, formatTime(at), allocationID)
	if err != nil {
		return fmt.Errorf("record sync failure: %w", err)
	}
	if n == 0 {
		return core.NotFound("allocation", allocationID)
	}
	return nil
}

func (r *SQLiteRepository) GetPersonalExpense(ctx context.Context, id string) (*core.PersonalExpense, error) {
	row, err := r.queries.GetPersonalExpense(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NotFound("personal expense", id)
		}
		return nil, fmt.Errorf("get personal expense: %w", err)
	}
	return personalFromRow(row)
}

func (r *SQLiteRepository) FindMirrorByAllocation(ctx context.Context, allocationID string) (*core.PersonalExpense, error) {
	if allocationID == "" {
		return nil, nil
	}
	row, err := r.queries.GetMirrorByAllocation(ctx, allocationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find mirror by allocation: %w", err)
	}
	return personalFromRow(row)
}

func (r *SQLiteRepository) FindMirrorByPeriod(ctx context.Context, userID, sessionID string, ym core.YearMonth) (*core.PersonalExpense, error) {
	row, err := r.queries.GetMirrorByPeriod(ctx, userID, sessionID, int64(ym.Year), int64(ym.Month))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find mirror by period: %w", err)
	}
	return personalFromRow(row)
}

func (r *SQLiteRepository) CreatePersonalExpense(ctx context.Context, p core.PersonalExpense) error {
	if err := r.queries.InsertPersonalExpense(ctx, personalToRow(p)); err != nil {
		return fmt.Errorf("insert personal expense: %w", err)
	}
	slog.DebugContext(ctx, "Personal expense saved to SQLite",
		"id", p.ID,
		"user_id", p.UserID,
		"amount_cents", p.Amount.Cents,
		"mirror", p.IsFromSharedSession)
	return nil
}

func (r *SQLiteRepository) UpdatePersonalExpense(ctx context.Context, p core.PersonalExpense) error {
	n, err := r.queries.UpdatePersonalExpense(ctx, personalToRow(p))
	if err != nil {
		return fmt.Errorf("update personal expense: %w", err)
	}
	if n == 0 {
		return core.NotFound("personal expense", p.ID)
	}
	return nil
}

func (r *SQLiteRepository) DeletePersonalExpense(ctx context.Context, id string) error {
	n, err := r.queries.DeletePersonalExpense(ctx, id)
	if err != nil {
		return fmt.Errorf("delete personal expense: %w", err)
	}
	if n == 0 {
		return core.NotFound("personal expense", id)
	}
	return nil
}

func (r *SQLiteRepository) ListPersonalExpenses(ctx context.Context, userID string) ([]core.PersonalExpense, error) {
	rows, err := r.queries.ListPersonalExpensesByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list personal expenses: %w", err)
	}
	out := make([]core.PersonalExpense, 0, len(rows))
	for _, row := range rows {
		p, err := personalFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

func (r *SQLiteRepository) DeleteMirrorsForPeriod(ctx context.Context, sessionID string, ym core.YearMonth, keepUserIDs []string) (int, error) {
	removed := 0
	err := r.within(ctx, func(q *Queries) error {
		rows, err := q.ListMirrorsForPeriod(ctx, sessionID, int64(ym.Year), int64(ym.Month))
		if err != nil {
			return fmt.Errorf("list mirrors for period: %w", err)
		}
		for _, row := range rows {
			if slices.Contains(keepUserIDs, row.UserID) {
				continue
			}
			if _, err := q.DeletePersonalExpense(ctx, row.ID); err != nil {
				return fmt.Errorf("delete orphan mirror %s: %w", row.ID, err)
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (r *SQLiteRepository) GetUser(ctx context.Context, id string) (*core.User, error) {
	row, err := r.queries.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.NotFound("user", id)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &core.User{ID: row.ID, Email: row.Email, Name: row.Name, Currency: row.Currency}, nil
}

func (r *SQLiteRepository) SaveUser(ctx context.Context, u core.User) error {
	if u.ID == "" {
		return core.Invalid("id", "must not be empty")
	}
	if err := r.queries.UpsertUser(ctx, User{ID: u.ID, Email: u.Email, Name: u.Name, Currency: u.Currency}); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

type shareJSON struct {
	ParticipantID string          `json:"participant_id"`
	Name          string          `json:"name"`
	Percentage    decimal.Decimal `json:"percentage"`
}

func encodeDistribution(shares []core.Share) (string, error) {
	rows := make([]shareJSON, len(shares))
	for i, s := range shares {
		rows[i] = shareJSON{ParticipantID: s.ParticipantID, Name: s.Name, Percentage: s.Percentage}
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return "", fmt.Errorf("encode distribution: %w", err)
	}
	return string(b), nil
}

func decodeDistribution(s string) ([]core.Share, error) {
	var rows []shareJSON
	if err := json.Unmarshal([]byte(s), &rows); err != nil {
		return nil, fmt.Errorf("decode distribution: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	shares := make([]core.Share, len(rows))
	for i, r := range rows {
		shares[i] = core.Share{ParticipantID: r.ParticipantID, Name: r.Name, Percentage: r.Percentage}
	}
	return shares, nil
}

func sessionFromRows(row Session, participants []SessionParticipant, months []SessionMonth, expenses []SessionExpense) (*core.Session, error) {
	s := &core.Session{
		ID:        row.ID,
		Name:      row.Name,
		OwnerID:   row.OwnerID,
		Currency:  row.Currency,
		Type:      core.SessionType(row.Type),
		CreatedAt: parseTime(row.CreatedAt),
		UpdatedAt: parseTime(row.UpdatedAt),
	}
	if row.ArchivedAt.Valid {
		s.ArchivedAt = parseTime(row.ArchivedAt.String)
	}
	for _, p := range participants {
		s.Participants = append(s.Participants, core.Participant{
			UserID:    p.UserID,
			Name:      p.Name,
			Email:     p.Email,
			Role:      core.Role(p.Role),
			Status:    core.InvitationStatus(p.Status),
			CanEdit:   p.CanEdit,
			CanDelete: p.CanDelete,
		})
	}

	byYM := make(map[core.YearMonth]*core.Month, len(months))
	for _, m := range months {
		dist, err := decodeDistribution(m.Distribution)
		if err != nil {
			return nil, err
		}
		month := &core.Month{
			YearMonth:    core.YearMonth{Year: int(m.Year), Month: time.Month(m.Month)},
			Total:        core.Cents(m.TotalCents),
			Distribution: dist,
		}
		byYM[month.YearMonth] = month
		s.Months = append(s.Months, month)
	}
	for _, e := range expenses {
		ym := core.YearMonth{Year: int(e.Year), Month: time.Month(e.Month)}
		m, ok := byYM[ym]
		if !ok {
			return nil, fmt.Errorf("expense %s references missing month %s", e.ID, ym)
		}
		date, err := time.Parse(dateLayout, e.ExpenseDate)
		if err != nil {
			return nil, fmt.Errorf("parse expense date %q: %w", e.ExpenseDate, err)
		}
		exp := core.Expense{
			ID:                e.ID,
			Name:              e.Name,
			Description:       e.Description,
			Amount:            core.Cents(e.AmountCents),
			Date:              date,
			Category:          e.Category,
			PayerID:           e.PayerID,
			IsRecurring:       e.IsRecurring,
			RecurrenceGroupID: e.RecurrenceGroupID,
			CreatedAt:         parseTime(e.CreatedAt),
		}
		if e.RecurrenceEnd.Valid {
			if exp.RecurrenceEnd, err = time.Parse(dateLayout, e.RecurrenceEnd.String); err != nil {
				return nil, fmt.Errorf("parse recurrence end %q: %w", e.RecurrenceEnd.String, err)
			}
		}
		m.Expenses = append(m.Expenses, exp)
	}
	return s, nil
}

func allocationFromRow(row Allocation) (core.Allocation, error) {
	pct, err := decimal.NewFromString(row.Percentage)
	if err != nil {
		return core.Allocation{}, fmt.Errorf("parse allocation percentage %q: %w", row.Percentage, err)
	}
	return core.Allocation{
		ID:                row.ID,
		SessionID:         row.SessionID,
		UserID:            row.UserID,
		ParticipantName:   row.ParticipantName,
		Year:              int(row.Year),
		Month:             time.Month(row.Month),
		Amount:            core.Cents(row.AmountCents),
		Percentage:        pct,
		Total:             core.Cents(row.TotalCents),
		Currency:          row.Currency,
		Status:            core.AllocationStatus(row.Status),
		PersonalExpenseID: row.PersonalExpenseID,
		CreatedAt:         parseTime(row.CreatedAt),
		UpdatedAt:         parseTime(row.UpdatedAt),
		SyncAttempts:      int(row.SyncAttempts),
		LastSyncAttempt:   parseTime(row.LastSyncAttempt),
	}, nil
}

func allocationsFromRows(rows []Allocation) ([]core.Allocation, error) {
	out := make([]core.Allocation, 0, len(rows))
	for _, row := range rows {
		a, err := allocationFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func personalToRow(p core.PersonalExpense) PersonalExpense {
	row := PersonalExpense{
		ID:                  p.ID,
		UserID:              p.UserID,
		Name:                p.Name,
		Description:         p.Description,
		AmountCents:         p.Amount.Cents,
		Currency:            p.Currency,
		ExpenseDate:         p.Date.Format(dateLayout),
		Category:            p.Category,
		Kind:                string(p.Kind),
		IsRecurring:         p.IsRecurring,
		IsFromSharedSession: p.IsFromSharedSession,
		AllocationID:        sql.NullString{String: p.AllocationID, Valid: p.AllocationID != ""},
		AllocationStatus:    string(p.AllocationStatus),
		CreatedAt:           formatTime(p.CreatedAt),
		UpdatedAt:           formatTime(p.UpdatedAt),
	}
	if ref := p.SessionRef; ref != nil {
		row.SessionID = sql.NullString{String: ref.SessionID, Valid: true}
		row.SessionName = sql.NullString{String: ref.SessionName, Valid: true}
		row.SessionPercentage = sql.NullString{String: ref.Percentage.String(), Valid: true}
		row.SessionTotalCents = sql.NullInt64{Int64: ref.Total.Cents, Valid: true}
		row.SessionYear = sql.NullInt64{Int64: int64(ref.Year), Valid: true}
		row.SessionMonth = sql.NullInt64{Int64: int64(ref.Month), Valid: true}
	}
	return row
}

func personalFromRow(row PersonalExpense) (*core.PersonalExpense, error) {
	date, err := time.Parse(dateLayout, row.ExpenseDate)
	if err != nil {
		return nil, fmt.Errorf("parse personal expense date %q: %w", row.ExpenseDate, err)
	}
	p := &core.PersonalExpense{
		ID:                  row.ID,
		UserID:              row.UserID,
		Name:                row.Name,
		Description:         row.Description,
		Amount:              core.Cents(row.AmountCents),
		Currency:            row.Currency,
		Date:                date,
		Category:            row.Category,
		Kind:                core.ExpenseKind(row.Kind),
		IsRecurring:         row.IsRecurring,
		IsFromSharedSession: row.IsFromSharedSession,
		AllocationID:        row.AllocationID.String,
		AllocationStatus:    core.AllocationStatus(row.AllocationStatus),
		CreatedAt:           parseTime(row.CreatedAt),
		UpdatedAt:           parseTime(row.UpdatedAt),
	}
	if row.SessionID.Valid {
		pct := decimal.Zero
		if row.SessionPercentage.Valid {
			if pct, err = decimal.NewFromString(row.SessionPercentage.String); err != nil {
				return nil, fmt.Errorf("parse session percentage %q: %w", row.SessionPercentage.String, err)
			}
		}
		p.SessionRef = &core.SessionReference{
			SessionID:   row.SessionID.String,
			SessionName: row.SessionName.String,
			Percentage:  pct,
			Total:       core.Cents(row.SessionTotalCents.Int64),
			Year:        int(row.SessionYear.Int64),
			Month:       time.Month(row.SessionMonth.Int64),
		}
	}
	return p, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}
