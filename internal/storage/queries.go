package storage

import (
	"context"
	"database/sql"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type User struct {
	ID       string
	Email    string
	Name     string
	Currency string
}

type Session struct {
	ID         string
	Name       string
	OwnerID    string
	Currency   string
	Type       string
	ArchivedAt sql.NullString
	CreatedAt  string
	UpdatedAt  string
}

type SessionParticipant struct {
	SessionID string
	Position  int64
	UserID    string
	Name      string
	Email     string
	Role      string
	Status    string
	CanEdit   bool
	CanDelete bool
}

type SessionMonth struct {
	SessionID    string
	Year         int64
	Month        int64
	TotalCents   int64
	Distribution string
}

type SessionExpense struct {
	ID                string
	SessionID         string
	Year              int64
	Month             int64
	Position          int64
	Name              string
	Description       string
	AmountCents       int64
	ExpenseDate       string
	Category          string
	PayerID           string
	IsRecurring       bool
	RecurrenceGroupID string
	RecurrenceEnd     sql.NullString
	CreatedAt         string
}

type Allocation struct {
	ID                string
	SessionID         string
	UserID            string
	ParticipantName   string
	Year              int64
	Month             int64
	Position          int64
	AmountCents       int64
	Percentage        string
	TotalCents        int64
	Currency          string
	Status            string
	PersonalExpenseID string
	CreatedAt         string
	UpdatedAt         string
	SyncAttempts      int64
	LastSyncAttempt   string
}

type PersonalExpense struct {
	ID                  string
	UserID              string
	Name                string
	Description         string
	AmountCents         int64
	Currency            string
	ExpenseDate         string
	Category            string
	Kind                string
	IsRecurring         bool
	IsFromSharedSession bool
	AllocationID        sql.NullString
	AllocationStatus    string
	SessionID           sql.NullString
	SessionName         sql.NullString
	SessionPercentage   sql.NullString
	SessionTotalCents   sql.NullInt64
	SessionYear         sql.NullInt64
	SessionMonth        sql.NullInt64
	CreatedAt           string
	UpdatedAt           string
}

const upsertUser = `-- name: UpsertUser :exec
INSERT INTO users (id, email, name, currency) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET email = excluded.email, name = excluded.name, currency = excluded.currency
`

func (q *Queries) UpsertUser(ctx context.Context, arg User) error {
	_, err := q.db.ExecContext(ctx, upsertUser, arg.ID, arg.Email, arg.Name, arg.Currency)
	return err
}

const getUser = `-- name: GetUser :one
SELECT id, email, name, currency FROM users WHERE id = ?
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var i User
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(&i.ID, &i.Email, &i.Name, &i.Currency)
	return i, err
}

const upsertSession = `-- name: UpsertSession :exec
INSERT INTO sessions (id, name, owner_id, currency, type, archived_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    owner_id = excluded.owner_id,
    currency = excluded.currency,
    type = excluded.type,
    archived_at = excluded.archived_at,
    updated_at = excluded.updated_at
`

func (q *Queries) UpsertSession(ctx context.Context, arg Session) error {
	_, err := q.db.ExecContext(ctx, upsertSession,
		arg.ID, arg.Name, arg.OwnerID, arg.Currency, arg.Type, arg.ArchivedAt, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const getSession = `-- name: GetSession :one
SELECT id, name, owner_id, currency, type, archived_at, created_at, updated_at FROM sessions WHERE id = ?
`

func (q *Queries) GetSession(ctx context.Context, id string) (Session, error) {
	var i Session
	err := q.db.QueryRowContext(ctx, getSession, id).Scan(
		&i.ID, &i.Name, &i.OwnerID, &i.Currency, &i.Type, &i.ArchivedAt, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

const listActivePermanentSessionIDs = `-- name: ListActivePermanentSessionIDs :many
SELECT id FROM sessions WHERE type = 'permanent' AND archived_at IS NULL ORDER BY id
`

func (q *Queries) ListActivePermanentSessionIDs(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listActivePermanentSessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		items = append(items, id)
	}
	return items, rows.Err()
}

const deleteSessionParticipants = `-- name: DeleteSessionParticipants :exec
DELETE FROM session_participants WHERE session_id = ?
`

func (q *Queries) DeleteSessionParticipants(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, deleteSessionParticipants, sessionID)
	return err
}

const insertSessionParticipant = `-- name: InsertSessionParticipant :exec
INSERT INTO session_participants (session_id, position, user_id, name, email, role, status, can_edit, can_delete)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertSessionParticipant(ctx context.Context, arg SessionParticipant) error {
	_, err := q.db.ExecContext(ctx, insertSessionParticipant,
		arg.SessionID, arg.Position, arg.UserID, arg.Name, arg.Email, arg.Role, arg.Status, arg.CanEdit, arg.CanDelete)
	return err
}

const listSessionParticipants = `-- name: ListSessionParticipants :many
SELECT session_id, position, user_id, name, email, role, status, can_edit, can_delete
FROM session_participants WHERE session_id = ? ORDER BY position
`

func (q *Queries) ListSessionParticipants(ctx context.Context, sessionID string) ([]SessionParticipant, error) {
	rows, err := q.db.QueryContext(ctx, listSessionParticipants, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionParticipant
	for rows.Next() {
		var i SessionParticipant
		if err := rows.Scan(&i.SessionID, &i.Position, &i.UserID, &i.Name, &i.Email,
			&i.Role, &i.Status, &i.CanEdit, &i.CanDelete); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const upsertSessionMonth = `-- name: UpsertSessionMonth :exec
INSERT INTO session_months (session_id, year, month, total_cents, distribution) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(session_id, year, month) DO UPDATE SET
    total_cents = excluded.total_cents,
    distribution = excluded.distribution
`

func (q *Queries) UpsertSessionMonth(ctx context.Context, arg SessionMonth) error {
	_, err := q.db.ExecContext(ctx, upsertSessionMonth, arg.SessionID, arg.Year, arg.Month, arg.TotalCents, arg.Distribution)
	return err
}

const listSessionMonths = `-- name: ListSessionMonths :many
SELECT session_id, year, month, total_cents, distribution
FROM session_months WHERE session_id = ? ORDER BY year, month
`

func (q *Queries) ListSessionMonths(ctx context.Context, sessionID string) ([]SessionMonth, error) {
	rows, err := q.db.QueryContext(ctx, listSessionMonths, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionMonth
	for rows.Next() {
		var i SessionMonth
		if err := rows.Scan(&i.SessionID, &i.Year, &i.Month, &i.TotalCents, &i.Distribution); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteMonthExpenses = `-- name: DeleteMonthExpenses :exec
DELETE FROM session_expenses WHERE session_id = ? AND year = ? AND month = ?
`

func (q *Queries) DeleteMonthExpenses(ctx context.Context, sessionID string, year, month int64) error {
	_, err := q.db.ExecContext(ctx, deleteMonthExpenses, sessionID, year, month)
	return err
}

const insertSessionExpense = `-- name: InsertSessionExpense :exec
INSERT INTO session_expenses (
    id, session_id, year, month, position, name, description, amount_cents, expense_date,
    category, payer_id, is_recurring, recurrence_group_id, recurrence_end, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertSessionExpense(ctx context.Context, arg SessionExpense) error {
	_, err := q.db.ExecContext(ctx, insertSessionExpense,
		arg.ID, arg.SessionID, arg.Year, arg.Month, arg.Position, arg.Name, arg.Description, arg.AmountCents,
		arg.ExpenseDate, arg.Category, arg.PayerID, arg.IsRecurring, arg.RecurrenceGroupID, arg.RecurrenceEnd, arg.CreatedAt)
	return err
}

const listSessionExpenses = `-- name: ListSessionExpenses :many
SELECT id, session_id, year, month, position, name, description, amount_cents, expense_date,
    category, payer_id, is_recurring, recurrence_group_id, recurrence_end, created_at
FROM session_expenses WHERE session_id = ? ORDER BY year, month, position
`

func (q *Queries) ListSessionExpenses(ctx context.Context, sessionID string) ([]SessionExpense, error) {
	rows, err := q.db.QueryContext(ctx, listSessionExpenses, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []SessionExpense
	for rows.Next() {
		var i SessionExpense
		if err := rows.Scan(&i.ID, &i.SessionID, &i.Year, &i.Month, &i.Position, &i.Name, &i.Description,
			&i.AmountCents, &i.ExpenseDate, &i.Category, &i.PayerID, &i.IsRecurring, &i.RecurrenceGroupID,
			&i.RecurrenceEnd, &i.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const allocationColumns = `id, session_id, user_id, participant_name, year, month, position, amount_cents,
    percentage, total_cents, currency, status, personal_expense_id, created_at, updated_at,
    sync_attempts, last_sync_attempt`

func scanAllocation(row interface{ Scan(...any) error }) (Allocation, error) {
	var i Allocation
	err := row.Scan(&i.ID, &i.SessionID, &i.UserID, &i.ParticipantName, &i.Year, &i.Month, &i.Position,
		&i.AmountCents, &i.Percentage, &i.TotalCents, &i.Currency, &i.Status, &i.PersonalExpenseID,
		&i.CreatedAt, &i.UpdatedAt, &i.SyncAttempts, &i.LastSyncAttempt)
	return i, err
}

func (q *Queries) queryAllocations(ctx context.Context, query string, args ...interface{}) ([]Allocation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Allocation
	for rows.Next() {
		i, err := scanAllocation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getAllocation = `-- name: GetAllocation :one
SELECT ` + allocationColumns + ` FROM allocations WHERE id = ?
`

func (q *Queries) GetAllocation(ctx context.Context, id string) (Allocation, error) {
	return scanAllocation(q.db.QueryRowContext(ctx, getAllocation, id))
}

const deleteMonthAllocations = `-- name: DeleteMonthAllocations :exec
DELETE FROM allocations WHERE session_id = ? AND year = ? AND month = ?
`

func (q *Queries) DeleteMonthAllocations(ctx context.Context, sessionID string, year, month int64) error {
	_, err := q.db.ExecContext(ctx, deleteMonthAllocations, sessionID, year, month)
	return err
}

const insertAllocation = `-- name: InsertAllocation :exec
INSERT INTO allocations (` + allocationColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertAllocation(ctx context.Context, arg Allocation) error {
	_, err := q.db.ExecContext(ctx, insertAllocation,
		arg.ID, arg.SessionID, arg.UserID, arg.ParticipantName, arg.Year, arg.Month, arg.Position, arg.AmountCents,
		arg.Percentage, arg.TotalCents, arg.Currency, arg.Status, arg.PersonalExpenseID, arg.CreatedAt, arg.UpdatedAt,
		arg.SyncAttempts, arg.LastSyncAttempt)
	return err
}

const listMonthAllocations = `-- name: ListMonthAllocations :many
SELECT ` + allocationColumns + ` FROM allocations
WHERE session_id = ? AND year = ? AND month = ? ORDER BY position
`

func (q *Queries) ListMonthAllocations(ctx context.Context, sessionID string, year, month int64) ([]Allocation, error) {
	return q.queryAllocations(ctx, listMonthAllocations, sessionID, year, month)
}

const listSessionAllocations = `-- name: ListSessionAllocations :many
SELECT ` + allocationColumns + ` FROM allocations WHERE session_id = ? ORDER BY year, month, position
`

func (q *Queries) ListSessionAllocations(ctx context.Context, sessionID string) ([]Allocation, error) {
	return q.queryAllocations(ctx, listSessionAllocations, sessionID)
}

const listUserAllocations = `-- name: ListUserAllocations :many
SELECT ` + allocationColumns + ` FROM allocations
WHERE user_id = ? ORDER BY year, month, session_id, position
`

func (q *Queries) ListUserAllocations(ctx context.Context, userID string) ([]Allocation, error) {
	return q.queryAllocations(ctx, listUserAllocations, userID)
}

const listUserAllocationsByStatus = `-- name: ListUserAllocationsByStatus :many
SELECT ` + allocationColumns + ` FROM allocations
WHERE user_id = ? AND status = ? ORDER BY year, month, session_id, position
`

func (q *Queries) ListUserAllocationsByStatus(ctx context.Context, userID, status string) ([]Allocation, error) {
	return q.queryAllocations(ctx, listUserAllocationsByStatus, userID, status)
}

const updateAllocationState = `-- name: UpdateAllocationState :execrows
UPDATE allocations SET status = ?, personal_expense_id = ?, updated_at = ? WHERE id = ?
`

func (q *Queries) UpdateAllocationState(ctx context.Context, status, personalExpenseID, updatedAt, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateAllocationState, status, personalExpenseID, updatedAt, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listUnmirroredAllocations = `-- name: ListUnmirroredAllocations :many
SELECT ` + allocationColumns + ` FROM allocations
WHERE personal_expense_id = '' AND sync_attempts < ?
ORDER BY last_sync_attempt, created_at, id LIMIT ?
`

func (q *Queries) ListUnmirroredAllocations(ctx context.Context, maxAttempts, limit int64) ([]Allocation, error) {
	return q.queryAllocations(ctx, listUnmirroredAllocations, maxAttempts, limit)
}

const recordAllocationSyncFailure = `-- name: RecordAllocationSyncFailure :execrows
UPDATE allocations SET sync_attempts = sync_attempts + 1, last_sync_attempt = ? WHERE id = ?
`

func (q *Queries) RecordAllocationSyncFailure(ctx context.Context, at, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordAllocationSyncFailure, at, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const personalExpenseColumns = `id, user_id, name, description, amount_cents, currency, expense_date, category, kind,
    is_recurring, is_from_shared_session, allocation_id, allocation_status, session_id, session_name,
    session_percentage, session_total_cents, session_year, session_month, created_at, updated_at`

func scanPersonalExpense(row interface{ Scan(...any) error }) (PersonalExpense, error) {
	var i PersonalExpense
	err := row.Scan(&i.ID, &i.UserID, &i.Name, &i.Description, &i.AmountCents, &i.Currency, &i.ExpenseDate,
		&i.Category, &i.Kind, &i.IsRecurring, &i.IsFromSharedSession, &i.AllocationID, &i.AllocationStatus,
		&i.SessionID, &i.SessionName, &i.SessionPercentage, &i.SessionTotalCents, &i.SessionYear,
		&i.SessionMonth, &i.CreatedAt, &i.UpdatedAt)
	return i, err
}

func (q *Queries) queryPersonalExpenses(ctx context.Context, query string, args ...interface{}) ([]PersonalExpense, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PersonalExpense
	for rows.Next() {
		i, err := scanPersonalExpense(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getPersonalExpense = `-- name: GetPersonalExpense :one
SELECT ` + personalExpenseColumns + ` FROM personal_expenses WHERE id = ?
`

func (q *Queries) GetPersonalExpense(ctx context.Context, id string) (PersonalExpense, error) {
	return scanPersonalExpense(q.db.QueryRowContext(ctx, getPersonalExpense, id))
}

const getMirrorByAllocation = `-- name: GetMirrorByAllocation :one
SELECT ` + personalExpenseColumns + ` FROM personal_expenses
WHERE allocation_id = ? AND is_from_shared_session = 1
`

func (q *Queries) GetMirrorByAllocation(ctx context.Context, allocationID string) (PersonalExpense, error) {
	return scanPersonalExpense(q.db.QueryRowContext(ctx, getMirrorByAllocation, allocationID))
}

const getMirrorByPeriod = `-- name: GetMirrorByPeriod :one
SELECT ` + personalExpenseColumns + ` FROM personal_expenses
WHERE user_id = ? AND session_id = ? AND session_year = ? AND session_month = ? AND is_from_shared_session = 1
`

func (q *Queries) GetMirrorByPeriod(ctx context.Context, userID, sessionID string, year, month int64) (PersonalExpense, error) {
	return scanPersonalExpense(q.db.QueryRowContext(ctx, getMirrorByPeriod, userID, sessionID, year, month))
}

const insertPersonalExpense = `-- name: InsertPersonalExpense :exec
INSERT INTO personal_expenses (` + personalExpenseColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

func (q *Queries) InsertPersonalExpense(ctx context.Context, arg PersonalExpense) error {
	_, err := q.db.ExecContext(ctx, insertPersonalExpense,
		arg.ID, arg.UserID, arg.Name, arg.Description, arg.AmountCents, arg.Currency, arg.ExpenseDate,
		arg.Category, arg.Kind, arg.IsRecurring, arg.IsFromSharedSession, arg.AllocationID, arg.AllocationStatus,
		arg.SessionID, arg.SessionName, arg.SessionPercentage, arg.SessionTotalCents, arg.SessionYear,
		arg.SessionMonth, arg.CreatedAt, arg.UpdatedAt)
	return err
}

const updatePersonalExpense = `-- name: UpdatePersonalExpense :execrows
UPDATE personal_expenses SET
    user_id = ?, name = ?, description = ?, amount_cents = ?, currency = ?, expense_date = ?,
    category = ?, kind = ?, is_recurring = ?, is_from_shared_session = ?, allocation_id = ?,
    allocation_status = ?, session_id = ?, session_name = ?, session_percentage = ?,
    session_total_cents = ?, session_year = ?, session_month = ?, updated_at = ?
WHERE id = ?
`

func (q *Queries) UpdatePersonalExpense(ctx context.Context, arg PersonalExpense) (int64, error) {
	result, err := q.db.ExecContext(ctx, updatePersonalExpense,
		arg.UserID, arg.Name, arg.Description, arg.AmountCents, arg.Currency, arg.ExpenseDate,
		arg.Category, arg.Kind, arg.IsRecurring, arg.IsFromSharedSession, arg.AllocationID,
		arg.AllocationStatus, arg.SessionID, arg.SessionName, arg.SessionPercentage,
		arg.SessionTotalCents, arg.SessionYear, arg.SessionMonth, arg.UpdatedAt, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deletePersonalExpense = `-- name: DeletePersonalExpense :execrows
DELETE FROM personal_expenses WHERE id = ?
`

func (q *Queries) DeletePersonalExpense(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePersonalExpense, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listPersonalExpensesByUser = `-- name: ListPersonalExpensesByUser :many
SELECT ` + personalExpenseColumns + ` FROM personal_expenses WHERE user_id = ? ORDER BY expense_date, id
`

func (q *Queries) ListPersonalExpensesByUser(ctx context.Context, userID string) ([]PersonalExpense, error) {
	return q.queryPersonalExpenses(ctx, listPersonalExpensesByUser, userID)
}

const listMirrorsForPeriod = `-- name: ListMirrorsForPeriod :many
SELECT ` + personalExpenseColumns + ` FROM personal_expenses
WHERE session_id = ? AND session_year = ? AND session_month = ? AND is_from_shared_session = 1
`

func (q *Queries) ListMirrorsForPeriod(ctx context.Context, sessionID string, year, month int64) ([]PersonalExpense, error) {
	return q.queryPersonalExpenses(ctx, listMirrorsForPeriod, sessionID, year, month)
}
