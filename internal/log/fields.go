package log

import "sharedspese/internal/core"

// Common field names for structured logging
const (
	FieldComponent    = "component"
	FieldError        = "error"
	FieldOperation    = "operation"
	FieldSessionID    = "session_id"
	FieldAllocationID = "allocation_id"
	FieldExpenseID    = "expense_id"
	FieldMirrorID     = "personal_expense_id"
	FieldUserID       = "user_id"
	FieldYear         = "year"
	FieldMonth        = "month"
	FieldAmountCents  = "amount_cents"
	FieldStatus       = "status"
	FieldDuration     = "duration_ms"
)

// Components defines standard component names
const (
	ComponentGenerator = "month_generator"
	ComponentWorker    = "mirror_worker"
	ComponentCLI       = "cli"
)

// Operations defines standard operation names
const (
	OpAddExpense     = "add_expense"
	OpUpdateExpense  = "update_expense"
	OpRemoveExpense  = "remove_expense"
	OpDistribution   = "update_distribution"
	OpSetStatus      = "set_allocation_status"
	OpSync           = "sync"
	OpEnsureMonths   = "ensure_months"
	OpAdvance        = "check_and_advance"
	OpRebalance      = "rebalance"
	OpSweep          = "sweep"
	OpReconcile      = "reconcile"
	OpSessionCreate  = "create_session"
	OpSessionUpdate  = "update_session"
	OpSessionArchive = "archive_session"
	OpShutdown       = "shutdown"
	OpStartup        = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithSession(sessionID string) LogFields {
	f[FieldSessionID] = sessionID
	return f
}

func (f LogFields) WithPeriod(ym core.YearMonth) LogFields {
	f[FieldYear] = ym.Year
	f[FieldMonth] = int(ym.Month)
	return f
}

// WithAllocation adds the identifying fields of an allocation.
func (f LogFields) WithAllocation(a core.Allocation) LogFields {
	f[FieldAllocationID] = a.ID
	f[FieldSessionID] = a.SessionID
	f[FieldUserID] = a.UserID
	f[FieldAmountCents] = a.Amount.Cents
	return f.WithPeriod(a.Period())
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
