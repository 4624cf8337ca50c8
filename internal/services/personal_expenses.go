package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"sharedspese/internal/core"
	"sharedspese/internal/storage"
)

// PersonalExpenseInput is a user-entered personal expense or income.
type PersonalExpenseInput struct {
	Name        string
	Description string
	Amount      core.Money
	Currency    string
	Date        time.Time
	Category    string
	Kind        core.ExpenseKind
	Recurring   bool
}

func (in PersonalExpenseInput) apply(p *core.PersonalExpense) {
	p.Name = strings.TrimSpace(in.Name)
	p.Description = strings.TrimSpace(in.Description)
	p.Amount = in.Amount
	p.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	p.Date = in.Date
	p.Category = strings.TrimSpace(in.Category)
	p.Kind = in.Kind
	if p.Kind == "" {
		p.Kind = core.KindExpense
	}
	p.IsRecurring = in.Recurring
}

// CreatePersonalExpense records an entry in the actor's own list.
func (s *CalendarService) CreatePersonalExpense(ctx context.Context, actorID string, in PersonalExpenseInput) (*core.PersonalExpense, error) {
	now := s.now()
	p := &core.PersonalExpense{ID: s.newID(), UserID: actorID, CreatedAt: now, UpdatedAt: now}
	in.apply(p)
	if err := p.Validate(); err != nil {
		return nil, err
	}

	err := s.atomic(ctx, "create_personal_expense", func(tx storage.Store) error {
		if p.Currency == "" {
			u, err := tx.GetUser(ctx, actorID)
			if err != nil {
				return fmt.Errorf("load user: %w", err)
			}
			p.Currency = u.Currency
		}
		if p.Currency == "" {
			p.Currency = core.DefaultCurrency
		}
		return tx.CreatePersonalExpense(ctx, *p)
	})
	if err != nil {
		return nil, fmt.Errorf("create personal expense: %w", err)
	}

	slog.InfoContext(ctx, "Personal expense created",
		"user_id", actorID,
		"expense_id", p.ID,
		"amount_cents", p.Amount.Cents)
	return p, nil
}

// ownPersonalExpense loads an entry the actor may change. Mirrors are
// owned by the sync process and always refused.
func ownPersonalExpense(ctx context.Context, tx storage.Store, actorID, id string) (*core.PersonalExpense, error) {
	p, err := tx.GetPersonalExpense(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != actorID {
		return nil, fmt.Errorf("user %s on personal expense %s: %w", actorID, id, core.ErrForbidden)
	}
	if p.IsFromSharedSession {
		return nil, fmt.Errorf("personal expense %s: %w", id, core.ErrMirrorReadOnly)
	}
	return p, nil
}

// UpdatePersonalExpense edits one of the actor's own entries.
func (s *CalendarService) UpdatePersonalExpense(ctx context.Context, actorID, id string, in PersonalExpenseInput) (*core.PersonalExpense, error) {
	var out *core.PersonalExpense
	err := s.atomic(ctx, "update_personal_expense", func(tx storage.Store) error {
		p, err := ownPersonalExpense(ctx, tx, actorID, id)
		if err != nil {
			return err
		}
		currency := p.Currency
		in.apply(p)
		if p.Currency == "" {
			p.Currency = currency
		}
		p.UpdatedAt = s.now()
		if err := p.Validate(); err != nil {
			return err
		}
		if err := tx.UpdatePersonalExpense(ctx, *p); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update personal expense: %w", err)
	}
	return out, nil
}

// DeletePersonalExpense removes one of the actor's own entries.
func (s *CalendarService) DeletePersonalExpense(ctx context.Context, actorID, id string) error {
	err := s.atomic(ctx, "delete_personal_expense", func(tx storage.Store) error {
		if _, err := ownPersonalExpense(ctx, tx, actorID, id); err != nil {
			return err
		}
		return tx.DeletePersonalExpense(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete personal expense: %w", err)
	}
	slog.InfoContext(ctx, "Personal expense deleted", "user_id", actorID, "expense_id", id)
	return nil
}

// ListPersonalExpenses returns the user's list, mirrors included.
func (s *CalendarService) ListPersonalExpenses(ctx context.Context, userID string) ([]core.PersonalExpense, error) {
	return s.store.ListPersonalExpenses(ctx, userID)
}
