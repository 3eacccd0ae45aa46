package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/budget"
	"spendwise/internal/core"
)

// Clock returns the current time. Services never call time.Now directly.
type Clock func() time.Time

// BudgetStore is the persistence BudgetService needs.
type BudgetStore interface {
	CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
	GetBudget(ctx context.Context, userID, id int64) (core.Budget, error)
	ListActiveBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	UpdateBudgetAmount(ctx context.Context, userID, id int64, amount core.Money) (core.Budget, error)
	DeactivateBudget(ctx context.Context, userID, id int64) error
	ExpensesForBudget(ctx context.Context, userID, categoryID int64, start, end core.Date) ([]core.Expense, error)
}

// BudgetService creates budgets and derives their summaries and alerts.
type BudgetService struct {
	store  BudgetStore
	now    Clock
	logger *slog.Logger
}

func NewBudgetService(store BudgetStore, now Clock, logger *slog.Logger) *BudgetService {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BudgetService{store: store, now: now, logger: logger}
}

type CreateBudgetInput struct {
	CategoryID    int64      `json:"categoryId"`
	Amount        core.Money `json:"amount"`
	Period        string     `json:"period"`
	ReferenceDate *core.Date `json:"referenceDate,omitempty"`
}

type UpdateBudgetInput struct {
	Amount   *core.Money `json:"amount,omitempty"`
	IsActive *bool       `json:"isActive,omitempty"`
}

// Create derives the period bounds from the reference date (today by
// default) and stores the budget.
func (s *BudgetService) Create(ctx context.Context, userID int64, in CreateBudgetInput) (core.BudgetSummary, error) {
	period, err := core.ParsePeriod(in.Period)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	ref := s.now()
	if in.ReferenceDate != nil && !in.ReferenceDate.IsZero() {
		ref = in.ReferenceDate.Time
	}
	start, end, err := budget.PeriodBounds(period, ref)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	b := core.Budget{
		UserID:     userID,
		CategoryID: in.CategoryID,
		Amount:     in.Amount,
		Period:     period,
		StartDate:  start,
		EndDate:    end,
		IsActive:   true,
	}
	if err := b.Validate(); err != nil {
		return core.BudgetSummary{}, core.AsValidation(err)
	}
	created, err := s.store.CreateBudget(ctx, b)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	s.logger.InfoContext(ctx, "Budget created",
		"user_id", userID, "budget_id", created.ID, "category_id", created.CategoryID,
		"period", created.Period, "start", created.StartDate.String())
	return s.summarize(ctx, created)
}

func (s *BudgetService) Get(ctx context.Context, userID, id int64) (core.BudgetSummary, error) {
	b, err := s.store.GetBudget(ctx, userID, id)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	return s.summarize(ctx, b)
}

// List summarizes every active budget. Expense queries run concurrently,
// results keep the store's order.
func (s *BudgetService) List(ctx context.Context, userID int64) ([]core.BudgetSummary, error) {
	budgets, err := s.store.ListActiveBudgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]core.BudgetSummary, len(budgets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, b := range budgets {
		g.Go(func() error {
			sum, err := s.summarize(gctx, b)
			if err != nil {
				return err
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Update changes the amount and/or deactivates the budget. Inactive budgets
// are not found, so they cannot be reactivated.
func (s *BudgetService) Update(ctx context.Context, userID, id int64, in UpdateBudgetInput) (core.BudgetSummary, error) {
	if in.Amount == nil && in.IsActive == nil {
		return core.BudgetSummary{}, core.Validation("nothing to update")
	}
	b, err := s.store.GetBudget(ctx, userID, id)
	if err != nil {
		return core.BudgetSummary{}, err
	}
	if in.Amount != nil {
		if err := in.Amount.Validate(); err != nil {
			return core.BudgetSummary{}, core.AsValidation(err)
		}
		if b, err = s.store.UpdateBudgetAmount(ctx, userID, id, *in.Amount); err != nil {
			return core.BudgetSummary{}, err
		}
	}
	if in.IsActive != nil && !*in.IsActive {
		if err := s.store.DeactivateBudget(ctx, userID, id); err != nil {
			return core.BudgetSummary{}, err
		}
		b.IsActive = false
	}
	s.logger.InfoContext(ctx, "Budget updated", "user_id", userID, "budget_id", id, "active", b.IsActive)
	return s.summarize(ctx, b)
}

// Delete is a soft delete.
func (s *BudgetService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.DeactivateBudget(ctx, userID, id); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "Budget deactivated", "user_id", userID, "budget_id", id)
	return nil
}

// Alerts evaluates every active budget of the user.
func (s *BudgetService) Alerts(ctx context.Context, userID int64) ([]core.Alert, error) {
	summaries, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	return budget.GenerateAlerts(summaries), nil
}

func (s *BudgetService) summarize(ctx context.Context, b core.Budget) (core.BudgetSummary, error) {
	expenses, err := s.store.ExpensesForBudget(ctx, b.UserID, b.CategoryID, b.StartDate, b.EndDate)
	if err != nil {
		return core.BudgetSummary{}, fmt.Errorf("load expenses for budget %d: %w", b.ID, err)
	}
	return budget.ComputeSummary(b, expenses, s.now()), nil
}
