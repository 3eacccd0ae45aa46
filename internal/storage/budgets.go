package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spendwise/internal/core"
)

const budgetColumns = `b.id, b.user_id, b.category_id, c.name, b.amount_cents, b.period,
	b.start_date, b.end_date, b.is_active, b.created_at, b.updated_at`

const budgetFrom = ` FROM budgets b JOIN categories c ON c.id = b.category_id`

func scanBudget(s rowScanner) (core.Budget, error) {
	var (
		b                core.Budget
		period           string
		start, end       string
		created, updated string
	)
	err := s.Scan(&b.ID, &b.UserID, &b.CategoryID, &b.CategoryName, &b.Amount.Cents, &period,
		&start, &end, &b.IsActive, &created, &updated)
	if err != nil {
		return core.Budget{}, err
	}
	b.Period = core.Period(period)
	if b.StartDate, err = parseStoredDate(start); err != nil {
		return core.Budget{}, err
	}
	if b.EndDate, err = parseStoredDate(end); err != nil {
		return core.Budget{}, err
	}
	b.CreatedAt = parseTimestamp(created)
	b.UpdatedAt = parseTimestamp(updated)
	return b, nil
}

// CreateBudget stores an active budget. A second active budget for the same
// (user, category, period, start date) fails with core.ErrConflict.
func (r *Repository) CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error) {
	ts := r.timestamp()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, category_id, amount_cents, period, start_date, end_date,
			is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		b.UserID, b.CategoryID, b.Amount.Cents, string(b.Period),
		b.StartDate.String(), b.EndDate.String(), ts, ts)
	if err != nil {
		switch {
		case isUniqueViolation(err):
			return core.Budget{}, core.Conflict(fmt.Sprintf(
				"an active %s budget for category %d starting %s already exists",
				b.Period, b.CategoryID, b.StartDate))
		case isForeignKeyViolation(err):
			return core.Budget{}, core.Validationf("unknown category %d", b.CategoryID)
		}
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Budget{}, fmt.Errorf("create budget: %w", err)
	}
	return r.GetBudget(ctx, b.UserID, id)
}

// GetBudget returns an active budget owned by userID.
func (r *Repository) GetBudget(ctx context.Context, userID, id int64) (core.Budget, error) {
	b, err := scanBudget(r.db.QueryRowContext(ctx,
		`SELECT `+budgetColumns+budgetFrom+` WHERE b.id = ? AND b.user_id = ? AND b.is_active = 1`,
		id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Budget{}, core.NotFound("budget", id)
	}
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	return b, nil
}

func (r *Repository) ListActiveBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+budgetColumns+budgetFrom+` WHERE b.user_id = ? AND b.is_active = 1
		 ORDER BY b.start_date DESC, b.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets: %w", err)
	}
	defer rows.Close()

	out := []core.Budget{}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateBudgetAmount changes the amount of an active budget.
func (r *Repository) UpdateBudgetAmount(ctx context.Context, userID, id int64, amount core.Money) (core.Budget, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET amount_cents = ?, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = 1`,
		amount.Cents, r.timestamp(), id, userID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("update budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Budget{}, core.NotFound("budget", id)
	}
	return r.GetBudget(ctx, userID, id)
}

// DeactivateBudget soft-deletes a budget.
func (r *Repository) DeactivateBudget(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE budgets SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ? AND is_active = 1`,
		r.timestamp(), id, userID)
	if err != nil {
		return fmt.Errorf("deactivate budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("budget", id)
	}
	return nil
}
