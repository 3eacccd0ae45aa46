package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spendwise/internal/core"
)

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	UserID        int64
	Start, End    core.Date
	CategoryID    int64
	PaymentMethod core.PaymentMethod
	Search        string
	Tag           string
	Limit, Offset int
}

const expenseColumns = `e.id, e.user_id, e.category_id, c.name, e.amount_cents, e.description,
	e.transaction_date, e.merchant, e.payment_method, e.is_recurring, e.tags, e.ai_confidence,
	e.receipt_key, e.created_at, e.updated_at`

const expenseFrom = ` FROM expenses e JOIN categories c ON c.id = e.category_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                core.Expense
		date, tags       string
		created, updated string
		method           string
		confidence       sql.NullFloat64
	)
	err := s.Scan(&e.ID, &e.UserID, &e.CategoryID, &e.CategoryName, &e.Amount.Cents, &e.Description,
		&date, &e.Merchant, &method, &e.IsRecurring, &tags, &confidence,
		&e.ReceiptKey, &created, &updated)
	if err != nil {
		return core.Expense{}, err
	}
	if e.TransactionDate, err = parseStoredDate(date); err != nil {
		return core.Expense{}, err
	}
	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return core.Expense{}, fmt.Errorf("corrupt stored tags: %w", err)
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}
	if confidence.Valid {
		v := confidence.Float64
		e.AIConfidence = &v
	}
	e.PaymentMethod = core.PaymentMethod(method)
	e.CreatedAt = parseTimestamp(created)
	e.UpdatedAt = parseTimestamp(updated)
	return e, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}
	return string(b), nil
}

func nullableConfidence(c *float64) sql.NullFloat64 {
	if c == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *c, Valid: true}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) insertExpense(ctx context.Context, db execer, e core.Expense) (core.Expense, error) {
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return core.Expense{}, err
	}
	ts := r.timestamp()
	res, err := db.ExecContext(ctx, `
		INSERT INTO expenses (user_id, category_id, amount_cents, description, transaction_date,
			merchant, payment_method, is_recurring, tags, ai_confidence, receipt_key, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.UserID, e.CategoryID, e.Amount.Cents, e.Description, e.TransactionDate.String(),
		e.Merchant, string(e.PaymentMethod), boolToInt(e.IsRecurring), tags,
		nullableConfidence(e.AIConfidence), e.ReceiptKey, ts, ts)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Expense{}, core.Validationf("unknown category %d", e.CategoryID)
		}
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}
	e.CreatedAt = parseTimestamp(ts)
	e.UpdatedAt = e.CreatedAt
	return e, nil
}

func (r *Repository) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	created, err := r.insertExpense(ctx, r.db, e)
	if err != nil {
		return core.Expense{}, err
	}
	slog.InfoContext(ctx, "Expense saved to SQLite",
		"id", created.ID,
		"user_id", created.UserID,
		"amount_cents", created.Amount.Cents,
		"date", created.TransactionDate.String())
	return r.GetExpense(ctx, created.UserID, created.ID)
}

// CreateExpenses inserts all expenses in one transaction. Either every row
// is stored or none is.
func (r *Repository) CreateExpenses(ctx context.Context, expenses []core.Expense) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(expenses))
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for i, e := range expenses {
			created, err := r.insertExpense(ctx, tx, e)
			if err != nil {
				return fmt.Errorf("row %d: %w", i+1, err)
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repository) GetExpense(ctx context.Context, userID, id int64) (core.Expense, error) {
	e, err := scanExpense(r.db.QueryRowContext(ctx,
		`SELECT `+expenseColumns+expenseFrom+` WHERE e.id = ? AND e.user_id = ?`, id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, core.NotFound("expense", id)
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (f ExpenseFilter) where() (string, []any) {
	clauses := []string{"e.user_id = ?"}
	args := []any{f.UserID}
	if !f.Start.IsZero() {
		clauses = append(clauses, "e.transaction_date >= ?")
		args = append(args, f.Start.String())
	}
	if !f.End.IsZero() {
		clauses = append(clauses, "e.transaction_date <= ?")
		args = append(args, f.End.String())
	}
	if f.CategoryID > 0 {
		clauses = append(clauses, "e.category_id = ?")
		args = append(args, f.CategoryID)
	}
	if f.PaymentMethod != "" {
		clauses = append(clauses, "e.payment_method = ?")
		args = append(args, string(f.PaymentMethod))
	}
	if s := strings.ToLower(strings.TrimSpace(f.Search)); s != "" {
		clauses = append(clauses, `(LOWER(e.description) LIKE ? ESCAPE '\' OR LOWER(e.merchant) LIKE ? ESCAPE '\')`)
		like := "%" + likeEscaper.Replace(s) + "%"
		args = append(args, like, like)
	}
	if t := strings.ToLower(strings.TrimSpace(f.Tag)); t != "" {
		clauses = append(clauses, "EXISTS (SELECT 1 FROM json_each(e.tags) WHERE json_each.value = ?)")
		args = append(args, t)
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// likeEscaper makes LIKE wildcards in user input match literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// ListExpenses returns one page of matching expenses, newest first, and the
// total number of matches.
func (r *Repository) ListExpenses(ctx context.Context, f ExpenseFilter) ([]core.Expense, int, error) {
	where, args := f.where()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*)`+expenseFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count expenses: %w", err)
	}

	query := `SELECT ` + expenseColumns + expenseFrom + where +
		` ORDER BY e.transaction_date DESC, e.id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}
	out, err := r.queryExpenses(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *Repository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ExpensesForBudget returns a user's expenses in one category within
// [start, end] inclusive.
func (r *Repository) ExpensesForBudget(ctx context.Context, userID, categoryID int64, start, end core.Date) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `SELECT `+expenseColumns+expenseFrom+`
		WHERE e.user_id = ? AND e.category_id = ? AND e.transaction_date BETWEEN ? AND ?
		ORDER BY e.transaction_date, e.id`,
		userID, categoryID, start.String(), end.String())
}

// ExpensesInRange returns every expense of a user within [start, end],
// oldest first, with category names joined.
func (r *Repository) ExpensesInRange(ctx context.Context, userID int64, start, end core.Date) ([]core.Expense, error) {
	return r.queryExpenses(ctx, `SELECT `+expenseColumns+expenseFrom+`
		WHERE e.user_id = ? AND e.transaction_date BETWEEN ? AND ?
		ORDER BY e.transaction_date, e.id`,
		userID, start.String(), end.String())
}

// UpdateExpense overwrites the mutable fields of an expense owned by e.UserID.
func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	tags, err := encodeTags(e.Tags)
	if err != nil {
		return core.Expense{}, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE expenses SET category_id = ?, amount_cents = ?, description = ?, transaction_date = ?,
			merchant = ?, payment_method = ?, is_recurring = ?, tags = ?, ai_confidence = ?,
			receipt_key = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		e.CategoryID, e.Amount.Cents, e.Description, e.TransactionDate.String(),
		e.Merchant, string(e.PaymentMethod), boolToInt(e.IsRecurring), tags,
		nullableConfidence(e.AIConfidence), e.ReceiptKey, r.timestamp(), e.ID, e.UserID)
	if err != nil {
		if isForeignKeyViolation(err) {
			return core.Expense{}, core.Validationf("unknown category %d", e.CategoryID)
		}
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.Expense{}, core.NotFound("expense", e.ID)
	}
	return r.GetExpense(ctx, e.UserID, e.ID)
}

func (r *Repository) DeleteExpense(ctx context.Context, userID, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("expense", id)
	}
	return nil
}

func (r *Repository) SetReceiptKey(ctx context.Context, userID, id int64, key string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE expenses SET receipt_key = ?, updated_at = ? WHERE id = ? AND user_id = ?`,
		key, r.timestamp(), id, userID)
	if err != nil {
		return fmt.Errorf("set receipt key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFound("expense", id)
	}
	return nil
}

// RecordFeedback appends a category correction to the feedback log.
func (r *Repository) RecordFeedback(ctx context.Context, fb core.CategorizationFeedback) error {
	var suggested sql.NullInt64
	if fb.SuggestedCategoryID > 0 {
		suggested = sql.NullInt64{Int64: fb.SuggestedCategoryID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categorization_feedback (expense_id, user_id, description, merchant,
			suggested_category_id, corrected_category_id, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		fb.ExpenseID, fb.UserID, fb.Description, fb.Merchant,
		suggested, fb.CorrectedCategoryID, nullableConfidence(fb.Confidence), r.timestamp())
	if err != nil {
		return fmt.Errorf("record categorization feedback: %w", err)
	}
	return nil
}

// CountFeedback returns how many corrections a user has logged.
func (r *Repository) CountFeedback(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM categorization_feedback WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count feedback: %w", err)
	}
	return n, nil
}
