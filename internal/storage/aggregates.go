package storage

import (
	"context"
	"fmt"

	"spendwise/internal/core"
)

// Totals is the scalar aggregate of a set of expenses. Min and Max are 0
// when Count is 0.
type Totals struct {
	Total core.Money
	Count int64
	Min   core.Money
	Max   core.Money
}

type CategoryTotal struct {
	CategoryID int64
	Name       string
	Color      string
	Icon       string
	Total      core.Money
	Count      int64
}

type MethodTotal struct {
	Method core.PaymentMethod
	Total  core.Money
	Count  int64
}

// BucketTotal is a time bucket keyed by the bucket's first day.
type BucketTotal struct {
	Start core.Date
	Total core.Money
	Count int64
}

type MerchantTotal struct {
	Merchant string
	Total    core.Money
	Count    int64
	Last     core.Date
}

// GroupBy is a time bucketing granularity.
type GroupBy string

const (
	GroupByDay   GroupBy = "day"
	GroupByWeek  GroupBy = "week"
	GroupByMonth GroupBy = "month"
)

// bucketExpr returns the SQL expression for the first day of the bucket.
// Weeks start on Monday.
func (g GroupBy) bucketExpr() (string, error) {
	switch g {
	case GroupByDay:
		return "e.transaction_date", nil
	case GroupByWeek:
		return "date(e.transaction_date, '-6 days', 'weekday 1')", nil
	case GroupByMonth:
		return "strftime('%Y-%m-01', e.transaction_date)", nil
	}
	return "", core.Validationf("unsupported grouping %q", string(g))
}

func (r *Repository) Totals(ctx context.Context, f ExpenseFilter) (Totals, error) {
	where, args := f.where()
	var t Totals
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(e.amount_cents), 0), COUNT(*),
		       COALESCE(MIN(e.amount_cents), 0), COALESCE(MAX(e.amount_cents), 0)`+
		expenseFrom+where, args...).
		Scan(&t.Total.Cents, &t.Count, &t.Min.Cents, &t.Max.Cents)
	if err != nil {
		return Totals{}, fmt.Errorf("aggregate totals: %w", err)
	}
	return t, nil
}

// TotalsByCategory returns per-category sums, largest first.
func (r *Repository) TotalsByCategory(ctx context.Context, f ExpenseFilter) ([]CategoryTotal, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.color, c.icon, SUM(e.amount_cents), COUNT(*)`+
		expenseFrom+where+`
		GROUP BY c.id, c.name, c.color, c.icon
		ORDER BY SUM(e.amount_cents) DESC, c.name`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by category: %w", err)
	}
	defer rows.Close()

	out := []CategoryTotal{}
	for rows.Next() {
		var ct CategoryTotal
		if err := rows.Scan(&ct.CategoryID, &ct.Name, &ct.Color, &ct.Icon, &ct.Total.Cents, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, ct)
	}
	return out, rows.Err()
}

func (r *Repository) TotalsByPaymentMethod(ctx context.Context, f ExpenseFilter) ([]MethodTotal, error) {
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.payment_method, SUM(e.amount_cents), COUNT(*)`+
		expenseFrom+where+`
		GROUP BY e.payment_method
		ORDER BY SUM(e.amount_cents) DESC, e.payment_method`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by payment method: %w", err)
	}
	defer rows.Close()

	out := []MethodTotal{}
	for rows.Next() {
		var (
			mt     MethodTotal
			method string
		)
		if err := rows.Scan(&method, &mt.Total.Cents, &mt.Count); err != nil {
			return nil, fmt.Errorf("scan payment method total: %w", err)
		}
		mt.Method = core.PaymentMethod(method)
		out = append(out, mt)
	}
	return out, rows.Err()
}

// TotalsByBucket returns sums per time bucket in chronological order. Empty
// buckets are not returned.
func (r *Repository) TotalsByBucket(ctx context.Context, f ExpenseFilter, g GroupBy) ([]BucketTotal, error) {
	expr, err := g.bucketExpr()
	if err != nil {
		return nil, err
	}
	where, args := f.where()
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+expr+` AS bucket, SUM(e.amount_cents), COUNT(*)`+
		expenseFrom+where+`
		GROUP BY bucket
		ORDER BY bucket`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate by %s: %w", g, err)
	}
	defer rows.Close()

	out := []BucketTotal{}
	for rows.Next() {
		var (
			bt     BucketTotal
			bucket string
		)
		if err := rows.Scan(&bucket, &bt.Total.Cents, &bt.Count); err != nil {
			return nil, fmt.Errorf("scan bucket total: %w", err)
		}
		if bt.Start, err = parseStoredDate(bucket); err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rows.Err()
}

// TopMerchants ranks non-empty merchants by total spend.
func (r *Repository) TopMerchants(ctx context.Context, f ExpenseFilter, limit int) ([]MerchantTotal, error) {
	where, args := f.where()
	args = append(args, limit)
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.merchant, SUM(e.amount_cents), COUNT(*), MAX(e.transaction_date)`+
		expenseFrom+where+` AND e.merchant <> ''
		GROUP BY e.merchant
		ORDER BY SUM(e.amount_cents) DESC, e.merchant
		LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregate merchants: %w", err)
	}
	defer rows.Close()

	out := []MerchantTotal{}
	for rows.Next() {
		var (
			mt   MerchantTotal
			last string
		)
		if err := rows.Scan(&mt.Merchant, &mt.Total.Cents, &mt.Count, &last); err != nil {
			return nil, fmt.Errorf("scan merchant total: %w", err)
		}
		if mt.Last, err = parseStoredDate(last); err != nil {
			return nil, err
		}
		out = append(out, mt)
	}
	return out, rows.Err()
}
