package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/core"
)

const day = 24 * time.Hour

// Status thresholds, in percent of the budget amount.
var (
	exceededAt = decimal.NewFromInt(100)
	criticalAt = decimal.NewFromInt(90)
	cautionAt  = decimal.NewFromInt(75)
	hundred    = decimal.NewFromInt(100)
)

// StatusFor maps a spend percentage to a status.
func StatusFor(percentage decimal.Decimal) core.BudgetStatus {
	switch {
	case percentage.GreaterThanOrEqual(exceededAt):
		return core.StatusExceeded
	case percentage.GreaterThanOrEqual(criticalAt):
		return core.StatusCritical
	case percentage.GreaterThanOrEqual(cautionAt):
		return core.StatusCaution
	default:
		return core.StatusGood
	}
}

// ceilDays rounds d up to whole days. Negative durations round toward zero.
func ceilDays(d time.Duration) int {
	n := d / day
	if d%day > 0 {
		n++
	}
	return int(n)
}

// ComputeSummary derives spend, status and projection for b.
//
// Expenses outside [StartDate, EndDate] or in another category are ignored.
// The period ends at the last instant of EndDate, so a 30 day month has
// TotalDays 30. When now is past EndDate the daily average keeps using the
// days elapsed up to now and DaysRemaining is 0.
func ComputeSummary(b core.Budget, expenses []core.Expense, now time.Time) core.BudgetSummary {
	var spent core.Money
	count := 0
	for _, e := range expenses {
		if e.CategoryID != b.CategoryID || !e.TransactionDate.Within(b.StartDate, b.EndDate) {
			continue
		}
		spent = spent.Add(e.Amount)
		count++
	}

	s := core.BudgetSummary{
		Budget:       b,
		Spent:        spent,
		Remaining:    b.Amount.Sub(spent),
		Percentage:   decimal.Zero,
		ExpenseCount: count,
	}
	if b.Amount.Cents > 0 {
		s.Percentage = spent.Decimal().Div(b.Amount.Decimal()).Mul(hundred)
	}
	s.Status = StatusFor(s.Percentage)
	if count > 0 {
		s.AverageTransaction = spent.Div(int64(count))
	}
	s.Projection = project(b, spent, now)
	return s
}

func project(b core.Budget, spent core.Money, now time.Time) core.Projection {
	start := b.StartDate.Time
	end := b.EndDate.EndOfDay()

	p := core.Projection{
		TotalDays:      ceilDays(end.Sub(start)),
		DaysRemaining:  max(0, ceilDays(end.Sub(now))),
		DailyAverage:   decimal.Zero,
		EstimatedTotal: decimal.Zero,
		OnTrack:        true,
	}
	elapsed := ceilDays(now.Sub(start))
	if elapsed <= 0 {
		return p
	}
	p.DaysElapsed = elapsed
	p.DailyAverage = spent.Decimal().Div(decimal.NewFromInt(int64(elapsed)))
	p.EstimatedTotal = p.DailyAverage.Mul(decimal.NewFromInt(int64(p.TotalDays)))
	p.OnTrack = p.EstimatedTotal.LessThanOrEqual(b.Amount.Decimal())
	return p
}
