// Package budget computes budget summaries, projections and alerts.
//
// Everything here is pure: callers pass the budget, its expenses and "now".
package budget

import (
	"time"

	"spendwise/internal/core"
)

// PeriodStrategy derives the calendar window of a budget period.
// Each period type has its own implementation.
type PeriodStrategy interface {
	// Bounds returns the first and last day of the period containing ref.
	Bounds(ref core.Date) (start, end core.Date)
}

// MonthlyPeriod covers the calendar month of the reference date.
type MonthlyPeriod struct{}

func (MonthlyPeriod) Bounds(ref core.Date) (core.Date, core.Date) {
	start := core.NewDate(ref.Year(), int(ref.Month()), 1)
	return start, core.Date{Time: start.AddDate(0, 1, -1)}
}

// QuarterlyPeriod covers the 3-month block (Jan-Mar, Apr-Jun, ...) containing the reference date.
type QuarterlyPeriod struct{}

func (QuarterlyPeriod) Bounds(ref core.Date) (core.Date, core.Date) {
	firstMonth := (int(ref.Month())-1)/3*3 + 1
	start := core.NewDate(ref.Year(), firstMonth, 1)
	return start, core.Date{Time: start.AddDate(0, 3, -1)}
}

// YearlyPeriod covers Jan 1 to Dec 31.
type YearlyPeriod struct{}

func (YearlyPeriod) Bounds(ref core.Date) (core.Date, core.Date) {
	return core.NewDate(ref.Year(), 1, 1), core.NewDate(ref.Year(), 12, 31)
}

var periodStrategies = map[core.Period]PeriodStrategy{
	core.Monthly:   MonthlyPeriod{},
	core.Quarterly: QuarterlyPeriod{},
	core.Yearly:    YearlyPeriod{},
}

// StrategyFor returns the strategy for a period, or a validation error.
func StrategyFor(p core.Period) (PeriodStrategy, error) {
	s, ok := periodStrategies[p]
	if !ok {
		return nil, core.Validationf("unsupported budget period %q", string(p))
	}
	return s, nil
}

// PeriodBounds returns the [start, end] calendar window of period around ref.
// The calendar date of ref is taken in ref's own location.
func PeriodBounds(p core.Period, ref time.Time) (start, end core.Date, err error) {
	s, err := StrategyFor(p)
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	start, end = s.Bounds(core.DateOf(ref))
	return start, end, nil
}
