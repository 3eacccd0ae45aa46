// Package analytics answers read-only aggregate questions about a user's
// expenses over calendar windows.
package analytics

import (
	"time"

	"spendwise/internal/budget"
	"spendwise/internal/core"
	"spendwise/internal/storage"
)

// Period tokens accepted by ResolveWindow.
const (
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
	PeriodCustom  = "custom"
)

// Window is an inclusive calendar range.
type Window struct {
	Period string    `json:"period"`
	Start  core.Date `json:"start"`
	End    core.Date `json:"end"`
}

// Days returns the number of calendar days in the window.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start.Time)/(24*time.Hour)) + 1
}

// ResolveWindow returns the calendar period named by token that contains
// now, and the period immediately before it. Weeks start on Monday.
func ResolveWindow(token string, now time.Time) (current, previous Window, err error) {
	today := core.DateOf(now)
	switch token {
	case PeriodWeek:
		offset := (int(today.Weekday()) + 6) % 7
		start := core.Date{Time: today.AddDate(0, 0, -offset)}
		current = Window{Period: token, Start: start, End: core.Date{Time: start.AddDate(0, 0, 6)}}
		prevStart := core.Date{Time: start.AddDate(0, 0, -7)}
		previous = Window{Period: token, Start: prevStart, End: core.Date{Time: prevStart.AddDate(0, 0, 6)}}
		return current, previous, nil
	case PeriodMonth:
		return calendarWindows(token, budget.MonthlyPeriod{}, today, 0, -1)
	case PeriodQuarter:
		return calendarWindows(token, budget.QuarterlyPeriod{}, today, 0, -3)
	case PeriodYear:
		return calendarWindows(token, budget.YearlyPeriod{}, today, -1, 0)
	}
	return Window{}, Window{}, core.Validationf("unsupported period %q: use week, month, quarter or year", token)
}

func calendarWindows(token string, s budget.PeriodStrategy, today core.Date, years, months int) (Window, Window, error) {
	start, end := s.Bounds(today)
	prevStart, prevEnd := s.Bounds(core.Date{Time: start.AddDate(years, months, 0)})
	return Window{Period: token, Start: start, End: end},
		Window{Period: token, Start: prevStart, End: prevEnd}, nil
}

// CustomWindow validates an explicit range and pairs it with the window of
// equal length ending the day before start.
func CustomWindow(start, end core.Date) (current, previous Window, err error) {
	if start.IsZero() || end.IsZero() {
		return Window{}, Window{}, core.Validation("both start and end dates are required")
	}
	if end.Before(start.Time) {
		return Window{}, Window{}, core.Validation("end date must not be before start date")
	}
	current = Window{Period: PeriodCustom, Start: start, End: end}
	days := current.Days()
	prevEnd := core.Date{Time: start.AddDate(0, 0, -1)}
	previous = Window{Period: PeriodCustom, Start: core.Date{Time: prevEnd.AddDate(0, 0, -(days - 1))}, End: prevEnd}
	return current, previous, nil
}

// DefaultGroupBy picks a bucket size that keeps charts readable: daily up to
// a month, weekly up to a quarter, monthly beyond.
func DefaultGroupBy(w Window) storage.GroupBy {
	switch days := w.Days(); {
	case days <= 31:
		return storage.GroupByDay
	case days <= 92:
		return storage.GroupByWeek
	default:
		return storage.GroupByMonth
	}
}

// BucketStart returns the first day of the bucket containing d.
func BucketStart(d core.Date, g storage.GroupBy) core.Date {
	switch g {
	case storage.GroupByWeek:
		offset := (int(d.Weekday()) + 6) % 7
		return core.Date{Time: d.AddDate(0, 0, -offset)}
	case storage.GroupByMonth:
		return core.NewDate(d.Year(), int(d.Month()), 1)
	default:
		return d
	}
}

func nextBucket(d core.Date, g storage.GroupBy) core.Date {
	switch g {
	case storage.GroupByWeek:
		return core.Date{Time: d.AddDate(0, 0, 7)}
	case storage.GroupByMonth:
		return core.Date{Time: d.AddDate(0, 1, 0)}
	default:
		return core.Date{Time: d.AddDate(0, 0, 1)}
	}
}

// PctChange is the percentage change from before to after. A change from
// zero is 100 when after is positive and 0 otherwise.
func PctChange(before, after int64) float64 {
	if before == 0 {
		if after > 0 {
			return 100
		}
		return 0
	}
	return float64(after-before) / float64(before) * 100
}
