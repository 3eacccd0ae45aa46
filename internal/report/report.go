// Package report assembles a user's expenses over a date range into the
// views used by the export formats, and writes those views out.
package report

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"spendwise/internal/analytics"
	"spendwise/internal/core"
	"spendwise/internal/storage"
)

const topMerchants = 10

// Store loads the expenses of a range with their category names.
type Store interface {
	ExpensesInRange(ctx context.Context, userID int64, start, end core.Date) ([]core.Expense, error)
}

type Assembler struct {
	store Store
	now   func() time.Time
}

func NewAssembler(store Store, now func() time.Time) *Assembler {
	if now == nil {
		now = time.Now
	}
	return &Assembler{store: store, now: now}
}

type CategoryLine struct {
	CategoryID int64      `json:"categoryId"`
	Name       string     `json:"name"`
	Total      core.Money `json:"total"`
	Count      int64      `json:"count"`
	Percentage float64    `json:"percentage"`
}

// DayTotal is the spend of a single calendar day.
type DayTotal struct {
	Date  core.Date  `json:"date"`
	Total core.Money `json:"total"`
}

type Insights struct {
	Median       core.Money    `json:"median"`
	Largest      *core.Expense `json:"largest,omitempty"`
	Smallest     *core.Expense `json:"smallest,omitempty"`
	WeekdayTotal core.Money    `json:"weekdayTotal"`
	WeekendTotal core.Money    `json:"weekendTotal"`
	// WeekendRatio compares average spend per weekend day with average spend
	// per weekday in the range. Zero when either side has no days or no spend.
	WeekendRatio float64   `json:"weekendRatio"`
	TopDay       *DayTotal `json:"topDay,omitempty"`
}

type Report struct {
	UserID         int64                    `json:"userId"`
	Start          core.Date                `json:"start"`
	End            core.Date                `json:"end"`
	GeneratedAt    time.Time                `json:"generatedAt"`
	Total          core.Money               `json:"total"`
	Count          int                      `json:"count"`
	Average        core.Money               `json:"average"`
	Categories     []CategoryLine           `json:"categories"`
	GroupBy        storage.GroupBy          `json:"groupBy"`
	Trend          []analytics.TrendPoint   `json:"trend"`
	Merchants      []analytics.MerchantStat `json:"merchants"`
	PaymentMethods []analytics.MethodShare  `json:"paymentMethods"`
	Transactions   []core.Expense           `json:"transactions"`
	Insights       Insights                 `json:"insights"`
}

// Assemble loads the range and derives every report view from it.
func (a *Assembler) Assemble(ctx context.Context, userID int64, start, end core.Date) (*Report, error) {
	w, _, err := analytics.CustomWindow(start, end)
	if err != nil {
		return nil, err
	}
	expenses, err := a.store.ExpensesInRange(ctx, userID, w.Start, w.End)
	if err != nil {
		return nil, fmt.Errorf("load report expenses: %w", err)
	}
	return Build(userID, w, expenses, a.now()), nil
}

// Build derives the report views from already-loaded expenses.
func Build(userID int64, w analytics.Window, expenses []core.Expense, generatedAt time.Time) *Report {
	r := &Report{
		UserID:       userID,
		Start:        w.Start,
		End:          w.End,
		GeneratedAt:  generatedAt.UTC(),
		Count:        len(expenses),
		GroupBy:      analytics.DefaultGroupBy(w),
		Transactions: slices.Clone(expenses),
	}
	if r.Transactions == nil {
		r.Transactions = []core.Expense{}
	}
	slices.SortStableFunc(r.Transactions, func(a, b core.Expense) int {
		if c := b.TransactionDate.Compare(a.TransactionDate.Time); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	for _, e := range expenses {
		r.Total = r.Total.Add(e.Amount)
	}
	r.Average = r.Total.Div(int64(len(expenses)))
	r.Categories = categoryLines(expenses, r.Total)
	r.Trend = trend(w, r.GroupBy, expenses)
	r.Merchants = merchants(expenses)
	r.PaymentMethods = paymentMethods(expenses, r.Total)
	r.Insights = insights(w, expenses)
	return r
}

func categoryLines(expenses []core.Expense, total core.Money) []CategoryLine {
	index := map[int64]int{}
	lines := []CategoryLine{}
	for _, e := range expenses {
		i, ok := index[e.CategoryID]
		if !ok {
			i = len(lines)
			index[e.CategoryID] = i
			lines = append(lines, CategoryLine{CategoryID: e.CategoryID, Name: e.CategoryName})
		}
		lines[i].Total = lines[i].Total.Add(e.Amount)
		lines[i].Count++
	}
	for i := range lines {
		lines[i].Percentage = lines[i].Total.PercentOf(total)
	}
	slices.SortStableFunc(lines, func(a, b CategoryLine) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return lines
}

func trend(w analytics.Window, g storage.GroupBy, expenses []core.Expense) []analytics.TrendPoint {
	points, err := analytics.BucketsFor(w, g)
	if err != nil {
		return []analytics.TrendPoint{}
	}
	byStart := make(map[string]int, len(points))
	for i, p := range points {
		byStart[p.Start.String()] = i
	}
	for _, e := range expenses {
		if i, ok := byStart[analytics.BucketStart(e.TransactionDate, g).String()]; ok {
			points[i].Total = points[i].Total.Add(e.Amount)
			points[i].Count++
		}
	}
	return points
}

func merchants(expenses []core.Expense) []analytics.MerchantStat {
	index := map[string]int{}
	var rows []storage.MerchantTotal
	for _, e := range expenses {
		name := strings.TrimSpace(e.Merchant)
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			i = len(rows)
			index[name] = i
			rows = append(rows, storage.MerchantTotal{Merchant: name})
		}
		rows[i].Total = rows[i].Total.Add(e.Amount)
		rows[i].Count++
		if e.TransactionDate.After(rows[i].Last.Time) {
			rows[i].Last = e.TransactionDate
		}
	}
	slices.SortStableFunc(rows, func(a, b storage.MerchantTotal) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return strings.Compare(a.Merchant, b.Merchant)
	})
	if len(rows) > topMerchants {
		rows = rows[:topMerchants]
	}
	return analytics.MerchantStats(rows)
}

func paymentMethods(expenses []core.Expense, total core.Money) []analytics.MethodShare {
	index := map[core.PaymentMethod]int{}
	out := []analytics.MethodShare{}
	for _, e := range expenses {
		i, ok := index[e.PaymentMethod]
		if !ok {
			i = len(out)
			index[e.PaymentMethod] = i
			out = append(out, analytics.MethodShare{Method: e.PaymentMethod})
		}
		out[i].Total = out[i].Total.Add(e.Amount)
		out[i].Count++
	}
	for i := range out {
		out[i].Percentage = out[i].Total.PercentOf(total)
	}
	slices.SortStableFunc(out, func(a, b analytics.MethodShare) int {
		if c := cmp.Compare(b.Total.Cents, a.Total.Cents); c != 0 {
			return c
		}
		return strings.Compare(string(a.Method), string(b.Method))
	})
	return out
}

func insights(w analytics.Window, expenses []core.Expense) Insights {
	var in Insights
	if len(expenses) == 0 {
		return in
	}

	amounts := make([]int64, len(expenses))
	largest, smallest := 0, 0
	byDay := map[string]*DayTotal{}
	for i, e := range expenses {
		amounts[i] = e.Amount.Cents
		if e.Amount.Cents > expenses[largest].Amount.Cents {
			largest = i
		}
		if e.Amount.Cents < expenses[smallest].Amount.Cents {
			smallest = i
		}
		if isWeekend(e.TransactionDate.Weekday()) {
			in.WeekendTotal = in.WeekendTotal.Add(e.Amount)
		} else {
			in.WeekdayTotal = in.WeekdayTotal.Add(e.Amount)
		}
		key := e.TransactionDate.String()
		if d, ok := byDay[key]; ok {
			d.Total = d.Total.Add(e.Amount)
		} else {
			byDay[key] = &DayTotal{Date: e.TransactionDate, Total: e.Amount}
		}
	}
	in.Median = median(amounts)
	l, s := expenses[largest], expenses[smallest]
	in.Largest, in.Smallest = &l, &s

	for _, d := range byDay {
		if in.TopDay == nil || d.Total.Cents > in.TopDay.Total.Cents ||
			(d.Total.Cents == in.TopDay.Total.Cents && d.Date.Before(in.TopDay.Date.Time)) {
			top := *d
			in.TopDay = &top
		}
	}

	weekdays, weekends := dayKinds(w)
	if weekdays > 0 && weekends > 0 && in.WeekdayTotal.Cents > 0 {
		perWeekend := in.WeekendTotal.Decimal().Div(decimal.NewFromInt(int64(weekends)))
		perWeekday := in.WeekdayTotal.Decimal().Div(decimal.NewFromInt(int64(weekdays)))
		in.WeekendRatio, _ = perWeekend.Div(perWeekday).Round(2).Float64()
	}
	return in
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func dayKinds(w analytics.Window) (weekdays, weekends int) {
	for d := w.Start.Time; !d.After(w.End.Time); d = d.AddDate(0, 0, 1) {
		if isWeekend(d.Weekday()) {
			weekends++
		} else {
			weekdays++
		}
	}
	return weekdays, weekends
}

// median of cents; an even count averages the middle pair, rounding half up.
func median(cents []int64) core.Money {
	sorted := slices.Clone(cents)
	slices.Sort(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return core.Money{Cents: sorted[n/2]}
	}
	sum := decimal.NewFromInt(sorted[n/2-1] + sorted[n/2])
	return core.Money{Cents: sum.Div(decimal.NewFromInt(2)).Round(0).IntPart()}
}

