package report

import (
	"fmt"
	"strconv"
	"strings"

	"spendwise/internal/core"
)

// Table is one report view laid out as rows. Cells hold strings, ints,
// float64 percentages or core.Money; each writer formats them its own way.
type Table struct {
	Title  string
	Header []string
	Rows   [][]any
}

// Tables returns the report views in export order.
func (r *Report) Tables() []Table {
	return []Table{
		r.summaryTable(),
		r.categoryTable(),
		r.trendTable(),
		r.merchantTable(),
		r.paymentMethodTable(),
		r.transactionTable(),
	}
}

func (r *Report) summaryTable() Table {
	t := Table{Title: "Summary", Header: []string{"Metric", "Value"}}
	add := func(k string, v any) { t.Rows = append(t.Rows, []any{k, v}) }
	add("Period", r.Start.String()+" to "+r.End.String())
	add("Total", r.Total)
	add("Transactions", r.Count)
	add("Average", r.Average)
	add("Median", r.Insights.Median)
	if e := r.Insights.Largest; e != nil {
		add("Largest", fmt.Sprintf("%s (%s, %s)", e.Amount, e.Description, e.TransactionDate))
	}
	if e := r.Insights.Smallest; e != nil {
		add("Smallest", fmt.Sprintf("%s (%s, %s)", e.Amount, e.Description, e.TransactionDate))
	}
	add("Weekday total", r.Insights.WeekdayTotal)
	add("Weekend total", r.Insights.WeekendTotal)
	add("Weekend/weekday ratio", r.Insights.WeekendRatio)
	if d := r.Insights.TopDay; d != nil {
		add("Top spending day", fmt.Sprintf("%s (%s)", d.Date, d.Total))
	}
	return t
}

func (r *Report) categoryTable() Table {
	t := Table{Title: "Categories", Header: []string{"Category", "Total", "Count", "Share %"}}
	for _, c := range r.Categories {
		t.Rows = append(t.Rows, []any{c.Name, c.Total, c.Count, c.Percentage})
	}
	return t
}

func (r *Report) trendTable() Table {
	t := Table{Title: "Trend", Header: []string{"Starting", "Total", "Count"}}
	for _, p := range r.Trend {
		t.Rows = append(t.Rows, []any{p.Start.String(), p.Total, p.Count})
	}
	return t
}

func (r *Report) merchantTable() Table {
	t := Table{Title: "Merchants", Header: []string{"Merchant", "Total", "Count", "Average", "Last"}}
	for _, m := range r.Merchants {
		t.Rows = append(t.Rows, []any{m.Merchant, m.Total, m.Count, m.Average, m.Last.String()})
	}
	return t
}

func (r *Report) paymentMethodTable() Table {
	t := Table{Title: "Payment Methods", Header: []string{"Method", "Total", "Count", "Share %"}}
	for _, m := range r.PaymentMethods {
		t.Rows = append(t.Rows, []any{string(m.Method), m.Total, m.Count, m.Percentage})
	}
	return t
}

// TransactionHeader is the column layout of the flat transaction list.
var TransactionHeader = []string{"Date", "Description", "Merchant", "Category", "Payment Method", "Amount", "Tags", "Recurring"}

func (r *Report) transactionTable() Table {
	t := Table{Title: "Transactions", Header: TransactionHeader}
	for _, e := range r.Transactions {
		t.Rows = append(t.Rows, []any{
			e.TransactionDate.String(),
			e.Description,
			e.Merchant,
			e.CategoryName,
			string(e.PaymentMethod),
			e.Amount,
			strings.Join(e.Tags, ";"),
			strconv.FormatBool(e.IsRecurring),
		})
	}
	return t
}

// text renders a cell for text-only outputs.
func text(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case core.Money:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// value renders a cell for spreadsheet outputs, keeping numbers numeric.
func value(v any) any {
	switch x := v.(type) {
	case core.Money:
		return x.Decimal().InexactFloat64()
	default:
		return x
	}
}
