package core

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

const (
	StatusGood     BudgetStatus = "good"
	StatusCaution  BudgetStatus = "caution"
	StatusCritical BudgetStatus = "critical"
	StatusExceeded BudgetStatus = "exceeded"
)

const (
	AlertExceeded    AlertKind = "exceeded"
	AlertApproaching AlertKind = "approaching"
	AlertProjection  AlertKind = "projection"
)

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

type (
	BudgetStatus string
	AlertKind    string
	Severity     string

	// Projection is the linear extrapolation of spend to the end of the period.
	Projection struct {
		EstimatedTotal decimal.Decimal
		DailyAverage   decimal.Decimal
		DaysRemaining  int
		DaysElapsed    int
		TotalDays      int
		OnTrack        bool
	}

	// BudgetSummary is derived on every read from a budget and its expenses.
	// Percentage is kept unrounded; it is rounded to one decimal on output only.
	BudgetSummary struct {
		Budget             Budget
		Spent              Money
		Remaining          Money
		Percentage         decimal.Decimal
		Status             BudgetStatus
		ExpenseCount       int
		AverageTransaction Money
		Projection         Projection
	}

	Alert struct {
		BudgetID     int64
		CategoryID   int64
		CategoryName string
		Kind         AlertKind
		Severity     Severity
		Message      string
		Percentage   decimal.Decimal
		Amount       Money
		Spent        Money
	}
)

// Fixed returns d rounded to places as a JSON number.
func Fixed(d decimal.Decimal, places int32) json.RawMessage {
	return json.RawMessage(d.StringFixed(places))
}

func (p Projection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		EstimatedTotal json.RawMessage `json:"estimatedTotal"`
		DailyAverage   json.RawMessage `json:"dailyAverage"`
		DaysRemaining  int             `json:"daysRemaining"`
		DaysElapsed    int             `json:"daysElapsed"`
		TotalDays      int             `json:"totalDays"`
		OnTrack        bool            `json:"onTrack"`
	}{
		EstimatedTotal: Fixed(p.EstimatedTotal, 2),
		DailyAverage:   Fixed(p.DailyAverage, 2),
		DaysRemaining:  p.DaysRemaining,
		DaysElapsed:    p.DaysElapsed,
		TotalDays:      p.TotalDays,
		OnTrack:        p.OnTrack,
	})
}

func (s BudgetSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Budget             Budget          `json:"budget"`
		Spent              Money           `json:"spent"`
		Remaining          Money           `json:"remaining"`
		Percentage         json.RawMessage `json:"percentage"`
		Status             BudgetStatus    `json:"status"`
		ExpenseCount       int             `json:"expenseCount"`
		AverageTransaction Money           `json:"averageTransaction"`
		Projection         Projection      `json:"projection"`
	}{
		Budget:             s.Budget,
		Spent:              s.Spent,
		Remaining:          s.Remaining,
		Percentage:         Fixed(s.Percentage, 1),
		Status:             s.Status,
		ExpenseCount:       s.ExpenseCount,
		AverageTransaction: s.AverageTransaction,
		Projection:         s.Projection,
	})
}

func (a Alert) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BudgetID     int64           `json:"budgetId"`
		CategoryID   int64           `json:"categoryId"`
		CategoryName string          `json:"categoryName"`
		Kind         AlertKind       `json:"type"`
		Severity     Severity        `json:"severity"`
		Message      string          `json:"message"`
		Percentage   json.RawMessage `json:"percentage"`
		Amount       Money           `json:"amount"`
		Spent        Money           `json:"spent"`
	}{
		BudgetID:     a.BudgetID,
		CategoryID:   a.CategoryID,
		CategoryName: a.CategoryName,
		Kind:         a.Kind,
		Severity:     a.Severity,
		Message:      a.Message,
		Percentage:   Fixed(a.Percentage, 1),
		Amount:       a.Amount,
		Spent:        a.Spent,
	})
}
