package budget

import (
	"fmt"

	"spendwise/internal/core"
)

// GenerateAlerts emits at most one alert per summary, in input order.
// Rules are checked in priority order: exceeded, approaching, projection.
func GenerateAlerts(summaries []core.BudgetSummary) []core.Alert {
	alerts := make([]core.Alert, 0, len(summaries))
	for _, s := range summaries {
		if a, ok := alertFor(s); ok {
			alerts = append(alerts, a)
		}
	}
	return alerts
}

func alertFor(s core.BudgetSummary) (core.Alert, bool) {
	a := core.Alert{
		BudgetID:     s.Budget.ID,
		CategoryID:   s.Budget.CategoryID,
		CategoryName: categoryLabel(s.Budget),
		Percentage:   s.Percentage,
		Amount:       s.Budget.Amount,
		Spent:        s.Spent,
	}
	switch {
	case s.Percentage.GreaterThanOrEqual(exceededAt):
		a.Kind, a.Severity = core.AlertExceeded, core.SeverityError
		a.Message = fmt.Sprintf("You've exceeded your %s budget by $%s",
			a.CategoryName, s.Spent.Sub(s.Budget.Amount))
	case s.Percentage.GreaterThanOrEqual(criticalAt):
		a.Kind, a.Severity = core.AlertApproaching, core.SeverityWarning
		a.Message = fmt.Sprintf("You've used %s%% of your %s budget",
			s.Percentage.StringFixed(1), a.CategoryName)
	case !s.Projection.OnTrack && s.Projection.DaysRemaining > 0:
		overage := s.Projection.EstimatedTotal.Sub(s.Budget.Amount.Decimal())
		a.Kind, a.Severity = core.AlertProjection, core.SeverityWarning
		a.Message = fmt.Sprintf("At your current pace you'll exceed your %s budget by $%s",
			a.CategoryName, overage.StringFixed(2))
	default:
		return core.Alert{}, false
	}
	return a, true
}

func categoryLabel(b core.Budget) string {
	if b.CategoryName != "" {
		return b.CategoryName
	}
	return fmt.Sprintf("category #%d", b.CategoryID)
}
