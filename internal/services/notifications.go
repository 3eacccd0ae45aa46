package services

import (
	"context"
	"fmt"
	"log/slog"

	"spendwise/internal/core"
	"spendwise/internal/jobs"
	"spendwise/internal/mailer"
)

// UserLookup loads the recipient of a notification.
type UserLookup interface {
	GetUser(ctx context.Context, id int64) (core.User, error)
}

// AlertSource evaluates a user's budgets.
type AlertSource interface {
	Alerts(ctx context.Context, userID int64) ([]core.Alert, error)
}

// Notifier turns jobs into emails.
type Notifier struct {
	users  UserLookup
	alerts AlertSource
	sender mailer.Sender
	logger *slog.Logger
}

func NewNotifier(users UserLookup, alerts AlertSource, sender mailer.Sender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{users: users, alerts: alerts, sender: sender, logger: logger}
}

// Register wires the notifier's handlers into d.
func (n *Notifier) Register(d *jobs.Dispatcher) {
	d.Register(jobs.TypeBudgetCheck, n.HandleBudgetCheck)
	d.Register(jobs.TypeUserWelcome, n.HandleWelcome)
}

// HandleBudgetCheck emails the user the warning and error alerts of their
// active budgets. Nothing is sent when every budget is fine.
func (n *Notifier) HandleBudgetCheck(ctx context.Context, j jobs.Job) error {
	alerts, err := n.alerts.Alerts(ctx, j.UserID)
	if err != nil {
		return fmt.Errorf("evaluate budgets: %w", err)
	}
	notify := make([]core.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.Severity == core.SeverityWarning || a.Severity == core.SeverityError {
			notify = append(notify, a)
		}
	}
	if len(notify) == 0 {
		n.logger.DebugContext(ctx, "Budget check found nothing to report", "user_id", j.UserID)
		return nil
	}
	u, err := n.users.GetUser(ctx, j.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	msg, err := mailer.BudgetAlertMessage(u, notify)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send budget alert: %w", err)
	}
	n.logger.InfoContext(ctx, "Budget alert sent", "user_id", j.UserID, "alerts", len(notify))
	return nil
}

func (n *Notifier) HandleWelcome(ctx context.Context, j jobs.Job) error {
	u, err := n.users.GetUser(ctx, j.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	msg, err := mailer.WelcomeMessage(u)
	if err != nil {
		return err
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}
