package mailer

import (
	"fmt"
	"strings"
	"text/template"

	"spendwise/internal/core"
)

var (
	welcomeTmpl = template.Must(template.New("welcome").Parse(`Hi {{.Name}},

Your spendwise account is ready. Start by adding an expense or setting a
monthly budget for the categories you care about most.

Happy tracking!
`))

	alertTmpl = template.Must(template.New("alert").Parse(`Hi {{.Name}},

{{if eq (len .Alerts) 1}}One of your budgets needs attention{{else}}{{len .Alerts}} of your budgets need attention{{end}}:
{{range .Alerts}}
- [{{.Severity}}] {{.CategoryName}}: {{.Message}}{{end}}

Open spendwise to review your spending.
`))
)

func render(t *template.Template, data any) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", t.Name(), err)
	}
	return b.String(), nil
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return email
}

func WelcomeMessage(u core.User) (Message, error) {
	body, err := render(welcomeTmpl, struct{ Name string }{displayName(u.Name, u.Email)})
	if err != nil {
		return Message{}, err
	}
	return Message{To: u.Email, Subject: "Welcome to spendwise", Body: body}, nil
}

// BudgetAlertMessage summarizes alerts in one email.
func BudgetAlertMessage(u core.User, alerts []core.Alert) (Message, error) {
	body, err := render(alertTmpl, struct {
		Name   string
		Alerts []core.Alert
	}{displayName(u.Name, u.Email), alerts})
	if err != nil {
		return Message{}, err
	}
	subject := "Budget alert"
	if len(alerts) == 1 {
		subject = fmt.Sprintf("Budget alert: %s", alerts[0].CategoryName)
	}
	return Message{To: u.Email, Subject: subject, Body: body}, nil
}
