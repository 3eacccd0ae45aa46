package main

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/auth"
	"spendwise/internal/core"
	"spendwise/internal/services"
)

type sampleExpense struct {
	description string
	merchant    string
	method      string
	minCents    int64
	maxCents    int64
}

var samples = []sampleExpense{
	{"Morning coffee", "Starbucks", "debit_card", 350, 650},
	{"Weekly groceries", "Whole Foods", "credit_card", 4500, 13000},
	{"Dinner out", "Pizza Express", "credit_card", 2200, 6500},
	{"Ride home", "Uber", "digital_wallet", 900, 3200},
	{"Fuel", "Shell", "debit_card", 3500, 7000},
	{"Streaming subscription", "Netflix", "credit_card", 1549, 1549},
	{"Electric bill", "City Power", "bank_transfer", 6000, 12000},
	{"Pharmacy", "CVS Pharmacy", "cash", 800, 4000},
	{"Books", "Amazon", "credit_card", 1200, 4500},
	{"Movie tickets", "AMC Theatres", "digital_wallet", 1400, 3000},
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create a demo user with sample expenses and a food budget",
		Long: `seed registers the demo user (or reuses it when the email exists) and
adds random sample expenses spread over the last months. The same --seed
value always produces the same expenses.`,
		Args: cobra.NoArgs,
		RunE: runSeed,
	}
	cmd.Flags().String("email", "demo@spendwise.local", "demo user email")
	cmd.Flags().String("password", "spendwise-demo", "demo user password")
	cmd.Flags().Int("months", 3, "months of history to generate")
	cmd.Flags().Int("per-month", 25, "expenses per month")
	cmd.Flags().Uint64("seed", 42, "random seed")
	return cmd
}

func runSeed(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	password, _ := cmd.Flags().GetString("password")
	months, _ := cmd.Flags().GetInt("months")
	perMonth, _ := cmd.Flags().GetInt("per-month")
	seed, _ := cmd.Flags().GetUint64("seed")
	if months < 1 || perMonth < 1 {
		return fmt.Errorf("--months and --per-month must be positive")
	}

	ctx := cmd.Context()
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()
	if app.Auth == nil {
		return fmt.Errorf("JWT_SECRET must be set to register the demo user")
	}

	user, err := app.Repo.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		var session auth.Session
		session, err = app.Auth.Register(ctx, auth.Registration{Email: email, Name: "Demo", Password: password})
		if err != nil {
			return fmt.Errorf("register demo user: %w", err)
		}
		user, err = app.Repo.GetUser(ctx, session.User.ID)
	}
	if err != nil {
		return err
	}

	rows := sampleRows(rand.New(rand.NewPCG(seed, seed)), time.Now(), months, perMonth)
	result, err := app.Expenses.BulkImport(ctx, user.ID, rows, nil)
	if err != nil {
		return err
	}

	food := int64(0)
	for _, c := range app.Categories {
		if c.Name == "Food & Dining" {
			food = c.ID
		}
	}
	budgetNote := "food budget created"
	_, err = app.Budgets.Create(ctx, user.ID, services.CreateBudgetInput{
		CategoryID: food,
		Amount:     core.Money{Cents: 40000},
		Period:     string(core.Monthly),
	})
	switch {
	case errors.Is(err, core.ErrConflict):
		budgetNote = "food budget already exists"
	case err != nil:
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "seeded %s: %d expenses imported, %d failed, %s\n",
		email, result.Imported, result.Failed, budgetNote)
	return nil
}

// sampleRows draws perMonth expenses for each of the last months, never
// dated after today.
func sampleRows(rng *rand.Rand, now time.Time, months, perMonth int) []services.ImportRow {
	today := core.DateOf(now)
	first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	var rows []services.ImportRow
	for m := months - 1; m >= 0; m-- {
		start := first.AddDate(0, -m, 0)
		days := start.AddDate(0, 1, -1).Day()
		if m == 0 {
			days = today.Day()
		}
		for range perMonth {
			s := samples[rng.IntN(len(samples))]
			cents := s.minCents
			if s.maxCents > s.minCents {
				cents += rng.Int64N(s.maxCents - s.minCents + 1)
			}
			rows = append(rows, services.ImportRow{
				Line:          len(rows) + 1,
				Date:          start.AddDate(0, 0, rng.IntN(days)).Format(core.DateLayout),
				Description:   s.description,
				Amount:        core.Money{Cents: cents}.String(),
				Merchant:      s.merchant,
				PaymentMethod: s.method,
				Tags:          []string{"demo"},
			})
		}
	}
	return rows
}
