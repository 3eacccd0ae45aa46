package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"spendwise/internal/categorize"
	"spendwise/internal/core"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize <description>",
		Short: "Show the category the rule matcher would assign",
		Example: `  spendwisectl categorize "Uber to the airport"
  spendwisectl categorize "Monthly plan" --merchant Verizon --amount 65.00`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			merchant, _ := cmd.Flags().GetString("merchant")
			amount, _ := cmd.Flags().GetString("amount")

			tx := categorize.Transaction{
				Description: strings.Join(args, " "),
				Merchant:    merchant,
			}
			if amount != "" {
				cents, err := core.ParseDecimalToCents(amount)
				if err != nil {
					return fmt.Errorf("invalid --amount %q: %w", amount, err)
				}
				tx.Amount = core.Money{Cents: cents}
			}

			app, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			s, err := app.Matcher.Categorize(tx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (confidence %.2f)\n", s.CategoryName, s.Confidence)
			fmt.Fprintln(out, s.Reasoning)
			return nil
		},
	}
	cmd.Flags().String("merchant", "", "merchant name")
	cmd.Flags().String("amount", "", "amount, e.g. 12.50")
	return cmd
}
