package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func alertsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alerts",
		Short: "Print the budgets of a user and their alerts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email, _ := cmd.Flags().GetString("email")
			ctx := cmd.Context()
			app, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			user, err := lookupUser(ctx, app, email)
			if err != nil {
				return err
			}

			summaries, err := app.Budgets.List(ctx, user.ID)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CATEGORY\tPERIOD\tSPENT\tBUDGET\tUSED\tSTATUS\tPROJECTED")
			for _, s := range summaries {
				fmt.Fprintf(tw, "%s\t%s..%s\t%s\t%s\t%s%%\t%s\t%s\n",
					s.Budget.CategoryName, s.Budget.StartDate, s.Budget.EndDate,
					s.Spent, s.Budget.Amount, s.Percentage.StringFixed(1), s.Status,
					s.Projection.EstimatedTotal.StringFixed(2))
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			alerts, err := app.Budgets.Alerts(ctx, user.ID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(alerts) == 0 {
				fmt.Fprintln(out, "\nno alerts")
				return nil
			}
			fmt.Fprintln(out)
			for _, a := range alerts {
				fmt.Fprintf(out, "[%s] %s\n", a.Severity, a.Message)
			}
			return nil
		},
	}
	cmd.Flags().String("email", "", "user whose budgets are checked")
	return cmd
}
