package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spendwise/internal/analytics"
	"spendwise/internal/core"
	"spendwise/internal/report"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Generate a spending report",
		Long: `report assembles the spending report of a user for a date range, or for
the current calendar --period when no range is given, and writes it as JSON,
CSV, XLSX or PDF. --sheets also pushes it to the configured spreadsheet.`,
		Example: `  spendwisectl report --email ada@example.com --period quarter --format pdf -o q.pdf
  spendwisectl report --email ada@example.com --start 2024-01-01 --end 2024-03-31 --sheets`,
		Args: cobra.NoArgs,
		RunE: runReport,
	}
	cmd.Flags().String("email", "", "report owner")
	cmd.Flags().String("start", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("end", "", "last day, YYYY-MM-DD")
	cmd.Flags().String("period", analytics.PeriodMonth, "week, month, quarter or year when no range is given")
	cmd.Flags().String("format", "json", "json, csv, xlsx or pdf")
	cmd.Flags().StringP("output", "o", "", "output file (default: stdout)")
	cmd.Flags().Bool("sheets", false, "also export to GOOGLE_SPREADSHEET_ID")
	return cmd
}

func runReport(cmd *cobra.Command, _ []string) error {
	email, _ := cmd.Flags().GetString("email")
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")
	period, _ := cmd.Flags().GetString("period")
	format, _ := cmd.Flags().GetString("format")
	output, _ := cmd.Flags().GetString("output")
	toSheets, _ := cmd.Flags().GetBool("sheets")

	write, err := reportWriter(format)
	if err != nil {
		return err
	}
	start, end, err := reportRange(startFlag, endFlag, period)
	if err != nil {
		return err
	}

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

	rep, err := app.Reports.Assemble(ctx, user.ID, start, end)
	if err != nil {
		return err
	}

	if toSheets {
		if app.Sheets == nil {
			return fmt.Errorf("--sheets needs GOOGLE_SPREADSHEET_ID and service account credentials")
		}
		rng, err := app.Sheets.Export(ctx, rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "exported to %s\n", rng)
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	if err := write(w, rep); err != nil {
		return fmt.Errorf("write %s report: %w", format, err)
	}
	if output != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "wrote %d transactions to %s\n", rep.Count, output)
	}
	return nil
}

func reportWriter(format string) (func(io.Writer, *report.Report) error, error) {
	switch strings.ToLower(format) {
	case "json":
		return func(w io.Writer, r *report.Report) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		}, nil
	case "csv":
		return report.WriteCSV, nil
	case "xlsx":
		return report.WriteXLSX, nil
	case "pdf":
		return report.WritePDF, nil
	}
	return nil, fmt.Errorf("unsupported format %q: use json, csv, xlsx or pdf", format)
}

func reportRange(startFlag, endFlag, period string) (core.Date, core.Date, error) {
	if startFlag == "" && endFlag == "" {
		cur, _, err := analytics.ResolveWindow(period, time.Now())
		return cur.Start, cur.End, err
	}
	start, err := core.ParseDate(startFlag)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("--start: %w", err)
	}
	end, err := core.ParseDate(endFlag)
	if err != nil {
		return core.Date{}, core.Date{}, fmt.Errorf("--end: %w", err)
	}
	return start, end, nil
}
