package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"spendwise/internal/importer"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import expenses from a CSV or OFX/QFX file",
		Long: `import parses a bank export and stores every valid row for the user.
Rows without a category are categorized by the rule matcher. Invalid rows
are reported by line and skipped.`,
		Example: `  spendwisectl import ~/Downloads/checking.qfx --email ada@example.com
  spendwisectl import expenses.csv --email ada@example.com --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: runImport,
	}
	cmd.Flags().String("email", "", "owner of the imported expenses")
	cmd.Flags().String("format", "", "csv or ofx (default: from the file extension)")
	cmd.Flags().BoolP("dry-run", "d", false, "parse and report without saving")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	email, _ := cmd.Flags().GetString("email")
	formatFlag, _ := cmd.Flags().GetString("format")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	format := importer.DetectFormat(args[0])
	if formatFlag != "" {
		var err error
		if format, err = importer.ParseFormat(formatFlag); err != nil {
			return err
		}
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := importer.Parse(f, format)
	if err != nil {
		return fmt.Errorf("parse %s: %w", args[0], err)
	}
	out := cmd.OutOrStdout()
	if dryRun {
		for _, r := range rows {
			fmt.Fprintf(out, "%4d  %s  %10s  %s\n", r.Line, r.Date, r.Amount, r.Description)
		}
		fmt.Fprintf(out, "%d rows parsed, nothing saved\n", len(rows))
		return nil
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

	bar := progressbar.NewOptions(len(rows),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
	)
	result, err := app.Expenses.BulkImport(ctx, user.ID, rows, func() { _ = bar.Add(1) })
	_ = bar.Finish()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "imported %d expenses for %s, %d rows failed\n", result.Imported, user.Email, result.Failed)
	for _, e := range result.Errors {
		fmt.Fprintf(out, "  line %d: %s\n", e.Line, e.Message)
	}
	return nil
}
