package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// SheetsExporter pushes report views into a tab of a Google spreadsheet.
type SheetsExporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	logger        *slog.Logger
}

// SheetsCredentials selects the service account used by the exporter.
// JSON wins over File; with neither set GOOGLE_APPLICATION_CREDENTIALS is read.
type SheetsCredentials struct {
	JSON string
	File string
}

func (c SheetsCredentials) load(ctx context.Context, logger *slog.Logger) ([]byte, error) {
	file := strings.TrimSpace(c.File)
	if strings.TrimSpace(c.JSON) == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case strings.TrimSpace(c.JSON) != "":
		logger.DebugContext(ctx, "Using inline service account credentials")
		return []byte(c.JSON), nil
	case file != "":
		logger.DebugContext(ctx, "Reading service account credentials", "path", file)
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return raw, nil
	}
	return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
}

// NewSheetsExporter authenticates with a service account.
func NewSheetsExporter(ctx context.Context, spreadsheetID string, creds SheetsCredentials, logger *slog.Logger) (*SheetsExporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	raw, err := creds.load(ctx, logger)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(raw),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return NewSheetsExporterWithService(svc, spreadsheetID, logger), nil
}

func NewSheetsExporterWithService(svc *gsheet.Service, spreadsheetID string, logger *slog.Logger) *SheetsExporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetsExporter{svc: svc, spreadsheetID: spreadsheetID, logger: logger}
}

// SheetTitle names the tab a report is exported to.
func SheetTitle(r *Report) string {
	return fmt.Sprintf("Report %s %s", r.Start, r.End)
}

// Export writes every view of r into its own tab, stacked vertically and
// replacing whatever the tab held before. It returns the written range.
func (x *SheetsExporter) Export(ctx context.Context, r *Report) (string, error) {
	if x.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	title := SheetTitle(r)
	if err := x.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	quoted := "'" + strings.ReplaceAll(title, "'", "''") + "'"
	if _, err := x.svc.Spreadsheets.Values.Clear(x.spreadsheetID, quoted+"!A:Z", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear sheet %s: %w", title, err)
	}

	rows := SheetRows(r)
	resp, err := x.svc.Spreadsheets.Values.Update(x.spreadsheetID, quoted+"!A1", &gsheet.ValueRange{Values: rows}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update sheet %s: %w", title, err)
	}
	x.logger.InfoContext(ctx, "Report exported to spreadsheet",
		"user_id", r.UserID, "sheet", title, "rows", len(rows))
	return resp.UpdatedRange, nil
}

func (x *SheetsExporter) ensureSheet(ctx context.Context, title string) error {
	ss, err := x.svc.Spreadsheets.Get(x.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == title {
			return nil
		}
	}
	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
	}}}
	if _, err := x.svc.Spreadsheets.BatchUpdate(x.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", title, err)
	}
	return nil
}

// SheetRows lays the report views out one after another, each preceded by
// its title and separated by an empty row.
func SheetRows(r *Report) [][]any {
	var rows [][]any
	for i, t := range r.Tables() {
		if i > 0 {
			rows = append(rows, []any{})
		}
		rows = append(rows, []any{t.Title})
		head := make([]any, len(t.Header))
		for j, h := range t.Header {
			head[j] = h
		}
		rows = append(rows, head)
		for _, row := range t.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = value(v)
			}
			rows = append(rows, cells)
		}
	}
	return rows
}
