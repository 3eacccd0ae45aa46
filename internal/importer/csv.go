// Package importer turns bank exports (CSV, OFX/QFX) into import rows.
package importer

import (
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"spendwise/internal/core"
	"spendwise/internal/services"
)

// Format of an import file.
type Format string

const (
	FormatCSV Format = "csv"
	FormatOFX Format = "ofx"
)

// DetectFormat picks the format from a file name, defaulting to CSV.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".ofx", ".qfx":
		return FormatOFX
	}
	return FormatCSV
}

// ParseFormat accepts "csv", "ofx" or "qfx".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "ofx", "qfx":
		return FormatOFX, nil
	}
	return "", core.Validationf("unsupported import format %q", s)
}

// Parse reads rows in the given format.
func Parse(r io.Reader, f Format) ([]services.ImportRow, error) {
	if f == FormatOFX {
		return ParseOFX(r)
	}
	return ParseCSV(r)
}

// Header aliases, matched case-insensitively after trimming.
var columnAliases = map[string][]string{
	"date":           {"date", "transaction_date", "transaction date", "posted", "posting date"},
	"description":    {"description", "name", "memo", "details"},
	"amount":         {"amount", "debit", "value"},
	"merchant":       {"merchant", "payee"},
	"payment_method": {"payment_method", "payment method", "method"},
	"category":       {"category"},
	"tags":           {"tags", "labels"},
	"recurring":      {"recurring", "is_recurring"},
}

var requiredColumns = []string{"date", "description", "amount"}

// ParseCSV reads a header row followed by data rows. Line numbers in the
// result count the header as line 1.
func ParseCSV(r io.Reader) ([]services.ImportRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.Validation("empty CSV file")
	}
	if err != nil {
		return nil, core.Validationf("read CSV header: %w", err)
	}
	cols := mapColumns(header)
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, core.Validationf("CSV header is missing columns: %s", strings.Join(missing, ", "))
	}

	var rows []services.ImportRow
	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line, _ := cr.FieldPos(0)
		if err != nil {
			return nil, core.Validationf("read CSV line %d: %w", line, err)
		}
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, services.ImportRow{
			Line:          line,
			Date:          get("date"),
			Description:   get("description"),
			Amount:        get("amount"),
			Merchant:      get("merchant"),
			PaymentMethod: get("payment_method"),
			Category:      get("category"),
			Tags:          splitTags(get("tags")),
			IsRecurring:   parseBool(get("recurring")),
		})
	}
	if len(rows) == 0 {
		return nil, core.Validation("CSV file has no data rows")
	}
	return rows, nil
}

func mapColumns(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		for name, aliases := range columnAliases {
			if _, taken := cols[name]; taken {
				continue
			}
			for _, a := range aliases {
				if h == a {
					cols[name] = i
				}
			}
		}
	}
	return cols
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == '|' || r == ',' })
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}
