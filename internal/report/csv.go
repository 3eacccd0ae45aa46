package report

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteCSV writes the flat transaction list, header first.
func WriteCSV(w io.Writer, r *Report) error {
	cw := csv.NewWriter(w)
	t := r.transactionTable()
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.Header))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = text(cell)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
