package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"spendwise/internal/core"
)

// WriteXLSX writes a workbook with one sheet per report view.
func WriteXLSX(w io.Writer, r *Report) error {
	f := excelize.NewFile()
	defer f.Close()

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E5E7EB"}},
	})
	if err != nil {
		return fmt.Errorf("xlsx header style: %w", err)
	}
	money, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return fmt.Errorf("xlsx money style: %w", err)
	}

	for i, t := range r.Tables() {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", t.Title); err != nil {
				return fmt.Errorf("xlsx rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.Title); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", t.Title, err)
		}
		if err := writeSheet(f, t, header, money); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", t.Title, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func writeSheet(f *excelize.File, t Table, headerStyle, moneyStyle int) error {
	head := make([]any, len(t.Header))
	for i, h := range t.Header {
		head[i] = h
	}
	if err := f.SetSheetRow(t.Title, "A1", &head); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.Title, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, row := range t.Rows {
		cells := make([]any, len(row))
		for c, v := range row {
			cells[c] = value(v)
		}
		start, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.Title, start, &cells); err != nil {
			return err
		}
		for c, v := range row {
			if _, ok := v.(core.Money); !ok {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(t.Title, cell, cell, moneyStyle); err != nil {
				return err
			}
		}
	}

	lastCol, err := excelize.ColumnNumberToName(len(t.Header))
	if err != nil {
		return err
	}
	return f.SetColWidth(t.Title, "A", lastCol, 18)
}
