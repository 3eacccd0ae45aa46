package report

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
)

const (
	pdfPageWidth = 190.0 // A4 minus 10mm margins
	pdfRowHeight = 6.0
)

// WritePDF writes the report as a paginated A4 document with a page footer.
func WritePDF(w io.Writer, r *Report) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Expense report", true)
	pdf.SetCreator("spendwise", true)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, "Expense report", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("%s to %s, generated %s", r.Start, r.End, r.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, t := range r.Tables() {
		pdfTable(pdf, tr, t)
	}

	if err := pdf.Error(); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func pdfTable(pdf *fpdf.Fpdf, tr func(string) string, t Table) {
	width := pdfPageWidth / float64(len(t.Header))

	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(t.Title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(229, 231, 235)
	for _, h := range t.Header {
		pdf.CellFormat(width, pdfRowHeight, fit(pdf, tr, h, width), "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	if len(t.Rows) == 0 {
		pdf.CellFormat(pdfPageWidth, pdfRowHeight, "No data", "1", 1, "C", false, 0, "")
	}
	for _, row := range t.Rows {
		for _, cell := range row {
			align := "L"
			if _, ok := cell.(string); !ok {
				align = "R"
			}
			pdf.CellFormat(width, pdfRowHeight, fit(pdf, tr, text(cell), width), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
}

// fit translates s for the core fonts and shortens it with an ellipsis until
// it fits in a cell of width w.
func fit(pdf *fpdf.Fpdf, tr func(string) string, s string, w float64) string {
	limit := w - 2
	if out := tr(s); pdf.GetStringWidth(out) <= limit {
		return out
	}
	r := []rune(s)
	for len(r) > 0 && pdf.GetStringWidth(tr(string(r)+"...")) > limit {
		r = r[:len(r)-1]
	}
	return tr(string(r) + "...")
}
