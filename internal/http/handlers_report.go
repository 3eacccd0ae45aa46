package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strings"

	"spendwise/internal/analytics"
	"spendwise/internal/core"
	"spendwise/internal/report"
)

type reportFormat struct {
	ext         string
	contentType string
	write       func(io.Writer, *report.Report) error
}

var reportFormats = map[string]reportFormat{
	"csv":  {"csv", "text/csv; charset=utf-8", report.WriteCSV},
	"xlsx": {"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", report.WriteXLSX},
	"pdf":  {"pdf", "application/pdf", report.WritePDF},
}

// reportRange resolves start/end, falling back to the calendar period named
// by ?period= (default month) around now.
func (s *Server) reportRange(r *http.Request) (core.Date, core.Date, error) {
	p := newQueryParser(r)
	start, end := p.date("start"), p.date("end")
	if err := p.Err(); err != nil {
		return core.Date{}, core.Date{}, err
	}
	if !start.IsZero() || !end.IsZero() {
		return start, end, nil
	}
	period := p.str("period")
	if period == "" {
		period = analytics.PeriodMonth
	}
	cur, _, err := analytics.ResolveWindow(period, s.deps.Now())
	if err != nil {
		return core.Date{}, core.Date{}, err
	}
	return cur.Start, cur.End, nil
}

func (s *Server) assembleReport(r *http.Request) (*report.Report, error) {
	start, end, err := s.reportRange(r)
	if err != nil {
		return nil, err
	}
	return s.deps.Reports.Assemble(r.Context(), currentUser(r).ID, start, end)
}

// handleReport serves a spending report as JSON (the default), CSV, XLSX or PDF.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	var format reportFormat
	if name != "" && name != "json" {
		var ok bool
		if format, ok = reportFormats[name]; !ok {
			writeError(w, r, core.Validationf("unsupported report format %q: use json, csv, xlsx or pdf", name))
			return
		}
	}

	rep, err := s.assembleReport(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if format.write == nil {
		writeJSON(w, http.StatusOK, rep)
		return
	}

	// Rendered in full first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := format.write(&buf, rep); err != nil {
		writeError(w, r, err)
		return
	}
	size := buf.Len()
	attachment(w, format.contentType, reportFilename(rep.Start, rep.End, format.ext))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
	s.logger.InfoContext(r.Context(), "Report exported",
		"user_id", rep.UserID, "format", name, "transactions", rep.Count, "bytes", size)
}

var errSheetsDisabled = errors.New("spreadsheet export is not configured")

// handleReportSheets pushes the report into the configured spreadsheet.
func (s *Server) handleReportSheets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Sheets == nil {
		s.logger.WarnContext(r.Context(), "Sheets export requested", "error", errSheetsDisabled)
		ErrorResponse(http.StatusNotImplemented, errSheetsDisabled.Error()).Write(w)
		return
	}
	rep, err := s.assembleReport(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rng, err := s.deps.Sheets.Export(r.Context(), rep)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"range": rng})
}
