package http

import (
	"io"
	"net/http"

	"spendwise/internal/importer"
	"spendwise/internal/services"
)

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	p := newQueryParser(r)
	q := services.ListQuery{
		Start:         p.date("start"),
		End:           p.date("end"),
		CategoryID:    p.id("categoryId"),
		PaymentMethod: p.str("paymentMethod"),
		Search:        p.str("search"),
		Tag:           p.str("tag"),
		Limit:         p.integer("limit"),
		Offset:        p.integer("offset"),
	}
	if err := p.Err(); err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.deps.Expenses.List(r.Context(), currentUser(r).ID, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var in services.ExpenseInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Create(r.Context(), currentUser(r).ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Get(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in services.ExpenseUpdate
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	e, err := s.deps.Expenses.Update(r.Context(), currentUser(r).ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.deps.Expenses.Delete(r.Context(), currentUser(r).ID, id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleImportExpenses accepts a CSV or OFX statement as the "file" part of
// a multipart form. The format comes from ?format= or the file name.
func (s *Server) handleImportExpenses(w http.ResponseWriter, r *http.Request) {
	f, err := uploadedFile(w, r, s.maxImportBytes, "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	format := importer.DetectFormat(f.Filename)
	if v := r.URL.Query().Get("format"); v != "" {
		if format, err = importer.ParseFormat(v); err != nil {
			writeError(w, r, err)
			return
		}
	}
	rows, err := importer.Parse(f, format)
	if err != nil {
		writeError(w, r, err)
		return
	}

	userID := currentUser(r).ID
	result, err := s.deps.Expenses.BulkImport(r.Context(), userID, rows, nil)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "Expenses imported",
		"user_id", userID, "format", format, "imported", result.Imported, "failed", result.Failed)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUploadReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	f, err := uploadedFile(w, r, s.maxReceiptBytes, "receipt", "file")
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer f.Close()

	e, err := s.deps.Expenses.AttachReceipt(r.Context(), currentUser(r).ID, id, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleGetReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc, contentType, err := s.deps.Expenses.Receipt(r.Context(), currentUser(r).ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.WarnContext(r.Context(), "Receipt stream interrupted", "expense_id", id, "error", err)
	}
}
