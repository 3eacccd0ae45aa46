package http

import (
	"net/http"
	"strings"

	"spendwise/internal/auth"
	"spendwise/internal/categorize"
	"spendwise/internal/core"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var reg auth.Registration
	if err := decodeJSON(w, r, &reg); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.deps.Auth.Register(r.Context(), reg)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.logger.InfoContext(r.Context(), "User registered", "user_id", session.User.ID)
	writeJSON(w, http.StatusCreated, session)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	session, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.ProfileOf(currentUser(r)))
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := s.deps.Categories.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cats)
}

type categorizeRequest struct {
	Description   string     `json:"description"`
	Merchant      string     `json:"merchant"`
	Amount        core.Money `json:"amount"`
	PaymentMethod string     `json:"paymentMethod"`
}

// handleCategorize suggests a category without storing anything.
func (s *Server) handleCategorize(w http.ResponseWriter, r *http.Request) {
	var req categorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Description) == "" && strings.TrimSpace(req.Merchant) == "" {
		writeError(w, r, core.Validation("description or merchant is required"))
		return
	}
	tx := categorize.Transaction{
		Description: req.Description,
		Merchant:    req.Merchant,
		Amount:      req.Amount,
	}
	if req.PaymentMethod != "" {
		pm, err := core.ParsePaymentMethod(req.PaymentMethod)
		if err != nil {
			writeError(w, r, core.AsValidation(err))
			return
		}
		tx.PaymentMethod = pm
	}
	suggestion, err := s.deps.Suggester.Categorize(tx)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestion)
}
