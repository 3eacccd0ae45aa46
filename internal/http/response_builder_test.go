package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"spendwise/internal/core"
)

func TestResponseBuilder_JSON(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		Header("X-Custom", "value").
		JSON(map[string]int{"count": 3}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if got := w.Header().Get("Content-Type"); got != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := w.Header().Get("X-Custom"); got != "value" {
		t.Errorf("X-Custom = %q, want %q", got, "value")
	}
	if got := w.Body.String(); got != "{\"count\":3}\n" {
		t.Errorf("Body = %q", got)
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()
	NewResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
	if got := w.Header().Get("Content-Type"); got != "" {
		t.Errorf("Content-Type = %q, want empty", got)
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ResponseBuilder
		wantCode int
		wantMsg  string
	}{
		{"bad request", BadRequestError("bad input"), http.StatusBadRequest, "bad input"},
		{"not found", NotFoundError("missing"), http.StatusNotFound, "missing"},
		{"method not allowed", MethodNotAllowedError(), http.StatusMethodNotAllowed, "method not allowed"},
		{"custom", ErrorResponse(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.builder.Write(w)

			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantMsg    string
		wantBearer bool
	}{
		{
			name:     "validation",
			err:      core.Validation("amount must be positive"),
			wantCode: http.StatusUnprocessableEntity,
			wantMsg:  "validation error: amount must be positive",
		},
		{
			name:     "wrapped not found",
			err:      fmt.Errorf("load: %w", core.NotFound("expense", 9)),
			wantCode: http.StatusNotFound,
			wantMsg:  "load: not found: expense 9",
		},
		{
			name:     "conflict",
			err:      core.Conflict("budget already exists"),
			wantCode: http.StatusConflict,
			wantMsg:  "conflict: budget already exists",
		},
		{
			name:       "unauthorized",
			err:        fmt.Errorf("%w: token expired", core.ErrUnauthorized),
			wantCode:   http.StatusUnauthorized,
			wantMsg:    "unauthorized: token expired",
			wantBearer: true,
		},
		{
			name:     "configuration",
			err:      fmt.Errorf("%w: JWT_SECRET missing", core.ErrFatalConfiguration),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "server misconfigured",
		},
		{
			name:     "internal details are hidden",
			err:      errors.New("database is locked"),
			wantCode: http.StatusInternalServerError,
			wantMsg:  "internal error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/expenses", nil)
			writeError(w, r, tt.err)

			if w.Code != tt.wantCode {
				t.Errorf("Status code = %d, want %d", w.Code, tt.wantCode)
			}
			var body ErrorBody
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", body.Error, tt.wantMsg)
			}
			if got := w.Header().Get("WWW-Authenticate") != ""; got != tt.wantBearer {
				t.Errorf("WWW-Authenticate present = %v, want %v", got, tt.wantBearer)
			}
		})
	}
}
