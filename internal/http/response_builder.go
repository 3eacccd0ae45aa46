// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps domain errors onto HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/trace"
)

// ResponseBuilder provides a fluent API for building JSON responses.
type ResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewResponse creates a new response builder with default 200 status.
func NewResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

// Header adds a custom header to the response.
func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.body)
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewResponse().Status(statusCode).JSON(ErrorBody{Error: message})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

// NotFoundError creates a 404 Not Found error response.
func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError() *ResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed")
}

// writeJSON sends v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	NewResponse().Status(status).JSON(v).Write(w)
}

// statusFor maps an error kind onto its HTTP status and public message.
// Errors without a kind are internal and their text is not exposed.
func statusFor(err error) (int, string, string) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit), applog.ErrorTypeValidation
	case errors.Is(err, core.ErrValidation):
		return http.StatusUnprocessableEntity, err.Error(), applog.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, err.Error(), applog.ErrorTypeNotFound
	case errors.Is(err, core.ErrConflict):
		return http.StatusConflict, err.Error(), applog.ErrorTypeConflict
	case errors.Is(err, core.ErrUnauthorized):
		return http.StatusUnauthorized, err.Error(), applog.ErrorTypeAuth
	case errors.Is(err, core.ErrFatalConfiguration):
		return http.StatusInternalServerError, "server misconfigured", applog.ErrorTypeConfiguration
	}
	return http.StatusInternalServerError, "internal error", applog.ErrorTypeInternal
}

// writeError logs err and sends the mapped JSON error.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg, errType := statusFor(err)
	ctx := r.Context()
	requestID := trace.GetRequestID(ctx)

	fields := applog.NewFields().
		WithComponent(applog.ComponentHTTP).
		WithHTTPRequest(r.Method, r.URL.Path).
		WithError(err, errType)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	applog.FromContext(ctx).Log(ctx, level, "Request failed", fields.ToSlice()...)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="spendwise"`)
	}
	NewResponse().Status(status).JSON(ErrorBody{Error: msg, RequestID: requestID}).Write(w)
}
