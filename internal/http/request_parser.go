// Package http provides the JSON API server and its handlers.
//
// This file implements utilities for parsing and validating request data:
// JSON bodies, path IDs and the shared query parameters.

package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"spendwise/internal/core"
)

// maxJSONBody caps JSON request bodies.
const maxJSONBody = 1 << 20

// decodeJSON reads a single JSON object into v. Unknown fields and trailing
// data are rejected as validation errors.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.Validation("request body is empty")
		case errors.As(err, &maxErr):
			return core.Validationf("request body exceeds %d bytes", maxErr.Limit)
		default:
			return core.Validationf("invalid JSON body: %v", err)
		}
	}
	if dec.More() {
		return core.Validation("request body must contain a single JSON object")
	}
	return nil
}

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("invalid id %q", raw)
	}
	return id, nil
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(q url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Validationf("%s must be a YYYY-MM-DD date", key)
	}
	return d, nil
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, core.Validationf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// queryID parses an optional positive id query parameter.
func queryID(q url.Values, key string) (int64, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("%s must be a positive integer", key)
	}
	return id, nil
}

// queryParser collects the first error of a sequence of query reads so
// handlers can parse every parameter and check once.
type queryParser struct {
	q   url.Values
	err error
}

func newQueryParser(r *http.Request) *queryParser {
	return &queryParser{q: r.URL.Query()}
}

func (p *queryParser) date(key string) core.Date {
	d, err := queryDate(p.q, key)
	p.keep(err)
	return d
}

func (p *queryParser) integer(key string) int {
	n, err := queryInt(p.q, key)
	p.keep(err)
	return n
}

func (p *queryParser) id(key string) int64 {
	id, err := queryID(p.q, key)
	p.keep(err)
	return id
}

func (p *queryParser) str(key string) string {
	return strings.TrimSpace(p.q.Get(key))
}

func (p *queryParser) keep(err error) {
	if p.err == nil && err != nil {
		p.err = err
	}
}

// Err returns the first parse failure.
func (p *queryParser) Err() error {
	return p.err
}
