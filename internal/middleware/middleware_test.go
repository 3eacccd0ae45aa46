package middleware_test

import (
	"bytes"
	"crypto/tls"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
})

func TestTraceAssignsRequestID(t *testing.T) {
	var buf bytes.Buffer
	m := trace.NewMiddleware(nil, slog.New(slog.NewTextHandler(&buf, nil)))

	var seen string
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = trace.GetRequestID(r.Context())
		w.WriteHeader(http.StatusTeapot)
	}))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/budgets", nil))

	_, err := uuid.Parse(seen)
	require.NoError(t, err)
	assert.Equal(t, seen, w.Header().Get(trace.RequestIDHeader))
	assert.Contains(t, buf.String(), "status_code=418")
	assert.Contains(t, buf.String(), "level=WARN")

	// A well-formed incoming ID is kept.
	id := uuid.NewString()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(trace.RequestIDHeader, id)
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.Equal(t, id, seen)

	// Anything else is replaced.
	r.Header.Set(trace.RequestIDHeader, "<script>")
	h.ServeHTTP(httptest.NewRecorder(), r)
	assert.NotEqual(t, "<script>", seen)

	assert.Equal(t, int64(3), m.GetMetrics().TotalRequests)
	assert.Empty(t, trace.GetRequestID(r.Context()))
}

func TestRateLimiter(t *testing.T) {
	rl := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 60, Burst: 2})
	t.Cleanup(rl.Stop)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.ActiveClients())
	assert.Equal(t, int64(1), rl.GetMetrics().TotalHits)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 60, Burst: 1})
	t.Cleanup(rl.Stop)
	h := rl.Middleware(func(*http.Request) string { return "1.2.3.4" }, nil)(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestSecurityHeaders(t *testing.T) {
	h := security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(ok)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.TLS = &tls.ConnectionState{}
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.Equal(t, "max-age=31536000; includeSubDomains", w.Header().Get("Strict-Transport-Security"))
}

func TestDetector(t *testing.T) {
	d := security.NewDetector(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	tests := []struct {
		name       string
		method     string
		target     string
		agent      string
		suspicious bool
	}{
		{"plain api call", http.MethodGet, "/api/expenses?limit=10", "curl/8.5", false},
		{"path traversal", http.MethodGet, "/api/../../etc/passwd", "", true},
		{"dotenv probe", http.MethodGet, "/.env", "", true},
		{"git probe", http.MethodGet, "/.git/config", "", true},
		{"dotted search term", http.MethodGet, "/api/expenses?search=.git", "", false},
		{"dotenv search term", http.MethodGet, "/api/expenses?search=my.env+fee", "", false},
		{"encoded script in query", http.MethodGet, "/api/expenses?search=%3Cscript%3E", "", true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", true},
		{"trace method", "TRACE", "/", "", true},
		{"long url", http.MethodGet, "/?q=" + strings.Repeat("a", 2100), "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(tt.method, "/", nil)
			r.URL.Path, r.URL.RawQuery, _ = strings.Cut(tt.target, "?")
			r.Header.Set("User-Agent", tt.agent)
			assert.Equal(t, tt.suspicious, d.DetectSuspiciousRequest(r))
		})
	}

	w := httptest.NewRecorder()
	d.Middleware(ok).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/wp-admin", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExtractClientIP(t *testing.T) {
	d := security.NewDetector(nil)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	assert.Equal(t, "203.0.113.9", d.ExtractClientIP(r), "untrusted peers cannot spoof")

	r.RemoteAddr = "10.1.2.3:5555"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.1.2.3")
	assert.Equal(t, "198.51.100.1", d.ExtractClientIP(r))

	r.Header.Del("X-Forwarded-For")
	r.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", d.ExtractClientIP(r))

	require.NoError(t, d.AddTrustedProxy("203.0.113.0/24"))
	assert.Error(t, d.AddTrustedProxy("nope"))
}
