package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"spendwise/internal/analytics"
	"spendwise/internal/auth"
	"spendwise/internal/categorize"
	"spendwise/internal/core"
	applog "spendwise/internal/log"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	"spendwise/internal/receipts"
	"spendwise/internal/report"
	"spendwise/internal/services"
)

// CategoryLister returns every category, for the category picker.
type CategoryLister interface {
	ListCategories(ctx context.Context) ([]core.Category, error)
}

// Suggester proposes a category for a transaction.
type Suggester interface {
	Categorize(tx categorize.Transaction) (core.CategorySuggestion, error)
}

// SheetsExporter writes a report into a spreadsheet and returns the range.
type SheetsExporter interface {
	Export(ctx context.Context, r *report.Report) (string, error)
}

// Deps are the services behind the API. Sheets and Ready are optional.
type Deps struct {
	Auth       *auth.Service
	Expenses   *services.ExpenseService
	Budgets    *services.BudgetService
	Analytics  *analytics.Service
	Reports    *report.Assembler
	Sheets     SheetsExporter
	Categories CategoryLister
	Suggester  Suggester
	Ready      func(ctx context.Context) error
	Now        func() time.Time
	Logger     *slog.Logger
}

// Options tunes the HTTP surface.
type Options struct {
	RateLimitRPM   int
	CORSOrigins    []string
	TrustedProxies []string

	// Upload caps; zero selects the defaults.
	MaxReceiptBytes int64
	MaxImportBytes  int64
}

// defaultMaxImportBytes caps a statement upload when Options leaves it unset.
const defaultMaxImportBytes int64 = 5 << 20

type Server struct {
	http.Server
	deps        Deps
	logger      *slog.Logger
	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	maxReceiptBytes int64
	maxImportBytes  int64

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps, opts Options) (*Server, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	logger := deps.Logger.With(applog.FieldComponent, applog.ComponentHTTP)

	detector := security.NewDetector(deps.Logger.With(applog.FieldComponent, applog.ComponentSecurity))
	for _, cidr := range opts.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			return nil, err
		}
	}

	s := &Server{
		deps:     deps,
		logger:   logger,
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP, deps.Logger.With(applog.FieldComponent, applog.ComponentTrace)),

		maxReceiptBytes: opts.MaxReceiptBytes,
		maxImportBytes:  opts.MaxImportBytes,
	}
	if s.maxReceiptBytes <= 0 {
		s.maxReceiptBytes = receipts.DefaultMaxBytes
	}
	if s.maxImportBytes <= 0 {
		s.maxImportBytes = defaultMaxImportBytes
	}
	if opts.RateLimitRPM > 0 {
		s.rateLimiter = ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitRPM})
	}

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(opts),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(s.logger, trace.GetRequestID))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader, "Retry-After", "Content-Disposition"},
		MaxAge:         300,
	}).Handler)
	if s.rateLimiter != nil {
		r.Use(s.rateLimiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		MethodNotAllowedError().Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.deps.Auth.Middleware)

			r.Get("/auth/me", s.handleMe)

			r.Get("/categories", s.handleListCategories)
			r.Post("/categorize", s.handleCategorize)

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", s.handleListExpenses)
				r.Post("/", s.handleCreateExpense)
				r.Post("/import", s.handleImportExpenses)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetExpense)
					r.Put("/", s.handleUpdateExpense)
					r.Patch("/", s.handleUpdateExpense)
					r.Delete("/", s.handleDeleteExpense)
					r.Put("/receipt", s.handleUploadReceipt)
					r.Post("/receipt", s.handleUploadReceipt)
					r.Get("/receipt", s.handleGetReceipt)
				})
			})

			r.Route("/budgets", func(r chi.Router) {
				r.Get("/", s.handleListBudgets)
				r.Post("/", s.handleCreateBudget)
				r.Get("/alerts", s.handleBudgetAlerts)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetBudget)
					r.Put("/", s.handleUpdateBudget)
					r.Patch("/", s.handleUpdateBudget)
					r.Delete("/", s.handleDeleteBudget)
				})
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/summary", s.handleAnalyticsSummary)
				r.Get("/categories", s.handleAnalyticsCategories)
				r.Get("/trends", s.handleAnalyticsTrends)
				r.Get("/payment-methods", s.handleAnalyticsPaymentMethods)
				r.Get("/comparison", s.handleAnalyticsComparison)
				r.Get("/merchants", s.handleAnalyticsMerchants)
			})

			r.Get("/reports", s.handleReport)
			r.Post("/reports/sheets", s.handleReportSheets)
		})
	})

	return r
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Metrics reports request, rate limit and security counters.
type Metrics struct {
	Requests  trace.Metrics             `json:"requests"`
	RateLimit ratelimit.Metrics         `json:"rateLimit"`
	Security  security.DetectionMetrics `json:"security"`
}

func (s *Server) Metrics() Metrics {
	m := Metrics{
		Requests: s.tracer.GetMetrics(),
		Security: s.detector.GetMetrics(),
	}
	if s.rateLimiter != nil {
		m.RateLimit = s.rateLimiter.GetMetrics()
	}
	return m
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// currentUser returns the user the auth middleware put in the context.
func currentUser(r *http.Request) core.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}
