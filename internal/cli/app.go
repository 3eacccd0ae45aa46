package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"spendwise/internal/amqp"
	"spendwise/internal/analytics"
	"spendwise/internal/auth"
	"spendwise/internal/cache"
	"spendwise/internal/categorize"
	"spendwise/internal/config"
	"spendwise/internal/core"
	apphttp "spendwise/internal/http"
	"spendwise/internal/jobs"
	applog "spendwise/internal/log"
	"spendwise/internal/mailer"
	"spendwise/internal/receipts"
	"spendwise/internal/report"
	"spendwise/internal/services"
	"spendwise/internal/storage"
)

const (
	memoryCacheSize      = 10_000
	cacheCleanupInterval = time.Minute
)

// App holds every long-lived component built from a Config.
type App struct {
	Config     *config.Config
	Logger     *applog.Logger
	Repo       *storage.Repository
	Cache      cache.Store
	Categories []core.Category
	Matcher    *categorize.Matcher
	Dispatcher *jobs.Dispatcher
	Queue      jobs.Queue
	AMQP       *amqp.Client // nil unless JOBS_MODE=amqp
	Analytics  *analytics.Service
	Budgets    *services.BudgetService
	Expenses   *services.ExpenseService
	Notifier   *services.Notifier
	Reports    *report.Assembler
	Sheets     *report.SheetsExporter // nil unless GOOGLE_SPREADSHEET_ID is set
	Receipts   receipts.Store
	Mailer     mailer.Sender
	Auth       *auth.Service // nil when JWT_SECRET is empty

	cacheManager *cache.Manager
	closers      []func() error
}

// Build opens storage, seeds the rule categories and wires the services.
// On error everything opened so far is closed.
func Build(ctx context.Context, cfg *config.Config, logger *applog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if a.Repo, err = storage.NewRepository(cfg.SQLiteDBPath); err != nil {
		return nil, fmt.Errorf("open repository: %w", err)
	}
	a.closers = append(a.closers, a.Repo.Close)

	rules := categorize.DefaultRules()
	if a.Categories, err = categorize.EnsureCategories(ctx, a.Repo, rules); err != nil {
		return nil, fmt.Errorf("seed categories: %w", err)
	}
	if a.Matcher, err = categorize.NewMatcher(rules, a.Categories, categorize.RandomJitter{}); err != nil {
		return nil, fmt.Errorf("build matcher: %w", err)
	}

	if a.Cache, err = a.buildCache(); err != nil {
		return nil, err
	}
	if a.Receipts, err = a.buildReceipts(ctx); err != nil {
		return nil, err
	}
	if a.Mailer, err = a.buildMailer(); err != nil {
		return nil, err
	}

	a.Dispatcher = jobs.NewDispatcher(logger.WithComponent(applog.ComponentJobs))
	if a.Queue, err = a.buildQueue(); err != nil {
		return nil, err
	}

	a.Analytics = analytics.NewService(a.Repo, a.Cache, time.Now, logger.WithComponent(applog.ComponentAnalytics))
	a.Budgets = services.NewBudgetService(a.Repo, time.Now, logger.WithComponent(applog.ComponentBudget))
	a.Expenses = services.NewExpenseService(services.ExpenseServiceConfig{
		Store:           a.Repo,
		Categorizer:     a.Matcher,
		Analytics:       a.Analytics,
		Queue:           a.Queue,
		Receipts:        a.Receipts,
		MaxReceiptBytes: cfg.ReceiptsMaxBytes,
		Now:             time.Now,
		Logger:          logger.WithComponent(applog.ComponentExpense),
	})
	a.Notifier = services.NewNotifier(a.Repo, a.Budgets, a.Mailer, logger.WithComponent(applog.ComponentMailer))
	a.Notifier.Register(a.Dispatcher)
	a.Reports = report.NewAssembler(a.Repo, time.Now)

	if cfg.SheetsEnabled() {
		a.Sheets, err = report.NewSheetsExporter(ctx, cfg.GoogleSpreadsheetID, report.SheetsCredentials{
			JSON: cfg.GoogleServiceAccountJSON,
			File: cfg.GoogleServiceAccountFile,
		}, logger.WithComponent(applog.ComponentReport))
		if err != nil {
			return nil, fmt.Errorf("sheets exporter: %w", err)
		}
	}

	if cfg.JWTSecret != "" {
		a.Auth, err = auth.NewService(a.Repo, cfg.JWTSecret, cfg.JWTTTL, a.Queue, logger.WithComponent(applog.ComponentAuth))
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) buildCache() (cache.Store, error) {
	switch a.Config.CacheBackend {
	case "redis":
		r, err := cache.NewRedis(a.Config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		a.Logger.Info("Using Redis cache")
		return r, nil
	default:
		m := cache.NewMemory(memoryCacheSize)
		a.cacheManager = cache.NewManager(a.Logger.WithComponent(applog.ComponentCache))
		a.cacheManager.Register(m)
		a.cacheManager.StartCleanup(cacheCleanupInterval)
		return m, nil
	}
}

func (a *App) buildReceipts(ctx context.Context) (receipts.Store, error) {
	var store receipts.Store
	switch a.Config.ReceiptsBackend {
	case "gcs":
		g, err := receipts.NewGCSStore(ctx, a.Config.ReceiptsBucket)
		if err != nil {
			return nil, fmt.Errorf("gcs receipts: %w", err)
		}
		a.closers = append(a.closers, g.Close)
		store = g
	case "local":
		l, err := receipts.NewLocalStore(a.Config.ReceiptsDir)
		if err != nil {
			return nil, fmt.Errorf("local receipts: %w", err)
		}
		store = l
	default:
		// The worker never touches receipts.
		return nil, nil
	}
	if a.Config.ReceiptsPassphrase == "" {
		return store, nil
	}
	return receipts.NewEncrypting(store, a.Config.ReceiptsPassphrase, 0)
}

func (a *App) buildMailer() (mailer.Sender, error) {
	if !a.Config.SMTPEnabled() {
		a.Logger.Info("SMTP not configured, emails are logged only")
		return mailer.NewLogSender(a.Logger.WithComponent(applog.ComponentMailer)), nil
	}
	s, err := mailer.NewSMTPSender(mailer.SMTPConfig{
		Host:     a.Config.SMTPHost,
		Port:     a.Config.SMTPPort,
		Username: a.Config.SMTPUsername,
		Password: a.Config.SMTPPassword,
		From:     a.Config.SMTPFrom,
	})
	if err != nil {
		return nil, fmt.Errorf("smtp sender: %w", err)
	}
	return s, nil
}

func (a *App) buildQueue() (jobs.Queue, error) {
	if a.Config.JobsMode != "amqp" {
		return jobs.NewInline(a.Dispatcher, a.Logger.WithComponent(applog.ComponentJobs)), nil
	}
	client, err := amqp.NewClient(a.Config.AMQPURL, a.Config.AMQPExchange, a.Config.AMQPQueue,
		a.Logger.WithComponent(applog.ComponentAMQP))
	if err != nil {
		return nil, fmt.Errorf("amqp client: %w", err)
	}
	a.AMQP = client
	a.closers = append(a.closers, client.Close)
	return jobs.NewBroker(client), nil
}

// Ping checks the database and the cache.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Repo.Ping(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := a.Cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}

// Close releases everything Build opened, in reverse order.
func (a *App) Close() error {
	if a.cacheManager != nil {
		a.cacheManager.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ServerDeps exposes the services to the HTTP API.
func (a *App) ServerDeps() apphttp.Deps {
	deps := apphttp.Deps{
		Auth:       a.Auth,
		Expenses:   a.Expenses,
		Budgets:    a.Budgets,
		Analytics:  a.Analytics,
		Reports:    a.Reports,
		Categories: a.Repo,
		Suggester:  a.Matcher,
		Ready:      a.Ping,
		Now:        time.Now,
		Logger:     a.Logger.Logger,
	}
	if a.Sheets != nil {
		deps.Sheets = a.Sheets
	}
	return deps
}

// ServerOptions maps the server settings of the config.
func (a *App) ServerOptions() apphttp.Options {
	return apphttp.Options{
		RateLimitRPM:   a.Config.RateLimitRPM,
		CORSOrigins:    a.Config.CORSOrigins,
		TrustedProxies: a.Config.TrustedProxies,

		MaxReceiptBytes: a.Config.ReceiptsMaxBytes,
		MaxImportBytes:  a.Config.ImportMaxBytes,
	}
}

// Log returns a component logger for packages that take a plain *slog.Logger.
func (a *App) Log(component string) *slog.Logger {
	return a.Logger.WithComponent(component)
}
