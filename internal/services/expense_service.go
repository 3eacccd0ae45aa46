package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"spendwise/internal/categorize"
	"spendwise/internal/core"
	"spendwise/internal/jobs"
	"spendwise/internal/receipts"
	"spendwise/internal/storage"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	MaxImportRows   = 5000
)

// ExpenseStore is the persistence ExpenseService needs.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	CreateExpenses(ctx context.Context, expenses []core.Expense) ([]core.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (core.Expense, error)
	ListExpenses(ctx context.Context, f storage.ExpenseFilter) ([]core.Expense, int, error)
	UpdateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
	SetReceiptKey(ctx context.Context, userID, id int64, key string) error
	RecordFeedback(ctx context.Context, fb core.CategorizationFeedback) error
	ListCategories(ctx context.Context) ([]core.Category, error)
}

// Categorizer suggests a category for an expense.
type Categorizer interface {
	Categorize(tx categorize.Transaction) (core.CategorySuggestion, error)
}

// Invalidator drops cached analytics for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID int64)
}

// ExpenseService orchestrates expense writes across storage, the
// categorizer, the analytics cache and the job queue.
type ExpenseService struct {
	store       ExpenseStore
	categorizer Categorizer
	analytics   Invalidator
	queue       jobs.Queue
	receipts    receipts.Store
	maxReceipt  int64
	now         Clock
	logger      *slog.Logger
}

type ExpenseServiceConfig struct {
	Store       ExpenseStore
	Categorizer Categorizer
	Analytics   Invalidator
	Queue       jobs.Queue
	Receipts    receipts.Store
	// MaxReceiptBytes defaults to receipts.DefaultMaxBytes.
	MaxReceiptBytes int64
	Now             Clock
	Logger          *slog.Logger
}

func NewExpenseService(cfg ExpenseServiceConfig) *ExpenseService {
	s := &ExpenseService{
		store:       cfg.Store,
		categorizer: cfg.Categorizer,
		analytics:   cfg.Analytics,
		queue:       cfg.Queue,
		receipts:    cfg.Receipts,
		maxReceipt:  cfg.MaxReceiptBytes,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if s.maxReceipt <= 0 {
		s.maxReceipt = receipts.DefaultMaxBytes
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// ExpenseInput is a new expense as submitted by a client. A zero CategoryID
// asks the categorizer to pick one.
type ExpenseInput struct {
	Amount          core.Money `json:"amount"`
	Description     string     `json:"description"`
	TransactionDate core.Date  `json:"transactionDate"`
	Merchant        string     `json:"merchant"`
	PaymentMethod   string     `json:"paymentMethod"`
	CategoryID      int64      `json:"categoryId"`
	IsRecurring     bool       `json:"isRecurring"`
	Tags            []string   `json:"tags"`
}

// ExpenseUpdate is a partial update; nil fields are left alone.
type ExpenseUpdate struct {
	Amount          *core.Money `json:"amount,omitempty"`
	Description     *string     `json:"description,omitempty"`
	TransactionDate *core.Date  `json:"transactionDate,omitempty"`
	Merchant        *string     `json:"merchant,omitempty"`
	PaymentMethod   *string     `json:"paymentMethod,omitempty"`
	CategoryID      *int64      `json:"categoryId,omitempty"`
	IsRecurring     *bool       `json:"isRecurring,omitempty"`
	Tags            *[]string   `json:"tags,omitempty"`
}

type ListQuery struct {
	Start, End    core.Date
	CategoryID    int64
	PaymentMethod string
	Search        string
	Tag           string
	Limit, Offset int
}

type ExpensePage struct {
	Items  []core.Expense `json:"items"`
	Total  int            `json:"total"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// sanitizeInput removes control characters (except tab and newlines) and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

func (in ExpenseInput) toExpense(userID int64, today time.Time) (core.Expense, error) {
	pm, err := core.ParsePaymentMethod(in.PaymentMethod)
	if err != nil {
		return core.Expense{}, core.AsValidation(err)
	}
	date := in.TransactionDate
	if date.IsZero() {
		date = core.DateOf(today)
	}
	return core.Expense{
		UserID:          userID,
		CategoryID:      in.CategoryID,
		Amount:          in.Amount,
		Description:     sanitizeInput(in.Description),
		TransactionDate: date,
		Merchant:        sanitizeInput(in.Merchant),
		PaymentMethod:   pm,
		IsRecurring:     in.IsRecurring,
		Tags:            core.NormalizeTags(in.Tags),
	}, nil
}

// assignCategory fills in the category from the categorizer when none was
// given, recording its confidence.
func (s *ExpenseService) assignCategory(e *core.Expense) error {
	if e.CategoryID > 0 {
		return nil
	}
	if s.categorizer == nil {
		return core.Validation("category is required")
	}
	sug, err := s.categorizer.Categorize(categorize.Transaction{
		Description:   e.Description,
		Merchant:      e.Merchant,
		Amount:        e.Amount,
		PaymentMethod: e.PaymentMethod,
	})
	if err != nil {
		return err
	}
	e.CategoryID = sug.CategoryID
	e.CategoryName = sug.CategoryName
	confidence := sug.Confidence
	e.AIConfidence = &confidence
	return nil
}

func (s *ExpenseService) Create(ctx context.Context, userID int64, in ExpenseInput) (core.Expense, error) {
	e, err := in.toExpense(userID, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.assignCategory(&e); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, core.AsValidation(err)
	}
	created, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, err
	}
	s.changed(ctx, userID)
	return created, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id int64) (core.Expense, error) {
	return s.store.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID int64, q ListQuery) (ExpensePage, error) {
	if q.Limit <= 0 {
		q.Limit = DefaultPageSize
	}
	if q.Limit > MaxPageSize {
		q.Limit = MaxPageSize
	}
	if q.Offset < 0 {
		return ExpensePage{}, core.Validation("offset must not be negative")
	}
	if !q.Start.IsZero() && !q.End.IsZero() && q.End.Before(q.Start.Time) {
		return ExpensePage{}, core.Validation("end date must not be before start date")
	}
	var pm core.PaymentMethod
	if q.PaymentMethod != "" {
		p, err := core.ParsePaymentMethod(q.PaymentMethod)
		if err != nil {
			return ExpensePage{}, core.AsValidation(err)
		}
		pm = p
	}
	items, total, err := s.store.ListExpenses(ctx, storage.ExpenseFilter{
		UserID:        userID,
		Start:         q.Start,
		End:           q.End,
		CategoryID:    q.CategoryID,
		PaymentMethod: pm,
		Search:        q.Search,
		Tag:           q.Tag,
		Limit:         q.Limit,
		Offset:        q.Offset,
	})
	if err != nil {
		return ExpensePage{}, err
	}
	return ExpensePage{Items: items, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// Update applies a partial update. Moving an expense to another category
// clears its AI confidence and logs the correction.
func (s *ExpenseService) Update(ctx context.Context, userID, id int64, in ExpenseUpdate) (core.Expense, error) {
	current, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}
	next := current
	if in.Amount != nil {
		next.Amount = *in.Amount
	}
	if in.Description != nil {
		next.Description = sanitizeInput(*in.Description)
	}
	if in.TransactionDate != nil {
		next.TransactionDate = *in.TransactionDate
	}
	if in.Merchant != nil {
		next.Merchant = sanitizeInput(*in.Merchant)
	}
	if in.PaymentMethod != nil {
		pm, err := core.ParsePaymentMethod(*in.PaymentMethod)
		if err != nil {
			return core.Expense{}, core.AsValidation(err)
		}
		next.PaymentMethod = pm
	}
	if in.IsRecurring != nil {
		next.IsRecurring = *in.IsRecurring
	}
	if in.Tags != nil {
		next.Tags = core.NormalizeTags(*in.Tags)
	}
	recategorized := in.CategoryID != nil && *in.CategoryID != current.CategoryID
	if recategorized {
		next.CategoryID = *in.CategoryID
		next.AIConfidence = nil
	}
	if err := next.Validate(); err != nil {
		return core.Expense{}, core.AsValidation(err)
	}

	updated, err := s.store.UpdateExpense(ctx, next)
	if err != nil {
		return core.Expense{}, err
	}
	if recategorized {
		fb := core.CategorizationFeedback{
			ExpenseID:           id,
			UserID:              userID,
			Description:         current.Description,
			Merchant:            current.Merchant,
			CorrectedCategoryID: next.CategoryID,
			Confidence:          current.AIConfidence,
		}
		// Only suggestions the categorizer made count as corrections of it.
		if current.AIConfidence != nil {
			fb.SuggestedCategoryID = current.CategoryID
		}
		if err := s.store.RecordFeedback(ctx, fb); err != nil {
			s.logger.WarnContext(ctx, "Categorization feedback not recorded", "expense_id", id, "error", err)
		} else {
			s.logger.InfoContext(ctx, "Category corrected",
				"expense_id", id, "from", current.CategoryID, "to", next.CategoryID)
		}
	}
	s.changed(ctx, userID)
	return updated, nil
}

func (s *ExpenseService) Delete(ctx context.Context, userID, id int64) error {
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return err
	}
	if e.ReceiptKey != "" {
		s.deleteReceipt(ctx, e.ReceiptKey)
	}
	s.changed(ctx, userID)
	return nil
}

// ImportRow is one raw row of a bank export or CSV file. Category is a
// category name; empty means "categorize it".
type ImportRow struct {
	Line          int      `json:"line"`
	Date          string   `json:"date"`
	Description   string   `json:"description"`
	Amount        string   `json:"amount"`
	Merchant      string   `json:"merchant,omitempty"`
	PaymentMethod string   `json:"paymentMethod,omitempty"`
	Category      string   `json:"category,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	IsRecurring   bool     `json:"isRecurring,omitempty"`
}

type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

type ImportResult struct {
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors"`
}

// BulkImport validates and categorizes every row, then stores the valid
// ones in a single transaction. Invalid rows are reported, not fatal.
// progress, when set, is called once per processed row.
func (s *ExpenseService) BulkImport(ctx context.Context, userID int64, rows []ImportRow, progress func()) (ImportResult, error) {
	if len(rows) == 0 {
		return ImportResult{}, core.Validation("no rows to import")
	}
	if len(rows) > MaxImportRows {
		return ImportResult{}, core.Validationf("too many rows (max %d)", MaxImportRows)
	}
	cats, err := s.store.ListCategories(ctx)
	if err != nil {
		return ImportResult{}, fmt.Errorf("load categories: %w", err)
	}
	byName := make(map[string]int64, len(cats))
	for _, c := range cats {
		byName[strings.ToLower(c.Name)] = c.ID
	}

	res := ImportResult{Errors: []RowError{}}
	valid := make([]core.Expense, 0, len(rows))
	for i, row := range rows {
		if row.Line == 0 {
			row.Line = i + 1
		}
		e, err := s.importRow(userID, row, byName)
		if progress != nil {
			progress()
		}
		if errors.Is(err, core.ErrFatalConfiguration) {
			return ImportResult{}, err
		}
		if err != nil {
			res.Failed++
			res.Errors = append(res.Errors, RowError{Line: row.Line, Message: err.Error()})
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) > 0 {
		if _, err := s.store.CreateExpenses(ctx, valid); err != nil {
			return ImportResult{}, fmt.Errorf("import expenses: %w", err)
		}
		s.changed(ctx, userID)
	}
	res.Imported = len(valid)
	s.logger.InfoContext(ctx, "Expenses imported", "user_id", userID, "imported", res.Imported, "failed", res.Failed)
	return res, nil
}

func (s *ExpenseService) importRow(userID int64, row ImportRow, categories map[string]int64) (core.Expense, error) {
	cents, err := core.ParseAmount(row.Amount)
	if err != nil {
		return core.Expense{}, fmt.Errorf("invalid amount %q", row.Amount)
	}
	date, err := parseImportDate(row.Date)
	if err != nil {
		return core.Expense{}, err
	}
	in := ExpenseInput{
		Amount:          core.Money{Cents: cents},
		Description:     row.Description,
		TransactionDate: date,
		Merchant:        row.Merchant,
		PaymentMethod:   row.PaymentMethod,
		IsRecurring:     row.IsRecurring,
		Tags:            row.Tags,
	}
	if name := strings.TrimSpace(row.Category); name != "" {
		id, ok := categories[strings.ToLower(name)]
		if !ok {
			return core.Expense{}, fmt.Errorf("unknown category %q", name)
		}
		in.CategoryID = id
	}
	e, err := in.toExpense(userID, s.now())
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.assignCategory(&e); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	return e, nil
}

var importDateLayouts = []string{core.DateLayout, "2006/01/02", "01/02/2006", "1/2/2006", "02.01.2006", "20060102"}

// parseImportDate accepts the date layouts common in bank exports. Slash
// dates are read month first.
func parseImportDate(s string) (core.Date, error) {
	s = strings.TrimSpace(s)
	for _, layout := range importDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return core.DateOf(t), nil
		}
	}
	return core.Date{}, fmt.Errorf("invalid date %q", s)
}

// AttachReceipt stores an uploaded receipt and links it to the expense,
// replacing any previous one.
func (s *ExpenseService) AttachReceipt(ctx context.Context, userID, id int64, r io.Reader) (core.Expense, error) {
	if s.receipts == nil {
		return core.Expense{}, core.Validation("receipt storage is not configured")
	}
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return core.Expense{}, err
	}
	up, err := receipts.ReadUpload(r, s.maxReceipt)
	if err != nil {
		return core.Expense{}, err
	}
	key := receipts.NewKey(userID, up.Ext)
	if err := s.receipts.Put(ctx, key, up.Reader(), up.ContentType); err != nil {
		return core.Expense{}, fmt.Errorf("store receipt: %w", err)
	}
	if err := s.store.SetReceiptKey(ctx, userID, id, key); err != nil {
		s.deleteReceipt(ctx, key)
		return core.Expense{}, err
	}
	if e.ReceiptKey != "" {
		s.deleteReceipt(ctx, e.ReceiptKey)
	}
	s.logger.InfoContext(ctx, "Receipt attached", "expense_id", id, "key", key, "bytes", len(up.Data))
	return s.store.GetExpense(ctx, userID, id)
}

// Receipt opens the receipt of an expense.
func (s *ExpenseService) Receipt(ctx context.Context, userID, id int64) (io.ReadCloser, string, error) {
	if s.receipts == nil {
		return nil, "", core.NotFound("receipt", id)
	}
	e, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	if e.ReceiptKey == "" || !receipts.OwnedBy(e.ReceiptKey, userID) {
		return nil, "", core.NotFound("receipt", id)
	}
	rc, err := s.receipts.Get(ctx, e.ReceiptKey)
	if err != nil {
		return nil, "", err
	}
	return rc, receipts.ContentTypeFor(e.ReceiptKey), nil
}

func (s *ExpenseService) deleteReceipt(ctx context.Context, key string) {
	if s.receipts == nil {
		return
	}
	if err := s.receipts.Delete(ctx, key); err != nil {
		s.logger.WarnContext(ctx, "Receipt not deleted", "key", key, "error", err)
	}
}

// changed runs the side effects of every expense mutation. Neither may fail the request.
func (s *ExpenseService) changed(ctx context.Context, userID int64) {
	if s.analytics != nil {
		s.analytics.Invalidate(ctx, userID)
	}
	jobs.Submit(ctx, s.queue, s.logger, jobs.TypeBudgetCheck, userID, nil)
}
