package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"spendwise/internal/categorize"
	"spendwise/internal/core"
	"spendwise/internal/jobs"
	"spendwise/internal/mailer"
	"spendwise/internal/receipts"
	"spendwise/internal/storage"
)

var testNow = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type fixture struct {
	repo     *storage.Repository
	user     core.User
	cats     map[string]int64
	matcher  *categorize.Matcher
	queue    *recordingQueue
	inval    *recordingInvalidator
	expenses *ExpenseService
	budgets  *BudgetService
}

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(_ context.Context, j jobs.Job) error {
	q.jobs = append(q.jobs, j)
	return nil
}

type recordingInvalidator struct {
	users []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID int64) {
	r.users = append(r.users, userID)
}

func newFixture(t *testing.T, store receipts.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "services.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	rules := categorize.DefaultRules()
	cats, err := categorize.EnsureCategories(ctx, repo, rules)
	require.NoError(t, err)
	matcher, err := categorize.NewMatcher(rules, cats, categorize.FixedJitter(1))
	require.NoError(t, err)

	u, err := repo.CreateUser(ctx, core.User{Email: "ada@example.com", Name: "Ada", PasswordHash: "x"})
	require.NoError(t, err)

	f := &fixture{
		repo:    repo,
		user:    u,
		cats:    map[string]int64{},
		matcher: matcher,
		queue:   &recordingQueue{},
		inval:   &recordingInvalidator{},
	}
	for _, c := range cats {
		f.cats[c.Name] = c.ID
	}
	f.expenses = NewExpenseService(ExpenseServiceConfig{
		Store:       repo,
		Categorizer: matcher,
		Analytics:   f.inval,
		Queue:       f.queue,
		Receipts:    store,
		Now:         fixedClock,
	})
	f.budgets = NewBudgetService(repo, fixedClock, nil)
	return f
}

func (f *fixture) jobTypes() []string {
	out := make([]string, 0, len(f.queue.jobs))
	for _, j := range f.queue.jobs {
		out = append(out, j.Type)
	}
	return out
}

func TestCreateExpense_Categorizes(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	e, err := f.expenses.Create(ctx, f.user.ID, ExpenseInput{
		Amount:      core.Money{Cents: 450},
		Description: "  Latte\x07 ",
		Merchant:    "Starbucks",
		Tags:        []string{"Work", "coffee", "work"},
	})
	require.NoError(t, err)
	assert.Equal(t, f.cats["Food & Dining"], e.CategoryID)
	assert.Equal(t, "Food & Dining", e.CategoryName)
	require.NotNil(t, e.AIConfidence)
	assert.InDelta(t, 0.85, *e.AIConfidence, 1e-9)
	assert.Equal(t, "Latte", e.Description)
	assert.Equal(t, []string{"coffee", "work"}, e.Tags)
	assert.Equal(t, core.PaymentOther, e.PaymentMethod)
	assert.Equal(t, "2025-06-15", e.TransactionDate.String())

	assert.Equal(t, []int64{f.user.ID}, f.inval.users)
	assert.Equal(t, []string{jobs.TypeBudgetCheck}, f.jobTypes())
}

func TestCreateExpense_ExplicitCategoryKeepsConfidenceEmpty(t *testing.T) {
	f := newFixture(t, nil)
	e, err := f.expenses.Create(context.Background(), f.user.ID, ExpenseInput{
		Amount:          core.Money{Cents: 1200},
		Description:     "Starbucks beans",
		TransactionDate: core.NewDate(2025, 6, 2),
		PaymentMethod:   "Credit Card",
		CategoryID:      f.cats["Shopping"],
	})
	require.NoError(t, err)
	assert.Equal(t, f.cats["Shopping"], e.CategoryID)
	assert.Nil(t, e.AIConfidence)
	assert.Equal(t, core.PaymentCreditCard, e.PaymentMethod)
}

func TestCreateExpense_Validation(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name string
		in   ExpenseInput
	}{
		{"zero amount", ExpenseInput{Description: "coffee"}},
		{"empty description", ExpenseInput{Amount: core.Money{Cents: 100}, Description: "   "}},
		{"bad payment method", ExpenseInput{Amount: core.Money{Cents: 100}, Description: "coffee", PaymentMethod: "cheque"}},
		{"unknown category", ExpenseInput{Amount: core.Money{Cents: 100}, Description: "coffee", CategoryID: 9999}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.expenses.Create(context.Background(), f.user.ID, tt.in)
			assert.ErrorIs(t, err, core.ErrValidation)
		})
	}
	assert.Empty(t, f.queue.jobs)
}

func TestUpdateExpense_RecategorizeRecordsFeedback(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	e, err := f.expenses.Create(ctx, f.user.ID, ExpenseInput{Amount: core.Money{Cents: 900}, Description: "Uber ride"})
	require.NoError(t, err)
	require.Equal(t, f.cats["Transportation"], e.CategoryID)

	desc := "Uber to airport"
	updated, err := f.expenses.Update(ctx, f.user.ID, e.ID, ExpenseUpdate{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, desc, updated.Description)
	assert.NotNil(t, updated.AIConfidence)

	travel := f.cats["Travel"]
	require.NotZero(t, travel)
	updated, err = f.expenses.Update(ctx, f.user.ID, e.ID, ExpenseUpdate{CategoryID: &travel})
	require.NoError(t, err)
	assert.Equal(t, travel, updated.CategoryID)
	assert.Nil(t, updated.AIConfidence)

	n, err := f.repo.CountFeedback(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, f.inval.users, 3)

	bad := "wire"
	_, err = f.expenses.Update(ctx, f.user.ID, e.ID, ExpenseUpdate{PaymentMethod: &bad})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.expenses.Update(ctx, f.user.ID+1, e.ID, ExpenseUpdate{Description: &desc})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestListAndDeleteExpenses(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i, d := range []string{"coffee", "pizza", "taxi"} {
		_, err := f.expenses.Create(ctx, f.user.ID, ExpenseInput{
			Amount:          core.Money{Cents: int64(100 * (i + 1))},
			Description:     d,
			TransactionDate: core.NewDate(2025, 6, i+1),
		})
		require.NoError(t, err)
	}

	page, err := f.expenses.List(ctx, f.user.ID, ListQuery{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "taxi", page.Items[0].Description)

	page, err = f.expenses.List(ctx, f.user.ID, ListQuery{Search: "PIZ"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, DefaultPageSize, page.Limit)

	page, err = f.expenses.List(ctx, f.user.ID, ListQuery{Limit: 10_000})
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, page.Limit)

	_, err = f.expenses.List(ctx, f.user.ID, ListQuery{Start: core.NewDate(2025, 6, 3), End: core.NewDate(2025, 6, 1)})
	assert.ErrorIs(t, err, core.ErrValidation)

	id := page.Items[0].ID
	require.NoError(t, f.expenses.Delete(ctx, f.user.ID, id))
	_, err = f.expenses.Get(ctx, f.user.ID, id)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.expenses.Delete(ctx, f.user.ID, id), core.ErrNotFound)
}

func TestBulkImport(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	rows := []ImportRow{
		{Line: 2, Date: "2025-06-01", Description: "Starbucks", Amount: "$4.50"},
		{Line: 3, Date: "06/02/2025", Description: "Rent", Amount: "1,200.00", Category: "bills & utilities"},
		{Line: 4, Date: "not a date", Description: "x", Amount: "1"},
		{Line: 5, Date: "2025-06-03", Description: "mystery", Amount: "abc"},
		{Line: 6, Date: "2025-06-03", Description: "y", Amount: "2", Category: "Nope"},
	}
	calls := 0
	res, err := f.expenses.BulkImport(ctx, f.user.ID, rows, func() { calls++ })
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, 5, calls)
	require.Len(t, res.Errors, 3)
	assert.Equal(t, 4, res.Errors[0].Line)
	assert.Contains(t, res.Errors[2].Message, "unknown category")

	page, err := f.expenses.List(ctx, f.user.ID, ListQuery{})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, int64(120000), page.Items[0].Amount.Cents)
	assert.Equal(t, "Bills & Utilities", page.Items[0].CategoryName)
	assert.Equal(t, "Food & Dining", page.Items[1].CategoryName)
	assert.Equal(t, []string{jobs.TypeBudgetCheck}, f.jobTypes())

	_, err = f.expenses.BulkImport(ctx, f.user.ID, nil, nil)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestParseImportDate(t *testing.T) {
	for in, want := range map[string]string{
		"2025-06-01": "2025-06-01",
		"2025/06/01": "2025-06-01",
		"06/01/2025": "2025-06-01",
		"6/1/2025":   "2025-06-01",
		"01.06.2025": "2025-06-01",
		"20250601":   "2025-06-01",
	} {
		got, err := parseImportDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got.String(), in)
	}
	_, err := parseImportDate("June 1st")
	assert.Error(t, err)
}

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 32)...)

func TestAttachReceipt(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := receipts.NewMockStore(ctrl)
	f := newFixture(t, store)
	ctx := context.Background()

	e, err := f.expenses.Create(ctx, f.user.ID, ExpenseInput{Amount: core.Money{Cents: 100}, Description: "coffee"})
	require.NoError(t, err)

	var firstKey string
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "image/png").
		DoAndReturn(func(_ context.Context, key string, r io.Reader, _ string) error {
			firstKey = key
			b, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, pngBytes, b)
			return nil
		})
	withReceipt, err := f.expenses.AttachReceipt(ctx, f.user.ID, e.ID, bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, firstKey, withReceipt.ReceiptKey)
	assert.True(t, strings.HasPrefix(firstKey, "receipts/"))

	// Replacing deletes the previous object, and a failing delete is not fatal.
	store.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any(), "image/png").Return(nil)
	store.EXPECT().Delete(gomock.Any(), firstKey).Return(errors.New("bucket unavailable"))
	replaced, err := f.expenses.AttachReceipt(ctx, f.user.ID, e.ID, bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.NotEqual(t, firstKey, replaced.ReceiptKey)

	store.EXPECT().Get(gomock.Any(), replaced.ReceiptKey).Return(io.NopCloser(bytes.NewReader(pngBytes)), nil)
	rc, ct, err := f.expenses.Receipt(ctx, f.user.ID, e.ID)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "image/png", ct)

	_, err = f.expenses.AttachReceipt(ctx, f.user.ID, e.ID, strings.NewReader("plain text"))
	assert.ErrorIs(t, err, core.ErrValidation)

	store.EXPECT().Delete(gomock.Any(), replaced.ReceiptKey).Return(nil)
	require.NoError(t, f.expenses.Delete(ctx, f.user.ID, e.ID))
}

func TestAttachReceiptWithoutStore(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.expenses.AttachReceipt(context.Background(), f.user.ID, 1, bytes.NewReader(pngBytes))
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestBudgetService(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	food := f.cats["Food & Dining"]

	sum, err := f.budgets.Create(ctx, f.user.ID, CreateBudgetInput{CategoryID: food, Amount: core.Money{Cents: 10000}, Period: "monthly"})
	require.NoError(t, err)
	assert.Equal(t, "2025-06-01", sum.Budget.StartDate.String())
	assert.Equal(t, "2025-06-30", sum.Budget.EndDate.String())
	assert.Equal(t, core.StatusGood, sum.Status)

	_, err = f.budgets.Create(ctx, f.user.ID, CreateBudgetInput{CategoryID: food, Amount: core.Money{Cents: 5000}, Period: "MONTHLY"})
	assert.ErrorIs(t, err, core.ErrConflict)

	ref := core.NewDate(2025, 2, 10)
	q, err := f.budgets.Create(ctx, f.user.ID, CreateBudgetInput{CategoryID: food, Amount: core.Money{Cents: 30000}, Period: "quarterly", ReferenceDate: &ref})
	require.NoError(t, err)
	assert.Equal(t, "2025-01-01", q.Budget.StartDate.String())
	assert.Equal(t, "2025-03-31", q.Budget.EndDate.String())

	_, err = f.budgets.Create(ctx, f.user.ID, CreateBudgetInput{CategoryID: food, Amount: core.Money{Cents: 100}, Period: "weekly"})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.expenses.Create(ctx, f.user.ID, ExpenseInput{Amount: core.Money{Cents: 12000}, Description: "Sushi dinner", TransactionDate: core.NewDate(2025, 6, 10)})
	require.NoError(t, err)

	got, err := f.budgets.Get(ctx, f.user.ID, sum.Budget.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(12000), got.Spent.Cents)
	assert.Equal(t, core.StatusExceeded, got.Status)

	list, err := f.budgets.List(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	alerts, err := f.budgets.Alerts(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, core.AlertExceeded, alerts[0].Kind)
	assert.Equal(t, "You've exceeded your Food & Dining budget by $20.00", alerts[0].Message)

	amount := core.Money{Cents: 20000}
	updated, err := f.budgets.Update(ctx, f.user.ID, sum.Budget.ID, UpdateBudgetInput{Amount: &amount})
	require.NoError(t, err)
	assert.Equal(t, int64(20000), updated.Budget.Amount.Cents)
	assert.Equal(t, core.StatusGood, updated.Status)

	_, err = f.budgets.Update(ctx, f.user.ID, sum.Budget.ID, UpdateBudgetInput{})
	assert.ErrorIs(t, err, core.ErrValidation)

	inactive := false
	deactivated, err := f.budgets.Update(ctx, f.user.ID, q.Budget.ID, UpdateBudgetInput{IsActive: &inactive})
	require.NoError(t, err)
	assert.False(t, deactivated.Budget.IsActive)

	require.NoError(t, f.budgets.Delete(ctx, f.user.ID, sum.Budget.ID))
	_, err = f.budgets.Get(ctx, f.user.ID, sum.Budget.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.ErrorIs(t, f.budgets.Delete(ctx, f.user.ID, sum.Budget.ID), core.ErrNotFound)

	list, err = f.budgets.List(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNotifier(t *testing.T) {
	ctrl := gomock.NewController(t)
	sender := mailer.NewMockSender(ctrl)
	f := newFixture(t, nil)
	ctx := context.Background()
	n := NewNotifier(f.repo, f.budgets, sender, nil)

	d := jobs.NewDispatcher(nil)
	n.Register(d)
	check, err := jobs.New(jobs.TypeBudgetCheck, f.user.ID, nil)
	require.NoError(t, err)

	// No budgets, no mail.
	require.NoError(t, d.Dispatch(ctx, check))

	_, err = f.budgets.Create(ctx, f.user.ID, CreateBudgetInput{CategoryID: f.cats["Food & Dining"], Amount: core.Money{Cents: 1000}, Period: "MONTHLY"})
	require.NoError(t, err)
	_, err = f.expenses.Create(ctx, f.user.ID, ExpenseInput{Amount: core.Money{Cents: 2000}, Description: "pizza", TransactionDate: core.NewDate(2025, 6, 3)})
	require.NoError(t, err)

	sender.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg mailer.Message) error {
		assert.Equal(t, "ada@example.com", msg.To)
		assert.Equal(t, "Budget alert: Food & Dining", msg.Subject)
		return nil
	})
	require.NoError(t, d.Dispatch(ctx, check))

	welcome, err := jobs.New(jobs.TypeUserWelcome, f.user.ID, nil)
	require.NoError(t, err)
	sender.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
	assert.ErrorContains(t, d.Dispatch(ctx, welcome), "smtp down")

	missing, err := jobs.New(jobs.TypeUserWelcome, 999, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, d.Dispatch(ctx, missing), core.ErrNotFound)
}
