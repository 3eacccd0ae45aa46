package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/core"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func seedUser(t *testing.T, repo *Repository, email string) core.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), core.User{Email: email, Name: "Test", PasswordHash: "x"})
	require.NoError(t, err)
	return u
}

func categoryID(t *testing.T, repo *Repository, name string) int64 {
	t.Helper()
	c, err := repo.EnsureCategory(context.Background(), core.Category{Name: name})
	require.NoError(t, err)
	return c.ID
}

func TestMigrationsSeedDefaultCategories(t *testing.T) {
	repo := newTestRepo(t)
	cats, err := repo.ListCategories(context.Background())
	require.NoError(t, err)

	names := make([]string, 0, len(cats))
	for _, c := range cats {
		names = append(names, c.Name)
		assert.True(t, c.IsDefault)
	}
	assert.Contains(t, names, core.OtherCategoryName)
	assert.Contains(t, names, "Food & Dining")
	assert.Len(t, cats, 9)
}

func TestMigrationVersionAndRollback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")
	require.NoError(t, RunMigrations(path))
	v, dirty, err := MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(2), v)
	assert.False(t, dirty)

	require.NoError(t, RollbackMigrations(path, 1))
	v, _, err = MigrationVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)

	// Running again is a no-op once up to date.
	require.NoError(t, RunMigrations(path))
	require.NoError(t, RunMigrations(path))
}

func TestUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	u := seedUser(t, repo, " Alice@Example.com ")
	assert.Equal(t, "alice@example.com", u.Email)

	_, err := repo.CreateUser(ctx, core.User{Email: "alice@example.com", PasswordHash: "y"})
	assert.True(t, errors.Is(err, core.ErrConflict), err)

	got, err := repo.GetUserByEmail(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetUser(ctx, 999)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestEnsureCategory(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a, err := repo.EnsureCategory(ctx, core.Category{Name: "Pets", Color: "#000000", Icon: "paw"})
	require.NoError(t, err)
	b, err := repo.EnsureCategory(ctx, core.Category{Name: "Pets", Color: "#FFFFFF"})
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, "#000000", b.Color)
}

func TestExpenseLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	other := seedUser(t, repo, "b@example.com")
	food := categoryID(t, repo, "Food & Dining")
	conf := 0.8

	e, err := repo.CreateExpense(ctx, core.Expense{
		UserID: u.ID, CategoryID: food, Amount: core.Money{Cents: 1250},
		Description: "Lunch", TransactionDate: core.NewDate(2025, 6, 3),
		Merchant: "Chipotle", PaymentMethod: core.PaymentCreditCard,
		Tags: []string{"work"}, AIConfidence: &conf,
	})
	require.NoError(t, err)
	assert.Equal(t, "Food & Dining", e.CategoryName)
	assert.Equal(t, []string{"work"}, e.Tags)
	require.NotNil(t, e.AIConfidence)
	assert.InDelta(t, 0.8, *e.AIConfidence, 1e-9)

	_, err = repo.GetExpense(ctx, other.ID, e.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound), "expenses are scoped by owner")

	e.AIConfidence = nil
	e.Amount = core.Money{Cents: 1500}
	updated, err := repo.UpdateExpense(ctx, e)
	require.NoError(t, err)
	assert.Nil(t, updated.AIConfidence)
	assert.Equal(t, int64(1500), updated.Amount.Cents)

	require.NoError(t, repo.SetReceiptKey(ctx, u.ID, e.ID, "receipts/1/x.png"))
	got, err := repo.GetExpense(ctx, u.ID, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "receipts/1/x.png", got.ReceiptKey)

	assert.True(t, errors.Is(repo.DeleteExpense(ctx, other.ID, e.ID), core.ErrNotFound))
	require.NoError(t, repo.DeleteExpense(ctx, u.ID, e.ID))
	_, err = repo.GetExpense(ctx, u.ID, e.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestCreateExpenseUnknownCategory(t *testing.T) {
	repo := newTestRepo(t)
	u := seedUser(t, repo, "a@example.com")
	_, err := repo.CreateExpense(context.Background(), core.Expense{
		UserID: u.ID, CategoryID: 4242, Amount: core.Money{Cents: 100},
		Description: "x", TransactionDate: core.NewDate(2025, 1, 1), PaymentMethod: core.PaymentCash,
	})
	assert.True(t, errors.Is(err, core.ErrValidation), err)
}

func TestCreateExpensesIsAtomic(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	food := categoryID(t, repo, "Food & Dining")

	good := core.Expense{UserID: u.ID, CategoryID: food, Amount: core.Money{Cents: 100},
		Description: "ok", TransactionDate: core.NewDate(2025, 1, 1), PaymentMethod: core.PaymentCash}
	bad := good
	bad.CategoryID = 9999

	_, err := repo.CreateExpenses(ctx, []core.Expense{good, bad})
	require.Error(t, err)
	_, total, err := repo.ListExpenses(ctx, ExpenseFilter{UserID: u.ID})
	require.NoError(t, err)
	assert.Zero(t, total)

	created, err := repo.CreateExpenses(ctx, []core.Expense{good, good})
	require.NoError(t, err)
	assert.Len(t, created, 2)
}

func TestListExpensesFilters(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	food := categoryID(t, repo, "Food & Dining")
	travel := categoryID(t, repo, "Travel")

	add := func(cat int64, day int, desc, merchant string, pm core.PaymentMethod, tags ...string) {
		_, err := repo.CreateExpense(ctx, core.Expense{
			UserID: u.ID, CategoryID: cat, Amount: core.Money{Cents: int64(day * 100)},
			Description: desc, Merchant: merchant, TransactionDate: core.NewDate(2025, 6, day),
			PaymentMethod: pm, Tags: tags,
		})
		require.NoError(t, err)
	}
	add(food, 1, "Coffee", "Starbucks", core.PaymentCash, "morning")
	add(food, 5, "Dinner", "Luigi's", core.PaymentCreditCard, "date", "weekend")
	add(travel, 10, "Flight", "Delta", core.PaymentCreditCard)
	add(travel, 20, "Hotel", "Hilton", core.PaymentDebitCard, "weekend")

	list := func(f ExpenseFilter) ([]core.Expense, int) {
		f.UserID = u.ID
		items, total, err := repo.ListExpenses(ctx, f)
		require.NoError(t, err)
		return items, total
	}

	items, total := list(ExpenseFilter{})
	assert.Equal(t, 4, total)
	assert.Equal(t, "Hotel", items[0].Description, "newest first")

	_, total = list(ExpenseFilter{CategoryID: travel})
	assert.Equal(t, 2, total)

	_, total = list(ExpenseFilter{Start: core.NewDate(2025, 6, 5), End: core.NewDate(2025, 6, 10)})
	assert.Equal(t, 2, total)

	_, total = list(ExpenseFilter{PaymentMethod: core.PaymentCreditCard})
	assert.Equal(t, 2, total)

	items, total = list(ExpenseFilter{Search: "STARBUCKS"})
	require.Equal(t, 1, total)
	assert.Equal(t, "Coffee", items[0].Description)

	for _, wildcard := range []string{"%", "_", "Luigi_s"} {
		_, total = list(ExpenseFilter{Search: wildcard})
		assert.Equal(t, 0, total, "search %q must match literally", wildcard)
	}
	_, total = list(ExpenseFilter{Search: "luigi's"})
	assert.Equal(t, 1, total)

	_, total = list(ExpenseFilter{Tag: "weekend"})
	assert.Equal(t, 2, total)

	items, total = list(ExpenseFilter{Limit: 1, Offset: 1})
	assert.Equal(t, 4, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Flight", items[0].Description)

	inBudget, err := repo.ExpensesForBudget(ctx, u.ID, travel, core.NewDate(2025, 6, 1), core.NewDate(2025, 6, 20))
	require.NoError(t, err)
	assert.Len(t, inBudget, 2)
}

func TestBudgetUniquenessAndSoftDelete(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	food := categoryID(t, repo, "Food & Dining")

	b := core.Budget{
		UserID: u.ID, CategoryID: food, Amount: core.Money{Cents: 50000}, Period: core.Monthly,
		StartDate: core.NewDate(2025, 6, 1), EndDate: core.NewDate(2025, 6, 30),
	}
	created, err := repo.CreateBudget(ctx, b)
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.Equal(t, "Food & Dining", created.CategoryName)

	_, err = repo.CreateBudget(ctx, b)
	assert.True(t, errors.Is(err, core.ErrConflict), err)

	// A different period with the same start is allowed.
	q := b
	q.Period = core.Quarterly
	q.EndDate = core.NewDate(2025, 9, 30)
	q.StartDate = core.NewDate(2025, 6, 1)
	_, err = repo.CreateBudget(ctx, q)
	require.NoError(t, err)

	updated, err := repo.UpdateBudgetAmount(ctx, u.ID, created.ID, core.Money{Cents: 60000})
	require.NoError(t, err)
	assert.Equal(t, int64(60000), updated.Amount.Cents)

	require.NoError(t, repo.DeactivateBudget(ctx, u.ID, created.ID))
	assert.True(t, errors.Is(repo.DeactivateBudget(ctx, u.ID, created.ID), core.ErrNotFound))
	_, err = repo.GetBudget(ctx, u.ID, created.ID)
	assert.True(t, errors.Is(err, core.ErrNotFound))

	// Soft-deleted budgets no longer block a new one.
	_, err = repo.CreateBudget(ctx, b)
	require.NoError(t, err)

	active, err := repo.ListActiveBudgets(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestAggregates(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	food := categoryID(t, repo, "Food & Dining")
	travel := categoryID(t, repo, "Travel")

	add := func(cat int64, date core.Date, cents int64, merchant string, pm core.PaymentMethod) {
		_, err := repo.CreateExpense(ctx, core.Expense{
			UserID: u.ID, CategoryID: cat, Amount: core.Money{Cents: cents}, Description: "x",
			Merchant: merchant, TransactionDate: date, PaymentMethod: pm,
		})
		require.NoError(t, err)
	}
	// 2025-06-02 is a Monday, 2025-06-08 a Sunday.
	add(food, core.NewDate(2025, 6, 2), 1000, "Cafe", core.PaymentCash)
	add(food, core.NewDate(2025, 6, 8), 3000, "Cafe", core.PaymentCreditCard)
	add(travel, core.NewDate(2025, 6, 9), 20000, "Delta", core.PaymentCreditCard)
	add(food, core.NewDate(2025, 7, 1), 500, "", core.PaymentCash)

	f := ExpenseFilter{UserID: u.ID, Start: core.NewDate(2025, 6, 1), End: core.NewDate(2025, 6, 30)}

	tot, err := repo.Totals(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Totals{Total: core.Money{Cents: 24000}, Count: 3, Min: core.Money{Cents: 1000}, Max: core.Money{Cents: 20000}}, tot)

	empty, err := repo.Totals(ctx, ExpenseFilter{UserID: u.ID, Start: core.NewDate(2020, 1, 1), End: core.NewDate(2020, 1, 31)})
	require.NoError(t, err)
	assert.Zero(t, empty.Count)

	byCat, err := repo.TotalsByCategory(ctx, f)
	require.NoError(t, err)
	require.Len(t, byCat, 2)
	assert.Equal(t, "Travel", byCat[0].Name)
	assert.Equal(t, int64(4000), byCat[1].Total.Cents)

	byMethod, err := repo.TotalsByPaymentMethod(ctx, f)
	require.NoError(t, err)
	require.Len(t, byMethod, 2)
	assert.Equal(t, core.PaymentCreditCard, byMethod[0].Method)
	assert.Equal(t, int64(23000), byMethod[0].Total.Cents)

	weeks, err := repo.TotalsByBucket(ctx, f, GroupByWeek)
	require.NoError(t, err)
	require.Len(t, weeks, 2)
	assert.Equal(t, "2025-06-02", weeks[0].Start.String())
	assert.Equal(t, int64(4000), weeks[0].Total.Cents)
	assert.Equal(t, "2025-06-09", weeks[1].Start.String())

	months, err := repo.TotalsByBucket(ctx, ExpenseFilter{UserID: u.ID}, GroupByMonth)
	require.NoError(t, err)
	require.Len(t, months, 2)
	assert.Equal(t, "2025-07-01", months[1].Start.String())

	_, err = repo.TotalsByBucket(ctx, f, GroupBy("hour"))
	assert.True(t, errors.Is(err, core.ErrValidation))

	merchants, err := repo.TopMerchants(ctx, ExpenseFilter{UserID: u.ID}, 10)
	require.NoError(t, err)
	require.Len(t, merchants, 2, "empty merchants are skipped")
	assert.Equal(t, "Delta", merchants[0].Merchant)
	assert.Equal(t, int64(2), merchants[1].Count)
	assert.Equal(t, "2025-06-08", merchants[1].Last.String())
}

func TestRecordFeedback(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	u := seedUser(t, repo, "a@example.com")
	other := categoryID(t, repo, core.OtherCategoryName)
	food := categoryID(t, repo, "Food & Dining")

	e, err := repo.CreateExpense(ctx, core.Expense{
		UserID: u.ID, CategoryID: other, Amount: core.Money{Cents: 100}, Description: "xyzzy",
		TransactionDate: core.NewDate(2025, 1, 1), PaymentMethod: core.PaymentCash,
	})
	require.NoError(t, err)

	require.NoError(t, repo.RecordFeedback(ctx, core.CategorizationFeedback{
		ExpenseID: e.ID, UserID: u.ID, Description: e.Description,
		SuggestedCategoryID: other, CorrectedCategoryID: food,
	}))
	n, err := repo.CountFeedback(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
