package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/storage"
)

// Store is the aggregate query surface analytics needs.
type Store interface {
	Totals(ctx context.Context, f storage.ExpenseFilter) (storage.Totals, error)
	TotalsByCategory(ctx context.Context, f storage.ExpenseFilter) ([]storage.CategoryTotal, error)
	TotalsByPaymentMethod(ctx context.Context, f storage.ExpenseFilter) ([]storage.MethodTotal, error)
	TotalsByBucket(ctx context.Context, f storage.ExpenseFilter, g storage.GroupBy) ([]storage.BucketTotal, error)
	TopMerchants(ctx context.Context, f storage.ExpenseFilter, limit int) ([]storage.MerchantTotal, error)
}

// Cache lifetimes per operation.
const (
	ttlSummary        = 5 * time.Minute
	ttlByCategory     = 15 * time.Minute
	ttlMerchants      = 15 * time.Minute
	ttlTrends         = 30 * time.Minute
	ttlPaymentMethods = 30 * time.Minute
	ttlComparison     = 60 * time.Minute

	defaultMerchantLimit = 10
	maxMerchantLimit     = 100
)

// Query selects the window and filters of an analytics call. Either Period
// or both Start and End must be set; an explicit range wins.
type Query struct {
	Period        string
	Start, End    core.Date
	GroupBy       storage.GroupBy
	CategoryID    int64
	PaymentMethod core.PaymentMethod
	Limit         int
}

func (q Query) windows(now time.Time) (Window, Window, error) {
	if !q.Start.IsZero() || !q.End.IsZero() {
		return CustomWindow(q.Start, q.End)
	}
	period := q.Period
	if period == "" {
		period = PeriodMonth
	}
	return ResolveWindow(period, now)
}

func (q Query) filter(userID int64, w Window) storage.ExpenseFilter {
	return storage.ExpenseFilter{
		UserID:        userID,
		Start:         w.Start,
		End:           w.End,
		CategoryID:    q.CategoryID,
		PaymentMethod: q.PaymentMethod,
	}
}

// Service runs analytics queries, caching each response per user.
type Service struct {
	store  Store
	cache  cache.Store
	now    func() time.Time
	logger *slog.Logger
}

func NewService(store Store, c cache.Store, now func() time.Time, logger *slog.Logger) *Service {
	if c == nil {
		c = cache.Nop{}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: c, now: now, logger: logger}
}

// CachePrefix is the key prefix of every cached analytics entry for a user.
func CachePrefix(userID int64) string {
	return fmt.Sprintf("analytics:%d:", userID)
}

func cacheKey(userID int64, op string, w Window, q Query, groupBy storage.GroupBy) string {
	period := w.Period
	if period == PeriodCustom {
		period = w.Start.String() + "_" + w.End.String()
	} else {
		period += "@" + w.Start.String()
	}
	filters := fmt.Sprintf("c%d-pm%s-l%d", q.CategoryID, q.PaymentMethod, q.Limit)
	return CachePrefix(userID) + cache.Key(op, period, groupBy, filters)
}

// Invalidate drops every cached analytics entry for the user. Cache errors
// are logged; they never fail the caller.
func (s *Service) Invalidate(ctx context.Context, userID int64) {
	n, err := s.cache.DeletePrefix(ctx, CachePrefix(userID))
	if err != nil {
		s.logger.WarnContext(ctx, "Analytics cache invalidation failed", "user_id", userID, "error", err)
		return
	}
	s.logger.DebugContext(ctx, "Analytics cache invalidated", "user_id", userID, "entries", n)
}

type Change struct {
	TotalPct float64 `json:"totalPct"`
	CountPct float64 `json:"countPct"`
}

type PeriodTotals struct {
	Total core.Money `json:"total"`
	Count int64      `json:"count"`
}

type SummaryResult struct {
	Window       Window       `json:"window"`
	Total        core.Money   `json:"total"`
	Count        int64        `json:"count"`
	Average      core.Money   `json:"average"`
	Min          core.Money   `json:"min"`
	Max          core.Money   `json:"max"`
	DailyAverage core.Money   `json:"dailyAverage"`
	Previous     PeriodTotals `json:"previous"`
	Change       Change       `json:"change"`
}

// Summary totals the current window and compares it with the previous one.
func (s *Service) Summary(ctx context.Context, userID int64, q Query) (SummaryResult, error) {
	cur, prev, err := q.windows(s.now())
	if err != nil {
		return SummaryResult{}, err
	}
	return cache.Remember(ctx, s.cache, cacheKey(userID, "summary", cur, q, ""), ttlSummary, func() (SummaryResult, error) {
		var now, before storage.Totals
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			now, err = s.store.Totals(gctx, q.filter(userID, cur))
			return err
		})
		g.Go(func() (err error) {
			before, err = s.store.Totals(gctx, q.filter(userID, prev))
			return err
		})
		if err := g.Wait(); err != nil {
			return SummaryResult{}, fmt.Errorf("summary: %w", err)
		}
		return SummaryResult{
			Window:       cur,
			Total:        now.Total,
			Count:        now.Count,
			Average:      now.Total.Div(now.Count),
			Min:          now.Min,
			Max:          now.Max,
			DailyAverage: now.Total.Div(int64(cur.Days())),
			Previous:     PeriodTotals{Total: before.Total, Count: before.Count},
			Change: Change{
				TotalPct: round1(PctChange(before.Total.Cents, now.Total.Cents)),
				CountPct: round1(PctChange(before.Count, now.Count)),
			},
		}, nil
	})
}

type CategoryShare struct {
	CategoryID int64      `json:"categoryId"`
	Name       string     `json:"name"`
	Color      string     `json:"color"`
	Icon       string     `json:"icon"`
	Total      core.Money `json:"total"`
	Count      int64      `json:"count"`
	Average    core.Money `json:"average"`
	Percentage float64    `json:"percentage"`
}

type CategoryBreakdown struct {
	Window     Window          `json:"window"`
	Total      core.Money      `json:"total"`
	Categories []CategoryShare `json:"categories"`
}

// ByCategory splits the window's spend by category, largest first.
func (s *Service) ByCategory(ctx context.Context, userID int64, q Query) (CategoryBreakdown, error) {
	cur, _, err := q.windows(s.now())
	if err != nil {
		return CategoryBreakdown{}, err
	}
	return cache.Remember(ctx, s.cache, cacheKey(userID, "categories", cur, q, ""), ttlByCategory, func() (CategoryBreakdown, error) {
		rows, err := s.store.TotalsByCategory(ctx, q.filter(userID, cur))
		if err != nil {
			return CategoryBreakdown{}, fmt.Errorf("by category: %w", err)
		}
		return breakdownFromRows(cur, rows), nil
	})
}

func breakdownFromRows(w Window, rows []storage.CategoryTotal) CategoryBreakdown {
	var total core.Money
	for _, r := range rows {
		total = total.Add(r.Total)
	}
	out := CategoryBreakdown{Window: w, Total: total, Categories: make([]CategoryShare, 0, len(rows))}
	for _, r := range rows {
		out.Categories = append(out.Categories, CategoryShare{
			CategoryID: r.CategoryID,
			Name:       r.Name,
			Color:      r.Color,
			Icon:       r.Icon,
			Total:      r.Total,
			Count:      r.Count,
			Average:    r.Total.Div(r.Count),
			Percentage: r.Total.PercentOf(total),
		})
	}
	return out
}

type TrendPoint struct {
	Start core.Date  `json:"start"`
	Total core.Money `json:"total"`
	Count int64      `json:"count"`
}

type TrendResult struct {
	Window  Window          `json:"window"`
	GroupBy storage.GroupBy `json:"groupBy"`
	Points  []TrendPoint    `json:"points"`
}

// Trends buckets spend over time. Buckets without expenses are reported with
// zero totals so the series is continuous.
func (s *Service) Trends(ctx context.Context, userID int64, q Query) (TrendResult, error) {
	cur, _, err := q.windows(s.now())
	if err != nil {
		return TrendResult{}, err
	}
	g := q.GroupBy
	if g == "" {
		g = DefaultGroupBy(cur)
	}
	if _, err := BucketsFor(cur, g); err != nil {
		return TrendResult{}, err
	}
	return cache.Remember(ctx, s.cache, cacheKey(userID, "trends", cur, q, g), ttlTrends, func() (TrendResult, error) {
		rows, err := s.store.TotalsByBucket(ctx, q.filter(userID, cur), g)
		if err != nil {
			return TrendResult{}, fmt.Errorf("trends: %w", err)
		}
		points, _ := BucketsFor(cur, g)
		byStart := make(map[string]int, len(points))
		for i, p := range points {
			byStart[p.Start.String()] = i
		}
		for _, r := range rows {
			if i, ok := byStart[r.Start.String()]; ok {
				points[i].Total = r.Total
				points[i].Count = r.Count
			}
		}
		return TrendResult{Window: cur, GroupBy: g, Points: points}, nil
	})
}

// BucketsFor lists the empty buckets covering w.
func BucketsFor(w Window, g storage.GroupBy) ([]TrendPoint, error) {
	switch g {
	case storage.GroupByDay, storage.GroupByWeek, storage.GroupByMonth:
	default:
		return nil, core.Validationf("unsupported groupBy %q: use day, week or month", string(g))
	}
	var points []TrendPoint
	for d := BucketStart(w.Start, g); !d.After(w.End.Time); d = nextBucket(d, g) {
		points = append(points, TrendPoint{Start: d})
	}
	return points, nil
}

type MethodShare struct {
	Method     core.PaymentMethod `json:"method"`
	Total      core.Money         `json:"total"`
	Count      int64              `json:"count"`
	Percentage float64            `json:"percentage"`
}

type PaymentMethodBreakdown struct {
	Window  Window        `json:"window"`
	Total   core.Money    `json:"total"`
	Methods []MethodShare `json:"methods"`
}

func (s *Service) PaymentMethods(ctx context.Context, userID int64, q Query) (PaymentMethodBreakdown, error) {
	cur, _, err := q.windows(s.now())
	if err != nil {
		return PaymentMethodBreakdown{}, err
	}
	return cache.Remember(ctx, s.cache, cacheKey(userID, "payment-methods", cur, q, ""), ttlPaymentMethods, func() (PaymentMethodBreakdown, error) {
		rows, err := s.store.TotalsByPaymentMethod(ctx, q.filter(userID, cur))
		if err != nil {
			return PaymentMethodBreakdown{}, fmt.Errorf("payment methods: %w", err)
		}
		return methodsFromRows(cur, rows), nil
	})
}

func methodsFromRows(w Window, rows []storage.MethodTotal) PaymentMethodBreakdown {
	var total core.Money
	for _, r := range rows {
		total = total.Add(r.Total)
	}
	out := PaymentMethodBreakdown{Window: w, Total: total, Methods: make([]MethodShare, 0, len(rows))}
	for _, r := range rows {
		out.Methods = append(out.Methods, MethodShare{
			Method: r.Method, Total: r.Total, Count: r.Count, Percentage: r.Total.PercentOf(total),
		})
	}
	return out
}

type CategoryChange struct {
	CategoryID int64      `json:"categoryId"`
	Name       string     `json:"name"`
	Current    core.Money `json:"current"`
	Previous   core.Money `json:"previous"`
	ChangePct  float64    `json:"changePct"`
}

type ComparisonResult struct {
	Current    Window           `json:"current"`
	Previous   Window           `json:"previous"`
	Totals     CategoryChange   `json:"totals"`
	Categories []CategoryChange `json:"categories"`
}

// Comparison sets each category's spend in the current window against the
// previous window. Categories present in either window are reported.
func (s *Service) Comparison(ctx context.Context, userID int64, q Query) (ComparisonResult, error) {
	cur, prev, err := q.windows(s.now())
	if err != nil {
		return ComparisonResult{}, err
	}
	return cache.Remember(ctx, s.cache, cacheKey(userID, "comparison", cur, q, ""), ttlComparison, func() (ComparisonResult, error) {
		var nowRows, beforeRows []storage.CategoryTotal
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			nowRows, err = s.store.TotalsByCategory(gctx, q.filter(userID, cur))
			return err
		})
		g.Go(func() (err error) {
			beforeRows, err = s.store.TotalsByCategory(gctx, q.filter(userID, prev))
			return err
		})
		if err := g.Wait(); err != nil {
			return ComparisonResult{}, fmt.Errorf("comparison: %w", err)
		}

		res := ComparisonResult{Current: cur, Previous: prev, Totals: CategoryChange{Name: "Total"}}
		index := map[int64]int{}
		upsert := func(r storage.CategoryTotal) *CategoryChange {
			i, ok := index[r.CategoryID]
			if !ok {
				i = len(res.Categories)
				index[r.CategoryID] = i
				res.Categories = append(res.Categories, CategoryChange{CategoryID: r.CategoryID, Name: r.Name})
			}
			return &res.Categories[i]
		}
		for _, r := range nowRows {
			upsert(r).Current = r.Total
			res.Totals.Current = res.Totals.Current.Add(r.Total)
		}
		for _, r := range beforeRows {
			upsert(r).Previous = r.Total
			res.Totals.Previous = res.Totals.Previous.Add(r.Total)
		}
		for i := range res.Categories {
			c := &res.Categories[i]
			c.ChangePct = round1(PctChange(c.Previous.Cents, c.Current.Cents))
		}
		if res.Categories == nil {
			res.Categories = []CategoryChange{}
		}
		res.Totals.ChangePct = round1(PctChange(res.Totals.Previous.Cents, res.Totals.Current.Cents))
		return res, nil
	})
}

type MerchantStat struct {
	Merchant string     `json:"merchant"`
	Total    core.Money `json:"total"`
	Count    int64      `json:"count"`
	Average  core.Money `json:"average"`
	Last     core.Date  `json:"lastTransaction"`
}

type MerchantRanking struct {
	Window    Window         `json:"window"`
	Merchants []MerchantStat `json:"merchants"`
}

// Merchants ranks merchants by total spend in the window.
func (s *Service) Merchants(ctx context.Context, userID int64, q Query) (MerchantRanking, error) {
	cur, _, err := q.windows(s.now())
	if err != nil {
		return MerchantRanking{}, err
	}
	if q.Limit <= 0 {
		q.Limit = defaultMerchantLimit
	}
	q.Limit = min(q.Limit, maxMerchantLimit)
	return cache.Remember(ctx, s.cache, cacheKey(userID, "merchants", cur, q, ""), ttlMerchants, func() (MerchantRanking, error) {
		rows, err := s.store.TopMerchants(ctx, q.filter(userID, cur), q.Limit)
		if err != nil {
			return MerchantRanking{}, fmt.Errorf("merchants: %w", err)
		}
		return MerchantRanking{Window: cur, Merchants: MerchantStats(rows)}, nil
	})
}

// MerchantStats converts ranked merchant rows to their output shape.
func MerchantStats(rows []storage.MerchantTotal) []MerchantStat {
	out := make([]MerchantStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, MerchantStat{
			Merchant: r.Merchant, Total: r.Total, Count: r.Count, Average: r.Total.Div(r.Count), Last: r.Last,
		})
	}
	return out
}

func round1(f float64) float64 {
	return math.Round(f*10) / 10
}
