package http

import (
	"context"
	"net/http"

	"spendwise/internal/analytics"
	"spendwise/internal/core"
	"spendwise/internal/storage"
)

// analyticsQuery reads the shared analytics parameters: period or
// start/end, groupBy, categoryId, paymentMethod and limit.
func analyticsQuery(r *http.Request) (analytics.Query, error) {
	p := newQueryParser(r)
	q := analytics.Query{
		Period:     p.str("period"),
		Start:      p.date("start"),
		End:        p.date("end"),
		GroupBy:    storage.GroupBy(p.str("groupBy")),
		CategoryID: p.id("categoryId"),
		Limit:      p.integer("limit"),
	}
	if err := p.Err(); err != nil {
		return analytics.Query{}, err
	}
	if v := p.str("paymentMethod"); v != "" {
		pm, err := core.ParsePaymentMethod(v)
		if err != nil {
			return analytics.Query{}, core.AsValidation(err)
		}
		q.PaymentMethod = pm
	}
	return q, nil
}

// analyticsHandler adapts one analytics operation to an HTTP handler.
func analyticsHandler[T any](s *Server, run func(*analytics.Service, context.Context, int64, analytics.Query) (T, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := analyticsQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		result, err := run(s.deps.Analytics, r.Context(), currentUser(r).ID, q)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleAnalyticsSummary(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).Summary)(w, r)
}

func (s *Server) handleAnalyticsCategories(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).ByCategory)(w, r)
}

func (s *Server) handleAnalyticsTrends(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).Trends)(w, r)
}

func (s *Server) handleAnalyticsPaymentMethods(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).PaymentMethods)(w, r)
}

func (s *Server) handleAnalyticsComparison(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).Comparison)(w, r)
}

func (s *Server) handleAnalyticsMerchants(w http.ResponseWriter, r *http.Request) {
	analyticsHandler(s, (*analytics.Service).Merchants)(w, r)
}
