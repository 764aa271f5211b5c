package handler_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rasapos/api/internal/handler"
	"github.com/rasapos/api/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type mockAnalyticsService struct {
	computeDailyFn func(ctx context.Context, date time.Time) (*service.Summary, error)
	getRangeFn     func(ctx context.Context, start, end time.Time, granularity string) ([]service.Summary, error)
}

func (m *mockAnalyticsService) ComputeDaily(ctx context.Context, date time.Time) (*service.Summary, error) {
	return m.computeDailyFn(ctx, date)
}
func (m *mockAnalyticsService) GetRange(ctx context.Context, start, end time.Time, granularity string) ([]service.Summary, error) {
	return m.getRangeFn(ctx, start, end, granularity)
}

func setupAnalyticsRouter(svc handler.AnalyticsServicer) *chi.Mux {
	h := handler.NewAnalyticsHandler(svc, time.UTC, zap.NewNop())
	r := chi.NewRouter()
	r.Route("/analytics", h.RegisterRoutes)
	return r
}

func sampleSummary(date time.Time) *service.Summary {
	return &service.Summary{
		Date: date,
		Orders: service.OrdersBreakdown{
			Total:           2,
			ByType:          map[string]int32{"dine-in": 1, "takeaway": 1},
			ByPaymentMethod: map[string]int32{"cash": 2},
		},
		Items: []service.ItemSales{
			{MenuItemID: uuid.New(), ItemName: "nasi goreng", TotalQuantity: 4, TotalRevenue: decimal.RequireFromString("100.00")},
		},
		Inventory: []service.InventoryUsage{
			{InventoryItemID: uuid.New(), ItemName: "rice", CurrentStock: decimal.RequireFromString("48"), StockUsed: decimal.RequireFromString("2")},
		},
		Financials: service.Financials{
			TotalRevenue: decimal.RequireFromString("100.00"),
			TotalCost:    decimal.RequireFromString("6.00"),
			Profit:       decimal.RequireFromString("94.00"),
		},
	}
}

func TestComputeDailyAnalytics_WithExplicitDate(t *testing.T) {
	var gotDate time.Time
	svc := &mockAnalyticsService{
		computeDailyFn: func(ctx context.Context, date time.Time) (*service.Summary, error) {
			gotDate = date
			return sampleSummary(time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)), nil
		},
	}
	router := setupAnalyticsRouter(svc)

	rr := doRequest(t, router, "POST", "/analytics/daily", map[string]interface{}{
		"date": "2026-08-30",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gotDate.Format("2006-01-02") != "2026-08-30" {
		t.Errorf("service received date %v, want 2026-08-30", gotDate)
	}

	resp := decodeResponse(t, rr)
	if resp["date"] != "2026-08-30" {
		t.Errorf("date: got %v, want 2026-08-30", resp["date"])
	}
	orders := resp["orders"].(map[string]interface{})
	if orders["total"] != float64(2) {
		t.Errorf("orders.total: got %v, want 2", orders["total"])
	}
	financials := resp["financials"].(map[string]interface{})
	if financials["profit"] != "94.00" {
		t.Errorf("profit: got %v, want 94.00", financials["profit"])
	}
}

func TestComputeDailyAnalytics_EmptyBodyUsesToday(t *testing.T) {
	called := false
	svc := &mockAnalyticsService{
		computeDailyFn: func(ctx context.Context, date time.Time) (*service.Summary, error) {
			called = true
			return sampleSummary(date), nil
		},
	}
	router := setupAnalyticsRouter(svc)

	rr := doRequest(t, router, "POST", "/analytics/daily", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if !called {
		t.Fatal("service was not called")
	}
}

func TestComputeDailyAnalytics_BadDate(t *testing.T) {
	router := setupAnalyticsRouter(&mockAnalyticsService{})

	rr := doRequest(t, router, "POST", "/analytics/daily", map[string]interface{}{
		"date": "30-08-2026",
	})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestGetAnalyticsRange_MonthlyDates(t *testing.T) {
	svc := &mockAnalyticsService{
		getRangeFn: func(ctx context.Context, start, end time.Time, granularity string) ([]service.Summary, error) {
			if granularity != "monthly" {
				t.Errorf("granularity: got %s, want monthly", granularity)
			}
			return []service.Summary{
				*sampleSummary(time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)),
			}, nil
		},
	}
	router := setupAnalyticsRouter(svc)

	rr := doRequest(t, router, "GET", "/analytics?start_date=2026-08-01&end_date=2026-08-31&granularity=monthly", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want %d; body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp []map[string]interface{}
	decodeInto(t, rr, &resp)
	if len(resp) != 1 {
		t.Fatalf("expected 1 summary, got %d", len(resp))
	}
	if resp[0]["date"] != "2026-08" {
		t.Errorf("monthly date: got %v, want 2026-08", resp[0]["date"])
	}
}

func TestGetAnalyticsRange_InvalidGranularity(t *testing.T) {
	svc := &mockAnalyticsService{
		getRangeFn: func(ctx context.Context, start, end time.Time, granularity string) ([]service.Summary, error) {
			return nil, service.ErrInvalidGranularity
		},
	}
	router := setupAnalyticsRouter(svc)

	rr := doRequest(t, router, "GET", "/analytics?granularity=weekly", nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}
