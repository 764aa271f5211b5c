package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rasapos/api/internal/service"
	"go.uber.org/zap"
)

// AnalyticsServicer defines the service methods needed by analytics handlers.
// Satisfied by *service.AnalyticsService; narrow interface for testability.
type AnalyticsServicer interface {
	ComputeDaily(ctx context.Context, date time.Time) (*service.Summary, error)
	GetRange(ctx context.Context, start, end time.Time, granularity string) ([]service.Summary, error)
}

// AnalyticsHandler handles analytics endpoints.
type AnalyticsHandler struct {
	svc AnalyticsServicer
	loc *time.Location
	log *zap.Logger
}

// NewAnalyticsHandler creates a new AnalyticsHandler.
func NewAnalyticsHandler(svc AnalyticsServicer, loc *time.Location, log *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, loc: loc, log: log}
}

// RegisterRoutes registers analytics endpoints on the given Chi router.
// Expected to be mounted at /analytics
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Post("/daily", h.ComputeDaily)
	r.Get("/", h.GetRange)
}

// --- Request / Response types ---

type computeDailyRequest struct {
	Date string `json:"date"`
}

// summaryResponse is service.Summary with the date rendered as YYYY-MM-DD.
type summaryResponse struct {
	Date       string                   `json:"date"`
	Orders     service.OrdersBreakdown  `json:"orders"`
	Items      []service.ItemSales      `json:"items"`
	Inventory  []service.InventoryUsage `json:"inventory"`
	Financials service.Financials       `json:"financials"`
}

// --- Handlers ---

// ComputeDaily handles POST /analytics/daily. The body may name a date;
// without one, today's snapshot is computed.
func (h *AnalyticsHandler) ComputeDaily(w http.ResponseWriter, r *http.Request) {
	date := time.Now().In(h.loc)

	var req computeDailyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.Date != "" {
		t, err := time.ParseInLocation("2006-01-02", req.Date, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid date format, use YYYY-MM-DD"))
			return
		}
		date = t
	}

	summary, err := h.svc.ComputeDaily(r.Context(), date)
	if err != nil {
		h.log.Error("compute daily analytics", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	writeJSON(w, http.StatusOK, toSummaryResponse(*summary, "2006-01-02"))
}

// GetRange handles GET /analytics?start_date=...&end_date=...&granularity=daily|monthly.
func (h *AnalyticsHandler) GetRange(w http.ResponseWriter, r *http.Request) {
	const layout = "2006-01-02"

	now := time.Now().In(h.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc).AddDate(0, 0, -30)
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)

	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid start_date format, use YYYY-MM-DD"))
			return
		}
		start = t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.ParseInLocation(layout, s, h.loc)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid end_date format, use YYYY-MM-DD"))
			return
		}
		end = t
	}

	granularity := r.URL.Query().Get("granularity")
	if granularity == "" {
		granularity = "daily"
	}

	summaries, err := h.svc.GetRange(r.Context(), start, end, granularity)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidGranularity),
			errors.Is(err, service.ErrInvalidDateRange):
			writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
		default:
			h.log.Error("get analytics range", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		}
		return
	}

	layout2 := "2006-01-02"
	if granularity == "monthly" {
		layout2 = "2006-01"
	}

	resp := make([]summaryResponse, len(summaries))
	for i, s := range summaries {
		resp[i] = toSummaryResponse(s, layout2)
	}

	writeJSON(w, http.StatusOK, resp)
}

// --- Helpers ---

func toSummaryResponse(s service.Summary, layout string) summaryResponse {
	return summaryResponse{
		Date:       s.Date.Format(layout),
		Orders:     s.Orders,
		Items:      s.Items,
		Inventory:  s.Inventory,
		Financials: s.Financials,
	}
}
