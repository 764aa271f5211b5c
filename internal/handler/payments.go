package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/service"
	"go.uber.org/zap"
)

// PaymentServicer defines the service methods needed by payment handlers.
// Satisfied by *service.PaymentService; narrow interface for testability.
type PaymentServicer interface {
	Create(ctx context.Context, orderID uuid.UUID, method, transactionID string) (database.Payment, error)
	GetByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	UpdateStatus(ctx context.Context, paymentID uuid.UUID, status string) (database.Payment, error)
	Refund(ctx context.Context, paymentID uuid.UUID) (database.Payment, error)
}

// PaymentHandler handles payment endpoints.
type PaymentHandler struct {
	svc PaymentServicer
	log *zap.Logger
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(svc PaymentServicer, log *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, log: log}
}

// RegisterRoutes registers payment endpoints on the given Chi router.
// Expected to be mounted at /payments
func (h *PaymentHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/order/{orderID}", h.GetByOrder)
	r.Patch("/{id}/status", h.UpdateStatus)
	r.Post("/{id}/refund", h.Refund)
}

// --- Request / Response types ---

type createPaymentRequest struct {
	OrderID       string `json:"order_id"`
	PaymentMethod string `json:"payment_method"`
	TransactionID string `json:"transaction_id"`
}

type updatePaymentStatusRequest struct {
	Status string `json:"status"`
}

type paymentResponse struct {
	ID            uuid.UUID  `json:"id"`
	OrderID       uuid.UUID  `json:"order_id"`
	Amount        string     `json:"amount"`
	PaymentMethod string     `json:"payment_method"`
	TransactionID *string    `json:"transaction_id"`
	Status        string     `json:"status"`
	PaidAt        *time.Time `json:"paid_at"`
	CreatedAt     time.Time  `json:"created_at"`
}

// --- Handlers ---

// Create handles POST /payments.
func (h *PaymentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid order_id"))
		return
	}
	if req.PaymentMethod == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("payment_method is required"))
		return
	}

	payment, err := h.svc.Create(r.Context(), orderID, req.PaymentMethod, req.TransactionID)
	if err != nil {
		h.writePaymentError(w, "create payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(payment))
}

// GetByOrder handles GET /payments/order/{orderID}.
func (h *PaymentHandler) GetByOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid order ID"))
		return
	}

	payment, err := h.svc.GetByOrder(r.Context(), orderID)
	if err != nil {
		h.writePaymentError(w, "get payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// UpdateStatus handles PATCH /payments/{id}/status.
func (h *PaymentHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid payment ID"))
		return
	}

	var req updatePaymentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("status is required"))
		return
	}

	payment, err := h.svc.UpdateStatus(r.Context(), paymentID, req.Status)
	if err != nil {
		h.writePaymentError(w, "update payment status", err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// Refund handles POST /payments/{id}/refund.
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid payment ID"))
		return
	}

	payment, err := h.svc.Refund(r.Context(), paymentID)
	if err != nil {
		h.writePaymentError(w, "refund payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toPaymentResponse(payment))
}

// --- Helpers ---

// writePaymentError maps known service errors to HTTP status codes.
func (h *PaymentHandler) writePaymentError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidPaymentMethod),
		errors.Is(err, service.ErrInvalidPaymentStatus):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrPaymentNotFound),
		errors.Is(err, service.ErrOrderNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrPaymentExists),
		errors.Is(err, service.ErrPaymentNotRefundable):
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error(op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}

func toPaymentResponse(p database.Payment) paymentResponse {
	resp := paymentResponse{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        numericToString(p.Amount),
		PaymentMethod: p.PaymentMethod,
		Status:        p.Status,
		CreatedAt:     p.CreatedAt,
	}
	if p.TransactionID.Valid {
		resp.TransactionID = &p.TransactionID.String
	}
	if p.PaidAt.Valid {
		resp.PaidAt = &p.PaidAt.Time
	}
	return resp
}
