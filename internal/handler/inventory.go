package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryServicer defines the service methods needed by inventory handlers.
// Satisfied by *service.InventoryService; narrow interface for testability.
type InventoryServicer interface {
	CreateItem(ctx context.Context, name, unit string) (database.InventoryItem, error)
	AddStock(ctx context.Context, itemName string, quantity decimal.Decimal, unit string, unitPrice decimal.Decimal, notes string) (*service.StockMutationResult, error)
	UseStock(ctx context.Context, itemName string, quantity decimal.Decimal, notes string) (*service.StockMutationResult, error)
	GetDetails(ctx context.Context, id uuid.UUID) (*service.InventoryDetails, error)
	ListItems(ctx context.Context, req service.ListInventoryRequest) (*service.ListInventoryResult, error)
}

// InventoryHandler handles inventory ledger endpoints.
type InventoryHandler struct {
	svc InventoryServicer
	hub Broadcaster
	log *zap.Logger
}

// NewInventoryHandler creates a new InventoryHandler.
func NewInventoryHandler(svc InventoryServicer, hub Broadcaster, log *zap.Logger) *InventoryHandler {
	return &InventoryHandler{svc: svc, hub: hub, log: log}
}

// RegisterRoutes registers inventory endpoints on the given Chi router.
// Expected to be mounted at /inventory
func (h *InventoryHandler) RegisterRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Post("/add", h.AddStock)
	r.Post("/use", h.UseStock)
}

// --- Request / Response types ---

type createInventoryItemRequest struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

type addStockRequest struct {
	Name      string `json:"name"`
	Quantity  string `json:"quantity"`
	Unit      string `json:"unit"`
	UnitPrice string `json:"unit_price"`
	Notes     string `json:"notes"`
}

type useStockRequest struct {
	Name     string `json:"name"`
	Quantity string `json:"quantity"`
	Notes    string `json:"notes"`
}

type inventoryItemResponse struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Unit             string    `json:"unit"`
	CurrentQuantity  string    `json:"current_quantity"`
	AverageUnitPrice string    `json:"average_unit_price"`
	TotalValue       string    `json:"total_value"`
	LastUpdated      time.Time `json:"last_updated"`
	CreatedAt        time.Time `json:"created_at"`
}

type inventoryTransactionResponse struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	Quantity   string    `json:"quantity"`
	UnitPrice  string    `json:"unit_price"`
	TotalValue string    `json:"total_value"`
	Notes      *string   `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
}

// inventoryDetailResponse extends the item with its transaction history.
type inventoryDetailResponse struct {
	inventoryItemResponse
	Transactions []inventoryTransactionResponse `json:"transactions"`
}

// stockMutationResponse is the result of an add or use operation.
type stockMutationResponse struct {
	Item        inventoryItemResponse        `json:"item"`
	Transaction inventoryTransactionResponse `json:"transaction"`
}

// inventoryListResponse wraps a page of items with pagination metadata.
type inventoryListResponse struct {
	Items []inventoryItemResponse `json:"items"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Limit int                     `json:"limit"`
}

// --- Handlers ---

// Create handles POST /inventory.
func (h *InventoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInventoryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("name is required"))
		return
	}
	if req.Unit == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("unit is required"))
		return
	}

	item, err := h.svc.CreateItem(r.Context(), req.Name, req.Unit)
	if err != nil {
		h.writeInventoryError(w, "create inventory item", err)
		return
	}

	writeJSON(w, http.StatusCreated, toInventoryItemResponse(item))
}

// AddStock handles POST /inventory/add.
func (h *InventoryHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req addStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("name is required"))
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid quantity"))
		return
	}
	unitPrice, err := decimal.NewFromString(req.UnitPrice)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid unit_price"))
		return
	}

	result, err := h.svc.AddStock(r.Context(), req.Name, quantity, req.Unit, unitPrice, req.Notes)
	if err != nil {
		h.writeInventoryError(w, "add stock", err)
		return
	}

	resp := toStockMutationResponse(result)
	h.hub.Broadcast("inventory.updated", resp.Item)
	writeJSON(w, http.StatusOK, resp)
}

// UseStock handles POST /inventory/use.
func (h *InventoryHandler) UseStock(w http.ResponseWriter, r *http.Request) {
	var req useStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid request body"))
		return
	}

	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse("name is required"))
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid quantity"))
		return
	}

	result, err := h.svc.UseStock(r.Context(), req.Name, quantity, req.Notes)
	if err != nil {
		h.writeInventoryError(w, "use stock", err)
		return
	}

	resp := toStockMutationResponse(result)
	h.hub.Broadcast("inventory.updated", resp.Item)
	writeJSON(w, http.StatusOK, resp)
}

// Get handles GET /inventory/{id}.
func (h *InventoryHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("invalid inventory item ID"))
		return
	}

	details, err := h.svc.GetDetails(r.Context(), id)
	if err != nil {
		h.writeInventoryError(w, "get inventory item", err)
		return
	}

	resp := inventoryDetailResponse{
		inventoryItemResponse: toInventoryItemResponse(details.Item),
		Transactions:          make([]inventoryTransactionResponse, len(details.Transactions)),
	}
	for i, txn := range details.Transactions {
		resp.Transactions[i] = toInventoryTransactionResponse(txn)
	}

	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /inventory.
func (h *InventoryHandler) List(w http.ResponseWriter, r *http.Request) {
	req := service.ListInventoryRequest{
		Name:   r.URL.Query().Get("name"),
		SortBy: r.URL.Query().Get("sort_by"),
	}

	if s := r.URL.Query().Get("order"); s == "desc" {
		req.SortDesc = true
	}
	if s := r.URL.Query().Get("page"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			req.Page = v
		}
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		if v, err := strconv.Atoi(s); err == nil {
			req.Limit = v
		}
	}
	if s := r.URL.Query().Get("start_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid start_date format, use YYYY-MM-DD"))
			return
		}
		req.StartDate = &t
	}
	if s := r.URL.Query().Get("end_date"); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse("invalid end_date format, use YYYY-MM-DD"))
			return
		}
		end := t.AddDate(0, 0, 1)
		req.EndDate = &end
	}

	result, err := h.svc.ListItems(r.Context(), req)
	if err != nil {
		h.log.Error("list inventory items", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
		return
	}

	items := make([]inventoryItemResponse, len(result.Items))
	for i, item := range result.Items {
		items[i] = toInventoryItemResponse(item)
	}

	writeJSON(w, http.StatusOK, inventoryListResponse{
		Items: items,
		Total: result.Total,
		Page:  result.Page,
		Limit: result.Limit,
	})
}

// --- Helpers ---

// writeInventoryError maps known service errors to HTTP status codes.
func (h *InventoryHandler) writeInventoryError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidUnit),
		errors.Is(err, service.ErrInvalidQuantity),
		errors.Is(err, service.ErrInvalidUnitPrice):
		writeJSON(w, http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInventoryItemNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, service.ErrInventoryItemExists),
		errors.Is(err, service.ErrUnitMismatch),
		errors.Is(err, service.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorResponse(err.Error()))
	default:
		h.log.Error(op, zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse("internal server error"))
	}
}

func toInventoryItemResponse(item database.InventoryItem) inventoryItemResponse {
	return inventoryItemResponse{
		ID:               item.ID,
		Name:             item.Name,
		Unit:             item.Unit,
		CurrentQuantity:  numericToQuantity(item.CurrentQuantity),
		AverageUnitPrice: numericToString(item.AverageUnitPrice),
		TotalValue:       numericToString(item.TotalValue),
		LastUpdated:      item.LastUpdated,
		CreatedAt:        item.CreatedAt,
	}
}

func toInventoryTransactionResponse(txn database.InventoryTransaction) inventoryTransactionResponse {
	resp := inventoryTransactionResponse{
		ID:         txn.ID,
		Type:       txn.Type,
		Quantity:   numericToQuantity(txn.Quantity),
		UnitPrice:  numericToString(txn.UnitPrice),
		TotalValue: numericToString(txn.TotalValue),
		CreatedAt:  txn.CreatedAt,
	}
	if txn.Notes.Valid {
		resp.Notes = &txn.Notes.String
	}
	return resp
}

func toStockMutationResponse(result *service.StockMutationResult) stockMutationResponse {
	return stockMutationResponse{
		Item:        toInventoryItemResponse(result.Item),
		Transaction: toInventoryTransactionResponse(result.Transaction),
	}
}
