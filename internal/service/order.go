package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/enum"
	"github.com/shopspring/decimal"
)

const maxOrderNumberRetries = 3

// Errors returned by the order service.
var (
	ErrEmptyItems         = errors.New("items are required")
	ErrInvalidOrderType   = errors.New("invalid order_type")
	ErrInvalidQuantity    = errors.New("quantity must be > 0")
	ErrInvalidMenuItemID  = errors.New("invalid menu_item_id")
	ErrMenuItemNotFound   = errors.New("menu item not found")
	ErrMenuItemOutOfStock = errors.New("insufficient stock")
	ErrOrderNotFound      = errors.New("order not found")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrOrderNotEditable   = errors.New("order can no longer be modified")
)

// OrderStore defines the DB methods needed by the order engine.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	GetNextOrderNumber(ctx context.Context) (int32, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	DeductMenuStock(ctx context.Context, arg database.DeductMenuStockParams) (database.MenuItem, error)
	RestoreMenuStock(ctx context.Context, arg database.RestoreMenuStockParams) (database.MenuItem, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	UpsertOrderItem(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	SetOrderStatus(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error)
	AddOrderTotal(ctx context.Context, arg database.AddOrderTotalParams) (database.Order, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
type NewOrderStore func(db database.DBTX) OrderStore

// PlaceOrderRequest is the validated input for placing an order.
type PlaceOrderRequest struct {
	TableNo      string
	CustomerName string
	OrderType    string
	Items        []OrderLineRequest
}

// OrderLineRequest is a single line item.
type OrderLineRequest struct {
	MenuItemID string
	Quantity   int32
}

// OrderResult is an order with its line items.
type OrderResult struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderService drives order placement, the status state machine, and the
// menu-stock deductions they imply.
type OrderService struct {
	pool     TxBeginner
	newStore NewOrderStore
}

func NewOrderService(pool TxBeginner, newStore NewOrderStore) *OrderService {
	return &OrderService{pool: pool, newStore: newStore}
}

// pricedLine is a validated line with its price snapshot.
type pricedLine struct {
	menuItemID uuid.UUID
	quantity   int32
	unitPrice  decimal.Decimal
	subtotal   decimal.Decimal
	deduct     bool // false for freshly-made items
}

// PlaceOrder validates every line against the menu catalog, then deducts all
// stock and inserts the order in a single transaction. Stock deduction
// happens exactly once, here; completing the order later is a pure status
// flip. Retries on order_number collisions (concurrent transactions can read
// the same MAX).
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	if err := validateOrderType(req.OrderType); err != nil {
		return nil, err
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderNumberRetries; attempt++ {
		result, err := s.placeOrderTx(ctx, req)
		if err == nil {
			return result, nil
		}
		if isUniqueViolation(err, "orders_order_number_key") {
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

func (s *OrderService) placeOrderTx(ctx context.Context, req PlaceOrderRequest) (*OrderResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	nextNum, err := store.GetNextOrderNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("get next order number: %w", err)
	}
	orderNumber := fmt.Sprintf("RSA-%03d", nextNum)

	lines, total, err := validateLines(ctx, store, req.Items)
	if err != nil {
		return nil, err
	}

	if err := deductLines(ctx, store, lines); err != nil {
		return nil, err
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderNumber:  orderNumber,
		TableNo:      textOrNull(req.TableNo),
		CustomerName: req.CustomerName,
		OrderType:    req.OrderType,
		Status:       enum.OrderStatusPending,
		TotalPrice:   decimalToNumeric(total),
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := insertLines(ctx, store, order.ID, lines); err != nil {
		return nil, err
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{Order: order, Items: items}, nil
}

// validateLines checks every line against the catalog before anything is
// deducted: existence, stock sufficiency for non-fresh items (accounting for
// duplicate lines naming the same item), and a price snapshot per line.
func validateLines(ctx context.Context, store OrderStore, reqItems []OrderLineRequest) ([]pricedLine, decimal.Decimal, error) {
	total := decimal.Zero
	lines := make([]pricedLine, 0, len(reqItems))
	claimed := make(map[uuid.UUID]int32)

	for i, line := range reqItems {
		if line.Quantity <= 0 {
			return nil, decimal.Zero, fmt.Errorf("items[%d]: %w", i, ErrInvalidQuantity)
		}
		menuItemID, err := uuid.Parse(line.MenuItemID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("items[%d]: %w", i, ErrInvalidMenuItemID)
		}

		menuItem, err := store.GetMenuItem(ctx, menuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, decimal.Zero, fmt.Errorf("items[%d] (%s): %w", i, line.MenuItemID, ErrMenuItemNotFound)
			}
			return nil, decimal.Zero, fmt.Errorf("items[%d]: get menu item: %w", i, err)
		}

		if !menuItem.IsFreshlyMade {
			available := int32(0)
			if menuItem.Stock.Valid {
				available = menuItem.Stock.Int32 - claimed[menuItemID]
			}
			if line.Quantity > available {
				return nil, decimal.Zero, fmt.Errorf("items[%d] (%s): %w", i, menuItem.Name, ErrMenuItemOutOfStock)
			}
			claimed[menuItemID] += line.Quantity
		}

		unitPrice := numericToDecimal(menuItem.Price)
		subtotal := unitPrice.Mul(decimal.NewFromInt32(line.Quantity))
		total = total.Add(subtotal)

		lines = append(lines, pricedLine{
			menuItemID: menuItemID,
			quantity:   line.Quantity,
			unitPrice:  unitPrice,
			subtotal:   subtotal,
			deduct:     !menuItem.IsFreshlyMade,
		})
	}

	return lines, total, nil
}

// deductLines commits the stock deductions via conditional decrements. A
// failure here means a concurrent order consumed the stock after validation;
// the surrounding transaction rolls every earlier deduction back.
func deductLines(ctx context.Context, store OrderStore, lines []pricedLine) error {
	for i, line := range lines {
		if !line.deduct {
			continue
		}
		if _, err := store.DeductMenuStock(ctx, database.DeductMenuStockParams{
			ID:       line.menuItemID,
			Quantity: line.quantity,
		}); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("items[%d] (%s): %w", i, line.menuItemID, ErrMenuItemOutOfStock)
			}
			return fmt.Errorf("items[%d]: deduct stock: %w", i, err)
		}
	}
	return nil
}

func insertLines(ctx context.Context, store OrderStore, orderID uuid.UUID, lines []pricedLine) error {
	for i, line := range lines {
		if _, err := store.UpsertOrderItem(ctx, database.UpsertOrderItemParams{
			OrderID:    orderID,
			MenuItemID: line.menuItemID,
			Quantity:   line.quantity,
			UnitPrice:  decimalToNumeric(line.unitPrice),
			Subtotal:   decimalToNumeric(line.subtotal),
		}); err != nil {
			return fmt.Errorf("items[%d]: create order item: %w", i, err)
		}
	}
	return nil
}

// allowedTransitions defines the status state machine. Completed and
// cancelled are terminal.
var allowedTransitions = map[string][]string{
	enum.OrderStatusPending:    {enum.OrderStatusProcessing, enum.OrderStatusCancelled},
	enum.OrderStatusProcessing: {enum.OrderStatusCompleted, enum.OrderStatusCancelled},
}

func validateStatusTransition(current, next string) error {
	allowed, ok := allowedTransitions[current]
	if !ok {
		return fmt.Errorf("cannot transition from %s: %w", current, ErrInvalidTransition)
	}
	for _, s := range allowed {
		if s == next {
			return nil
		}
	}
	return fmt.Errorf("cannot transition from %s to %s: %w", current, next, ErrInvalidTransition)
}

// UpdateStatus moves an order through the state machine. Transitioning into
// completed does not touch stock; cancelling a pending or processing order
// restores the stock deducted at placement for non-fresh items.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus string) (database.Order, error) {
	if !isValidOrderStatus(newStatus) {
		return database.Order{}, fmt.Errorf("%q: %w", newStatus, ErrInvalidStatus)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Order{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Order{}, ErrOrderNotFound
		}
		return database.Order{}, fmt.Errorf("get order: %w", err)
	}

	if err := validateStatusTransition(order.Status, newStatus); err != nil {
		return database.Order{}, err
	}

	if newStatus == enum.OrderStatusCancelled {
		if err := restoreOrderStock(ctx, store, orderID); err != nil {
			return database.Order{}, err
		}
	}

	updated, err := store.SetOrderStatus(ctx, database.SetOrderStatusParams{
		ID:         orderID,
		Status:     newStatus,
		PrevStatus: order.Status,
	})
	if err != nil {
		return database.Order{}, fmt.Errorf("set order status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Order{}, fmt.Errorf("commit tx: %w", err)
	}

	return updated, nil
}

// restoreOrderStock puts the placement-time deductions back. Freshly-made
// items never had stock deducted; the restore query skips them.
func restoreOrderStock(ctx context.Context, store OrderStore, orderID uuid.UUID) error {
	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("list order items: %w", err)
	}
	for _, item := range items {
		if _, err := store.RestoreMenuStock(ctx, database.RestoreMenuStockParams{
			ID:       item.MenuItemID,
			Quantity: item.Quantity,
		}); err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("restore stock for %s: %w", item.MenuItemID, err)
		}
	}
	return nil
}

// AddItems appends lines to an open order: same validation and deduction as
// placement, lines merged by menu item, total bumped by the new lines' value.
func (s *OrderService) AddItems(ctx context.Context, orderID uuid.UUID, reqItems []OrderLineRequest) (*OrderResult, error) {
	if len(reqItems) == 0 {
		return nil, ErrEmptyItems
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Status != enum.OrderStatusPending && order.Status != enum.OrderStatusProcessing {
		return nil, fmt.Errorf("order is %s: %w", order.Status, ErrOrderNotEditable)
	}

	lines, delta, err := validateLines(ctx, store, reqItems)
	if err != nil {
		return nil, err
	}

	if err := deductLines(ctx, store, lines); err != nil {
		return nil, err
	}

	if err := insertLines(ctx, store, orderID, lines); err != nil {
		return nil, err
	}

	updated, err := store.AddOrderTotal(ctx, database.AddOrderTotalParams{
		ID:    orderID,
		Delta: decimalToNumeric(delta),
	})
	if err != nil {
		return nil, fmt.Errorf("add order total: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderResult{Order: updated, Items: items}, nil
}

// --- Helpers ---

func validateOrderType(s string) error {
	switch s {
	case enum.OrderTypeDineIn, enum.OrderTypeTakeaway, enum.OrderTypeOnline:
		return nil
	}
	return ErrInvalidOrderType
}

func isValidOrderStatus(s string) bool {
	switch s {
	case enum.OrderStatusPending, enum.OrderStatusProcessing,
		enum.OrderStatusCompleted, enum.OrderStatusCancelled:
		return true
	}
	return false
}
