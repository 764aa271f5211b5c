package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// --- Mock implementations ---

// mockTx implements pgx.Tx with only the methods we need.
// The unused methods panic so we catch accidental calls.
type mockTx struct {
	commitErr   error
	rollbackErr error
	committed   bool
}

func (m *mockTx) Begin(ctx context.Context) (pgx.Tx, error) { panic("not implemented") }
func (m *mockTx) Commit(ctx context.Context) error {
	if m.commitErr == nil {
		m.committed = true
	}
	return m.commitErr
}
func (m *mockTx) Rollback(ctx context.Context) error { return m.rollbackErr }
func (m *mockTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}
func (m *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}
func (m *mockTx) LargeObjects() pgx.LargeObjects { panic("not implemented") }
func (m *mockTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}
func (m *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}
func (m *mockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}
func (m *mockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}
func (m *mockTx) Conn() *pgx.Conn { panic("not implemented") }

// mockTxBeginner implements TxBeginner.
type mockTxBeginner struct {
	tx  pgx.Tx
	err error
}

func (m *mockTxBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	return m.tx, m.err
}

// mockOrderStore implements OrderStore with configurable behavior.
type mockOrderStore struct {
	getNextOrderNumberFn    func(ctx context.Context) (int32, error)
	getMenuItemFn           func(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	deductMenuStockFn       func(ctx context.Context, arg database.DeductMenuStockParams) (database.MenuItem, error)
	restoreMenuStockFn      func(ctx context.Context, arg database.RestoreMenuStockParams) (database.MenuItem, error)
	createOrderFn           func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	upsertOrderItemFn       func(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error)
	getOrderForUpdateFn     func(ctx context.Context, id uuid.UUID) (database.Order, error)
	listOrderItemsByOrderFn func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	setOrderStatusFn        func(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error)
	addOrderTotalFn         func(ctx context.Context, arg database.AddOrderTotalParams) (database.Order, error)
}

func (m *mockOrderStore) GetNextOrderNumber(ctx context.Context) (int32, error) {
	return m.getNextOrderNumberFn(ctx)
}
func (m *mockOrderStore) GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
	return m.getMenuItemFn(ctx, id)
}
func (m *mockOrderStore) DeductMenuStock(ctx context.Context, arg database.DeductMenuStockParams) (database.MenuItem, error) {
	return m.deductMenuStockFn(ctx, arg)
}
func (m *mockOrderStore) RestoreMenuStock(ctx context.Context, arg database.RestoreMenuStockParams) (database.MenuItem, error) {
	return m.restoreMenuStockFn(ctx, arg)
}
func (m *mockOrderStore) CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
	return m.createOrderFn(ctx, arg)
}
func (m *mockOrderStore) UpsertOrderItem(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error) {
	return m.upsertOrderItemFn(ctx, arg)
}
func (m *mockOrderStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error) {
	return m.getOrderForUpdateFn(ctx, id)
}
func (m *mockOrderStore) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
	return m.listOrderItemsByOrderFn(ctx, orderID)
}
func (m *mockOrderStore) SetOrderStatus(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error) {
	return m.setOrderStatusFn(ctx, arg)
}
func (m *mockOrderStore) AddOrderTotal(ctx context.Context, arg database.AddOrderTotalParams) (database.Order, error) {
	return m.addOrderTotalFn(ctx, arg)
}

// --- Test helpers ---

func makeNumeric(val string) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(val)
	return n
}

func numericEquals(n pgtype.Numeric, expected string) bool {
	d := numericToDecimal(n)
	exp, _ := decimal.NewFromString(expected)
	return d.Equal(exp)
}

// newTestOrderService creates an OrderService with mocked dependencies.
func newTestOrderService(store *mockOrderStore) (*OrderService, *mockTx) {
	tx := &mockTx{}
	pool := &mockTxBeginner{tx: tx}
	newStore := func(db database.DBTX) OrderStore { return store }
	return NewOrderService(pool, newStore), tx
}

// stockedStore returns a mockOrderStore backed by a mutable stock counter for
// one bottled item priced at 10.00 with 5 in stock. Individual tests override
// the functions they care about.
func stockedStore(menuItemID uuid.UUID, stock *int32) *mockOrderStore {
	return &mockOrderStore{
		getNextOrderNumberFn: func(ctx context.Context) (int32, error) { return 1, nil },
		getMenuItemFn: func(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
			if id == menuItemID {
				return database.MenuItem{
					ID:            menuItemID,
					Name:          "iced tea bottle",
					Price:         makeNumeric("10.00"),
					IsFreshlyMade: false,
					Stock:         pgtype.Int4{Int32: *stock, Valid: true},
				}, nil
			}
			return database.MenuItem{}, pgx.ErrNoRows
		},
		deductMenuStockFn: func(ctx context.Context, arg database.DeductMenuStockParams) (database.MenuItem, error) {
			if arg.ID != menuItemID || arg.Quantity > *stock {
				return database.MenuItem{}, pgx.ErrNoRows
			}
			*stock -= arg.Quantity
			return database.MenuItem{ID: menuItemID, Stock: pgtype.Int4{Int32: *stock, Valid: true}}, nil
		},
		restoreMenuStockFn: func(ctx context.Context, arg database.RestoreMenuStockParams) (database.MenuItem, error) {
			if arg.ID != menuItemID {
				return database.MenuItem{}, pgx.ErrNoRows
			}
			*stock += arg.Quantity
			return database.MenuItem{ID: menuItemID, Stock: pgtype.Int4{Int32: *stock, Valid: true}}, nil
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{
				ID:           uuid.New(),
				OrderNumber:  arg.OrderNumber,
				TableNo:      arg.TableNo,
				CustomerName: arg.CustomerName,
				OrderType:    arg.OrderType,
				Status:       arg.Status,
				TotalPrice:   arg.TotalPrice,
			}, nil
		},
		upsertOrderItemFn: func(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{
				ID:         uuid.New(),
				OrderID:    arg.OrderID,
				MenuItemID: arg.MenuItemID,
				Quantity:   arg.Quantity,
				UnitPrice:  arg.UnitPrice,
				Subtotal:   arg.Subtotal,
			}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{}, nil
		},
		setOrderStatusFn: func(ctx context.Context, arg database.SetOrderStatusParams) (database.Order, error) {
			return database.Order{ID: arg.ID, Status: arg.Status}, nil
		},
		addOrderTotalFn: func(ctx context.Context, arg database.AddOrderTotalParams) (database.Order, error) {
			return database.Order{ID: arg.ID}, nil
		},
	}
}

// =====================
// Placement tests
// =====================

func TestPlaceOrder_EmptyItems(t *testing.T) {
	stock := int32(5)
	svc, _ := newTestOrderService(stockedStore(uuid.New(), &stock))

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeDineIn,
		Items:     nil,
	})
	if !errors.Is(err, ErrEmptyItems) {
		t.Fatalf("expected ErrEmptyItems, got: %v", err)
	}
}

func TestPlaceOrder_InvalidOrderType(t *testing.T) {
	stock := int32(5)
	menuItemID := uuid.New()
	svc, _ := newTestOrderService(stockedStore(menuItemID, &stock))

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: "DELIVERY",
		Items:     []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 1}},
	})
	if !errors.Is(err, ErrInvalidOrderType) {
		t.Fatalf("expected ErrInvalidOrderType, got: %v", err)
	}
}

func TestPlaceOrder_ZeroQuantity(t *testing.T) {
	stock := int32(5)
	menuItemID := uuid.New()
	svc, _ := newTestOrderService(stockedStore(menuItemID, &stock))

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeTakeaway,
		Items:     []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 0}},
	})
	if !errors.Is(err, ErrInvalidQuantity) {
		t.Fatalf("expected ErrInvalidQuantity, got: %v", err)
	}
}

func TestPlaceOrder_MenuItemNotFound(t *testing.T) {
	stock := int32(5)
	svc, _ := newTestOrderService(stockedStore(uuid.New(), &stock))

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeDineIn,
		Items:     []OrderLineRequest{{MenuItemID: uuid.New().String(), Quantity: 1}},
	})
	if !errors.Is(err, ErrMenuItemNotFound) {
		t.Fatalf("expected ErrMenuItemNotFound, got: %v", err)
	}
}

func TestPlaceOrder_DeductsStockAndComputesTotal(t *testing.T) {
	stock := int32(5)
	menuItemID := uuid.New()
	store := stockedStore(menuItemID, &stock)
	svc, tx := newTestOrderService(store)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType:    enum.OrderTypeDineIn,
		TableNo:      "7",
		CustomerName: "Sari",
		Items:        []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 3}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tx.committed {
		t.Fatal("expected transaction to be committed")
	}
	if stock != 2 {
		t.Fatalf("expected stock 2 after deduction, got %d", stock)
	}
	if result.Order.OrderNumber != "RSA-001" {
		t.Fatalf("expected order number RSA-001, got %s", result.Order.OrderNumber)
	}
	if result.Order.Status != enum.OrderStatusPending {
		t.Fatalf("expected pending status, got %s", result.Order.Status)
	}
	if !numericEquals(result.Order.TotalPrice, "30.00") {
		t.Fatalf("expected total 30.00, got %v", numericToDecimal(result.Order.TotalPrice))
	}
}

func TestPlaceOrder_InsufficientStock(t *testing.T) {
	stock := int32(2)
	menuItemID := uuid.New()
	store := stockedStore(menuItemID, &stock)
	svc, tx := newTestOrderService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeTakeaway,
		Items:     []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 3}},
	})
	if !errors.Is(err, ErrMenuItemOutOfStock) {
		t.Fatalf("expected ErrMenuItemOutOfStock, got: %v", err)
	}
	if tx.committed {
		t.Fatal("transaction must not commit on validation failure")
	}
	if stock != 2 {
		t.Fatalf("stock must be untouched, got %d", stock)
	}
}

func TestPlaceOrder_DuplicateLinesShareStock(t *testing.T) {
	// Two lines naming the same item must validate against the remaining
	// stock, not each see the full amount.
	stock := int32(5)
	menuItemID := uuid.New()
	store := stockedStore(menuItemID, &stock)
	svc, _ := newTestOrderService(store)

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeDineIn,
		Items: []OrderLineRequest{
			{MenuItemID: menuItemID.String(), Quantity: 3},
			{MenuItemID: menuItemID.String(), Quantity: 3},
		},
	})
	if !errors.Is(err, ErrMenuItemOutOfStock) {
		t.Fatalf("expected ErrMenuItemOutOfStock for combined quantity, got: %v", err)
	}
}

func TestPlaceOrder_FreshlyMadeSkipsStock(t *testing.T) {
	menuItemID := uuid.New()
	deducted := false
	store := &mockOrderStore{
		getNextOrderNumberFn: func(ctx context.Context) (int32, error) { return 42, nil },
		getMenuItemFn: func(ctx context.Context, id uuid.UUID) (database.MenuItem, error) {
			return database.MenuItem{
				ID:            menuItemID,
				Name:          "nasi goreng",
				Price:         makeNumeric("22000"),
				IsFreshlyMade: true,
			}, nil
		},
		deductMenuStockFn: func(ctx context.Context, arg database.DeductMenuStockParams) (database.MenuItem, error) {
			deducted = true
			return database.MenuItem{}, pgx.ErrNoRows
		},
		createOrderFn: func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
			return database.Order{ID: uuid.New(), OrderNumber: arg.OrderNumber, Status: arg.Status, TotalPrice: arg.TotalPrice}, nil
		},
		upsertOrderItemFn: func(ctx context.Context, arg database.UpsertOrderItemParams) (database.OrderItem, error) {
			return database.OrderItem{ID: uuid.New(), MenuItemID: arg.MenuItemID, Quantity: arg.Quantity}, nil
		},
		listOrderItemsByOrderFn: func(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error) {
			return []database.OrderItem{}, nil
		},
	}
	svc, _ := newTestOrderService(store)

	result, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeOnline,
		Items:     []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deducted {
		t.Fatal("freshly made items must not deduct menu stock")
	}
	if result.Order.OrderNumber != "RSA-042" {
		t.Fatalf("expected order number RSA-042, got %s", result.Order.OrderNumber)
	}
}

func TestPlaceOrder_RetriesOnOrderNumberCollision(t *testing.T) {
	stock := int32(10)
	menuItemID := uuid.New()
	store := stockedStore(menuItemID, &stock)

	attempts := 0
	inner := store.createOrderFn
	store.createOrderFn = func(ctx context.Context, arg database.CreateOrderParams) (database.Order, error) {
		attempts++
		if attempts == 1 {
			return database.Order{}, &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}
		}
		return inner(ctx, arg)
	}

	svc, _ := newTestOrderService(store)
	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{
		OrderType: enum.OrderTypeDineIn,
		Items:     []OrderLineRequest{{MenuItemID: menuItemID.String(), Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 create attempts, got %d", attempts)
	}
}

// =====================
// Status transition tests
// =====================

func TestUpdateStatus_ValidTransition(t *testing.T) {
	orderID := uuid.New()
	stock := int32(5)
	store := stockedStore(uuid.New(), &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusPending}, nil
	}
	svc, _ := newTestOrderService(store)

	updated, err := svc.UpdateStatus(context.Background(), orderID, enum.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.Status != enum.OrderStatusProcessing {
		t.Fatalf("expected processing, got %s", updated.Status)
	}
}

func TestUpdateStatus_CompletedIsTerminal(t *testing.T) {
	orderID := uuid.New()
	stock := int32(5)
	store := stockedStore(uuid.New(), &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusCompleted}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.UpdateStatus(context.Background(), orderID, enum.OrderStatusCancelled)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestUpdateStatus_PendingCannotComplete(t *testing.T) {
	orderID := uuid.New()
	stock := int32(5)
	store := stockedStore(uuid.New(), &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusPending}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.UpdateStatus(context.Background(), orderID, enum.OrderStatusCompleted)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got: %v", err)
	}
}

func TestUpdateStatus_CancelRestoresStock(t *testing.T) {
	orderID := uuid.New()
	menuItemID := uuid.New()
	stock := int32(2) // 3 were deducted at placement
	store := stockedStore(menuItemID, &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusPending}, nil
	}
	store.listOrderItemsByOrderFn = func(ctx context.Context, oid uuid.UUID) ([]database.OrderItem, error) {
		return []database.OrderItem{
			{ID: uuid.New(), OrderID: orderID, MenuItemID: menuItemID, Quantity: 3},
		}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.UpdateStatus(context.Background(), orderID, enum.OrderStatusCancelled)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 5 {
		t.Fatalf("expected stock restored to 5, got %d", stock)
	}
}

func TestUpdateStatus_CompleteDoesNotTouchStock(t *testing.T) {
	orderID := uuid.New()
	menuItemID := uuid.New()
	stock := int32(2)
	store := stockedStore(menuItemID, &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusProcessing}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.UpdateStatus(context.Background(), orderID, enum.OrderStatusCompleted)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 2 {
		t.Fatalf("completion must not change stock, got %d", stock)
	}
}

func TestUpdateStatus_OrderNotFound(t *testing.T) {
	stock := int32(5)
	store := stockedStore(uuid.New(), &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{}, pgx.ErrNoRows
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.UpdateStatus(context.Background(), uuid.New(), enum.OrderStatusProcessing)
	if !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got: %v", err)
	}
}

// =====================
// AddItems tests
// =====================

func TestAddItems_AppendsAndDeducts(t *testing.T) {
	orderID := uuid.New()
	menuItemID := uuid.New()
	stock := int32(5)
	store := stockedStore(menuItemID, &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusProcessing}, nil
	}
	var gotDelta pgtype.Numeric
	store.addOrderTotalFn = func(ctx context.Context, arg database.AddOrderTotalParams) (database.Order, error) {
		gotDelta = arg.Delta
		return database.Order{ID: arg.ID, Status: enum.OrderStatusProcessing}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.AddItems(context.Background(), orderID, []OrderLineRequest{
		{MenuItemID: menuItemID.String(), Quantity: 2},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stock != 3 {
		t.Fatalf("expected stock 3 after deduction, got %d", stock)
	}
	if !numericEquals(gotDelta, "20.00") {
		t.Fatalf("expected total delta 20.00, got %v", numericToDecimal(gotDelta))
	}
}

func TestAddItems_RejectedOnTerminalOrder(t *testing.T) {
	orderID := uuid.New()
	menuItemID := uuid.New()
	stock := int32(5)
	store := stockedStore(menuItemID, &stock)
	store.getOrderForUpdateFn = func(ctx context.Context, id uuid.UUID) (database.Order, error) {
		return database.Order{ID: orderID, Status: enum.OrderStatusCancelled}, nil
	}
	svc, _ := newTestOrderService(store)

	_, err := svc.AddItems(context.Background(), orderID, []OrderLineRequest{
		{MenuItemID: menuItemID.String(), Quantity: 1},
	})
	if !errors.Is(err, ErrOrderNotEditable) {
		t.Fatalf("expected ErrOrderNotEditable, got: %v", err)
	}
	if stock != 5 {
		t.Fatalf("stock must be untouched, got %d", stock)
	}
}
