package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, order_number, table_no, customer_name, order_type, status, total_price, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(
		&o.ID,
		&o.OrderNumber,
		&o.TableNo,
		&o.CustomerName,
		&o.OrderType,
		&o.Status,
		&o.TotalPrice,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	return o, err
}

// GetNextOrderNumber derives the next sequential order number from the
// highest existing one. Concurrent callers can race; the unique constraint on
// order_number plus the service-level retry resolves the collision.
const getNextOrderNumber = `
SELECT COALESCE(MAX(CAST(SUBSTRING(order_number FROM 5) AS INTEGER)), 0) + 1
FROM orders
WHERE order_number LIKE 'RSA-%'
`

func (q *Queries) GetNextOrderNumber(ctx context.Context) (int32, error) {
	var n int32
	err := q.db.QueryRow(ctx, getNextOrderNumber).Scan(&n)
	return n, err
}

const createOrder = `
INSERT INTO orders (order_number, table_no, customer_name, order_type, status, total_price)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + orderColumns

type CreateOrderParams struct {
	OrderNumber  string
	TableNo      pgtype.Text
	CustomerName string
	OrderType    string
	Status       string
	TotalPrice   pgtype.Numeric
}

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder,
		arg.OrderNumber,
		arg.TableNo,
		arg.CustomerName,
		arg.OrderType,
		arg.Status,
		arg.TotalPrice,
	))
}

const getOrder = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
`

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrder, id))
}

// GetOrderForUpdate locks the order row to serialize concurrent mutations
// (status changes, item additions, payment creation) per order.
const getOrderForUpdate = `
SELECT ` + orderColumns + `
FROM orders
WHERE id = $1
FOR NO KEY UPDATE
`

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderForUpdate, id))
}

const listOrders = `
SELECT ` + orderColumns + `
FROM orders
WHERE ($1::text IS NULL OR status = $1)
  AND ($2::text IS NULL OR order_type = $2)
  AND ($3::timestamptz IS NULL OR created_at >= $3)
  AND ($4::timestamptz IS NULL OR created_at < $4)
ORDER BY created_at DESC
LIMIT $5 OFFSET $6
`

type ListOrdersParams struct {
	Status    pgtype.Text
	OrderType pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	Limit     int32
	Offset    int32
}

func (q *Queries) ListOrders(ctx context.Context, arg ListOrdersParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrders,
		arg.Status,
		arg.OrderType,
		arg.StartDate,
		arg.EndDate,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

const orderItemColumns = `id, order_id, menu_item_id, quantity, unit_price, subtotal, created_at`

func scanOrderItem(row interface{ Scan(...any) error }) (OrderItem, error) {
	var i OrderItem
	err := row.Scan(
		&i.ID,
		&i.OrderID,
		&i.MenuItemID,
		&i.Quantity,
		&i.UnitPrice,
		&i.Subtotal,
		&i.CreatedAt,
	)
	return i, err
}

// UpsertOrderItem inserts a line or merges it into the existing line for the
// same menu item, adding quantity and subtotal. The unit price of the
// existing line is kept: each merge is priced at the snapshot taken when the
// merge happened, and the added value arrives through the subtotal.
const upsertOrderItem = `
INSERT INTO order_items (order_id, menu_item_id, quantity, unit_price, subtotal)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (order_id, menu_item_id) DO UPDATE
SET quantity = order_items.quantity + EXCLUDED.quantity,
    subtotal = order_items.subtotal + EXCLUDED.subtotal
RETURNING ` + orderItemColumns

type UpsertOrderItemParams struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int32
	UnitPrice  pgtype.Numeric
	Subtotal   pgtype.Numeric
}

func (q *Queries) UpsertOrderItem(ctx context.Context, arg UpsertOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, upsertOrderItem,
		arg.OrderID,
		arg.MenuItemID,
		arg.Quantity,
		arg.UnitPrice,
		arg.Subtotal,
	))
}

const listOrderItemsByOrder = `
SELECT ` + orderItemColumns + `
FROM order_items
WHERE order_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItemsByOrder, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		i, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// SetOrderStatus flips the status only when the current status still matches
// the one the caller validated against (optimistic guard against races).
const setOrderStatus = `
UPDATE orders
SET status = $2, updated_at = now()
WHERE id = $1
  AND status = $3
RETURNING ` + orderColumns

type SetOrderStatusParams struct {
	ID         uuid.UUID
	Status     string
	PrevStatus string
}

func (q *Queries) SetOrderStatus(ctx context.Context, arg SetOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, setOrderStatus, arg.ID, arg.Status, arg.PrevStatus))
}

// AddOrderTotal bumps the total by the value of newly added lines instead of
// recomputing from scratch, so earlier lines keep their historical prices.
const addOrderTotal = `
UPDATE orders
SET total_price = total_price + $2, updated_at = now()
WHERE id = $1
RETURNING ` + orderColumns

type AddOrderTotalParams struct {
	ID    uuid.UUID
	Delta pgtype.Numeric
}

func (q *Queries) AddOrderTotal(ctx context.Context, arg AddOrderTotalParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, addOrderTotal, arg.ID, arg.Delta))
}
