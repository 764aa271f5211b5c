package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const dailyAnalyticsColumns = `id, date, orders_total, orders_dine_in, orders_takeaway, orders_online,
	pay_cash, pay_card, pay_online, items, inventory, total_revenue, total_cost, profit, created_at`

func scanDailyAnalytics(row interface{ Scan(...any) error }) (DailyAnalytics, error) {
	var d DailyAnalytics
	err := row.Scan(
		&d.ID,
		&d.Date,
		&d.OrdersTotal,
		&d.OrdersDineIn,
		&d.OrdersTakeaway,
		&d.OrdersOnline,
		&d.PayCash,
		&d.PayCard,
		&d.PayOnline,
		&d.Items,
		&d.Inventory,
		&d.TotalRevenue,
		&d.TotalCost,
		&d.Profit,
		&d.CreatedAt,
	)
	return d, err
}

const getDailyAnalyticsByDate = `
SELECT ` + dailyAnalyticsColumns + `
FROM daily_analytics
WHERE date = $1
`

func (q *Queries) GetDailyAnalyticsByDate(ctx context.Context, date time.Time) (DailyAnalytics, error) {
	return scanDailyAnalytics(q.db.QueryRow(ctx, getDailyAnalyticsByDate, date))
}

// CreateDailyAnalytics inserts the snapshot for a date. The unique index on
// date plus DO NOTHING makes concurrent computes race-safe: the loser gets
// pgx.ErrNoRows and re-reads the winner's row.
const createDailyAnalytics = `
INSERT INTO daily_analytics (
	date, orders_total, orders_dine_in, orders_takeaway, orders_online,
	pay_cash, pay_card, pay_online, items, inventory, total_revenue, total_cost, profit
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (date) DO NOTHING
RETURNING ` + dailyAnalyticsColumns

type CreateDailyAnalyticsParams struct {
	Date           time.Time
	OrdersTotal    int32
	OrdersDineIn   int32
	OrdersTakeaway int32
	OrdersOnline   int32
	PayCash        int32
	PayCard        int32
	PayOnline      int32
	Items          []byte
	Inventory      []byte
	TotalRevenue   pgtype.Numeric
	TotalCost      pgtype.Numeric
	Profit         pgtype.Numeric
}

func (q *Queries) CreateDailyAnalytics(ctx context.Context, arg CreateDailyAnalyticsParams) (DailyAnalytics, error) {
	return scanDailyAnalytics(q.db.QueryRow(ctx, createDailyAnalytics,
		arg.Date,
		arg.OrdersTotal,
		arg.OrdersDineIn,
		arg.OrdersTakeaway,
		arg.OrdersOnline,
		arg.PayCash,
		arg.PayCard,
		arg.PayOnline,
		arg.Items,
		arg.Inventory,
		arg.TotalRevenue,
		arg.TotalCost,
		arg.Profit,
	))
}

const listDailyAnalyticsInRange = `
SELECT ` + dailyAnalyticsColumns + `
FROM daily_analytics
WHERE date >= $1 AND date <= $2
ORDER BY date
`

type ListDailyAnalyticsInRangeParams struct {
	StartDate time.Time
	EndDate   time.Time
}

func (q *Queries) ListDailyAnalyticsInRange(ctx context.Context, arg ListDailyAnalyticsInRangeParams) ([]DailyAnalytics, error) {
	rows, err := q.db.Query(ctx, listDailyAnalyticsInRange, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DailyAnalytics
	for rows.Next() {
		d, err := scanDailyAnalytics(rows)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

const listCompletedOrdersInWindow = `
SELECT ` + orderColumns + `
FROM orders
WHERE status = 'completed'
  AND created_at >= $1
  AND created_at < $2
ORDER BY created_at
`

type WindowParams struct {
	StartDate time.Time
	EndDate   time.Time
}

func (q *Queries) ListCompletedOrdersInWindow(ctx context.Context, arg WindowParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listCompletedOrdersInWindow, arg.StartDate, arg.EndDate)
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

const getItemSalesInWindow = `
SELECT oi.menu_item_id, m.name, SUM(oi.quantity)::bigint, SUM(oi.subtotal)
FROM order_items oi
JOIN orders o ON o.id = oi.order_id
JOIN menu_items m ON m.id = oi.menu_item_id
WHERE o.status = 'completed'
  AND o.created_at >= $1
  AND o.created_at < $2
GROUP BY oi.menu_item_id, m.name
ORDER BY m.name
`

type GetItemSalesInWindowRow struct {
	MenuItemID    uuid.UUID
	ItemName      string
	TotalQuantity int64
	TotalRevenue  pgtype.Numeric
}

func (q *Queries) GetItemSalesInWindow(ctx context.Context, arg WindowParams) ([]GetItemSalesInWindowRow, error) {
	rows, err := q.db.Query(ctx, getItemSalesInWindow, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []GetItemSalesInWindowRow
	for rows.Next() {
		var r GetItemSalesInWindowRow
		if err := rows.Scan(&r.MenuItemID, &r.ItemName, &r.TotalQuantity, &r.TotalRevenue); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// CountPaymentsByMethodInWindow counts completed payments on the window's
// completed orders, bucketed by method.
const countPaymentsByMethodInWindow = `
SELECT p.payment_method, COUNT(*)::bigint
FROM payments p
JOIN orders o ON o.id = p.order_id
WHERE o.status = 'completed'
  AND p.status = 'completed'
  AND o.created_at >= $1
  AND o.created_at < $2
GROUP BY p.payment_method
`

type CountPaymentsByMethodInWindowRow struct {
	PaymentMethod string
	Count         int64
}

func (q *Queries) CountPaymentsByMethodInWindow(ctx context.Context, arg WindowParams) ([]CountPaymentsByMethodInWindowRow, error) {
	rows, err := q.db.Query(ctx, countPaymentsByMethodInWindow, arg.StartDate, arg.EndDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CountPaymentsByMethodInWindowRow
	for rows.Next() {
		var r CountPaymentsByMethodInWindowRow
		if err := rows.Scan(&r.PaymentMethod, &r.Count); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

const listMenuItemIngredients = `
SELECT menu_item_id, inventory_item_id, qty_per_unit
FROM menu_item_ingredients
`

func (q *Queries) ListMenuItemIngredients(ctx context.Context) ([]MenuItemIngredient, error) {
	rows, err := q.db.Query(ctx, listMenuItemIngredients)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []MenuItemIngredient
	for rows.Next() {
		var r MenuItemIngredient
		if err := rows.Scan(&r.MenuItemID, &r.InventoryItemID, &r.QtyPerUnit); err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}
