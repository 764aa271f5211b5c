package database

import (
	"context"

	"github.com/google/uuid"
)

const menuItemColumns = `id, name, price, is_freshly_made, stock, created_at, updated_at`

func scanMenuItem(row interface{ Scan(...any) error }) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(
		&m.ID,
		&m.Name,
		&m.Price,
		&m.IsFreshlyMade,
		&m.Stock,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	return m, err
}

const getMenuItem = `
SELECT ` + menuItemColumns + `
FROM menu_items
WHERE id = $1
`

func (q *Queries) GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, getMenuItem, id))
}

const listMenuItems = `
SELECT ` + menuItemColumns + `
FROM menu_items
ORDER BY name
`

func (q *Queries) ListMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// DeductMenuStock atomically decrements stock and only succeeds when enough
// stock remains. Returns pgx.ErrNoRows when the item is freshly made, absent,
// or short on stock.
const deductMenuStock = `
UPDATE menu_items
SET stock = stock - $2, updated_at = now()
WHERE id = $1
  AND is_freshly_made = false
  AND stock >= $2
RETURNING ` + menuItemColumns

type DeductMenuStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) DeductMenuStock(ctx context.Context, arg DeductMenuStockParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, deductMenuStock, arg.ID, arg.Quantity))
}

const restoreMenuStock = `
UPDATE menu_items
SET stock = stock + $2, updated_at = now()
WHERE id = $1
  AND is_freshly_made = false
RETURNING ` + menuItemColumns

type RestoreMenuStockParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) RestoreMenuStock(ctx context.Context, arg RestoreMenuStockParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, restoreMenuStock, arg.ID, arg.Quantity))
}
