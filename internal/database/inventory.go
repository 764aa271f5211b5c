package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const inventoryItemColumns = `id, name, unit, current_quantity, average_unit_price, total_value, last_updated, created_at`

func scanInventoryItem(row interface{ Scan(...any) error }) (InventoryItem, error) {
	var it InventoryItem
	err := row.Scan(
		&it.ID,
		&it.Name,
		&it.Unit,
		&it.CurrentQuantity,
		&it.AverageUnitPrice,
		&it.TotalValue,
		&it.LastUpdated,
		&it.CreatedAt,
	)
	return it, err
}

// CreateInventoryItem starts the ledger at zero; the unique constraint on
// name surfaces duplicates as pgconn code 23505.
const createInventoryItem = `
INSERT INTO inventory_items (name, unit, current_quantity, average_unit_price, total_value)
VALUES ($1, $2, 0, 0, 0)
RETURNING ` + inventoryItemColumns

type CreateInventoryItemParams struct {
	Name string
	Unit string
}

func (q *Queries) CreateInventoryItem(ctx context.Context, arg CreateInventoryItemParams) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, createInventoryItem, arg.Name, arg.Unit))
}

const getInventoryItem = `
SELECT ` + inventoryItemColumns + `
FROM inventory_items
WHERE id = $1
`

func (q *Queries) GetInventoryItem(ctx context.Context, id uuid.UUID) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, getInventoryItem, id))
}

// GetInventoryItemForUpdate locks the item row so concurrent additions and
// usages against the same item serialize instead of losing updates.
const getInventoryItemForUpdate = `
SELECT ` + inventoryItemColumns + `
FROM inventory_items
WHERE name = $1
FOR UPDATE
`

func (q *Queries) GetInventoryItemForUpdate(ctx context.Context, name string) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, getInventoryItemForUpdate, name))
}

const updateInventoryLevels = `
UPDATE inventory_items
SET current_quantity = $2,
    average_unit_price = $3,
    total_value = $4,
    last_updated = now()
WHERE id = $1
RETURNING ` + inventoryItemColumns

type UpdateInventoryLevelsParams struct {
	ID               uuid.UUID
	CurrentQuantity  pgtype.Numeric
	AverageUnitPrice pgtype.Numeric
	TotalValue       pgtype.Numeric
}

func (q *Queries) UpdateInventoryLevels(ctx context.Context, arg UpdateInventoryLevelsParams) (InventoryItem, error) {
	return scanInventoryItem(q.db.QueryRow(ctx, updateInventoryLevels,
		arg.ID,
		arg.CurrentQuantity,
		arg.AverageUnitPrice,
		arg.TotalValue,
	))
}

const inventoryTransactionColumns = `id, item_id, type, quantity, unit_price, total_value, notes, created_at`

func scanInventoryTransaction(row interface{ Scan(...any) error }) (InventoryTransaction, error) {
	var t InventoryTransaction
	err := row.Scan(
		&t.ID,
		&t.ItemID,
		&t.Type,
		&t.Quantity,
		&t.UnitPrice,
		&t.TotalValue,
		&t.Notes,
		&t.CreatedAt,
	)
	return t, err
}

const createInventoryTransaction = `
INSERT INTO inventory_transactions (item_id, type, quantity, unit_price, total_value, notes)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + inventoryTransactionColumns

type CreateInventoryTransactionParams struct {
	ItemID     uuid.UUID
	Type       string
	Quantity   pgtype.Numeric
	UnitPrice  pgtype.Numeric
	TotalValue pgtype.Numeric
	Notes      pgtype.Text
}

func (q *Queries) CreateInventoryTransaction(ctx context.Context, arg CreateInventoryTransactionParams) (InventoryTransaction, error) {
	return scanInventoryTransaction(q.db.QueryRow(ctx, createInventoryTransaction,
		arg.ItemID,
		arg.Type,
		arg.Quantity,
		arg.UnitPrice,
		arg.TotalValue,
		arg.Notes,
	))
}

const listInventoryTransactionsByItem = `
SELECT ` + inventoryTransactionColumns + `
FROM inventory_transactions
WHERE item_id = $1
ORDER BY created_at, id
`

func (q *Queries) ListInventoryTransactionsByItem(ctx context.Context, itemID uuid.UUID) ([]InventoryTransaction, error) {
	rows, err := q.db.Query(ctx, listInventoryTransactionsByItem, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []InventoryTransaction
	for rows.Next() {
		t, err := scanInventoryTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, t)
	}
	return txns, rows.Err()
}

const listInventoryItemsFilter = `
FROM inventory_items
WHERE ($1::text IS NULL OR name ILIKE '%%' || $1 || '%%')
  AND ($2::timestamptz IS NULL OR last_updated >= $2)
  AND ($3::timestamptz IS NULL OR last_updated < $3)
`

// inventorySortColumns whitelists ORDER BY targets; the sort key is spliced
// into the SQL text and must never come from user input unchecked.
var inventorySortColumns = map[string]string{
	"last_updated": "last_updated",
	"quantity":     "current_quantity",
}

type ListInventoryItemsParams struct {
	Name      pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
	SortBy    string
	SortDesc  bool
	Limit     int32
	Offset    int32
}

func (q *Queries) ListInventoryItems(ctx context.Context, arg ListInventoryItemsParams) ([]InventoryItem, error) {
	col, ok := inventorySortColumns[arg.SortBy]
	if !ok {
		col = "last_updated"
	}
	dir := "ASC"
	if arg.SortDesc {
		dir = "DESC"
	}
	sql := fmt.Sprintf(
		"SELECT "+inventoryItemColumns+" "+listInventoryItemsFilter+" ORDER BY %s %s, id LIMIT $4 OFFSET $5",
		col, dir,
	)

	rows, err := q.db.Query(ctx, sql, arg.Name, arg.StartDate, arg.EndDate, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type CountInventoryItemsParams struct {
	Name      pgtype.Text
	StartDate pgtype.Timestamptz
	EndDate   pgtype.Timestamptz
}

func (q *Queries) CountInventoryItems(ctx context.Context, arg CountInventoryItemsParams) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, "SELECT COUNT(*) "+listInventoryItemsFilter,
		arg.Name, arg.StartDate, arg.EndDate).Scan(&n)
	return n, err
}

const listAllInventoryItems = `
SELECT ` + inventoryItemColumns + `
FROM inventory_items
ORDER BY name
`

func (q *Queries) ListAllInventoryItems(ctx context.Context) ([]InventoryItem, error) {
	rows, err := q.db.Query(ctx, listAllInventoryItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []InventoryItem
	for rows.Next() {
		it, err := scanInventoryItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}
