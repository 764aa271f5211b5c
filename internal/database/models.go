package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// MenuItem is the menu catalog entry. Stock is NULL exactly when the item is
// freshly made (enforced by a table CHECK constraint).
type MenuItem struct {
	ID            uuid.UUID
	Name          string
	Price         pgtype.Numeric
	IsFreshlyMade bool
	Stock         pgtype.Int4
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type Order struct {
	ID           uuid.UUID
	OrderNumber  string
	TableNo      pgtype.Text
	CustomerName string
	OrderType    string
	Status       string
	TotalPrice   pgtype.Numeric
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type OrderItem struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int32
	UnitPrice  pgtype.Numeric
	Subtotal   pgtype.Numeric
	CreatedAt  time.Time
}

type Payment struct {
	ID            uuid.UUID
	OrderID       uuid.UUID
	Amount        pgtype.Numeric
	PaymentMethod string
	TransactionID pgtype.Text
	Status        string
	PaidAt        pgtype.Timestamptz
	CreatedAt     time.Time
}

type InventoryItem struct {
	ID               uuid.UUID
	Name             string
	Unit             string
	CurrentQuantity  pgtype.Numeric
	AverageUnitPrice pgtype.Numeric
	TotalValue       pgtype.Numeric
	LastUpdated      time.Time
	CreatedAt        time.Time
}

type InventoryTransaction struct {
	ID         uuid.UUID
	ItemID     uuid.UUID
	Type       string
	Quantity   pgtype.Numeric
	UnitPrice  pgtype.Numeric
	TotalValue pgtype.Numeric
	Notes      pgtype.Text
	CreatedAt  time.Time
}

// MenuItemIngredient maps one unit of a menu item to the quantity of a raw
// material it consumes.
type MenuItemIngredient struct {
	MenuItemID      uuid.UUID
	InventoryItemID uuid.UUID
	QtyPerUnit      pgtype.Numeric
}

// DailyAnalytics is the immutable per-day sales snapshot. Items and Inventory
// hold the per-menu-item and per-raw-material breakdowns as jsonb.
type DailyAnalytics struct {
	ID             uuid.UUID
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
	CreatedAt      time.Time
}
