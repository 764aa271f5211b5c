package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by the inventory service.
var (
	ErrInventoryItemExists   = errors.New("inventory item already exists")
	ErrInventoryItemNotFound = errors.New("inventory item not found")
	ErrUnitMismatch          = errors.New("unit does not match item's stored unit")
	ErrInvalidUnit           = errors.New("invalid unit")
	ErrInvalidUnitPrice      = errors.New("unit_price must be >= 0")
	ErrInsufficientStock     = errors.New("insufficient inventory stock")
)

// InventoryStore defines the DB methods needed by the inventory ledger.
// Satisfied by *database.Queries (and its WithTx variant).
type InventoryStore interface {
	CreateInventoryItem(ctx context.Context, arg database.CreateInventoryItemParams) (database.InventoryItem, error)
	GetInventoryItem(ctx context.Context, id uuid.UUID) (database.InventoryItem, error)
	GetInventoryItemForUpdate(ctx context.Context, name string) (database.InventoryItem, error)
	UpdateInventoryLevels(ctx context.Context, arg database.UpdateInventoryLevelsParams) (database.InventoryItem, error)
	CreateInventoryTransaction(ctx context.Context, arg database.CreateInventoryTransactionParams) (database.InventoryTransaction, error)
	ListInventoryTransactionsByItem(ctx context.Context, itemID uuid.UUID) ([]database.InventoryTransaction, error)
	ListInventoryItems(ctx context.Context, arg database.ListInventoryItemsParams) ([]database.InventoryItem, error)
	CountInventoryItems(ctx context.Context, arg database.CountInventoryItemsParams) (int64, error)
}

// NewInventoryStore creates an InventoryStore from a DBTX (pool or tx).
type NewInventoryStore func(db database.DBTX) InventoryStore

// InventoryService maintains the weighted-average-cost inventory ledger.
type InventoryService struct {
	store    InventoryStore
	pool     TxBeginner
	newStore NewInventoryStore
}

func NewInventoryService(store InventoryStore, pool TxBeginner, newStore NewInventoryStore) *InventoryService {
	return &InventoryService{store: store, pool: pool, newStore: newStore}
}

// StockMutationResult is an updated ledger item with the transaction that
// mutated it.
type StockMutationResult struct {
	Item        database.InventoryItem
	Transaction database.InventoryTransaction
}

// InventoryDetails is an item with its full transaction history in
// chronological order.
type InventoryDetails struct {
	Item         database.InventoryItem
	Transactions []database.InventoryTransaction
}

// ListInventoryRequest is the validated input for listing ledger items.
type ListInventoryRequest struct {
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
	SortBy    string // "last_updated" or "quantity"
	SortDesc  bool
	Page      int
	Limit     int
}

// ListInventoryResult is one page of ledger items, without transaction
// history, plus the unpaged total.
type ListInventoryResult struct {
	Items []database.InventoryItem
	Total int64
	Page  int
	Limit int
}

func isValidUnit(u string) bool {
	switch u {
	case enum.UnitKg, enum.UnitGram, enum.UnitLitre,
		enum.UnitMillilitre, enum.UnitPiece, enum.UnitPack:
		return true
	}
	return false
}

// isUniqueViolation checks for a pg unique constraint violation (code 23505)
// on the given constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == constraint
	}
	return false
}

// CreateItem registers a new raw material with an empty ledger.
func (s *InventoryService) CreateItem(ctx context.Context, name, unit string) (database.InventoryItem, error) {
	if !isValidUnit(unit) {
		return database.InventoryItem{}, fmt.Errorf("%q: %w", unit, ErrInvalidUnit)
	}

	item, err := s.store.CreateInventoryItem(ctx, database.CreateInventoryItemParams{
		Name: name,
		Unit: unit,
	})
	if err != nil {
		if isUniqueViolation(err, "inventory_items_name_key") {
			return database.InventoryItem{}, fmt.Errorf("%q: %w", name, ErrInventoryItemExists)
		}
		return database.InventoryItem{}, fmt.Errorf("create inventory item: %w", err)
	}
	return item, nil
}

// AddStock records an addition lot and recomputes the weighted average:
// the unit cost shifts toward the new lot's price in proportion to its share
// of the resulting quantity.
func (s *InventoryService) AddStock(ctx context.Context, itemName string, quantity decimal.Decimal, unit string, unitPrice decimal.Decimal, notes string) (*StockMutationResult, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}
	if unitPrice.IsNegative() {
		return nil, ErrInvalidUnitPrice
	}
	if !isValidUnit(unit) {
		return nil, fmt.Errorf("%q: %w", unit, ErrInvalidUnit)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	item, err := store.GetInventoryItemForUpdate(ctx, itemName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%q: %w", itemName, ErrInventoryItemNotFound)
		}
		return nil, fmt.Errorf("get inventory item: %w", err)
	}

	if item.Unit != unit {
		return nil, fmt.Errorf("%q is tracked in %s: %w", itemName, item.Unit, ErrUnitMismatch)
	}

	lotValue := quantity.Mul(unitPrice)
	newQuantity := numericToDecimal(item.CurrentQuantity).Add(quantity)
	newTotalValue := numericToDecimal(item.TotalValue).Add(lotValue)
	// quantity > 0 so newQuantity > 0; division is safe
	newAverage := newTotalValue.Div(newQuantity)

	updated, err := store.UpdateInventoryLevels(ctx, database.UpdateInventoryLevelsParams{
		ID:               item.ID,
		CurrentQuantity:  decimalToNumeric(newQuantity),
		AverageUnitPrice: decimalToNumeric(newAverage),
		TotalValue:       decimalToNumeric(newTotalValue),
	})
	if err != nil {
		return nil, fmt.Errorf("update inventory levels: %w", err)
	}

	txn, err := store.CreateInventoryTransaction(ctx, database.CreateInventoryTransactionParams{
		ItemID:     item.ID,
		Type:       enum.TransactionTypeAddition,
		Quantity:   decimalToNumeric(quantity),
		UnitPrice:  decimalToNumeric(unitPrice),
		TotalValue: decimalToNumeric(lotValue),
		Notes:      textOrNull(notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create inventory transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &StockMutationResult{Item: updated, Transaction: txn}, nil
}

// UseStock records a usage valued at the current average unit price. The
// average itself is unchanged by usage; FIFO lot consumption is not modeled.
func (s *InventoryService) UseStock(ctx context.Context, itemName string, quantity decimal.Decimal, notes string) (*StockMutationResult, error) {
	if quantity.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidQuantity
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	item, err := store.GetInventoryItemForUpdate(ctx, itemName)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%q: %w", itemName, ErrInventoryItemNotFound)
		}
		return nil, fmt.Errorf("get inventory item: %w", err)
	}

	currentQuantity := numericToDecimal(item.CurrentQuantity)
	if quantity.GreaterThan(currentQuantity) {
		return nil, fmt.Errorf("%q has %s on hand: %w", itemName, currentQuantity, ErrInsufficientStock)
	}

	average := numericToDecimal(item.AverageUnitPrice)
	usedValue := quantity.Mul(average)
	newQuantity := currentQuantity.Sub(quantity)
	newTotalValue := numericToDecimal(item.TotalValue).Sub(usedValue)
	if newTotalValue.IsNegative() {
		// rounding residue from the stored average's fixed scale
		newTotalValue = decimal.Zero
	}

	updated, err := store.UpdateInventoryLevels(ctx, database.UpdateInventoryLevelsParams{
		ID:               item.ID,
		CurrentQuantity:  decimalToNumeric(newQuantity),
		AverageUnitPrice: item.AverageUnitPrice,
		TotalValue:       decimalToNumeric(newTotalValue),
	})
	if err != nil {
		return nil, fmt.Errorf("update inventory levels: %w", err)
	}

	txn, err := store.CreateInventoryTransaction(ctx, database.CreateInventoryTransactionParams{
		ItemID:     item.ID,
		Type:       enum.TransactionTypeUsage,
		Quantity:   decimalToNumeric(quantity),
		UnitPrice:  item.AverageUnitPrice,
		TotalValue: decimalToNumeric(usedValue),
		Notes:      textOrNull(notes),
	})
	if err != nil {
		return nil, fmt.Errorf("create inventory transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &StockMutationResult{Item: updated, Transaction: txn}, nil
}

// GetDetails returns one item with its full transaction history.
func (s *InventoryService) GetDetails(ctx context.Context, id uuid.UUID) (*InventoryDetails, error) {
	item, err := s.store.GetInventoryItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInventoryItemNotFound
		}
		return nil, fmt.Errorf("get inventory item: %w", err)
	}

	txns, err := s.store.ListInventoryTransactionsByItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("list inventory transactions: %w", err)
	}

	return &InventoryDetails{Item: item, Transactions: txns}, nil
}

// ListItems returns a page of ledger items matching the filter. Transaction
// histories are left out of list payloads.
func (s *InventoryService) ListItems(ctx context.Context, req ListInventoryRequest) (*ListInventoryResult, error) {
	if req.Page < 1 {
		req.Page = 1
	}
	if req.Limit < 1 {
		req.Limit = 20
	}
	if req.Limit > 100 {
		req.Limit = 100
	}

	name := pgtype.Text{}
	if req.Name != "" {
		name = pgtype.Text{String: req.Name, Valid: true}
	}
	start := pgtype.Timestamptz{}
	if req.StartDate != nil {
		start = pgtype.Timestamptz{Time: *req.StartDate, Valid: true}
	}
	end := pgtype.Timestamptz{}
	if req.EndDate != nil {
		end = pgtype.Timestamptz{Time: *req.EndDate, Valid: true}
	}

	items, err := s.store.ListInventoryItems(ctx, database.ListInventoryItemsParams{
		Name:      name,
		StartDate: start,
		EndDate:   end,
		SortBy:    req.SortBy,
		SortDesc:  req.SortDesc,
		Limit:     int32(req.Limit),
		Offset:    int32((req.Page - 1) * req.Limit),
	})
	if err != nil {
		return nil, fmt.Errorf("list inventory items: %w", err)
	}

	total, err := s.store.CountInventoryItems(ctx, database.CountInventoryItemsParams{
		Name:      name,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("count inventory items: %w", err)
	}

	return &ListInventoryResult{Items: items, Total: total, Page: req.Page, Limit: req.Limit}, nil
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: s, Valid: true}
}
