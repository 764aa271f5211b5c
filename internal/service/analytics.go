package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/enum"
	"github.com/shopspring/decimal"
)

// Errors returned by the analytics service.
var (
	ErrInvalidGranularity = errors.New("granularity must be daily or monthly")
	ErrInvalidDateRange   = errors.New("start_date must not be after end_date")
)

// AnalyticsStore defines the DB methods needed by the aggregator.
type AnalyticsStore interface {
	GetDailyAnalyticsByDate(ctx context.Context, date time.Time) (database.DailyAnalytics, error)
	CreateDailyAnalytics(ctx context.Context, arg database.CreateDailyAnalyticsParams) (database.DailyAnalytics, error)
	ListDailyAnalyticsInRange(ctx context.Context, arg database.ListDailyAnalyticsInRangeParams) ([]database.DailyAnalytics, error)
	ListCompletedOrdersInWindow(ctx context.Context, arg database.WindowParams) ([]database.Order, error)
	GetItemSalesInWindow(ctx context.Context, arg database.WindowParams) ([]database.GetItemSalesInWindowRow, error)
	CountPaymentsByMethodInWindow(ctx context.Context, arg database.WindowParams) ([]database.CountPaymentsByMethodInWindowRow, error)
	ListMenuItemIngredients(ctx context.Context) ([]database.MenuItemIngredient, error)
	ListAllInventoryItems(ctx context.Context) ([]database.InventoryItem, error)
}

// AnalyticsService computes immutable per-day sales snapshots and folds them
// into range and monthly summaries.
type AnalyticsService struct {
	store AnalyticsStore
	loc   *time.Location
}

func NewAnalyticsService(store AnalyticsStore, loc *time.Location) *AnalyticsService {
	return &AnalyticsService{store: store, loc: loc}
}

// ItemSales is the per-menu-item slice of a summary.
type ItemSales struct {
	MenuItemID    uuid.UUID       `json:"menu_item_id"`
	ItemName      string          `json:"item_name"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalRevenue  decimal.Decimal `json:"total_revenue"`
}

// InventoryUsage is the per-raw-material slice of a summary. CurrentStock is
// a point-in-time snapshot, not an additive figure.
type InventoryUsage struct {
	InventoryItemID uuid.UUID       `json:"inventory_item_id"`
	ItemName        string          `json:"item_name"`
	CurrentStock    decimal.Decimal `json:"current_stock"`
	StockUsed       decimal.Decimal `json:"stock_used"`
}

// OrdersBreakdown counts orders by type and by settled payment method.
type OrdersBreakdown struct {
	Total           int32            `json:"total"`
	ByType          map[string]int32 `json:"by_type"`
	ByPaymentMethod map[string]int32 `json:"by_payment_method"`
}

type Financials struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Profit       decimal.Decimal `json:"profit"`
}

// Summary is one aggregated period: a single day, or a calendar month when
// folded by GetRange.
type Summary struct {
	Date       time.Time        `json:"date"`
	Orders     OrdersBreakdown  `json:"orders"`
	Items      []ItemSales      `json:"items"`
	Inventory  []InventoryUsage `json:"inventory"`
	Financials Financials       `json:"financials"`
}

// normalizeDay truncates to local midnight.
func (s *AnalyticsService) normalizeDay(t time.Time) time.Time {
	t = t.In(s.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.loc)
}

// ComputeDaily builds the snapshot for the given date's local day, exactly
// once: if the day was already computed the stored row is returned unchanged,
// and a concurrent compute that loses the insert race re-reads the winner's
// row. Only completed orders count.
func (s *AnalyticsService) ComputeDaily(ctx context.Context, date time.Time) (*Summary, error) {
	day := s.normalizeDay(date)

	existing, err := s.store.GetDailyAnalyticsByDate(ctx, day)
	if err == nil {
		return s.toSummary(existing)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get daily analytics: %w", err)
	}

	window := database.WindowParams{StartDate: day, EndDate: day.AddDate(0, 0, 1)}

	orders, err := s.store.ListCompletedOrdersInWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("list completed orders: %w", err)
	}

	var dineIn, takeaway, online int32
	revenue := decimal.Zero
	for _, o := range orders {
		switch o.OrderType {
		case enum.OrderTypeDineIn:
			dineIn++
		case enum.OrderTypeTakeaway:
			takeaway++
		case enum.OrderTypeOnline:
			online++
		}
		revenue = revenue.Add(numericToDecimal(o.TotalPrice))
	}

	var cash, card, payOnline int32
	payRows, err := s.store.CountPaymentsByMethodInWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("count payments by method: %w", err)
	}
	for _, r := range payRows {
		switch r.PaymentMethod {
		case enum.PaymentMethodCash:
			cash = int32(r.Count)
		case enum.PaymentMethodCard:
			card = int32(r.Count)
		case enum.PaymentMethodOnline:
			payOnline = int32(r.Count)
		}
	}

	itemRows, err := s.store.GetItemSalesInWindow(ctx, window)
	if err != nil {
		return nil, fmt.Errorf("get item sales: %w", err)
	}
	items := make([]ItemSales, len(itemRows))
	for i, r := range itemRows {
		items[i] = ItemSales{
			MenuItemID:    r.MenuItemID,
			ItemName:      r.ItemName,
			TotalQuantity: r.TotalQuantity,
			TotalRevenue:  numericToDecimal(r.TotalRevenue),
		}
	}

	inventory, cost, err := s.computeInventoryUsage(ctx, itemRows)
	if err != nil {
		return nil, err
	}

	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("marshal items: %w", err)
	}
	inventoryJSON, err := json.Marshal(inventory)
	if err != nil {
		return nil, fmt.Errorf("marshal inventory: %w", err)
	}

	created, err := s.store.CreateDailyAnalytics(ctx, database.CreateDailyAnalyticsParams{
		Date:           day,
		OrdersTotal:    int32(len(orders)),
		OrdersDineIn:   dineIn,
		OrdersTakeaway: takeaway,
		OrdersOnline:   online,
		PayCash:        cash,
		PayCard:        card,
		PayOnline:      payOnline,
		Items:          itemsJSON,
		Inventory:      inventoryJSON,
		TotalRevenue:   decimalToNumeric(revenue),
		TotalCost:      decimalToNumeric(cost),
		Profit:         decimalToNumeric(revenue.Sub(cost)),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Lost the insert race; the other compute's row is the snapshot.
			winner, err := s.store.GetDailyAnalyticsByDate(ctx, day)
			if err != nil {
				return nil, fmt.Errorf("get daily analytics after conflict: %w", err)
			}
			return s.toSummary(winner)
		}
		return nil, fmt.Errorf("create daily analytics: %w", err)
	}

	return s.toSummary(created)
}

// computeInventoryUsage maps the day's menu-item sales through the recipe
// table to raw-material usage, valued at each item's current average unit
// price. Every ledger item appears in the snapshot, used or not.
func (s *AnalyticsService) computeInventoryUsage(ctx context.Context, itemRows []database.GetItemSalesInWindowRow) ([]InventoryUsage, decimal.Decimal, error) {
	recipes, err := s.store.ListMenuItemIngredients(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("list menu item ingredients: %w", err)
	}
	perMenuItem := make(map[uuid.UUID][]database.MenuItemIngredient)
	for _, r := range recipes {
		perMenuItem[r.MenuItemID] = append(perMenuItem[r.MenuItemID], r)
	}

	used := make(map[uuid.UUID]decimal.Decimal)
	for _, row := range itemRows {
		for _, ing := range perMenuItem[row.MenuItemID] {
			qty := numericToDecimal(ing.QtyPerUnit).Mul(decimal.NewFromInt(row.TotalQuantity))
			used[ing.InventoryItemID] = used[ing.InventoryItemID].Add(qty)
		}
	}

	ledger, err := s.store.ListAllInventoryItems(ctx)
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("list inventory items: %w", err)
	}

	cost := decimal.Zero
	inventory := make([]InventoryUsage, len(ledger))
	for i, item := range ledger {
		stockUsed := used[item.ID]
		cost = cost.Add(stockUsed.Mul(numericToDecimal(item.AverageUnitPrice)))
		inventory[i] = InventoryUsage{
			InventoryItemID: item.ID,
			ItemName:        item.Name,
			CurrentStock:    numericToDecimal(item.CurrentQuantity),
			StockUsed:       stockUsed,
		}
	}
	return inventory, cost, nil
}

// GetRange reads the stored snapshots for [start, end]. Daily granularity is
// a direct read in date order; monthly folds the same rows by calendar month.
func (s *AnalyticsService) GetRange(ctx context.Context, start, end time.Time, granularity string) ([]Summary, error) {
	if granularity != enum.GranularityDaily && granularity != enum.GranularityMonthly {
		return nil, fmt.Errorf("%q: %w", granularity, ErrInvalidGranularity)
	}

	startDay := s.normalizeDay(start)
	endDay := s.normalizeDay(end)
	if startDay.After(endDay) {
		return nil, ErrInvalidDateRange
	}

	rows, err := s.store.ListDailyAnalyticsInRange(ctx, database.ListDailyAnalyticsInRangeParams{
		StartDate: startDay,
		EndDate:   endDay,
	})
	if err != nil {
		return nil, fmt.Errorf("list daily analytics: %w", err)
	}

	days := make([]Summary, len(rows))
	for i, row := range rows {
		sum, err := s.toSummary(row)
		if err != nil {
			return nil, err
		}
		days[i] = *sum
	}

	if granularity == enum.GranularityDaily {
		return days, nil
	}
	return foldMonthly(days), nil
}

// foldMonthly rolls date-ordered daily summaries into per-month summaries.
// Counts and financials add; items re-merge by item name and inventory by
// item id, summing usage. The month's current_stock is the last daily
// snapshot's value, since on-hand stock is not additive across days.
func foldMonthly(days []Summary) []Summary {
	type monthAcc struct {
		summary   *Summary
		itemIdx   map[string]int
		invIdx    map[uuid.UUID]int
	}

	var order []string
	months := make(map[string]*monthAcc)

	for _, day := range days {
		key := day.Date.Format("2006-01")
		acc, ok := months[key]
		if !ok {
			acc = &monthAcc{
				summary: &Summary{
					Date: time.Date(day.Date.Year(), day.Date.Month(), 1, 0, 0, 0, 0, day.Date.Location()),
					Orders: OrdersBreakdown{
						ByType:          make(map[string]int32),
						ByPaymentMethod: make(map[string]int32),
					},
					Financials: Financials{
						TotalRevenue: decimal.Zero,
						TotalCost:    decimal.Zero,
						Profit:       decimal.Zero,
					},
				},
				itemIdx: make(map[string]int),
				invIdx:  make(map[uuid.UUID]int),
			}
			months[key] = acc
			order = append(order, key)
		}

		m := acc.summary
		m.Orders.Total += day.Orders.Total
		for t, n := range day.Orders.ByType {
			m.Orders.ByType[t] += n
		}
		for pm, n := range day.Orders.ByPaymentMethod {
			m.Orders.ByPaymentMethod[pm] += n
		}
		m.Financials.TotalRevenue = m.Financials.TotalRevenue.Add(day.Financials.TotalRevenue)
		m.Financials.TotalCost = m.Financials.TotalCost.Add(day.Financials.TotalCost)
		m.Financials.Profit = m.Financials.Profit.Add(day.Financials.Profit)

		for _, it := range day.Items {
			if idx, ok := acc.itemIdx[it.ItemName]; ok {
				m.Items[idx].TotalQuantity += it.TotalQuantity
				m.Items[idx].TotalRevenue = m.Items[idx].TotalRevenue.Add(it.TotalRevenue)
			} else {
				acc.itemIdx[it.ItemName] = len(m.Items)
				m.Items = append(m.Items, it)
			}
		}

		for _, iv := range day.Inventory {
			if idx, ok := acc.invIdx[iv.InventoryItemID]; ok {
				m.Inventory[idx].StockUsed = m.Inventory[idx].StockUsed.Add(iv.StockUsed)
				m.Inventory[idx].CurrentStock = iv.CurrentStock
			} else {
				acc.invIdx[iv.InventoryItemID] = len(m.Inventory)
				m.Inventory = append(m.Inventory, iv)
			}
		}
	}

	result := make([]Summary, len(order))
	for i, key := range order {
		result[i] = *months[key].summary
	}
	return result
}

// toSummary decodes a stored snapshot row.
func (s *AnalyticsService) toSummary(row database.DailyAnalytics) (*Summary, error) {
	var items []ItemSales
	if len(row.Items) > 0 {
		if err := json.Unmarshal(row.Items, &items); err != nil {
			return nil, fmt.Errorf("unmarshal items: %w", err)
		}
	}
	var inventory []InventoryUsage
	if len(row.Inventory) > 0 {
		if err := json.Unmarshal(row.Inventory, &inventory); err != nil {
			return nil, fmt.Errorf("unmarshal inventory: %w", err)
		}
	}

	date := row.Date
	if s.loc != nil {
		date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, s.loc)
	}

	return &Summary{
		Date: date,
		Orders: OrdersBreakdown{
			Total: row.OrdersTotal,
			ByType: map[string]int32{
				enum.OrderTypeDineIn:   row.OrdersDineIn,
				enum.OrderTypeTakeaway: row.OrdersTakeaway,
				enum.OrderTypeOnline:   row.OrdersOnline,
			},
			ByPaymentMethod: map[string]int32{
				enum.PaymentMethodCash:   row.PayCash,
				enum.PaymentMethodCard:   row.PayCard,
				enum.PaymentMethodOnline: row.PayOnline,
			},
		},
		Items:     items,
		Inventory: inventory,
		Financials: Financials{
			TotalRevenue: numericToDecimal(row.TotalRevenue),
			TotalCost:    numericToDecimal(row.TotalCost),
			Profit:       numericToDecimal(row.Profit),
		},
	}, nil
}
