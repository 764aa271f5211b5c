package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rasapos/api/internal/database"
	"github.com/rasapos/api/internal/enum"
)

// Errors returned by the payment service.
var (
	ErrPaymentNotFound      = errors.New("payment not found")
	ErrPaymentExists        = errors.New("order already has a payment")
	ErrInvalidPaymentMethod = errors.New("invalid payment_method")
	ErrInvalidPaymentStatus = errors.New("invalid payment_status")
	ErrPaymentNotRefundable = errors.New("only completed payments can be refunded")
)

// PaymentStore defines the DB methods needed by the payment service.
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	GetPayment(ctx context.Context, id uuid.UUID) (database.Payment, error)
	GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error)
	SetPaymentStatus(ctx context.Context, arg database.SetPaymentStatusParams) (database.Payment, error)
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

// PaymentService records the one payment an order carries.
type PaymentService struct {
	store    PaymentStore
	pool     TxBeginner
	newStore NewPaymentStore
}

func NewPaymentService(store PaymentStore, pool TxBeginner, newStore NewPaymentStore) *PaymentService {
	return &PaymentService{store: store, pool: pool, newStore: newStore}
}

// Create records a payment against an order. The amount is copied from the
// order's total at this moment and never re-derived. Cash payments settle
// immediately; card and online start pending until their gateway confirms.
func (s *PaymentService) Create(ctx context.Context, orderID uuid.UUID, method, transactionID string) (database.Payment, error) {
	if !isValidPaymentMethod(method) {
		return database.Payment{}, fmt.Errorf("%q: %w", method, ErrInvalidPaymentMethod)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return database.Payment{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	// Lock the order row so two concurrent creations serialize; the loser
	// then hits the unique constraint on order_id.
	order, err := store.GetOrderForUpdate(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, ErrOrderNotFound
		}
		return database.Payment{}, fmt.Errorf("get order: %w", err)
	}

	status := enum.PaymentStatusPending
	paidAt := pgtype.Timestamptz{}
	if method == enum.PaymentMethodCash {
		status = enum.PaymentStatusCompleted
		paidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:       orderID,
		Amount:        order.TotalPrice,
		PaymentMethod: method,
		TransactionID: textOrNull(transactionID),
		Status:        status,
		PaidAt:        paidAt,
	})
	if err != nil {
		if isUniqueViolation(err, "payments_order_id_key") {
			return database.Payment{}, ErrPaymentExists
		}
		return database.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return database.Payment{}, fmt.Errorf("commit tx: %w", err)
	}

	return payment, nil
}

// GetByOrder returns the payment attached to an order.
func (s *PaymentService) GetByOrder(ctx context.Context, orderID uuid.UUID) (database.Payment, error) {
	payment, err := s.store.GetPaymentByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, ErrPaymentNotFound
		}
		return database.Payment{}, fmt.Errorf("get payment: %w", err)
	}
	return payment, nil
}

// UpdateStatus overwrites the payment status. Gateway callbacks arrive out of
// order, so no transition check is applied here; refunds go through Refund.
func (s *PaymentService) UpdateStatus(ctx context.Context, paymentID uuid.UUID, status string) (database.Payment, error) {
	if !isValidPaymentStatus(status) {
		return database.Payment{}, fmt.Errorf("%q: %w", status, ErrInvalidPaymentStatus)
	}

	paidAt := pgtype.Timestamptz{}
	if status == enum.PaymentStatusCompleted {
		paidAt = pgtype.Timestamptz{Time: time.Now(), Valid: true}
	}

	payment, err := s.store.SetPaymentStatus(ctx, database.SetPaymentStatusParams{
		ID:     paymentID,
		Status: status,
		PaidAt: paidAt,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, ErrPaymentNotFound
		}
		return database.Payment{}, fmt.Errorf("set payment status: %w", err)
	}
	return payment, nil
}

// Refund marks a completed payment refunded.
func (s *PaymentService) Refund(ctx context.Context, paymentID uuid.UUID) (database.Payment, error) {
	payment, err := s.store.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.Payment{}, ErrPaymentNotFound
		}
		return database.Payment{}, fmt.Errorf("get payment: %w", err)
	}

	if payment.Status != enum.PaymentStatusCompleted {
		return database.Payment{}, fmt.Errorf("payment is %s: %w", payment.Status, ErrPaymentNotRefundable)
	}

	refunded, err := s.store.SetPaymentStatus(ctx, database.SetPaymentStatusParams{
		ID:     paymentID,
		Status: enum.PaymentStatusRefunded,
		PaidAt: payment.PaidAt,
	})
	if err != nil {
		return database.Payment{}, fmt.Errorf("set payment status: %w", err)
	}
	return refunded, nil
}

// --- Helpers ---

func isValidPaymentMethod(m string) bool {
	switch m {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodOnline:
		return true
	}
	return false
}

func isValidPaymentStatus(s string) bool {
	switch s {
	case enum.PaymentStatusPending, enum.PaymentStatusCompleted,
		enum.PaymentStatusFailed, enum.PaymentStatusRefunded:
		return true
	}
	return false
}
