package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const paymentColumns = `id, order_id, amount, payment_method, transaction_id, status, paid_at, created_at`

func scanPayment(row interface{ Scan(...any) error }) (Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID,
		&p.OrderID,
		&p.Amount,
		&p.PaymentMethod,
		&p.TransactionID,
		&p.Status,
		&p.PaidAt,
		&p.CreatedAt,
	)
	return p, err
}

// CreatePayment relies on the unique constraint on order_id to enforce the
// one-payment-per-order rule; a duplicate surfaces as pgconn code 23505.
const createPayment = `
INSERT INTO payments (order_id, amount, payment_method, transaction_id, status, paid_at)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + paymentColumns

type CreatePaymentParams struct {
	OrderID       uuid.UUID
	Amount        pgtype.Numeric
	PaymentMethod string
	TransactionID pgtype.Text
	Status        string
	PaidAt        pgtype.Timestamptz
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, createPayment,
		arg.OrderID,
		arg.Amount,
		arg.PaymentMethod,
		arg.TransactionID,
		arg.Status,
		arg.PaidAt,
	))
}

const getPayment = `
SELECT ` + paymentColumns + `
FROM payments
WHERE id = $1
`

func (q *Queries) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPayment, id))
}

const getPaymentByOrder = `
SELECT ` + paymentColumns + `
FROM payments
WHERE order_id = $1
`

func (q *Queries) GetPaymentByOrder(ctx context.Context, orderID uuid.UUID) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, getPaymentByOrder, orderID))
}

const setPaymentStatus = `
UPDATE payments
SET status = $2, paid_at = $3
WHERE id = $1
RETURNING ` + paymentColumns

type SetPaymentStatusParams struct {
	ID     uuid.UUID
	Status string
	PaidAt pgtype.Timestamptz
}

func (q *Queries) SetPaymentStatus(ctx context.Context, arg SetPaymentStatusParams) (Payment, error) {
	return scanPayment(q.db.QueryRow(ctx, setPaymentStatus, arg.ID, arg.Status, arg.PaidAt))
}
