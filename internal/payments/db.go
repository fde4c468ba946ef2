package payments

import (
	"context"
	"errors"
	"time"

	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrProviderMismatch = errors.New("requested provider is not configured")
)

type PaymentDB struct {
	dbPool *pgxpool.Pool
}

func NewPaymentDB(dbPool *pgxpool.Pool) *PaymentDB {
	return &PaymentDB{dbPool: dbPool}
}

// GetReusablePending returns a pending payment for the order whose PIX charge
// has not expired yet, if one exists.
func (d *PaymentDB) GetReusablePending(ctx context.Context, orderID int64, now time.Time) (*models.Payment, error) {
	return d.scanPayment(d.dbPool.QueryRow(ctx, `
        SELECT id, restaurant_id, order_id, provider, provider_payment_id, amount, status,
               COALESCE(pix_qr_code, ''), COALESCE(pix_qr_code_base64, ''), pix_expiration_date,
               created_at, paid_at
        FROM payments
        WHERE order_id = $1 AND status = 'pending'
          AND (pix_expiration_date IS NULL OR pix_expiration_date > $2)
        ORDER BY created_at DESC
        LIMIT 1
    `, orderID, now))
}

func (d *PaymentDB) Insert(ctx context.Context, p *models.Payment) error {
	return d.dbPool.QueryRow(ctx, `
        INSERT INTO payments (restaurant_id, order_id, provider, provider_payment_id, amount,
                              status, pix_qr_code, pix_qr_code_base64, pix_expiration_date, raw_payload)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at
    `, p.RestaurantID, p.OrderID, p.Provider, p.ProviderPaymentID, p.Amount,
		p.Status, p.PixQRCode, p.PixQRCodeBase64, p.PixExpirationDate, p.RawPayload).
		Scan(&p.ID, &p.CreatedAt)
}

func (d *PaymentDB) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return d.scanPayment(d.dbPool.QueryRow(ctx, `
        SELECT id, restaurant_id, order_id, provider, provider_payment_id, amount, status,
               COALESCE(pix_qr_code, ''), COALESCE(pix_qr_code_base64, ''), pix_expiration_date,
               created_at, paid_at
        FROM payments
        WHERE id = $1
    `, id))
}

func (d *PaymentDB) scanPayment(row pgx.Row) (*models.Payment, error) {
	var p models.Payment
	err := row.Scan(&p.ID, &p.RestaurantID, &p.OrderID, &p.Provider, &p.ProviderPaymentID,
		&p.Amount, &p.Status, &p.PixQRCode, &p.PixQRCodeBase64, &p.PixExpirationDate,
		&p.CreatedAt, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}
