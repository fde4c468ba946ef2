package webhook

import (
	"context"
	"errors"
	"time"

	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPaymentNotFound = errors.New("payment not found")

type WebhookDB struct {
	dbPool *pgxpool.Pool
}

func NewWebhookDB(dbPool *pgxpool.Pool) *WebhookDB {
	return &WebhookDB{dbPool: dbPool}
}

func (d *WebhookDB) GetPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := d.dbPool.QueryRow(ctx, `
        SELECT id, restaurant_id, order_id, provider, provider_payment_id, amount, status,
               created_at, paid_at
        FROM payments
        WHERE provider = $1 AND provider_payment_id = $2
    `, provider, providerPaymentID).
		Scan(&p.ID, &p.RestaurantID, &p.OrderID, &p.Provider, &p.ProviderPaymentID,
			&p.Amount, &p.Status, &p.CreatedAt, &p.PaidAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

// TransitionPayment is conditional on the expected prior status, so two
// concurrent deliveries of the same event cannot double-apply.
func (d *WebhookDB) TransitionPayment(ctx context.Context, paymentID int64, from, to string, paidAt *time.Time) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE payments
        SET status = $1, paid_at = COALESCE($2, paid_at)
        WHERE id = $3 AND status = $4
    `, to, paidAt, paymentID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (d *WebhookDB) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE orders
        SET status = $1
        WHERE id = $2 AND status = $3
    `, to, orderID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
