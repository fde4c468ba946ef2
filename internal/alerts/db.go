package alerts

import (
	"context"
	"time"

	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type AlertDB struct {
	dbPool *pgxpool.Pool
}

func NewAlertDB(dbPool *pgxpool.Pool) *AlertDB {
	return &AlertDB{dbPool: dbPool}
}

func (d *AlertDB) HasRecentUnresolved(ctx context.Context, restaurantID int64, alertType string, since time.Time) (bool, error) {
	var exists bool
	err := d.dbPool.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM payment_alerts
            WHERE restaurant_id = $1 AND type = $2 AND resolved = FALSE AND created_at >= $3
        )
    `, restaurantID, alertType, since).Scan(&exists)
	return exists, err
}

func (d *AlertDB) InsertAlert(ctx context.Context, alert *models.PaymentAlert) error {
	return d.dbPool.QueryRow(ctx, `
        INSERT INTO payment_alerts (restaurant_id, type, severity, message, metadata, correlation_id)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, created_at
    `, alert.RestaurantID, alert.Type, alert.Severity, alert.Message, alert.Metadata, alert.CorrelationID).
		Scan(&alert.ID, &alert.CreatedAt)
}

func (d *AlertDB) EnqueueNotification(ctx context.Context, channel string, payload []byte, maxAttempts int) error {
	_, err := d.dbPool.Exec(ctx, `
        INSERT INTO notification_queue (channel, payload, max_attempts)
        VALUES ($1, $2, $3)
    `, channel, payload, maxAttempts)
	return err
}

// Resolve flips the resolved flag; the only mutation alerts ever receive.
func (d *AlertDB) Resolve(ctx context.Context, alertID int64) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE payment_alerts SET resolved = TRUE WHERE id = $1 AND resolved = FALSE
    `, alertID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
