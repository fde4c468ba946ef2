package reconciler

import (
	"context"
	"time"

	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Orphan is an approved payment whose linked order is still pending.
type Orphan struct {
	PaymentID         int64
	ProviderPaymentID string
	OrderID           int64
	RestaurantID      int64
	Amount            float64
}

// ExpiredPayment is a pending payment moved to expired by the sweep.
type ExpiredPayment struct {
	PaymentID         int64
	ProviderPaymentID string
	RestaurantID      int64
}

// TenantFailureStats aggregates recent payment outcomes for one restaurant.
type TenantFailureStats struct {
	RestaurantID int64
	Total        int
	Failed       int
}

type ReconcilerDB struct {
	dbPool *pgxpool.Pool
}

func NewReconcilerDB(dbPool *pgxpool.Pool) *ReconcilerDB {
	return &ReconcilerDB{dbPool: dbPool}
}

func (d *ReconcilerDB) FindOrphanApproved(ctx context.Context) ([]Orphan, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT p.id, p.provider_payment_id, o.id, p.restaurant_id, p.amount
        FROM payments p
        JOIN orders o ON o.id = p.order_id
        WHERE p.status = 'approved' AND o.status = 'pending'
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orphans []Orphan
	for rows.Next() {
		var o Orphan
		if err := rows.Scan(&o.PaymentID, &o.ProviderPaymentID, &o.OrderID, &o.RestaurantID, &o.Amount); err != nil {
			return nil, err
		}
		orphans = append(orphans, o)
	}
	return orphans, rows.Err()
}

func (d *ReconcilerDB) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	tag, err := d.dbPool.Exec(ctx, `
        UPDATE orders SET status = $1 WHERE id = $2 AND status = $3
    `, to, orderID, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ExpireStalePayments marks pending payments past their provider-stated
// expiration as expired. Conditional on the pending status, so it is safe to
// race with webhook ingestion.
func (d *ReconcilerDB) ExpireStalePayments(ctx context.Context, now time.Time) ([]ExpiredPayment, error) {
	rows, err := d.dbPool.Query(ctx, `
        UPDATE payments
        SET status = 'expired'
        WHERE status = 'pending' AND pix_expiration_date IS NOT NULL AND pix_expiration_date < $1
        RETURNING id, provider_payment_id, restaurant_id
    `, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var expired []ExpiredPayment
	for rows.Next() {
		var e ExpiredPayment
		if err := rows.Scan(&e.PaymentID, &e.ProviderPaymentID, &e.RestaurantID); err != nil {
			return nil, err
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

func (d *ReconcilerDB) FailureStats(ctx context.Context, since time.Time) ([]TenantFailureStats, error) {
	rows, err := d.dbPool.Query(ctx, `
        SELECT restaurant_id,
               COUNT(1),
               COUNT(1) FILTER (WHERE status IN ('rejected', 'expired'))
        FROM payments
        WHERE created_at >= $1
        GROUP BY restaurant_id
    `, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []TenantFailureStats
	for rows.Next() {
		var s TenantFailureStats
		if err := rows.Scan(&s.RestaurantID, &s.Total, &s.Failed); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (d *ReconcilerDB) InsertRun(ctx context.Context, run *models.ReconciliationRun) error {
	return d.dbPool.QueryRow(ctx, `
        INSERT INTO reconciliation_runs (status, fixed, expired, alerts, correlation_id)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id, started_at
    `, run.Status, run.Fixed, run.Expired, run.Alerts, run.CorrelationID).
		Scan(&run.ID, &run.StartedAt)
}
