package health

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthDB struct {
	dbPool *pgxpool.Pool
}

func NewHealthDB(dbPool *pgxpool.Pool) *HealthDB {
	return &HealthDB{dbPool: dbPool}
}

func (d *HealthDB) LastRunAt(ctx context.Context) (*time.Time, error) {
	var last *time.Time
	err := d.dbPool.QueryRow(ctx, `
        SELECT MAX(started_at) FROM reconciliation_runs
    `).Scan(&last)
	return last, err
}

func (d *HealthDB) CountUnresolvedAlerts(ctx context.Context, severity string) (int, error) {
	var count int
	err := d.dbPool.QueryRow(ctx, `
        SELECT COUNT(1) FROM payment_alerts WHERE resolved = FALSE AND severity = $1
    `, severity).Scan(&count)
	return count, err
}

func (d *HealthDB) CountStuckNotifications(ctx context.Context, olderThan time.Time) (int, error) {
	var count int
	err := d.dbPool.QueryRow(ctx, `
        SELECT COUNT(1) FROM notification_queue WHERE status = 'pending' AND created_at < $1
    `, olderThan).Scan(&count)
	return count, err
}
