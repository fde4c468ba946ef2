package notify

import (
	"context"
	"time"

	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5/pgxpool"
)

type NotifyDB struct {
	dbPool *pgxpool.Pool
}

func NewNotifyDB(dbPool *pgxpool.Pool) *NotifyDB {
	return &NotifyDB{dbPool: dbPool}
}

// ClaimPending claims one batch inside a transaction. SKIP LOCKED keeps two
// overlapping sweeps from claiming the same rows.
func (d *NotifyDB) ClaimPending(ctx context.Context, limit int) ([]models.NotificationQueueItem, error) {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
        SELECT id, channel, payload, status, attempts, max_attempts, last_error, created_at
        FROM notification_queue
        WHERE status = 'pending'
        ORDER BY created_at
        LIMIT $1
        FOR UPDATE SKIP LOCKED
    `, limit)
	if err != nil {
		return nil, err
	}

	var items []models.NotificationQueueItem
	for rows.Next() {
		var item models.NotificationQueueItem
		if err := rows.Scan(&item.ID, &item.Channel, &item.Payload, &item.Status,
			&item.Attempts, &item.MaxAttempts, &item.LastError, &item.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `
            UPDATE notification_queue SET status = 'processing' WHERE id = $1
        `, item.ID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return items, nil
}

func (d *NotifyDB) MarkSent(ctx context.Context, id int64) error {
	_, err := d.dbPool.Exec(ctx, `
        UPDATE notification_queue
        SET status = 'sent', sent_at = $1
        WHERE id = $2
    `, time.Now().UTC(), id)
	return err
}

func (d *NotifyDB) Requeue(ctx context.Context, id int64, lastError string) error {
	_, err := d.dbPool.Exec(ctx, `
        UPDATE notification_queue
        SET status = 'pending', attempts = attempts + 1, last_error = $1
        WHERE id = $2
    `, lastError, id)
	return err
}

func (d *NotifyDB) MarkFailed(ctx context.Context, id int64, lastError string) error {
	_, err := d.dbPool.Exec(ctx, `
        UPDATE notification_queue
        SET status = 'failed', attempts = attempts + 1, last_error = $1
        WHERE id = $2
    `, lastError, id)
	return err
}
