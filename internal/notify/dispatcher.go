// Package notify drains the notification queue with at-least-once,
// retry-bounded delivery.
package notify

import (
	"context"
	"fmt"

	"oxe-delivery/internal/metrics"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

const claimBatchSize = 50

type Store interface {
	// ClaimPending moves up to limit pending items to processing and returns
	// them. Claiming prevents a double send when two sweeps overlap.
	ClaimPending(ctx context.Context, limit int) ([]models.NotificationQueueItem, error)
	MarkSent(ctx context.Context, id int64) error
	// Requeue returns a failed item to pending with the error recorded.
	Requeue(ctx context.Context, id int64, lastError string) error
	// MarkFailed terminally fails an item that exhausted its attempts.
	MarkFailed(ctx context.Context, id int64, lastError string) error
}

// Channel delivers one payload to an external destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, payload []byte) error
}

type Result struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
}

type Dispatcher struct {
	store    Store
	channels map[string]Channel
	logger   *logger.Logger
}

func NewDispatcher(store Store, channels []Channel, log *logger.Logger) *Dispatcher {
	byName := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		byName[ch.Name()] = ch
	}
	return &Dispatcher{
		store:    store,
		channels: byName,
		logger:   log,
	}
}

// Sweep claims and dispatches one batch of pending items. Items whose channel
// fails go back to pending until their attempts run out; then they are
// terminally failed.
func (d *Dispatcher) Sweep(ctx context.Context, correlationID string) (*Result, error) {
	items, err := d.store.ClaimPending(ctx, claimBatchSize)
	if err != nil {
		return nil, fmt.Errorf("claim pending notifications: %w", err)
	}

	result := &Result{}
	for _, item := range items {
		result.Processed++
		d.dispatch(ctx, item, result, correlationID)
	}

	if result.Processed > 0 {
		d.logger.Info(correlationID, "notifications_dispatched",
			fmt.Sprintf("Dispatched batch: processed=%d sent=%d failed=%d", result.Processed, result.Sent, result.Failed))
	}
	return result, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, item models.NotificationQueueItem, result *Result, correlationID string) {
	channel, ok := d.channels[item.Channel]
	if !ok {
		channel = noop{name: item.Channel}
	}

	if err := channel.Send(ctx, item.Payload); err != nil {
		attempts := item.Attempts + 1
		if attempts >= item.MaxAttempts {
			result.Failed++
			metrics.NotificationsDispatchedTotal.WithLabelValues("failed").Inc()
			if markErr := d.store.MarkFailed(ctx, item.ID, err.Error()); markErr != nil {
				d.logger.Error(correlationID, "notification_update_failed", "Failed to terminally fail item", markErr)
			}
			d.logger.Error(correlationID, "notification_exhausted",
				fmt.Sprintf("Item %d failed %d times, giving up", item.ID, attempts), err)
			return
		}

		metrics.NotificationsDispatchedTotal.WithLabelValues("retried").Inc()
		if requeueErr := d.store.Requeue(ctx, item.ID, err.Error()); requeueErr != nil {
			d.logger.Error(correlationID, "notification_update_failed", "Failed to requeue item", requeueErr)
		}
		return
	}

	result.Sent++
	metrics.NotificationsDispatchedTotal.WithLabelValues("sent").Inc()
	if err := d.store.MarkSent(ctx, item.ID); err != nil {
		d.logger.Error(correlationID, "notification_update_failed", "Failed to mark item sent", err)
	}
}

// noop simulates delivery for channels without a concrete binding.
type noop struct {
	name string
}

func (n noop) Name() string { return n.name }

func (n noop) Send(ctx context.Context, payload []byte) error { return nil }
