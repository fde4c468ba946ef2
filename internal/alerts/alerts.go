// Package alerts raises payment alerts with flap suppression and queues them
// for delivery.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

// Alert types raised by the webhook path, the reconciler and the health
// monitor.
const (
	TypeOrderOutOfSync  = "order_out_of_sync"
	TypeOrphanRepaired  = "orphan_payment_repaired"
	TypeHighFailureRate = "high_payment_failure_rate"
	TypeStaleReconciler = "reconciliation_stalled"
	TypeNotifyBacklog   = "notification_backlog"
	TypeWebhookError    = "webhook_processing_error"
)

// Store is the persistence surface the alert service needs.
type Store interface {
	HasRecentUnresolved(ctx context.Context, restaurantID int64, alertType string, since time.Time) (bool, error)
	InsertAlert(ctx context.Context, alert *models.PaymentAlert) error
	EnqueueNotification(ctx context.Context, channel string, payload []byte, maxAttempts int) error
	// Resolve marks one unresolved alert handled; reports whether a row
	// changed.
	Resolve(ctx context.Context, alertID int64) (bool, error)
}

type Service struct {
	store       Store
	dedupWindow time.Duration
	maxAttempts int
	logger      *logger.Logger
}

func NewService(store Store, dedupWindow time.Duration, maxAttempts int, log *logger.Logger) *Service {
	return &Service{
		store:       store,
		dedupWindow: dedupWindow,
		maxAttempts: maxAttempts,
		logger:      log,
	}
}

// Raise inserts an alert and queues a notification for it, unless an
// unresolved alert of the same (restaurant, type) exists inside the dedup
// window. Returns whether a new alert was created.
func (s *Service) Raise(ctx context.Context, restaurantID int64, alertType, severity, message string, metadata map[string]any, correlationID string) (bool, error) {
	duplicate, err := s.store.HasRecentUnresolved(ctx, restaurantID, alertType, time.Now().UTC().Add(-s.dedupWindow))
	if err != nil {
		return false, fmt.Errorf("alert dedup check: %w", err)
	}
	if duplicate {
		s.logger.Debug(correlationID, "alert_deduplicated", fmt.Sprintf("Suppressed duplicate %s alert for restaurant %d", alertType, restaurantID))
		return false, nil
	}

	var metadataJSON []byte
	if metadata != nil {
		metadataJSON, _ = json.Marshal(metadata)
	}

	alert := &models.PaymentAlert{
		RestaurantID:  restaurantID,
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		Metadata:      metadataJSON,
		CorrelationID: correlationID,
	}
	if err := s.store.InsertAlert(ctx, alert); err != nil {
		return false, fmt.Errorf("insert alert: %w", err)
	}

	payload, _ := json.Marshal(models.AlertMessage{
		RestaurantID:  restaurantID,
		Type:          alertType,
		Severity:      severity,
		Message:       message,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	})

	// Delivery failure must not unwind the alert row; the queue sweep owns
	// retries from here.
	if err := s.store.EnqueueNotification(ctx, "alerts", payload, s.maxAttempts); err != nil {
		s.logger.Error(correlationID, "notification_enqueue_failed", "Alert stored but notification could not be queued", err)
	}

	s.logger.Warn(correlationID, "alert_raised", fmt.Sprintf("%s alert (%s) for restaurant %d: %s", severity, alertType, restaurantID, message))
	return true, nil
}

// Resolve marks an alert handled, which releases the dedup suppression for
// its (restaurant, type) pair. Returns false when the alert does not exist or
// was already resolved.
func (s *Service) Resolve(ctx context.Context, alertID int64, correlationID string) (bool, error) {
	resolved, err := s.store.Resolve(ctx, alertID)
	if err != nil {
		return false, fmt.Errorf("resolve alert %d: %w", alertID, err)
	}
	if resolved {
		s.logger.Info(correlationID, "alert_resolved", fmt.Sprintf("Alert %d marked resolved", alertID))
	}
	return resolved, nil
}
