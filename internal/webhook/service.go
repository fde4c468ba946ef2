// Package webhook ingests asynchronous payment-status pushes from the
// provider and applies them to the payment and order ledgers exactly once.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/gateway"
	"oxe-delivery/internal/metrics"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
	"oxe-delivery/pkg/rabbitmq"
)

type Store interface {
	GetPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error)
	// TransitionPayment applies to -> only if the stored status still equals
	// from; reports whether a row was updated.
	TransitionPayment(ctx context.Context, paymentID int64, from, to string, paidAt *time.Time) (bool, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string)
}

type AlertRaiser interface {
	Raise(ctx context.Context, restaurantID int64, alertType, severity, message string, metadata map[string]any, correlationID string) (bool, error)
}

type KitchenPublisher interface {
	PublishMessage(exchange, routingKey string, message []byte) error
}

// allowedTransitions is the payment state machine. Terminal states have no
// outgoing edges; expiry is reconciliation-driven and deliberately absent.
var allowedTransitions = map[string]map[string]bool{
	models.PaymentStatusPending: {
		models.PaymentStatusApproved: true,
		models.PaymentStatusRejected: true,
	},
	models.PaymentStatusApproved: {
		models.PaymentStatusRefunded: true,
	},
}

type Service struct {
	store    Store
	gateway  gateway.Gateway
	provider string
	audit    AuditRecorder
	alerts   AlertRaiser
	kitchen  KitchenPublisher
	logger   *logger.Logger
}

func NewService(store Store, gw gateway.Gateway, provider string, auditor AuditRecorder, alerter AlertRaiser, kitchen KitchenPublisher, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		gateway:  gw,
		provider: provider,
		audit:    auditor,
		alerts:   alerter,
		kitchen:  kitchen,
		logger:   log,
	}
}

// Process handles one provider push. The returned error is for logging and
// alerting only; the HTTP layer acknowledges the provider regardless, so a
// processing failure can never trigger a provider-side retry storm.
func (s *Service) Process(ctx context.Context, push *models.WebhookPush, correlationID string) error {
	providerID := push.Data.ID
	if providerID == "" {
		metrics.WebhooksProcessedTotal.WithLabelValues("skipped").Inc()
		return nil
	}

	s.audit.Record(ctx, nil, audit.KindWebhookReceived, providerID,
		fmt.Sprintf("push type=%s action=%s", push.Type, push.Action), correlationID)

	payment, err := s.store.GetPaymentByProviderID(ctx, s.provider, providerID)
	if errors.Is(err, ErrPaymentNotFound) {
		// An unknown provider id is not actionable; acknowledge and flag so
		// the provider is never induced to retry indefinitely.
		metrics.WebhooksProcessedTotal.WithLabelValues("flagged").Inc()
		s.audit.Record(ctx, nil, audit.KindWebhookUnknown, providerID,
			"push references a payment this ledger does not know", correlationID)
		s.logger.Warn(correlationID, "webhook_unknown_payment",
			fmt.Sprintf("Provider payment id %s has no local payment row", providerID))
		return nil
	}
	if err != nil {
		// A lookup failure is infrastructure trouble, not an unknown id. The
		// push is still acknowledged upstream, so leave an audit row and an
		// alert behind for the reconciler's operators.
		metrics.WebhooksProcessedTotal.WithLabelValues("failed").Inc()
		s.audit.Record(ctx, nil, audit.KindWebhookFailed, providerID,
			fmt.Sprintf("payment lookup failed: %v", err), correlationID)
		if _, alertErr := s.alerts.Raise(ctx, 0, alerts.TypeWebhookError,
			models.AlertSeverityWarning,
			fmt.Sprintf("could not look up provider payment %s", providerID),
			map[string]any{"provider_payment_id": providerID}, correlationID); alertErr != nil {
			s.logger.Error(correlationID, "alert_raise_failed", "Failed to raise webhook error alert", alertErr)
		}
		return fmt.Errorf("look up provider payment %s: %w", providerID, err)
	}

	// The push body is never trusted; the authoritative status comes from a
	// direct provider query.
	verified, err := s.gateway.GetPaymentStatus(ctx, providerID)
	if err != nil {
		metrics.WebhooksProcessedTotal.WithLabelValues("failed").Inc()
		s.audit.Record(ctx, &payment.ID, audit.KindWebhookFailed, providerID,
			fmt.Sprintf("status re-verification failed: %v", err), correlationID)
		if _, alertErr := s.alerts.Raise(ctx, payment.RestaurantID, alerts.TypeWebhookError,
			models.AlertSeverityWarning,
			fmt.Sprintf("could not re-verify payment %d with provider", payment.ID),
			map[string]any{"provider_payment_id": providerID}, correlationID); alertErr != nil {
			s.logger.Error(correlationID, "alert_raise_failed", "Failed to raise webhook error alert", alertErr)
		}
		return fmt.Errorf("re-verify payment %d: %w", payment.ID, err)
	}

	return s.applyStatus(ctx, payment, verified.Status, verified.ProviderStatus, correlationID)
}

func (s *Service) applyStatus(ctx context.Context, payment *models.Payment, newStatus, providerStatus, correlationID string) error {
	if newStatus == payment.Status {
		metrics.WebhooksProcessedTotal.WithLabelValues("skipped").Inc()
		s.audit.Record(ctx, &payment.ID, audit.KindWebhookSkipped, payment.ProviderPaymentID,
			fmt.Sprintf("status %s already applied", newStatus), correlationID)
		return nil
	}

	if !allowedTransitions[payment.Status][newStatus] {
		metrics.WebhooksProcessedTotal.WithLabelValues("skipped").Inc()
		s.audit.Record(ctx, &payment.ID, audit.KindWebhookSkipped, payment.ProviderPaymentID,
			fmt.Sprintf("transition %s -> %s not allowed (provider status %s)", payment.Status, newStatus, providerStatus), correlationID)
		s.logger.Warn(correlationID, "webhook_transition_refused",
			fmt.Sprintf("Payment %d: refusing %s -> %s", payment.ID, payment.Status, newStatus))
		return nil
	}

	var paidAt *time.Time
	if newStatus == models.PaymentStatusApproved {
		now := time.Now().UTC()
		paidAt = &now
	}

	applied, err := s.store.TransitionPayment(ctx, payment.ID, payment.Status, newStatus, paidAt)
	if err != nil {
		metrics.WebhooksProcessedTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("transition payment %d: %w", payment.ID, err)
	}
	if !applied {
		// A concurrent delivery of the same event won the conditional update.
		metrics.WebhooksProcessedTotal.WithLabelValues("skipped").Inc()
		s.audit.Record(ctx, &payment.ID, audit.KindWebhookSkipped, payment.ProviderPaymentID,
			fmt.Sprintf("conditional update lost: stored status no longer %s", payment.Status), correlationID)
		return nil
	}

	s.audit.Record(ctx, &payment.ID, audit.KindWebhookApplied, payment.ProviderPaymentID,
		fmt.Sprintf("payment %s -> %s (provider status %s)", payment.Status, newStatus, providerStatus), correlationID)
	metrics.WebhooksProcessedTotal.WithLabelValues("applied").Inc()

	switch newStatus {
	case models.PaymentStatusApproved:
		return s.advanceOrderPaid(ctx, payment, correlationID)
	case models.PaymentStatusRejected:
		return s.cancelOrder(ctx, payment, correlationID)
	}
	return nil
}

func (s *Service) advanceOrderPaid(ctx context.Context, payment *models.Payment, correlationID string) error {
	if payment.OrderID == nil {
		return nil
	}

	moved, err := s.store.TransitionOrder(ctx, *payment.OrderID, models.OrderStatusPending, models.OrderStatusPreparing)
	if err != nil {
		return fmt.Errorf("advance order %d: %w", *payment.OrderID, err)
	}
	if !moved {
		// The order already left pending (or was cancelled) while its payment
		// was approved: the two ledgers disagree and someone must look.
		s.audit.Record(ctx, &payment.ID, audit.KindOrderOutOfSync, payment.ProviderPaymentID,
			fmt.Sprintf("payment approved but order %d was not pending", *payment.OrderID), correlationID)
		if _, alertErr := s.alerts.Raise(ctx, payment.RestaurantID, alerts.TypeOrderOutOfSync,
			models.AlertSeverityCritical,
			fmt.Sprintf("payment %d approved but order %d could not be advanced", payment.ID, *payment.OrderID),
			map[string]any{"order_id": *payment.OrderID, "payment_id": payment.ID}, correlationID); alertErr != nil {
			s.logger.Error(correlationID, "alert_raise_failed", "Failed to raise out-of-sync alert", alertErr)
		}
		return nil
	}

	s.publishOrderPaid(payment, correlationID)
	s.logger.Info(correlationID, "order_paid",
		fmt.Sprintf("Order %d moved to preparing after payment %d approval", *payment.OrderID, payment.ID))
	return nil
}

func (s *Service) cancelOrder(ctx context.Context, payment *models.Payment, correlationID string) error {
	if payment.OrderID == nil {
		return nil
	}

	cancelled, err := s.store.TransitionOrder(ctx, *payment.OrderID, models.OrderStatusPending, models.OrderStatusCancelled)
	if err != nil {
		return fmt.Errorf("cancel order %d: %w", *payment.OrderID, err)
	}
	if !cancelled {
		s.logger.Warn(correlationID, "order_cancel_skipped",
			fmt.Sprintf("Order %d was not pending when payment %d was rejected", *payment.OrderID, payment.ID))
	}
	return nil
}

// publishOrderPaid emits the kitchen-visible event. Best effort: the order is
// already advanced, and reconciliation does not depend on the broker.
func (s *Service) publishOrderPaid(payment *models.Payment, correlationID string) {
	message, _ := json.Marshal(models.KitchenEventMessage{
		Event:         "order_paid",
		OrderID:       *payment.OrderID,
		RestaurantID:  payment.RestaurantID,
		Total:         payment.Amount,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	})

	if err := s.kitchen.PublishMessage(rabbitmq.OrdersExchange, "kitchen.paid", message); err != nil {
		s.logger.Error(correlationID, "kitchen_publish_failed", "Failed to publish order_paid event", err)
	}
}
