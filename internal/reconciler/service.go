// Package reconciler repairs drift between the payment and order ledgers.
// Every mutation is conditional on the expected prior state, so sweeps can
// overlap each other and webhook ingestion without duplicate side effects.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/metrics"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
	"oxe-delivery/pkg/rabbitmq"
)

type Store interface {
	FindOrphanApproved(ctx context.Context) ([]Orphan, error)
	TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error)
	ExpireStalePayments(ctx context.Context, now time.Time) ([]ExpiredPayment, error)
	FailureStats(ctx context.Context, since time.Time) ([]TenantFailureStats, error)
	InsertRun(ctx context.Context, run *models.ReconciliationRun) error
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

type Result struct {
	Fixed   int `json:"fixed"`
	Expired int `json:"expired"`
	Alerts  int `json:"alerts"`
}

type Service struct {
	store   Store
	audit   AuditRecorder
	alerts  AlertRaiser
	kitchen KitchenPublisher
	cfg     config.SweepConfig
	logger  *logger.Logger
}

func NewService(store Store, auditor AuditRecorder, alerter AlertRaiser, kitchen KitchenPublisher, cfg config.SweepConfig, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		audit:   auditor,
		alerts:  alerter,
		kitchen: kitchen,
		cfg:     cfg,
		logger:  log,
	}
}

// Run executes one sweep: orphan repair, expiry, failure-rate alarm. A run
// row is written regardless of outcome so the health monitor can detect a
// stalled scheduler.
func (s *Service) Run(ctx context.Context, correlationID string) (*Result, error) {
	result := &Result{}
	status := "completed"

	var sweepErr error
	if err := s.repairOrphans(ctx, result, correlationID); err != nil {
		sweepErr = err
		status = "failed"
	}
	if err := s.expireStale(ctx, result, correlationID); err != nil && sweepErr == nil {
		sweepErr = err
		status = "failed"
	}
	if err := s.failureAlarm(ctx, result, correlationID); err != nil && sweepErr == nil {
		sweepErr = err
		status = "failed"
	}

	run := &models.ReconciliationRun{
		Status:        status,
		Fixed:         result.Fixed,
		Expired:       result.Expired,
		Alerts:        result.Alerts,
		CorrelationID: correlationID,
	}
	if err := s.store.InsertRun(ctx, run); err != nil {
		s.logger.Error(correlationID, "run_row_failed", "Failed to record reconciliation run", err)
		if sweepErr == nil {
			sweepErr = err
		}
	}

	s.logger.Info(correlationID, "reconciliation_completed",
		fmt.Sprintf("Sweep done: fixed=%d expired=%d alerts=%d status=%s", result.Fixed, result.Expired, result.Alerts, status))
	return result, sweepErr
}

// repairOrphans advances orders whose approved payment never reached them
// through the webhook path.
func (s *Service) repairOrphans(ctx context.Context, result *Result, correlationID string) error {
	orphans, err := s.store.FindOrphanApproved(ctx)
	if err != nil {
		return fmt.Errorf("find orphans: %w", err)
	}

	for _, orphan := range orphans {
		moved, err := s.store.TransitionOrder(ctx, orphan.OrderID, models.OrderStatusPending, models.OrderStatusPreparing)
		if err != nil {
			return fmt.Errorf("repair order %d: %w", orphan.OrderID, err)
		}
		if !moved {
			// Webhook ingestion got there first; nothing to repair.
			continue
		}

		result.Fixed++
		metrics.ReconciliationRepairsTotal.WithLabelValues("orphan_fixed").Inc()
		s.audit.Record(ctx, &orphan.PaymentID, audit.KindOrphanRepaired, orphan.ProviderPaymentID,
			fmt.Sprintf("order %d advanced to preparing by reconciliation", orphan.OrderID), correlationID)

		message, _ := json.Marshal(models.KitchenEventMessage{
			Event:         "order_paid",
			OrderID:       orphan.OrderID,
			RestaurantID:  orphan.RestaurantID,
			Total:         orphan.Amount,
			CorrelationID: correlationID,
			Timestamp:     time.Now().UTC(),
		})
		if err := s.kitchen.PublishMessage(rabbitmq.OrdersExchange, "kitchen.paid", message); err != nil {
			s.logger.Error(correlationID, "kitchen_publish_failed", "Failed to publish repaired order event", err)
		}

		created, err := s.alerts.Raise(ctx, orphan.RestaurantID, alerts.TypeOrphanRepaired,
			models.AlertSeverityWarning,
			fmt.Sprintf("order %d repaired after missed webhook for payment %d", orphan.OrderID, orphan.PaymentID),
			map[string]any{"order_id": orphan.OrderID, "payment_id": orphan.PaymentID}, correlationID)
		if err != nil {
			s.logger.Error(correlationID, "alert_raise_failed", "Failed to raise orphan repair alert", err)
		} else if created {
			result.Alerts++
		}
	}
	return nil
}

func (s *Service) expireStale(ctx context.Context, result *Result, correlationID string) error {
	expired, err := s.store.ExpireStalePayments(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("expire stale payments: %w", err)
	}

	for _, e := range expired {
		result.Expired++
		metrics.ReconciliationRepairsTotal.WithLabelValues("payment_expired").Inc()
		s.audit.Record(ctx, &e.PaymentID, audit.KindPaymentExpired, e.ProviderPaymentID,
			"pending charge passed its expiration", correlationID)
	}
	return nil
}

// failureAlarm raises a critical alert for any tenant whose recent
// rejected/expired fraction crosses the threshold with enough samples. This
// catches systemic provider or credential failures faster than complaints do.
func (s *Service) failureAlarm(ctx context.Context, result *Result, correlationID string) error {
	stats, err := s.store.FailureStats(ctx, time.Now().UTC().Add(-s.cfg.FailureRateWindow))
	if err != nil {
		return fmt.Errorf("failure stats: %w", err)
	}

	for _, st := range stats {
		if st.Total < s.cfg.FailureMinSample {
			continue
		}
		ratio := float64(st.Failed) / float64(st.Total)
		if ratio <= s.cfg.FailureRateThreshold {
			continue
		}

		metrics.ReconciliationRepairsTotal.WithLabelValues("alert_raised").Inc()
		created, err := s.alerts.Raise(ctx, st.RestaurantID, alerts.TypeHighFailureRate,
			models.AlertSeverityCritical,
			fmt.Sprintf("%.0f%% of %d recent payments failed", ratio*100, st.Total),
			map[string]any{"total": st.Total, "failed": st.Failed}, correlationID)
		if err != nil {
			s.logger.Error(correlationID, "alert_raise_failed", "Failed to raise failure-rate alert", err)
			continue
		}
		if created {
			result.Alerts++
		}
	}
	return nil
}
