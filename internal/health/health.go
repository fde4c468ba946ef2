// Package health is a read-only monitor over the consistency machinery. It
// never repairs anything itself; it only classifies and raises alerts.
package health

import (
	"context"
	"fmt"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

const (
	StatusOK       = "ok"
	StatusWarning  = "warning"
	StatusCritical = "critical"
)

type Store interface {
	LastRunAt(ctx context.Context) (*time.Time, error)
	CountUnresolvedAlerts(ctx context.Context, severity string) (int, error)
	CountStuckNotifications(ctx context.Context, olderThan time.Time) (int, error)
}

type AlertRaiser interface {
	Raise(ctx context.Context, restaurantID int64, alertType, severity, message string, metadata map[string]any, correlationID string) (bool, error)
}

type Check struct {
	Name   string `json:"name"`
	Status string `json:"status"`
	Detail string `json:"detail"`
}

type Report struct {
	Status        string  `json:"status"`
	Checks        []Check `json:"checks"`
	CorrelationID string  `json:"correlation_id"`
}

type Monitor struct {
	store  Store
	alerts AlertRaiser
	cfg    config.SweepConfig
	logger *logger.Logger
	now    func() time.Time
}

func NewMonitor(store Store, alerter AlertRaiser, cfg config.SweepConfig, log *logger.Logger) *Monitor {
	return &Monitor{
		store:  store,
		alerts: alerter,
		cfg:    cfg,
		logger: log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Check runs all health probes and returns the aggregate report. The overall
// status is the worst individual check.
func (m *Monitor) Check(ctx context.Context, correlationID string) (*Report, error) {
	report := &Report{Status: StatusOK, CorrelationID: correlationID}

	checks := []func(context.Context, string) Check{
		m.checkReconciliationFreshness,
		m.checkAlertBacklog,
		m.checkNotificationBacklog,
	}
	for _, probe := range checks {
		check := probe(ctx, correlationID)
		report.Checks = append(report.Checks, check)
		report.Status = worse(report.Status, check.Status)
	}

	m.logger.Info(correlationID, "health_checked",
		fmt.Sprintf("Health status %s across %d checks", report.Status, len(report.Checks)))
	return report, nil
}

func (m *Monitor) checkReconciliationFreshness(ctx context.Context, correlationID string) Check {
	check := Check{Name: "reconciliation_freshness", Status: StatusOK}

	last, err := m.store.LastRunAt(ctx)
	if err != nil {
		check.Status = StatusCritical
		check.Detail = fmt.Sprintf("cannot read reconciliation runs: %v", err)
		return check
	}

	switch {
	case last == nil:
		check.Status = StatusCritical
		check.Detail = "no reconciliation run has ever completed"
	case m.now().Sub(*last) > m.cfg.StaleRunThreshold:
		check.Status = StatusCritical
		check.Detail = fmt.Sprintf("last run %s ago exceeds %s", m.now().Sub(*last).Round(time.Second), m.cfg.StaleRunThreshold)
	default:
		check.Detail = fmt.Sprintf("last run %s ago", m.now().Sub(*last).Round(time.Second))
	}

	if check.Status == StatusCritical {
		if _, err := m.alerts.Raise(ctx, 0, alerts.TypeStaleReconciler, models.AlertSeverityCritical,
			check.Detail, nil, correlationID); err != nil {
			m.logger.Error(correlationID, "alert_raise_failed", "Failed to raise stale reconciler alert", err)
		}
	}
	return check
}

func (m *Monitor) checkAlertBacklog(ctx context.Context, correlationID string) Check {
	check := Check{Name: "alert_backlog", Status: StatusOK}

	criticals, err := m.store.CountUnresolvedAlerts(ctx, models.AlertSeverityCritical)
	if err != nil {
		check.Status = StatusCritical
		check.Detail = fmt.Sprintf("cannot read alerts: %v", err)
		return check
	}

	if criticals > 0 {
		check.Status = StatusWarning
		check.Detail = fmt.Sprintf("%d unresolved critical alerts", criticals)
	} else {
		check.Detail = "no unresolved critical alerts"
	}
	return check
}

func (m *Monitor) checkNotificationBacklog(ctx context.Context, correlationID string) Check {
	check := Check{Name: "notification_backlog", Status: StatusOK}

	stuck, err := m.store.CountStuckNotifications(ctx, m.now().Add(-m.cfg.StaleRunThreshold))
	if err != nil {
		check.Status = StatusCritical
		check.Detail = fmt.Sprintf("cannot read notification queue: %v", err)
		return check
	}

	if stuck > 0 {
		check.Status = StatusWarning
		check.Detail = fmt.Sprintf("%d notifications pending longer than %s", stuck, m.cfg.StaleRunThreshold)
		if _, err := m.alerts.Raise(ctx, 0, alerts.TypeNotifyBacklog, models.AlertSeverityWarning,
			check.Detail, nil, correlationID); err != nil {
			m.logger.Error(correlationID, "alert_raise_failed", "Failed to raise notification backlog alert", err)
		}
	} else {
		check.Detail = "queue is draining"
	}
	return check
}

func worse(a, b string) string {
	rank := map[string]int{StatusOK: 0, StatusWarning: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
