package health

import (
	"context"
	"testing"
	"time"

	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
)

type fakeStore struct {
	lastRun   *time.Time
	criticals int
	stuck     int
}

func (f *fakeStore) LastRunAt(ctx context.Context) (*time.Time, error) {
	return f.lastRun, nil
}

func (f *fakeStore) CountUnresolvedAlerts(ctx context.Context, severity string) (int, error) {
	return f.criticals, nil
}

func (f *fakeStore) CountStuckNotifications(ctx context.Context, olderThan time.Time) (int, error) {
	return f.stuck, nil
}

type recordingAlerts struct{ raised []string }

func (r *recordingAlerts) Raise(ctx context.Context, restaurantID int64, alertType, severity, message string, metadata map[string]any, correlationID string) (bool, error) {
	r.raised = append(r.raised, alertType)
	return true, nil
}

func monitorAt(store *fakeStore, now time.Time) (*Monitor, *recordingAlerts) {
	alerter := &recordingAlerts{}
	m := NewMonitor(store, alerter, config.SweepConfig{StaleRunThreshold: 15 * time.Minute}, logger.NewLogger("health-test"))
	m.now = func() time.Time { return now }
	return m, alerter
}

func TestHealthyReportsOK(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-5 * time.Minute)
	m, alerter := monitorAt(&fakeStore{lastRun: &recent}, now)

	report, err := m.Check(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if report.Status != StatusOK {
		t.Fatalf("expected ok, got %s", report.Status)
	}
	if len(report.Checks) != 3 {
		t.Fatalf("expected 3 checks, got %d", len(report.Checks))
	}
	if len(alerter.raised) != 0 {
		t.Fatalf("healthy system must not raise alerts, got %v", alerter.raised)
	}
}

func TestStaleReconcilerIsCritical(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	old := now.Add(-20 * time.Minute)
	m, alerter := monitorAt(&fakeStore{lastRun: &old}, now)

	report, err := m.Check(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Check returned error: %v", err)
	}
	if report.Status != StatusCritical {
		t.Fatalf("expected critical, got %s", report.Status)
	}
	if len(alerter.raised) != 1 || alerter.raised[0] != "reconciliation_stalled" {
		t.Fatalf("expected reconciliation_stalled alert, got %v", alerter.raised)
	}
}

func TestNoRunEverIsCritical(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m, _ := monitorAt(&fakeStore{}, now)

	report, _ := m.Check(context.Background(), "corr-1")
	if report.Status != StatusCritical {
		t.Fatalf("expected critical with no runs, got %s", report.Status)
	}
}

func TestUnresolvedCriticalAlertsWarn(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	m, _ := monitorAt(&fakeStore{lastRun: &recent, criticals: 2}, now)

	report, _ := m.Check(context.Background(), "corr-1")
	if report.Status != StatusWarning {
		t.Fatalf("expected warning, got %s", report.Status)
	}
}

func TestNotificationBacklogWarnsAndAlerts(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	m, alerter := monitorAt(&fakeStore{lastRun: &recent, stuck: 4}, now)

	report, _ := m.Check(context.Background(), "corr-1")
	if report.Status != StatusWarning {
		t.Fatalf("expected warning, got %s", report.Status)
	}
	if len(alerter.raised) != 1 || alerter.raised[0] != "notification_backlog" {
		t.Fatalf("expected notification_backlog alert, got %v", alerter.raised)
	}
}
