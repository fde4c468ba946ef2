package notify

import (
	"context"
	"errors"
	"testing"

	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

type fakeQueue struct {
	pending  []models.NotificationQueueItem
	sent     []int64
	requeued []int64
	failed   []int64
}

func (f *fakeQueue) ClaimPending(ctx context.Context, limit int) ([]models.NotificationQueueItem, error) {
	items := f.pending
	f.pending = nil
	return items, nil
}

func (f *fakeQueue) MarkSent(ctx context.Context, id int64) error {
	f.sent = append(f.sent, id)
	return nil
}

func (f *fakeQueue) Requeue(ctx context.Context, id int64, lastError string) error {
	f.requeued = append(f.requeued, id)
	return nil
}

func (f *fakeQueue) MarkFailed(ctx context.Context, id int64, lastError string) error {
	f.failed = append(f.failed, id)
	return nil
}

type flakyChannel struct {
	name  string
	err   error
	sends int
}

func (c *flakyChannel) Name() string { return c.name }

func (c *flakyChannel) Send(ctx context.Context, payload []byte) error {
	c.sends++
	return c.err
}

func item(id int64, attempts, maxAttempts int) models.NotificationQueueItem {
	return models.NotificationQueueItem{
		ID: id, Channel: "alerts", Payload: []byte(`{}`),
		Status: models.NotificationStatusPending, Attempts: attempts, MaxAttempts: maxAttempts,
	}
}

func TestSweepDeliversAndMarksSent(t *testing.T) {
	queue := &fakeQueue{pending: []models.NotificationQueueItem{item(1, 0, 3), item(2, 0, 3)}}
	channel := &flakyChannel{name: "alerts"}
	d := NewDispatcher(queue, []Channel{channel}, logger.NewLogger("notify-test"))

	result, err := d.Sweep(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Processed != 2 || result.Sent != 2 || result.Failed != 0 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(queue.sent) != 2 {
		t.Fatalf("expected 2 items marked sent, got %v", queue.sent)
	}
}

func TestFailureRequeuesUntilAttemptsExhausted(t *testing.T) {
	queue := &fakeQueue{pending: []models.NotificationQueueItem{item(1, 0, 3)}}
	channel := &flakyChannel{name: "alerts", err: errors.New("broker down")}
	d := NewDispatcher(queue, []Channel{channel}, logger.NewLogger("notify-test"))

	if _, err := d.Sweep(context.Background(), "corr-1"); err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if len(queue.requeued) != 1 || len(queue.failed) != 0 {
		t.Fatalf("expected requeue, got requeued=%v failed=%v", queue.requeued, queue.failed)
	}
}

func TestLastAttemptFailsTerminally(t *testing.T) {
	queue := &fakeQueue{pending: []models.NotificationQueueItem{item(1, 2, 3)}}
	channel := &flakyChannel{name: "alerts", err: errors.New("broker down")}
	d := NewDispatcher(queue, []Channel{channel}, logger.NewLogger("notify-test"))

	result, err := d.Sweep(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 terminal failure, got %+v", result)
	}
	if len(queue.failed) != 1 || len(queue.requeued) != 0 {
		t.Fatalf("expected terminal failure, got requeued=%v failed=%v", queue.requeued, queue.failed)
	}
}

func TestUnknownChannelIsSimulated(t *testing.T) {
	queue := &fakeQueue{pending: []models.NotificationQueueItem{{
		ID: 1, Channel: "sms", Payload: []byte(`{}`), Attempts: 0, MaxAttempts: 3,
	}}}
	d := NewDispatcher(queue, nil, logger.NewLogger("notify-test"))

	result, err := d.Sweep(context.Background(), "corr-1")
	if err != nil {
		t.Fatalf("Sweep returned error: %v", err)
	}
	if result.Sent != 1 {
		t.Fatalf("no-op channel should report success, got %+v", result)
	}
}
