package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"oxe-delivery/internal/gateway"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

type fakeStore struct {
	payments  map[string]*models.Payment
	orders    map[int64]string
	lookupErr error

	paymentTransitions []string
	orderTransitions   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: make(map[string]*models.Payment),
		orders:   make(map[int64]string),
	}
}

func (f *fakeStore) GetPaymentByProviderID(ctx context.Context, provider, providerPaymentID string) (*models.Payment, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	p, ok := f.payments[providerPaymentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	copied := *p
	return &copied, nil
}

func (f *fakeStore) TransitionPayment(ctx context.Context, paymentID int64, from, to string, paidAt *time.Time) (bool, error) {
	for _, p := range f.payments {
		if p.ID == paymentID && p.Status == from {
			p.Status = to
			if paidAt != nil {
				p.PaidAt = paidAt
			}
			f.paymentTransitions = append(f.paymentTransitions, from+"->"+to)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) TransitionOrder(ctx context.Context, orderID int64, from, to string) (bool, error) {
	if f.orders[orderID] == from {
		f.orders[orderID] = to
		f.orderTransitions = append(f.orderTransitions, from+"->"+to)
		return true, nil
	}
	return false, nil
}

type fakeGateway struct {
	status map[string]string
	err    error
	calls  int
}

func (f *fakeGateway) CreatePixPayment(ctx context.Context, in gateway.CreateChargeInput) (*gateway.Charge, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*gateway.PaymentStatus, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &gateway.PaymentStatus{
		Status:         f.status[providerPaymentID],
		ProviderStatus: f.status[providerPaymentID],
	}, nil
}

type recordingAudit struct {
	kinds []string
}

func (r *recordingAudit) Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string) {
	r.kinds = append(r.kinds, kind)
}

func (r *recordingAudit) has(kind string) bool {
	for _, k := range r.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type recordingAlerts struct {
	raised []string
}

func (r *recordingAlerts) Raise(ctx context.Context, restaurantID int64, alertType, severity, message string, metadata map[string]any, correlationID string) (bool, error) {
	r.raised = append(r.raised, alertType+":"+severity)
	return true, nil
}

type recordingKitchen struct {
	published []string
}

func (r *recordingKitchen) PublishMessage(exchange, routingKey string, message []byte) error {
	r.published = append(r.published, routingKey)
	return nil
}

func setup(t *testing.T) (*Service, *fakeStore, *fakeGateway, *recordingAudit, *recordingAlerts, *recordingKitchen) {
	t.Helper()
	store := newFakeStore()
	gw := &fakeGateway{status: make(map[string]string)}
	auditor := &recordingAudit{}
	alerter := &recordingAlerts{}
	kitchen := &recordingKitchen{}
	svc := NewService(store, gw, "mercadopago", auditor, alerter, kitchen, logger.NewLogger("webhook-test"))
	return svc, store, gw, auditor, alerter, kitchen
}

func push(providerID string) *models.WebhookPush {
	p := &models.WebhookPush{Type: "payment", Action: "payment.updated"}
	p.Data.ID = providerID
	return p
}

func seedPayment(store *fakeStore, providerID string, orderID int64, status string) *models.Payment {
	p := &models.Payment{
		ID: 1, RestaurantID: 10, OrderID: &orderID,
		Provider: "mercadopago", ProviderPaymentID: providerID,
		Amount: 25.00, Status: status,
	}
	store.payments[providerID] = p
	store.orders[orderID] = models.OrderStatusPending
	return p
}

func TestApprovedMovesOrderToPreparing(t *testing.T) {
	svc, store, gw, auditor, _, kitchen := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	gw.status["mp-1"] = models.PaymentStatusApproved

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if store.payments["mp-1"].Status != models.PaymentStatusApproved {
		t.Fatalf("payment not approved: %s", store.payments["mp-1"].Status)
	}
	if store.payments["mp-1"].PaidAt == nil {
		t.Fatal("expected paid_at to be set")
	}
	if store.orders[42] != models.OrderStatusPreparing {
		t.Fatalf("order not preparing: %s", store.orders[42])
	}
	if len(kitchen.published) != 1 || kitchen.published[0] != "kitchen.paid" {
		t.Fatalf("expected one kitchen.paid event, got %v", kitchen.published)
	}
	if !auditor.has("webhook_applied") {
		t.Fatalf("expected webhook_applied audit row, got %v", auditor.kinds)
	}
	if gw.calls != 1 {
		t.Fatalf("status must be re-verified with the provider, calls=%d", gw.calls)
	}
}

func TestDuplicateDeliveryIsIdempotent(t *testing.T) {
	svc, store, gw, _, _, kitchen := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	gw.status["mp-1"] = models.PaymentStatusApproved

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.Process(context.Background(), push("mp-1"), "corr-2"); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if len(store.paymentTransitions) != 1 {
		t.Fatalf("expected exactly one payment transition, got %v", store.paymentTransitions)
	}
	if len(store.orderTransitions) != 1 {
		t.Fatalf("expected exactly one order transition, got %v", store.orderTransitions)
	}
	if len(kitchen.published) != 1 {
		t.Fatalf("expected exactly one kitchen event, got %d", len(kitchen.published))
	}
}

func TestUnknownPaymentAcknowledgedWithoutMutation(t *testing.T) {
	svc, store, gw, auditor, _, _ := setup(t)
	gw.status["mp-x"] = models.PaymentStatusApproved

	if err := svc.Process(context.Background(), push("mp-x"), "corr-1"); err != nil {
		t.Fatalf("unknown payment must be acknowledged, got %v", err)
	}
	if len(store.paymentTransitions) != 0 || len(store.orderTransitions) != 0 {
		t.Fatal("no state may be mutated for an unknown payment")
	}
	if !auditor.has("webhook_unknown_payment") {
		t.Fatalf("expected webhook_unknown_payment audit row, got %v", auditor.kinds)
	}
	if gw.calls != 0 {
		t.Fatal("no provider call should be made for an unknown payment")
	}
}

func TestLookupFailureIsNotTreatedAsUnknownPayment(t *testing.T) {
	svc, store, gw, auditor, alerter, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	store.lookupErr = errors.New("connection reset by peer")
	gw.status["mp-1"] = models.PaymentStatusApproved

	err := svc.Process(context.Background(), push("mp-1"), "corr-1")
	if err == nil {
		t.Fatal("expected lookup failure to be reported to the caller")
	}
	if auditor.has("webhook_unknown_payment") {
		t.Fatalf("lookup failure must not be recorded as unknown payment, got %v", auditor.kinds)
	}
	if !auditor.has("webhook_failed") {
		t.Fatalf("expected webhook_failed audit row, got %v", auditor.kinds)
	}
	if len(alerter.raised) != 1 || alerter.raised[0] != "webhook_processing_error:warning" {
		t.Fatalf("expected one webhook error alert, got %v", alerter.raised)
	}
	if gw.calls != 0 {
		t.Fatalf("provider must not be queried when the lookup fails, calls=%d", gw.calls)
	}
	if len(store.paymentTransitions) != 0 || len(store.orderTransitions) != 0 {
		t.Fatal("no state may be mutated when the lookup fails")
	}
}

func TestTerminalStateIsMonotonic(t *testing.T) {
	svc, store, gw, _, _, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusRejected)
	gw.status["mp-1"] = models.PaymentStatusApproved

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if store.payments["mp-1"].Status != models.PaymentStatusRejected {
		t.Fatalf("terminal status must not change, got %s", store.payments["mp-1"].Status)
	}
}

func TestRefundOnlyFromApproved(t *testing.T) {
	svc, store, gw, _, _, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusApproved)
	gw.status["mp-1"] = models.PaymentStatusRefunded

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if store.payments["mp-1"].Status != models.PaymentStatusRefunded {
		t.Fatalf("expected refunded, got %s", store.payments["mp-1"].Status)
	}
	if store.orders[42] != models.OrderStatusPending {
		t.Fatalf("refund must not touch the order, got %s", store.orders[42])
	}
}

func TestRejectedCancelsPendingOrder(t *testing.T) {
	svc, store, gw, _, _, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	gw.status["mp-1"] = models.PaymentStatusRejected

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if store.orders[42] != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %s", store.orders[42])
	}
}

func TestOrderLedgerDisagreementRaisesCriticalAlert(t *testing.T) {
	svc, store, gw, auditor, alerter, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	store.orders[42] = models.OrderStatusCancelled
	gw.status["mp-1"] = models.PaymentStatusApproved

	if err := svc.Process(context.Background(), push("mp-1"), "corr-1"); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if store.payments["mp-1"].Status != models.PaymentStatusApproved {
		t.Fatal("payment approval must not be unwound")
	}
	if len(alerter.raised) != 1 || alerter.raised[0] != "order_out_of_sync:critical" {
		t.Fatalf("expected one critical out-of-sync alert, got %v", alerter.raised)
	}
	if !auditor.has("order_out_of_sync") {
		t.Fatalf("expected order_out_of_sync audit row, got %v", auditor.kinds)
	}
}

func TestReverificationFailureAcknowledgedAndAlerted(t *testing.T) {
	svc, store, gw, auditor, alerter, _ := setup(t)
	seedPayment(store, "mp-1", 42, models.PaymentStatusPending)
	gw.err = gateway.ErrProviderUnavailable

	err := svc.Process(context.Background(), push("mp-1"), "corr-1")
	if err == nil {
		t.Fatal("expected re-verification failure to be reported to the caller")
	}
	if len(store.paymentTransitions) != 0 {
		t.Fatal("no mutation before successful re-verification")
	}
	if !auditor.has("webhook_failed") {
		t.Fatalf("expected webhook_failed audit row, got %v", auditor.kinds)
	}
	if len(alerter.raised) != 1 {
		t.Fatalf("expected one webhook error alert, got %v", alerter.raised)
	}
}
