package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"oxe-delivery/internal/gateway"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

type fakePaymentStore struct {
	pending  *models.Payment
	inserted []*models.Payment
}

func (f *fakePaymentStore) GetReusablePending(ctx context.Context, orderID int64, now time.Time) (*models.Payment, error) {
	if f.pending == nil {
		return nil, ErrPaymentNotFound
	}
	return f.pending, nil
}

func (f *fakePaymentStore) Insert(ctx context.Context, p *models.Payment) error {
	p.ID = int64(len(f.inserted) + 1)
	f.inserted = append(f.inserted, p)
	return nil
}

func (f *fakePaymentStore) GetByID(ctx context.Context, id int64) (*models.Payment, error) {
	return f.pending, nil
}

type fakeGateway struct {
	charge  *gateway.Charge
	err     error
	created int
	lastKey string
}

func (f *fakeGateway) CreatePixPayment(ctx context.Context, in gateway.CreateChargeInput) (*gateway.Charge, error) {
	f.created++
	f.lastKey = in.IdempotencyKey
	if f.err != nil {
		return nil, f.err
	}
	return f.charge, nil
}

func (f *fakeGateway) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*gateway.PaymentStatus, error) {
	return nil, gateway.ErrPaymentNotFound
}

type noopAudit struct{}

func (noopAudit) Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string) {
}

func providerCfg() config.ProviderConfig {
	return config.ProviderConfig{
		Name:          "mercadopago",
		PixExpiration: 30 * time.Minute,
	}
}

func TestCreateChargePersistsPayment(t *testing.T) {
	exp := time.Now().UTC().Add(30 * time.Minute)
	store := &fakePaymentStore{}
	gw := &fakeGateway{charge: &gateway.Charge{
		ProviderPaymentID: "mp-1",
		Status:            models.PaymentStatusPending,
		PixQRCode:         "000201qr",
		ExpirationDate:    &exp,
	}}
	svc := NewPaymentService(store, gw, providerCfg(), noopAudit{}, logger.NewLogger("payments-test"))

	resp, err := svc.CreateCharge(context.Background(), &models.CreatePaymentRequest{
		OrderID: 42, RestaurantID: 1, Amount: 25.00, Description: "Order #42",
	}, "corr-1")
	if err != nil {
		t.Fatalf("CreateCharge returned error: %v", err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected 1 payment row, got %d", len(store.inserted))
	}
	if store.inserted[0].ProviderPaymentID != "mp-1" {
		t.Fatalf("unexpected provider id %q", store.inserted[0].ProviderPaymentID)
	}
	if resp.PixQRCode != "000201qr" {
		t.Fatalf("unexpected qr code %q", resp.PixQRCode)
	}
	if gw.lastKey != "corr-1" {
		t.Fatalf("expected request-scoped idempotency key, got %q", gw.lastKey)
	}
}

func TestCreateChargeReusesPending(t *testing.T) {
	exp := time.Now().UTC().Add(10 * time.Minute)
	orderID := int64(42)
	store := &fakePaymentStore{pending: &models.Payment{
		ID: 9, OrderID: &orderID, ProviderPaymentID: "mp-old",
		Status: models.PaymentStatusPending, PixQRCode: "oldqr", PixExpirationDate: &exp,
	}}
	gw := &fakeGateway{}
	svc := NewPaymentService(store, gw, providerCfg(), noopAudit{}, logger.NewLogger("payments-test"))

	resp, err := svc.CreateCharge(context.Background(), &models.CreatePaymentRequest{
		OrderID: orderID, RestaurantID: 1, Amount: 25.00,
	}, "corr-2")
	if err != nil {
		t.Fatalf("CreateCharge returned error: %v", err)
	}
	if gw.created != 0 {
		t.Fatal("provider must not be called when a pending charge exists")
	}
	if resp.PaymentID != 9 || resp.PixQRCode != "oldqr" {
		t.Fatalf("expected existing charge returned unchanged, got %+v", resp)
	}
}

func TestCreateChargeRejectsUnconfiguredProvider(t *testing.T) {
	store := &fakePaymentStore{}
	gw := &fakeGateway{}
	svc := NewPaymentService(store, gw, providerCfg(), noopAudit{}, logger.NewLogger("payments-test"))

	_, err := svc.CreateCharge(context.Background(), &models.CreatePaymentRequest{
		OrderID: 42, RestaurantID: 1, Amount: 25.00, Provider: "stripe",
	}, "corr-4")
	if !errors.Is(err, ErrProviderMismatch) {
		t.Fatalf("expected ErrProviderMismatch, got %v", err)
	}
	if gw.created != 0 || len(store.inserted) != 0 {
		t.Fatal("no provider call or payment row for a mismatched provider")
	}
}

func TestCreateChargeAcceptsMatchingProvider(t *testing.T) {
	store := &fakePaymentStore{}
	gw := &fakeGateway{charge: &gateway.Charge{
		ProviderPaymentID: "mp-2", Status: models.PaymentStatusPending,
	}}
	svc := NewPaymentService(store, gw, providerCfg(), noopAudit{}, logger.NewLogger("payments-test"))

	if _, err := svc.CreateCharge(context.Background(), &models.CreatePaymentRequest{
		OrderID: 42, RestaurantID: 1, Amount: 25.00, Provider: "mercadopago",
	}, "corr-5"); err != nil {
		t.Fatalf("CreateCharge returned error: %v", err)
	}
	if gw.created != 1 {
		t.Fatalf("expected one provider call, got %d", gw.created)
	}
}

func TestCreateChargeSurfacesProviderError(t *testing.T) {
	store := &fakePaymentStore{}
	gw := &fakeGateway{err: gateway.ErrProviderUnavailable}
	svc := NewPaymentService(store, gw, providerCfg(), noopAudit{}, logger.NewLogger("payments-test"))

	_, err := svc.CreateCharge(context.Background(), &models.CreatePaymentRequest{
		OrderID: 42, RestaurantID: 1, Amount: 25.00,
	}, "corr-3")
	if err == nil {
		t.Fatal("expected provider error to surface")
	}
	if len(store.inserted) != 0 {
		t.Fatal("no payment row may exist when the provider call failed")
	}
}
