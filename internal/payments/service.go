// Package payments creates and reads PIX charges. Status transitions live in
// the webhook and reconciler packages; this package only ever inserts
// payments in the pending state.
package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/gateway"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

type Store interface {
	GetReusablePending(ctx context.Context, orderID int64, now time.Time) (*models.Payment, error)
	Insert(ctx context.Context, p *models.Payment) error
	GetByID(ctx context.Context, id int64) (*models.Payment, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string)
}

type PaymentService struct {
	store    Store
	gateway  gateway.Gateway
	provider config.ProviderConfig
	audit    AuditRecorder
	logger   *logger.Logger
}

func NewPaymentService(store Store, gw gateway.Gateway, provider config.ProviderConfig, auditor AuditRecorder, log *logger.Logger) *PaymentService {
	return &PaymentService{
		store:    store,
		gateway:  gw,
		provider: provider,
		audit:    auditor,
		logger:   log,
	}
}

// CreateCharge creates a PIX charge for the order, or returns the existing
// still-valid pending charge unchanged so a client retry cannot produce a
// duplicate charge. The provider call itself carries a request-scoped
// idempotency key as a second line of defense.
func (s *PaymentService) CreateCharge(ctx context.Context, req *models.CreatePaymentRequest, correlationID string) (*models.CreatePaymentResponse, error) {
	// The request may pin a provider; only the configured one is available.
	if req.Provider != "" && req.Provider != s.provider.Name {
		return nil, fmt.Errorf("%w: %q", ErrProviderMismatch, req.Provider)
	}

	existing, err := s.store.GetReusablePending(ctx, req.OrderID, time.Now().UTC())
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	if existing != nil {
		s.audit.Record(ctx, &existing.ID, audit.KindChargeReused, existing.ProviderPaymentID,
			fmt.Sprintf("reused pending charge for order %d", req.OrderID), correlationID)
		s.logger.Info(correlationID, "charge_reused",
			fmt.Sprintf("Order %d already has pending payment %d", req.OrderID, existing.ID))
		return chargeResponse(existing, correlationID), nil
	}

	charge, err := s.gateway.CreatePixPayment(ctx, gateway.CreateChargeInput{
		Amount:            req.Amount,
		Description:       req.Description,
		ExternalReference: fmt.Sprintf("%d", req.OrderID),
		IdempotencyKey:    correlationID,
		NotificationURL:   s.provider.NotificationURL,
		Expiration:        s.provider.PixExpiration,
	})
	if err != nil {
		s.audit.Record(ctx, nil, audit.KindChargeFailed, "",
			fmt.Sprintf("charge creation failed for order %d: %v", req.OrderID, err), correlationID)
		return nil, err
	}

	payment := &models.Payment{
		RestaurantID:      req.RestaurantID,
		OrderID:           &req.OrderID,
		Provider:          s.provider.Name,
		ProviderPaymentID: charge.ProviderPaymentID,
		Amount:            req.Amount,
		Status:            charge.Status,
		PixQRCode:         charge.PixQRCode,
		PixQRCodeBase64:   charge.PixQRCodeBase64,
		PixExpirationDate: charge.ExpirationDate,
		RawPayload:        charge.RawPayload,
	}
	if err := s.store.Insert(ctx, payment); err != nil {
		return nil, fmt.Errorf("persist payment: %w", err)
	}

	s.audit.Record(ctx, &payment.ID, audit.KindChargeCreated, payment.ProviderPaymentID,
		fmt.Sprintf("pix charge created for order %d, amount %.2f", req.OrderID, req.Amount), correlationID)
	s.logger.Info(correlationID, "charge_created",
		fmt.Sprintf("Payment %d (provider id %s) created for order %d", payment.ID, payment.ProviderPaymentID, req.OrderID))

	return chargeResponse(payment, correlationID), nil
}

func (s *PaymentService) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	return s.store.GetByID(ctx, id)
}

func chargeResponse(p *models.Payment, correlationID string) *models.CreatePaymentResponse {
	return &models.CreatePaymentResponse{
		PaymentID:         p.ID,
		PixQRCode:         p.PixQRCode,
		PixQRCodeBase64:   p.PixQRCodeBase64,
		PixExpirationDate: p.PixExpirationDate,
		Status:            p.Status,
		CorrelationID:     correlationID,
	}
}
