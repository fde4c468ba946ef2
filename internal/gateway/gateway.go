// Package gateway abstracts the PIX payment provider. Provider vocabulary
// never leaves this package: every other component sees only the five
// canonical statuses.
package gateway

import (
	"context"
	"errors"
	"strings"
	"time"

	"oxe-delivery/pkg/models"
)

var (
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrPaymentNotFound     = errors.New("payment not found at provider")
)

type CreateChargeInput struct {
	Amount            float64
	Description       string
	ExternalReference string
	IdempotencyKey    string
	NotificationURL   string
	Expiration        time.Duration
}

type Charge struct {
	ProviderPaymentID string
	Status            string
	PixQRCode         string
	PixQRCodeBase64   string
	ExpirationDate    *time.Time
	RawPayload        []byte
}

type PaymentStatus struct {
	Status         string // canonical
	ProviderStatus string // provider vocabulary, for the audit trail
	RawPayload     []byte
}

// Gateway is the provider-agnostic charge contract. New providers implement
// this plus an entry in their own status table.
type Gateway interface {
	CreatePixPayment(ctx context.Context, in CreateChargeInput) (*Charge, error)
	GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentStatus, error)
}

// providerStatusMap is the single source of truth mapping Mercado Pago's
// vocabulary onto canonical states. Webhook ingestion and reconciliation
// never re-derive this.
var providerStatusMap = map[string]string{
	"pending":      models.PaymentStatusPending,
	"in_process":   models.PaymentStatusPending,
	"authorized":   models.PaymentStatusPending,
	"approved":     models.PaymentStatusApproved,
	"rejected":     models.PaymentStatusRejected,
	"cancelled":    models.PaymentStatusRejected,
	"refunded":     models.PaymentStatusRefunded,
	"charged_back": models.PaymentStatusRefunded,
	"expired":      models.PaymentStatusExpired,
}

func mapProviderStatus(providerStatus string) string {
	if canonical, ok := providerStatusMap[strings.ToLower(strings.TrimSpace(providerStatus))]; ok {
		return canonical
	}
	return models.PaymentStatusPending
}
