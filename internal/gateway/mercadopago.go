package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"oxe-delivery/internal/metrics"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
)

const (
	createPaymentPath = "/v1/payments"
	paymentStatusPath = "/v1/payments/%s"
)

type MercadoPago struct {
	baseURL     string
	accessToken string
	client      *http.Client
	logger      *logger.Logger
}

func NewMercadoPago(cfg *config.ProviderConfig, log *logger.Logger) *MercadoPago {
	return &MercadoPago{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		client:      &http.Client{Timeout: cfg.Timeout},
		logger:      log,
	}
}

type mpCreateRequest struct {
	TransactionAmount float64 `json:"transaction_amount"`
	Description       string  `json:"description"`
	PaymentMethodID   string  `json:"payment_method_id"`
	ExternalReference string  `json:"external_reference"`
	NotificationURL   string  `json:"notification_url,omitempty"`
	DateOfExpiration  string  `json:"date_of_expiration,omitempty"`
	Payer             mpPayer `json:"payer"`
}

type mpPayer struct {
	Email string `json:"email"`
}

type mpPaymentResponse struct {
	ID                 int64  `json:"id"`
	Status             string `json:"status"`
	StatusDetail       string `json:"status_detail"`
	DateOfExpiration   string `json:"date_of_expiration"`
	PointOfInteraction struct {
		TransactionData struct {
			QRCode       string `json:"qr_code"`
			QRCodeBase64 string `json:"qr_code_base64"`
		} `json:"transaction_data"`
	} `json:"point_of_interaction"`
	Message string `json:"message"`
}

func (m *MercadoPago) CreatePixPayment(ctx context.Context, in CreateChargeInput) (*Charge, error) {
	expiration := time.Now().UTC().Add(in.Expiration)
	payload := mpCreateRequest{
		TransactionAmount: in.Amount,
		Description:       in.Description,
		PaymentMethodID:   "pix",
		ExternalReference: in.ExternalReference,
		NotificationURL:   in.NotificationURL,
		DateOfExpiration:  expiration.Format("2006-01-02T15:04:05.000-07:00"),
		Payer:             mpPayer{Email: "checkout@oxe-delivery.local"},
	}

	status, body, err := m.doJSON(ctx, http.MethodPost, m.baseURL+createPaymentPath, in.IdempotencyKey, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	var out mpPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid provider response: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = fmt.Sprintf("provider create failed with status %d", status)
		}
		if status >= http.StatusInternalServerError {
			return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, msg)
		}
		return nil, fmt.Errorf("provider rejected charge: %s", msg)
	}
	if out.ID == 0 {
		return nil, fmt.Errorf("provider create response missing payment id")
	}

	charge := &Charge{
		ProviderPaymentID: fmt.Sprintf("%d", out.ID),
		Status:            mapProviderStatus(out.Status),
		PixQRCode:         out.PointOfInteraction.TransactionData.QRCode,
		PixQRCodeBase64:   out.PointOfInteraction.TransactionData.QRCodeBase64,
		RawPayload:        body,
	}
	if t, err := parseProviderTime(out.DateOfExpiration); err == nil {
		charge.ExpirationDate = &t
	} else {
		charge.ExpirationDate = &expiration
	}
	return charge, nil
}

func (m *MercadoPago) GetPaymentStatus(ctx context.Context, providerPaymentID string) (*PaymentStatus, error) {
	endpoint := m.baseURL + fmt.Sprintf(paymentStatusPath, providerPaymentID)

	status, body, err := m.doJSON(ctx, http.MethodGet, endpoint, "", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if status == http.StatusNotFound {
		return nil, ErrPaymentNotFound
	}

	var out mpPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("invalid provider status response: %w", err)
	}
	if status != http.StatusOK {
		msg := strings.TrimSpace(out.Message)
		if msg == "" {
			msg = fmt.Sprintf("provider status failed with status %d", status)
		}
		return nil, fmt.Errorf("%w: %s", ErrProviderUnavailable, msg)
	}

	return &PaymentStatus{
		Status:         mapProviderStatus(out.Status),
		ProviderStatus: out.Status,
		RawPayload:     body,
	}, nil
}

func (m *MercadoPago) doJSON(ctx context.Context, method, endpoint, idempotencyKey string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+m.accessToken)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	metrics.ProviderRequestDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func parseProviderTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	return time.Parse("2006-01-02T15:04:05.000-07:00", value)
}
