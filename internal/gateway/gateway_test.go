package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

func TestMapProviderStatus(t *testing.T) {
	cases := []struct {
		provider string
		want     string
	}{
		{"pending", models.PaymentStatusPending},
		{"in_process", models.PaymentStatusPending},
		{"authorized", models.PaymentStatusPending},
		{"approved", models.PaymentStatusApproved},
		{"APPROVED", models.PaymentStatusApproved},
		{"rejected", models.PaymentStatusRejected},
		{"cancelled", models.PaymentStatusRejected},
		{"refunded", models.PaymentStatusRefunded},
		{"charged_back", models.PaymentStatusRefunded},
		{"expired", models.PaymentStatusExpired},
		{"something_new", models.PaymentStatusPending},
	}

	for _, c := range cases {
		if got := mapProviderStatus(c.provider); got != c.want {
			t.Errorf("mapProviderStatus(%q) = %q, want %q", c.provider, got, c.want)
		}
	}
}

func newTestClient(t *testing.T, handler http.Handler) (*MercadoPago, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := &config.ProviderConfig{
		BaseURL:     srv.URL,
		AccessToken: "test-token",
		Timeout:     2 * time.Second,
	}
	return NewMercadoPago(cfg, logger.NewLogger("gateway-test")), srv
}

func TestCreatePixPaymentSendsIdempotencyKey(t *testing.T) {
	var gotKey string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Idempotency-Key")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     123456,
			"status": "pending",
			"point_of_interaction": map[string]any{
				"transaction_data": map[string]any{
					"qr_code":        "000201qrpayload",
					"qr_code_base64": "MDAwMjAx",
				},
			},
		})
	}))

	charge, err := client.CreatePixPayment(context.Background(), CreateChargeInput{
		Amount:            25.00,
		Description:       "Order #42",
		ExternalReference: "42",
		IdempotencyKey:    "abc-123",
		Expiration:        30 * time.Minute,
	})
	if err != nil {
		t.Fatalf("CreatePixPayment returned error: %v", err)
	}
	if gotKey != "abc-123" {
		t.Fatalf("expected X-Idempotency-Key abc-123, got %q", gotKey)
	}
	if charge.ProviderPaymentID != "123456" {
		t.Fatalf("unexpected provider payment id: %q", charge.ProviderPaymentID)
	}
	if charge.Status != models.PaymentStatusPending {
		t.Fatalf("unexpected canonical status: %q", charge.Status)
	}
	if charge.PixQRCode != "000201qrpayload" {
		t.Fatalf("unexpected qr code: %q", charge.PixQRCode)
	}
	if charge.ExpirationDate == nil {
		t.Fatal("expected an expiration date")
	}
}

func TestGetPaymentStatusMapsVocabulary(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/987" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{"id": 987, "status": "approved"})
	}))

	st, err := client.GetPaymentStatus(context.Background(), "987")
	if err != nil {
		t.Fatalf("GetPaymentStatus returned error: %v", err)
	}
	if st.Status != models.PaymentStatusApproved {
		t.Fatalf("expected canonical approved, got %q", st.Status)
	}
	if st.ProviderStatus != "approved" {
		t.Fatalf("expected provider vocabulary preserved, got %q", st.ProviderStatus)
	}
}

func TestGetPaymentStatusNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]any{"message": "not found"})
	}))

	_, err := client.GetPaymentStatus(context.Background(), "missing")
	if err != ErrPaymentNotFound {
		t.Fatalf("expected ErrPaymentNotFound, got %v", err)
	}
}
