// Package api exposes the HTTP surface: checkout intake, charge creation,
// webhook ingestion and the cron-triggered sweeps.
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/internal/gateway"
	"oxe-delivery/internal/health"
	"oxe-delivery/internal/idempotency"
	"oxe-delivery/internal/intake/core"
	"oxe-delivery/internal/intake/service"
	"oxe-delivery/internal/notify"
	"oxe-delivery/internal/payments"
	"oxe-delivery/internal/ratelimit"
	"oxe-delivery/internal/reconciler"
	"oxe-delivery/internal/webhook"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"

	"github.com/google/uuid"
)

type Handler struct {
	orders        *service.OrderService
	payments      *payments.PaymentService
	webhooks      *webhook.Service
	reconciler    *reconciler.Service
	health        *health.Monitor
	notifications *notify.Dispatcher
	alerts        *alerts.Service
	ipLimiter     *ratelimit.Limiter
	tenantLimiter *ratelimit.Limiter
	cronSecret    string
	logger        *logger.Logger
}

func NewHandler(
	orders *service.OrderService,
	paymentSvc *payments.PaymentService,
	webhooks *webhook.Service,
	reconcilerSvc *reconciler.Service,
	healthMonitor *health.Monitor,
	notifications *notify.Dispatcher,
	alertSvc *alerts.Service,
	cfg *config.Config,
	log *logger.Logger,
) *Handler {
	return &Handler{
		orders:        orders,
		payments:      paymentSvc,
		webhooks:      webhooks,
		reconciler:    reconcilerSvc,
		health:        healthMonitor,
		notifications: notifications,
		alerts:        alertSvc,
		ipLimiter:     ratelimit.NewLimiter(cfg.RateLimit.PerIPPerMinute, time.Minute),
		tenantLimiter: ratelimit.NewLimiter(cfg.RateLimit.PerTenantPerHour, time.Hour),
		cronSecret:    cfg.HTTP.CronSecret,
		logger:        log,
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders/{id}", h.GetOrder)
	mux.HandleFunc("POST /payments", h.CreatePayment)
	mux.HandleFunc("GET /payments/{id}", h.GetPayment)
	mux.HandleFunc("POST /webhooks/payments", h.PaymentWebhook)
	mux.HandleFunc("POST /internal/reconcile", h.TriggerReconciliation)
	mux.HandleFunc("POST /internal/health", h.TriggerHealthCheck)
	mux.HandleFunc("POST /internal/notifications/dispatch", h.TriggerNotificationSweep)
	mux.HandleFunc("POST /internal/alerts/{id}/resolve", h.ResolveAlert)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)

	if !h.ipLimiter.Allow(clientIP(r)) {
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", correlationID)
		return
	}

	var req models.CreateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error(correlationID, "validation_failed", "Invalid JSON payload", err)
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	if !h.tenantLimiter.Allow(strconv.FormatInt(req.RestaurantID, 10)) {
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", correlationID)
		return
	}

	// Clients that cannot keep state may omit the key; derive it the same
	// way they would.
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = idempotency.DeriveKey(req.Customer.Phone, req.Items, time.Now().UTC())
	}

	h.logger.Debug(correlationID, "order_received", "New order submission received")

	response, err := h.orders.CreateOrder(r.Context(), &req, correlationID)
	if err != nil {
		h.writeOrderError(w, err, correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrOrderNotFound) {
			h.writeError(w, http.StatusNotFound, "ORDER_NOT_FOUND", correlationID)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"order_id":       order.ID,
		"status":         order.Status,
		"total":          order.Total,
		"created_at":     order.CreatedAt,
		"correlation_id": correlationID,
	})
}

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)

	if !h.ipLimiter.Allow(clientIP(r)) {
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", correlationID)
		return
	}

	var req models.CreatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}
	if req.OrderID <= 0 || req.RestaurantID <= 0 || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	response, err := h.payments.CreateCharge(r.Context(), &req, correlationID)
	if err != nil {
		if errors.Is(err, payments.ErrProviderMismatch) {
			h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
			return
		}
		h.logger.Error(correlationID, "charge_failed", "Failed to create PIX charge", err)
		if errors.Is(err, gateway.ErrProviderUnavailable) {
			h.writeError(w, http.StatusGatewayTimeout, "PROVIDER_UNAVAILABLE", correlationID)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, response)
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	payment, err := h.payments.GetPayment(r.Context(), id)
	if err != nil {
		if errors.Is(err, payments.ErrPaymentNotFound) {
			h.writeError(w, http.StatusNotFound, "PAYMENT_NOT_FOUND", correlationID)
			return
		}
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"payment_id":          payment.ID,
		"status":              payment.Status,
		"pix_qr_code":         payment.PixQRCode,
		"pix_expiration_date": payment.PixExpirationDate,
		"correlation_id":      correlationID,
	})
}

// PaymentWebhook always acknowledges well-formed pushes; processing failures
// go to the audit and alert paths, never back to the provider.
func (h *Handler) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)

	if !h.ipLimiter.Allow(clientIP(r)) {
		h.writeError(w, http.StatusTooManyRequests, "RATE_LIMIT", correlationID)
		return
	}

	var push models.WebhookPush
	if err := json.NewDecoder(r.Body).Decode(&push); err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	if err := h.webhooks.Process(r.Context(), &push, correlationID); err != nil {
		h.logger.Error(correlationID, "webhook_processing_failed", "Webhook processed with errors", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"received":       true,
		"correlation_id": correlationID,
	})
}

func (h *Handler) TriggerReconciliation(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)
	if !h.authorizeCron(r) {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", correlationID)
		return
	}

	result, err := h.reconciler.Run(r.Context(), correlationID)
	if err != nil {
		h.logger.Error(correlationID, "reconciliation_failed", "Reconciliation sweep reported errors", err)
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":        err == nil,
		"fixed":          result.Fixed,
		"expired":        result.Expired,
		"alerts":         result.Alerts,
		"correlation_id": correlationID,
	})
}

func (h *Handler) TriggerHealthCheck(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)
	if !h.authorizeCron(r) {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", correlationID)
		return
	}

	report, err := h.health.Check(r.Context(), correlationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *Handler) TriggerNotificationSweep(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)
	if !h.authorizeCron(r) {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", correlationID)
		return
	}

	result, err := h.notifications.Sweep(r.Context(), correlationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"processed":      result.Processed,
		"sent":           result.Sent,
		"failed":         result.Failed,
		"correlation_id": correlationID,
	})
}

// ResolveAlert marks an alert handled so the dedup window stops suppressing
// fresh alerts of the same kind for that restaurant.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	correlationID := correlationID(r)
	if !h.authorizeCron(r) {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", correlationID)
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
		return
	}

	resolved, err := h.alerts.Resolve(r.Context(), id, correlationID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
		return
	}
	if !resolved {
		h.writeError(w, http.StatusNotFound, "ALERT_NOT_FOUND", correlationID)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"resolved":       true,
		"alert_id":       id,
		"correlation_id": correlationID,
	})
}

func (h *Handler) writeOrderError(w http.ResponseWriter, err error, correlationID string) {
	switch {
	case errors.Is(err, core.ErrRestaurantInactive):
		h.writeError(w, http.StatusBadRequest, "RESTAURANT_INACTIVE", correlationID)
	case errors.Is(err, core.ErrValidation),
		errors.Is(err, core.ErrCouponInvalid),
		errors.Is(err, core.ErrInsufficientStamps):
		h.logger.Warn(correlationID, "order_rejected", err.Error())
		h.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", correlationID)
	default:
		h.logger.Error(correlationID, "order_processing_failed", "Failed to create order", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", correlationID)
	}
}

func (h *Handler) authorizeCron(r *http.Request) bool {
	return h.cronSecret != "" && r.Header.Get("X-Cron-Secret") == h.cronSecret
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, correlationID string) {
	h.writeJSON(w, status, map[string]string{
		"error":          code,
		"correlation_id": correlationID,
	})
}

func correlationID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.New().String()
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
