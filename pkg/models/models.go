package models

import (
	"time"
)

// Order statuses. Kitchen workflow advances past "preparing"; this service
// only ever moves pending -> preparing (payment approved) or pending ->
// cancelled (payment rejected).
const (
	OrderStatusPending        = "pending"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusOutForDelivery = "out_for_delivery"
	OrderStatusDelivered      = "delivered"
	OrderStatusCancelled      = "cancelled"
)

// Payment statuses. approved, rejected, refunded and expired are terminal.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusRefunded = "refunded"
	PaymentStatusExpired  = "expired"
)

const (
	AlertSeverityWarning  = "warning"
	AlertSeverityCritical = "critical"
)

const (
	NotificationStatusPending    = "pending"
	NotificationStatusProcessing = "processing"
	NotificationStatusSent       = "sent"
	NotificationStatusFailed     = "failed"
)

type Order struct {
	ID             int64     `json:"id"`
	RestaurantID   int64     `json:"restaurant_id"`
	CustomerID     int64     `json:"customer_id"`
	AddressID      *int64    `json:"address_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key"`
	Subtotal       float64   `json:"subtotal"`
	DeliveryFee    float64   `json:"delivery_fee"`
	Discount       float64   `json:"discount"`
	Total          float64   `json:"total"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

type OrderItem struct {
	ID        int64   `json:"id"`
	OrderID   int64   `json:"order_id"`
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type Payment struct {
	ID                int64      `json:"id"`
	RestaurantID      int64      `json:"restaurant_id"`
	OrderID           *int64     `json:"order_id,omitempty"`
	Provider          string     `json:"provider"`
	ProviderPaymentID string     `json:"provider_payment_id"`
	Amount            float64    `json:"amount"`
	Status            string     `json:"status"`
	PixQRCode         string     `json:"pix_qr_code,omitempty"`
	PixQRCodeBase64   string     `json:"pix_qr_code_base64,omitempty"`
	PixExpirationDate *time.Time `json:"pix_expiration_date,omitempty"`
	RawPayload        []byte     `json:"-"`
	CreatedAt         time.Time  `json:"created_at"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
}

// PaymentEvent is the append-only audit row written for every observed
// provider status and every reconciliation action.
type PaymentEvent struct {
	ID            int64     `json:"id"`
	PaymentID     *int64    `json:"payment_id,omitempty"`
	Kind          string    `json:"kind"`
	ProviderID    string    `json:"provider_id,omitempty"`
	Detail        string    `json:"detail"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type PaymentAlert struct {
	ID            int64     `json:"id"`
	RestaurantID  int64     `json:"restaurant_id"`
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	Resolved      bool      `json:"resolved"`
	Metadata      []byte    `json:"metadata,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}

type ReconciliationRun struct {
	ID            int64     `json:"id"`
	Status        string    `json:"status"`
	Fixed         int       `json:"fixed"`
	Expired       int       `json:"expired"`
	Alerts        int       `json:"alerts"`
	CorrelationID string    `json:"correlation_id"`
	StartedAt     time.Time `json:"started_at"`
}

type NotificationQueueItem struct {
	ID          int64      `json:"id"`
	Channel     string     `json:"channel"`
	Payload     []byte     `json:"payload"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   *string    `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
}

type CreateOrderRequest struct {
	RestaurantID   int64              `json:"restaurant_id"`
	IdempotencyKey string             `json:"idempotency_key"`
	Customer       CustomerRequest    `json:"customer"`
	Address        *AddressRequest    `json:"address,omitempty"`
	OrderData      OrderDataRequest   `json:"order_data"`
	Items          []OrderItemRequest `json:"items"`
	Loyalty        *LoyaltyRequest    `json:"loyalty,omitempty"`
	CouponCode     string             `json:"coupon,omitempty"`
}

type CustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type AddressRequest struct {
	Street       string `json:"street"`
	Number       string `json:"number"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	Complement   string `json:"complement,omitempty"`
}

type OrderDataRequest struct {
	DeliveryFee float64 `json:"delivery_fee"`
	Notes       string  `json:"notes,omitempty"`
}

type OrderItemRequest struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type LoyaltyRequest struct {
	RedeemStamps int     `json:"redeem_stamps"`
	RewardValue  float64 `json:"reward_value"`
}

type CreateOrderResponse struct {
	OrderID       int64  `json:"order_id"`
	Status        string `json:"status"`
	CorrelationID string `json:"correlation_id"`
}

type CreatePaymentRequest struct {
	OrderID      int64   `json:"order_id"`
	RestaurantID int64   `json:"restaurant_id"`
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
	Provider     string  `json:"provider,omitempty"`
}

type CreatePaymentResponse struct {
	PaymentID         int64      `json:"payment_id"`
	PixQRCode         string     `json:"pix_qr_code"`
	PixQRCodeBase64   string     `json:"pix_qr_code_base64"`
	PixExpirationDate *time.Time `json:"pix_expiration_date"`
	Status            string     `json:"status"`
	CorrelationID     string     `json:"correlation_id"`
}

// WebhookPush is the provider's asynchronous notification body. Only the
// payment id is trusted; status is always re-fetched from the provider.
type WebhookPush struct {
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

type KitchenEventMessage struct {
	Event         string    `json:"event"`
	OrderID       int64     `json:"order_id"`
	RestaurantID  int64     `json:"restaurant_id"`
	Total         float64   `json:"total"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}

type AlertMessage struct {
	RestaurantID  int64     `json:"restaurant_id"`
	Type          string    `json:"type"`
	Severity      string    `json:"severity"`
	Message       string    `json:"message"`
	CorrelationID string    `json:"correlation_id"`
	Timestamp     time.Time `json:"timestamp"`
}
