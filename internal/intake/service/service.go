package service

import (
	"context"
	"errors"
	"fmt"

	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/intake/core"
	"oxe-delivery/internal/intake/db"
	"oxe-delivery/internal/intake/validation"
	"oxe-delivery/internal/metrics"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"
)

type OrderStore interface {
	GetRestaurant(ctx context.Context, id int64) (*db.Restaurant, error)
	CreateOrder(ctx context.Context, req *models.CreateOrderRequest, deliveryFee float64) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
}

// AuditRecorder is the best-effort audit sink; failures are swallowed inside
// the recorder itself.
type AuditRecorder interface {
	Record(ctx context.Context, paymentID *int64, kind, providerID, detail, correlationID string)
}

type OrderService struct {
	store     OrderStore
	validator *validation.OrderValidator
	audit     AuditRecorder
	logger    *logger.Logger
}

func NewOrderService(store OrderStore, audit AuditRecorder, log *logger.Logger) *OrderService {
	return &OrderService{
		store:     store,
		validator: validation.NewOrderValidator(),
		audit:     audit,
		logger:    log,
	}
}

// CreateOrder validates and persists a checkout submission. A resubmission of
// the same idempotency key resolves to the already-created order instead of
// erroring, so the caller can treat a retried request as success.
func (s *OrderService) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, correlationID string) (*models.CreateOrderResponse, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	restaurant, err := s.store.GetRestaurant(ctx, req.RestaurantID)
	if err != nil {
		return nil, fmt.Errorf("%w: unknown restaurant %d", core.ErrValidation, req.RestaurantID)
	}
	if !restaurant.Active {
		return nil, core.ErrRestaurantInactive
	}

	order, err := s.store.CreateOrder(ctx, req, restaurant.DeliveryFee)
	if err != nil {
		if errors.Is(err, core.ErrDuplicateOrder) {
			return s.resolveReplay(ctx, req, correlationID)
		}
		// Every failure leaves an audit row before surfacing, so a crash
		// between decision and response stays observable.
		s.audit.Record(ctx, nil, audit.KindIntakeFailed, "",
			fmt.Sprintf("order intake failed for restaurant %d: %v", req.RestaurantID, err), correlationID)
		return nil, err
	}

	metrics.OrdersCreatedTotal.Inc()
	s.logger.Info(correlationID, "order_created",
		fmt.Sprintf("Order %d created for restaurant %d, total %.2f", order.ID, order.RestaurantID, order.Total))

	return &models.CreateOrderResponse{
		OrderID:       order.ID,
		Status:        order.Status,
		CorrelationID: correlationID,
	}, nil
}

// resolveReplay turns a lost idempotency race into the winning order.
func (s *OrderService) resolveReplay(ctx context.Context, req *models.CreateOrderRequest, correlationID string) (*models.CreateOrderResponse, error) {
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		s.audit.Record(ctx, nil, audit.KindIntakeFailed, "",
			fmt.Sprintf("duplicate key %s but existing order not readable: %v", req.IdempotencyKey, err), correlationID)
		return nil, err
	}

	metrics.OrdersReplayedTotal.Inc()
	s.logger.Info(correlationID, "order_replayed",
		fmt.Sprintf("Duplicate submission resolved to existing order %d", existing.ID))

	return &models.CreateOrderResponse{
		OrderID:       existing.ID,
		Status:        existing.Status,
		CorrelationID: correlationID,
	}, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, id)
}
