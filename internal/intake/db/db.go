package db

import (
	"context"
	"errors"
	"math"
	"time"

	"oxe-delivery/internal/intake/core"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type OrderDB struct {
	dbPool *pgxpool.Pool
	logger *logger.Logger
}

func NewOrderDB(dbPool *pgxpool.Pool, logger *logger.Logger) *OrderDB {
	return &OrderDB{
		dbPool: dbPool,
		logger: logger,
	}
}

type Restaurant struct {
	ID          int64
	Active      bool
	DeliveryFee float64
}

func (d *OrderDB) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	var r Restaurant
	err := d.dbPool.QueryRow(ctx, `
        SELECT id, active, delivery_fee FROM restaurants WHERE id = $1
    `, id).Scan(&r.ID, &r.Active, &r.DeliveryFee)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateOrder runs the whole intake as one transaction: customer upsert,
// address insert, coupon and loyalty re-validation, order + items insert and
// counter updates. Totals are recomputed server-side; client-sent discounts
// are never trusted. A concurrent submit of the same idempotency key loses
// the unique-index race and surfaces core.ErrDuplicateOrder.
func (d *OrderDB) CreateOrder(ctx context.Context, req *models.CreateOrderRequest, deliveryFee float64) (*models.Order, error) {
	tx, err := d.dbPool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	customerID, firstOrder, err := d.upsertCustomer(ctx, tx, req)
	if err != nil {
		return nil, err
	}

	var addressID *int64
	if req.Address != nil {
		id, err := d.insertAddress(ctx, tx, customerID, req.Address)
		if err != nil {
			return nil, err
		}
		addressID = &id
	}

	subtotal := 0.0
	for _, item := range req.Items {
		subtotal += float64(item.Quantity) * item.UnitPrice
	}
	subtotal = round2(subtotal)

	discount := 0.0
	var couponID *int64
	if req.CouponCode != "" {
		id, value, err := d.applyCoupon(ctx, tx, req.RestaurantID, req.CouponCode, subtotal, firstOrder)
		if err != nil {
			return nil, err
		}
		couponID = &id
		discount += value
	}

	if req.Loyalty != nil {
		if err := d.debitLoyalty(ctx, tx, customerID, req.Loyalty.RedeemStamps); err != nil {
			return nil, err
		}
		discount += req.Loyalty.RewardValue
	}
	discount = round2(math.Min(discount, subtotal+deliveryFee))

	order := &models.Order{
		RestaurantID:   req.RestaurantID,
		CustomerID:     customerID,
		AddressID:      addressID,
		IdempotencyKey: req.IdempotencyKey,
		Subtotal:       subtotal,
		DeliveryFee:    deliveryFee,
		Discount:       discount,
		Total:          round2(subtotal + deliveryFee - discount),
		Status:         models.OrderStatusPending,
	}

	err = tx.QueryRow(ctx, `
        INSERT INTO orders (restaurant_id, customer_id, address_id, idempotency_key,
                            subtotal, delivery_fee, discount, total, status, notes)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id, created_at
    `, order.RestaurantID, order.CustomerID, order.AddressID, order.IdempotencyKey,
		order.Subtotal, order.DeliveryFee, order.Discount, order.Total, order.Status,
		nullable(req.OrderData.Notes)).
		Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrDuplicateOrder
		}
		return nil, err
	}

	if err := d.insertItems(ctx, tx, order.ID, req.Items); err != nil {
		return nil, err
	}

	if couponID != nil {
		_, err = tx.Exec(ctx, `
            UPDATE coupons SET usage_count = usage_count + 1 WHERE id = $1
        `, *couponID)
		if err != nil {
			return nil, err
		}
	}

	if firstOrder {
		_, err = tx.Exec(ctx, `
            UPDATE customers SET first_order_at = now() WHERE id = $1 AND first_order_at IS NULL
        `, customerID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		if isUniqueViolation(err) {
			return nil, core.ErrDuplicateOrder
		}
		return nil, err
	}
	return order, nil
}

func (d *OrderDB) upsertCustomer(ctx context.Context, tx pgx.Tx, req *models.CreateOrderRequest) (int64, bool, error) {
	var customerID int64
	var firstOrderAt *time.Time

	err := tx.QueryRow(ctx, `
        INSERT INTO customers (restaurant_id, name, phone)
        VALUES ($1, $2, $3)
        ON CONFLICT (restaurant_id, phone)
        DO UPDATE SET name = EXCLUDED.name
        RETURNING id, first_order_at
    `, req.RestaurantID, req.Customer.Name, req.Customer.Phone).
		Scan(&customerID, &firstOrderAt)
	if err != nil {
		return 0, false, err
	}
	return customerID, firstOrderAt == nil, nil
}

func (d *OrderDB) insertAddress(ctx context.Context, tx pgx.Tx, customerID int64, addr *models.AddressRequest) (int64, error) {
	var addressID int64
	err := tx.QueryRow(ctx, `
        INSERT INTO addresses (customer_id, street, number, neighborhood, city, complement)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `, customerID, addr.Street, addr.Number, addr.Neighborhood, addr.City, nullable(addr.Complement)).
		Scan(&addressID)
	return addressID, err
}

// applyCoupon re-validates the coupon with the row locked, so the usage cap
// cannot be oversubscribed by concurrent checkouts.
func (d *OrderDB) applyCoupon(ctx context.Context, tx pgx.Tx, restaurantID int64, code string, subtotal float64, firstOrder bool) (int64, float64, error) {
	var (
		id                int64
		discountValue     float64
		discountPercent   *float64
		minOrderValue     float64
		usageCap          *int
		usageCount        int
		firstPurchaseOnly bool
		active            bool
		expiresAt         *time.Time
	)

	err := tx.QueryRow(ctx, `
        SELECT id, discount_value, discount_percent, min_order_value, usage_cap,
               usage_count, first_purchase_only, active, expires_at
        FROM coupons
        WHERE restaurant_id = $1 AND code = $2
        FOR UPDATE
    `, restaurantID, code).Scan(&id, &discountValue, &discountPercent, &minOrderValue,
		&usageCap, &usageCount, &firstPurchaseOnly, &active, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, core.ErrCouponInvalid
		}
		return 0, 0, err
	}

	switch {
	case !active:
		return 0, 0, core.ErrCouponInvalid
	case expiresAt != nil && expiresAt.Before(time.Now().UTC()):
		return 0, 0, core.ErrCouponInvalid
	case usageCap != nil && usageCount >= *usageCap:
		return 0, 0, core.ErrCouponInvalid
	case subtotal < minOrderValue:
		return 0, 0, core.ErrCouponInvalid
	case firstPurchaseOnly && !firstOrder:
		return 0, 0, core.ErrCouponInvalid
	}

	value := discountValue
	if discountPercent != nil && *discountPercent > 0 {
		value = round2(subtotal * *discountPercent / 100)
	}
	return id, value, nil
}

func (d *OrderDB) debitLoyalty(ctx context.Context, tx pgx.Tx, customerID int64, stamps int) error {
	tag, err := tx.Exec(ctx, `
        UPDATE loyalty_balances
        SET stamps = stamps - $1, updated_at = now()
        WHERE customer_id = $2 AND stamps >= $1
    `, stamps, customerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return core.ErrInsufficientStamps
	}
	return nil
}

func (d *OrderDB) insertItems(ctx context.Context, tx pgx.Tx, orderID int64, items []models.OrderItemRequest) error {
	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
            INSERT INTO order_items (order_id, product_id, name, quantity, unit_price)
            VALUES ($1, $2, $3, $4, $5)
        `, orderID, item.ProductID, item.Name, item.Quantity, item.UnitPrice)
	}

	br := tx.SendBatch(ctx, batch)
	for range items {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return err
		}
	}
	return br.Close()
}

func (d *OrderDB) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	return d.scanOrder(d.dbPool.QueryRow(ctx, `
        SELECT id, restaurant_id, customer_id, address_id, idempotency_key,
               subtotal, delivery_fee, discount, total, status, created_at
        FROM orders
        WHERE idempotency_key = $1 AND status <> 'cancelled'
    `, key))
}

func (d *OrderDB) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return d.scanOrder(d.dbPool.QueryRow(ctx, `
        SELECT id, restaurant_id, customer_id, address_id, idempotency_key,
               subtotal, delivery_fee, discount, total, status, created_at
        FROM orders
        WHERE id = $1
    `, id))
}

func (d *OrderDB) scanOrder(row pgx.Row) (*models.Order, error) {
	var order models.Order
	err := row.Scan(&order.ID, &order.RestaurantID, &order.CustomerID, &order.AddressID,
		&order.IdempotencyKey, &order.Subtotal, &order.DeliveryFee, &order.Discount,
		&order.Total, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
