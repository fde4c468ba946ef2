package core

import "errors"

var (
	ErrValidation         = errors.New("validation error")
	ErrRestaurantInactive = errors.New("restaurant is not active")
	ErrCouponInvalid      = errors.New("coupon cannot be applied")
	ErrInsufficientStamps = errors.New("insufficient loyalty stamps")
	ErrOrderNotFound      = errors.New("order not found")
	ErrDuplicateOrder     = errors.New("order already exists for idempotency key")
)

const (
	MinCustomerNameLen = 1
	MaxCustomerNameLen = 100
	MinPhoneLen        = 8
	MaxPhoneLen        = 20
	MinItems           = 1
	MaxItems           = 50
	MinItemQuantity    = 1
	MaxItemQuantity    = 50
	MinItemPrice       = 0.01
	MaxItemPrice       = 9999.99
)
