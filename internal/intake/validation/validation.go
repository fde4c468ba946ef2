package validation

import (
	"fmt"
	"unicode/utf8"

	"oxe-delivery/internal/intake/core"
	"oxe-delivery/pkg/models"
)

type OrderValidator struct{}

func NewOrderValidator() *OrderValidator {
	return &OrderValidator{}
}

func (v *OrderValidator) Validate(req *models.CreateOrderRequest) error {
	if req.RestaurantID <= 0 {
		return fmt.Errorf("%w: restaurant_id is required", core.ErrValidation)
	}
	if req.IdempotencyKey == "" {
		return fmt.Errorf("%w: idempotency_key is required", core.ErrValidation)
	}

	if err := v.validateCustomer(&req.Customer); err != nil {
		return err
	}

	if err := v.validateItems(req.Items); err != nil {
		return err
	}

	if req.OrderData.DeliveryFee < 0 {
		return fmt.Errorf("%w: delivery_fee must not be negative", core.ErrValidation)
	}

	if req.Loyalty != nil {
		if req.Loyalty.RedeemStamps <= 0 {
			return fmt.Errorf("%w: loyalty redeem_stamps must be positive", core.ErrValidation)
		}
		if req.Loyalty.RewardValue < 0 {
			return fmt.Errorf("%w: loyalty reward_value must not be negative", core.ErrValidation)
		}
	}

	return nil
}

func (v *OrderValidator) validateCustomer(customer *models.CustomerRequest) error {
	nameLen := utf8.RuneCountInString(customer.Name)
	if nameLen < core.MinCustomerNameLen || nameLen > core.MaxCustomerNameLen {
		return fmt.Errorf("%w: customer name must be between %d and %d characters",
			core.ErrValidation, core.MinCustomerNameLen, core.MaxCustomerNameLen)
	}

	phoneLen := len(customer.Phone)
	if phoneLen < core.MinPhoneLen || phoneLen > core.MaxPhoneLen {
		return fmt.Errorf("%w: customer phone must be between %d and %d characters",
			core.ErrValidation, core.MinPhoneLen, core.MaxPhoneLen)
	}
	for _, r := range customer.Phone {
		if (r < '0' || r > '9') && r != '+' {
			return fmt.Errorf("%w: customer phone contains invalid characters", core.ErrValidation)
		}
	}

	return nil
}

func (v *OrderValidator) validateItems(items []models.OrderItemRequest) error {
	if len(items) < core.MinItems || len(items) > core.MaxItems {
		return fmt.Errorf("%w: items must contain between %d and %d entries",
			core.ErrValidation, core.MinItems, core.MaxItems)
	}

	for i, item := range items {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: item %d: product_id is required", core.ErrValidation, i+1)
		}
		if item.Quantity < core.MinItemQuantity || item.Quantity > core.MaxItemQuantity {
			return fmt.Errorf("%w: item %d: quantity must be between %d and %d",
				core.ErrValidation, i+1, core.MinItemQuantity, core.MaxItemQuantity)
		}
		if item.UnitPrice < core.MinItemPrice || item.UnitPrice > core.MaxItemPrice {
			return fmt.Errorf("%w: item %d: unit_price must be between %.2f and %.2f",
				core.ErrValidation, i+1, core.MinItemPrice, core.MaxItemPrice)
		}
	}

	return nil
}
