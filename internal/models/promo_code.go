package models

import (
	"time"

	"github.com/google/uuid"
)

// DiscountType represents how a promo code discounts the subtotal
// Matches PostgreSQL ENUM: discount_type
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage" // DiscountValue is a percent of subtotal
	DiscountFixed      DiscountType = "fixed"      // DiscountValue is an amount in minor units
)

// PromoCode is reference-data for a checkout discount rule. Read-only for
// this core; redemption counting belongs to the storage layer.
type PromoCode struct {
	ID            uuid.UUID    `json:"id" db:"id"`
	Code          string       `json:"code" db:"code"`
	DiscountType  DiscountType `json:"discount_type" db:"discount_type"`
	DiscountValue int64        `json:"discount_value" db:"discount_value"`
	MaxDiscount   *int64       `json:"max_discount,omitempty" db:"max_discount"`
	MinSubtotal   *int64       `json:"min_subtotal,omitempty" db:"min_subtotal"`
	ValidFrom     time.Time    `json:"valid_from" db:"valid_from"`
	ValidUntil    time.Time    `json:"valid_until" db:"valid_until"`
	IsActive      bool         `json:"is_active" db:"is_active"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// IsWithinWindow checks if the code's activity window covers the given time.
func (p *PromoCode) IsWithinWindow(now time.Time) bool {
	return !now.Before(p.ValidFrom) && !now.After(p.ValidUntil)
}

// ValidatePromoRequest checks a code against a cart subtotal before checkout.
type ValidatePromoRequest struct {
	Code     string `json:"code" binding:"required"`
	Subtotal int64  `json:"subtotal" binding:"required,min=1"`
}

// ValidatePromoResponse reports the discount the code would grant.
type ValidatePromoResponse struct {
	Valid          bool   `json:"valid"`
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Total          int64  `json:"total"`
	Reason         string `json:"reason,omitempty"`
}
