package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/tourday/booking-backend/internal/models"
)

// PromoStore is the read side of promo code reference data.
type PromoStore interface {
	GetByCode(code string) (*models.PromoCode, error)
}

// PromoService validates promo codes against their activity window and
// minimum-order constraints. It does not mutate usage counters; redemption
// limits are a storage-layer extension.
type PromoService struct {
	promos PromoStore
}

// NewPromoService creates a new PromoService
func NewPromoService(promos PromoStore) *PromoService {
	return &PromoService{promos: promos}
}

// Validate checks a promo code against a subtotal at a point in time and
// returns the discount rule. Rejections are *models.InvalidPromoError with a
// machine-readable reason.
func (s *PromoService) Validate(code string, subtotal int64, now time.Time) (*models.PromoCode, error) {
	promo, err := s.promos.GetByCode(code)
	if err != nil {
		return nil, fmt.Errorf("failed to look up promo code: %w", err)
	}
	if promo == nil {
		return nil, &models.InvalidPromoError{Code: code, Reason: models.PromoReasonNotFound}
	}

	if !promo.IsActive {
		return nil, &models.InvalidPromoError{Code: code, Reason: models.PromoReasonInactive}
	}
	if now.Before(promo.ValidFrom) {
		return nil, &models.InvalidPromoError{Code: code, Reason: models.PromoReasonNotStarted}
	}
	if now.After(promo.ValidUntil) {
		return nil, &models.InvalidPromoError{Code: code, Reason: models.PromoReasonExpired}
	}
	if promo.MinSubtotal != nil && subtotal < *promo.MinSubtotal {
		return nil, &models.InvalidPromoError{Code: code, Reason: models.PromoReasonBelowMinimum}
	}

	return promo, nil
}

// Quote validates a code and prices the discount it would grant on a
// subtotal. Invalid codes yield a response with Valid=false and the reason
// instead of an error, for the pre-checkout validation endpoint.
func (s *PromoService) Quote(code string, subtotal int64, now time.Time) (*models.ValidatePromoResponse, error) {
	promo, err := s.Validate(code, subtotal, now)
	if err != nil {
		var invalid *models.InvalidPromoError
		if errors.As(err, &invalid) {
			return &models.ValidatePromoResponse{
				Valid:  false,
				Code:   code,
				Total:  subtotal,
				Reason: invalid.Reason,
			}, nil
		}
		return nil, err
	}

	discount, err := promoDiscount(promo, subtotal, now)
	if err != nil {
		return nil, err
	}

	return &models.ValidatePromoResponse{
		Valid:          true,
		Code:           promo.Code,
		DiscountAmount: discount,
		Total:          subtotal - discount,
	}, nil
}
