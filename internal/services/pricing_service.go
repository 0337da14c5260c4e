package services

import (
	"fmt"
	"time"

	"github.com/tourday/booking-backend/internal/models"
)

// PricingService computes price breakdowns. It is deterministic and free of
// side effects: the same inputs always produce the same breakdown, and every
// caller (tour page, cart, checkout) goes through it so discount math never
// drifts between screens.
//
// All arithmetic is in integer minor-currency units; discounts are floored
// before subtracting.
type PricingService struct {
	fixedDeposit int64
	currency     string
}

// NewPricingService creates a new PricingService
func NewPricingService(fixedDeposit int64, currency string) *PricingService {
	return &PricingService{fixedDeposit: fixedDeposit, currency: currency}
}

// UnitPrice resolves the effective per-unit price: a per-date override wins;
// otherwise the site-discounted base price, or the original price when the
// site discount is not applied.
func (s *PricingService) UnitPrice(tour *models.Tour, avail *models.AvailabilityRecord, applyDiscount bool) int64 {
	if avail != nil && avail.PriceOverride != nil {
		return *avail.PriceOverride
	}
	if !applyDiscount && tour.OriginalPrice != nil {
		return *tour.OriginalPrice
	}
	return tour.BasePrice
}

// ComputePrice builds the full price breakdown for a booking attempt.
//
// If the promo is inactive or outside its activity window the breakdown is
// computed without discount and an *models.InvalidPromoError is returned
// alongside it; the caller decides whether to proceed without the discount
// or reject the request.
func (s *PricingService) ComputePrice(
	tour *models.Tour,
	avail *models.AvailabilityRecord,
	guestCount int,
	applyDiscount bool,
	promo *models.PromoCode,
	method models.PaymentMethod,
	now time.Time,
) (models.PriceBreakdown, error) {
	if guestCount < 1 {
		return models.PriceBreakdown{}, fmt.Errorf("guest count must be at least 1, got %d", guestCount)
	}

	unitPrice := s.UnitPrice(tour, avail, applyDiscount)

	subtotal := unitPrice
	if tour.PriceType == models.PricePerPerson {
		subtotal = unitPrice * int64(guestCount)
	}

	breakdown := models.PriceBreakdown{
		UnitPrice:     unitPrice,
		GuestCount:    guestCount,
		Subtotal:      subtotal,
		PaymentMethod: method,
		Currency:      s.currency,
	}

	var promoErr error
	if promo != nil {
		discount, err := promoDiscount(promo, subtotal, now)
		if err != nil {
			promoErr = err
		} else {
			breakdown.PromoCode = &promo.Code
			breakdown.DiscountAmount = discount
		}
	}

	breakdown.Total = subtotal - breakdown.DiscountAmount

	if method == models.PaymentMethodDeposit {
		if s.fixedDeposit > breakdown.Total {
			// Deposit must never exceed the total; fall back to full payment.
			breakdown.PaymentMethod = models.PaymentMethodFull
		} else {
			deposit := s.fixedDeposit
			balance := breakdown.Total - deposit
			breakdown.DepositAmount = &deposit
			breakdown.BalanceAmount = &balance
		}
	}

	return breakdown, promoErr
}

// promoDiscount computes the discount a promo grants on a subtotal, floored
// to the minor unit and capped by the promo's MaxDiscount and the subtotal.
func promoDiscount(promo *models.PromoCode, subtotal int64, now time.Time) (int64, error) {
	if !promo.IsActive {
		return 0, &models.InvalidPromoError{Code: promo.Code, Reason: models.PromoReasonInactive}
	}
	if !promo.IsWithinWindow(now) {
		reason := models.PromoReasonExpired
		if now.Before(promo.ValidFrom) {
			reason = models.PromoReasonNotStarted
		}
		return 0, &models.InvalidPromoError{Code: promo.Code, Reason: reason}
	}

	var discount int64
	switch promo.DiscountType {
	case models.DiscountPercentage:
		// Integer division floors, per the rounding policy.
		discount = subtotal * promo.DiscountValue / 100
	case models.DiscountFixed:
		discount = promo.DiscountValue
	default:
		return 0, fmt.Errorf("unknown discount type: %s", promo.DiscountType)
	}

	if promo.MaxDiscount != nil && discount > *promo.MaxDiscount {
		discount = *promo.MaxDiscount
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}
