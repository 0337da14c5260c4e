package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for simple not-found / misuse cases.
var (
	ErrBookingNotFound = errors.New("booking not found")
	ErrTourNotFound    = errors.New("tour not found")
	ErrHoldNotFound    = errors.New("hold not found")
	ErrHoldExpired     = errors.New("hold has expired, seats have been released")
	ErrNotOwner        = errors.New("booking belongs to another user")
)

// UnavailableError is returned when a hold request exceeds remaining
// capacity. Recoverable: the caller re-queries and may reduce guest count.
type UnavailableError struct {
	TourID         uuid.UUID
	Date           time.Time
	Requested      int
	AvailableSpots int
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("not enough spots for tour %s on %s: requested %d, available %d",
		e.TourID, e.Date.Format(DateFormat), e.Requested, e.AvailableSpots)
}

// CapacityExceededError is the ledger-level invariant guard: a delta or
// capacity change that would push held+booked past capacity. On the hold
// path it is mapped to UnavailableError before it reaches a caller.
type CapacityExceededError struct {
	TourID    uuid.UUID
	Date      time.Time
	Available int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("capacity exceeded for tour %s on %s (available: %d)",
		e.TourID, e.Date.Format(DateFormat), e.Available)
}

// Promo rejection reasons.
const (
	PromoReasonNotFound     = "not_found"
	PromoReasonInactive     = "inactive"
	PromoReasonNotStarted   = "not_started"
	PromoReasonExpired      = "expired"
	PromoReasonBelowMinimum = "below_minimum"
)

// InvalidPromoError is returned when a promo code cannot be applied.
type InvalidPromoError struct {
	Code   string
	Reason string
}

func (e *InvalidPromoError) Error() string {
	return fmt.Sprintf("promo code %q rejected: %s", e.Code, e.Reason)
}

// InvalidTransitionError indicates a state-machine misuse. This is a
// programming or integration error, logged and surfaced as a failure.
type InvalidTransitionError struct {
	BookingID uuid.UUID
	From      BookingStatus
	To        BookingStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("illegal booking transition %s -> %s (booking %s)", e.From, e.To, e.BookingID)
}

// PaymentGatewayError wraps a gateway failure or timeout. For state-machine
// purposes a timeout is treated the same as a failure.
type PaymentGatewayError struct {
	Timeout bool
	Err     error
}

func (e *PaymentGatewayError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("payment gateway timeout: %v", e.Err)
	}
	return fmt.Sprintf("payment gateway error: %v", e.Err)
}

func (e *PaymentGatewayError) Unwrap() error {
	return e.Err
}
