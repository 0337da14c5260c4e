package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUSES & STATE MACHINE
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
// Matches PostgreSQL ENUM: booking_status
type BookingStatus string

const (
	BookingStatusPending         BookingStatus = "pending"          // created, hold active
	BookingStatusAwaitingPayment BookingStatus = "awaiting_payment" // payment intent created
	BookingStatusConfirmed       BookingStatus = "confirmed"        // payment succeeded, seats booked
	BookingStatusCancelled       BookingStatus = "cancelled"        // explicit cancel or payment failure
	BookingStatusExpired         BookingStatus = "expired"          // hold TTL elapsed with no payment
	BookingStatusRefunded        BookingStatus = "refunded"         // cancelled after confirmation, refund eligible
)

// legalTransitions is the booking state machine. Any transition not listed
// here fails with InvalidTransitionError and must not mutate state.
var legalTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:         {BookingStatusAwaitingPayment, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusAwaitingPayment: {BookingStatusConfirmed, BookingStatusCancelled, BookingStatusExpired},
	BookingStatusConfirmed:       {BookingStatusCancelled, BookingStatusRefunded},
	BookingStatusCancelled:       {},
	BookingStatusExpired:         {},
	BookingStatusRefunded:        {},
}

// CanTransition reports whether from -> to is a legal booking transition.
func CanTransition(from, to BookingStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions.
func (s BookingStatus) IsTerminal() bool {
	return len(legalTransitions[s]) == 0
}

// PaymentMethod represents the deposit/full payment split choice
// Matches PostgreSQL ENUM: payment_method
type PaymentMethod string

const (
	PaymentMethodDeposit PaymentMethod = "deposit" // fixed deposit online, balance on site
	PaymentMethodFull    PaymentMethod = "full"
)

// ============================================================================
// BOOKING MODEL (bookings table)
// ============================================================================

// Booking represents a customer's reservation for a tour on a date. Prices
// are snapshotted at creation and never re-read from the tour or ledger.
// Status is mutated only through the booking service's guarded transitions.
type Booking struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Reference  string    `json:"reference" db:"reference"` // short human-readable code
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	TourID     uuid.UUID `json:"tour_id" db:"tour_id"`
	Date       time.Time `json:"date" db:"date"`
	GuestCount int       `json:"guest_count" db:"guest_count"`

	// Price snapshot (minor units, computed once at creation)
	UnitPrice      int64   `json:"unit_price" db:"unit_price"`
	Subtotal       int64   `json:"subtotal" db:"subtotal"`
	PromoCode      *string `json:"promo_code,omitempty" db:"promo_code"`
	DiscountAmount int64   `json:"discount_amount" db:"discount_amount"`
	TotalPrice     int64   `json:"total_price" db:"total_price"`
	Currency       string  `json:"currency" db:"currency"`

	PaymentMethod PaymentMethod `json:"payment_method" db:"payment_method"`
	DepositAmount *int64        `json:"deposit_amount,omitempty" db:"deposit_amount"`
	BalanceAmount *int64        `json:"balance_amount,omitempty" db:"balance_amount"`

	Status             BookingStatus `json:"status" db:"status"`
	HoldID             *uuid.UUID    `json:"hold_id,omitempty" db:"hold_id"`
	PaymentIntentID    *string       `json:"payment_intent_id,omitempty" db:"payment_intent_id"`
	CancellationReason *string       `json:"cancellation_reason,omitempty" db:"cancellation_reason"`

	// Transition timestamps
	PaymentInitiatedAt *time.Time `json:"payment_initiated_at,omitempty" db:"payment_initiated_at"`
	ConfirmedAt        *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty" db:"cancelled_at"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty" db:"expired_at"`
	RefundedAt         *time.Time `json:"refunded_at,omitempty" db:"refunded_at"`
	CreatedAt          time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at" db:"updated_at"`
}

// CanInitiatePayment checks if a payment intent may be created.
func (b *Booking) CanInitiatePayment() bool {
	return b.Status == BookingStatusPending
}

// SeatsCommitted reports whether the booking's seats count as booked (not held).
func (b *Booking) SeatsCommitted() bool {
	return b.Status == BookingStatusConfirmed
}

// ============================================================================
// PRICE BREAKDOWN
// ============================================================================

// PriceBreakdown is the server-calculated pricing result returned to every
// caller (tour page, cart, checkout) so discount math never drifts.
type PriceBreakdown struct {
	UnitPrice      int64         `json:"unit_price"`
	GuestCount     int           `json:"guest_count"`
	Subtotal       int64         `json:"subtotal"`
	PromoCode      *string       `json:"promo_code,omitempty"`
	DiscountAmount int64         `json:"discount_amount"`
	Total          int64         `json:"total"`
	PaymentMethod  PaymentMethod `json:"payment_method"`
	DepositAmount  *int64        `json:"deposit_amount,omitempty"`
	BalanceAmount  *int64        `json:"balance_amount,omitempty"`
	Currency       string        `json:"currency"`
}

// ============================================================================
// REQUEST/RESPONSE STRUCTS
// ============================================================================

// CreateBookingRequest is the request to create a booking.
type CreateBookingRequest struct {
	TourID        string        `json:"tour_id" binding:"required,uuid"`
	Date          string        `json:"date" binding:"required"` // "2026-09-15"
	GuestCount    int           `json:"guest_count" binding:"required,min=1"`
	PaymentMethod PaymentMethod `json:"payment_method" binding:"required,oneof=deposit full"`
	PromoCode     *string       `json:"promo_code,omitempty"`
}

// CreateBookingResponse is returned after a booking is created.
type CreateBookingResponse struct {
	BookingID      uuid.UUID      `json:"booking_id"`
	Reference      string         `json:"reference"`
	Status         BookingStatus  `json:"status"`
	PriceBreakdown PriceBreakdown `json:"price_breakdown"`
	HoldExpiresAt  time.Time      `json:"hold_expires_at"`
}

// CheckAvailabilityResponse answers an availability query.
type CheckAvailabilityResponse struct {
	Available      bool   `json:"available"`
	AvailableSpots int    `json:"available_spots"`
	UnitPrice      int64  `json:"unit_price"`
	Currency       string `json:"currency"`
}

// InitiatePaymentResponse is returned when a payment intent is created.
type InitiatePaymentResponse struct {
	BookingID  uuid.UUID     `json:"booking_id"`
	Status     BookingStatus `json:"status"`
	IntentID   string        `json:"intent_id"`
	PaymentURL string        `json:"payment_url,omitempty"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	ExpiresAt  time.Time     `json:"expires_at"`
}

// CancelBookingRequest is the request to cancel a booking.
type CancelBookingRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelBookingResponse reports the cancellation outcome.
type CancelBookingResponse struct {
	BookingID      uuid.UUID     `json:"booking_id"`
	Status         BookingStatus `json:"status"`
	RefundEligible bool          `json:"refund_eligible"`
	RefundAmount   int64         `json:"refund_amount"`
}

// PaymentWebhookPayload is the inbound payment-result notification from the
// gateway. Duplicate deliveries are expected and must be handled idempotently.
type PaymentWebhookPayload struct {
	IntentID   string `json:"intent_id" binding:"required"`
	Outcome    string `json:"outcome" binding:"required,oneof=succeeded failed"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	CheckValue string `json:"check_value"`
}

// PaymentOutcome values accepted on the webhook.
const (
	PaymentOutcomeSucceeded = "succeeded"
	PaymentOutcomeFailed    = "failed"
)
