package database

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourday/booking-backend/internal/models"
)

// BookingRepository handles booking persistence. Status updates are guarded
// with a WHERE status IN (...) clause so a row can only move along legal
// transitions; a zero-row update means the caller lost a race.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `
	id, reference, user_id, tour_id, date, guest_count,
	unit_price, subtotal, promo_code, discount_amount, total_price, currency,
	payment_method, deposit_amount, balance_amount,
	status, hold_id, payment_intent_id, cancellation_reason,
	payment_initiated_at, confirmed_at, cancelled_at, expired_at, refunded_at,
	created_at, updated_at`

// Create persists a new pending booking with its price snapshot.
func (r *BookingRepository) Create(booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.Reference = generateBookingReference(booking.ID)
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt

	query := `
		INSERT INTO bookings (
			id, reference, user_id, tour_id, date, guest_count,
			unit_price, subtotal, promo_code, discount_amount, total_price, currency,
			payment_method, deposit_amount, balance_amount,
			status, hold_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)`

	_, err := r.db.Exec(query,
		booking.ID, booking.Reference, booking.UserID, booking.TourID,
		booking.Date.Format(models.DateFormat), booking.GuestCount,
		booking.UnitPrice, booking.Subtotal, booking.PromoCode, booking.DiscountAmount,
		booking.TotalPrice, booking.Currency,
		booking.PaymentMethod, booking.DepositAmount, booking.BalanceAmount,
		booking.Status, booking.HoldID, booking.CreatedAt, booking.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}
	return nil
}

// GetByID returns a booking by ID, or nil if not found.
func (r *BookingRepository) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	err := r.db.Get(&booking, query, bookingID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// GetByPaymentIntentID returns the booking tied to a payment intent, for
// webhook processing.
func (r *BookingRepository) GetByPaymentIntentID(intentID string) (*models.Booking, error) {
	var booking models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE payment_intent_id = $1`
	err := r.db.Get(&booking, query, intentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepository) ListByUser(userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	var bookings []*models.Booking
	if err := r.db.Select(&bookings, query, userID, limit, offset); err != nil {
		return nil, err
	}
	return bookings, nil
}

// MarkAwaitingPayment records the payment intent and moves pending ->
// awaiting_payment. Returns false when the booking was not pending.
func (r *BookingRepository) MarkAwaitingPayment(bookingID uuid.UUID, intentID string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'awaiting_payment',
		    payment_intent_id = $2,
		    payment_initiated_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	return r.guardedUpdate(query, bookingID, intentID)
}

// MarkConfirmed moves awaiting_payment -> confirmed.
func (r *BookingRepository) MarkConfirmed(bookingID uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'confirmed',
		    confirmed_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'awaiting_payment'`
	return r.guardedUpdate(query, bookingID)
}

// MarkCancelled moves a booking to cancelled.
func (r *BookingRepository) MarkCancelled(bookingID uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'cancelled',
		    cancellation_reason = $2,
		    cancelled_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment', 'confirmed')`
	return r.guardedUpdate(query, bookingID, reason)
}

// MarkExpired moves pending/awaiting_payment -> expired after the hold TTL.
func (r *BookingRepository) MarkExpired(bookingID uuid.UUID) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'expired',
		    expired_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'awaiting_payment')`
	return r.guardedUpdate(query, bookingID)
}

// MarkRefunded moves confirmed -> refunded on an eligible cancellation.
func (r *BookingRepository) MarkRefunded(bookingID uuid.UUID, reason string) (bool, error) {
	query := `
		UPDATE bookings
		SET status = 'refunded',
		    cancellation_reason = $2,
		    cancelled_at = NOW(),
		    refunded_at = NOW(),
		    updated_at = NOW()
		WHERE id = $1 AND status = 'confirmed'`
	return r.guardedUpdate(query, bookingID, reason)
}

func (r *BookingRepository) guardedUpdate(query string, bookingID uuid.UUID, args ...interface{}) (bool, error) {
	params := append([]interface{}{bookingID}, args...)
	result, err := r.db.Exec(query, params...)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// generateBookingReference derives a short human-readable code from the
// booking ID, e.g. "BK-3F9A21C4".
func generateBookingReference(id uuid.UUID) string {
	return "BK-" + strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:8])
}
