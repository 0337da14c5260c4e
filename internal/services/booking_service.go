package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/config"
	"github.com/tourday/booking-backend/internal/models"
)

// TourStore is the read side of the tour catalog.
type TourStore interface {
	GetByID(tourID uuid.UUID) (*models.Tour, error)
}

// AvailabilityStore is the read/create side of the capacity ledger used by
// the booking flow. Deltas stay behind the ReservationStore.
type AvailabilityStore interface {
	GetOrCreate(tourID uuid.UUID, date time.Time, defaultCapacity int) (*models.AvailabilityRecord, error)
}

// BookingStore persists bookings with transition-guarded status updates.
type BookingStore interface {
	Create(booking *models.Booking) error
	GetByID(bookingID uuid.UUID) (*models.Booking, error)
	GetByPaymentIntentID(intentID string) (*models.Booking, error)
	ListByUser(userID uuid.UUID, limit, offset int) ([]*models.Booking, error)
	MarkAwaitingPayment(bookingID uuid.UUID, intentID string) (bool, error)
	MarkConfirmed(bookingID uuid.UUID) (bool, error)
	MarkCancelled(bookingID uuid.UUID, reason string) (bool, error)
	MarkExpired(bookingID uuid.UUID) (bool, error)
	MarkRefunded(bookingID uuid.UUID, reason string) (bool, error)
}

// BookingService drives a booking through hold -> payment -> confirmation,
// enforcing the lifecycle state machine. Every status change is checked
// against the transition table and applied with a guarded update, so an
// illegal transition never mutates state.
type BookingService struct {
	tours        TourStore
	bookings     BookingStore
	availability AvailabilityStore
	reservations *ReservationService
	pricing      *PricingService
	promos       *PromoService
	gateway      PaymentGateway
	notifier     Notifier
	config       config.BookingConfig
	logger       *logrus.Logger
}

// NewBookingService creates a new BookingService
func NewBookingService(
	tours TourStore,
	bookings BookingStore,
	availability AvailabilityStore,
	reservations *ReservationService,
	pricing *PricingService,
	promos *PromoService,
	gateway PaymentGateway,
	notifier Notifier,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	return &BookingService{
		tours:        tours,
		bookings:     bookings,
		availability: availability,
		reservations: reservations,
		pricing:      pricing,
		promos:       promos,
		gateway:      gateway,
		notifier:     notifier,
		config:       cfg,
		logger:       logger,
	}
}

// ============================================================================
// AVAILABILITY
// ============================================================================

// CheckAvailability answers whether guestCount seats fit on (tourID, date)
// and what a seat currently costs there.
func (s *BookingService) CheckAvailability(tourID uuid.UUID, date time.Time, guestCount int) (*models.CheckAvailabilityResponse, error) {
	tour, err := s.getActiveTour(tourID)
	if err != nil {
		return nil, err
	}

	avail, err := s.availability.GetOrCreate(tourID, date, tour.CapacityPerDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}

	return &models.CheckAvailabilityResponse{
		Available:      avail.Available() >= guestCount,
		AvailableSpots: avail.Available(),
		UnitPrice:      s.pricing.UnitPrice(tour, avail, true),
		Currency:       tour.Currency,
	}, nil
}

// ============================================================================
// CREATE BOOKING (hold + price snapshot)
// ============================================================================

// CreateBooking claims seats, snapshots the price and persists a Pending
// booking. No partial state survives a failure: if anything after the hold
// fails, the hold is released before returning.
func (s *BookingService) CreateBooking(userID uuid.UUID, req *models.CreateBookingRequest) (*models.CreateBookingResponse, error) {
	tourID, err := uuid.Parse(req.TourID)
	if err != nil {
		return nil, fmt.Errorf("invalid tour id: %w", err)
	}
	date, err := time.Parse(models.DateFormat, req.Date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", req.Date, err)
	}

	tour, err := s.getActiveTour(tourID)
	if err != nil {
		return nil, err
	}

	avail, err := s.availability.GetOrCreate(tourID, date, tour.CapacityPerDate)
	if err != nil {
		return nil, fmt.Errorf("failed to load availability: %w", err)
	}

	now := time.Now()
	bookingID := uuid.New()

	hold, err := s.reservations.TryHold(tourID, date, req.GuestCount, bookingID, tour.CapacityPerDate)
	if err != nil {
		return nil, err
	}

	// Everything below must release the hold on failure.
	var promo *models.PromoCode
	if req.PromoCode != nil && *req.PromoCode != "" {
		subtotal := s.subtotal(tour, avail, req.GuestCount)
		promo, err = s.promos.Validate(*req.PromoCode, subtotal, now)
		if err != nil {
			s.rollbackHold(hold.ID)
			return nil, err
		}
	}

	breakdown, err := s.pricing.ComputePrice(tour, avail, req.GuestCount, true, promo, req.PaymentMethod, now)
	if err != nil {
		s.rollbackHold(hold.ID)
		return nil, err
	}

	booking := &models.Booking{
		ID:             bookingID,
		UserID:         userID,
		TourID:         tourID,
		Date:           date,
		GuestCount:     req.GuestCount,
		UnitPrice:      breakdown.UnitPrice,
		Subtotal:       breakdown.Subtotal,
		PromoCode:      breakdown.PromoCode,
		DiscountAmount: breakdown.DiscountAmount,
		TotalPrice:     breakdown.Total,
		Currency:       breakdown.Currency,
		PaymentMethod:  breakdown.PaymentMethod,
		DepositAmount:  breakdown.DepositAmount,
		BalanceAmount:  breakdown.BalanceAmount,
		Status:         models.BookingStatusPending,
		HoldID:         &hold.ID,
	}

	if err := s.bookings.Create(booking); err != nil {
		s.rollbackHold(hold.ID)
		return nil, fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":  booking.ID,
		"reference":   booking.Reference,
		"tour_id":     tourID,
		"date":        date.Format(models.DateFormat),
		"guest_count": req.GuestCount,
		"total":       booking.TotalPrice,
	}).Info("Booking created")

	s.notifier.Notify(EventBookingCreated, s.eventPayload(booking))

	return &models.CreateBookingResponse{
		BookingID:      booking.ID,
		Reference:      booking.Reference,
		Status:         booking.Status,
		PriceBreakdown: breakdown,
		HoldExpiresAt:  hold.ExpiresAt,
	}, nil
}

// ============================================================================
// PAYMENT
// ============================================================================

// InitiatePayment creates a payment intent with the gateway and moves the
// booking to awaiting_payment. A gateway failure leaves the booking pending
// so the customer can retry.
func (s *BookingService) InitiatePayment(bookingID, userID uuid.UUID) (*models.InitiatePaymentResponse, error) {
	booking, err := s.getOwnedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}

	if !booking.CanInitiatePayment() {
		return nil, &models.InvalidTransitionError{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        models.BookingStatusAwaitingPayment,
		}
	}

	hold, err := s.holdFor(booking)
	if err != nil {
		return nil, err
	}
	if hold.IsExpired() || hold.Status != models.HoldStatusHeld {
		return nil, models.ErrHoldExpired
	}

	intent, err := s.gateway.CreateIntent(s.chargeAmount(booking), booking.Currency, booking.Reference)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to create payment intent")
		return nil, err
	}

	updated, err := s.bookings.MarkAwaitingPayment(booking.ID, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	if !updated {
		return nil, &models.InvalidTransitionError{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        models.BookingStatusAwaitingPayment,
		}
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"intent_id":  intent.ID,
		"amount":     s.chargeAmount(booking),
	}).Info("Payment initiated")

	return &models.InitiatePaymentResponse{
		BookingID:  booking.ID,
		Status:     models.BookingStatusAwaitingPayment,
		IntentID:   intent.ID,
		PaymentURL: intent.PaymentURL,
		Amount:     s.chargeAmount(booking),
		Currency:   booking.Currency,
		ExpiresAt:  hold.ExpiresAt,
	}, nil
}

// HandlePaymentResult processes the gateway webhook. Idempotent: duplicate
// deliveries for an already-settled booking are a no-op. A timeout reported
// by the gateway arrives here as a failure outcome.
func (s *BookingService) HandlePaymentResult(payload *models.PaymentWebhookPayload) error {
	if err := s.gateway.VerifyWebhook(payload); err != nil {
		return fmt.Errorf("webhook verification failed: %w", err)
	}

	booking, err := s.bookings.GetByPaymentIntentID(payload.IntentID)
	if err != nil {
		return fmt.Errorf("failed to look up booking: %w", err)
	}
	if booking == nil {
		return models.ErrBookingNotFound
	}

	switch payload.Outcome {
	case models.PaymentOutcomeSucceeded:
		return s.confirmBooking(booking)
	case models.PaymentOutcomeFailed:
		return s.failPayment(booking)
	default:
		return fmt.Errorf("unknown payment outcome: %s", payload.Outcome)
	}
}

func (s *BookingService) confirmBooking(booking *models.Booking) error {
	if booking.Status == models.BookingStatusConfirmed {
		s.logger.WithField("booking_id", booking.ID).Debug("Duplicate success webhook, booking already confirmed")
		return nil
	}
	if !models.CanTransition(booking.Status, models.BookingStatusConfirmed) {
		err := &models.InvalidTransitionError{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        models.BookingStatusConfirmed,
		}
		s.logger.WithError(err).Error("Rejected payment success webhook")
		return err
	}

	if booking.HoldID == nil {
		return fmt.Errorf("booking %s has no hold to commit", booking.ID)
	}

	if err := s.reservations.Commit(*booking.HoldID); err != nil {
		if errors.Is(err, models.ErrHoldExpired) {
			// Payment landed after the hold was swept; the seats are gone.
			// Cancel so the customer is told to rebook, and let support
			// reconcile the charge.
			s.logger.WithField("booking_id", booking.ID).Warn("Payment succeeded after hold expiry, cancelling booking")
			if _, markErr := s.bookings.MarkCancelled(booking.ID, "hold expired before payment completed"); markErr != nil {
				return markErr
			}
			s.notifier.Notify(EventBookingCancelled, s.eventPayload(booking))
			return models.ErrHoldExpired
		}
		return err
	}

	updated, err := s.bookings.MarkConfirmed(booking.ID)
	if err != nil {
		return fmt.Errorf("failed to confirm booking: %w", err)
	}
	if !updated {
		// Another webhook delivery won the race; seats are committed either way.
		return nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.Reference,
	}).Info("Booking confirmed")

	s.notifier.Notify(EventBookingConfirmed, s.eventPayload(booking))
	return nil
}

func (s *BookingService) failPayment(booking *models.Booking) error {
	if booking.Status == models.BookingStatusCancelled || booking.Status == models.BookingStatusExpired {
		return nil
	}
	if !models.CanTransition(booking.Status, models.BookingStatusCancelled) {
		err := &models.InvalidTransitionError{
			BookingID: booking.ID,
			From:      booking.Status,
			To:        models.BookingStatusCancelled,
		}
		s.logger.WithError(err).Error("Rejected payment failure webhook")
		return err
	}

	updated, err := s.bookings.MarkCancelled(booking.ID, "payment failed")
	if err != nil {
		return fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !updated {
		return nil
	}

	if booking.HoldID != nil {
		if err := s.reservations.Release(*booking.HoldID); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release hold after payment failure")
		}
	}

	s.logger.WithField("booking_id", booking.ID).Info("Booking cancelled after payment failure")
	s.notifier.Notify(EventBookingCancelled, s.eventPayload(booking))
	return nil
}

// ============================================================================
// CANCELLATION
// ============================================================================

// CancelBooking cancels a booking on behalf of the customer or an admin.
// Cancelling a confirmed booking frees its booked seats via a ledger delta
// (the hold is long gone) and computes refund eligibility from the
// cancellation-policy window.
func (s *BookingService) CancelBooking(bookingID, userID uuid.UUID, reason string) (*models.CancelBookingResponse, error) {
	booking, err := s.getOwnedBooking(bookingID, userID)
	if err != nil {
		return nil, err
	}

	switch booking.Status {
	case models.BookingStatusPending, models.BookingStatusAwaitingPayment:
		updated, err := s.bookings.MarkCancelled(booking.ID, reason)
		if err != nil {
			return nil, fmt.Errorf("failed to cancel booking: %w", err)
		}
		if !updated {
			return nil, s.transitionError(booking, models.BookingStatusCancelled)
		}
		if booking.HoldID != nil {
			if err := s.reservations.Release(*booking.HoldID); err != nil {
				s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to release hold on cancellation")
			}
		}
		s.notifier.Notify(EventBookingCancelled, s.eventPayload(booking))
		return &models.CancelBookingResponse{
			BookingID: booking.ID,
			Status:    models.BookingStatusCancelled,
		}, nil

	case models.BookingStatusConfirmed:
		return s.cancelConfirmed(booking, reason)

	default:
		return nil, s.transitionError(booking, models.BookingStatusCancelled)
	}
}

func (s *BookingService) cancelConfirmed(booking *models.Booking, reason string) (*models.CancelBookingResponse, error) {
	refundEligible := time.Until(booking.Date) >= s.config.CancellationWindow

	var updated bool
	var err error
	var finalStatus models.BookingStatus
	if refundEligible {
		finalStatus = models.BookingStatusRefunded
		updated, err = s.bookings.MarkRefunded(booking.ID, reason)
	} else {
		finalStatus = models.BookingStatusCancelled
		updated, err = s.bookings.MarkCancelled(booking.ID, reason)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to cancel booking: %w", err)
	}
	if !updated {
		return nil, s.transitionError(booking, finalStatus)
	}

	// Seats were booked, not held: free them with an explicit ledger delta.
	if err := s.reservations.ReleaseBooked(booking.TourID, booking.Date, booking.GuestCount); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to free booked seats on cancellation")
	}

	response := &models.CancelBookingResponse{
		BookingID:      booking.ID,
		Status:         finalStatus,
		RefundEligible: refundEligible,
	}

	event := EventBookingCancelled
	if refundEligible {
		response.RefundAmount = s.chargeAmount(booking)
		event = EventBookingRefunded
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":      booking.ID,
		"status":          finalStatus,
		"refund_eligible": refundEligible,
		"refund_amount":   response.RefundAmount,
	}).Info("Confirmed booking cancelled")

	s.notifier.Notify(event, s.eventPayload(booking))
	return response, nil
}

// ============================================================================
// EXPIRY (sweeper path)
// ============================================================================

// ExpireStale sweeps expired holds and moves their bookings to expired.
// Invoked periodically by the hold sweeper.
func (s *BookingService) ExpireStale(now time.Time, limit int) (int, error) {
	swept, err := s.reservations.SweepExpired(now, limit)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, hold := range swept {
		updated, err := s.bookings.MarkExpired(hold.BookingID)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", hold.BookingID).Error("Failed to expire booking")
			continue
		}
		if !updated {
			continue
		}
		expired++

		booking, err := s.bookings.GetByID(hold.BookingID)
		if err == nil && booking != nil {
			s.notifier.Notify(EventBookingExpired, s.eventPayload(booking))
		}
	}
	return expired, nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns a booking the user owns.
func (s *BookingService) GetBooking(bookingID, userID uuid.UUID) (*models.Booking, error) {
	return s.getOwnedBooking(bookingID, userID)
}

// ListBookings returns the user's bookings with pagination.
func (s *BookingService) ListBookings(userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	return s.bookings.ListByUser(userID, limit, offset)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) getActiveTour(tourID uuid.UUID) (*models.Tour, error) {
	tour, err := s.tours.GetByID(tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}
	if tour == nil || !tour.IsActive {
		return nil, models.ErrTourNotFound
	}
	return tour, nil
}

func (s *BookingService) getOwnedBooking(bookingID, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetByID(bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}
	if booking == nil {
		return nil, models.ErrBookingNotFound
	}
	if booking.UserID != userID {
		return nil, models.ErrNotOwner
	}
	return booking, nil
}

func (s *BookingService) holdFor(booking *models.Booking) (*models.Hold, error) {
	if booking.HoldID == nil {
		return nil, models.ErrHoldNotFound
	}
	hold, err := s.reservations.Hold(*booking.HoldID)
	if err != nil {
		return nil, fmt.Errorf("failed to load hold: %w", err)
	}
	if hold == nil {
		return nil, models.ErrHoldNotFound
	}
	return hold, nil
}

// chargeAmount is what the customer pays online now: the fixed deposit when
// the deposit split applies, the full total otherwise.
func (s *BookingService) chargeAmount(booking *models.Booking) int64 {
	if booking.PaymentMethod == models.PaymentMethodDeposit && booking.DepositAmount != nil {
		return *booking.DepositAmount
	}
	return booking.TotalPrice
}

func (s *BookingService) subtotal(tour *models.Tour, avail *models.AvailabilityRecord, guestCount int) int64 {
	unit := s.pricing.UnitPrice(tour, avail, true)
	if tour.PriceType == models.PricePerPerson {
		return unit * int64(guestCount)
	}
	return unit
}

func (s *BookingService) rollbackHold(holdID uuid.UUID) {
	if err := s.reservations.Release(holdID); err != nil {
		s.logger.WithError(err).WithField("hold_id", holdID).Error("Failed to release hold during rollback")
	}
}

func (s *BookingService) transitionError(booking *models.Booking, to models.BookingStatus) error {
	// Re-read for the current status so the error reports reality, not a
	// stale snapshot.
	current, err := s.bookings.GetByID(booking.ID)
	from := booking.Status
	if err == nil && current != nil {
		from = current.Status
	}
	return &models.InvalidTransitionError{BookingID: booking.ID, From: from, To: to}
}

func (s *BookingService) eventPayload(booking *models.Booking) map[string]interface{} {
	return map[string]interface{}{
		"booking_id":  booking.ID.String(),
		"reference":   booking.Reference,
		"user_id":     booking.UserID.String(),
		"tour_id":     booking.TourID.String(),
		"date":        booking.Date.Format(models.DateFormat),
		"guest_count": booking.GuestCount,
		"total_price": booking.TotalPrice,
		"currency":    booking.Currency,
	}
}
