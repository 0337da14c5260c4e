package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
)

// ReservationStore persists holds and their capacity-ledger deltas
// atomically. Implemented by database.ReservationRepository; tests use an
// in-memory double with the same semantics.
type ReservationStore interface {
	HoldSeats(hold *models.Hold, defaultCapacity int) (*models.AvailabilityRecord, error)
	GetHold(holdID uuid.UUID) (*models.Hold, error)
	CommitHold(holdID uuid.UUID) (bool, error)
	ReleaseHold(holdID uuid.UUID) (bool, error)
	ListExpiredHolds(now time.Time, limit int) ([]*models.Hold, error)
	ExpireHold(holdID uuid.UUID) (bool, error)
	ReleaseBooked(tourID uuid.UUID, date time.Time, guestCount int) error
}

// ReservationService is the sole seat-allocation choke point: no other path
// may change held or booked counts. Holds are granted first-come-first-served
// per (tour, date); a request either fits in current available capacity or is
// rejected immediately.
type ReservationService struct {
	store   ReservationStore
	holdTTL time.Duration
	logger  *logrus.Logger
}

// NewReservationService creates a new ReservationService
func NewReservationService(store ReservationStore, holdTTL time.Duration, logger *logrus.Logger) *ReservationService {
	return &ReservationService{
		store:   store,
		holdTTL: holdTTL,
		logger:  logger,
	}
}

// TryHold atomically claims guestCount seats for (tourID, date) on behalf of
// a booking attempt. Returns *models.UnavailableError carrying the remaining
// spot count when the seats do not fit, so the caller can clamp guest count.
func (s *ReservationService) TryHold(tourID uuid.UUID, date time.Time, guestCount int, bookingID uuid.UUID, defaultCapacity int) (*models.Hold, error) {
	if guestCount < 1 {
		return nil, fmt.Errorf("guest count must be at least 1, got %d", guestCount)
	}

	hold := &models.Hold{
		TourID:     tourID,
		Date:       date,
		BookingID:  bookingID,
		GuestCount: guestCount,
		ExpiresAt:  time.Now().Add(s.holdTTL),
	}

	_, err := s.store.HoldSeats(hold, defaultCapacity)
	if err != nil {
		var capErr *models.CapacityExceededError
		if errors.As(err, &capErr) {
			return nil, &models.UnavailableError{
				TourID:         tourID,
				Date:           date,
				Requested:      guestCount,
				AvailableSpots: capErr.Available,
			}
		}
		return nil, fmt.Errorf("failed to hold seats: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"hold_id":     hold.ID,
		"tour_id":     tourID,
		"date":        date.Format(models.DateFormat),
		"guest_count": guestCount,
		"expires_at":  hold.ExpiresAt,
	}).Info("Seats held")

	return hold, nil
}

// Hold looks up a hold by ID. Returns (nil, nil) when the hold does not exist.
func (s *ReservationService) Hold(holdID uuid.UUID) (*models.Hold, error) {
	return s.store.GetHold(holdID)
}

// Commit converts the hold's seats from held to booked and retires the hold.
// Committing an already-committed hold is a no-op (duplicate webhook).
func (s *ReservationService) Commit(holdID uuid.UUID) error {
	committed, err := s.store.CommitHold(holdID)
	if err != nil {
		return err
	}
	if !committed {
		s.logger.WithField("hold_id", holdID).Debug("Hold already committed, skipping")
		return nil
	}

	s.logger.WithField("hold_id", holdID).Info("Hold committed to booked seats")
	return nil
}

// Release returns the hold's seats to available. Idempotent: releasing an
// already-released or expired hold is a no-op, not an error.
func (s *ReservationService) Release(holdID uuid.UUID) error {
	released, err := s.store.ReleaseHold(holdID)
	if err != nil {
		return err
	}
	if released {
		s.logger.WithField("hold_id", holdID).Info("Hold released")
	}
	return nil
}

// ReleaseBooked frees seats of a confirmed booking that is being cancelled.
// Distinct from Release: the seats were counted as booked, not held.
func (s *ReservationService) ReleaseBooked(tourID uuid.UUID, date time.Time, guestCount int) error {
	if err := s.store.ReleaseBooked(tourID, date, guestCount); err != nil {
		return fmt.Errorf("failed to free booked seats: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"tour_id":     tourID,
		"date":        date.Format(models.DateFormat),
		"guest_count": guestCount,
	}).Info("Booked seats freed")
	return nil
}

// SweepExpired releases all holds past their TTL and returns the holds it
// actually swept, so the caller can expire their bookings. Safe to run
// concurrently with TryHold/Commit on the same records.
func (s *ReservationService) SweepExpired(now time.Time, limit int) ([]*models.Hold, error) {
	expired, err := s.store.ListExpiredHolds(now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired holds: %w", err)
	}

	swept := make([]*models.Hold, 0, len(expired))
	for _, hold := range expired {
		ok, err := s.store.ExpireHold(hold.ID)
		if err != nil {
			s.logger.WithError(err).WithField("hold_id", hold.ID).Error("Failed to expire hold")
			continue
		}
		if ok {
			swept = append(swept, hold)
		}
	}

	if len(swept) > 0 {
		s.logger.WithField("count", len(swept)).Info("Expired holds swept")
	}
	return swept, nil
}
