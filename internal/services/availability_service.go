package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
)

// AvailabilityAdminStore is the ledger surface used for calendars and admin
// capacity/price management.
type AvailabilityAdminStore interface {
	GetOrCreate(tourID uuid.UUID, date time.Time, defaultCapacity int) (*models.AvailabilityRecord, error)
	ListForTour(tourID uuid.UUID, from, to time.Time) ([]models.AvailabilityRecord, error)
	SetPriceOverride(tourID uuid.UUID, date time.Time, price *int64, defaultCapacity int) (*models.AvailabilityRecord, error)
	SetCapacity(tourID uuid.UUID, date time.Time, capacity, defaultCapacity int) (*models.AvailabilityRecord, error)
}

// AvailabilityService serves availability calendars and the admin side of the
// capacity ledger (per-date capacity and price overrides).
type AvailabilityService struct {
	store   AvailabilityAdminStore
	tours   TourStore
	pricing *PricingService
	logger  *logrus.Logger
}

// NewAvailabilityService creates a new AvailabilityService
func NewAvailabilityService(store AvailabilityAdminStore, tours TourStore, pricing *PricingService, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{
		store:   store,
		tours:   tours,
		pricing: pricing,
		logger:  logger,
	}
}

// Calendar returns one entry per date in [from, to] that has a ledger row,
// with the effective per-seat price. Dates with no row sell at full default
// capacity and base price; callers treat missing dates that way.
func (s *AvailabilityService) Calendar(tourID uuid.UUID, from, to time.Time) ([]models.CalendarEntry, error) {
	tour, err := s.tours.GetByID(tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}
	if tour == nil {
		return nil, models.ErrTourNotFound
	}

	records, err := s.store.ListForTour(tourID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list availability: %w", err)
	}

	entries := make([]models.CalendarEntry, 0, len(records))
	for i := range records {
		rec := &records[i]
		entries = append(entries, models.CalendarEntry{
			Date:           rec.Date.Format(models.DateFormat),
			Capacity:       rec.Capacity,
			Held:           rec.Held,
			Booked:         rec.Booked,
			AvailableSpots: rec.Available(),
			UnitPrice:      s.pricing.UnitPrice(tour, rec, true),
		})
	}
	return entries, nil
}

// SetPriceOverride sets (or clears, when price is nil) the per-date price.
func (s *AvailabilityService) SetPriceOverride(tourID uuid.UUID, date time.Time, price *int64) (*models.AvailabilityRecord, error) {
	tour, err := s.tours.GetByID(tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}
	if tour == nil {
		return nil, models.ErrTourNotFound
	}
	if price != nil && *price < 0 {
		return nil, fmt.Errorf("price override must not be negative")
	}

	rec, err := s.store.SetPriceOverride(tourID, date, price, tour.CapacityPerDate)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id": tourID,
		"date":    date.Format(models.DateFormat),
		"price":   price,
	}).Info("Price override updated")
	return rec, nil
}

// SetCapacity adjusts the sellable capacity for a date. The ledger rejects
// capacities below the seats already held or booked.
func (s *AvailabilityService) SetCapacity(tourID uuid.UUID, date time.Time, capacity int) (*models.AvailabilityRecord, error) {
	tour, err := s.tours.GetByID(tourID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tour: %w", err)
	}
	if tour == nil {
		return nil, models.ErrTourNotFound
	}

	rec, err := s.store.SetCapacity(tourID, date, capacity, tour.CapacityPerDate)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"tour_id":  tourID,
		"date":     date.Format(models.DateFormat),
		"capacity": capacity,
	}).Info("Capacity updated")
	return rec, nil
}
