package models

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityRecord is the durable per-(tour, date) capacity ledger row.
// It is the single source of truth for how many seats remain; every mutation
// goes through the availability repository's ApplyDelta under a row lock.
//
// Invariant: 0 <= Held + Booked <= Capacity.
type AvailabilityRecord struct {
	ID            uuid.UUID `json:"id" db:"id"`
	TourID        uuid.UUID `json:"tour_id" db:"tour_id"`
	Date          time.Time `json:"date" db:"date"`
	Capacity      int       `json:"capacity" db:"capacity"`
	Held          int       `json:"held" db:"held"`
	Booked        int       `json:"booked" db:"booked"`
	PriceOverride *int64    `json:"price_override,omitempty" db:"price_override"`
	Version       int64     `json:"version" db:"version"` // bumped on every delta, optimistic-concurrency marker
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Available returns the number of seats a new request may still claim.
func (a *AvailabilityRecord) Available() int {
	return a.Capacity - a.Held - a.Booked
}

// CalendarEntry is one date in an availability calendar response.
type CalendarEntry struct {
	Date           string `json:"date"`
	Capacity       int    `json:"capacity"`
	Held           int    `json:"held"`
	Booked         int    `json:"booked"`
	AvailableSpots int    `json:"available_spots"`
	UnitPrice      int64  `json:"unit_price"`
}

// SetPriceOverrideRequest sets or clears a per-date price override.
// A null price clears the override back to the tour's base price.
type SetPriceOverrideRequest struct {
	Date  string `json:"date" binding:"required"`
	Price *int64 `json:"price"`
}

// SetCapacityRequest adjusts the sellable capacity for a date.
type SetCapacityRequest struct {
	Date     string `json:"date" binding:"required"`
	Capacity int    `json:"capacity" binding:"min=0"`
}

// HoldStatus represents the lifecycle of a seat hold
// Matches PostgreSQL ENUM: hold_status
type HoldStatus string

const (
	HoldStatusHeld      HoldStatus = "held"      // seats locked, booking in progress
	HoldStatusCommitted HoldStatus = "committed" // converted to booked on confirmation
	HoldStatusReleased  HoldStatus = "released"  // returned to available
	HoldStatusExpired   HoldStatus = "expired"   // TTL elapsed, swept
)

// Hold is a time-limited, uncommitted claim on N seats for a (tour, date).
// It is owned exclusively by the booking attempt that created it.
type Hold struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	TourID     uuid.UUID  `json:"tour_id" db:"tour_id"`
	Date       time.Time  `json:"date" db:"date"`
	BookingID  uuid.UUID  `json:"booking_id" db:"booking_id"`
	GuestCount int        `json:"guest_count" db:"guest_count"`
	Status     HoldStatus `json:"status" db:"status"`
	ExpiresAt  time.Time  `json:"expires_at" db:"expires_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsExpired checks if the hold has passed its TTL.
func (h *Hold) IsExpired() bool {
	return time.Now().After(h.ExpiresAt)
}
