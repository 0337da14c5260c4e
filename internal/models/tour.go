package models

import (
	"time"

	"github.com/google/uuid"
)

// PriceType represents how a tour is priced
// Matches PostgreSQL ENUM: tour_price_type
type PriceType string

const (
	PricePerPerson PriceType = "per_person" // unit price multiplied by guest count
	PricePerGroup  PriceType = "per_group"  // flat price regardless of guest count
)

// Tour represents a bookable tour product. Tour content is authored by the
// catalog service; this core only reads it to price and capacity-default
// availability records.
//
// All money values are integer minor-currency units (KRW has none, so these
// are whole won).
type Tour struct {
	ID              uuid.UUID `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	PriceType       PriceType `json:"price_type" db:"price_type"`
	BasePrice       int64     `json:"base_price" db:"base_price"`
	OriginalPrice   *int64    `json:"original_price,omitempty" db:"original_price"` // pre-discount price for display
	CapacityPerDate int       `json:"capacity_per_date" db:"capacity_per_date"`
	Currency        string    `json:"currency" db:"currency"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// DateFormat is the wire and storage format for tour dates.
const DateFormat = "2006-01-02"
