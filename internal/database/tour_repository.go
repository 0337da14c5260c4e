package database

import (
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourday/booking-backend/internal/models"
)

// TourRepository reads tour catalog data. Tour content is authored by the
// catalog service; this core only needs pricing and capacity defaults.
type TourRepository struct {
	db *sqlx.DB
}

// NewTourRepository creates a new TourRepository
func NewTourRepository(db *sqlx.DB) *TourRepository {
	return &TourRepository{db: db}
}

// GetByID returns a tour by ID, or nil if not found.
func (r *TourRepository) GetByID(tourID uuid.UUID) (*models.Tour, error) {
	var tour models.Tour
	query := `
		SELECT id, name, price_type, base_price, original_price, capacity_per_date,
		       currency, is_active, created_at, updated_at
		FROM tours
		WHERE id = $1`
	err := r.db.Get(&tour, query, tourID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tour, nil
}
