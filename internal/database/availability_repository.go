package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourday/booking-backend/internal/models"
)

// AvailabilityRepository is the capacity ledger: the durable per-(tour, date)
// record of capacity, held and booked seats. Every mutation goes through
// ApplyDelta, which runs under a row lock so read-modify-write is atomic.
type AvailabilityRepository struct {
	db *sqlx.DB
}

// NewAvailabilityRepository creates a new AvailabilityRepository
func NewAvailabilityRepository(db *sqlx.DB) *AvailabilityRepository {
	return &AvailabilityRepository{db: db}
}

const availabilityColumns = `id, tour_id, date, capacity, held, booked, price_override, version, created_at, updated_at`

// GetOrCreate returns the availability record for (tourID, date), creating it
// lazily with the tour's default capacity on first access. Records are never
// deleted; they are the historical seat ledger.
func (r *AvailabilityRepository) GetOrCreate(tourID uuid.UUID, date time.Time, defaultCapacity int) (*models.AvailabilityRecord, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := r.getOrCreateForUpdate(tx, tourID, date, defaultCapacity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return record, nil
}

// Get returns the availability record, or nil if none exists yet.
func (r *AvailabilityRepository) Get(tourID uuid.UUID, date time.Time) (*models.AvailabilityRecord, error) {
	var record models.AvailabilityRecord
	query := `SELECT ` + availabilityColumns + ` FROM availability_records WHERE tour_id = $1 AND date = $2`
	err := r.db.Get(&record, query, tourID, date.Format(models.DateFormat))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// ListForTour returns all availability records for a tour in a date range,
// for the merchant calendar view.
func (r *AvailabilityRepository) ListForTour(tourID uuid.UUID, from, to time.Time) ([]models.AvailabilityRecord, error) {
	query := `
		SELECT ` + availabilityColumns + `
		FROM availability_records
		WHERE tour_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date`

	var records []models.AvailabilityRecord
	err := r.db.Select(&records, query, tourID, from.Format(models.DateFormat), to.Format(models.DateFormat))
	return records, err
}

// ApplyDelta atomically applies heldDelta/bookedDelta to the record for
// (tourID, date). Returns *models.CapacityExceededError if the post-delta
// state would violate 0 <= held+booked <= capacity; the caller never computes
// the check itself.
func (r *AvailabilityRepository) ApplyDelta(tourID uuid.UUID, date time.Time, heldDelta, bookedDelta, defaultCapacity int) (*models.AvailabilityRecord, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := r.ApplyDeltaTx(tx, tourID, date, heldDelta, bookedDelta, defaultCapacity)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return record, nil
}

// ApplyDeltaTx applies a delta inside an existing transaction. The row is
// locked with SELECT ... FOR UPDATE, so concurrent deltas for the same
// (tourID, date) serialize in lock-acquisition order.
func (r *AvailabilityRepository) ApplyDeltaTx(tx *sqlx.Tx, tourID uuid.UUID, date time.Time, heldDelta, bookedDelta, defaultCapacity int) (*models.AvailabilityRecord, error) {
	record, err := r.getOrCreateForUpdate(tx, tourID, date, defaultCapacity)
	if err != nil {
		return nil, err
	}

	newHeld := record.Held + heldDelta
	newBooked := record.Booked + bookedDelta
	if newHeld < 0 || newBooked < 0 {
		return nil, fmt.Errorf("negative seat count for tour %s on %s (held %d, booked %d)",
			tourID, date.Format(models.DateFormat), newHeld, newBooked)
	}
	if newHeld+newBooked > record.Capacity {
		return nil, &models.CapacityExceededError{
			TourID:    tourID,
			Date:      record.Date,
			Available: record.Available(),
		}
	}

	query := `
		UPDATE availability_records
		SET held = $2, booked = $3, version = version + 1, updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(query, record.ID, newHeld, newBooked); err != nil {
		return nil, fmt.Errorf("failed to update availability record: %w", err)
	}

	record.Held = newHeld
	record.Booked = newBooked
	record.Version++
	return record, nil
}

// SetPriceOverride sets or clears the per-date price override (merchant
// dashboard edge). A nil price clears the override.
func (r *AvailabilityRepository) SetPriceOverride(tourID uuid.UUID, date time.Time, price *int64, defaultCapacity int) (*models.AvailabilityRecord, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := r.getOrCreateForUpdate(tx, tourID, date, defaultCapacity)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE availability_records
		SET price_override = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(query, record.ID, price); err != nil {
		return nil, fmt.Errorf("failed to set price override: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	record.PriceOverride = price
	record.Version++
	return record, nil
}

// SetCapacity adjusts total capacity for a date. Rejected if it would drop
// below the seats already held or booked.
func (r *AvailabilityRepository) SetCapacity(tourID uuid.UUID, date time.Time, capacity, defaultCapacity int) (*models.AvailabilityRecord, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := r.getOrCreateForUpdate(tx, tourID, date, defaultCapacity)
	if err != nil {
		return nil, err
	}

	if capacity < record.Held+record.Booked {
		return nil, &models.CapacityExceededError{TourID: tourID, Date: date, Available: record.Available()}
	}

	query := `
		UPDATE availability_records
		SET capacity = $2, version = version + 1, updated_at = NOW()
		WHERE id = $1`
	if _, err := tx.Exec(query, record.ID, capacity); err != nil {
		return nil, fmt.Errorf("failed to set capacity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	record.Capacity = capacity
	record.Version++
	return record, nil
}

// getOrCreateForUpdate inserts the record if missing, then locks and returns
// it. The insert is ON CONFLICT DO NOTHING so two racing first requests for
// the same date converge on the same row.
func (r *AvailabilityRepository) getOrCreateForUpdate(tx *sqlx.Tx, tourID uuid.UUID, date time.Time, defaultCapacity int) (*models.AvailabilityRecord, error) {
	insert := `
		INSERT INTO availability_records (id, tour_id, date, capacity, held, booked, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, 0, 1, NOW(), NOW())
		ON CONFLICT (tour_id, date) DO NOTHING`
	if _, err := tx.Exec(insert, uuid.New(), tourID, date.Format(models.DateFormat), defaultCapacity); err != nil {
		return nil, fmt.Errorf("failed to create availability record: %w", err)
	}

	var record models.AvailabilityRecord
	query := `SELECT ` + availabilityColumns + ` FROM availability_records WHERE tour_id = $1 AND date = $2 FOR UPDATE`
	if err := tx.Get(&record, query, tourID, date.Format(models.DateFormat)); err != nil {
		return nil, fmt.Errorf("failed to lock availability record: %w", err)
	}
	return &record, nil
}
