package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/tourday/booking-backend/internal/models"
)

// ReservationRepository persists seat holds and applies their ledger deltas
// in the same transaction, so a hold row and its held seats can never drift
// apart. All multi-statement transactions lock the availability row first.
type ReservationRepository struct {
	db     *sqlx.DB
	ledger *AvailabilityRepository
}

// NewReservationRepository creates a new ReservationRepository
func NewReservationRepository(db *sqlx.DB, ledger *AvailabilityRepository) *ReservationRepository {
	return &ReservationRepository{db: db, ledger: ledger}
}

const holdColumns = `id, tour_id, date, booking_id, guest_count, status, expires_at, created_at, updated_at`

// HoldSeats atomically checks capacity, increments held and persists the
// hold. Returns *models.CapacityExceededError when the seats do not fit.
func (r *ReservationRepository) HoldSeats(hold *models.Hold, defaultCapacity int) (*models.AvailabilityRecord, error) {
	tx, err := r.db.Beginx()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	record, err := r.ledger.ApplyDeltaTx(tx, hold.TourID, hold.Date, hold.GuestCount, 0, defaultCapacity)
	if err != nil {
		return nil, err
	}

	hold.ID = uuid.New()
	hold.Status = models.HoldStatusHeld
	hold.CreatedAt = time.Now()
	hold.UpdatedAt = hold.CreatedAt

	insert := `
		INSERT INTO holds (id, tour_id, date, booking_id, guest_count, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = tx.Exec(insert,
		hold.ID, hold.TourID, hold.Date.Format(models.DateFormat), hold.BookingID,
		hold.GuestCount, hold.Status, hold.ExpiresAt, hold.CreatedAt, hold.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create hold: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit hold: %w", err)
	}
	return record, nil
}

// GetHold returns a hold by ID, or nil if not found.
func (r *ReservationRepository) GetHold(holdID uuid.UUID) (*models.Hold, error) {
	var hold models.Hold
	query := `SELECT ` + holdColumns + ` FROM holds WHERE id = $1`
	err := r.db.Get(&hold, query, holdID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &hold, nil
}

// CommitHold converts a hold's seats from held to booked and marks the hold
// committed. Returns false with no error when the hold was already committed
// (duplicate webhook delivery). A hold that was released or swept before the
// commit cannot be committed anymore.
func (r *ReservationRepository) CommitHold(holdID uuid.UUID) (bool, error) {
	hold, err := r.GetHold(holdID)
	if err != nil {
		return false, fmt.Errorf("failed to load hold: %w", err)
	}
	if hold == nil {
		return false, models.ErrHoldNotFound
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock the ledger row first; every multi-statement path takes locks in
	// this order.
	if _, err := r.ledger.ApplyDeltaTx(tx, hold.TourID, hold.Date, -hold.GuestCount, hold.GuestCount, 0); err != nil {
		return false, err
	}

	result, err := tx.Exec(`
		UPDATE holds
		SET status = 'committed', updated_at = NOW()
		WHERE id = $1 AND status = 'held'`, holdID)
	if err != nil {
		return false, fmt.Errorf("failed to commit hold: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Roll back the delta; the hold moved state underneath us.
		if hold.Status == models.HoldStatusCommitted {
			return false, nil
		}
		return false, models.ErrHoldExpired
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ReleaseHold returns a hold's seats to available and marks the hold
// released. Idempotent: releasing an already-released, expired or missing
// hold is a no-op, reported as (false, nil).
func (r *ReservationRepository) ReleaseHold(holdID uuid.UUID) (bool, error) {
	hold, err := r.GetHold(holdID)
	if err != nil {
		return false, fmt.Errorf("failed to load hold: %w", err)
	}
	if hold == nil || hold.Status != models.HoldStatusHeld {
		return false, nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.ledger.ApplyDeltaTx(tx, hold.TourID, hold.Date, -hold.GuestCount, 0, 0); err != nil {
		return false, err
	}

	result, err := tx.Exec(`
		UPDATE holds
		SET status = 'released', updated_at = NOW()
		WHERE id = $1 AND status = 'held'`, holdID)
	if err != nil {
		return false, fmt.Errorf("failed to release hold: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Lost the race against a sweep or duplicate release; the rollback
		// undoes our delta and the outcome is still a no-op.
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ListExpiredHolds returns active holds past their TTL, oldest first.
func (r *ReservationRepository) ListExpiredHolds(now time.Time, limit int) ([]*models.Hold, error) {
	query := `
		SELECT ` + holdColumns + `
		FROM holds
		WHERE status = 'held' AND expires_at < $1
		ORDER BY expires_at
		LIMIT $2`

	var holds []*models.Hold
	if err := r.db.Select(&holds, query, now, limit); err != nil {
		return nil, err
	}
	return holds, nil
}

// ExpireHold marks an expired hold swept and frees its seats. Safe to run
// concurrently with TryHold/Commit on the same record: the guarded status
// update only ever succeeds once.
func (r *ReservationRepository) ExpireHold(holdID uuid.UUID) (bool, error) {
	hold, err := r.GetHold(holdID)
	if err != nil {
		return false, fmt.Errorf("failed to load hold: %w", err)
	}
	if hold == nil || hold.Status != models.HoldStatusHeld {
		return false, nil
	}

	tx, err := r.db.Beginx()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := r.ledger.ApplyDeltaTx(tx, hold.TourID, hold.Date, -hold.GuestCount, 0, 0); err != nil {
		return false, err
	}

	result, err := tx.Exec(`
		UPDATE holds
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'held' AND expires_at < NOW()`, holdID)
	if err != nil {
		return false, fmt.Errorf("failed to expire hold: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return false, nil
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

// ReleaseBooked frees seats that were already booked (cancellation of a
// confirmed booking). Distinct from releasing a hold.
func (r *ReservationRepository) ReleaseBooked(tourID uuid.UUID, date time.Time, guestCount int) error {
	_, err := r.ledger.ApplyDelta(tourID, date, 0, -guestCount, 0)
	return err
}
