package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourday/booking-backend/internal/models"
)

// memReservationStore is an in-memory ReservationStore double with the same
// invariant semantics as the Postgres repository: every mutation happens
// under one lock, and held+booked never exceeds capacity.
type memReservationStore struct {
	mu      sync.Mutex
	records map[string]*models.AvailabilityRecord
	holds   map[uuid.UUID]*models.Hold
}

func newMemReservationStore() *memReservationStore {
	return &memReservationStore{
		records: make(map[string]*models.AvailabilityRecord),
		holds:   make(map[uuid.UUID]*models.Hold),
	}
}

func ledgerKey(tourID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("%s|%s", tourID, date.Format(models.DateFormat))
}

func (m *memReservationStore) record(tourID uuid.UUID, date time.Time, defaultCapacity int) *models.AvailabilityRecord {
	key := ledgerKey(tourID, date)
	rec, ok := m.records[key]
	if !ok {
		rec = &models.AvailabilityRecord{
			ID:       uuid.New(),
			TourID:   tourID,
			Date:     date,
			Capacity: defaultCapacity,
		}
		m.records[key] = rec
	}
	return rec
}

func (m *memReservationStore) applyDelta(rec *models.AvailabilityRecord, heldDelta, bookedDelta int) error {
	newHeld := rec.Held + heldDelta
	newBooked := rec.Booked + bookedDelta
	if newHeld < 0 || newBooked < 0 {
		return fmt.Errorf("negative ledger counts")
	}
	if newHeld+newBooked > rec.Capacity {
		return &models.CapacityExceededError{
			TourID:    rec.TourID,
			Date:      rec.Date,
			Available: rec.Available(),
		}
	}
	rec.Held = newHeld
	rec.Booked = newBooked
	rec.Version++
	return nil
}

func (m *memReservationStore) HoldSeats(hold *models.Hold, defaultCapacity int) (*models.AvailabilityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(hold.TourID, hold.Date, defaultCapacity)
	if err := m.applyDelta(rec, hold.GuestCount, 0); err != nil {
		return nil, err
	}
	hold.ID = uuid.New()
	hold.Status = models.HoldStatusHeld
	stored := *hold
	m.holds[hold.ID] = &stored
	return rec, nil
}

func (m *memReservationStore) GetHold(holdID uuid.UUID) (*models.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hold, ok := m.holds[holdID]
	if !ok {
		return nil, nil
	}
	copied := *hold
	return &copied, nil
}

func (m *memReservationStore) CommitHold(holdID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok {
		return false, models.ErrHoldNotFound
	}
	if hold.Status == models.HoldStatusCommitted {
		return false, nil
	}
	if hold.Status != models.HoldStatusHeld {
		return false, models.ErrHoldExpired
	}

	rec := m.record(hold.TourID, hold.Date, 0)
	if err := m.applyDelta(rec, -hold.GuestCount, hold.GuestCount); err != nil {
		return false, err
	}
	hold.Status = models.HoldStatusCommitted
	return true, nil
}

func (m *memReservationStore) ReleaseHold(holdID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok || hold.Status != models.HoldStatusHeld {
		return false, nil
	}

	rec := m.record(hold.TourID, hold.Date, 0)
	if err := m.applyDelta(rec, -hold.GuestCount, 0); err != nil {
		return false, err
	}
	hold.Status = models.HoldStatusReleased
	return true, nil
}

func (m *memReservationStore) ListExpiredHolds(now time.Time, limit int) ([]*models.Hold, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expired := make([]*models.Hold, 0)
	for _, hold := range m.holds {
		if hold.Status == models.HoldStatusHeld && hold.ExpiresAt.Before(now) {
			copied := *hold
			expired = append(expired, &copied)
			if len(expired) == limit {
				break
			}
		}
	}
	return expired, nil
}

func (m *memReservationStore) ExpireHold(holdID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hold, ok := m.holds[holdID]
	if !ok || hold.Status != models.HoldStatusHeld || !hold.ExpiresAt.Before(time.Now()) {
		return false, nil
	}

	rec := m.record(hold.TourID, hold.Date, 0)
	if err := m.applyDelta(rec, -hold.GuestCount, 0); err != nil {
		return false, err
	}
	hold.Status = models.HoldStatusExpired
	return true, nil
}

func (m *memReservationStore) ReleaseBooked(tourID uuid.UUID, date time.Time, guestCount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec := m.record(tourID, date, 0)
	return m.applyDelta(rec, 0, -guestCount)
}

func (m *memReservationStore) availability(tourID uuid.UUID, date time.Time) *models.AvailabilityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.records[ledgerKey(tourID, date)]
	copied := *rec
	return &copied
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestReservationService(store ReservationStore) *ReservationService {
	return NewReservationService(store, 15*time.Minute, testLogger())
}

func TestTryHold_Success(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	hold, err := service.TryHold(tourID, date, 3, uuid.New(), 10)
	require.NoError(t, err)
	require.NotNil(t, hold)
	assert.Equal(t, models.HoldStatusHeld, hold.Status)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), hold.ExpiresAt, 2*time.Second)

	rec := store.availability(tourID, date)
	assert.Equal(t, 3, rec.Held)
	assert.Equal(t, 0, rec.Booked)
	assert.Equal(t, 7, rec.Available())
}

func TestTryHold_Unavailable(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	_, err := service.TryHold(tourID, date, 4, uuid.New(), 5)
	require.NoError(t, err)

	_, err = service.TryHold(tourID, date, 2, uuid.New(), 5)
	require.Error(t, err)

	var unavailable *models.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 2, unavailable.Requested)
	assert.Equal(t, 1, unavailable.AvailableSpots)

	// Rejected request must not change the ledger.
	rec := store.availability(tourID, date)
	assert.Equal(t, 4, rec.Held)
}

func TestTryHold_RejectsZeroGuests(t *testing.T) {
	service := newTestReservationService(newMemReservationStore())

	_, err := service.TryHold(uuid.New(), time.Now(), 0, uuid.New(), 10)
	assert.Error(t, err)
}

func TestTryHold_NoOversellUnderConcurrency(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	const capacity = 7
	const requests = 50

	var wg sync.WaitGroup
	results := make(chan error, requests)

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.TryHold(tourID, date, 1, uuid.New(), capacity)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	successes := 0
	unavailable := 0
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var ue *models.UnavailableError
		require.True(t, errors.As(err, &ue), "unexpected error: %v", err)
		unavailable++
	}

	assert.Equal(t, capacity, successes)
	assert.Equal(t, requests-capacity, unavailable)

	rec := store.availability(tourID, date)
	assert.Equal(t, capacity, rec.Held+rec.Booked)
	assert.Equal(t, 0, rec.Available())
}

func TestCommit_MovesHeldToBooked(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	hold, err := service.TryHold(tourID, date, 2, uuid.New(), 5)
	require.NoError(t, err)

	require.NoError(t, service.Commit(hold.ID))

	rec := store.availability(tourID, date)
	assert.Equal(t, 0, rec.Held)
	assert.Equal(t, 2, rec.Booked)

	// Duplicate commit is a no-op.
	require.NoError(t, service.Commit(hold.ID))
	rec = store.availability(tourID, date)
	assert.Equal(t, 2, rec.Booked)
}

func TestRelease_Idempotent(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	hold, err := service.TryHold(tourID, date, 3, uuid.New(), 5)
	require.NoError(t, err)

	require.NoError(t, service.Release(hold.ID))
	recAfterFirst := store.availability(tourID, date)

	require.NoError(t, service.Release(hold.ID))
	recAfterSecond := store.availability(tourID, date)

	assert.Equal(t, 0, recAfterFirst.Held)
	assert.Equal(t, recAfterFirst.Held, recAfterSecond.Held)
	assert.Equal(t, recAfterFirst.Booked, recAfterSecond.Booked)
	assert.Equal(t, 5, recAfterSecond.Available())
}

func TestRelease_UnknownHoldIsNoOp(t *testing.T) {
	service := newTestReservationService(newMemReservationStore())
	assert.NoError(t, service.Release(uuid.New()))
}

func TestSweepExpired_ReclaimsSeats(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	hold, err := service.TryHold(tourID, date, 4, uuid.New(), 6)
	require.NoError(t, err)

	// Force the hold past its TTL.
	store.mu.Lock()
	store.holds[hold.ID].ExpiresAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	swept, err := service.SweepExpired(time.Now(), 100)
	require.NoError(t, err)
	require.Len(t, swept, 1)
	assert.Equal(t, hold.ID, swept[0].ID)

	rec := store.availability(tourID, date)
	assert.Equal(t, 0, rec.Held)
	assert.Equal(t, 6, rec.Available())

	// Committing a swept hold must fail.
	err = service.Commit(hold.ID)
	assert.ErrorIs(t, err, models.ErrHoldExpired)
}

func TestSweepExpired_LeavesLiveHoldsAlone(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	_, err := service.TryHold(tourID, date, 2, uuid.New(), 6)
	require.NoError(t, err)

	swept, err := service.SweepExpired(time.Now(), 100)
	require.NoError(t, err)
	assert.Empty(t, swept)

	rec := store.availability(tourID, date)
	assert.Equal(t, 2, rec.Held)
}

func TestReleaseBooked_FreesConfirmedSeats(t *testing.T) {
	store := newMemReservationStore()
	service := newTestReservationService(store)
	tourID := uuid.New()
	date := time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC)

	hold, err := service.TryHold(tourID, date, 2, uuid.New(), 2)
	require.NoError(t, err)
	require.NoError(t, service.Commit(hold.ID))

	require.NoError(t, service.ReleaseBooked(tourID, date, 2))

	rec := store.availability(tourID, date)
	assert.Equal(t, 0, rec.Booked)
	assert.Equal(t, 2, rec.Available())
}
