package services

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tourday/booking-backend/internal/config"
	"github.com/tourday/booking-backend/internal/models"
)

// GetOrCreate lets the in-memory reservation store double also serve as the
// booking flow's AvailabilityStore.
func (m *memReservationStore) GetOrCreate(tourID uuid.UUID, date time.Time, defaultCapacity int) (*models.AvailabilityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(tourID, date, defaultCapacity)
	copied := *rec
	return &copied, nil
}

type memTourStore struct {
	tours map[uuid.UUID]*models.Tour
}

func (m *memTourStore) GetByID(tourID uuid.UUID) (*models.Tour, error) {
	tour, ok := m.tours[tourID]
	if !ok {
		return nil, nil
	}
	copied := *tour
	return &copied, nil
}

// memBookingStore mirrors the repository's guarded-update semantics: a mark
// call succeeds only from the statuses the SQL guard allows.
type memBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
}

func newMemBookingStore() *memBookingStore {
	return &memBookingStore{bookings: make(map[uuid.UUID]*models.Booking)}
}

func (m *memBookingStore) Create(booking *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.Reference = fmt.Sprintf("BK-%X", booking.ID[:4])
	booking.CreatedAt = time.Now()
	booking.UpdatedAt = booking.CreatedAt
	stored := *booking
	m.bookings[booking.ID] = &stored
	return nil
}

func (m *memBookingStore) GetByID(bookingID uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[bookingID]
	if !ok {
		return nil, nil
	}
	copied := *booking
	return &copied, nil
}

func (m *memBookingStore) GetByPaymentIntentID(intentID string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, booking := range m.bookings {
		if booking.PaymentIntentID != nil && *booking.PaymentIntentID == intentID {
			copied := *booking
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memBookingStore) ListByUser(userID uuid.UUID, limit, offset int) ([]*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]*models.Booking, 0)
	for _, booking := range m.bookings {
		if booking.UserID == userID {
			copied := *booking
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memBookingStore) mark(bookingID uuid.UUID, to models.BookingStatus, allowed ...models.BookingStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[bookingID]
	if !ok {
		return false
	}
	for _, from := range allowed {
		if booking.Status == from {
			booking.Status = to
			booking.UpdatedAt = time.Now()
			return true
		}
	}
	return false
}

func (m *memBookingStore) MarkAwaitingPayment(bookingID uuid.UUID, intentID string) (bool, error) {
	ok := m.mark(bookingID, models.BookingStatusAwaitingPayment, models.BookingStatusPending)
	if ok {
		m.mu.Lock()
		now := time.Now()
		m.bookings[bookingID].PaymentIntentID = &intentID
		m.bookings[bookingID].PaymentInitiatedAt = &now
		m.mu.Unlock()
	}
	return ok, nil
}

func (m *memBookingStore) MarkConfirmed(bookingID uuid.UUID) (bool, error) {
	return m.mark(bookingID, models.BookingStatusConfirmed, models.BookingStatusAwaitingPayment), nil
}

func (m *memBookingStore) MarkCancelled(bookingID uuid.UUID, reason string) (bool, error) {
	ok := m.mark(bookingID, models.BookingStatusCancelled,
		models.BookingStatusPending, models.BookingStatusAwaitingPayment, models.BookingStatusConfirmed)
	if ok {
		m.mu.Lock()
		m.bookings[bookingID].CancellationReason = &reason
		m.mu.Unlock()
	}
	return ok, nil
}

func (m *memBookingStore) MarkExpired(bookingID uuid.UUID) (bool, error) {
	return m.mark(bookingID, models.BookingStatusExpired,
		models.BookingStatusPending, models.BookingStatusAwaitingPayment), nil
}

func (m *memBookingStore) MarkRefunded(bookingID uuid.UUID, reason string) (bool, error) {
	return m.mark(bookingID, models.BookingStatusRefunded, models.BookingStatusConfirmed), nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingNotifier) Notify(eventType string, payload map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, eventType)
}

func (r *recordingNotifier) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type bookingFixture struct {
	service  *BookingService
	tour     *models.Tour
	store    *memReservationStore
	bookings *memBookingStore
	notifier *recordingNotifier
}

func newBookingFixture(t *testing.T, tour *models.Tour) *bookingFixture {
	t.Helper()

	store := newMemReservationStore()
	bookings := newMemBookingStore()
	notifier := &recordingNotifier{}
	logger := testLogger()

	cfg := config.BookingConfig{
		HoldTTL:            15 * time.Minute,
		SweepInterval:      time.Minute,
		FixedDeposit:       10000,
		CancellationWindow: 24 * time.Hour,
		Currency:           "KRW",
	}

	service := NewBookingService(
		&memTourStore{tours: map[uuid.UUID]*models.Tour{tour.ID: tour}},
		bookings,
		store,
		NewReservationService(store, cfg.HoldTTL, logger),
		NewPricingService(cfg.FixedDeposit, cfg.Currency),
		NewPromoService(&memPromoStore{promos: map[string]*models.PromoCode{}}),
		NewMockPaymentGateway(logger),
		notifier,
		cfg,
		logger,
	)

	return &bookingFixture{
		service:  service,
		tour:     tour,
		store:    store,
		bookings: bookings,
		notifier: notifier,
	}
}

func dateIn(days int) (time.Time, string) {
	date := time.Now().UTC().AddDate(0, 0, days).Truncate(24 * time.Hour)
	return date, date.Format(models.DateFormat)
}

func TestCreateBooking_Success(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	userID := uuid.New()
	date, dateStr := dateIn(10)

	resp, err := fx.service.CreateBooking(userID, &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    2,
		PaymentMethod: models.PaymentMethodFull,
	})
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusPending, resp.Status)
	assert.NotEmpty(t, resp.Reference)
	assert.Equal(t, int64(100000), resp.PriceBreakdown.Total)
	assert.WithinDuration(t, time.Now().Add(15*time.Minute), resp.HoldExpiresAt, 2*time.Second)

	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 2, rec.Held)
	assert.Equal(t, 0, rec.Booked)

	booking, err := fx.bookings.GetByID(resp.BookingID)
	require.NoError(t, err)
	require.NotNil(t, booking)
	assert.Equal(t, int64(50000), booking.UnitPrice)
	assert.NotNil(t, booking.HoldID)

	assert.Equal(t, []string{EventBookingCreated}, fx.notifier.all())
}

func TestCreateBooking_UnknownPromoReleasesHold(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	date, dateStr := dateIn(10)
	promoCode := "NOPE"

	_, err := fx.service.CreateBooking(uuid.New(), &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    2,
		PaymentMethod: models.PaymentMethodFull,
		PromoCode:     &promoCode,
	})
	require.Error(t, err)

	var invalid *models.InvalidPromoError
	require.True(t, errors.As(err, &invalid))

	// No partial state: the hold was released and nothing was persisted.
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Held)
	assert.Empty(t, fx.bookings.bookings)
	assert.Empty(t, fx.notifier.all())
}

func TestCreateBooking_Unavailable(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	tour.CapacityPerDate = 2
	fx := newBookingFixture(t, tour)
	_, dateStr := dateIn(10)

	_, err := fx.service.CreateBooking(uuid.New(), &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    3,
		PaymentMethod: models.PaymentMethodFull,
	})
	require.Error(t, err)

	var unavailable *models.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 2, unavailable.AvailableSpots)
}

func TestCreateBooking_UnknownTour(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))
	_, dateStr := dateIn(10)

	_, err := fx.service.CreateBooking(uuid.New(), &models.CreateBookingRequest{
		TourID:        uuid.New().String(),
		Date:          dateStr,
		GuestCount:    1,
		PaymentMethod: models.PaymentMethodFull,
	})
	assert.ErrorIs(t, err, models.ErrTourNotFound)
}

func createTestBooking(t *testing.T, fx *bookingFixture, userID uuid.UUID, guests int, method models.PaymentMethod) *models.CreateBookingResponse {
	t.Helper()
	_, dateStr := dateIn(10)
	resp, err := fx.service.CreateBooking(userID, &models.CreateBookingRequest{
		TourID:        fx.tour.ID.String(),
		Date:          dateStr,
		GuestCount:    guests,
		PaymentMethod: method,
	})
	require.NoError(t, err)
	return resp
}

func TestInitiatePayment_Success(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 2, models.PaymentMethodDeposit)

	resp, err := fx.service.InitiatePayment(created.BookingID, userID)
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusAwaitingPayment, resp.Status)
	assert.NotEmpty(t, resp.IntentID)
	assert.NotEmpty(t, resp.PaymentURL)
	// Deposit split: only the fixed deposit is charged online.
	assert.Equal(t, int64(10000), resp.Amount)

	booking, _ := fx.bookings.GetByID(created.BookingID)
	assert.Equal(t, models.BookingStatusAwaitingPayment, booking.Status)
	require.NotNil(t, booking.PaymentIntentID)
	assert.Equal(t, resp.IntentID, *booking.PaymentIntentID)
}

func TestInitiatePayment_TwiceFails(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 1, models.PaymentMethodFull)

	_, err := fx.service.InitiatePayment(created.BookingID, userID)
	require.NoError(t, err)

	_, err = fx.service.InitiatePayment(created.BookingID, userID)
	var invalid *models.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.BookingStatusAwaitingPayment, invalid.From)
}

func TestInitiatePayment_WrongUser(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))
	created := createTestBooking(t, fx, uuid.New(), 1, models.PaymentMethodFull)

	_, err := fx.service.InitiatePayment(created.BookingID, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotOwner)
}

func payForBooking(t *testing.T, fx *bookingFixture, bookingID, userID uuid.UUID) string {
	t.Helper()
	resp, err := fx.service.InitiatePayment(bookingID, userID)
	require.NoError(t, err)
	return resp.IntentID
}

func TestHandlePaymentResult_SuccessConfirms(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 2, models.PaymentMethodFull)
	intentID := payForBooking(t, fx, created.BookingID, userID)

	err := fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: intentID,
		Outcome:  models.PaymentOutcomeSucceeded,
	})
	require.NoError(t, err)

	booking, _ := fx.bookings.GetByID(created.BookingID)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)

	date, _ := dateIn(10)
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Held)
	assert.Equal(t, 2, rec.Booked)

	assert.Contains(t, fx.notifier.all(), EventBookingConfirmed)

	// Duplicate delivery is a no-op.
	err = fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: intentID,
		Outcome:  models.PaymentOutcomeSucceeded,
	})
	require.NoError(t, err)
	rec = fx.store.availability(tour.ID, date)
	assert.Equal(t, 2, rec.Booked)
}

func TestHandlePaymentResult_FailureCancelsAndReleases(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 2, models.PaymentMethodFull)
	intentID := payForBooking(t, fx, created.BookingID, userID)

	err := fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: intentID,
		Outcome:  models.PaymentOutcomeFailed,
	})
	require.NoError(t, err)

	booking, _ := fx.bookings.GetByID(created.BookingID)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)

	date, _ := dateIn(10)
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Held)
	assert.Equal(t, 0, rec.Booked)
	assert.Equal(t, tour.CapacityPerDate, rec.Available())

	assert.Contains(t, fx.notifier.all(), EventBookingCancelled)
}

func TestHandlePaymentResult_UnknownIntent(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))

	err := fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: "PI-UNKNOWN",
		Outcome:  models.PaymentOutcomeSucceeded,
	})
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestCancelBooking_BeforePaymentReleasesHold(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 2, models.PaymentMethodFull)

	resp, err := fx.service.CancelBooking(created.BookingID, userID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusCancelled, resp.Status)
	assert.False(t, resp.RefundEligible)

	date, _ := dateIn(10)
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Held)
}

func TestCancelBooking_ConfirmedWithNoticeRefunds(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 2, models.PaymentMethodFull)
	intentID := payForBooking(t, fx, created.BookingID, userID)
	require.NoError(t, fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: intentID,
		Outcome:  models.PaymentOutcomeSucceeded,
	}))

	// The tour date is 10 days out, well past the 24h window.
	resp, err := fx.service.CancelBooking(created.BookingID, userID, "plans changed")
	require.NoError(t, err)

	assert.Equal(t, models.BookingStatusRefunded, resp.Status)
	assert.True(t, resp.RefundEligible)
	assert.Equal(t, int64(100000), resp.RefundAmount)

	date, _ := dateIn(10)
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Booked)
	assert.Equal(t, tour.CapacityPerDate, rec.Available())

	assert.Contains(t, fx.notifier.all(), EventBookingRefunded)
}

func TestCancelBooking_TerminalFails(t *testing.T) {
	fx := newBookingFixture(t, testTour(models.PricePerPerson, 50000))
	userID := uuid.New()
	created := createTestBooking(t, fx, userID, 1, models.PaymentMethodFull)

	_, err := fx.service.CancelBooking(created.BookingID, userID, "first")
	require.NoError(t, err)

	_, err = fx.service.CancelBooking(created.BookingID, userID, "second")
	var invalid *models.InvalidTransitionError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, models.BookingStatusCancelled, invalid.From)

	booking, _ := fx.bookings.GetByID(created.BookingID)
	assert.Equal(t, models.BookingStatusCancelled, booking.Status)
}

func TestExpireStale_ExpiresBookingAndReclaimsSeats(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	fx := newBookingFixture(t, tour)
	created := createTestBooking(t, fx, uuid.New(), 2, models.PaymentMethodFull)

	booking, _ := fx.bookings.GetByID(created.BookingID)
	require.NotNil(t, booking.HoldID)

	// Force the hold past its TTL.
	fx.store.mu.Lock()
	fx.store.holds[*booking.HoldID].ExpiresAt = time.Now().Add(-time.Minute)
	fx.store.mu.Unlock()

	expired, err := fx.service.ExpireStale(time.Now(), 100)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	booking, _ = fx.bookings.GetByID(created.BookingID)
	assert.Equal(t, models.BookingStatusExpired, booking.Status)

	date, _ := dateIn(10)
	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, tour.CapacityPerDate, rec.Available())

	assert.Contains(t, fx.notifier.all(), EventBookingExpired)
}

// Full lifecycle: a party books out a date, a second request is rejected,
// then the first cancels with notice and the seats open up again.
func TestBookingLifecycle_CapacityRoundTrip(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	tour.CapacityPerDate = 2
	fx := newBookingFixture(t, tour)
	userA := uuid.New()
	userB := uuid.New()
	date, dateStr := dateIn(10)

	// A books both seats and pays.
	bookingA, err := fx.service.CreateBooking(userA, &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    2,
		PaymentMethod: models.PaymentMethodFull,
	})
	require.NoError(t, err)
	intentID := payForBooking(t, fx, bookingA.BookingID, userA)
	require.NoError(t, fx.service.HandlePaymentResult(&models.PaymentWebhookPayload{
		IntentID: intentID,
		Outcome:  models.PaymentOutcomeSucceeded,
	}))

	rec := fx.store.availability(tour.ID, date)
	assert.Equal(t, 2, rec.Booked)
	assert.Equal(t, 0, rec.Held)

	// B wants one seat and is turned away.
	_, err = fx.service.CreateBooking(userB, &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    1,
		PaymentMethod: models.PaymentMethodFull,
	})
	var unavailable *models.UnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, 0, unavailable.AvailableSpots)

	// A cancels with 10 days notice and is refund eligible.
	cancelResp, err := fx.service.CancelBooking(bookingA.BookingID, userA, "plans changed")
	require.NoError(t, err)
	assert.True(t, cancelResp.RefundEligible)

	rec = fx.store.availability(tour.ID, date)
	assert.Equal(t, 0, rec.Booked)

	// B retries and now succeeds.
	bookingB, err := fx.service.CreateBooking(userB, &models.CreateBookingRequest{
		TourID:        tour.ID.String(),
		Date:          dateStr,
		GuestCount:    1,
		PaymentMethod: models.PaymentMethodFull,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, bookingB.Status)
}

func TestCheckAvailability(t *testing.T) {
	tour := testTour(models.PricePerPerson, 50000)
	tour.CapacityPerDate = 5
	fx := newBookingFixture(t, tour)
	date, dateStr := dateIn(10)

	resp, err := fx.service.CheckAvailability(tour.ID, date, 3)
	require.NoError(t, err)
	assert.True(t, resp.Available)
	assert.Equal(t, 5, resp.AvailableSpots)
	assert.Equal(t, int64(50000), resp.UnitPrice)

	createTestBookingOnDate(t, fx, uuid.New(), 4, dateStr)

	resp, err = fx.service.CheckAvailability(tour.ID, date, 3)
	require.NoError(t, err)
	assert.False(t, resp.Available)
	assert.Equal(t, 1, resp.AvailableSpots)
}

func createTestBookingOnDate(t *testing.T, fx *bookingFixture, userID uuid.UUID, guests int, dateStr string) {
	t.Helper()
	_, err := fx.service.CreateBooking(userID, &models.CreateBookingRequest{
		TourID:        fx.tour.ID.String(),
		Date:          dateStr,
		GuestCount:    guests,
		PaymentMethod: models.PaymentMethodFull,
	})
	require.NoError(t, err)
}
