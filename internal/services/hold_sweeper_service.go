package services

import (
	"time"

	"github.com/sirupsen/logrus"
)

// sweepBatchSize caps how many holds a single sweep cycle processes.
const sweepBatchSize = 100

// HoldSweeperService expires seat holds past their TTL in the background.
// Each cycle releases the held seats back to the ledger and moves the
// affected bookings to expired.
type HoldSweeperService struct {
	bookingService *BookingService
	rateLimiter    *RateLimitService
	logger         *logrus.Logger
	stopCh         chan struct{}
	interval       time.Duration
}

// NewHoldSweeperService creates a new hold sweeper service. rateLimiter may
// be nil; when set, stale rate limit rows are purged on each cycle.
func NewHoldSweeperService(
	bookingService *BookingService,
	rateLimiter *RateLimitService,
	interval time.Duration,
	logger *logrus.Logger,
) *HoldSweeperService {
	return &HoldSweeperService{
		bookingService: bookingService,
		rateLimiter:    rateLimiter,
		logger:         logger,
		stopCh:         make(chan struct{}),
		interval:       interval,
	}
}

// Start begins the background sweep loop
func (s *HoldSweeperService) Start() {
	s.logger.WithField("interval", s.interval.String()).Info("Starting hold sweeper")
	go s.run()
}

// Stop stops the background sweep loop
func (s *HoldSweeperService) Stop() {
	s.logger.Info("Stopping hold sweeper")
	close(s.stopCh)
}

func (s *HoldSweeperService) run() {
	// Run immediately on start
	s.sweep()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			s.logger.Info("Hold sweeper stopped")
			return
		}
	}
}

func (s *HoldSweeperService) sweep() {
	expired, err := s.bookingService.ExpireStale(time.Now(), sweepBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Hold sweep cycle failed")
		return
	}
	if expired > 0 {
		s.logger.WithField("count", expired).Info("Expired stale bookings")
	}

	if s.rateLimiter != nil {
		removed, err := s.rateLimiter.CleanupExpiredRateLimits()
		if err != nil {
			s.logger.WithError(err).Error("Rate limit cleanup failed")
		} else if removed > 0 {
			s.logger.WithField("count", removed).Debug("Purged stale rate limit rows")
		}
	}
}

// RunOnce runs a single sweep cycle (useful for testing or manual trigger)
func (s *HoldSweeperService) RunOnce() {
	s.sweep()
}
