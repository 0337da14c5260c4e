package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tourday/booking-backend/internal/database"
)

// RateLimitService throttles booking creation attempts. Holds lock inventory
// for the full TTL even when never paid, so a client hammering the create
// endpoint can starve real buyers. Limits are tracked per user and per IP.
type RateLimitService struct {
	db database.DB
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB) *RateLimitService {
	return &RateLimitService{
		db: db,
	}
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	MaxUserAttempts int           // Max booking attempts per user
	UserWindow      time.Duration // Time window for the user limit
	MaxIPAttempts   int           // Max booking attempts per IP
	IPWindow        time.Duration // Time window for the IP limit
}

// DefaultRateLimitConfig returns the default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxUserAttempts: 10,               // 10 attempts
		UserWindow:      15 * time.Minute, // per hold TTL
		MaxIPAttempts:   30,               // 30 attempts
		IPWindow:        1 * time.Hour,    // per hour
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Type       string // "user" or "ip"
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// CheckBookingRateLimit checks if a user or IP has exceeded the booking
// attempt limits.
func (s *RateLimitService) CheckBookingRateLimit(userID uuid.UUID, ip string) error {
	config := DefaultRateLimitConfig()

	if userID != uuid.Nil {
		count, lastAttempt, err := s.getAttemptCount(userID.String(), "user", config.UserWindow)
		if err != nil {
			return fmt.Errorf("failed to check user rate limit: %w", err)
		}

		if count >= config.MaxUserAttempts {
			retryAfter := lastAttempt.Add(config.UserWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many booking attempts for this account. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "user",
			}
		}
	}

	if ip != "" {
		count, lastAttempt, err := s.getAttemptCount(ip, "ip", config.IPWindow)
		if err != nil {
			return fmt.Errorf("failed to check IP rate limit: %w", err)
		}

		if count >= config.MaxIPAttempts {
			retryAfter := lastAttempt.Add(config.IPWindow)
			return &RateLimitError{
				Message:    fmt.Sprintf("Too many booking attempts from this IP address. Please try again after %s", retryAfter.Format("15:04:05")),
				RetryAfter: retryAfter,
				Type:       "ip",
			}
		}
	}

	return nil
}

// getAttemptCount gets the number of attempts within the time window
func (s *RateLimitService) getAttemptCount(identifier, identifierType string, window time.Duration) (int, time.Time, error) {
	windowStart := time.Now().Add(-window)

	query := `
		SELECT COUNT(*), COALESCE(MAX(created_at), NOW())
		FROM booking_rate_limits
		WHERE identifier = $1
		  AND identifier_type = $2
		  AND created_at > $3
	`

	var count int
	var lastAttempt time.Time

	err := s.db.QueryRow(query, identifier, identifierType, windowStart).Scan(&count, &lastAttempt)
	if err != nil && err != sql.ErrNoRows {
		return 0, time.Time{}, err
	}

	return count, lastAttempt, nil
}

// RecordBookingAttempt records a booking attempt for rate limiting. Called on
// every create request that reaches the hold path, successful or not.
func (s *RateLimitService) RecordBookingAttempt(userID uuid.UUID, ip string) error {
	if userID != uuid.Nil {
		if err := s.recordAttempt(userID.String(), "user"); err != nil {
			return fmt.Errorf("failed to record user attempt: %w", err)
		}
	}

	if ip != "" {
		if err := s.recordAttempt(ip, "ip"); err != nil {
			return fmt.Errorf("failed to record IP attempt: %w", err)
		}
	}

	return nil
}

// recordAttempt inserts a rate limit record
func (s *RateLimitService) recordAttempt(identifier, identifierType string) error {
	query := `
		INSERT INTO booking_rate_limits (identifier, identifier_type, created_at)
		VALUES ($1, $2, NOW())
	`

	_, err := s.db.Exec(query, identifier, identifierType)
	return err
}

// CleanupExpiredRateLimits removes rate limit records older than the longest
// window. Invoked by the hold sweeper alongside hold expiry.
func (s *RateLimitService) CleanupExpiredRateLimits() (int64, error) {
	config := DefaultRateLimitConfig()

	maxWindow := config.IPWindow
	if config.UserWindow > maxWindow {
		maxWindow = config.UserWindow
	}

	cutoffTime := time.Now().Add(-maxWindow)

	query := `
		DELETE FROM booking_rate_limits
		WHERE created_at < $1
	`

	result, err := s.db.Exec(query, cutoffTime)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// IsRateLimited checks if an identifier is currently rate limited
func (s *RateLimitService) IsRateLimited(identifier, identifierType string) (bool, time.Time, error) {
	config := DefaultRateLimitConfig()

	window := config.UserWindow
	maxAttempts := config.MaxUserAttempts
	if identifierType == "ip" {
		window = config.IPWindow
		maxAttempts = config.MaxIPAttempts
	}

	count, lastAttempt, err := s.getAttemptCount(identifier, identifierType, window)
	if err != nil {
		return false, time.Time{}, err
	}

	if count >= maxAttempts {
		retryAfter := lastAttempt.Add(window)
		return true, retryAfter, nil
	}

	return false, time.Time{}, nil
}
