package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/middleware"
	"github.com/tourday/booking-backend/internal/models"
	"github.com/tourday/booking-backend/internal/services"
	"github.com/tourday/booking-backend/internal/utils"
)

// BookingHandler handles the booking lifecycle endpoints
type BookingHandler struct {
	bookingService *services.BookingService
	rateLimiter    *services.RateLimitService
	logger         *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler. rateLimiter may be nil when
// throttling is disabled.
func NewBookingHandler(bookingService *services.BookingService, rateLimiter *services.RateLimitService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookingService: bookingService,
		rateLimiter:    rateLimiter,
		logger:         logger,
	}
}

// ============================================================================
// CREATE BOOKING - POST /api/v1/bookings
// ============================================================================

// CreateBooking creates a booking with a TTL-based seat hold and a price snapshot
// @Summary Create booking
// @Description Holds seats for the TTL period and returns the price breakdown
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.CreateBookingResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Failure 409 {object} map[string]interface{} "Insufficient availability"
// @Failure 422 {object} map[string]interface{} "Invalid promo code"
// @Failure 429 {object} map[string]interface{} "Too many booking attempts"
// @Router /bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if h.rateLimiter != nil {
		clientIP := utils.GetRealIP(c)
		if err := h.rateLimiter.CheckBookingRateLimit(userCtx.UserID, clientIP); err != nil {
			var rateLimitErr *services.RateLimitError
			if errors.As(err, &rateLimitErr) {
				c.JSON(http.StatusTooManyRequests, gin.H{
					"error":       rateLimitErr.Message,
					"code":        "RATE_LIMITED",
					"retry_after": rateLimitErr.RetryAfter,
				})
				return
			}
			h.logger.WithError(err).Warn("Rate limit check failed, allowing request")
		}
		if err := h.rateLimiter.RecordBookingAttempt(userCtx.UserID, clientIP); err != nil {
			h.logger.WithError(err).Warn("Failed to record booking attempt")
		}
	}

	response, err := h.bookingService.CreateBooking(userCtx.UserID, &req)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Warn("Failed to create booking")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response)
}

// ============================================================================
// INITIATE PAYMENT - POST /api/v1/bookings/:booking_id/initiate-payment
// ============================================================================

// InitiatePayment creates a payment intent for a pending booking
// @Summary Initiate payment
// @Description Returns the payment gateway URL for the booking's charge amount
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.InitiatePaymentResponse
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 409 {object} map[string]interface{} "Hold expired or wrong state"
// @Router /bookings/{booking_id}/initiate-payment [post]
func (h *BookingHandler) InitiatePayment(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	response, err := h.bookingService.InitiatePayment(bookingID, userCtx.UserID)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", bookingID).Warn("Failed to initiate payment")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// CANCEL BOOKING - POST /api/v1/bookings/:booking_id/cancel
// ============================================================================

// CancelBooking cancels a booking and reports refund eligibility
// @Summary Cancel booking
// @Description Frees the seats and, for confirmed bookings inside the policy window, flags the refund
// @Tags Bookings
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Param request body models.CancelBookingRequest true "Cancellation reason"
// @Success 200 {object} models.CancelBookingResponse
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Failure 409 {object} map[string]interface{} "Booking already terminal"
// @Router /bookings/{booking_id}/cancel [post]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	var req models.CancelBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.bookingService.CancelBooking(bookingID, userCtx.UserID, req.Reason)
	if err != nil {
		h.logger.WithError(err).WithField("booking_id", bookingID).Warn("Failed to cancel booking")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// GET BOOKING - GET /api/v1/bookings/:booking_id
// ============================================================================

// GetBooking returns one of the caller's bookings
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param booking_id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Router /bookings/{booking_id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	bookingID, err := uuid.Parse(c.Param("booking_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking_id"})
		return
	}

	booking, err := h.bookingService.GetBooking(bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ============================================================================
// LIST BOOKINGS - GET /api/v1/bookings
// ============================================================================

// ListBookings returns the caller's bookings, newest first
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param limit query int false "Page size (default 20, max 100)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} map[string]interface{}
// @Router /bookings [get]
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not authenticated"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if offset < 0 {
		offset = 0
	}

	bookings, err := h.bookingService.ListBookings(userCtx.UserID, limit, offset)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userCtx.UserID).Error("Failed to list bookings")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
		"limit":    limit,
		"offset":   offset,
	})
}
