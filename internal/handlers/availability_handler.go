package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
	"github.com/tourday/booking-backend/internal/services"
)

// AvailabilityHandler serves public availability queries
type AvailabilityHandler struct {
	bookingService      *services.BookingService
	availabilityService *services.AvailabilityService
	logger              *logrus.Logger
}

// NewAvailabilityHandler creates a new AvailabilityHandler
func NewAvailabilityHandler(
	bookingService *services.BookingService,
	availabilityService *services.AvailabilityService,
	logger *logrus.Logger,
) *AvailabilityHandler {
	return &AvailabilityHandler{
		bookingService:      bookingService,
		availabilityService: availabilityService,
		logger:              logger,
	}
}

// ============================================================================
// CHECK AVAILABILITY - GET /api/v1/tours/:tour_id/availability
// ============================================================================

// CheckAvailability answers whether the requested party fits on a date
// @Summary Check availability
// @Description Returns remaining spots and the effective per-seat price for a date
// @Tags Availability
// @Produce json
// @Param tour_id path string true "Tour ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param guests query int false "Party size (default 1)"
// @Success 200 {object} models.CheckAvailabilityResponse
// @Failure 404 {object} map[string]interface{} "Tour not found"
// @Router /tours/{tour_id}/availability [get]
func (h *AvailabilityHandler) CheckAvailability(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("tour_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tour_id"})
		return
	}

	date, err := time.Parse(models.DateFormat, c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing date, expected YYYY-MM-DD"})
		return
	}

	guests, _ := strconv.Atoi(c.DefaultQuery("guests", "1"))
	if guests < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "guests must be at least 1"})
		return
	}

	response, err := h.bookingService.CheckAvailability(tourID, date, guests)
	if err != nil {
		h.logger.WithError(err).WithField("tour_id", tourID).Error("Availability check failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// ============================================================================
// AVAILABILITY CALENDAR - GET /api/v1/tours/:tour_id/availability/calendar
// ============================================================================

// Calendar returns per-date availability and pricing over a date range
// @Summary Availability calendar
// @Tags Availability
// @Produce json
// @Param tour_id path string true "Tour ID"
// @Param from query string true "Range start (YYYY-MM-DD)"
// @Param to query string true "Range end (YYYY-MM-DD)"
// @Success 200 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{} "Tour not found"
// @Router /tours/{tour_id}/availability/calendar [get]
func (h *AvailabilityHandler) Calendar(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("tour_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tour_id"})
		return
	}

	from, err := time.Parse(models.DateFormat, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing from date, expected YYYY-MM-DD"})
		return
	}
	to, err := time.Parse(models.DateFormat, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid or missing to date, expected YYYY-MM-DD"})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must not be before from"})
		return
	}

	entries, err := h.availabilityService.Calendar(tourID, from, to)
	if err != nil {
		h.logger.WithError(err).WithField("tour_id", tourID).Error("Calendar query failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tour_id": tourID,
		"from":    from.Format(models.DateFormat),
		"to":      to.Format(models.DateFormat),
		"dates":   entries,
	})
}
