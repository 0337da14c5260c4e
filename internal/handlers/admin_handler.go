package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
	"github.com/tourday/booking-backend/internal/services"
)

// AdminHandler handles per-date capacity and price management
type AdminHandler struct {
	availabilityService *services.AvailabilityService
	logger              *logrus.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(availabilityService *services.AvailabilityService, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		availabilityService: availabilityService,
		logger:              logger,
	}
}

// ============================================================================
// SET PRICE OVERRIDE - PUT /api/v1/admin/tours/:tour_id/price-override
// ============================================================================

// SetPriceOverride sets or clears the per-date price for a tour
// @Summary Set price override
// @Description A null price clears the override back to the tour's base price
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token (admin role)"
// @Param tour_id path string true "Tour ID"
// @Param request body models.SetPriceOverrideRequest true "Date and price"
// @Success 200 {object} models.AvailabilityRecord
// @Failure 404 {object} map[string]interface{} "Tour not found"
// @Router /admin/tours/{tour_id}/price-override [put]
func (h *AdminHandler) SetPriceOverride(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("tour_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tour_id"})
		return
	}

	var req models.SetPriceOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	date, err := time.Parse(models.DateFormat, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	record, err := h.availabilityService.SetPriceOverride(tourID, date, req.Price)
	if err != nil {
		h.logger.WithError(err).WithField("tour_id", tourID).Error("Failed to set price override")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ============================================================================
// SET CAPACITY - PUT /api/v1/admin/tours/:tour_id/capacity
// ============================================================================

// SetCapacity adjusts the sellable capacity for a date
// @Summary Set per-date capacity
// @Description Rejected when the new capacity is below seats already held or booked
// @Tags Admin
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token (admin role)"
// @Param tour_id path string true "Tour ID"
// @Param request body models.SetCapacityRequest true "Date and capacity"
// @Success 200 {object} models.AvailabilityRecord
// @Failure 404 {object} map[string]interface{} "Tour not found"
// @Failure 409 {object} map[string]interface{} "Capacity below held+booked"
// @Router /admin/tours/{tour_id}/capacity [put]
func (h *AdminHandler) SetCapacity(c *gin.Context) {
	tourID, err := uuid.Parse(c.Param("tour_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tour_id"})
		return
	}

	var req models.SetCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	date, err := time.Parse(models.DateFormat, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected YYYY-MM-DD"})
		return
	}

	record, err := h.availabilityService.SetCapacity(tourID, date, req.Capacity)
	if err != nil {
		h.logger.WithError(err).WithField("tour_id", tourID).Error("Failed to set capacity")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}
