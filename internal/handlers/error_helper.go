package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tourday/booking-backend/internal/models"
)

// respondError maps domain errors onto HTTP responses with a stable error
// code, so clients can branch on "code" instead of parsing messages.
func respondError(c *gin.Context, err error) {
	var unavailable *models.UnavailableError
	if errors.As(err, &unavailable) {
		c.JSON(http.StatusConflict, gin.H{
			"error":           "unavailable",
			"code":            "INSUFFICIENT_AVAILABILITY",
			"message":         unavailable.Error(),
			"requested":       unavailable.Requested,
			"available_spots": unavailable.AvailableSpots,
		})
		return
	}

	var capacity *models.CapacityExceededError
	if errors.As(err, &capacity) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "capacity_conflict",
			"code":    "CAPACITY_CONFLICT",
			"message": capacity.Error(),
		})
		return
	}

	var invalidPromo *models.InvalidPromoError
	if errors.As(err, &invalidPromo) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":   "invalid_promo",
			"code":    "INVALID_PROMO_CODE",
			"message": invalidPromo.Error(),
			"reason":  invalidPromo.Reason,
		})
		return
	}

	var invalidTransition *models.InvalidTransitionError
	if errors.As(err, &invalidTransition) {
		c.JSON(http.StatusConflict, gin.H{
			"error":   "invalid_state",
			"code":    "INVALID_BOOKING_STATE",
			"message": invalidTransition.Error(),
			"status":  invalidTransition.From,
		})
		return
	}

	var gatewayErr *models.PaymentGatewayError
	if errors.As(err, &gatewayErr) {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "payment_gateway_error",
			"code":    "PAYMENT_GATEWAY_UNAVAILABLE",
			"message": "Payment provider is unavailable, please retry",
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrTourNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "code": "TOUR_NOT_FOUND", "message": "Tour not found"})
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "code": "BOOKING_NOT_FOUND", "message": "Booking not found"})
	case errors.Is(err, models.ErrHoldNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "code": "HOLD_NOT_FOUND", "message": "Hold not found"})
	case errors.Is(err, models.ErrHoldExpired):
		c.JSON(http.StatusConflict, gin.H{"error": "hold_expired", "code": "HOLD_EXPIRED", "message": "Seat hold has expired, please rebook"})
	case errors.Is(err, models.ErrNotOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden", "code": "NOT_BOOKING_OWNER", "message": "Booking belongs to another user"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "code": "INTERNAL_ERROR", "message": "Something went wrong"})
	}
}
