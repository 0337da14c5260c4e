package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
	"github.com/tourday/booking-backend/internal/services"
)

// WebhookHandler receives payment-result notifications from the gateway
type WebhookHandler struct {
	bookingService *services.BookingService
	logger         *logrus.Logger
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(bookingService *services.BookingService, logger *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{
		bookingService: bookingService,
		logger:         logger,
	}
}

// ============================================================================
// PAYMENT WEBHOOK - POST /api/v1/webhooks/payment
// ============================================================================

// PaymentResult processes a payment outcome from the gateway. The gateway
// retries until it sees 200, so duplicates are expected and answered 200.
// @Summary Payment result webhook
// @Description Gateway-facing endpoint, authenticated by check value instead of JWT
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body models.PaymentWebhookPayload true "Payment result"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{} "Malformed or unverifiable payload"
// @Router /webhooks/payment [post]
func (h *WebhookHandler) PaymentResult(c *gin.Context) {
	var payload models.PaymentWebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	h.logger.WithFields(logrus.Fields{
		"intent_id": payload.IntentID,
		"outcome":   payload.Outcome,
	}).Info("Payment webhook received")

	if err := h.bookingService.HandlePaymentResult(&payload); err != nil {
		h.logger.WithError(err).WithField("intent_id", payload.IntentID).Error("Payment webhook processing failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "processed"})
}
