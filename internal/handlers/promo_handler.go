package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/tourday/booking-backend/internal/models"
	"github.com/tourday/booking-backend/internal/services"
)

// PromoHandler serves pre-checkout promo code validation
type PromoHandler struct {
	promoService *services.PromoService
	logger       *logrus.Logger
}

// NewPromoHandler creates a new PromoHandler
func NewPromoHandler(promoService *services.PromoService, logger *logrus.Logger) *PromoHandler {
	return &PromoHandler{
		promoService: promoService,
		logger:       logger,
	}
}

// ============================================================================
// VALIDATE PROMO - POST /api/v1/promos/validate
// ============================================================================

// Validate checks a promo code against a cart subtotal
// @Summary Validate promo code
// @Description Returns the discount the code would grant, or the rejection reason
// @Tags Promos
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer token"
// @Param request body models.ValidatePromoRequest true "Code and subtotal"
// @Success 200 {object} models.ValidatePromoResponse
// @Failure 400 {object} map[string]interface{} "Validation error"
// @Router /promos/validate [post]
func (h *PromoHandler) Validate(c *gin.Context) {
	var req models.ValidatePromoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := h.promoService.Quote(req.Code, req.Subtotal, time.Now())
	if err != nil {
		h.logger.WithError(err).WithField("code", req.Code).Error("Promo validation failed")
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}
