package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/otaviobastosmatriz/rh2026/logging"
	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/service"
	"github.com/otaviobastosmatriz/rh2026/store"
)

// ChargeHandler handles charge issuance and payer status lookups.
type ChargeHandler struct {
	chargeService *service.ChargeService
}

// NewChargeHandler creates a new charge handler
func NewChargeHandler(chargeService *service.ChargeService) *ChargeHandler {
	return &ChargeHandler{chargeService: chargeService}
}

// IssueCharge creates a Pix charge for the payer in the request body.
func (h *ChargeHandler) IssueCharge(c *gin.Context) {
	ctx := c.Request.Context()
	span := trace.SpanFromContext(ctx)

	var req models.IssueChargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid request body"})
		return
	}

	charge, err := h.chargeService.IssueCharge(ctx, &req)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
			return
		}
		logging.WithTraceContext(span).Error("Charge issuance failed",
			zap.Error(err),
			zap.String("slug", req.UserSlug),
		)
		c.JSON(http.StatusBadGateway, models.ErrorResponse{Error: "failed to generate Pix charge, please try again"})
		return
	}

	span.AddEvent("charge_issued")
	c.JSON(http.StatusOK, charge)
}

// GetPayer returns the payer record for the profile page.
func (h *ChargeHandler) GetPayer(c *gin.Context) {
	u, err := h.chargeService.Payer(c.Request.Context(), c.Param("slug"))
	if err != nil {
		writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, u.View())
}

// GetPaymentStatus answers the client's "check payment" action.
func (h *ChargeHandler) GetPaymentStatus(c *gin.Context) {
	slug := c.Param("slug")
	paid, err := h.chargeService.PaymentStatus(c.Request.Context(), slug)
	if err != nil {
		writeLookupError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.PaymentStatusResponse{Slug: slug, Paid: paid})
}

func writeLookupError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: err.Error()})
	default:
		logging.FromContext(c.Request.Context()).Error("Payer lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "failed to read payer"})
	}
}

// HealthCheck handles health check requests
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
