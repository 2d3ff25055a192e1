package handlers

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/otaviobastosmatriz/rh2026/models"
	"github.com/otaviobastosmatriz/rh2026/service"
)

const maxWebhookBody = 1 << 20

// WebhookHandler receives BSPay notifications.
type WebhookHandler struct {
	webhookService *service.WebhookService
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookService *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookService: webhookService}
}

// Notify reconciles one provider notification. 400, 413 and 500 responses
// carry {error}; anything else is {message}.
func (h *WebhookHandler) Notify(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{Error: "webhook payload too large"})
			return
		}
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "failed to read body"})
		return
	}

	if _, err := h.webhookService.HandleNotification(c.Request.Context(), raw); err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			msg := models.ErrMissingNotificationFields.Error()
			if verr.Field == "payload" {
				msg = verr.Error()
			}
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: msg})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: err.Error()})
		return
	}

	c.JSON(http.StatusOK, models.MessageResponse{Message: "Webhook processed successfully"})
}

// RequireWebhookToken rejects deliveries without the shared secret. An empty
// token disables the check.
func RequireWebhookToken(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			c.Next()
			return
		}

		presented := c.Query("token")
		if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			presented = strings.TrimPrefix(auth, "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{Error: "unauthorized"})
			return
		}
		c.Next()
	}
}
