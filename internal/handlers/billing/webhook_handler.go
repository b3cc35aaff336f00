// internal/handlers/billing/webhook_handler.go
package billing

import (
	"errors"
	"net/http"

	xerrors "opsdesk-service/internal/pkg/errors"
	"opsdesk-service/internal/pkg/response"
	service "opsdesk-service/internal/service/billing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type WebhookHandler struct {
	reconcileService *service.ReconcileService
	logger           *zap.Logger
}

func NewWebhookHandler(reconcileService *service.ReconcileService, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconcileService: reconcileService,
		logger:           logger,
	}
}

// HandleWebhook receives provider events. The provider retries on any
// non-2xx response, so only transient failures return 500; everything the
// service chose to skip or discard is acknowledged with 200.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		response.Error(c, http.StatusBadRequest, "failed to read payload", err)
		return
	}

	signature := c.GetHeader("Stripe-Signature")

	err = h.reconcileService.HandleEvent(c.Request.Context(), payload, signature)
	if err != nil {
		switch {
		case errors.Is(err, xerrors.ErrSignatureInvalid), errors.Is(err, xerrors.ErrNotConfigured):
			// Permanent rejection: a retry will never succeed.
			response.Error(c, http.StatusBadRequest, "webhook rejected", err)
		default:
			h.logger.Error("webhook processing failed", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "webhook processing failed", err)
		}
		return
	}

	response.Success(c, http.StatusOK, "event processed", nil)
}
