package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
)

// maxWebhookBodySize bounds the raw payload read for signature checking
const maxWebhookBodySize = 1 << 16 // 64KB, Stripe events are small

// StripeWebhookHandler receives Stripe webhook deliveries
type StripeWebhookHandler struct {
	BaseHandler
	service *appbilling.StripeWebhookService
	logger  *zap.Logger
}

// NewStripeWebhookHandler creates a new StripeWebhookHandler
func NewStripeWebhookHandler(service *appbilling.StripeWebhookService, logger *zap.Logger) *StripeWebhookHandler {
	return &StripeWebhookHandler{
		service: service,
		logger:  logger,
	}
}

// HandleWebhook handles POST /webhooks/stripe.
//
// The body is read raw; signature verification needs the exact bytes
// Stripe signed. A missing or invalid signature is 403, never a silent
// accept. Processing errors return 500 so Stripe redelivers; redeliveries
// are safe because processing is idempotent.
func (h *StripeWebhookHandler) HandleWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodySize))
	if err != nil {
		h.logger.Error("Failed to read webhook body", zap.Error(err))
		h.BadRequest(c, "Failed to read request body")
		return
	}
	if len(payload) == 0 {
		// An empty body can never verify against any signature.
		h.Error(c, http.StatusForbidden, "INVALID_SIGNATURE", "Empty request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.Error(c, http.StatusForbidden, "INVALID_SIGNATURE", "Missing Stripe-Signature header")
		return
	}

	result, err := h.service.ProcessWebhook(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, appbilling.ErrInvalidSignature) {
			h.Error(c, http.StatusForbidden, "INVALID_SIGNATURE", "Webhook signature verification failed")
			return
		}
		h.InternalError(c, "Failed to process webhook event")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"received":  true,
		"processed": result.Processed,
		"event_id":  result.EventID,
	})
}
