package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
)

// UsageHandler serves the current-period usage summary
type UsageHandler struct {
	BaseHandler
	usage  *appbilling.UsageService
	logger *zap.Logger
}

// NewUsageHandler creates a new UsageHandler
func NewUsageHandler(usage *appbilling.UsageService, logger *zap.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

// CurrentPeriod handles GET /api/v1/usage
func (h *UsageHandler) CurrentPeriod(c *gin.Context) {
	tenantID, err := getTenantID(c)
	if err != nil {
		h.Unauthorized(c, "Authentication required")
		return
	}

	view, err := h.usage.CurrentPeriod(c.Request.Context(), tenantID)
	if err != nil {
		h.logger.Error("Failed to build usage summary",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		h.HandleError(c, err)
		return
	}
	h.Success(c, view)
}
