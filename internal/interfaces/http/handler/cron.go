package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
)

// CronHandler exposes the billing sweeps to external schedulers. The
// endpoints share a bearer secret and are idempotent, so an overlapping
// external trigger and the in-process ticker cannot double-apply.
type CronHandler struct {
	BaseHandler
	sweep  *appbilling.SweepService
	secret string
	logger *zap.Logger
}

// NewCronHandler creates a new CronHandler
func NewCronHandler(sweep *appbilling.SweepService, secret string, logger *zap.Logger) *CronHandler {
	return &CronHandler{
		sweep:  sweep,
		secret: secret,
		logger: logger,
	}
}

// GracePeriods handles POST /cron/grace-periods
func (h *CronHandler) GracePeriods(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	report, err := h.sweep.SweepGracePeriods(c.Request.Context())
	if err != nil {
		h.logger.Error("Grace period sweep failed", zap.Error(err))
		h.InternalError(c, "Sweep failed")
		return
	}
	h.Success(c, report)
}

// TrialExpirations handles POST /cron/trial-expirations
func (h *CronHandler) TrialExpirations(c *gin.Context) {
	if !h.authorized(c) {
		return
	}

	report, err := h.sweep.SweepTrialExpirations(c.Request.Context())
	if err != nil {
		h.logger.Error("Trial expiration sweep failed", zap.Error(err))
		h.InternalError(c, "Sweep failed")
		return
	}
	h.Success(c, report)
}

func (h *CronHandler) authorized(c *gin.Context) bool {
	if h.secret == "" {
		h.Error(c, http.StatusForbidden, "CRON_DISABLED", "Cron endpoints are not configured")
		return false
	}

	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.secret)) != 1 {
		h.Unauthorized(c, "Invalid cron secret")
		return false
	}
	return true
}
