package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inkflow/backend/internal/infrastructure/auth"
	"github.com/inkflow/backend/internal/infrastructure/ratelimit"
	"github.com/inkflow/backend/internal/interfaces/http/handler"
	"github.com/inkflow/backend/internal/interfaces/http/middleware"
)

// Config holds everything the router wires together
type Config struct {
	Generate *handler.GenerateHandler
	Usage    *handler.UsageHandler
	Webhook  *handler.StripeWebhookHandler
	Cron     *handler.CronHandler

	JWTService       *auth.JWTService
	Limiter          *ratelimit.Limiter
	RateLimitEnabled bool

	HealthCheck func() error
	Logger      *zap.Logger
}

// Setup builds the gin engine with all routes registered.
//
// The webhook and cron paths sit outside the JWT group: Stripe signs its
// own deliveries and the cron endpoints carry a shared secret. The rate
// limiter runs after auth so its key is the tenant ID when available.
func Setup(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.GET("/health", func(c *gin.Context) {
		if cfg.HealthCheck != nil {
			if err := cfg.HealthCheck(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	engine.POST("/webhooks/stripe", cfg.Webhook.HandleWebhook)

	cron := engine.Group("/cron")
	{
		cron.POST("/grace-periods", cfg.Cron.GracePeriods)
		cron.POST("/trial-expirations", cfg.Cron.TrialExpirations)
	}

	api := engine.Group("/api/v1")
	api.Use(middleware.JWTAuthMiddleware(cfg.JWTService, cfg.Logger))
	if cfg.RateLimitEnabled && cfg.Limiter != nil {
		api.Use(middleware.RateLimitMiddleware(cfg.Limiter))
	}
	{
		api.POST("/generate", cfg.Generate.Generate)
		api.GET("/usage", cfg.Usage.CurrentPeriod)
	}

	return engine
}
