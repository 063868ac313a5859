package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appbilling "github.com/inkflow/backend/internal/application/billing"
	"github.com/inkflow/backend/internal/application/generation"
	domainbilling "github.com/inkflow/backend/internal/domain/billing"
	"github.com/inkflow/backend/internal/domain/identity"
	"github.com/inkflow/backend/internal/domain/shared"
	"github.com/inkflow/backend/internal/infrastructure/auth"
	infrabilling "github.com/inkflow/backend/internal/infrastructure/billing"
	"github.com/inkflow/backend/internal/infrastructure/cache"
	"github.com/inkflow/backend/internal/infrastructure/config"
	"github.com/inkflow/backend/internal/infrastructure/counter"
	"github.com/inkflow/backend/internal/infrastructure/logger"
	"github.com/inkflow/backend/internal/infrastructure/persistence"
	"github.com/inkflow/backend/internal/infrastructure/provider"
	"github.com/inkflow/backend/internal/infrastructure/ratelimit"
	"github.com/inkflow/backend/internal/infrastructure/scheduler"
	"github.com/inkflow/backend/internal/interfaces/http/handler"
	"github.com/inkflow/backend/internal/interfaces/http/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting Inkflow backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Database
	db, err := persistence.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()

	if err := db.DB.AutoMigrate(
		&identity.Tenant{},
		&domainbilling.UsageRecord{},
		&domainbilling.LifecycleEvent{},
	); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}
	log.Info("Database connected")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Counter store: Redis primary with a sticky in-process fallback. The
	// fallback's janitor runs for the process lifetime.
	memoryStore := counter.NewMemoryStore()
	memoryStore.Start(rootCtx)
	defer memoryStore.Stop()

	var counterStore counter.Store = memoryStore
	var idempotencyStore shared.IdempotencyStore = cache.NewInMemoryIdempotencyStore()

	if cfg.Redis.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(rootCtx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		pingCancel()
		if err != nil {
			log.Warn("Redis unavailable at startup, using in-process stores", zap.Error(err))
		} else {
			counterStore = counter.NewFallbackStore(counter.NewRedisStore(redisClient), memoryStore, log)
			idempotencyStore = cache.NewRedisIdempotencyStoreWithClient(redisClient, "")
			log.Info("Redis connected", zap.String("addr", cfg.Redis.Addr()))
		}
	}
	defer func() {
		if err := idempotencyStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()

	limiter := ratelimit.NewLimiter(counterStore, ratelimit.Config{
		MaxRequests: cfg.HTTP.RateLimitRequests,
		Window:      cfg.HTTP.RateLimitWindow,
	}, log)

	// Repositories
	tenantRepo := persistence.NewGormTenantRepository(db.DB)
	usageRepo := persistence.NewGormUsageRecordRepository(db.DB)
	eventRepo := persistence.NewGormLifecycleEventRepository(db.DB)

	// Stripe
	stripeConfig := &infrabilling.StripeConfig{
		SecretKey:     cfg.Stripe.SecretKey,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		IsTestMode:    cfg.Stripe.IsTestMode,
		PriceIDs:      cfg.Stripe.PriceIDs,
	}
	stripeAdapter, err := infrabilling.NewStripeAdapter(stripeConfig, log)
	if err != nil {
		log.Warn("Stripe adapter not configured, webhook session lookups disabled", zap.Error(err))
	}

	// Application services
	subscriptionService := appbilling.NewSubscriptionService(tenantRepo, eventRepo, log)
	quotaLedger := appbilling.NewQuotaLedger(tenantRepo, log)
	usageService := appbilling.NewUsageService(tenantRepo, usageRepo, log)
	sweepService := appbilling.NewSweepService(tenantRepo, eventRepo, subscriptionService, cfg.Sweep.ReminderDays, log)
	webhookService := appbilling.NewStripeWebhookService(appbilling.StripeWebhookServiceConfig{
		Config:       stripeConfig,
		Adapter:      stripeAdapter,
		Tenants:      tenantRepo,
		Subscription: subscriptionService,
		Idempotency:  idempotencyStore,
		IdemConfig:   shared.DefaultIdempotencyConfig(),
		Logger:       log,
	})

	generator := provider.NewOpenAIClient(cfg.Generation.BaseURL, cfg.Generation.APIKey, log,
		provider.WithModel(cfg.Generation.Model),
		provider.WithMaxTokens(cfg.Generation.MaxTokens),
		provider.WithHTTPClient(&http.Client{Timeout: cfg.Generation.RequestTimeout}),
	)
	executor := generation.NewExecutor(generator, generation.ExecutorConfig{
		MaxRetries: cfg.Generation.MaxRetries,
		BackoffCap: cfg.Generation.BackoffCap,
		Timeout:    cfg.Generation.RequestTimeout,
	}, log)
	generationService := generation.NewService(quotaLedger, executor, usageRepo, log)

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessTokenExpiration)

	// In-process sweep loop
	if cfg.Sweep.Enabled {
		sweepScheduler := scheduler.NewSweepScheduler(scheduler.SweepSchedulerConfig{
			Interval: cfg.Sweep.Interval,
		}, sweepService, log)
		if err := sweepScheduler.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sweep scheduler", zap.Error(err))
		}
		defer sweepScheduler.Stop()
	}

	engine := router.Setup(router.Config{
		Generate:         handler.NewGenerateHandler(generationService, log),
		Usage:            handler.NewUsageHandler(usageService, log),
		Webhook:          handler.NewStripeWebhookHandler(webhookService, log),
		Cron:             handler.NewCronHandler(sweepService, cfg.Sweep.CronSecret, log),
		JWTService:       jwtService,
		Limiter:          limiter,
		RateLimitEnabled: cfg.HTTP.RateLimitEnabled,
		HealthCheck:      db.Ping,
		Logger:           log,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
