package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/artigen/server/internal/module/ledger"
	"github.com/artigen/server/internal/module/payment"
	"github.com/artigen/server/internal/module/security"
	"github.com/artigen/server/internal/module/task"
	"github.com/artigen/server/internal/module/task/notify"
	"github.com/artigen/server/internal/module/task/provider"
	sharedcache "github.com/artigen/server/internal/shared/cache"
	"github.com/artigen/server/internal/shared/config"
	"github.com/artigen/server/internal/shared/database"
	"github.com/artigen/server/internal/shared/logger"
	"github.com/artigen/server/internal/utils/metrics"
	"github.com/artigen/server/internal/utils/middleware"
)

// App wires the modules together and owns their lifecycles.
type App struct {
	config *config.Config
	db     *gorm.DB
	redis  redis.UniversalClient
	router *gin.Engine
	logger *zap.Logger

	metrics *metrics.Metrics

	validator    *security.PromptValidator
	notifier     notify.Notifier
	natsNotifier *notify.NATSNotifier
	orchestrator *task.Orchestrator
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	app := &App{
		config:  cfg,
		logger:  log,
		metrics: metrics.New("artigen"),
	}

	db, err := database.New(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	app.db = db

	if err := db.AutoMigrate(
		&ledger.Account{},
		&ledger.Entry{},
		&security.AuditEntry{},
		&task.Task{},
		&task.CompletionRecord{},
		&payment.WebhookEvent{},
	); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	// Redis is optional; without it the in-memory limiter serves a
	// single instance.
	if cfg.Redis.Address != "" {
		redisClient, err := sharedcache.NewRedisClient(&cfg.Redis)
		if err != nil {
			log.Warn("redis connection failed, using in-memory rate limiting", zap.Error(err))
		} else {
			app.redis = redisClient
		}
	}

	if err := app.initModules(); err != nil {
		return nil, fmt.Errorf("init modules: %w", err)
	}

	if err := app.orchestrator.Resume(context.Background()); err != nil {
		log.Warn("failed to resume in-flight tasks", zap.Error(err))
	}

	return app, nil
}

// Router returns the HTTP router.
func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) initModules() error {
	cfg := a.config

	// Ledger
	prices := ledger.NewPriceTable(cfg.Pricing.Overrides)
	ledgerRepo := ledger.NewRepository(a.db)
	ledgerService := ledger.NewService(ledgerRepo, prices, cfg.Security.SignupBonus, a.metrics, a.logger)
	ledgerHandler := ledger.NewHandler(ledgerService, a.logger)

	// Security gate
	var limiter security.Limiter
	if a.redis != nil {
		limiter = security.NewRedisLimiter(a.redis)
	} else {
		limiter = security.NewMemoryLimiter()
	}
	a.validator = security.NewPromptValidator(cfg.Security.ValidationCacheTTL)
	auditRepo := security.NewAuditRepository(a.db)
	gate := security.NewService(a.validator, limiter, auditRepo, security.Config{
		RateLimit:       cfg.Security.RateLimit,
		RateLimitWindow: cfg.Security.RateLimitWindow,
	}, a.logger)

	// Providers
	registry := provider.NewRegistry()
	httpClient := &http.Client{Timeout: 60 * time.Second}
	if cfg.Providers.Replicate.Enabled {
		registry.Register(provider.NewReplicateAdapter(cfg.Providers.Replicate.BaseURL, cfg.Providers.Replicate.APIKey, httpClient))
	}
	if cfg.Providers.Luma.Enabled {
		registry.Register(provider.NewLumaAdapter(cfg.Providers.Luma.BaseURL, cfg.Providers.Luma.APIKey, httpClient))
	}
	if cfg.Providers.Stability.Enabled {
		registry.Register(provider.NewStabilityAdapter(cfg.Providers.Stability.BaseURL, cfg.Providers.Stability.APIKey, httpClient))
	}

	// Notifications
	a.notifier = notify.NopNotifier{}
	if cfg.NATS.URL != "" {
		natsNotifier, err := notify.NewNATSNotifier(cfg.NATS.URL, cfg.NATS.SubjectPrefix, a.logger)
		if err != nil {
			a.logger.Warn("nats connection failed, task notifications disabled", zap.Error(err))
		} else {
			a.natsNotifier = natsNotifier
			a.notifier = natsNotifier
		}
	}

	// Tasks
	taskRepo := task.NewRepository(a.db)
	reconciler := task.NewReconciler(taskRepo, ledgerService, registry, a.notifier, cfg.Tasks.WebhookSecret, a.metrics, a.logger)
	a.orchestrator = task.NewOrchestrator(taskRepo, ledgerService, gate, registry, reconciler, task.Config{
		PollInterval:       cfg.Tasks.PollInterval,
		MaxPollAttempts:    cfg.Tasks.MaxPollAttempts,
		MaxConcurrentPolls: cfg.Tasks.MaxConcurrentPolls,
		CallbackBaseURL:    cfg.Server.PublicBaseURL,
	}, a.metrics, a.logger)
	taskHandler := task.NewHandler(a.orchestrator, a.logger)
	generationWebhooks := task.NewWebhookHandler(reconciler, a.logger)

	// Payments
	paymentRepo := payment.NewRepository(a.db)
	paymentService := payment.NewService(paymentRepo, ledgerService, cfg.Stripe.WebhookSecret, a.logger)
	stripeWebhooks := payment.NewWebhookHandler(paymentService, a.logger)

	a.router = a.setupRouter(ledgerHandler, taskHandler, generationWebhooks, stripeWebhooks)
	return nil
}

func (a *App) setupRouter(
	ledgerHandler *ledger.Handler,
	taskHandler *task.Handler,
	generationWebhooks *task.WebhookHandler,
	stripeWebhooks *payment.WebhookHandler,
) *gin.Engine {
	if a.config.Log.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(middleware.Recovery(a.logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(a.logger))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(cors.Default())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	verifier := middleware.NewJWTVerifier(a.config.Auth.JWTSecret)
	api := r.Group("/api/v1")
	api.Use(middleware.RequireAuth(verifier))
	{
		taskHandler.RegisterRoutes(api.Group("/tasks"))
		ledgerHandler.RegisterRoutes(api.Group("/account"))
	}

	webhooks := r.Group("/webhooks")
	{
		generationWebhooks.RegisterRoutes(webhooks)
		stripeWebhooks.RegisterRoutes(webhooks)
	}

	return r
}

// Stop shuts the application down in dependency order.
func (a *App) Stop() {
	if a.orchestrator != nil {
		a.orchestrator.Stop()
	}
	if a.validator != nil {
		a.validator.Stop()
	}
	if a.natsNotifier != nil {
		a.natsNotifier.Close()
	}

	if a.logger != nil {
		_ = a.logger.Sync()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = database.Close(a.db)
	}
}
