// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"log"

	"opsdesk-service/internal/config"
	"opsdesk-service/internal/db"
	billingHandler "opsdesk-service/internal/handlers/billing"
	wsHandler "opsdesk-service/internal/handlers/ws"
	"opsdesk-service/internal/middleware"
	"opsdesk-service/internal/notify"
	"opsdesk-service/internal/pkg/session"
	"opsdesk-service/internal/provider"
	"opsdesk-service/internal/repository/postgres"
	billingUsecase "opsdesk-service/internal/service/billing"
	usageUsecase "opsdesk-service/internal/service/usage"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addresses: []string{s.cfg.RedisAddr},
		Password:  s.cfg.RedisPass,
		DB:        0,
		PoolSize:  10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	// ----- Payment Provider -----
	// Credentials are optional: without them every lifecycle endpoint
	// degrades to 503 while usage metering keeps working.
	var providerClient provider.Client
	if s.cfg.Billing.Enabled() {
		providerClient = provider.NewStripeClient(s.cfg.Billing, s.cfg.ProviderTimeout, logger)
		logger.Info("billing provider configured")
	} else {
		providerClient = provider.NewDisabled()
		logger.Warn("billing provider credentials missing, running in billing-disabled mode")
	}

	// ----- Session Verifier -----
	verifier := session.NewVerifier(redisClient, s.cfg.SessionSecret, s.cfg.SessionIssuer)

	// ----- WebSocket Hub -----
	hub := notify.NewHub(logger)
	go hub.Run(ctx)

	// ----- Repositories -----
	businessRepo := postgres.NewBusinessRepository(pool)
	planRepo := postgres.NewSubscriptionPlanRepository(pool)
	overageRepo := postgres.NewOverageChargeRepository(pool)

	// ----- Services -----
	planService := billingUsecase.NewPlanService(planRepo, providerClient, logger)
	lifecycleService := billingUsecase.NewLifecycleService(
		businessRepo,
		planRepo,
		planService,
		providerClient,
		hub,
		logger,
	)
	reconcileService := billingUsecase.NewReconcileService(
		businessRepo,
		overageRepo,
		providerClient,
		hub,
		logger,
	)
	usageService := usageUsecase.NewService(redisClient, overageRepo, logger)

	// ----- Handlers -----
	planHandlerInst := billingHandler.NewPlanHandler(planService)
	billingHandlerInst := billingHandler.NewBillingHandler(lifecycleService)
	usageHandlerInst := billingHandler.NewUsageHandler(usageService)
	webhookHandlerInst := billingHandler.NewWebhookHandler(reconcileService, logger)
	wsHandlerInst := wsHandler.NewWebSocketHandler(hub, verifier, s.cfg.AllowedOrigin, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(verifier)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(),
	)

	// ----- Router -----
	handlers := &Handlers{
		PlanHandler:    planHandlerInst,
		BillingHandler: billingHandlerInst,
		UsageHandler:   usageHandlerInst,
		WebhookHandler: webhookHandlerInst,
		WSHandler:      wsHandlerInst,
		AuthMiddleware: authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	log.Printf("server running on %s", s.cfg.HTTPAddr)
	return s.engine.Run(s.cfg.HTTPAddr)
}
