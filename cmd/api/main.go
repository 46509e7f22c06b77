package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BradenHooton/sentinel/internal/auth"
	"github.com/BradenHooton/sentinel/internal/background"
	"github.com/BradenHooton/sentinel/internal/config"
	"github.com/BradenHooton/sentinel/internal/database"
	"github.com/BradenHooton/sentinel/internal/events"
	"github.com/BradenHooton/sentinel/internal/geoip"
	"github.com/BradenHooton/sentinel/internal/handlers"
	middlewareCustom "github.com/BradenHooton/sentinel/internal/middleware"
	"github.com/BradenHooton/sentinel/internal/repositories"
	"github.com/BradenHooton/sentinel/internal/routes"
	"github.com/BradenHooton/sentinel/internal/services"
	"github.com/BradenHooton/sentinel/internal/store"
	pkghttp "github.com/BradenHooton/sentinel/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Server.LogLevel)); err == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
		slog.SetDefault(logger)
	}

	logger.Info("configuration loaded",
		slog.String("env", cfg.Server.Env),
		slog.String("window_store", cfg.Store.Backend),
	)

	// Initialize database
	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), time.Minute)
	if err := db.Migrate(migrateCtx, cfg.Database.MigrationsDir); err != nil {
		migrateCancel()
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	migrateCancel()

	// Rules file (keyword tables, operation limits, common passwords)
	rules, err := config.NewRulesStore(cfg.Risk.RulesFile, logger)
	if err != nil {
		logger.Error("failed to load risk rules", slog.Any("error", err))
		os.Exit(1)
	}

	appCtx, appCancel := context.WithCancel(context.Background())
	defer appCancel()

	if err := rules.Watch(appCtx); err != nil {
		logger.Warn("rules hot reload disabled", slog.Any("error", err))
	}

	// Window stores
	advisoryStore := store.NewMemoryStore()
	var (
		authoritativeStore store.WindowStore
		redisStore         *store.RedisStore
		postgresStore      *store.PostgresStore
	)
	switch cfg.Store.Backend {
	case "redis":
		redisStore, err = store.NewRedisStore(appCtx, cfg.Store.RedisURL, cfg.Store.KeyPrefix)
		if err != nil {
			logger.Error("failed to connect to redis", slog.Any("error", err))
			os.Exit(1)
		}
		defer redisStore.Close()
		authoritativeStore = redisStore
	case "memory":
		logger.Warn("using process-local window store, lockouts are not shared between replicas")
		authoritativeStore = advisoryStore
	default:
		postgresStore = store.NewPostgresStore(db)
		authoritativeStore = postgresStore
	}

	// Initialize repositories
	auditRepo := repositories.NewAuditLogRepository(db)
	failureRepo := repositories.NewFailureRecordRepository(db)
	loginEventRepo := repositories.NewLoginEventRepository(db)
	anomalyRepo := repositories.NewAnomalyRepository(db)
	geoRuleRepo := repositories.NewGeoRuleRepository(db)
	reputationRepo := repositories.NewIPReputationRepository(db)
	policyRepo := repositories.NewPasswordPolicyRepository(db)

	// Collaborators
	publisher := events.NewAuditPublisher(cfg.Audit.KafkaBrokers, cfg.Audit.KafkaTopic, cfg.Audit.KafkaEnabled, logger)
	defer publisher.Close()

	geoClient := geoip.NewClient(
		cfg.GeoIP.BaseURL,
		cfg.GeoIP.Timeout,
		geoip.NewBreaker(cfg.GeoIP.FailureThreshold, cfg.GeoIP.ResetTimeout),
		logger,
	)

	// Initialize services
	auditService := services.NewAuditService(auditRepo, publisher, logger)

	lockoutService := services.NewLockoutService(authoritativeStore, failureRepo, auditService, services.LockoutPolicy{
		MaxAttempts:          cfg.Risk.LockoutMaxAttempts,
		Window:               cfg.Risk.LockoutWindow,
		BaseDuration:         cfg.Risk.LockoutDuration,
		EscalationMultiplier: cfg.Risk.LockoutEscalation,
		MaxDuration:          cfg.Risk.LockoutMaxDuration,
		EscalationWindow:     24 * time.Hour,
	}, logger)

	authoritativeLimiter := services.NewRateLimitService(authoritativeStore, rules, auditService, services.Authoritative, logger)
	advisoryLimiter := services.NewRateLimitService(advisoryStore, rules, auditService, services.Advisory, logger)

	geoService := services.NewGeoService(geoRuleRepo, geoClient, auditService, logger)
	networkService := services.NewNetworkService(geoClient, rules, services.NewExitListTorDetector(rules), logger)
	behaviorService := services.NewBehaviorService(reputationRepo, auditService, services.BehaviorConfig{
		BlockScore:              cfg.Risk.BehaviorBlockScore,
		ChallengeScore:          cfg.Risk.BehaviorChallengeScore,
		WarnScore:               cfg.Risk.BehaviorWarnScore,
		IPRequestsPerMinute:     cfg.Risk.IPRequestsPerMinute,
		ReputationBlockDuration: cfg.Risk.ReputationBlockDuration,
	}, logger)
	anomalyService := services.NewAnomalyService(loginEventRepo, anomalyRepo, services.AnomalyConfig{
		MaxTravelSpeedKmh: cfg.Risk.MaxTravelSpeedKmh,
		DeviceHistorySize: cfg.Risk.DeviceHistorySize,
	}, logger)
	passwordService := services.NewPasswordService(policyRepo, rules, logger)

	riskService := services.NewRiskService(
		lockoutService,
		geoService,
		behaviorService,
		networkService,
		anomalyService,
		auditService,
		services.RiskConfig{
			CollaboratorTimeout: cfg.Risk.CollaboratorTimeout,
			EvaluationTimeout:   cfg.Risk.EvaluationTimeout,
		},
		logger,
	)

	// Operator authentication
	tokenManager := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	timingDelay := auth.NewTimingDelay(auth.TimingConfig{
		BaseDelayMs:   cfg.Auth.TimingBaseMs,
		RandomDelayMs: cfg.Auth.TimingRandMs,
	})

	// Initialize cleanup manager
	tasks := []background.Task{
		{Name: "memory_windows", Run: func(ctx context.Context, now time.Time) (int64, error) {
			return int64(advisoryStore.Sweep(now)), nil
		}},
		{Name: "behavior_limiters", Run: func(ctx context.Context, now time.Time) (int64, error) {
			return int64(behaviorService.PruneLimiters(10 * time.Minute)), nil
		}},
		{Name: "reputation_blocks", Run: reputationRepo.ExpireBlocks},
		background.OlderThan("login_events", cfg.Risk.LoginEventRetention, loginEventRepo.DeleteOlderThan),
		background.OlderThan("geo_access_logs", cfg.Risk.GeoLogRetention, geoRuleRepo.DeleteLogsOlderThan),
		background.OlderThan("audit_logs", cfg.Audit.Retention, auditRepo.DeleteOlderThan),
	}
	if postgresStore != nil {
		tasks = append(tasks, background.Task{Name: "window_counters", Run: func(ctx context.Context, now time.Time) (int64, error) {
			return postgresStore.PurgeExpired(ctx, 24*time.Hour)
		}})
	}
	cleanupManager := background.NewCleanupManager(tasks, logger, cfg.Risk.CleanupInterval)

	// Health checks
	checks := map[string]handlers.HealthChecker{"database": db}
	if redisStore != nil {
		checks["redis"] = redisStore
	}

	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	// Setup router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	// Register routes
	routes.RegisterRoutes(router, routes.Handlers{
		Risk:      handlers.NewRiskHandler(riskService, logger),
		RateLimit: handlers.NewRateLimitHandler(authoritativeLimiter, advisoryLimiter, logger),
		Password:  handlers.NewPasswordHandler(passwordService, logger),
		Network:   handlers.NewNetworkHandler(networkService, geoService, logger),
		Admin:     handlers.NewAdminHandler(geoService, riskService, logger),
		Audit:     handlers.NewAuditHandler(auditService, logger),
		Health:    handlers.NewHealthHandler(checks),
	}, routes.Options{
		TokenManager:  tokenManager,
		TimingDelay:   timingDelay,
		IPConfig:      ipConfig,
		EdgeRateLimit: cfg.Server.EdgeRateLimit,
		Logger:        logger,
	})

	// Create server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start cleanup task
	go cleanupManager.Start(appCtx)

	// Start server
	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	cleanupManager.Stop()
	appCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}
