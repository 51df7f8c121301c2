package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poolup/carpool/internal/blocklist"
	"github.com/poolup/carpool/internal/cancellation"
	"github.com/poolup/carpool/internal/matching"
	"github.com/poolup/carpool/internal/payments"
	"github.com/poolup/carpool/internal/pricing"
	"github.com/poolup/carpool/internal/reaper"
	"github.com/poolup/carpool/internal/trips"
	"github.com/poolup/carpool/pkg/config"
	"github.com/poolup/carpool/pkg/database"
	"github.com/poolup/carpool/pkg/errors"
	"github.com/poolup/carpool/pkg/eventbus"
	"github.com/poolup/carpool/pkg/logger"
	"github.com/poolup/carpool/pkg/middleware"
	redisclient "github.com/poolup/carpool/pkg/redis"
	"github.com/poolup/carpool/pkg/tracing"
	"github.com/poolup/carpool/pkg/websocket"
	"go.uber.org/zap"
)

const (
	serviceName = "carpool-engine"
	version     = "1.0.0"
)

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	if err := logger.Init(cfg.Server.Environment); err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting carpool engine",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.String("environment", cfg.Server.Environment),
	)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	// Sentry error tracking
	sentryConfig := errors.DefaultSentryConfig()
	sentryConfig.ServerName = serviceName
	sentryConfig.Release = version
	if err := errors.InitSentry(sentryConfig); err != nil {
		logger.Warn("Failed to initialize Sentry, continuing without error tracking", zap.Error(err))
	} else {
		defer errors.Flush(2 * time.Second)
		logger.Info("Sentry error tracking initialized")
	}

	// OpenTelemetry tracing
	tracerEnabled := os.Getenv("OTEL_ENABLED") == "true"
	if tracerEnabled {
		tp, err := tracing.InitTracer(tracing.Config{
			ServiceName:    serviceName,
			ServiceVersion: version,
			Environment:    cfg.Server.Environment,
			OTLPEndpoint:   os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
			Enabled:        true,
		}, logger.Get())
		if err != nil {
			logger.Warn("Failed to initialize tracer, continuing without tracing", zap.Error(err))
		} else if tp != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tp.Shutdown(shutdownCtx); err != nil {
					logger.Warn("Failed to shutdown tracer", zap.Error(err))
				}
			}()
			logger.Info("OpenTelemetry tracing initialized")
		}
	}

	if err := database.RunMigrations(&cfg.Database); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewPostgresPool(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.Close(db)
	logger.Info("Connected to database")

	redisClient, err := redisclient.NewRedisClient(&cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to redis", zap.Error(err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("Failed to close redis client", zap.Error(err))
		}
	}()
	logger.Info("Connected to redis")

	bus, err := eventbus.New(eventbus.Config{
		URL:        cfg.NATS.URL,
		Name:       serviceName,
		StreamName: cfg.NATS.StreamName,
	})
	if err != nil {
		logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer bus.Close()

	// Zone snapshot for the pricing engine
	zones, err := pricing.NewZoneProvider(rootCtx, db)
	if err != nil {
		logger.Fatal("Failed to load pricing zones", zap.Error(err))
	}
	go zones.Start(rootCtx)

	engine := pricing.NewEngine(cfg.Pricing)

	gateway := payments.NewStripeGateway(cfg.Stripe.APIKey)
	orchestrator := payments.NewOrchestrator(gateway, nil)

	blockRepo := blocklist.NewRepository(db)
	blockCache := blocklist.NewCache(blockRepo, redisClient, cfg.Matching.BlockListTTL)

	tripRepo := trips.NewRepository(db)
	tripService := trips.NewService(
		tripRepo,
		engine,
		zones,
		orchestrator,
		cancellation.NewAdjudicator(),
		trips.NewPgDriverDirectory(db),
		bus,
		cfg.Matching.DefaultSearchRadiusKm,
	)

	hub := websocket.NewHub()
	go hub.Run()

	filter := matching.NewFilter(blockCache, cfg.Matching)
	feed := matching.NewFeed(tripRepo, filter, hub)
	feed.RegisterHandlers()
	if err := feed.Start(rootCtx, bus); err != nil {
		logger.Fatal("Failed to start matching feed", zap.Error(err))
	}

	sweeper := reaper.New(tripRepo, orchestrator, tripService, bus, cfg.Reaper)
	go sweeper.Run(rootCtx)

	trips.RegisterValidations()

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(middleware.RecoveryWithSentry())
	router.Use(middleware.SentryMiddleware())
	router.Use(middleware.CorrelationID())
	router.Use(middleware.RequestTimeout(30 * time.Second))
	router.Use(middleware.RequestLogger(serviceName))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(cfg.Server.CORSOrigins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	if tracerEnabled {
		router.Use(middleware.TracingMiddleware(serviceName))
	}
	router.Use(middleware.ErrorHandler())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": serviceName, "version": version, "status": "ok"})
	})
	router.GET("/health/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "database": err.Error()})
			return
		}
		if !bus.Connected() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "nats": "disconnected"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "zones_loaded_at": zones.LoadedAt()})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", func(c *gin.Context) {
		websocket.HandleWebSocket(c, hub, cfg.JWT.Secret)
	})

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(cfg.JWT.Secret))

	trips.NewHandler(tripService).RegisterRoutes(api)
	blocklist.NewHandler(blockRepo, blockCache).RegisterRoutes(api)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancelRoot()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}
