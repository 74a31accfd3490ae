package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/polewatch/control-plane/internal/config"
	"github.com/polewatch/control-plane/internal/gateway"
	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/internal/notifications"
	"github.com/polewatch/control-plane/internal/store"
	"github.com/polewatch/control-plane/pkg/cache"
	"github.com/polewatch/control-plane/pkg/database"
	"github.com/polewatch/control-plane/pkg/events"
	"github.com/polewatch/control-plane/pkg/metrics"
	"github.com/polewatch/control-plane/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	// Load configuration; an invalid heartbeat window or interval is fatal
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}

	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting Pole Fault Monitoring control plane")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("connected to database")

	migrateCtx, migrateCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.Migrate(migrateCtx, db); err != nil {
		migrateCancel()
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	migrateCancel()

	// Initialize Redis cache
	redisCache, err := cache.NewCache(cfg.Redis)
	if err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer redisCache.Close()
	logger.Info("connected to Redis")

	// Initialize event bus
	eventBus := events.NewBus(logger)

	// Initialize stores
	nodeStore := store.NewNodeStore(db, logger)
	deviceStore := store.NewDeviceStore(db, logger)
	faultStore := store.NewFaultStore(db, logger)

	if cfg.Seeding.SampleNodes {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := nodeStore.SeedSampleNodes(seedCtx, time.Now()); err != nil {
			logger.Error("failed to seed sample nodes", zap.Error(err))
		}
		seedCancel()
	}

	// Initialize notification service
	notificationConfig, err := notifications.LoadConfig()
	if err != nil {
		logger.Fatal("failed to load notification config", zap.Error(err))
	}

	notificationService, err := notifications.NewService(notificationConfig, deviceStore, redisCache, logger, eventBus)
	if err != nil {
		logger.Fatal("failed to initialize notification service", zap.Error(err))
	}
	notificationService.Start()
	logger.Info("initialized notification service")

	// Initialize heartbeat monitor
	applier := monitor.NewTransitionApplier(nodeStore, logger)
	scanner, err := monitor.NewHeartbeatScanner(nodeStore, applier, notificationService, cfg.Monitor.HeartbeatMaxAge, logger)
	if err != nil {
		logger.Fatal("failed to initialize heartbeat scanner", zap.Error(err))
	}

	scheduler, err := monitor.NewScheduler(scanner, cfg.Monitor.CheckInterval, logger)
	if err != nil {
		logger.Fatal("failed to initialize heartbeat scheduler", zap.Error(err))
	}

	// Start background services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler.Start(ctx)
	logger.Info("started heartbeat monitor",
		zap.Duration("max_age", cfg.Monitor.HeartbeatMaxAge),
		zap.Duration("interval", cfg.Monitor.CheckInterval),
	)

	// Initialize API gateway
	gw := gateway.NewGateway(nodeStore, deviceStore, faultStore, applier, db, redisCache, eventBus, logger, cfg)
	gw.StartHealthMetrics(ctx)
	metrics.StartFleetSampler(ctx, nodeStore, 30*time.Second, logger)
	logger.Info("initialized API gateway")

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gw,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		logger.Info("starting HTTP server",
			zap.String("address", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Let the in-flight scan cycle finish before tearing the rest down
	scheduler.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
