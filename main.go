package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/onurcolak/collections-worker/environments"
	"github.com/onurcolak/collections-worker/handlers"
	"github.com/onurcolak/collections-worker/internal/dispatch"
	"github.com/onurcolak/collections-worker/internal/domain"
	"github.com/onurcolak/collections-worker/internal/lock"
	"github.com/onurcolak/collections-worker/internal/middlewares"
	"github.com/onurcolak/collections-worker/internal/ratelimit"
	"github.com/onurcolak/collections-worker/internal/repository"
	"github.com/onurcolak/collections-worker/internal/scheduler"
	"github.com/onurcolak/collections-worker/internal/service"
	"github.com/onurcolak/collections-worker/internal/timeline"
	"github.com/onurcolak/collections-worker/pkg/database"
	"github.com/onurcolak/collections-worker/pkg/email"
	"github.com/onurcolak/collections-worker/pkg/logger"
	"github.com/onurcolak/collections-worker/pkg/redis"
	"github.com/onurcolak/collections-worker/pkg/validator"
	"github.com/onurcolak/collections-worker/routes"
)

func main() {
	logger.Init()

	cfg := environments.Load()

	// Hard-fail if required secrets are missing
	if cfg.Email.APIKey == "" {
		logger.Fatalf("EMAIL_API_KEY is required but not set")
	}
	if cfg.Auth.OpsAPIKey == "" {
		logger.Fatalf("OPS_API_KEY is required but not set")
	}

	logger.Infof("Starting collections worker...")

	db, err := database.NewDB(cfg.Database)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := database.RunMigrations(db); err != nil {
		logger.Fatalf("Failed to run migrations: %v", err)
	}

	if os.Getenv("SEED_DATA") == "true" {
		if err := database.SeedTestData(db); err != nil {
			logger.Warnf("Failed to seed test data: %v", err)
		}
	}

	// The run lock lives in Redis, so there is no degraded mode without it.
	redisClient, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		logger.Fatalf("Failed to connect to Redis: %v", err)
	}

	location := cfg.Worker.Location()
	logger.Infof("Worker day boundaries use timezone %s", location)

	collectionRepo := repository.NewCollectionRepository(db)
	statsBuilder := ratelimit.NewStatsBuilder(collectionRepo, domain.RateLimits{
		MaxActiveCollections:    cfg.RateLimits.MaxActiveCollections,
		MaxDailyMessages:        cfg.RateLimits.MaxDailyMessages,
		MinHoursBetweenMessages: cfg.RateLimits.MinHoursBetweenMessages,
	}, location)

	emailClient := email.NewClient(cfg.Email)
	dispatcher := dispatch.NewClient(emailClient)
	coordinator := lock.NewCoordinator(redisClient)

	collectionService := service.NewCollectionService(
		collectionRepo,
		statsBuilder,
		dispatcher,
		coordinator,
		cfg.Worker,
	)
	timelineService := timeline.NewService(collectionRepo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.NewScheduler(collectionService, cfg.Worker.Schedule, location)
	sched.ConfigureAlerts(cfg.Alert.WebhookURL, cfg.Alert.IterationCount)

	healthHandler := handlers.NewHealthHandler(db, redisClient)
	collectionHandler := handlers.NewCollectionHandler(timelineService)
	schedulerHandler := handlers.NewSchedulerHandler(sched, ctx, cfg)

	if os.Getenv("AUTO_START_SCHEDULER") != "false" {
		logger.Infof("Auto-starting scheduler...")
		if err := sched.Start(ctx); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
	}

	if cfg.Worker.RunOnStart {
		go func() {
			if _, err := sched.RunNow(ctx); err != nil {
				logger.Errorf("Startup run failed: %v", err)
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = validator.New()

	e.Use(middleware.Logger())
	e.Use(middleware.RequestID())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			middlewares.APIKeyHeader,
		},
	}))

	routes.RegisterRoutes(e, healthHandler, collectionHandler, schedulerHandler, cfg)

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Infof("Server starting on http://localhost%s", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Infof("Shutting down gracefully...")

	// Cancelling stops the in-flight batch between cases; the run lock is
	// still released on the way out.
	cancel()

	if sched.IsRunning() {
		logger.Infof("Stopping scheduler...")
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer stopCancel()

		done := make(chan error, 1)
		go func() {
			done <- sched.Stop()
		}()

		select {
		case err := <-done:
			if err != nil {
				logger.Errorf("Error stopping scheduler: %v", err)
			}
		case <-stopCtx.Done():
			logger.Warnf("Scheduler stop timeout, forcing shutdown")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("Shutting down HTTP server...")
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	} else {
		logger.Infof("HTTP server stopped successfully")
	}

	logger.Infof("Closing database connection...")
	if err := db.Close(); err != nil {
		logger.Errorf("Error closing database: %v", err)
	}

	logger.Infof("Closing Redis connection...")
	if err := redisClient.Close(); err != nil {
		logger.Errorf("Error closing Redis: %v", err)
	}

	logger.Infof("Graceful shutdown completed")
}
