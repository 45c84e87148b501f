// @title           Fabric Fusion Backend API
// @version         1.0.0
// @description     Backend API for generative garment fusion. Clients submit a model photograph and fabric images; a worker pool runs the fusion pipeline and reports progress through the job status endpoints and Redis job events.

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey Bearer
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"fabric-fusion-backend/internal/app"
	"fabric-fusion-backend/internal/config"
	"fabric-fusion-backend/internal/handlers"
	"fabric-fusion-backend/internal/logger"
	"fabric-fusion-backend/internal/middleware"
	"fabric-fusion-backend/internal/services"
	"fabric-fusion-backend/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLog.Sync()

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.Build(ctx, cfg, appLog)
	if err != nil {
		appLog.Fatal("Failed to initialize backends", "error", err)
	}
	defer backends.Close()

	// Workers run in-process next to the API
	processor := worker.NewProcessor(backends.Queue, backends.Orchestrator, cfg.WorkerConcurrency, appLog)
	workersDone := make(chan struct{})
	go func() {
		processor.Start(ctx)
		close(workersDone)
	}()

	fusionService := services.NewFusionService(backends.Store, backends.Queue, backends.Assets, appLog)
	fusionHandler := handlers.NewFusionHandler(fusionService, appLog)

	// Setup router
	router := gin.Default()

	// Health check (no auth)
	router.GET("/health", handlers.HealthHandler)

	// API routes
	api := router.Group("/api/v1")
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.Use(middleware.AuthMiddleware(cfg))
	fusionHandler.Register(api)

	// Start server
	port := cfg.Port
	if port == "" {
		port = "8080"
	}
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLog.Info("Server starting", "port", port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Warn("Server shutdown failed", "error", err)
	}
	<-workersDone
}
