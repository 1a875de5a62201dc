// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockwise/forecaster/internal/api"
	"github.com/stockwise/forecaster/internal/cache"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/daily"
	"github.com/stockwise/forecaster/internal/engine"
	"github.com/stockwise/forecaster/internal/queue"
	"github.com/stockwise/forecaster/internal/reconcile"
	"github.com/stockwise/forecaster/internal/reorder"
	"github.com/stockwise/forecaster/internal/repository/postgres"
	"github.com/stockwise/forecaster/internal/service"
	"github.com/stockwise/forecaster/internal/storage"
	"github.com/stockwise/forecaster/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.Setup(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	archive, err := storage.New(cfg.Archive)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to initialize batch archive")
	}
	summaryCache := cache.NewSummaryCache(cfg.Cache)

	// Repositories
	resultRepo := postgres.NewResultRepository(db)
	adjustmentRepo := postgres.NewAdjustmentRepository(db)
	dailyRepo := postgres.NewDailyRepository(db)
	reorderingRepo := postgres.NewReorderingRepository(db)
	classificationRepo := postgres.NewClassificationRepository(db)
	productRepo := postgres.NewProductRepository(db)
	taskRepo := postgres.NewTaskRepository(db)

	// Pipeline stages
	engineClient := engine.NewClient(cfg.Engine)
	reconciler := reconcile.New(resultRepo, adjustmentRepo, productRepo, cfg.Forecasting)
	decomposer := daily.New(adjustmentRepo, dailyRepo)
	recommender := reorder.New(dailyRepo, resultRepo, classificationRepo, productRepo, reorderingRepo, engineClient, cfg.Forecasting)

	dispatcher := queue.NewDispatcher(taskRepo, cfg.Forecasting.ThresholdToTriggerQueueJob, cfg.Forecasting.AllowTriggerQueueJob)
	pipeline := service.NewPipelineService(dispatcher, reconciler, decomposer, recommender, summaryCache)
	pipeline.RegisterHandlers(dispatcher)

	// Services
	classificationService := service.NewClassificationService(classificationRepo)
	services := &api.Services{
		IngestService:     service.NewIngestService(resultRepo, classificationService, dispatcher, archive, cfg),
		SummaryService:    service.NewSummaryService(adjustmentRepo, summaryCache),
		ReorderingService: service.NewReorderingService(reorderingRepo),
	}

	router := api.NewRouter(services, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
