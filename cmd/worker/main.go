// cmd/worker/main.go
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/urfave/cli/v2"

	"github.com/stockwise/forecaster/internal/cache"
	"github.com/stockwise/forecaster/internal/config"
	"github.com/stockwise/forecaster/internal/daily"
	"github.com/stockwise/forecaster/internal/engine"
	"github.com/stockwise/forecaster/internal/queue"
	"github.com/stockwise/forecaster/internal/quiet"
	"github.com/stockwise/forecaster/internal/reconcile"
	"github.com/stockwise/forecaster/internal/reorder"
	"github.com/stockwise/forecaster/internal/repository/postgres"
	"github.com/stockwise/forecaster/internal/service"
	"github.com/stockwise/forecaster/pkg/logger"
)

// stack holds the wired components shared by the worker commands.
type stack struct {
	cfg      *config.Config
	db       *postgres.DB
	taskRepo *postgres.TaskRepository
	pipeline *service.PipelineService
	worker   *queue.Worker
	quiet    *quiet.Estimator
}

func buildStack() (*stack, error) {
	cfg := config.Load()
	logger.Setup(cfg.Server.Mode)

	db, err := postgres.NewDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	resultRepo := postgres.NewResultRepository(db)
	adjustmentRepo := postgres.NewAdjustmentRepository(db)
	dailyRepo := postgres.NewDailyRepository(db)
	reorderingRepo := postgres.NewReorderingRepository(db)
	classificationRepo := postgres.NewClassificationRepository(db)
	productRepo := postgres.NewProductRepository(db)
	orderRepo := postgres.NewOrderRepository(db)
	taskRepo := postgres.NewTaskRepository(db)

	engineClient := engine.NewClient(cfg.Engine)
	reconciler := reconcile.New(resultRepo, adjustmentRepo, productRepo, cfg.Forecasting)
	decomposer := daily.New(adjustmentRepo, dailyRepo)
	recommender := reorder.New(dailyRepo, resultRepo, classificationRepo, productRepo, reorderingRepo, engineClient, cfg.Forecasting)
	summaryCache := cache.NewSummaryCache(cfg.Cache)

	dispatcher := queue.NewDispatcher(taskRepo, cfg.Forecasting.ThresholdToTriggerQueueJob, cfg.Forecasting.AllowTriggerQueueJob)
	pipeline := service.NewPipelineService(dispatcher, reconciler, decomposer, recommender, summaryCache)
	pipeline.RegisterHandlers(dispatcher)

	worker := queue.NewWorker(taskRepo, cfg.Worker.Count, time.Duration(cfg.Worker.PollIntervalSeconds)*time.Second)
	pipeline.RegisterHandlers(worker)

	return &stack{
		cfg:      cfg,
		db:       db,
		taskRepo: taskRepo,
		pipeline: pipeline,
		worker:   worker,
		quiet:    quiet.NewEstimator(orderRepo),
	}, nil
}

func main() {
	app := &cli.App{
		Name:  "forecaster-worker",
		Usage: "Background task worker and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the task worker with its status endpoint",
				Action: runWorker,
			},
			{
				Name:  "promote",
				Usage: "Promote recent tracker snapshots to the reordering monitor",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "since",
						Usage: "Promote snapshots newer than this age",
						Value: 24 * time.Hour,
					},
				},
				Action: runPromote,
			},
			{
				Name:   "refresh-windows",
				Usage:  "Slide every summary window and rebuild chart series",
				Action: runRefreshWindows,
			},
			{
				Name:  "quiet-hour",
				Usage: "Estimate the off-peak hour for scheduling the nightly sync",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "lookback-days",
						Usage: "Days of order history to analyze",
						Value: 30,
					},
				},
				Action: runQuietHour,
			},
			{
				Name:  "retry-stuck",
				Usage: "Reset tasks stuck in running state back to pending",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "max-age",
						Usage: "Running tasks older than this are reset",
						Value: 30 * time.Minute,
					},
				},
				Action: runRetryStuck,
			},
			{
				Name:  "migrate",
				Usage: "Apply the database schema",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "db-url",
						Usage:    "Database connection string",
						Required: true,
						EnvVars:  []string{"DATABASE_URL"},
					},
					&cli.StringFlag{
						Name:  "schema",
						Usage: "Path to the schema file",
						Value: "./migrations/schema.sql",
					},
				},
				Action: runMigrate,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("worker command failed")
	}
}

func runWorker(c *cli.Context) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.db.Close()

	// Tasks orphaned by a previous crash go back to pending before the
	// poll loop starts.
	if reset, err := s.taskRepo.ResetStuck(c.Context, 30*time.Minute); err != nil {
		logger.Log.Warn().Err(err).Msg("failed to reset stuck tasks")
	} else if reset > 0 {
		logger.Log.Info().Int64("reset", reset).Msg("stuck tasks reset to pending")
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	statusSrv := startStatusServer(s)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = statusSrv.Shutdown(shutdownCtx)
	}()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Log.Info().Msg("Shutting down worker...")
		cancel()
	}()

	if err := s.worker.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// startStatusServer serves queue statistics for operational checks.
func startStatusServer(s *stack) *http.Server {
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")
	r.HandleFunc("/status", func(w http.ResponseWriter, req *http.Request) {
		stats, err := s.taskRepo.Stats(req.Context())
		if err != nil {
			http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}).Methods("GET")

	srv := &http.Server{Addr: ":" + s.cfg.Worker.StatusPort, Handler: r}
	go func() {
		logger.Log.Info().Str("port", s.cfg.Worker.StatusPort).Msg("worker status endpoint started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Error().Err(err).Msg("status endpoint failed")
		}
	}()
	return srv
}

func runPromote(c *cli.Context) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.db.Close()
	return s.pipeline.Promote(c.Context, time.Now().UTC().Add(-c.Duration("since")))
}

func runRefreshWindows(c *cli.Context) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.db.Close()
	return s.pipeline.RefreshWindows(c.Context)
}

func runQuietHour(c *cli.Context) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.db.Close()

	hour, err := s.quiet.QuietHour(c.Context, c.Int("lookback-days"))
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", hour)
	return nil
}

func runRetryStuck(c *cli.Context) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.db.Close()

	reset, err := s.taskRepo.ResetStuck(c.Context, c.Duration("max-age"))
	if err != nil {
		return err
	}
	logger.Log.Info().Int64("reset", reset).Msg("stuck tasks reset")
	return nil
}

func runMigrate(c *cli.Context) error {
	logger.Setup("info")

	schema, err := os.ReadFile(c.String("schema"))
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	db, err := sql.Open("pgx", c.String("db-url"))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(c.Context); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(c.Context, string(schema)); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Log.Info().Str("schema", c.String("schema")).Msg("schema applied")
	return nil
}
