package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/Gazel/SecureKasir/internal/app"
	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/dashboard"
	"github.com/Gazel/SecureKasir/internal/observability"
	"github.com/Gazel/SecureKasir/internal/platform/cache"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	loc, _ := cfg.Location()

	if cfg.StoreDriver == app.DriverMemory {
		logger.Error("worker needs a shared store; memory driver is per process")
		os.Exit(1)
	}

	backend, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	dashCache := dashboard.NewCache(redisClient, cfg.CacheTTL)
	catalogService := catalog.NewService(backend.Store, dashCache)
	txService := transactions.NewService(backend.Store, logger, transactions.ServiceConfig{Location: loc})
	dashService := dashboard.NewService(txService, dashCache, loc)

	lowStock := jobs.NewLowStockJob(catalogService, cfg.LowStockThreshold, logger, metrics)
	summary := jobs.NewDailySummaryJob(txService, dashService, loc, logger, metrics)

	summaryTask, err := jobs.NewDailySummaryTask("")
	if err != nil {
		logger.Error("build summary task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    loc,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTransactionRecorded, Handler: lowStock.Handle},
			{Type: jobs.TaskDailySummary, Handler: summary.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: jobs.DailySummaryCron, Task: summaryTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if cfg.WorkerMetricsAddr != "" {
		metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("worker metrics server", slog.Any("error", err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
