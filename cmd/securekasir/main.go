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
	"github.com/Gazel/SecureKasir/internal/auth"
	"github.com/Gazel/SecureKasir/internal/catalog"
	"github.com/Gazel/SecureKasir/internal/dashboard"
	"github.com/Gazel/SecureKasir/internal/observability"
	"github.com/Gazel/SecureKasir/internal/platform/cache"
	"github.com/Gazel/SecureKasir/internal/transactions"
	"github.com/Gazel/SecureKasir/internal/users"
	"github.com/Gazel/SecureKasir/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	backend, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()
	store := backend.Store

	userService := users.NewService(store, logger)
	created, err := userService.EnsureSeed(ctx, users.SeedConfig{
		AdminUsername:   cfg.SeedAdminUsername,
		AdminPassword:   cfg.SeedAdminPassword,
		CashierUsername: cfg.SeedCashierUsername,
		CashierPassword: cfg.SeedCashierPassword,
	})
	if err != nil {
		logger.Error("seed users", slog.Any("error", err))
		os.Exit(1)
	}
	if created > 0 {
		logger.Info("seeded initial accounts", slog.Int("count", created))
	}

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("redis unavailable, dashboard cache and jobs disabled", slog.Any("error", err))
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	dashCache := dashboard.NewCache(redisClient, cfg.CacheTTL)
	if err := dashCache.ListenForInvalidation(ctx); err != nil {
		logger.Warn("dashboard invalidation listener", slog.Any("error", err))
	}

	metrics := observability.NewMetrics()

	txOpts := []transactions.Option{
		transactions.WithCache(dashCache),
		transactions.WithMetrics(metrics),
	}

	var jobHandler *jobs.Handler
	if redisClient != nil {
		redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
		jobClient := jobs.NewClient(redisOpts)
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		txOpts = append(txOpts, transactions.WithEvents(jobClient))

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	catalogService := catalog.NewService(store, dashCache)
	txOpts = append(txOpts, transactions.WithProducts(catalogService))
	txService := transactions.NewService(store, logger, transactions.ServiceConfig{
		Location:        loc,
		ValidateCatalog: cfg.ValidateCatalog,
		DecrementStock:  cfg.DecrementStock,
		StoreName:       cfg.StoreName,
	}, txOpts...)
	dashService := dashboard.NewService(txService, dashCache, loc)

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		logger.Error("init tokens", slog.Any("error", err))
		os.Exit(1)
	}
	authService := auth.NewService(userService, tokens)
	guard := auth.Middleware{Tokens: tokens, Accounts: authService, Logger: logger}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Guard:               guard,
		Metrics:             metrics,
		AuthHandler:         auth.NewHandler(logger, authService, guard),
		UsersHandler:        users.NewHandler(logger, userService),
		CatalogHandler:      catalog.NewHandler(logger, catalogService, guard),
		TransactionsHandler: transactions.NewHandler(logger, txService, guard),
		DashboardHandler:    dashboard.NewHandler(logger, dashService, guard),
		JobHandler:          jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", backend.Driver),
			slog.String("timezone", loc.String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
