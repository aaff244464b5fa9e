package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"github.com/example/pps/internal/config"
	"github.com/example/pps/internal/database"
	"github.com/example/pps/internal/gateway"
	"github.com/example/pps/internal/handlers"
	"github.com/example/pps/internal/ratelimit"
	"github.com/example/pps/internal/repository"
	"github.com/example/pps/internal/routes"
	"github.com/example/pps/internal/services"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API on APP_PORT.

Rate limit buckets live in Redis when REDIS_URL is set and in the
rate_limit_buckets table otherwise.`,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}

	probes := []handlers.Probe{{
		Name:  "database",
		Check: func(ctx context.Context) error { return database.Ping(ctx, db) },
	}}

	var store ratelimit.Store
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer client.Close()

		store = ratelimit.NewRedisStore(client)
		probes = append(probes, handlers.Probe{
			Name:  "redis",
			Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		})
		logger.Info("rate limit buckets stored in redis")
	} else {
		sqlStore := ratelimit.NewSQLStore(db)
		go sqlStore.RunJanitor(ctx, time.Minute, cfg.RateLimitIdleTTL, logger)
		store = sqlStore
		logger.Info("rate limit buckets stored in database")
	}

	limiter := ratelimit.NewLimiter(store, ratelimit.Policy{
		Capacity: cfg.RateLimitCapacity,
		Window:   cfg.RateLimitWindow,
	})

	notifier := services.NewNotifier(repository.NewMerchantRepo(db), services.NotifierConfig{
		Secret:    cfg.NotificationSecret,
		Timeout:   cfg.NotificationTimeout,
		Workers:   cfg.NotificationWorkers,
		QueueSize: cfg.NotificationQueueSize,
		RPS:       cfg.NotificationRPS,
	}, logger)
	notifier.Start()

	app := routes.NewApp(logger)
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "${time} ${locals:correlationId} ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: time.RFC3339,
	}))

	err = routes.Register(app, routes.Dependencies{
		DB:      db,
		Config:  cfg,
		Logger:  logger,
		Limiter: limiter,
		Gateways: gateway.NewRegistry(
			gateway.NewPaystack(cfg.PaystackSecretKey, cfg.PaystackBaseURL, cfg.GatewayTimeout),
			gateway.NewFlutterwave(cfg.FlutterwaveSecretKey, cfg.FlutterwaveBaseURL),
		),
		Publisher: notifier,
		Probes:    probes,
	})
	if err != nil {
		return err
	}

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("port", cfg.AppPort))
		listenErr <- app.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			return fmt.Errorf("fiber.Listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := app.ShutdownWithTimeout(15 * time.Second); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("http shutdown", slog.Any("err", err))
	}
	notifier.Close()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
