package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/clinicflow/booking-engine/internal/api/router"
	"github.com/clinicflow/booking-engine/internal/appointments"
	"github.com/clinicflow/booking-engine/internal/availability"
	"github.com/clinicflow/booking-engine/internal/config"
	"github.com/clinicflow/booking-engine/internal/directory"
	"github.com/clinicflow/booking-engine/internal/engine"
	"github.com/clinicflow/booking-engine/internal/gateway"
	"github.com/clinicflow/booking-engine/internal/notify"
	"github.com/clinicflow/booking-engine/internal/observability/metrics"
	"github.com/clinicflow/booking-engine/internal/session"
	"github.com/clinicflow/booking-engine/internal/webhook"
	"github.com/clinicflow/booking-engine/pkg/logging"
)

func main() {
	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting booking-engine API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	// Separate database/sql handle for the notification log.
	notifyDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open postgres for notifications", "error", err)
		os.Exit(1)
	}
	defer notifyDB.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	sessions := session.NewStore(redisClient, cfg.SessionTimeout)
	doctors := directory.NewRepository(pool)
	ledger := appointments.NewRepository(pool)
	resolver := availability.NewResolver(doctors, ledger, cfg.SlotCapacity)
	notifications := notify.NewLog(notifyDB, logger)

	eng := engine.New(sessions, resolver, ledger, doctors, notifications, engine.Options{
		HospitalName:    cfg.HospitalName,
		HospitalAddress: cfg.HospitalAddress,
		SessionTimeout:  cfg.SessionTimeout,
		SlotCapacity:    cfg.SlotCapacity,
	}, logger)

	messenger, err := gateway.New(gateway.Config{
		BaseURL:    cfg.GatewayBaseURL,
		APIKey:     cfg.GatewayAPIKey,
		FromNumber: cfg.GatewayFromNumber,
	})
	if err != nil {
		logger.Error("failed to create gateway client", "error", err)
		os.Exit(1)
	}

	limiter := webhook.NewRateLimiter(redisClient, cfg.RateLimitWindow, cfg.RateLimitMax, logger)
	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	webhookHandler := webhook.NewHandler(
		cfg.GatewayWebhookSecret,
		eng,
		messenger,
		limiter,
		webhookMetrics,
		cfg.GatewayFromNumber,
		logger,
	)

	r := router.New(&router.Config{
		WebhookHandler: webhookHandler,
		MetricsHandler: promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
