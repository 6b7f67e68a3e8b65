/**
 * @description
 * This is the main entry point for the billing-service. The service is both a
 * long-running cron process (the scheduled billing passes) and an HTTP server
 * (manual pass triggers and account operations).
 *
 * Key features:
 * - Loads application configuration from environment variables.
 * - Initializes the PostgreSQL pool, the RabbitMQ notification producer and
 *   the Kafka device-command producer.
 * - Starts the cron scheduler and the chi HTTP server.
 * - Implements graceful shutdown draining both on termination.
 */
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/netwatch/billing-service/internal/api"
	"github.com/netwatch/billing-service/internal/app"
	"github.com/netwatch/billing-service/internal/config"
	"github.com/netwatch/billing-service/internal/store"
	"github.com/netwatch/billing-service/pkg/kafka"
	"github.com/netwatch/billing-service/pkg/rabbitmq"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	// Establish database connection with connection pool configuration
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Error("unable to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 10
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Error("unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbpool.Close()
	logger.Info("database connection established")

	// Notification producer; fall back to a no-op when the broker is down so
	// billing itself keeps running.
	var notifier rabbitmq.Publisher
	producer, err := rabbitmq.NewEventProducer(cfg.AMQPURL)
	if err != nil {
		logger.Warn("RabbitMQ unavailable, notifications disabled", "error", err)
		notifier = &rabbitmq.EventProducerFallback{}
	} else {
		notifier = producer
	}
	defer notifier.Close()

	commands := kafka.NewCommandProducer(cfg.KafkaBrokerURL, cfg.KafkaCommandsTopic)
	defer commands.Close()

	boundaryTimeout := time.Duration(cfg.BoundaryTimeoutSeconds) * time.Second

	repository := store.NewPostgresRepository(dbpool)
	processor := app.NewProcessor(repository, notifier, commands, logger, boundaryTimeout)
	runner := app.NewRunner(repository, processor, cfg.BillingWorkerCount, logger)
	service := app.NewService(repository, notifier, commands, logger, boundaryTimeout)
	scheduler := app.NewScheduler(runner, logger, *cfg)

	scheduler.Start()
	logger.Info("scheduler started")

	handlers := api.NewHandlers(runner, service)
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: api.NewRouter(handlers),
	}

	go func() {
		logger.Info("server starting", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for termination signal to gracefully shut down
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	stopCtx := scheduler.Stop()
	<-stopCtx.Done() // Wait for in-flight passes to finish
	logger.Info("scheduler stopped gracefully")
}
