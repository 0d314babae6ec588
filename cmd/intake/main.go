package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredislib "github.com/redis/go-redis/v9"

	"github.com/relaypoint/partner-hub/internal/application/services"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/infrastructure/bus"
	"github.com/relaypoint/partner-hub/internal/infrastructure/persistence/postgres"
	"github.com/relaypoint/partner-hub/internal/infrastructure/redislock"
	"github.com/relaypoint/partner-hub/internal/interfaces/rest/handlers"
	"github.com/relaypoint/partner-hub/internal/interfaces/rest/middleware"
	"github.com/relaypoint/partner-hub/internal/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting intake service",
		"port", cfg.Server.Port,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient := goredislib.NewClient(&goredislib.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	eventBus, err := bus.NewRabbitBus(cfg.Broker, "intake", logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	requestRepo := postgres.NewRequestRepository(db)
	dedupRepo := postgres.NewDedupKeyRepository(db)
	coordinator := postgres.NewTransactionCoordinator(db)
	locker := redislock.NewLocker(redisClient, cfg.Intake.LockTTL, logger)

	intakeService := services.NewIntakeService(locker, coordinator, requestRepo, dedupRepo, eventBus, logger)
	queryService := services.NewQueryService(requestRepo)
	projector := services.NewProjectorService(requestRepo, logger)
	projector.Register(eventBus)

	observability.RegisterMetrics()

	mux := http.NewServeMux()
	handlers.NewHandlers(intakeService, queryService, logger).Routes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := middleware.Recovery(logger)(mux)
	handler = middleware.Logging(logger)(handler)
	handler = middleware.Timeout(cfg.Server.ReadTimeout)(handler)

	server := &http.Server{
		Addr:         "0.0.0.0:" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	go func() {
		// A consumer that dies outside shutdown leaves the process serving
		// reads while events pile up; exit so the supervisor restarts it.
		if err := eventBus.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.Error("bus consumer stopped, exiting", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		logger.Info("server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	cancelConsumer()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
