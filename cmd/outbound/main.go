package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/relaypoint/partner-hub/internal/application/services"
	"github.com/relaypoint/partner-hub/internal/config"
	"github.com/relaypoint/partner-hub/internal/infrastructure/bus"
	"github.com/relaypoint/partner-hub/internal/infrastructure/partner"
	"github.com/relaypoint/partner-hub/internal/infrastructure/persistence/postgres"
	"github.com/relaypoint/partner-hub/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting outbound service",
		"partner_base_url", cfg.Partner.BaseURL,
		"log_level", cfg.Logger.Level,
	)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eventBus, err := bus.NewRabbitBus(cfg.Broker, "outbound", logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	outboxRepo := postgres.NewOutboxRepository(db)
	coordinator := postgres.NewTransactionCoordinator(db)

	partnerClient := partner.NewHTTPClient(cfg.Partner)
	resilientClient := partner.NewResilientClient(partnerClient, cfg.Retry, cfg.Breaker, cfg.Bulkhead, logger)

	dispatchService := services.NewDispatchService(resilientClient, coordinator, outboxRepo, eventBus, logger)
	dispatchService.Register(eventBus)

	dispatcher := worker.NewOutboxDispatcher(outboxRepo, eventBus, cfg.Outbox.Interval, cfg.Outbox.BatchSize, logger)

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := eventBus.Start(runCtx); err != nil && runCtx.Err() == nil {
			// The outbox dispatcher alone cannot drain DispatchToPartner
			// commands; exit so the supervisor restarts the process.
			logger.Error("bus consumer stopped, exiting", "error", err)
			os.Exit(1)
		}
	}()

	dispatcherDone := make(chan struct{})
	go func() {
		defer close(dispatcherDone)
		dispatcher.Start(runCtx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down outbound service...")
	cancel()
	<-consumerDone
	<-dispatcherDone
	logger.Info("outbound service exited")
}
