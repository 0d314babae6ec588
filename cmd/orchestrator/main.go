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
	"github.com/relaypoint/partner-hub/internal/infrastructure/persistence/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := cfg.Logger.NewLogger()
	slog.SetDefault(logger)

	logger.Info("starting orchestrator service", "log_level", cfg.Logger.Level)

	ctx := context.Background()
	db, err := postgres.Connect(ctx, &cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	eventBus, err := bus.NewRabbitBus(cfg.Broker, "orchestrator", logger)
	if err != nil {
		logger.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	sagaRepo := postgres.NewSagaRepository(db)
	rules := services.NewRulesService(cfg.Rules)

	orchestrator := services.NewOrchestratorService(sagaRepo, rules, eventBus, logger)
	orchestrator.Register(eventBus)

	consumerCtx, cancelConsumer := context.WithCancel(context.Background())
	defer cancelConsumer()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := eventBus.Start(consumerCtx); err != nil && consumerCtx.Err() == nil {
			// Nothing else keeps this process useful without its consumer.
			logger.Error("bus consumer stopped, exiting", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down orchestrator...")
	cancelConsumer()
	<-done
	logger.Info("orchestrator exited")
}
