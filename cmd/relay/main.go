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

	"github.com/streadway/amqp"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/config"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/relay"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/logger"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/retry"
)

func main() {
	cfg, err := config.LoadRelay()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting announcement relay", slog.String("app", cfg.AppName))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		logr.Error("failed to connect database", slog.Any("error", err))
		os.Exit(1)
	}

	store, err := relay.NewSubscriptionStore(db, cfg.SubscriptionTable)
	if err != nil {
		logr.Error("failed to prepare subscription table", slog.Any("error", err))
		os.Exit(1)
	}

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logr.Error("failed to connect rabbitmq", slog.Any("error", err))
		os.Exit(1)
	}
	defer conn.Close()

	publisher := relay.NewPublisher(conn, cfg.AnnounceExchange, retry.Config{
		MaxAttempts:    cfg.PublishMaxAttempts,
		InitialBackoff: cfg.PublishInitialBackoff,
		MaxBackoff:     cfg.PublishMaxBackoff,
	}, logger.Component(logr, "publisher"))
	defer publisher.Close()

	server := relay.NewServer(store, publisher, logger.Component(logr, "http"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: server.Handler(),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()
	logr.Info("announcement relay ready", slog.String("port", cfg.HTTPPort))

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}
	logr.Info("announcement relay stopped")
}
