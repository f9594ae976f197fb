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

	"github.com/go-redis/redis/v8"
	"github.com/streadway/amqp"

	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/badge"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/cache"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/clients"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/config"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/dedupe"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/gateway"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/lifecycle"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/notifications"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/receiver"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/registrar"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/internal/routes"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/logger"
	"github.com/Sheddybata/Ahava-Ministry-International-sub000/pkg/metrics"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logr := logger.New(cfg.LogLevel)
	logr.Info("starting offline gateway", slog.String("app", cfg.AppName), slog.String("generation", cfg.CacheVersion))

	store, err := cache.OpenStore(cfg.CachePath, logger.Component(logr, "cache"))
	if err != nil {
		logr.Error("failed to open cache store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	metricsCollector := metrics.New()
	hub := clients.NewHub(cfg.CacheVersion, metricsCollector, logger.Component(logr, "clients"))
	center := notifications.NewCenter(hub, logger.Component(logr, "notifications"))
	counter := badge.NewCounter(store, logger.Component(logr, "badge"))

	worker := lifecycle.New(lifecycle.Config{
		Generation:     cfg.CacheVersion,
		Origin:         cfg.OriginURL,
		PrecacheAssets: cfg.PrecacheAssets,
		SkipWaiting:    true,
		Timeout:        cfg.FetchTimeout,
	}, store, hub, logger.Component(logr, "lifecycle"))

	interceptor := gateway.New(gateway.Config{
		Origin:      cfg.OriginURL,
		BypassHosts: cfg.BypassHosts,
		APIPrefix:   cfg.APIPrefix,
		Timeout:     cfg.FetchTimeout,
	}, store, worker.Generation, metricsCollector, logger.Component(logr, "gateway"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := worker.Run(ctx); err != nil {
		logr.Error("activation failed", slog.Any("error", err))
		os.Exit(1)
	}

	reg := registrar.New(registrar.Config{
		Enabled:         cfg.RegistrationEnabled(),
		RelayURL:        cfg.RelayURL,
		SubscribePath:   cfg.SubscribePath,
		ServerPublicKey: cfg.ServerPublicKey,
		Endpoint:        cfg.WorkerQueue,
		Timeout:         cfg.FetchTimeout,
	}, store, func() bool { return worker.State() == lifecycle.StateActive }, logger.Component(logr, "registrar"))
	go func() {
		if err := reg.Register(ctx); err != nil {
			logr.Error("push registration failed", slog.Any("error", err))
		}
	}()

	consumerDone := make(chan struct{})
	if cfg.PushEnabled() {
		conn, err := amqp.Dial(cfg.RabbitURL)
		if err != nil {
			logr.Error("failed to connect rabbitmq", slog.Any("error", err))
			os.Exit(1)
		}
		defer conn.Close()

		var deduper receiver.Deduper
		if cfg.RedisURL != "" {
			rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
			defer rdb.Close()
			deduper = dedupe.NewCache(rdb, cfg.DedupeTTL)
		}

		rcv := receiver.New(center, hub, counter, deduper, metricsCollector, logger.Component(logr, "receiver"))
		cons := receiver.NewConsumer(conn, cfg.AnnounceExchange, cfg.WorkerQueue,
			cfg.PrefetchCount, cfg.WorkerCount, logger.Component(logr, "consumer"))
		go func() {
			defer close(consumerDone)
			if err := cons.Start(ctx, rcv.HandleDelivery); err != nil {
				logr.Error("announcement consumer exited", slog.Any("error", err))
			}
		}()
	} else {
		close(consumerDone)
		logr.Info("push channel disabled, serving fetch only")
	}

	handler := routes.New(routes.Deps{
		Worker:      worker,
		Hub:         hub,
		Center:      center,
		Badge:       counter,
		Metrics:     metricsCollector,
		Interceptor: interceptor,
		Started:     time.Now(),
	})
	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: handler,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()
	logr.Info("offline gateway ready", slog.String("port", cfg.HTTPPort))

	<-ctx.Done()
	<-consumerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("failed to shutdown http server", slog.Any("error", err))
	}

	hub.Close()
	interceptor.Drain()
	logr.Info("offline gateway stopped")
}
