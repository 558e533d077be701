package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"time"

	"campuscanvas/internal/util"
	"campuscanvas/pkg/notify"
	"campuscanvas/services/portal/internal/app"
	"campuscanvas/services/portal/internal/bootstrap"
	"campuscanvas/services/portal/internal/config"
	"campuscanvas/services/portal/internal/server"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	dataStore, closeStore, err := bootstrap.OpenStore(cfg)
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer closeStore()

	redisClient, err := bootstrap.OpenRedis(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	sessions, err := bootstrap.OpenSessions(cfg, redisClient)
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	notifiers := notify.Multi{notify.SlogNotifier{Logger: logger}}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer publisher.Close()
		notifiers = append(notifiers, publisher)
	}

	core, err := app.New(app.Config{
		Store:    dataStore,
		Sessions: sessions,
		Limits:   bootstrap.Limits(cfg),
		Notifier: notifiers,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:                     core,
		Redis:                   redisClient,
		LoginRateLimitPerMinute: cfg.LoginRateLimitPerMinute,
		MaxUploadBytes:          cfg.MaxUploadBytes,
		TrustedProxyCIDRs:       cfg.TrustedProxyCIDRs,
		AllowedOrigins:          cfg.AllowedOrigins,
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("portal server listening", "addr", addr, "store", cfg.StoreDriver)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
