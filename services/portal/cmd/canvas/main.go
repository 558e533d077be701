package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"campuscanvas/internal/util"
	"campuscanvas/pkg/notify"
	"campuscanvas/pkg/session"
	"campuscanvas/services/portal/internal/app"
	"campuscanvas/services/portal/internal/bootstrap"
	"campuscanvas/services/portal/internal/cli"
	"campuscanvas/services/portal/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", config.ConfigPath, "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canvas: %v\n", err)
		return 2
	}
	// Logs go to stderr so command output stays parseable.
	logger := util.NewLogger(os.Stderr, cfg.LogLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dataStore, closeStore, err := bootstrap.OpenStore(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "canvas: %v\n", err)
		return 1
	}
	defer closeStore()

	var slot session.Slot
	switch cfg.SessionSlot {
	case config.SlotRedis:
		client, err := bootstrap.OpenRedis(ctx, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "canvas: %v\n", err)
			return 1
		}
		defer client.Close()
		ttl, _ := config.ParseSessionTTL(cfg.SessionTTL)
		slot = session.NewRedisSlot(client, cfg.SessionKey, ttl)
	default:
		path := cfg.SessionFile
		if path == "" {
			if path, err = session.DefaultFilePath(); err != nil {
				fmt.Fprintf(os.Stderr, "canvas: locate session file: %v\n", err)
				return 1
			}
		}
		slot = session.NewFileSlot(path)
	}

	notifiers := notify.Multi{notify.NewWriterNotifier(os.Stdout), notify.SlogNotifier{Logger: logger}}
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			logger.Warn("event publisher unavailable", "err", err)
		} else {
			defer publisher.Close()
			notifiers = append(notifiers, publisher)
		}
	}

	core, err := app.New(app.Config{
		Store:    dataStore,
		Limits:   bootstrap.Limits(cfg),
		Notifier: notifiers,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "canvas: %v\n", err)
		return 1
	}

	ctx = util.ContextWithLogger(ctx, logger.With("request_id", util.NewID()))
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	c := cli.New(core, session.NewManager(dataStore, slot), os.Stdin, os.Stdout)
	if err := c.Run(ctx, flag.Args()); err != nil {
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "canvas: %s\n", app.UserMessage(err))
		return 1
	}
	return 0
}
