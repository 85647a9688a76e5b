// The worker runs the alert matcher on a cron schedule and the dispatcher
// as a long-running loop, sharing one store and mail transport.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketplace-search/internal/alerts"
	"marketplace-search/internal/config"
	"marketplace-search/internal/logger"
	"marketplace-search/internal/mailer"
	"marketplace-search/internal/storage/postgres"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting alert worker",
		zap.Duration("match_interval", cfg.MatchInterval),
		zap.Duration("dispatch_interval", cfg.DispatchInterval),
	)

	store, err := postgres.New(cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer store.Close()

	if err := store.MigrateToLatest(cfg.MigrationsPath); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	transport := mailer.New(
		cfg.SMTPHost, cfg.SMTPPort,
		cfg.SMTPUsername, cfg.SMTPPassword,
		cfg.MailFrom, cfg.MailTimeout,
		log,
	)

	matcher := alerts.NewMatcher(store, store, store, alerts.MatcherConfig{
		MinInterval: cfg.MatcherMinInterval,
		MatchLimit:  cfg.MatcherMatchLimit,
	}, log)

	dispatcher := alerts.NewDispatcher(store, transport, alerts.DispatcherConfig{
		BatchSize: cfg.DispatchBatchSize,
		Backoff: alerts.Backoff{
			Base:        cfg.RetryBase,
			Max:         cfg.RetryMax,
			MaxAttempts: cfg.MaxSendAttempts,
		},
		StaleAfter: cfg.SendingStaleAfter,
		Interval:   cfg.DispatchInterval,
		BaseURL:    cfg.BaseURL,
	}, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	c := cron.New()
	_, err = c.AddFunc(fmt.Sprintf("@every %s", cfg.MatchInterval), func() {
		if _, err := matcher.Run(ctx); err != nil {
			log.Error("matcher pass failed", zap.Error(err))
		}
	})
	if err != nil {
		log.Fatal("failed to schedule matcher", zap.Error(err))
	}

	c.Start()
	defer c.Stop()

	// run one pass immediately so a fresh deployment does not wait a tick
	go func() {
		if _, err := matcher.Run(ctx); err != nil {
			log.Error("matcher pass failed", zap.Error(err))
		}
	}()

	if err := dispatcher.Run(ctx); err != nil && err != context.Canceled {
		log.Error("dispatcher stopped with error", zap.Error(err))
	}

	log.Info("worker stopped")
}
