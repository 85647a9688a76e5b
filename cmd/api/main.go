package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"marketplace-search/internal/cache"
	"marketplace-search/internal/config"
	"marketplace-search/internal/logger"
	"marketplace-search/internal/search"
	"marketplace-search/internal/server"
	"marketplace-search/internal/storage/postgres"

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

	log.Info("starting search API",
		zap.String("log_level", cfg.LogLevel),
		zap.String("addr", cfg.HTTPAddr),
	)

	store, err := postgres.New(cfg.PostgresDSN, log)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer store.Close()

	if err := store.MigrateToLatest(cfg.MigrationsPath); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	resultCache, err := cache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log)
	if err != nil {
		log.Fatal("failed to connect to Redis", zap.Error(err))
	}
	defer resultCache.Close()

	engine := search.NewEngine(store, resultCache, log)
	srv := server.New(engine, store, store, resultCache, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := srv.ListenAndServe(ctx, cfg.HTTPAddr); err != nil {
		log.Error("server stopped with error", zap.Error(err))
	}

	log.Info("server stopped")
}
