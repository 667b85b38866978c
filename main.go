package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/confs"
	"smartdoor-relay/logger"
	"smartdoor-relay/metrics"
	"smartdoor-relay/server"
	"smartdoor-relay/storage"
)

func main() {
	// load config
	cfg, err := confs.Load()
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	zl, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat, "smartdoor-relay")
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	metrics.Init(nil)

	// media storage: R2 when configured, memory otherwise
	store, err := storage.Connect(cfg.Storage, cfg.MaxEvents, zl)
	if err != nil {
		zl.Fatal("failed to initialize object storage", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(cfg, store, clock.Real(), zl)
	srv.Start(ctx)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if err != nil {
			zl.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("shutdown", zap.Error(err))
	}
}
