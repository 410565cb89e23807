package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/markdave123-py/vectorsync/internal/app"
	"github.com/markdave123-py/vectorsync/internal/config"
	"github.com/markdave123-py/vectorsync/internal/logger"
)

func main() {
	// SIGINT/SIGTERM cancel ctx, which drains the workers and shuts the server down
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.LoadConfig()
	logger.New(logger.Config{
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	})

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "err", err)
		os.Exit(1)
	}
	defer application.Close()

	slog.Info("vectorsync is running", "port", cfg.Server.Port,
		"vectorBackend", cfg.Vector.Backend, "queue", cfg.Queue.Backend)
	if err := application.Serve(ctx); err != nil {
		slog.Error("server stopped", "err", err)
		application.Close()
		os.Exit(1)
	}
	slog.Info("shutting down")
}
