package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/auth"
	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/eventbus"
	"github.com/sudo-init-do/dutydinar/internal/logging"
	"github.com/sudo-init-do/dutydinar/internal/messaging"
	"github.com/sudo-init-do/dutydinar/internal/payments"
	"github.com/sudo-init-do/dutydinar/internal/wallet"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := db.Init(ctx, cfg.DatabaseURL); err != nil {
		slog.Error("database init failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	alerts.Init(cfg)
	defer alerts.Close()
	eventbus.Init(cfg.KafkaBrokers)
	defer func() {
		if err := eventbus.Close(); err != nil {
			slog.Warn("close event bus", "error", err)
		}
	}()

	auth.Configure(cfg)
	payments.Configure(cfg)
	wallet.Configure(cfg)
	messaging.Configure(cfg)

	e := newServer(cfg)
	go func() {
		slog.Info("API server listening", "port", cfg.Port, "env", cfg.Env)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
