package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/sudo-init-do/dutydinar/internal/alerts"
	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/logging"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

const taskPurgeSessions = "maintenance:purge_sessions"

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

	mux := alerts.NewMux(alerts.NewMailer(cfg.SMTP))
	mux.HandleFunc(taskPurgeSessions, purgeSessions)

	redis := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	scheduler := asynq.NewScheduler(redis, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := scheduler.Register("@every 1h", asynq.NewTask(taskPurgeSessions, nil), asynq.Queue(alerts.QueueAlerts)); err != nil {
		slog.Error("register session purge", "error", err)
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		slog.Error("scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer scheduler.Shutdown()

	srv := alerts.NewServer(cfg.RedisAddr, 10)
	if err := srv.Start(mux); err != nil {
		slog.Error("worker start failed", "error", err)
		os.Exit(1)
	}
	slog.Info("worker running", "redis", cfg.RedisAddr, "smtp", cfg.SMTP.Enabled())

	<-ctx.Done()
	slog.Info("worker shutting down")
	srv.Shutdown()
}

func purgeSessions(ctx context.Context, _ *asynq.Task) error {
	n, err := session.PurgeExpired(ctx, db.Conn)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "expired sessions purged", "count", n)
	return nil
}
