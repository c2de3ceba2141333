package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tubewatch/internal/bot"
	"tubewatch/internal/config"
	"tubewatch/internal/feed"
	"tubewatch/internal/notify"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/storage"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	feeds := feed.New(&http.Client{Timeout: 30 * time.Second}, cfg.FeedURLTemplate)

	b, err := bot.New(cfg.TelegramBotToken, store, feeds, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	notifier := notify.New(b, log)

	sched := scheduler.New(store, feeds, notifier, log)
	sched.SetInterval(cfg.PollInterval)
	sched.SetConcurrency(cfg.PollConcurrency)
	sched.SetCycleTimeout(cfg.CycleTimeout)
	b.SetPoller(sched)

	log.Info("starting bot",
		"poll_interval", cfg.PollInterval,
		"poll_concurrency", cfg.PollConcurrency,
	)

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
