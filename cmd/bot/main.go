package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"story_bot/internal/bot"
	"story_bot/internal/config"
	"story_bot/internal/dedup"
	"story_bot/internal/failure"
	"story_bot/internal/fetcher"
	"story_bot/internal/metrics"
	"story_bot/internal/notify"
	"story_bot/internal/scheduler"
	"story_bot/internal/session"
	"story_bot/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("bot stopped", "error", err)
		os.Exit(1)
	}
	log.Info("bot stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	opts := session.DefaultOptions()
	browser, err := session.NewChrome(session.ChromeOptions{
		Headless:  cfg.BrowserHeadless,
		UserAgent: opts.UserAgent,
		ExecPath:  cfg.ChromePath,
	})
	if err != nil {
		return err
	}
	sess := session.NewManager(browser, session.Credentials{
		Username: cfg.InstagramUsername,
		Password: cfg.InstagramPassword,
	}, opts, log.With("component", "session"))
	defer func() {
		log.Info("closing browser")
		if err := sess.Close(); err != nil {
			log.Warn("close browser", "error", err)
		}
	}()

	log.Info("logging in to instagram", "username", cfg.InstagramUsername)
	if err := sess.Ensure(ctx); err != nil {
		if session.IsFatal(err) {
			return fmt.Errorf("startup login: %w", err)
		}
		log.Warn("startup login not confirmed, the first cycle will retry", "error", err)
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           metrics.Handler(sess.Live),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			log.Info("metrics server listening", "addr", cfg.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	f := fetcher.New(&http.Client{Timeout: 30 * time.Second}, sess, log.With("component", "fetcher"))
	fanout := notify.New(b, cfg.NotifyRate, log.With("component", "notify"))
	sched := scheduler.New(store, sess, f, fanout, dedup.New(), failure.New(failure.DefaultThreshold), log.With("component", "scheduler"))
	sched.SetTickInterval(cfg.CheckInterval)

	log.Info("starting bot", "check_interval", cfg.CheckInterval)

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		b.Run(ctx)
	}()

	err = sched.Run(ctx)
	cancel()
	<-botDone
	return err
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
