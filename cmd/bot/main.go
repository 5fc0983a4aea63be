package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"LevelSentinel/internal/api"
	"LevelSentinel/internal/app"
	"LevelSentinel/internal/config"
	"LevelSentinel/internal/logger"
	"LevelSentinel/internal/metrics"
	"LevelSentinel/internal/notifier"
	"LevelSentinel/internal/scheduler"
)

func main() {
	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Get().Fatalw("load config", "error", err)
	}
	if err := logger.Init(cfg.LogLevel, cfg.Env); err != nil {
		logger.Get().Fatalw("init logger", "error", err)
	}
	defer logger.Sync()
	log := logger.Get()

	if err := cfg.Validate(); err != nil {
		log.Fatalw("config validation", "error", err)
	}
	symbols, _ := cfg.ParsedSymbols()
	timeframes, _ := cfg.ParsedTimeframes()

	log.Infow("LevelSentinel starting", "env", cfg.Env, "symbols", symbols, "timeframes", timeframes)
	metrics.Init()

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rt, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalw("build runtime", "error", err)
	}
	defer rt.Close()
	log.Infow("data source ready", "source", rt.Fetcher.Name())

	// Telegram is optional
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn, err = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		if err != nil {
			log.Warnw("telegram disabled", "error", err)
			tn = nil
		}
	}

	var sender scheduler.Sender
	if tn != nil {
		sender = tn
	}
	sched := scheduler.NewScheduler(ctx, rt.Service, sender, symbols, timeframes)
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		log.Fatalw("register cron task", "error", err)
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Infow("telegram polling started")
	}

	srv := api.NewServer(api.Options{
		Addr:           cfg.API.Addr,
		Production:     cfg.Env == "production",
		Timeframes:     timeframes,
		JWTSecret:      cfg.API.JWTSecret,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}, rt.Service, sched)
	go func() {
		if err := srv.Start(); err != nil {
			log.Errorw("http server stopped", "error", err)
			cancel()
		}
	}()

	if cfg.Schedule.RunOnStart {
		log.Infow("run_on_start enabled, executing batch now")
		go sched.RunNow(ctx)
	}

	log.Infow("LevelSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Infow("shutdown signal received, stopping")
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("http shutdown", "error", err)
	}
	cancel()
	log.Infow("LevelSentinel stopped")
}
