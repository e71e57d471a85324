package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/shortsbot/config"
	"github.com/alejandrodnm/shortsbot/internal/adapters/notify"
	"github.com/alejandrodnm/shortsbot/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	simulate := flag.Bool("simulate", false, "use a synthetic random-walk price feed instead of the exchanges")
	report := flag.Bool("report", false, "print the settlement journal report and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print the full market table on every status interval (default: 1-line status)")
	noHTTP := flag.Bool("no-http", false, "do not start the JSON API")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *simulate {
		cfg.Feeds.Simulate = true
	}
	if *noHTTP {
		cfg.HTTP.Enabled = false
	}
	setupLogger(cfg.Log)

	store, err := storage.NewSQLiteStorageWithRetention(cfg.Storage.DSN, cfg.Retention())
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := runReport(ctx, store, notify.NewConsole(false)); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("shortsbot starting",
		"config", *configPath,
		"markets", len(cfg.Markets),
		"tick", cfg.TickInterval(),
		"payout", cfg.Engine.PayoutModel,
		"simulate", cfg.Feeds.Simulate,
		"http", cfg.HTTP.Enabled,
	)

	if err := run(ctx, cfg, store, runOptions{table: *table}); err != nil {
		slog.Error("shortsbot exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("shortsbot stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
