package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	_ "time/tzdata"

	"github.com/alejandrodnm/sweepbot/config"
	"github.com/alejandrodnm/sweepbot/internal/adapters/notify"
	"github.com/alejandrodnm/sweepbot/internal/adapters/storage"
	"github.com/alejandrodnm/sweepbot/internal/application/engine/live"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one decision cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print heartbeat as a table (default: compact 1-line)")
	lastN := flag.Int("n", 10, "report: number of recent entries to show")
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
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if flag.Arg(0) == "report" {
		if err := runReport(ctx, cfg, *lastN); err != nil {
			slog.Error("report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	slog.Info("sweepbot starting",
		"config", *configPath,
		"symbol", cfg.Symbol,
		"timeframe", cfg.Timeframe,
		"testnet", cfg.Exchange.Testnet,
		"once", *once,
	)

	err = runLive(ctx, cfg, liveOptions{once: *once, table: *table})
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		slog.Info("sweepbot stopped cleanly")
	case errors.Is(err, live.ErrInvariant):
		slog.Error("startup sanity failed", "err", err)
		os.Exit(1)
	default:
		slog.Error("sweepbot exited with error", "err", err)
		os.Exit(1)
	}
}

// runReport imprime las estadísticas del journal del símbolo.
func runReport(ctx context.Context, cfg *config.Config, lastN int) error {
	if _, err := os.Stat(cfg.Storage.JournalPath); err != nil {
		return fmt.Errorf("journal %q: %w", cfg.Storage.JournalPath, err)
	}
	j, err := storage.NewJournal(cfg.Storage.JournalPath)
	if err != nil {
		return err
	}
	defer j.Close()

	st, err := j.Stats(ctx, lastN)
	if err != nil {
		return err
	}
	notify.NewConsole(true).Report(cfg.Symbol, st)
	return nil
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
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
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
