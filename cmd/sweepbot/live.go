package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/sweepbot/config"
	"github.com/alejandrodnm/sweepbot/internal/adapters/binance"
	"github.com/alejandrodnm/sweepbot/internal/adapters/metrics"
	"github.com/alejandrodnm/sweepbot/internal/adapters/notify"
	"github.com/alejandrodnm/sweepbot/internal/adapters/storage"
	"github.com/alejandrodnm/sweepbot/internal/application/engine/live"
	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
	"github.com/alejandrodnm/sweepbot/internal/strategy"
)

type liveOptions struct {
	once  bool
	table bool
}

// runLive arma el gateway, los streams y el engine, y corre el loop hasta
// que ctx termina, aparece el archivo STOP o se pidió un solo ciclo.
func runLive(ctx context.Context, cfg *config.Config, opts liveOptions) error {
	if !cfg.HasCredentials() {
		return errors.New("missing BINANCE_API_KEY / BINANCE_API_SECRET")
	}
	scfg, err := strategyConfig(cfg)
	if err != nil {
		return err
	}
	ecfg, err := engineConfig(cfg)
	if err != nil {
		return err
	}
	for _, p := range []string{cfg.Storage.StatePath, cfg.Storage.JournalPath} {
		if err := ensureDir(p); err != nil {
			return fmt.Errorf("storage dir for %q: %w", p, err)
		}
	}

	journal, err := storage.NewJournal(cfg.Storage.JournalPath)
	if err != nil {
		return err
	}
	defer journal.Close()

	var m ports.Metrics = metrics.Nop{}
	if cfg.Metrics.Addr != "" {
		prom := metrics.NewPrometheus(cfg.Symbol)
		m = prom
		stop := serveMetrics(cfg.Metrics.Addr, prom.Handler())
		defer stop()
	}

	client := binance.NewClient(gatewayOptions(cfg))

	market := binance.NewMarketStream(
		streamOptions(cfg, func() { m.IncReconnect("market") }),
		cfg.Symbol, []domain.Timeframe{ecfg.Timeframe}, cfg.Stream.BookTicker,
	)

	keeper := binance.NewListenKeyKeeper(client, cfg.Stream.ListenKeyRenew)
	if err := keeper.Start(ctx); err != nil {
		// sin key el engine cae al polling REST del realizado
		slog.Warn("binance: listen key create failed, user stream disabled until renewal", "err", err)
	}
	user := binance.NewUserStream(streamOptions(cfg, func() { m.IncReconnect("user") }), keeper.Key)
	keeper.OnRotate(user.Reconnect)

	eng, err := live.New(ecfg, live.Deps{
		Exchange:    client,
		Strategy:    strategy.New(scfg),
		Store:       storage.NewStateFile(cfg.Storage.StatePath),
		Journal:     journal,
		Notifier:    notify.NewConsole(opts.table),
		Metrics:     m,
		Market:      market,
		UserHealthy: keeper.Healthy,
		OnKeyExpired: func() {
			keeper.MarkExpired()
			if err := keeper.Start(ctx); err != nil {
				slog.Warn("binance: listen key recreate failed", "err", err)
				return
			}
			user.Reconnect()
		},
	})
	if err != nil {
		return err
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}

	feedCtx, stopFeeds := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		eng.RunFeeds(feedCtx, user, cfg.Stream.Capacity)
	}()
	go func() {
		defer wg.Done()
		keeper.Run(feedCtx)
	}()
	defer func() {
		stopFeeds()
		wg.Wait()
	}()

	loopErr := loop(ctx, eng, cfg, opts.once)

	// el contexto principal puede estar cancelado: el cierre usa uno propio
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := eng.Shutdown(shutCtx); err != nil {
		slog.Warn("live: state save on shutdown failed", "err", err)
	}
	return loopErr
}

type cycleRunner interface {
	RunOnce(ctx context.Context) (live.CycleResult, error)
}

// loop corre ciclos separados por LoopSleep más la pausa que pida un circuito.
func loop(ctx context.Context, eng cycleRunner, cfg *config.Config, once bool) error {
	stopFile := cfg.StopFile()
	for {
		if _, err := os.Stat(stopFile); err == nil {
			slog.Info("live: STOP file found, exiting", "path", stopFile)
			return nil
		}

		res, err := eng.RunOnce(ctx)
		if err != nil {
			return err
		}
		slog.Debug("live: cycle",
			"cycle", res.Cycle, "decision", res.Decision, "reason", res.Reason, "safe", res.SafeMode)
		if once {
			return nil
		}

		wait := cfg.LoopSleep + res.Pause
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// serveMetrics expone /metrics en addr; la función devuelta lo apaga.
func serveMetrics(addr string, h http.Handler) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		slog.Info("metrics: listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics: server stopped", "err", err)
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
