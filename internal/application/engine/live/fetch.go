package live

// fetch.go — worker pool para las velas de timeframes mayores.
//
// Los extremos previos (1d/1w/1M) y el sesgo HTF (1h/4h) son lecturas
// independientes; en paralelo el refresco cuesta una latencia en vez de tres.

import (
	"context"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	"github.com/alejandrodnm/sweepbot/internal/ports"
)

type klineJob struct {
	tf    domain.Timeframe
	limit int
}

type klineResult struct {
	tf      domain.Timeframe
	candles []domain.Candle
	err     error
}

// fetchKlinesConcurrent pide las velas de cada job con un pool de workers.
// Los fallos se devuelven por timeframe; el llamador decide qué hacer.
// Si workers <= 0 usa un worker por job.
func fetchKlinesConcurrent(
	ctx context.Context,
	md ports.MarketData,
	symbol string,
	jobs []klineJob,
	workers int,
) map[domain.Timeframe]klineResult {
	if workers <= 0 || workers > len(jobs) {
		workers = len(jobs)
	}

	workCh := make(chan klineJob, len(jobs))
	resultCh := make(chan klineResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range workCh {
				cs, err := md.Klines(ctx, symbol, j.tf, j.limit)
				resultCh <- klineResult{tf: j.tf, candles: cs, err: err}
			}
		}()
	}

	for _, j := range jobs {
		workCh <- j
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	out := make(map[domain.Timeframe]klineResult, len(jobs))
	failed := 0
	for r := range resultCh {
		if r.err != nil {
			failed++
		}
		out[r.tf] = r
	}

	slog.Debug("live: htf klines fetched",
		"jobs", len(jobs),
		"failed", failed,
		"workers", workers,
	)
	return out
}
