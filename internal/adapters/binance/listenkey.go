package binance

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const keepaliveAttempts = 3

type listenKeyService interface {
	StartUserStream(ctx context.Context) (string, error)
	KeepaliveUserStream(ctx context.Context, listenKey string) error
}

// ListenKeyKeeper renueva la listen key del stream de cuenta. Si la
// renovación falla tras varios intentos crea una nueva y avisa al stream.
type ListenKeyKeeper struct {
	svc       listenKeyService
	period    time.Duration
	retryWait time.Duration
	onRotate  func()

	mu      sync.RWMutex
	key     string
	healthy atomic.Bool
}

// NewListenKeyKeeper crea el keeper. period suele ser 25-30 min.
func NewListenKeyKeeper(svc listenKeyService, period time.Duration) *ListenKeyKeeper {
	if period <= 0 {
		period = 25 * time.Minute
	}
	return &ListenKeyKeeper{svc: svc, period: period, retryWait: time.Second}
}

// OnRotate registra el callback llamado tras crear una key nueva.
func (k *ListenKeyKeeper) OnRotate(fn func()) { k.onRotate = fn }

// Key devuelve la listen key actual.
func (k *ListenKeyKeeper) Key() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key
}

// Healthy indica si la última renovación tuvo éxito.
func (k *ListenKeyKeeper) Healthy() bool { return k.healthy.Load() }

// MarkExpired se llama cuando el stream reporta listenKeyExpired.
func (k *ListenKeyKeeper) MarkExpired() { k.healthy.Store(false) }

// Start crea la primera key. Debe llamarse antes de abrir el stream.
func (k *ListenKeyKeeper) Start(ctx context.Context) error {
	key, err := k.svc.StartUserStream(ctx)
	if err != nil {
		k.healthy.Store(false)
		return err
	}
	k.mu.Lock()
	k.key = key
	k.mu.Unlock()
	k.healthy.Store(true)
	return nil
}

// Run renueva la key cada period hasta que ctx termina.
func (k *ListenKeyKeeper) Run(ctx context.Context) {
	t := time.NewTicker(k.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			k.renew(ctx)
		}
	}
}

// renew intenta el keepalive y, si se agotan los intentos o la key ya
// expiró, crea una nueva.
func (k *ListenKeyKeeper) renew(ctx context.Context) {
	if k.Healthy() {
		for attempt := 0; attempt < keepaliveAttempts; attempt++ {
			err := k.svc.KeepaliveUserStream(ctx, k.Key())
			if err == nil {
				slog.Debug("binance: listen key renewed")
				return
			}
			slog.Warn("binance: listen key keepalive failed", "attempt", attempt+1, "err", err)
			if !waitCtx(ctx, time.Duration(attempt+1)*k.retryWait) {
				return
			}
		}
	}
	if err := k.Start(ctx); err != nil {
		slog.Error("binance: listen key recreate failed", "err", err)
		return
	}
	slog.Info("binance: listen key rotated")
	if k.onRotate != nil {
		k.onRotate()
	}
}
