package ports

import (
	"context"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// StateStore persiste el estado diario y el dedupe book entre reinicios.
type StateStore interface {
	// Load devuelve el estado guardado; ok=false si no existe todavía.
	Load() (domain.PersistedState, bool, error)

	// Save escribe el estado de forma atómica.
	Save(st domain.PersistedState) error
}

// Journal registra las decisiones del engine.
type Journal interface {
	RecordSignal(ctx context.Context, rec domain.SignalRecord) error
	RecordEntry(ctx context.Context, rec domain.EntryRecord) error
	RecordBlocked(ctx context.Context, counts []domain.BlockedCount) error
	Stats(ctx context.Context, lastN int) (domain.JournalStats, error)
	Close() error
}
