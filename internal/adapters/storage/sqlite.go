package storage

// sqlite.go — journal de decisiones del engine.
//
// Tablas:
//   - `signals`: una fila por candidato evaluado (entered / blocked / skipped).
//   - `entries`: una fila por entrada colocada con sus protecciones.
//   - `blocked_reasons`: skips agregados por minuto y motivo (UPSERT suma).
//   - Prune al arrancar: signals y blocked > 30d. Las entries no se borran.

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/alejandrodnm/sweepbot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS signals (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    signal_id  TEXT    NOT NULL,
    symbol     TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    entry      REAL    NOT NULL DEFAULT 0,
    stop       REAL    NOT NULL DEFAULT 0,
    score      REAL    NOT NULL DEFAULT 0,
    decision   TEXT    NOT NULL,
    reason     TEXT    NOT NULL DEFAULT '',
    server_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS entries (
    client_id  TEXT PRIMARY KEY,
    signal_id  TEXT    NOT NULL,
    symbol     TEXT    NOT NULL,
    side       TEXT    NOT NULL,
    qty        REAL    NOT NULL,
    avg_price  REAL    NOT NULL DEFAULT 0,
    stop       REAL    NOT NULL,
    tp_final   REAL    NOT NULL DEFAULT 0,
    tp_partial REAL    NOT NULL DEFAULT 0,
    notional   REAL    NOT NULL DEFAULT 0,
    server_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS blocked_reasons (
    minute INTEGER NOT NULL,
    reason TEXT    NOT NULL,
    count  INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (minute, reason)
);

CREATE INDEX IF NOT EXISTS idx_signals_ms  ON signals(server_ms DESC);
CREATE INDEX IF NOT EXISTS idx_entries_ms  ON entries(server_ms DESC);
CREATE INDEX IF NOT EXISTS idx_blocked_min ON blocked_reasons(minute DESC);
`

const retention = 30 * 24 * time.Hour

// Journal implementa ports.Journal usando SQLite (pure Go, sin CGo).
type Journal struct {
	db *sql.DB
}

// NewJournal abre (o crea) la base de datos en la ruta dada, aplica el
// schema y limpia filas antiguas.
func NewJournal(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewJournal: apply schema: %w", err)
	}
	j := &Journal{db: db}
	j.pruneOld(context.Background(), time.Now())
	return j, nil
}

// RecordSignal implementa ports.Journal.
func (j *Journal) RecordSignal(ctx context.Context, r domain.SignalRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO signals (signal_id, symbol, side, entry, stop, score, decision, reason, server_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.SignalID, r.Symbol, string(r.Side), r.Entry, r.Stop, r.Score, r.Decision, r.Reason, r.ServerMs)
	if err != nil {
		return fmt.Errorf("storage.RecordSignal: %w", err)
	}
	return nil
}

// RecordEntry implementa ports.Journal. Un client id repetido actualiza la fila.
func (j *Journal) RecordEntry(ctx context.Context, r domain.EntryRecord) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO entries (client_id, signal_id, symbol, side, qty, avg_price, stop, tp_final, tp_partial, notional, server_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			qty        = excluded.qty,
			avg_price  = excluded.avg_price,
			stop       = excluded.stop,
			tp_final   = excluded.tp_final,
			tp_partial = excluded.tp_partial,
			notional   = excluded.notional`,
		r.ClientID, r.SignalID, r.Symbol, string(r.Side), r.Qty, r.AvgPrice, r.Stop,
		r.TPFinal, r.TPPartial, r.Notional, r.ServerMs)
	if err != nil {
		return fmt.Errorf("storage.RecordEntry: %w", err)
	}
	return nil
}

// RecordBlocked implementa ports.Journal sumando los conteos por minuto y motivo.
func (j *Journal) RecordBlocked(ctx context.Context, counts []domain.BlockedCount) error {
	if len(counts) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.RecordBlocked: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO blocked_reasons (minute, reason, count) VALUES (?, ?, ?)
		ON CONFLICT(minute, reason) DO UPDATE SET count = count + excluded.count`)
	if err != nil {
		return fmt.Errorf("storage.RecordBlocked: prepare: %w", err)
	}
	defer stmt.Close()

	for _, c := range counts {
		if _, err := stmt.ExecContext(ctx, c.Minute, c.Reason, c.Count); err != nil {
			return fmt.Errorf("storage.RecordBlocked: %s: %w", c.Reason, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.RecordBlocked: commit: %w", err)
	}
	return nil
}

// Stats implementa ports.Journal: totales, top 10 motivos de bloqueo y las
// últimas lastN entradas.
func (j *Journal) Stats(ctx context.Context, lastN int) (domain.JournalStats, error) {
	var st domain.JournalStats
	row := j.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM signals),
			(SELECT COUNT(*) FROM entries),
			(SELECT COALESCE(SUM(count), 0) FROM blocked_reasons)`)
	if err := row.Scan(&st.Signals, &st.Entries, &st.Blocked); err != nil {
		return st, fmt.Errorf("storage.Stats: totals: %w", err)
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT reason, SUM(count) AS n FROM blocked_reasons
		GROUP BY reason ORDER BY n DESC, reason ASC LIMIT 10`)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: reasons: %w", err)
	}
	for rows.Next() {
		var rc domain.ReasonCount
		if err := rows.Scan(&rc.Reason, &rc.Count); err != nil {
			rows.Close()
			return st, fmt.Errorf("storage.Stats: scan reason: %w", err)
		}
		st.TopReasons = append(st.TopReasons, rc)
	}
	rows.Close()

	if lastN <= 0 {
		return st, nil
	}
	rows, err = j.db.QueryContext(ctx, `
		SELECT client_id, signal_id, symbol, side, qty, avg_price, stop, tp_final, tp_partial, notional, server_ms
		FROM entries ORDER BY server_ms DESC LIMIT ?`, lastN)
	if err != nil {
		return st, fmt.Errorf("storage.Stats: entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var e domain.EntryRecord
		var side string
		if err := rows.Scan(&e.ClientID, &e.SignalID, &e.Symbol, &side, &e.Qty, &e.AvgPrice,
			&e.Stop, &e.TPFinal, &e.TPPartial, &e.Notional, &e.ServerMs); err != nil {
			return st, fmt.Errorf("storage.Stats: scan entry: %w", err)
		}
		e.Side = domain.Side(side)
		st.LastEntries = append(st.LastEntries, e)
	}
	return st, rows.Err()
}

// pruneOld elimina señales y bloqueos fuera de la ventana de retención.
func (j *Journal) pruneOld(ctx context.Context, now time.Time) {
	cutoff := now.Add(-retention)
	_, _ = j.db.ExecContext(ctx, `DELETE FROM signals WHERE server_ms < ?`, cutoff.UnixMilli())
	_, _ = j.db.ExecContext(ctx, `DELETE FROM blocked_reasons WHERE minute < ?`, cutoff.Unix()/60)
}

// Close implementa ports.Journal.
func (j *Journal) Close() error {
	return j.db.Close()
}
