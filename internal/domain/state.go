package domain

// PersistedState es lo que sobrevive a un reinicio. Se escribe de forma
// atómica (archivo temporal + rename).
type PersistedState struct {
	DayStartEquity float64            `json:"day_start_equity"`
	DayStartDate   string             `json:"day_start_date"`
	TradesToday    int                `json:"trades_today"`
	RealizedToday  float64            `json:"realized_today"`
	LastLossMs     int64              `json:"last_loss_ms"`
	Dedupe         DedupeBook         `json:"dedupe"`
	CRBaselines    map[string]float64 `json:"cr_baselines"`
}

// Ledger reconstruye el ledger diario desde el estado persistido.
func (s PersistedState) Ledger() DayLedger {
	return DayLedger{
		Date:             s.DayStartDate,
		StartEquity:      s.DayStartEquity,
		RealizedToday:    s.RealizedToday,
		TradesToday:      s.TradesToday,
		LastLossServerMs: s.LastLossMs,
	}
}
