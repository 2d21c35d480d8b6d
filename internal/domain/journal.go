package domain

// SignalRecord es una decisión tomada sobre un candidato, se haya operado o no.
type SignalRecord struct {
	SignalID string
	Symbol   string
	Side     Side
	Entry    float64
	Stop     float64
	Score    float64
	Decision string // "entered" | "blocked" | "skipped"
	Reason   string
	ServerMs int64
}

// EntryRecord describe una entrada colocada y sus protecciones.
type EntryRecord struct {
	ClientID  string
	SignalID  string
	Symbol    string
	Side      Side
	Qty       float64
	AvgPrice  float64
	Stop      float64
	TPFinal   float64
	TPPartial float64
	Notional  float64
	ServerMs  int64
}

// BlockedCount agrega los skips de un minuto por motivo.
type BlockedCount struct {
	Minute int64 // epoch minute
	Reason string
	Count  int
}

// ReasonCount es una fila del resumen de bloqueos.
type ReasonCount struct {
	Reason string
	Count  int
}

// JournalStats resume el journal para el comando report.
type JournalStats struct {
	Signals     int
	Entries     int
	Blocked     int
	TopReasons  []ReasonCount
	LastEntries []EntryRecord
}
