package domain

// MarketEventKind distingue los eventos del stream de mercado.
type MarketEventKind int

const (
	EventKline MarketEventKind = iota + 1
	EventBookTicker
)

// MarketEvent is a typed message from the market stream. Only closed
// candles are delivered as EventKline.
type MarketEvent struct {
	Kind     MarketEventKind
	Interval Timeframe
	Candle   Candle
	Bid      float64
	Ask      float64
}

// UserEventKind distingue los eventos del stream de cuenta.
type UserEventKind int

const (
	EventOrderUpdate UserEventKind = iota + 1
	EventAccountUpdate
	EventListenKeyExpired
)

// AccountPosition lleva el realizado acumulado por símbolo.
type AccountPosition struct {
	Symbol      string
	Amount      float64
	CumRealized float64
}

// UserEvent is a typed message from the account stream.
type UserEvent struct {
	Kind      UserEventKind
	EventTime int64 // ms de servidor
	Order     Order
	Positions []AccountPosition
}
