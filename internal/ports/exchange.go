package ports

import (
	"context"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// MarketData lee velas, precios y tiempo del exchange.
type MarketData interface {
	// Klines devuelve hasta limit velas ordenadas por openTime. Puede incluir
	// la vela en curso; el llamador filtra las cerradas.
	Klines(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Candle, error)

	// ServerTime devuelve la hora del exchange en ms.
	ServerTime(ctx context.Context) (int64, error)

	// Funding devuelve tasa, próximo funding y mark price.
	Funding(ctx context.Context, symbol string) (domain.FundingInfo, error)

	// LastPrices devuelve el último precio de todos los símbolos.
	LastPrices(ctx context.Context) (map[string]float64, error)
}

// Account consulta y configura la cuenta de futuros.
type Account interface {
	Instrument(ctx context.Context, symbol string) (domain.Instrument, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
	PositionModeDual(ctx context.Context) (bool, error)
	MarginType(ctx context.Context, symbol string) (string, error)

	// Positions devuelve las posiciones abiertas; symbol vacío = todas.
	Positions(ctx context.Context, symbol string) ([]domain.Position, error)

	// Balance devuelve el balance total y el disponible del asset.
	Balance(ctx context.Context, asset string) (total, available float64, err error)

	// RealizedPnL suma el realizado del símbolo desde startMs.
	RealizedPnL(ctx context.Context, symbol string, startMs int64) (float64, error)
}

// OrderExecutor coloca, cancela y consulta órdenes.
//
// SubmitOrder nunca reintenta: un fallo de transporte debe resolverse con
// QueryOrder por client id antes de declarar el fallo.
type OrderExecutor interface {
	SubmitOrder(ctx context.Context, symbol string, req domain.OrderRequest) (domain.Order, error)
	CancelOrder(ctx context.Context, symbol string, ref domain.OrderRef) error
	QueryOrder(ctx context.Context, symbol string, clientID string) (domain.Order, error)
	OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error)
}

// Session gestiona la listen key del stream de cuenta y la firma.
type Session interface {
	StartUserStream(ctx context.Context) (string, error)
	KeepaliveUserStream(ctx context.Context, listenKey string) error

	// SetTimeOffset recibe el drift servidor-local (ms) y lo aplica al firmar.
	SetTimeOffset(driftMs int64)

	// BumpRecvWindow sube la ventana de recepción por drift; reset la vuelve a la base.
	BumpRecvWindow(bump bool)
}

// Exchange es el gateway completo que consume el engine.
type Exchange interface {
	MarketData
	Account
	OrderExecutor
	Session
}

// MarketFeed entrega velas cerradas y bid/ask. Run bloquea hasta que ctx
// termina, reconectando internamente.
type MarketFeed interface {
	Run(ctx context.Context, sink func(domain.MarketEvent)) error

	// Reconnect fuerza el cierre de la conexión actual (watchdog).
	Reconnect()
}

// UserFeed entrega eventos de órdenes y cuenta para una listen key.
type UserFeed interface {
	Run(ctx context.Context, sink func(domain.UserEvent)) error
}
