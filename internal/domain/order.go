package domain

// Side is the direction of a trade setup.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign devuelve +1 para long y -1 para short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// EntrySide es el lado de la orden que abre la posición.
func (s Side) EntrySide() OrderSide {
	if s == Short {
		return Sell
	}
	return Buy
}

// ExitSide es el lado de las órdenes que cierran la posición.
func (s Side) ExitSide() OrderSide {
	if s == Short {
		return Buy
	}
	return Sell
}

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == Short {
		return Long
	}
	return Short
}

// OrderSide is BUY or SELL on the venue.
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// OrderType enumerates the order types the engine submits.
type OrderType string

const (
	OrderMarket           OrderType = "MARKET"
	OrderStopMarket       OrderType = "STOP_MARKET"
	OrderTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"
)

// OrderStatus mirrors the venue order lifecycle.
type OrderStatus string

const (
	StatusNew             OrderStatus = "NEW"
	StatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	StatusFilled          OrderStatus = "FILLED"
	StatusCanceled        OrderStatus = "CANCELED"
	StatusRejected        OrderStatus = "REJECTED"
	StatusExpired         OrderStatus = "EXPIRED"
)

// Placed reports whether the venue accepted the order (resting or filled).
func (s OrderStatus) Placed() bool {
	return s == StatusNew || s == StatusPartiallyFilled || s == StatusFilled
}

// Order es la vista tipada de una orden del exchange.
type Order struct {
	OrderID       int64
	ClientID      string
	Symbol        string
	Side          OrderSide
	Type          OrderType
	Status        OrderStatus
	StopPrice     float64
	OrigQty       float64
	ExecutedQty   float64
	AvgPrice      float64
	CumQuote      float64
	ReduceOnly    bool
	ClosePosition bool
	UpdateTime    int64 // ms
}

// IsProtectiveStop: STOP_MARKET con closePosition.
func (o Order) IsProtectiveStop() bool {
	return o.Type == OrderStopMarket && o.ClosePosition
}

// IsTakeProfit: TAKE_PROFIT_MARKET reduce-only.
func (o Order) IsTakeProfit() bool {
	return o.Type == OrderTakeProfitMarket && o.ReduceOnly
}

// FillNotional is the quote value actually executed. Falls back to
// CumQuote when the venue omits the average price.
func (o Order) FillNotional() float64 {
	if o.AvgPrice > 0 && o.ExecutedQty > 0 {
		return o.AvgPrice * o.ExecutedQty
	}
	return o.CumQuote
}

// OrderRef identifies an order by venue id or client id.
type OrderRef struct {
	OrderID  int64
	ClientID string
}

// IsZero reports whether the reference carries no identifier.
func (r OrderRef) IsZero() bool { return r.OrderID == 0 && r.ClientID == "" }

// OrderRequest is what the engine submits. Quantity and StopPrice are
// already formatted to the instrument's step and tick.
type OrderRequest struct {
	Side          OrderSide
	Type          OrderType
	Quantity      string
	StopPrice     string
	ClosePosition bool
	ReduceOnly    bool
	ClientID      string
	WorkingType   string
}

// Position is the venue's view of a symbol position (one-way mode).
type Position struct {
	Symbol     string
	Amount     float64 // signed
	EntryPrice float64
	MarkPrice  float64
	Isolated   bool
}

// FundingInfo es el estado de funding del perpetuo.
type FundingInfo struct {
	Rate            float64
	NextFundingTime int64 // ms, 0 = desconocido
	MarkPrice       float64
}

// Instrument contiene los filtros del símbolo.
type Instrument struct {
	Symbol      string
	QuoteAsset  string
	Tick        float64
	Step        float64
	MinNotional float64
}

// Valid reports whether the filters make sizing possible.
func (i Instrument) Valid() bool {
	return i.Tick > 0 && i.Step > 0
}
