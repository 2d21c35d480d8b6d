package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const (
	MainnetWSBase = "wss://fstream.binance.com"
	TestnetWSBase = "wss://stream.binancefuture.com"
)

// StreamOptions configura la reconexión de los streams.
type StreamOptions struct {
	WSBase        string
	BackoffMin    time.Duration
	BackoffMax    time.Duration
	BackoffFactor float64
	HandshakeTO   time.Duration

	// OnReconnect se invoca cada vez que una conexión establecida se pierde.
	OnReconnect func()
}

func (o StreamOptions) backoff() *backoff.Backoff {
	b := &backoff.Backoff{Min: o.BackoffMin, Max: o.BackoffMax, Factor: o.BackoffFactor, Jitter: true}
	if b.Min <= 0 {
		b.Min = 500 * time.Millisecond
	}
	if b.Max <= 0 {
		b.Max = 30 * time.Second
	}
	if b.Factor <= 1 {
		b.Factor = 2
	}
	return b
}

func (o StreamOptions) dialer() *websocket.Dialer {
	to := o.HandshakeTO
	if to <= 0 {
		to = 10 * time.Second
	}
	return &websocket.Dialer{HandshakeTimeout: to, Proxy: websocket.DefaultDialer.Proxy}
}

// conn guarda la conexión viva para poder forzar su cierre desde otra goroutine.
type conn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

func (c *conn) set(ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
}

func (c *conn) close() {
	c.mu.Lock()
	if c.ws != nil {
		_ = c.ws.Close()
	}
	c.mu.Unlock()
}

// run mantiene una conexión a url, reconectando con backoff exponencial y
// jitter. Bloquea hasta que ctx termina.
func run(ctx context.Context, name string, url func() string, opts StreamOptions, cur *conn, onMsg func([]byte)) error {
	bo := opts.backoff()
	dialer := opts.dialer()
	for {
		if ctx.Err() != nil {
			return nil
		}
		ws, _, err := dialer.DialContext(ctx, url(), nil)
		if err != nil {
			wait := bo.Duration()
			slog.Warn("stream: dial failed", "feed", name, "err", err, "retry_in", wait)
			if !waitCtx(ctx, wait) {
				return nil
			}
			continue
		}
		slog.Info("stream: connected", "feed", name)
		bo.Reset()
		cur.set(ws)

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = ws.Close()
			case <-done:
			}
		}()
		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("stream: read failed, reconnecting", "feed", name, "err", err)
				}
				break
			}
			onMsg(msg)
		}
		close(done)
		_ = ws.Close()
		cur.set(nil)
		if ctx.Err() != nil {
			return nil
		}
		if opts.OnReconnect != nil {
			opts.OnReconnect()
		}
		if !waitCtx(ctx, bo.Duration()) {
			return nil
		}
	}
}

func waitCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// MarketStream entrega velas cerradas de varios timeframes y el book ticker
// de un símbolo por un stream combinado.
type MarketStream struct {
	opts StreamOptions
	url  string
	cur  conn
}

// NewMarketStream construye el stream combinado para symbol.
func NewMarketStream(opts StreamOptions, symbol string, tfs []domain.Timeframe, bookTicker bool) *MarketStream {
	sym := strings.ToLower(symbol)
	var streams []string
	for _, tf := range tfs {
		streams = append(streams, fmt.Sprintf("%s@kline_%s", sym, tf))
	}
	if bookTicker {
		streams = append(streams, sym+"@bookTicker")
	}
	base := strings.TrimRight(opts.WSBase, "/")
	if base == "" {
		base = MainnetWSBase
	}
	return &MarketStream{opts: opts, url: base + "/stream?streams=" + strings.Join(streams, "/")}
}

// URL devuelve la URL del stream combinado.
func (s *MarketStream) URL() string { return s.url }

// Run implementa ports.MarketFeed.
func (s *MarketStream) Run(ctx context.Context, sink func(domain.MarketEvent)) error {
	return run(ctx, "market", func() string { return s.url }, s.opts, &s.cur, func(msg []byte) {
		ev, ok, err := ParseMarketMessage(msg)
		if err != nil {
			slog.Debug("stream: bad market message", "err", err)
			return
		}
		if ok {
			sink(ev)
		}
	})
}

// Reconnect implementa ports.MarketFeed.
func (s *MarketStream) Reconnect() { s.cur.close() }

type combinedMsg struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type klineMsg struct {
	Event string `json:"e"`
	K     struct {
		Start    int64  `json:"t"`
		Interval string `json:"i"`
		Open     string `json:"o"`
		High     string `json:"h"`
		Low      string `json:"l"`
		Close    string `json:"c"`
		Volume   string `json:"v"`
		Closed   bool   `json:"x"`
	} `json:"k"`
}

type bookTickerMsg struct {
	Event string `json:"e"`
	Bid   string `json:"b"`
	Ask   string `json:"a"`
}

// ParseMarketMessage decodifica un mensaje del stream combinado. ok=false
// para velas aún abiertas y eventos que no interesan.
func ParseMarketMessage(msg []byte) (domain.MarketEvent, bool, error) {
	var cm combinedMsg
	if err := json.Unmarshal(msg, &cm); err != nil {
		return domain.MarketEvent{}, false, fmt.Errorf("combined envelope: %w", err)
	}
	switch {
	case strings.Contains(cm.Stream, "@kline_"):
		var k klineMsg
		if err := json.Unmarshal(cm.Data, &k); err != nil {
			return domain.MarketEvent{}, false, fmt.Errorf("kline: %w", err)
		}
		if !k.K.Closed {
			return domain.MarketEvent{}, false, nil
		}
		return domain.MarketEvent{
			Kind:     domain.EventKline,
			Interval: domain.Timeframe(k.K.Interval),
			Candle: domain.Candle{
				OpenTime: k.K.Start,
				Open:     parseFloat(k.K.Open),
				High:     parseFloat(k.K.High),
				Low:      parseFloat(k.K.Low),
				Close:    parseFloat(k.K.Close),
				Volume:   parseFloat(k.K.Volume),
			},
		}, true, nil
	case strings.HasSuffix(cm.Stream, "@bookTicker"):
		var b bookTickerMsg
		if err := json.Unmarshal(cm.Data, &b); err != nil {
			return domain.MarketEvent{}, false, fmt.Errorf("book ticker: %w", err)
		}
		return domain.MarketEvent{Kind: domain.EventBookTicker, Bid: parseFloat(b.Bid), Ask: parseFloat(b.Ask)}, true, nil
	}
	return domain.MarketEvent{}, false, nil
}

// UserStream entrega eventos de órdenes y cuenta. La listen key se lee en
// cada reconexión, así un keeper puede rotarla.
type UserStream struct {
	opts StreamOptions
	key  func() string
	cur  conn
}

// NewUserStream crea el stream de cuenta.
func NewUserStream(opts StreamOptions, listenKey func() string) *UserStream {
	return &UserStream{opts: opts, key: listenKey}
}

func (s *UserStream) url() string {
	base := strings.TrimRight(s.opts.WSBase, "/")
	if base == "" {
		base = MainnetWSBase
	}
	return base + "/ws/" + s.key()
}

// Run implementa ports.UserFeed.
func (s *UserStream) Run(ctx context.Context, sink func(domain.UserEvent)) error {
	return run(ctx, "user", s.url, s.opts, &s.cur, func(msg []byte) {
		ev, ok, err := ParseUserMessage(msg)
		if err != nil {
			slog.Debug("stream: bad user message", "err", err)
			return
		}
		if ok {
			sink(ev)
		}
	})
}

// Reconnect fuerza una reconexión (p. ej. tras rotar la listen key).
func (s *UserStream) Reconnect() { s.cur.close() }

type userEnvelope struct {
	Event string `json:"e"`
	Time  int64  `json:"E"`
}

type orderUpdateMsg struct {
	O struct {
		Symbol        string `json:"s"`
		ClientID      string `json:"c"`
		Side          string `json:"S"`
		Type          string `json:"o"`
		OrigType      string `json:"ot"`
		Status        string `json:"X"`
		OrderID       int64  `json:"i"`
		StopPrice     string `json:"sp"`
		OrigQty       string `json:"q"`
		FilledQty     string `json:"z"`
		AvgPrice      string `json:"ap"`
		ReduceOnly    bool   `json:"R"`
		ClosePosition bool   `json:"cp"`
		TradeTime     int64  `json:"T"`
	} `json:"o"`
}

type accountUpdateMsg struct {
	A struct {
		Positions []struct {
			Symbol      string `json:"s"`
			Amount      string `json:"pa"`
			CumRealized string `json:"cr"`
		} `json:"P"`
	} `json:"a"`
}

// ParseUserMessage decodifica un evento del stream de cuenta.
func ParseUserMessage(msg []byte) (domain.UserEvent, bool, error) {
	var env userEnvelope
	if err := json.Unmarshal(msg, &env); err != nil {
		return domain.UserEvent{}, false, fmt.Errorf("user envelope: %w", err)
	}
	switch env.Event {
	case "ORDER_TRADE_UPDATE":
		var m orderUpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return domain.UserEvent{}, false, fmt.Errorf("order update: %w", err)
		}
		o := m.O
		typ := o.OrigType
		if typ == "" {
			typ = o.Type
		}
		return domain.UserEvent{
			Kind:      domain.EventOrderUpdate,
			EventTime: env.Time,
			Order: domain.Order{
				OrderID:       o.OrderID,
				ClientID:      o.ClientID,
				Symbol:        o.Symbol,
				Side:          domain.OrderSide(o.Side),
				Type:          domain.OrderType(typ),
				Status:        domain.OrderStatus(o.Status),
				StopPrice:     parseFloat(o.StopPrice),
				OrigQty:       parseFloat(o.OrigQty),
				ExecutedQty:   parseFloat(o.FilledQty),
				AvgPrice:      parseFloat(o.AvgPrice),
				ReduceOnly:    o.ReduceOnly,
				ClosePosition: o.ClosePosition,
				UpdateTime:    o.TradeTime,
			},
		}, true, nil
	case "ACCOUNT_UPDATE":
		var m accountUpdateMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			return domain.UserEvent{}, false, fmt.Errorf("account update: %w", err)
		}
		ev := domain.UserEvent{Kind: domain.EventAccountUpdate, EventTime: env.Time}
		for _, p := range m.A.Positions {
			ev.Positions = append(ev.Positions, domain.AccountPosition{
				Symbol:      p.Symbol,
				Amount:      parseFloat(p.Amount),
				CumRealized: parseFloat(p.CumRealized),
			})
		}
		return ev, true, nil
	case "listenKeyExpired":
		return domain.UserEvent{Kind: domain.EventListenKeyExpired, EventTime: env.Time}, true, nil
	}
	return domain.UserEvent{}, false, nil
}
