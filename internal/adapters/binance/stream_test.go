package binance_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sweepbot/internal/adapters/binance"
	"github.com/alejandrodnm/sweepbot/internal/domain"
)

const closedKline = `{"stream":"btcusdt@kline_1m","data":{"e":"kline","E":1700000060100,"s":"BTCUSDT",
"k":{"t":1700000000000,"T":1700000059999,"s":"BTCUSDT","i":"1m","o":"100.5","c":"101.0","h":"101.5","l":"100.0","v":"12.5","x":true}}}`

func TestParseMarketMessage(t *testing.T) {
	t.Run("closed kline", func(t *testing.T) {
		ev, ok, err := binance.ParseMarketMessage([]byte(closedKline))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.EventKline, ev.Kind)
		assert.Equal(t, domain.TF1m, ev.Interval)
		assert.Equal(t, domain.Candle{OpenTime: 1700000000000, Open: 100.5, High: 101.5, Low: 100, Close: 101, Volume: 12.5}, ev.Candle)
	})

	t.Run("open kline ignored", func(t *testing.T) {
		msg := strings.Replace(closedKline, `"x":true`, `"x":false`, 1)
		_, ok, err := binance.ParseMarketMessage([]byte(msg))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("book ticker", func(t *testing.T) {
		msg := `{"stream":"btcusdt@bookTicker","data":{"e":"bookTicker","u":1,"s":"BTCUSDT","b":"100.1","B":"3","a":"100.2","A":"4"}}`
		ev, ok, err := binance.ParseMarketMessage([]byte(msg))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.EventBookTicker, ev.Kind)
		assert.Equal(t, 100.1, ev.Bid)
		assert.Equal(t, 100.2, ev.Ask)
	})

	t.Run("garbage", func(t *testing.T) {
		_, _, err := binance.ParseMarketMessage([]byte("not json"))
		assert.Error(t, err)
	})
}

func TestParseUserMessage(t *testing.T) {
	t.Run("triggered stop uses original type", func(t *testing.T) {
		msg := `{"e":"ORDER_TRADE_UPDATE","E":1700000000500,"T":1700000000499,"o":{"s":"BTCUSDT","c":"stp-1",
"S":"SELL","o":"MARKET","ot":"STOP_MARKET","X":"FILLED","i":42,"sp":"99.5","q":"0","z":"0.01","ap":"99.4","R":true,"cp":true,"T":1700000000499}}`
		ev, ok, err := binance.ParseUserMessage([]byte(msg))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.EventOrderUpdate, ev.Kind)
		assert.Equal(t, int64(1700000000500), ev.EventTime)
		o := ev.Order
		assert.Equal(t, domain.OrderStopMarket, o.Type)
		assert.Equal(t, domain.StatusFilled, o.Status)
		assert.Equal(t, domain.Sell, o.Side)
		assert.Equal(t, int64(42), o.OrderID)
		assert.Equal(t, "stp-1", o.ClientID)
		assert.True(t, o.ClosePosition)
		assert.True(t, o.IsProtectiveStop())
		assert.Equal(t, 99.5, o.StopPrice)
	})

	t.Run("account update", func(t *testing.T) {
		msg := `{"e":"ACCOUNT_UPDATE","E":1700000001000,"T":1700000001000,"a":{"m":"ORDER","B":[],
"P":[{"s":"BTCUSDT","pa":"0.010","ep":"100","cr":"-12.5","up":"0","mt":"cross","iw":"0","ps":"BOTH"}]}}`
		ev, ok, err := binance.ParseUserMessage([]byte(msg))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.EventAccountUpdate, ev.Kind)
		require.Len(t, ev.Positions, 1)
		assert.Equal(t, domain.AccountPosition{Symbol: "BTCUSDT", Amount: 0.01, CumRealized: -12.5}, ev.Positions[0])
	})

	t.Run("listen key expired", func(t *testing.T) {
		ev, ok, err := binance.ParseUserMessage([]byte(`{"e":"listenKeyExpired","E":1700000002000}`))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.EventListenKeyExpired, ev.Kind)
	})

	t.Run("unknown event skipped", func(t *testing.T) {
		_, ok, err := binance.ParseUserMessage([]byte(`{"e":"MARGIN_CALL","E":1}`))
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNewMarketStream_URL(t *testing.T) {
	s := binance.NewMarketStream(binance.StreamOptions{WSBase: "wss://example.test/"}, "BTCUSDT",
		[]domain.Timeframe{domain.TF1m, domain.TF5m}, true)
	assert.Equal(t, "wss://example.test/stream?streams=btcusdt@kline_1m/btcusdt@kline_5m/btcusdt@bookTicker", s.URL())
}

func TestMarketStream_DeliversAndReconnects(t *testing.T) {
	upgrader := websocket.Upgrader{}
	var conns atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns.Add(1)
		_ = ws.WriteMessage(websocket.TextMessage, []byte(closedKline))
		// cierra enseguida para forzar una reconexión
		_ = ws.Close()
	}))
	defer srv.Close()

	reconnects := 0
	opts := binance.StreamOptions{
		WSBase:      "ws" + strings.TrimPrefix(srv.URL, "http"),
		BackoffMin:  5 * time.Millisecond,
		BackoffMax:  10 * time.Millisecond,
		OnReconnect: func() { reconnects++ },
	}
	s := binance.NewMarketStream(opts, "BTCUSDT", []domain.Timeframe{domain.TF1m}, false)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	events := make(chan domain.MarketEvent, 8)
	done := make(chan error, 1)
	go func() {
		done <- s.Run(ctx, func(ev domain.MarketEvent) {
			select {
			case events <- ev:
			default:
			}
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, domain.EventKline, ev.Kind)
		case <-ctx.Done():
			t.Fatal("no event delivered")
		}
	}
	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
	assert.GreaterOrEqual(t, reconnects, 1)
}
