package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExchangeError_Classification(t *testing.T) {
	rej := &ExchangeError{Kind: KindRejected, Op: "binance.SubmitOrder", Code: -2019, Msg: "margin is insufficient"}
	wrapped := fmt.Errorf("live.submitEntry: %w", rej)

	assert.True(t, IsRejected(wrapped))
	assert.False(t, IsTransient(wrapped))
	assert.Equal(t, int64(-2019), RejectCode(wrapped))
	assert.Equal(t, "binance.SubmitOrder: [rejected:-2019] margin is insufficient", rej.Error())

	tr := &ExchangeError{Kind: KindTransient, Op: "binance.Klines", Err: errors.New("timeout")}
	assert.True(t, IsTransient(tr))
	assert.Zero(t, RejectCode(tr))
	assert.EqualError(t, tr, "binance.Klines: [transient] timeout")

	// sin tipo se trata como transitorio
	assert.True(t, IsTransient(errors.New("eof")))
	assert.False(t, IsTransient(nil))
	assert.False(t, IsRejected(errors.New("eof")))
}

func TestCircuitBreaker_TripsAndResets(t *testing.T) {
	cb := &CircuitBreaker{Name: "order", Threshold: 3, Pause: 15 * time.Second}

	assert.Zero(t, cb.Record())
	assert.Zero(t, cb.Record())
	assert.Equal(t, 15*time.Second, cb.Record())
	assert.Zero(t, cb.Count())

	cb.Record()
	cb.Reset()
	assert.Zero(t, cb.Count())
}

func TestSide_OrderSides(t *testing.T) {
	assert.Equal(t, Buy, Long.EntrySide())
	assert.Equal(t, Sell, Long.ExitSide())
	assert.Equal(t, Sell, Short.EntrySide())
	assert.Equal(t, Long, Short.Opposite())
	assert.Equal(t, -1.0, Short.Sign())
	assert.True(t, StatusPartiallyFilled.Placed())
	assert.False(t, StatusRejected.Placed())
}
