package binance

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Klines implementa ports.MarketData.
func (c *Client) Klines(ctx context.Context, symbol string, tf domain.Timeframe, limit int) ([]domain.Candle, error) {
	var ks []*futures.Kline
	err := c.read(ctx, "klines", func(ctx context.Context) error {
		var err error
		ks, err = c.fc.NewKlinesService().Symbol(symbol).Interval(string(tf)).Limit(limit).Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance.Klines: %s %s: %w", symbol, tf, err)
	}
	out := make([]domain.Candle, 0, len(ks))
	for _, k := range ks {
		out = append(out, toCandle(k))
	}
	return out, nil
}

// ServerTime implementa ports.MarketData.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var ms int64
	err := c.read(ctx, "server_time", func(ctx context.Context) error {
		var err error
		ms, err = c.fc.NewServerTimeService().Do(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("binance.ServerTime: %w", err)
	}
	return ms, nil
}

// Funding implementa ports.MarketData.
func (c *Client) Funding(ctx context.Context, symbol string) (domain.FundingInfo, error) {
	var idx []*futures.PremiumIndex
	err := c.read(ctx, "premium_index", func(ctx context.Context) error {
		var err error
		idx, err = c.fc.NewPremiumIndexService().Symbol(symbol).Do(ctx)
		return err
	})
	if err != nil {
		return domain.FundingInfo{}, fmt.Errorf("binance.Funding: %s: %w", symbol, err)
	}
	for _, p := range idx {
		if p.Symbol == symbol {
			return domain.FundingInfo{
				Rate:            parseFloat(p.LastFundingRate),
				NextFundingTime: p.NextFundingTime,
				MarkPrice:       parseFloat(p.MarkPrice),
			}, nil
		}
	}
	return domain.FundingInfo{}, fmt.Errorf("binance.Funding: %s: symbol missing from premium index", symbol)
}

// LastPrices implementa ports.MarketData.
func (c *Client) LastPrices(ctx context.Context) (map[string]float64, error) {
	var ps []*futures.SymbolPrice
	err := c.read(ctx, "prices", func(ctx context.Context) error {
		var err error
		ps, err = c.fc.NewListPricesService().Do(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance.LastPrices: %w", err)
	}
	out := make(map[string]float64, len(ps))
	for _, p := range ps {
		out[p.Symbol] = parseFloat(p.Price)
	}
	return out, nil
}
