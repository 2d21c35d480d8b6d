package binance

import (
	"context"
	"fmt"
	"strings"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// Instrument implementa ports.Account.
func (c *Client) Instrument(ctx context.Context, symbol string) (domain.Instrument, error) {
	var info *futures.ExchangeInfo
	err := c.read(ctx, "exchange_info", func(ctx context.Context) error {
		var err error
		info, err = c.fc.NewExchangeInfoService().Do(ctx)
		return err
	})
	if err != nil {
		return domain.Instrument{}, fmt.Errorf("binance.Instrument: %w", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return toInstrument(s), nil
		}
	}
	return domain.Instrument{}, &domain.ExchangeError{
		Kind: domain.KindFatal, Op: "exchange_info", Msg: fmt.Sprintf("symbol %s not listed", symbol),
	}
}

// SetLeverage implementa ports.Account.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	err := c.send(ctx, "leverage", func(ctx context.Context) error {
		_, err := c.fc.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return fmt.Errorf("binance.SetLeverage: %s x%d: %w", symbol, leverage, err)
	}
	return nil
}

// PositionModeDual implementa ports.Account.
func (c *Client) PositionModeDual(ctx context.Context) (bool, error) {
	var pm *futures.PositionMode
	err := c.read(ctx, "position_mode", func(ctx context.Context) error {
		var err error
		pm, err = c.fc.NewGetPositionModeService().Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("binance.PositionModeDual: %w", err)
	}
	return pm.DualSidePosition, nil
}

// MarginType devuelve "cross" o "isolated" según el position risk del símbolo.
func (c *Client) MarginType(ctx context.Context, symbol string) (string, error) {
	risks, err := c.positionRisk(ctx, symbol)
	if err != nil {
		return "", fmt.Errorf("binance.MarginType: %w", err)
	}
	for _, r := range risks {
		if r.Symbol == symbol {
			return strings.ToLower(r.MarginType), nil
		}
	}
	return "", fmt.Errorf("binance.MarginType: %s: no position risk row", symbol)
}

func (c *Client) positionRisk(ctx context.Context, symbol string) ([]*futures.PositionRisk, error) {
	var risks []*futures.PositionRisk
	err := c.read(ctx, "position_risk", func(ctx context.Context) error {
		svc := c.fc.NewGetPositionRiskService()
		if symbol != "" {
			svc = svc.Symbol(symbol)
		}
		var err error
		risks, err = svc.Do(ctx, c.opts()...)
		return err
	})
	return risks, err
}

// Positions implementa ports.Account. Solo devuelve posiciones no nulas.
func (c *Client) Positions(ctx context.Context, symbol string) ([]domain.Position, error) {
	risks, err := c.positionRisk(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("binance.Positions: %w", err)
	}
	var out []domain.Position
	for _, r := range risks {
		p := toPosition(r)
		if p.Amount != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

// Balance implementa ports.Account.
func (c *Client) Balance(ctx context.Context, asset string) (total, available float64, err error) {
	var bals []*futures.Balance
	err = c.read(ctx, "balance", func(ctx context.Context) error {
		var err error
		bals, err = c.fc.NewGetBalanceService().Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return 0, 0, fmt.Errorf("binance.Balance: %w", err)
	}
	for _, b := range bals {
		if b.Asset == asset {
			return parseFloat(b.Balance), parseFloat(b.AvailableBalance), nil
		}
	}
	return 0, 0, nil
}

// RealizedPnL implementa ports.Account sumando el income REALIZED_PNL.
func (c *Client) RealizedPnL(ctx context.Context, symbol string, startMs int64) (float64, error) {
	var rows []*futures.IncomeHistory
	err := c.read(ctx, "income", func(ctx context.Context) error {
		var err error
		rows, err = c.fc.NewGetIncomeHistoryService().
			Symbol(symbol).
			IncomeType("REALIZED_PNL").
			StartTime(startMs).
			Limit(1000).
			Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("binance.RealizedPnL: %w", err)
	}
	total := 0.0
	for _, r := range rows {
		total += parseFloat(r.Income)
	}
	return total, nil
}

// StartUserStream implementa ports.Session.
func (c *Client) StartUserStream(ctx context.Context) (string, error) {
	var key string
	err := c.read(ctx, "listen_key", func(ctx context.Context) error {
		var err error
		key, err = c.fc.NewStartUserStreamService().Do(ctx)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("binance.StartUserStream: %w", err)
	}
	return key, nil
}

// KeepaliveUserStream implementa ports.Session.
func (c *Client) KeepaliveUserStream(ctx context.Context, listenKey string) error {
	err := c.send(ctx, "listen_key_keepalive", func(ctx context.Context) error {
		return c.fc.NewKeepaliveUserStreamService().ListenKey(listenKey).Do(ctx)
	})
	if err != nil {
		return fmt.Errorf("binance.KeepaliveUserStream: %w", err)
	}
	return nil
}
