package binance

import (
	"context"
	"fmt"

	"github.com/adshao/go-binance/v2/futures"

	"github.com/alejandrodnm/sweepbot/internal/domain"
)

// SubmitOrder implementa ports.OrderExecutor. Nunca reintenta: el llamador
// resuelve los fallos de transporte consultando por client id.
func (c *Client) SubmitOrder(ctx context.Context, symbol string, req domain.OrderRequest) (domain.Order, error) {
	svc := c.fc.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderType(req.Type)).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}
	if req.ClosePosition {
		svc = svc.ClosePosition(true)
	} else if req.Quantity != "" {
		svc = svc.Quantity(req.Quantity)
	}
	if req.ReduceOnly && !req.ClosePosition {
		svc = svc.ReduceOnly(true)
	}
	if req.StopPrice != "" {
		svc = svc.StopPrice(req.StopPrice)
	}
	if req.WorkingType != "" && req.Type != domain.OrderMarket {
		svc = svc.WorkingType(futures.WorkingType(req.WorkingType))
	}

	var resp *futures.CreateOrderResponse
	err := c.send(ctx, "create_order", func(ctx context.Context) error {
		var err error
		resp, err = svc.Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance.SubmitOrder: %s %s %s cid=%s: %w",
			symbol, req.Side, req.Type, req.ClientID, err)
	}
	return fromCreateResponse(resp), nil
}

// CancelOrder implementa ports.OrderExecutor.
func (c *Client) CancelOrder(ctx context.Context, symbol string, ref domain.OrderRef) error {
	if ref.IsZero() {
		return fmt.Errorf("binance.CancelOrder: %s: empty order reference", symbol)
	}
	svc := c.fc.NewCancelOrderService().Symbol(symbol)
	if ref.OrderID != 0 {
		svc = svc.OrderID(ref.OrderID)
	} else {
		svc = svc.OrigClientOrderID(ref.ClientID)
	}
	err := c.send(ctx, "cancel_order", func(ctx context.Context) error {
		_, err := svc.Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return fmt.Errorf("binance.CancelOrder: %s id=%d cid=%s: %w", symbol, ref.OrderID, ref.ClientID, err)
	}
	return nil
}

// QueryOrder implementa ports.OrderExecutor.
func (c *Client) QueryOrder(ctx context.Context, symbol, clientID string) (domain.Order, error) {
	var o *futures.Order
	err := c.read(ctx, "query_order", func(ctx context.Context) error {
		var err error
		o, err = c.fc.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("binance.QueryOrder: %s cid=%s: %w", symbol, clientID, err)
	}
	return toOrder(o), nil
}

// OpenOrders implementa ports.OrderExecutor.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]domain.Order, error) {
	var list []*futures.Order
	err := c.read(ctx, "open_orders", func(ctx context.Context) error {
		var err error
		list, err = c.fc.NewListOpenOrdersService().Symbol(symbol).Do(ctx, c.opts()...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("binance.OpenOrders: %s: %w", symbol, err)
	}
	out := make([]domain.Order, 0, len(list))
	for _, o := range list {
		out = append(out, toOrder(o))
	}
	return out, nil
}
