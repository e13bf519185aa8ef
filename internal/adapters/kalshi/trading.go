package kalshi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// PlaceOrder envía una orden límite. La orden devuelta lleva el
// ExchangeID asignado y el status que reporte el exchange; la cantidad
// llenada sale de GetOrder, no de esta respuesta.
func (c *Client) PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	var resp orderResponse
	if err := c.post(ctx, "/portfolio/orders", toCreateOrderRequest(order), &resp); err != nil {
		return order, fmt.Errorf("kalshi.PlaceOrder: %s: %w", order.Ticker, err)
	}
	return mergeOrder(order, resp.Order), nil
}

// CancelOrder cancela una orden por su ID de exchange.
func (c *Client) CancelOrder(ctx context.Context, exchangeID string) error {
	if err := c.del(ctx, "/portfolio/orders/"+url.PathEscape(exchangeID), nil); err != nil {
		return fmt.Errorf("kalshi.CancelOrder: %s: %w", exchangeID, err)
	}
	return nil
}

// GetOrder devuelve el estado actual de una orden con su fill acumulado.
func (c *Client) GetOrder(ctx context.Context, exchangeID string) (domain.Order, error) {
	var resp orderResponse
	if err := c.get(ctx, "/portfolio/orders/"+url.PathEscape(exchangeID), &resp); err != nil {
		return domain.Order{}, fmt.Errorf("kalshi.GetOrder: %s: %w", exchangeID, err)
	}
	local := domain.Order{
		ID:       resp.Order.ClientOrderID,
		Ticker:   resp.Order.Ticker,
		Side:     domain.Side(resp.Order.Side),
		Action:   domain.OrderAction(resp.Order.Action),
		Quantity: resp.Order.InitialCount,
		Status:   domain.OrderPending,
	}
	if resp.Order.Side == "no" {
		local.Price = centsToDollars(resp.Order.NoPrice)
	} else {
		local.Price = centsToDollars(resp.Order.YesPrice)
	}
	return mergeOrder(local, resp.Order), nil
}

// GetPositions devuelve todas las posiciones abiertas, paginando.
func (c *Client) GetPositions(ctx context.Context) ([]ports.ExchangePosition, error) {
	var out []ports.ExchangePosition
	cursor := ""
	for {
		path := "/portfolio/positions?limit=200"
		if cursor != "" {
			path += "&cursor=" + url.QueryEscape(cursor)
		}
		var resp positionsResponse
		if err := c.get(ctx, path, &resp); err != nil {
			return nil, fmt.Errorf("kalshi.GetPositions: %w", err)
		}
		for _, w := range resp.MarketPositions {
			if w.Position == 0 {
				continue
			}
			out = append(out, toExchangePosition(w))
		}
		if resp.Cursor == "" {
			break
		}
		cursor = resp.Cursor
	}
	return out, nil
}

// GetBalance devuelve el cash disponible en dólares.
func (c *Client) GetBalance(ctx context.Context) (float64, error) {
	var resp balanceResponse
	if err := c.get(ctx, "/portfolio/balance", &resp); err != nil {
		return 0, fmt.Errorf("kalshi.GetBalance: %w", err)
	}
	return float64(resp.Balance) / 100, nil
}
