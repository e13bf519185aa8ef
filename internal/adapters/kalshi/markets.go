package kalshi

import (
	"context"
	"fmt"
	"net/url"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ListMarkets devuelve una página de mercados abiertos y el cursor de la
// página siguiente.
func (c *Client) ListMarkets(ctx context.Context, cursor string, limit int) ([]domain.Market, string, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	q := url.Values{}
	q.Set("status", "open")
	q.Set("limit", fmt.Sprintf("%d", limit))
	if cursor != "" {
		q.Set("cursor", cursor)
	}

	var resp marketsResponse
	if err := c.get(ctx, "/markets?"+q.Encode(), &resp); err != nil {
		return nil, "", fmt.Errorf("kalshi.ListMarkets: %w", err)
	}

	markets := make([]domain.Market, 0, len(resp.Markets))
	for _, w := range resp.Markets {
		markets = append(markets, toMarket(w))
	}
	return markets, resp.Cursor, nil
}

// GetMarket devuelve el estado actual de un mercado.
func (c *Client) GetMarket(ctx context.Context, ticker string) (domain.Market, error) {
	var resp marketResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker), &resp); err != nil {
		return domain.Market{}, fmt.Errorf("kalshi.GetMarket: %s: %w", ticker, err)
	}
	return toMarket(resp.Market), nil
}

// GetOrderBook devuelve los books YES y NO del mercado.
func (c *Client) GetOrderBook(ctx context.Context, ticker string) (yes, no domain.OrderBook, err error) {
	var resp orderbookResponse
	if err := c.get(ctx, "/markets/"+url.PathEscape(ticker)+"/orderbook", &resp); err != nil {
		return domain.OrderBook{}, domain.OrderBook{}, fmt.Errorf("kalshi.GetOrderBook: %s: %w", ticker, err)
	}
	yes, no = toOrderBooks(ticker, resp.Orderbook)
	return yes, no, nil
}
