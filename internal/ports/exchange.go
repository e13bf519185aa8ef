package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ExchangePosition es una posición tal como la reporta el exchange, antes
// de reconciliarla con las posiciones locales.
type ExchangePosition struct {
	Ticker   string
	Side     domain.Side
	Quantity int
	AvgPrice float64
}

// Exchange es el gateway al exchange de predicción. Todas las llamadas
// pasan por los rate limiters del adapter y pueden devolver
// ErrRateLimited tras agotar los reintentos.
type Exchange interface {
	// ListMarkets devuelve una página de mercados abiertos y el cursor de
	// la página siguiente ("" si no hay más).
	ListMarkets(ctx context.Context, cursor string, limit int) ([]domain.Market, string, error)

	// GetMarket devuelve el estado actual de un mercado por ticker.
	GetMarket(ctx context.Context, ticker string) (domain.Market, error)

	// GetOrderBook devuelve los books YES y NO del mercado.
	GetOrderBook(ctx context.Context, ticker string) (yes, no domain.OrderBook, err error)

	// PlaceOrder envía una orden límite y devuelve la orden con el
	// ExchangeID asignado y el status reportado.
	PlaceOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	// CancelOrder cancela una orden por su ID de exchange.
	CancelOrder(ctx context.Context, exchangeID string) error

	// GetOrder devuelve el estado actual de una orden, incluyendo el
	// fill acumulado. Usado por el polling de fills.
	GetOrder(ctx context.Context, exchangeID string) (domain.Order, error)

	// GetPositions devuelve todas las posiciones abiertas en el exchange.
	GetPositions(ctx context.Context) ([]ExchangePosition, error)

	// GetBalance devuelve el cash disponible en dólares.
	GetBalance(ctx context.Context) (float64, error)
}
