package kalshi

import "time"

// Wire types del API de Kalshi. Los precios van en centavos enteros;
// mapping.go convierte a dólares al cruzar al dominio.

type marketsResponse struct {
	Markets []wireMarket `json:"markets"`
	Cursor  string       `json:"cursor"`
}

type marketResponse struct {
	Market wireMarket `json:"market"`
}

type wireMarket struct {
	Ticker      string    `json:"ticker"`
	EventTicker string    `json:"event_ticker"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Status      string    `json:"status"`
	Result      string    `json:"result"`
	YesBid      int       `json:"yes_bid"`
	YesAsk      int       `json:"yes_ask"`
	NoBid       int       `json:"no_bid"`
	NoAsk       int       `json:"no_ask"`
	LastPrice   int       `json:"last_price"`
	Volume      int64     `json:"volume"`
	Liquidity   int64     `json:"liquidity"`
	CloseTime   time.Time `json:"close_time"`
}

type orderbookResponse struct {
	Orderbook wireOrderbook `json:"orderbook"`
}

// wireOrderbook lista los bids en reposo de cada lado como pares
// [precio_centavos, contratos]. Los asks de un lado son los bids del
// contrario a 100−p.
type wireOrderbook struct {
	Yes [][2]int `json:"yes"`
	No  [][2]int `json:"no"`
}

type createOrderRequest struct {
	Ticker        string `json:"ticker"`
	ClientOrderID string `json:"client_order_id"`
	Side          string `json:"side"`   // "yes" | "no"
	Action        string `json:"action"` // "buy" | "sell"
	Type          string `json:"type"`   // "limit"
	Count         int    `json:"count"`
	YesPrice      int    `json:"yes_price,omitempty"`
	NoPrice       int    `json:"no_price,omitempty"`
}

type orderResponse struct {
	Order wireOrder `json:"order"`
}

type wireOrder struct {
	OrderID        string `json:"order_id"`
	ClientOrderID  string `json:"client_order_id"`
	Ticker         string `json:"ticker"`
	Side           string `json:"side"`
	Action         string `json:"action"`
	Status         string `json:"status"` // resting | canceled | executed | pending
	YesPrice       int    `json:"yes_price"`
	NoPrice        int    `json:"no_price"`
	InitialCount   int    `json:"initial_count"`
	RemainingCount int    `json:"remaining_count"`
	TakerFillCount int    `json:"taker_fill_count"`
	TakerFillCost  int    `json:"taker_fill_cost"` // centavos totales
}

type positionsResponse struct {
	MarketPositions []wirePosition `json:"market_positions"`
	Cursor          string         `json:"cursor"`
}

// wirePosition usa contratos con signo: positivo = YES, negativo = NO.
type wirePosition struct {
	Ticker         string `json:"ticker"`
	Position       int    `json:"position"`
	MarketExposure int    `json:"market_exposure"` // coste en centavos
}

type balanceResponse struct {
	Balance int64 `json:"balance"` // centavos
}
