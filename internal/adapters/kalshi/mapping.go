package kalshi

import (
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// mapping.go — conversión wire ↔ dominio. Este es el único sitio del repo
// donde se cruza entre centavos enteros y dólares.

func centsToDollars(c int) float64 {
	return float64(c) / 100
}

func dollarsToCents(d float64) int {
	return int(d*100 + 0.5)
}

func toMarket(w wireMarket) domain.Market {
	return domain.Market{
		Ticker:      w.Ticker,
		EventTicker: w.EventTicker,
		Title:       w.Title,
		Category:    w.Category,
		YesBid:      centsToDollars(w.YesBid),
		YesAsk:      centsToDollars(w.YesAsk),
		NoBid:       centsToDollars(w.NoBid),
		NoAsk:       centsToDollars(w.NoAsk),
		LastPrice:   centsToDollars(w.LastPrice),
		Volume:      float64(w.Volume),
		Liquidity:   centsToDollars(int(w.Liquidity)),
		ExpiresAt:   w.CloseTime,
		Status:      toMarketStatus(w.Status),
		Result:      w.Result,
	}
}

func toMarketStatus(s string) domain.MarketStatus {
	switch s {
	case "active", "open":
		return domain.MarketActive
	case "settled", "finalized":
		return domain.MarketSettled
	default:
		return domain.MarketClosed
	}
}

// toOrderBooks construye los books YES y NO. El wire format solo lista
// bids; el ask de cada lado se deriva del bid contrario: quien compra NO
// a p está vendiendo YES a 100−p.
func toOrderBooks(ticker string, w wireOrderbook) (yes, no domain.OrderBook) {
	yes = domain.OrderBook{Ticker: ticker, Side: domain.SideYes}
	no = domain.OrderBook{Ticker: ticker, Side: domain.SideNo}

	// Bids llegan de menor a mayor precio; el dominio los quiere de mayor
	// a menor, y los asks derivados de menor a mayor.
	for i := len(w.Yes) - 1; i >= 0; i-- {
		level := w.Yes[i]
		yes.Bids = append(yes.Bids, domain.BookEntry{Price: centsToDollars(level[0]), Size: level[1]})
		no.Asks = append(no.Asks, domain.BookEntry{Price: centsToDollars(100 - level[0]), Size: level[1]})
	}
	for i := len(w.No) - 1; i >= 0; i-- {
		level := w.No[i]
		no.Bids = append(no.Bids, domain.BookEntry{Price: centsToDollars(level[0]), Size: level[1]})
		yes.Asks = append(yes.Asks, domain.BookEntry{Price: centsToDollars(100 - level[0]), Size: level[1]})
	}
	return yes, no
}

func toCreateOrderRequest(o domain.Order) createOrderRequest {
	req := createOrderRequest{
		Ticker:        o.Ticker,
		ClientOrderID: o.ID,
		Side:          string(o.Side),
		Action:        string(o.Action),
		Type:          "limit",
		Count:         o.Quantity,
	}
	if o.Side == domain.SideNo {
		req.NoPrice = dollarsToCents(o.Price)
	} else {
		req.YesPrice = dollarsToCents(o.Price)
	}
	return req
}

// mergeOrder aplica el estado reportado por el exchange sobre la orden
// local, respetando el state machine del dominio.
func mergeOrder(local domain.Order, w wireOrder) domain.Order {
	local.ExchangeID = w.OrderID

	filled := w.InitialCount - w.RemainingCount
	if filled < 0 {
		filled = 0
	}
	var avg float64
	if w.TakerFillCount > 0 {
		avg = centsToDollars(w.TakerFillCost) / float64(w.TakerFillCount)
	}

	switch w.Status {
	case "executed":
		if local.Status == domain.OrderPending {
			_ = local.Transition(domain.OrderPlaced)
		}
		filled = w.InitialCount
		_ = local.RecordFill(filled, avg)
	case "resting", "pending":
		if local.Status == domain.OrderPending {
			_ = local.Transition(domain.OrderPlaced)
		}
		_ = local.RecordFill(filled, avg)
	case "canceled":
		if local.Status == domain.OrderPending {
			_ = local.Transition(domain.OrderPlaced)
		}
		_ = local.RecordFill(filled, avg)
		if local.Status != domain.OrderFilled {
			_ = local.Transition(domain.OrderCancelled)
		}
	}
	return local
}

func toExchangePosition(w wirePosition) ports.ExchangePosition {
	qty := w.Position
	side := domain.SideYes
	if qty < 0 {
		qty = -qty
		side = domain.SideNo
	}
	var avg float64
	if qty > 0 {
		avg = centsToDollars(w.MarketExposure) / float64(qty)
	}
	return ports.ExchangePosition{
		Ticker:   w.Ticker,
		Side:     side,
		Quantity: qty,
		AvgPrice: avg,
	}
}
