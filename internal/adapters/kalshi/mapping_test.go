package kalshi

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func TestToMarketConvertsCents(t *testing.T) {
	w := wireMarket{
		Ticker:      "KXFED-26MAR",
		EventTicker: "KXFED",
		Title:       "Fed cuts rates in March?",
		Category:    "Economics",
		Status:      "active",
		YesBid:      38,
		YesAsk:      41,
		NoBid:       59,
		NoAsk:       62,
		LastPrice:   40,
		Volume:      12500,
		CloseTime:   time.Date(2026, 3, 18, 18, 0, 0, 0, time.UTC),
	}

	m := toMarket(w)
	assert.Equal(t, "KXFED-26MAR", m.Ticker)
	assert.Equal(t, domain.MarketActive, m.Status)
	assert.InDelta(t, 0.38, m.YesBid, 1e-9)
	assert.InDelta(t, 0.41, m.YesAsk, 1e-9)
	assert.InDelta(t, 0.62, m.NoAsk, 1e-9)
	assert.InDelta(t, 0.40, m.LastPrice, 1e-9)
	assert.Equal(t, 12500.0, m.Volume)
}

func TestToMarketStatus(t *testing.T) {
	assert.Equal(t, domain.MarketActive, toMarketStatus("open"))
	assert.Equal(t, domain.MarketSettled, toMarketStatus("settled"))
	assert.Equal(t, domain.MarketSettled, toMarketStatus("finalized"))
	assert.Equal(t, domain.MarketClosed, toMarketStatus("closed"))
}

func TestToOrderBooksDerivesAsks(t *testing.T) {
	// El wire lista bids ascendentes; el ask de cada lado sale del bid
	// contrario a 100−p.
	w := wireOrderbook{
		Yes: [][2]int{{39, 50}, {40, 100}},
		No:  [][2]int{{55, 30}, {58, 20}},
	}

	yes, no := toOrderBooks("KXTEST", w)

	require.Len(t, yes.Bids, 2)
	assert.InDelta(t, 0.40, yes.Bids[0].Price, 1e-9)
	assert.Equal(t, 100, yes.Bids[0].Size)

	// YES asks desde los bids NO: best = 100−58 = 42¢.
	require.Len(t, yes.Asks, 2)
	assert.InDelta(t, 0.42, yes.Asks[0].Price, 1e-9)
	assert.Equal(t, 20, yes.Asks[0].Size)

	// NO asks desde los bids YES: best = 100−40 = 60¢.
	require.Len(t, no.Asks, 2)
	assert.InDelta(t, 0.60, no.Asks[0].Price, 1e-9)
	assert.Equal(t, 100, no.Asks[0].Size)
}

func TestMergeOrderExecuted(t *testing.T) {
	local := domain.Order{ID: "c1", Quantity: 50, Status: domain.OrderPending}
	w := wireOrder{
		OrderID:        "ex-1",
		Status:         "executed",
		InitialCount:   50,
		RemainingCount: 0,
		TakerFillCount: 50,
		TakerFillCost:  2100, // $21.00 por 50 contratos → 42¢
	}

	got := mergeOrder(local, w)
	assert.Equal(t, "ex-1", got.ExchangeID)
	assert.Equal(t, domain.OrderFilled, got.Status)
	assert.Equal(t, 50, got.FilledQty)
	assert.InDelta(t, 0.42, got.AvgFillPrice, 1e-9)
}

func TestMergeOrderPartialThenCancelled(t *testing.T) {
	local := domain.Order{ID: "c1", Quantity: 50, Status: domain.OrderPending}
	w := wireOrder{
		OrderID:        "ex-1",
		Status:         "canceled",
		InitialCount:   50,
		RemainingCount: 30,
	}

	got := mergeOrder(local, w)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, 20, got.FilledQty)
	assert.LessOrEqual(t, got.FilledQty, got.Quantity)
}

func TestToExchangePositionSignedContracts(t *testing.T) {
	long := toExchangePosition(wirePosition{Ticker: "A", Position: 100, MarketExposure: 4000})
	assert.Equal(t, domain.SideYes, long.Side)
	assert.Equal(t, 100, long.Quantity)
	assert.InDelta(t, 0.40, long.AvgPrice, 1e-9)

	short := toExchangePosition(wirePosition{Ticker: "A", Position: -40, MarketExposure: 2600})
	assert.Equal(t, domain.SideNo, short.Side)
	assert.Equal(t, 40, short.Quantity)
	assert.InDelta(t, 0.65, short.AvgPrice, 1e-9)
}

func TestToCreateOrderRequestSidePrices(t *testing.T) {
	yes := toCreateOrderRequest(domain.Order{ID: "c1", Ticker: "A", Side: domain.SideYes, Action: domain.ActionBuy, Price: 0.41, Quantity: 10})
	assert.Equal(t, 41, yes.YesPrice)
	assert.Equal(t, 0, yes.NoPrice)
	assert.Equal(t, "limit", yes.Type)

	no := toCreateOrderRequest(domain.Order{ID: "c2", Ticker: "A", Side: domain.SideNo, Action: domain.ActionSell, Price: 0.65, Quantity: 10})
	assert.Equal(t, 65, no.NoPrice)
	assert.Equal(t, 0, no.YesPrice)
	assert.Equal(t, "sell", no.Action)
}
