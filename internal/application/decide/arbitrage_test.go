package decide

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

type fakeBookExchange struct {
	ports.Exchange
	books map[string][2]domain.OrderBook
}

func (f *fakeBookExchange) GetOrderBook(_ context.Context, ticker string) (domain.OrderBook, domain.OrderBook, error) {
	b := f.books[ticker]
	return b[0], b[1], nil
}

func book(side domain.Side, ask float64, depth int) domain.OrderBook {
	return domain.OrderBook{
		Side: side,
		Asks: []domain.BookEntry{{Price: ask, Size: depth}},
	}
}

func arbConfig() config.ArbitrageConfig {
	return config.ArbitrageConfig{
		MinNetProfit:   0.02,
		PriceTolerance: 0.01,
		MaxGroupUnits:  100,
	}
}

func TestScanRejectsPairAboveDollar(t *testing.T) {
	// YES at $0.40 plus NO at $0.65 sums to $1.05: no basket pays.
	m := domain.Market{Ticker: "A", EventTicker: "EV", YesAsk: 0.40, NoAsk: 0.65}
	ex := &fakeBookExchange{books: map[string][2]domain.OrderBook{
		"A": {book(domain.SideYes, 0.40, 100), book(domain.SideNo, 0.65, 100)},
	}}

	s := NewArbScanner(ex, domain.DefaultFeeSchedule(), arbConfig(), slog.Default())
	opps := s.Scan(context.Background(), []domain.Market{m})
	assert.Empty(t, opps)
}

func TestScanFindsEventGroup(t *testing.T) {
	// Three mutually exclusive outcomes at $0.30 each: $0.90 basket pays
	// $1.00, $0.06 in taker fees, $0.04 net per unit.
	markets := []domain.Market{
		{Ticker: "EV-A", EventTicker: "EV", YesAsk: 0.30, NoAsk: 0.72},
		{Ticker: "EV-B", EventTicker: "EV", YesAsk: 0.30, NoAsk: 0.72},
		{Ticker: "EV-C", EventTicker: "EV", YesAsk: 0.30, NoAsk: 0.72},
	}
	ex := &fakeBookExchange{books: map[string][2]domain.OrderBook{
		"EV-A": {book(domain.SideYes, 0.30, 50), book(domain.SideNo, 0.72, 50)},
		"EV-B": {book(domain.SideYes, 0.30, 40), book(domain.SideNo, 0.72, 50)},
		"EV-C": {book(domain.SideYes, 0.30, 60), book(domain.SideNo, 0.72, 50)},
	}}

	s := NewArbScanner(ex, domain.DefaultFeeSchedule(), arbConfig(), slog.Default())
	opps := s.Scan(context.Background(), markets)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, "EV", opp.EventTicker)
	require.Len(t, opp.Legs, 3)
	assert.InDelta(t, 0.90, opp.SumAsk, 1e-9)
	assert.InDelta(t, 0.04, opp.NetPerUnit, 1e-9)

	// Sizing respects the thinnest leg.
	assert.Equal(t, 40, opp.MaxUnits(1000, 100))
}

func TestScanSkipsEmptyBooks(t *testing.T) {
	markets := []domain.Market{
		{Ticker: "EV-A", EventTicker: "EV", YesAsk: 0.30},
		{Ticker: "EV-B", EventTicker: "EV", YesAsk: 0.30},
	}
	ex := &fakeBookExchange{books: map[string][2]domain.OrderBook{
		"EV-A": {book(domain.SideYes, 0.30, 50), {}},
		"EV-B": {{}, {}}, // empty book invalidates the group
	}}

	s := NewArbScanner(ex, domain.DefaultFeeSchedule(), arbConfig(), slog.Default())
	opps := s.Scan(context.Background(), markets)
	assert.Empty(t, opps)
}
