package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriceSane(t *testing.T) {
	sane := Market{YesBid: 0.39, YesAsk: 0.41, NoBid: 0.59, NoAsk: 0.61}
	assert.True(t, sane.PriceSane(0.05))

	broken := Market{YesBid: 0.39, YesAsk: 0.41, NoBid: 0.70, NoAsk: 0.74}
	assert.False(t, broken.PriceSane(0.05))

	empty := Market{}
	assert.False(t, empty.PriceSane(0.05))
}

func TestBalanced(t *testing.T) {
	flat := Market{YesBid: 0.48, YesAsk: 0.52}
	assert.True(t, flat.Balanced(0.05))

	skewed := Market{YesBid: 0.70, YesAsk: 0.74}
	assert.False(t, skewed.Balanced(0.05))
}

func TestAtExtreme(t *testing.T) {
	assert.True(t, Market{YesBid: 0.99, YesAsk: 0.99}.AtExtreme())
	assert.True(t, Market{YesBid: 0.01, YesAsk: 0.01}.AtExtreme())
	assert.False(t, Market{YesBid: 0.48, YesAsk: 0.52}.AtExtreme())
}

func TestSettlementFor(t *testing.T) {
	resolvedYes := Market{Result: "yes"}
	assert.Equal(t, 1.0, resolvedYes.SettlementFor(SideYes))
	assert.Equal(t, 0.0, resolvedYes.SettlementFor(SideNo))

	// Resolución por precio: YES clavado en 99¢ sin status settled.
	byPrice := Market{YesBid: 0.99, YesAsk: 0.99, Status: MarketActive}
	assert.Equal(t, 1.0, byPrice.SettlementFor(SideYes))
	assert.Equal(t, 0.0, byPrice.SettlementFor(SideNo))

	byPriceLow := Market{YesBid: 0.01, YesAsk: 0.01, Status: MarketActive}
	assert.Equal(t, 0.0, byPriceLow.SettlementFor(SideYes))
	assert.Equal(t, 1.0, byPriceLow.SettlementFor(SideNo))
}

func TestSettlementForHaltedMidRangeUsesMark(t *testing.T) {
	// Cerrado sin resultado y lejos de los extremos: se valora al mark,
	// no se redondea a 0/1.
	halted := Market{YesBid: 0.58, YesAsk: 0.62, NoBid: 0.38, NoAsk: 0.42, Status: MarketClosed}
	assert.InDelta(t, 0.60, halted.SettlementFor(SideYes), 1e-9)
	assert.InDelta(t, 0.40, halted.SettlementFor(SideNo), 1e-9)
}

func TestHoursToExpiry(t *testing.T) {
	now := time.Now()
	m := Market{ExpiresAt: now.Add(36 * time.Hour)}
	assert.InDelta(t, 36, m.HoursToExpiry(now), 0.01)

	past := Market{ExpiresAt: now.Add(-time.Hour)}
	assert.Equal(t, 0.0, past.HoursToExpiry(now))
}

func TestMarkForFallsBackToLastPrice(t *testing.T) {
	m := Market{LastPrice: 0.62}
	assert.InDelta(t, 0.62, m.MarkFor(SideYes), 1e-9)
	assert.InDelta(t, 0.38, m.MarkFor(SideNo), 1e-9)
}
