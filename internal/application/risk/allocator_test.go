package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func testRiskConfig() config.RiskConfig {
	return config.RiskConfig{
		MaxPositionPct: 0.05,
		KellyFraction:  0.25,
		Buckets: map[string]float64{
			"directional": 0.50,
			"marketmake":  0.40,
			"arbitrage":   0.10,
		},
		MaxVolatility:     0.80,
		MaxCorrelation:    0.95,
		MaxDrawdown:       0.50,
		MaxDailyLossPct:   0.10,
		MinCashReservePct: 0.15,
		MaxPositions:      15,
	}
}

func testIntent(ticker string, price, prob, conf float64) domain.TradeIntent {
	return domain.TradeIntent{
		Market: domain.Market{
			Ticker:      ticker,
			EventTicker: "EV-" + ticker,
			Category:    "Economics",
			ExpiresAt:   time.Now().Add(48 * time.Hour),
		},
		Side:        domain.SideYes,
		TargetPrice: price,
		Probability: prob,
		Confidence:  conf,
		Edge:        prob - price,
	}
}

func TestSizeCommitsCapitalUnderCaps(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, nil, 0)

	qty, err := a.Size(testIntent("A", 0.40, 0.55, 0.8), "directional")
	require.NoError(t, err)
	require.Positive(t, qty)

	// Max position cap: 5% of $1000 equity at $0.40 is 125 contracts.
	assert.LessOrEqual(t, qty, 125)
	assert.InDelta(t, float64(qty)*0.40, a.Committed("directional"), 1e-9)
}

func TestSizeRespectsMaxPositionCap(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(10000, nil, 0)

	// Huge edge and full confidence would want far more than 5%.
	qty, err := a.Size(testIntent("A", 0.20, 0.90, 1.0), "directional")
	require.NoError(t, err)
	assert.LessOrEqual(t, float64(qty)*0.20, 0.05*10000+1e-9)
}

func TestSizeBlockedWithNoEdge(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, nil, 0)

	// Forecast below price: Kelly fraction is negative, stake zero.
	_, err := a.Size(testIntent("A", 0.60, 0.50, 0.9), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestBucketExhaustionBlocks(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxPositionPct = 1.0 // isolate the bucket cap
	a := NewAllocator(cfg)
	a.Rebalance(100, nil, 0)

	// Arbitrage bucket holds 10% of $100 = $10. First grab takes it all.
	dollars, err := a.GroupBudget()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, dollars, 1e-9)

	_, err = a.GroupBudget()
	assert.ErrorIs(t, err, ErrRiskBlocked)

	// Releasing restores the bucket.
	a.Release("arbitrage", 10.0)
	dollars, err = a.GroupBudget()
	require.NoError(t, err)
	assert.InDelta(t, 10.0, dollars, 1e-9)
}

func TestCashReserveFloorLimitsSpend(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxPositionPct = 1.0
	cfg.KellyFraction = 1.0
	cfg.MaxVolatility = 2.0 // isolate the reserve floor
	cfg.Buckets = map[string]float64{"directional": 1.0}
	a := NewAllocator(cfg)
	a.Rebalance(100, nil, 0)

	qty, err := a.Size(testIntent("A", 0.50, 0.99, 1.0), "directional")
	require.NoError(t, err)
	// Reserve keeps 15% of equity in cash: at most $85 spendable.
	assert.LessOrEqual(t, float64(qty)*0.50, 85.0+1e-9)
}

func TestMaxPositionsGate(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxPositions = 2
	a := NewAllocator(cfg)
	holdings := []Holding{
		{Ticker: "H1", Category: "Politics", Cost: 10, Value: 10, Mark: 0.5, Bucket: "directional"},
		{Ticker: "H2", Category: "Sports", Cost: 10, Value: 10, Mark: 0.5, Bucket: "directional"},
	}
	a.Rebalance(1000, holdings, 0)

	_, err := a.Size(testIntent("A", 0.40, 0.60, 0.8), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestDailyLossGate(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	// $120 lost today against $1000 equity breaches the 10% limit.
	a.Rebalance(1000, nil, -120)

	_, err := a.Size(testIntent("A", 0.40, 0.60, 0.8), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestDrawdownGate(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, nil, 0) // peak $1000
	a.Rebalance(400, nil, 0)  // 60% drawdown

	_, err := a.Size(testIntent("A", 0.30, 0.60, 0.8), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestCorrelationGateBlocksSameEvent(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, []Holding{
		{Ticker: "B", EventTicker: "EV-A", Category: "Economics", Cost: 20, Value: 20, Mark: 0.5, Bucket: "directional"},
	}, 0)

	// Candidate shares the event ticker EV-A with a held position.
	_, err := a.Size(testIntent("A", 0.40, 0.60, 0.8), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestVolatilityGateBlocksAtMidpointHeavyBook(t *testing.T) {
	cfg := testRiskConfig()
	cfg.MaxVolatility = 0.60
	a := NewAllocator(cfg)
	// Everything near 0.50 has contract volatility ~1.0.
	a.Rebalance(100, []Holding{
		{Ticker: "H1", Category: "Politics", Cost: 400, Value: 400, Mark: 0.50, Bucket: "directional"},
	}, 0)

	_, err := a.Size(testIntent("A", 0.50, 0.65, 0.8), "directional")
	assert.ErrorIs(t, err, ErrRiskBlocked)
}

func TestReleaseRestoresCommittedAndCash(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, nil, 0)

	qty, err := a.Size(testIntent("A", 0.40, 0.60, 0.8), "directional")
	require.NoError(t, err)
	spent := float64(qty) * 0.40

	a.Release("directional", spent)
	assert.InDelta(t, 0, a.Committed("directional"), 1e-9)

	// Over-release clamps at zero instead of going negative.
	a.Release("directional", 5)
	assert.InDelta(t, 0, a.Committed("directional"), 1e-9)
}

func TestCommittedNeverExceedsTotal(t *testing.T) {
	a := NewAllocator(testRiskConfig())
	a.Rebalance(1000, nil, 0)

	for i, ticker := range []string{"A", "B", "C", "D"} {
		intent := testIntent(ticker, 0.40, 0.60, 0.8)
		intent.Market.Category = []string{"Econ", "Politics", "Sports", "Climate"}[i]
		if _, err := a.Size(intent, "directional"); err != nil {
			break
		}
	}
	assert.LessOrEqual(t, a.CommittedTotal(), a.Total())
}
