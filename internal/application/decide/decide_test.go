package decide

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/grok"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

type fakeForecaster struct {
	mu          sync.Mutex
	forecast    domain.Forecast
	err         error
	analyzed    int
	quickChecks int
}

func (f *fakeForecaster) Analyze(_ context.Context, _ domain.Market) (domain.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzed++
	return f.forecast, f.err
}

func (f *fakeForecaster) QuickCheck(_ context.Context, _ domain.Market) (domain.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quickChecks++
	return f.forecast, f.err
}

type fakeDecideStore struct {
	ports.Storage
	mu            sync.Mutex
	latest        *domain.MarketAnalysis
	analysisCount int
	openPosition  *domain.Position
	spend         float64
	saved         []domain.MarketAnalysis
}

func (f *fakeDecideStore) LatestAnalysis(_ context.Context, _ string) (*domain.MarketAnalysis, error) {
	return f.latest, nil
}

func (f *fakeDecideStore) AnalysisCountSince(_ context.Context, _ string, _ time.Time) (int, error) {
	return f.analysisCount, nil
}

func (f *fakeDecideStore) OpenPositionForMarket(_ context.Context, _ string) (*domain.Position, error) {
	return f.openPosition, nil
}

func (f *fakeDecideStore) ForecastSpendSince(_ context.Context, _ time.Time) (float64, error) {
	return f.spend, nil
}

func (f *fakeDecideStore) SaveAnalysis(_ context.Context, a domain.MarketAnalysis) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, a)
	return nil
}

func decideConfig() config.TradingConfig {
	return config.TradingConfig{
		Workers:               2,
		RequestPacingSeconds:  0.001,
		ForecastRatePerSecond: 5000,
		MinConfidence:         0.55,
		MinEdge:               0.08,
		CooldownHours:         2,
		MaxAnalysesPerMarket:  6,
		DailyForecastBudget:   15,
	}
}

func decideMarket() domain.Market {
	return domain.Market{
		Ticker:      "KXFED-26MAR",
		EventTicker: "KXFED",
		YesBid:      0.38,
		YesAsk:      0.42,
		NoBid:       0.58,
		NoAsk:       0.62,
		ExpiresAt:   time.Now().Add(72 * time.Hour),
		Status:      domain.MarketActive,
	}
}

func newTestDecider(f ports.Forecaster, s ports.Storage) *Decider {
	return NewDecider(f, s, decideConfig(), slog.Default())
}

func TestEvaluateEmitsIntentOnEdge(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{
		Probability: 0.55, Confidence: 0.75, Rationale: "model sees higher odds", CostUSD: 0.04,
	}}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	intent, reason := d.evaluate(context.Background(), decideMarket())
	require.Equal(t, skipNone, reason)
	require.NotNil(t, intent)

	// Forecast 0.55 vs implied 0.40: edge 0.15, side YES at the ask.
	assert.Equal(t, domain.SideYes, intent.Side)
	assert.InDelta(t, 0.42, intent.TargetPrice, 1e-9)
	assert.InDelta(t, 0.15, intent.Edge, 1e-9)

	require.Len(t, store.saved, 1)
	assert.Equal(t, "buy_yes", store.saved[0].Action)
}

func TestEvaluateFlipsToNoSide(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.25, Confidence: 0.75}}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	intent, reason := d.evaluate(context.Background(), decideMarket())
	require.Equal(t, skipNone, reason)
	require.NotNil(t, intent)
	assert.Equal(t, domain.SideNo, intent.Side)
	assert.InDelta(t, 0.62, intent.TargetPrice, 1e-9)
	assert.InDelta(t, 0.75, intent.Probability, 1e-9) // 1 − 0.25
	assert.Equal(t, "buy_no", store.saved[0].Action)
}

func TestEvaluateRejectsThinEdge(t *testing.T) {
	// Edge 0.06 under the 0.08 threshold: abstain even at fair confidence.
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.46, Confidence: 0.55}}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	intent, reason := d.evaluate(context.Background(), decideMarket())
	assert.Nil(t, intent)
	assert.Equal(t, skipLowEdge, reason)
	require.Len(t, store.saved, 1)
	assert.Equal(t, "abstain", store.saved[0].Action)
}

func TestEvaluateRejectsLowConfidence(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.60, Confidence: 0.40}}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	intent, reason := d.evaluate(context.Background(), decideMarket())
	assert.Nil(t, intent)
	assert.Equal(t, skipLowConfidence, reason)
}

func TestEvaluateUnparseableIsAbstention(t *testing.T) {
	fc := &fakeForecaster{
		forecast: domain.Forecast{Raw: "no json here", CostUSD: 0.03, Model: "grok-4"},
		err:      fmt.Errorf("grok: %w", grok.ErrUnparseable),
	}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	intent, reason := d.evaluate(context.Background(), decideMarket())
	assert.Nil(t, intent)
	assert.Equal(t, skipUnparseable, reason)

	// The failed call still leaves an audit row with its cost.
	require.Len(t, store.saved, 1)
	assert.Equal(t, "unparseable", store.saved[0].Action)
	assert.InDelta(t, 0.03, store.saved[0].CostUSD, 1e-9)
}

func TestGateCooldownSkipsWithoutForecast(t *testing.T) {
	fc := &fakeForecaster{}
	store := &fakeDecideStore{latest: &domain.MarketAnalysis{
		Ticker: "KXFED-26MAR", CreatedAt: time.Now().Add(-30 * time.Minute),
	}}
	d := newTestDecider(fc, store)

	_, reason := d.evaluate(context.Background(), decideMarket())
	assert.Equal(t, skipCooldown, reason)
	assert.Zero(t, fc.analyzed)
}

func TestGateDailyCap(t *testing.T) {
	fc := &fakeForecaster{}
	store := &fakeDecideStore{analysisCount: 6}
	d := newTestDecider(fc, store)

	_, reason := d.evaluate(context.Background(), decideMarket())
	assert.Equal(t, skipDailyCap, reason)
	assert.Zero(t, fc.analyzed)
}

func TestGateDuplicatePosition(t *testing.T) {
	fc := &fakeForecaster{}
	store := &fakeDecideStore{openPosition: &domain.Position{ID: "pos-1"}}
	d := newTestDecider(fc, store)

	_, reason := d.evaluate(context.Background(), decideMarket())
	assert.Equal(t, skipDuplicate, reason)
	assert.Zero(t, fc.analyzed)
}

func TestGateBalancedTightBook(t *testing.T) {
	fc := &fakeForecaster{}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	m := decideMarket()
	m.YesBid, m.YesAsk = 0.49, 0.50
	m.NoBid, m.NoAsk = 0.50, 0.51

	_, reason := d.evaluate(context.Background(), m)
	assert.Equal(t, skipNoSignal, reason)
	assert.Zero(t, fc.analyzed)
}

func TestRunCycleStopsOnExhaustedBudget(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.60, Confidence: 0.9}}
	store := &fakeDecideStore{spend: 15.0}
	d := newTestDecider(fc, store)

	intents := d.RunCycle(context.Background(), []domain.Market{decideMarket()})
	assert.Empty(t, intents)
	assert.Zero(t, fc.analyzed)
}

func TestRunCycleCollectsIntents(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.58, Confidence: 0.8}}
	store := &fakeDecideStore{}
	d := newTestDecider(fc, store)

	markets := make([]domain.Market, 3)
	for i := range markets {
		markets[i] = decideMarket()
		markets[i].Ticker = fmt.Sprintf("M-%d", i)
	}

	intents := d.RunCycle(context.Background(), markets)
	assert.Len(t, intents, 3)
	assert.Equal(t, 3, fc.analyzed)
}

func TestFastPathUsesQuickCheck(t *testing.T) {
	fc := &fakeForecaster{forecast: domain.Forecast{Probability: 0.97, Confidence: 0.9}}
	store := &fakeDecideStore{}
	cfg := decideConfig()
	cfg.HighConfidenceEnabled = true
	cfg.HighConfidenceMarketOdds = 0.85
	cfg.HighConfidenceExpiryHours = 48
	d := NewDecider(fc, store, cfg, slog.Default())

	m := decideMarket()
	m.YesBid, m.YesAsk = 0.86, 0.90
	m.NoBid, m.NoAsk = 0.10, 0.14
	m.ExpiresAt = time.Now().Add(24 * time.Hour)

	intent, reason := d.evaluate(context.Background(), m)
	assert.Equal(t, skipNone, reason)
	require.NotNil(t, intent)
	assert.Equal(t, 1, fc.quickChecks)
	assert.Zero(t, fc.analyzed)
}
