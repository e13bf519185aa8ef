package decide

// Package decide runs the decision stage: for each candidate market it
// applies the cost gates, spends a forecast call only when the gates pass,
// and turns the forecast into a trade intent when confidence and edge
// clear the thresholds. Every forecast call is persisted verbatim, traded
// or not.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/adapters/grok"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const (
	balancedBand   = 0.05
	narrowSpread   = 0.02
	directionalBkt = "directional"
)

// Decider is the decision stage.
type Decider struct {
	forecaster ports.Forecaster
	store      ports.Storage
	cfg        config.TradingConfig
	log        *slog.Logger
	now        func() time.Time
}

// NewDecider builds the decision stage.
func NewDecider(forecaster ports.Forecaster, store ports.Storage, cfg config.TradingConfig, log *slog.Logger) *Decider {
	return &Decider{
		forecaster: forecaster,
		store:      store,
		cfg:        cfg,
		log:        log,
		now:        time.Now,
	}
}

// RunCycle fans the candidates out to a bounded worker pool and collects
// the approved intents. The pool size times per-worker pacing stays under
// the gateway rate; config.Validate enforces that invariant.
func (d *Decider) RunCycle(ctx context.Context, markets []domain.Market) []domain.TradeIntent {
	stats := &pipelineStats{}

	if stop, err := d.budgetExhausted(ctx); err != nil {
		d.log.Warn("budget check failed, skipping decision cycle", "error", err)
		return nil
	} else if stop {
		d.log.Info("daily forecast budget exhausted, skipping decision cycle",
			"budget_usd", d.cfg.DailyForecastBudget)
		return nil
	}

	type result struct {
		intent *domain.TradeIntent
		reason skipReason
	}

	workCh := make(chan domain.Market, len(markets))
	resultCh := make(chan result, len(markets))

	var wg sync.WaitGroup
	for w := 0; w < d.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pacing := time.Duration(d.cfg.RequestPacingSeconds * float64(time.Second))
			for m := range workCh {
				if ctx.Err() != nil {
					return
				}
				intent, reason := d.evaluate(ctx, m)
				resultCh <- result{intent: intent, reason: reason}
				if reason == skipNone || reason == skipUnparseable || reason == skipLowConfidence || reason == skipLowEdge {
					// A forecast call happened; pace the next one.
					select {
					case <-time.After(pacing):
					case <-ctx.Done():
						return
					}
				}
			}
		}()
	}

	for _, m := range markets {
		workCh <- m
	}
	close(workCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var intents []domain.TradeIntent
	for r := range resultCh {
		stats.record(r.reason)
		if r.intent != nil {
			intents = append(intents, *r.intent)
		}
	}
	stats.log(d.log)
	return intents
}

// Evaluate runs the gates and, if they pass, one forecast call for a
// single market.
func (d *Decider) Evaluate(ctx context.Context, m domain.Market) (*domain.TradeIntent, error) {
	if stop, err := d.budgetExhausted(ctx); err != nil {
		return nil, err
	} else if stop {
		return nil, fmt.Errorf("decide.Evaluate: %w", grok.ErrBudgetExhausted)
	}
	intent, reason := d.evaluate(ctx, m)
	if reason == skipError {
		return nil, fmt.Errorf("decide.Evaluate: market %s failed", m.Ticker)
	}
	return intent, nil
}

// evaluate is the per-market pipeline body: gates, forecast, thresholds.
func (d *Decider) evaluate(ctx context.Context, m domain.Market) (*domain.TradeIntent, skipReason) {
	if skip, reason := d.gateCheck(ctx, m); skip {
		return nil, reason
	}

	forecast, err := d.forecast(ctx, m)
	if err != nil {
		switch {
		case errors.Is(err, grok.ErrUnparseable):
			d.saveAnalysis(ctx, m, forecast, "unparseable", 0)
			return nil, skipUnparseable
		case errors.Is(err, grok.ErrBudgetExhausted):
			return nil, skipBudget
		default:
			d.log.Warn("forecast failed", "market", m.Ticker, "error", err)
			return nil, skipError
		}
	}

	implied := m.ImpliedYes()
	edge := math.Abs(forecast.Probability - implied)

	side := domain.SideYes
	probability := forecast.Probability
	if forecast.Probability < implied {
		side = domain.SideNo
		probability = 1 - forecast.Probability
	}

	switch {
	case forecast.Confidence < d.cfg.MinConfidence:
		d.saveAnalysis(ctx, m, forecast, "abstain", edge)
		return nil, skipLowConfidence
	case edge < d.cfg.MinEdge:
		d.saveAnalysis(ctx, m, forecast, "abstain", edge)
		return nil, skipLowEdge
	}

	action := "buy_yes"
	if side == domain.SideNo {
		action = "buy_no"
	}
	d.saveAnalysis(ctx, m, forecast, action, edge)

	ask := m.AskFor(side)
	if ask <= 0 || ask >= 1 {
		return nil, skipNoSignal
	}

	return &domain.TradeIntent{
		Market:      m,
		Side:        side,
		TargetPrice: ask,
		Probability: probability,
		Confidence:  forecast.Confidence,
		Edge:        edge,
		Rationale:   forecast.Rationale,
		Strategy:    directionalBkt,
	}, skipNone
}

// gateCheck applies the pre-flight gates that avoid spending a forecast
// call. Returns the first gate that fires.
func (d *Decider) gateCheck(ctx context.Context, m domain.Market) (bool, skipReason) {
	now := d.now()

	latest, err := d.store.LatestAnalysis(ctx, m.Ticker)
	if err != nil {
		d.log.Warn("cooldown lookup failed", "market", m.Ticker, "error", err)
		return true, skipError
	}
	cooldown := time.Duration(d.cfg.CooldownHours * float64(time.Hour))
	if latest != nil && now.Sub(latest.CreatedAt) < cooldown {
		return true, skipCooldown
	}

	n, err := d.store.AnalysisCountSince(ctx, m.Ticker, now.Add(-24*time.Hour))
	if err != nil {
		d.log.Warn("analysis count lookup failed", "market", m.Ticker, "error", err)
		return true, skipError
	}
	if n >= d.cfg.MaxAnalysesPerMarket {
		return true, skipDailyCap
	}

	open, err := d.store.OpenPositionForMarket(ctx, m.Ticker)
	if err != nil {
		d.log.Warn("open position lookup failed", "market", m.Ticker, "error", err)
		return true, skipError
	}
	if open != nil {
		return true, skipDuplicate
	}

	// A coin-flip market with a tight book carries no exploitable signal
	// worth a forecast call.
	if m.Balanced(balancedBand) && m.YesSpread() < narrowSpread {
		return true, skipNoSignal
	}

	return false, skipNone
}

// forecast picks the cheap fast path for near-resolved markets close to
// expiry, the full analysis otherwise.
func (d *Decider) forecast(ctx context.Context, m domain.Market) (domain.Forecast, error) {
	if d.fastPath(m) {
		return d.forecaster.QuickCheck(ctx, m)
	}
	return d.forecaster.Analyze(ctx, m)
}

func (d *Decider) fastPath(m domain.Market) bool {
	if !d.cfg.HighConfidenceEnabled {
		return false
	}
	yes := m.ImpliedYes()
	odds := d.cfg.HighConfidenceMarketOdds
	if yes < odds && yes > 1-odds {
		return false
	}
	return m.HoursToExpiry(d.now()) <= d.cfg.HighConfidenceExpiryHours
}

// budgetExhausted checks the persisted daily spend against the budget.
// UTC day boundaries, matching the adapter's own tracker.
func (d *Decider) budgetExhausted(ctx context.Context) (bool, error) {
	midnight := d.now().UTC().Truncate(24 * time.Hour)
	spend, err := d.store.ForecastSpendSince(ctx, midnight)
	if err != nil {
		return false, fmt.Errorf("decide: forecast spend lookup: %w", err)
	}
	return spend >= d.cfg.DailyForecastBudget, nil
}

// saveAnalysis persists the audit row for one forecast call. Persistence
// failures are logged and never block the decision.
func (d *Decider) saveAnalysis(ctx context.Context, m domain.Market, f domain.Forecast, action string, edge float64) {
	a := domain.MarketAnalysis{
		Ticker:      m.Ticker,
		Action:      action,
		Probability: f.Probability,
		Confidence:  f.Confidence,
		Edge:        edge,
		CostUSD:     f.CostUSD,
		Model:       f.Model,
		RawResponse: f.Raw,
		CreatedAt:   d.now().UTC(),
	}
	if err := d.store.SaveAnalysis(ctx, a); err != nil {
		d.log.Warn("analysis not persisted", "market", m.Ticker, "error", err)
	}
}
