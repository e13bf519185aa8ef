package evaluate

// Package evaluate aggregates closed trades and open-position marks into
// performance and balance snapshots. The stage is read-only over positions
// and orders: it never places, closes or resizes anything, and its
// failures are logged, never fatal.

import (
	"context"
	"log/slog"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Evaluator is the evaluation stage.
type Evaluator struct {
	exchange ports.Exchange
	store    ports.Storage
	notifier ports.Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewEvaluator builds the evaluation stage.
func NewEvaluator(exchange ports.Exchange, store ports.Storage, notifier ports.Notifier, log *slog.Logger) *Evaluator {
	return &Evaluator{
		exchange: exchange,
		store:    store,
		notifier: notifier,
		log:      log,
		now:      time.Now,
	}
}

// RunCycle builds and persists one performance snapshot and one balance
// snapshot, then hands the report to the notifier.
func (e *Evaluator) RunCycle(ctx context.Context) {
	snap, positionsValue, ok := e.buildSnapshot(ctx)
	if !ok {
		return
	}

	if err := e.store.SavePerformanceSnapshot(ctx, snap); err != nil {
		e.log.Warn("performance snapshot not persisted", "error", err)
	}

	cash, err := e.exchange.GetBalance(ctx)
	if err != nil {
		e.log.Warn("balance lookup failed", "error", err)
	} else {
		balance := domain.BalanceSnapshot{
			Cash:           cash,
			PositionsValue: positionsValue,
			Total:          cash + positionsValue,
			At:             snap.At,
		}
		if err := e.store.SaveBalanceSnapshot(ctx, balance); err != nil {
			e.log.Warn("balance snapshot not persisted", "error", err)
		}
	}

	e.notifier.PerformanceReport(ctx, snap)
}

// Snapshot computes the current performance snapshot without persisting
// anything. Used by the report mode of the binary.
func (e *Evaluator) Snapshot(ctx context.Context) (domain.PerformanceSnapshot, bool) {
	snap, _, ok := e.buildSnapshot(ctx)
	return snap, ok
}

func (e *Evaluator) buildSnapshot(ctx context.Context) (domain.PerformanceSnapshot, float64, bool) {
	logs, err := e.store.TradeLogs(ctx, time.Time{})
	if err != nil {
		e.log.Warn("trade log read failed", "error", err)
		return domain.PerformanceSnapshot{}, 0, false
	}

	snap := domain.PerformanceSnapshot{
		At:         e.now().UTC(),
		ByStrategy: make(map[string]domain.StrategyPerf),
	}
	for _, tl := range logs {
		snap.Trades++
		snap.RealizedPnL += tl.RealizedPnL
		perf := snap.ByStrategy[tl.Strategy]
		perf.Trades++
		perf.RealizedPnL += tl.RealizedPnL
		if tl.Won() {
			snap.Wins++
			perf.Wins++
		}
		snap.ByStrategy[tl.Strategy] = perf
	}
	if snap.Trades > 0 {
		snap.WinRate = float64(snap.Wins) / float64(snap.Trades)
	}

	positions, err := e.store.OpenPositions(ctx)
	if err != nil {
		e.log.Warn("open position read failed", "error", err)
		return domain.PerformanceSnapshot{}, 0, false
	}
	snap.OpenPositions = len(positions)

	var positionsValue float64
	for _, pos := range positions {
		m, err := e.exchange.GetMarket(ctx, pos.Ticker)
		if err != nil {
			e.log.Warn("mark lookup failed", "market", pos.Ticker, "error", err)
			continue
		}
		mark := m.MarkFor(pos.Side)
		snap.UnrealizedPnL += pos.UnrealizedPnL(mark)
		positionsValue += pos.MarketValue(mark)
	}

	return snap, positionsValue, true
}
