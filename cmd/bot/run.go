package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/application/decide"
	"github.com/alejandrodnm/kalshibot/internal/application/evaluate"
	"github.com/alejandrodnm/kalshibot/internal/application/execute"
	"github.com/alejandrodnm/kalshibot/internal/application/ingest"
	"github.com/alejandrodnm/kalshibot/internal/application/reconcile"
	"github.com/alejandrodnm/kalshibot/internal/application/risk"
	"github.com/alejandrodnm/kalshibot/internal/application/track"
)

const stopFile = "STOP_TRADING"

// bot wires the stages and owns the three cyclic tasks.
type bot struct {
	cfg        *config.Config
	reconciler *reconcile.Reconciler
	ingestor   *ingest.Ingestor
	decider    *decide.Decider
	arbScanner *decide.ArbScanner
	executor   *execute.Executor
	tracker    *track.Tracker
	evaluator  *evaluate.Evaluator
}

// start runs the boot sequence: position sync against the exchange, then
// the first capital refresh.
func (b *bot) start(ctx context.Context) error {
	if err := b.reconciler.SyncPositions(ctx); err != nil {
		return err
	}
	return b.reconciler.RefreshCapital(ctx)
}

// run drives the three cadences until the context is cancelled or the stop
// file shows up. Each cadence runs on its own goroutine so a slow trade
// cycle never delays the tracker; within a cadence the cycles stay
// synchronous and cannot overlap themselves.
func (b *bot) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	slog.Info("trading loop started — press Ctrl+C or create " + stopFile + " to exit")

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		b.tradeCycle(ctx)
		runEvery(ctx, b.cfg.TradeInterval(), func(cctx context.Context) {
			if b.stopRequested() {
				slog.Info(stopFile + " detected, shutting down")
				os.Remove(stopFile)
				cancel()
				return
			}
			b.tradeCycle(cctx)
		})
	}()
	go func() {
		defer wg.Done()
		runEvery(ctx, b.cfg.TrackInterval(), b.trackCycle)
	}()
	go func() {
		defer wg.Done()
		runEvery(ctx, b.cfg.EvalInterval(), b.evalCycle)
	}()
	wg.Wait()
	slog.Info("trading loop stopped")
}

// runEvery fires fn on every tick until the context is cancelled. fn runs
// synchronously, so a cadence never overlaps itself.
func runEvery(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// tradeCycle runs ingest → decide → execute once, arbitrage included.
func (b *bot) tradeCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CycleTimeout())
	defer cancel()

	if err := b.reconciler.RefreshCapital(cctx); err != nil {
		slog.Warn("capital refresh failed, skipping trade cycle", "err", err)
		return
	}

	markets, err := b.ingestor.FetchCandidates(cctx)
	if err != nil {
		slog.Warn("ingestion failed, skipping trade cycle", "err", err)
		return
	}
	if len(markets) == 0 {
		return
	}

	for _, opp := range b.arbScanner.Scan(cctx, markets) {
		result, err := b.executor.ExecuteGroup(cctx, opp)
		if err != nil {
			if errors.Is(err, risk.ErrRiskBlocked) {
				slog.Info("arbitrage blocked by risk limits", "event", opp.EventTicker)
				break
			}
			slog.Warn("arbitrage group failed", "event", opp.EventTicker, "err", err)
			continue
		}
		if result.Escalated {
			// A partial basket needs a human; stop opening risk this cycle.
			return
		}
	}

	for _, intent := range b.decider.RunCycle(cctx, markets) {
		if cctx.Err() != nil {
			return
		}
		if _, err := b.executor.Execute(cctx, intent); err != nil {
			if errors.Is(err, risk.ErrRiskBlocked) {
				slog.Info("intent blocked by risk limits", "market", intent.Market.Ticker)
				continue
			}
			slog.Warn("execution failed", "market", intent.Market.Ticker, "err", err)
		}
	}
}

func (b *bot) trackCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CycleTimeout())
	defer cancel()

	if err := b.tracker.RunCycle(cctx); err != nil {
		slog.Warn("tracker cycle failed", "err", err)
	}
}

func (b *bot) evalCycle(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, b.cfg.CycleTimeout())
	defer cancel()

	b.evaluator.RunCycle(cctx)
}

func (b *bot) stopRequested() bool {
	_, err := os.Stat(stopFile)
	return err == nil
}
