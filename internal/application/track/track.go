package track

// Package track runs the position lifecycle: every cycle it marks each
// open position against the market and applies the exit rules in strict
// priority. Resolution always wins: a settled market pays what it pays no
// matter what the stop or the clock says. Untracked positions (imported
// from the exchange) get their status managed but never produce a
// TradeLog.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Tracker is the position lifecycle stage.
type Tracker struct {
	exchange ports.Exchange
	store    ports.Storage
	notifier ports.Notifier
	fees     domain.FeeSchedule
	cfg      config.TradingConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewTracker builds the tracker stage.
func NewTracker(exchange ports.Exchange, store ports.Storage, notifier ports.Notifier, fees domain.FeeSchedule, cfg config.TradingConfig, log *slog.Logger) *Tracker {
	return &Tracker{
		exchange: exchange,
		store:    store,
		notifier: notifier,
		fees:     fees,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// RunCycle evaluates every open position once. Per-position failures are
// logged and never stop the rest of the book from being checked.
func (t *Tracker) RunCycle(ctx context.Context) error {
	positions, err := t.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("track.RunCycle: load positions: %w", err)
	}

	var closed int
	for _, pos := range positions {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		didClose, err := t.trackOne(ctx, pos)
		if err != nil {
			t.log.Warn("position check failed", "position", pos.ID, "market", pos.Ticker, "error", err)
			continue
		}
		if didClose {
			closed++
		}
	}

	if closed > 0 {
		t.log.Info("tracker cycle complete", "open", len(positions), "closed", closed)
	}
	return nil
}

func (t *Tracker) trackOne(ctx context.Context, pos domain.Position) (bool, error) {
	m, err := t.exchange.GetMarket(ctx, pos.Ticker)
	if err != nil {
		return false, fmt.Errorf("market lookup: %w", err)
	}

	// Positions without exit levels (imported, or created before exit
	// descriptors existed) get defaults computed from current state.
	if !pos.Exit.Defined() {
		pos.Exit = domain.NewExitStrategy(pos.EntryPrice, pos.Confidence, 0, time.Until(m.ExpiresAt))
	}

	// A position stuck in exiting means a close order did not confirm
	// last cycle; retry the close before any rule evaluation.
	if pos.Status == domain.PositionExiting {
		return t.closeWithOrder(ctx, pos, m, pos.ExitReason)
	}

	reason, ok := t.exitReason(ctx, pos, m)
	if !ok {
		return false, nil
	}

	if reason == domain.ExitResolved {
		return true, t.settle(ctx, pos, m)
	}
	return t.closeWithOrder(ctx, pos, m, reason)
}

// exitReason evaluates the exit rules in strict priority order.
func (t *Tracker) exitReason(ctx context.Context, pos domain.Position, m domain.Market) (domain.ExitReason, bool) {
	if m.Resolved() || !m.Tradable() || m.AtExtreme() {
		return domain.ExitResolved, true
	}

	mark := m.MarkFor(pos.Side)
	if mark > 0 && mark <= pos.Exit.StopLoss {
		return domain.ExitStopLoss, true
	}

	// Take-profit only fires when the P&L is actually positive; a stale
	// descriptor below entry must not trigger a losing "profit" exit.
	if mark >= pos.Exit.TakeProfit && pos.UnrealizedPnL(mark) > 0 {
		return domain.ExitTakeProfit, true
	}

	if pos.HeldFor(t.now()) > pos.Exit.MaxHold {
		return domain.ExitMaxHold, true
	}

	if t.confidenceDrifted(ctx, pos) {
		return domain.ExitConfidenceDrift, true
	}

	return "", false
}

// confidenceDrifted compares entry confidence with the latest persisted
// analysis for the market. No fresh forecast call is spent on exits.
func (t *Tracker) confidenceDrifted(ctx context.Context, pos domain.Position) bool {
	if pos.Confidence <= 0 || pos.Exit.ConfidenceDelta <= 0 {
		return false
	}
	latest, err := t.store.LatestAnalysis(ctx, pos.Ticker)
	if err != nil {
		t.log.Warn("confidence lookup failed", "market", pos.Ticker, "error", err)
		return false
	}
	if latest == nil || latest.CreatedAt.Before(pos.OpenedAt) {
		return false
	}
	return pos.Confidence-latest.Confidence > pos.Exit.ConfidenceDelta
}

// settle closes a resolved position at settlement value. No close order:
// the exchange pays out directly.
func (t *Tracker) settle(ctx context.Context, pos domain.Position, m domain.Market) error {
	settlement := m.SettlementFor(pos.Side)
	if err := pos.Transition(domain.PositionClosed); err != nil {
		return err
	}
	return t.finalize(ctx, pos, domain.ExitResolved, settlement, 0)
}

// closeWithOrder places the offsetting sell and closes the position once
// the order confirms. An unfilled close leaves the position in exiting for
// the next cycle to retry.
func (t *Tracker) closeWithOrder(ctx context.Context, pos domain.Position, m domain.Market, reason domain.ExitReason) (bool, error) {
	bid := m.BidFor(pos.Side)
	if bid <= 0 {
		bid = m.MarkFor(pos.Side)
	}
	if bid <= 0 {
		return false, fmt.Errorf("no bid to close against for %s", pos.Ticker)
	}

	if pos.Status == domain.PositionOpen {
		if err := pos.Transition(domain.PositionExiting); err != nil {
			return false, err
		}
		pos.ExitReason = reason
		if err := t.store.UpdatePosition(ctx, pos); err != nil {
			return false, fmt.Errorf("persist exiting: %w", err)
		}
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Ticker:    pos.Ticker,
		Side:      pos.Side,
		Action:    domain.ActionSell,
		Price:     bid,
		Quantity:  pos.Quantity,
		Status:    domain.OrderPending,
		CreatedAt: t.now(),
	}
	if err := t.store.SaveOrder(ctx, order); err != nil {
		t.log.Warn("close order not persisted", "order", order.ID, "error", err)
	}

	placed, err := t.exchange.PlaceOrder(ctx, order)
	if err != nil {
		return false, fmt.Errorf("place close order: %w", err)
	}
	final := t.pollClose(ctx, placed)
	// Never leave a close order resting: the retry next cycle would put a
	// second sell on the book for the same contracts. Cancel the remainder
	// and take a final read, the cancel races late fills.
	if !final.Status.Terminal() && final.FilledQty < final.Quantity {
		if err := t.exchange.CancelOrder(ctx, final.ExchangeID); err != nil {
			t.log.Warn("close cancel failed", "order", final.ID, "error", err)
		}
		if refreshed, err := t.exchange.GetOrder(ctx, final.ExchangeID); err == nil {
			refreshed.ID = final.ID
			final = refreshed
		}
	}
	if err := t.store.UpdateOrder(ctx, final); err != nil {
		t.log.Warn("close order update not persisted", "order", final.ID, "error", err)
	}

	if final.FilledQty < pos.Quantity {
		if final.FilledQty > 0 {
			// Partial close: the sold contracts are gone, the retry only
			// covers what is left.
			pos.Quantity -= final.FilledQty
			if err := t.store.UpdatePosition(ctx, pos); err != nil {
				return false, fmt.Errorf("persist partial close: %w", err)
			}
		}
		t.log.Warn("close order not fully filled, retrying next cycle",
			"position", pos.ID, "filled", final.FilledQty, "remaining", pos.Quantity)
		return false, nil
	}

	closePrice := final.AvgFillPrice
	if closePrice == 0 {
		closePrice = final.Price
	}
	if err := pos.Transition(domain.PositionClosed); err != nil {
		return false, err
	}
	slippage := bid - closePrice
	return true, t.finalize(ctx, pos, reason, closePrice, slippage)
}

// finalize persists the closed position and, for tracked positions only,
// the immutable TradeLog.
func (t *Tracker) finalize(ctx context.Context, pos domain.Position, reason domain.ExitReason, closePrice, slippage float64) error {
	now := t.now().UTC()
	pos.ExitReason = reason
	pos.ClosePrice = closePrice
	pos.ClosedAt = &now
	if err := t.store.UpdatePosition(ctx, pos); err != nil {
		return fmt.Errorf("persist close: %w", err)
	}

	if !pos.Tracked {
		t.log.Info("untracked position closed",
			"market", pos.Ticker, "reason", reason, "close", closePrice)
		return nil
	}

	feeTotal := t.fees.TakerFee(pos.EntryPrice, pos.Quantity)
	if reason != domain.ExitResolved {
		feeTotal += t.fees.TakerFee(closePrice, pos.Quantity)
	}
	tl := domain.TradeLog{
		PositionID:  pos.ID,
		Ticker:      pos.Ticker,
		Side:        pos.Side,
		Strategy:    pos.Strategy,
		Quantity:    pos.Quantity,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   closePrice,
		Fees:        feeTotal,
		RealizedPnL: (closePrice-pos.EntryPrice)*float64(pos.Quantity) - feeTotal,
		ExitReason:  reason,
		Slippage:    slippage,
		OpenedAt:    pos.OpenedAt,
		ClosedAt:    now,
	}
	if err := t.store.SaveTradeLog(ctx, tl); err != nil {
		return fmt.Errorf("persist trade log: %w", err)
	}
	t.notifier.TradeClosed(ctx, tl)
	return nil
}

// pollClose polls fills on a close order a few times. Close orders price
// at the bid, so they normally fill immediately.
func (t *Tracker) pollClose(ctx context.Context, placed domain.Order) domain.Order {
	attempts := t.cfg.FillPollAttempts
	if attempts <= 0 {
		attempts = 3
	}
	interval := time.Duration(t.cfg.FillPollSeconds * float64(time.Second))
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	for i := 0; i < attempts; i++ {
		if placed.Status.Terminal() || placed.FilledQty == placed.Quantity {
			return placed
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return placed
		}
		refreshed, err := t.exchange.GetOrder(ctx, placed.ExchangeID)
		if err != nil {
			t.log.Warn("close fill poll failed", "order", placed.ID, "error", err)
			continue
		}
		refreshed.ID = placed.ID
		placed = refreshed
	}
	return placed
}
