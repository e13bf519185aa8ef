package reconcile

// Package reconcile aligns local state with the exchange. The exchange is
// the remote source of truth: on boot, positions it reports that the
// database does not know get imported as untracked, and database positions
// it no longer reports get closed. It also refreshes the allocator's
// capital state from balance plus mark-to-market.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/application/risk"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Reconciler runs the startup sync and the periodic capital refresh.
type Reconciler struct {
	exchange ports.Exchange
	store    ports.Storage
	alloc    *risk.Allocator
	log      *slog.Logger
	now      func() time.Time
}

// NewReconciler builds the reconciliation component.
func NewReconciler(exchange ports.Exchange, store ports.Storage, alloc *risk.Allocator, log *slog.Logger) *Reconciler {
	return &Reconciler{
		exchange: exchange,
		store:    store,
		alloc:    alloc,
		log:      log,
		now:      time.Now,
	}
}

// SyncPositions reconciles database positions against the exchange. On the
// first run (empty database) every exchange position is imported as
// untracked; afterwards local positions absent from the exchange get
// closed and unknown exchange positions get imported.
func (r *Reconciler) SyncPositions(ctx context.Context) error {
	count, err := r.store.CountPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile.SyncPositions: count: %w", err)
	}

	exPositions, err := r.exchange.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile.SyncPositions: exchange positions: %w", err)
	}

	if count == 0 {
		for _, ep := range exPositions {
			if err := r.importUntracked(ctx, ep); err != nil {
				return err
			}
		}
		if len(exPositions) > 0 {
			r.log.Info("first run: imported exchange positions as untracked",
				"imported", len(exPositions))
		}
		return nil
	}

	local, err := r.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile.SyncPositions: local positions: %w", err)
	}

	onExchange := make(map[string]ports.ExchangePosition, len(exPositions))
	for _, ep := range exPositions {
		onExchange[key(ep.Ticker, ep.Side)] = ep
	}
	known := make(map[string]bool, len(local))
	for _, pos := range local {
		known[key(pos.Ticker, pos.Side)] = true
	}

	var closed, imported int
	for _, pos := range local {
		if _, ok := onExchange[key(pos.Ticker, pos.Side)]; ok {
			continue
		}
		// Gone on the exchange: settled or closed outside the bot. The
		// exit price is unknown, so no TradeLog is synthesized.
		now := r.now().UTC()
		if err := pos.Transition(domain.PositionClosed); err != nil {
			r.log.Warn("stale position not closable", "position", pos.ID, "error", err)
			continue
		}
		pos.ExitReason = domain.ExitSync
		pos.ClosedAt = &now
		if err := r.store.UpdatePosition(ctx, pos); err != nil {
			return fmt.Errorf("reconcile.SyncPositions: close stale %s: %w", pos.ID, err)
		}
		closed++
	}

	for _, ep := range exPositions {
		if known[key(ep.Ticker, ep.Side)] {
			continue
		}
		if err := r.importUntracked(ctx, ep); err != nil {
			return err
		}
		imported++
	}

	if closed > 0 || imported > 0 {
		r.log.Info("position sync complete", "closed_stale", closed, "imported", imported)
	}
	return nil
}

// RefreshCapital rebuilds the allocator's capital state from the exchange
// balance and the mark-to-market of every open position.
func (r *Reconciler) RefreshCapital(ctx context.Context) error {
	cash, err := r.exchange.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("reconcile.RefreshCapital: balance: %w", err)
	}

	positions, err := r.store.OpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("reconcile.RefreshCapital: positions: %w", err)
	}

	holdings := make([]risk.Holding, 0, len(positions))
	for _, pos := range positions {
		mark := pos.EntryPrice
		category := ""
		if m, err := r.exchange.GetMarket(ctx, pos.Ticker); err == nil {
			if v := m.MarkFor(pos.Side); v > 0 {
				mark = v
			}
			category = m.Category
		} else {
			r.log.Warn("mark lookup failed, using entry price", "market", pos.Ticker, "error", err)
		}
		holdings = append(holdings, risk.Holding{
			Ticker:      pos.Ticker,
			EventTicker: pos.EventTicker,
			Category:    category,
			Bucket:      pos.Strategy,
			Cost:        pos.CostBasis(),
			Value:       pos.MarketValue(mark),
			Mark:        mark,
		})
	}

	midnight := r.now().UTC().Truncate(24 * time.Hour)
	realizedToday, err := r.store.RealizedPnLSince(ctx, midnight)
	if err != nil {
		return fmt.Errorf("reconcile.RefreshCapital: realized pnl: %w", err)
	}

	r.alloc.Rebalance(cash, holdings, realizedToday)
	return nil
}

func (r *Reconciler) importUntracked(ctx context.Context, ep ports.ExchangePosition) error {
	pos := domain.Position{
		ID:         uuid.NewString(),
		Ticker:     ep.Ticker,
		Side:       ep.Side,
		EntryPrice: ep.AvgPrice,
		Quantity:   ep.Quantity,
		OpenedAt:   r.now().UTC(),
		Strategy:   "directional",
		Status:     domain.PositionOpen,
		Tracked:    false,
	}
	if err := r.store.SavePosition(ctx, pos); err != nil {
		return fmt.Errorf("reconcile: import %s %s: %w", ep.Ticker, ep.Side, err)
	}
	return nil
}

func key(ticker string, side domain.Side) string {
	return ticker + "|" + string(side)
}
