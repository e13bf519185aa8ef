package execute

// Package execute places orders for approved intents. Sizing goes through
// the allocator, placement is always limit-at-ask, and only contracts that
// actually fill become position quantity. Capital committed for the
// unfilled remainder goes back to the bucket.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/application/risk"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Executor is the execution stage for single-market intents and multi-leg
// arbitrage groups.
type Executor struct {
	exchange ports.Exchange
	store    ports.Storage
	alloc    *risk.Allocator
	notifier ports.Notifier
	fees     domain.FeeSchedule
	cfg      config.TradingConfig
	arbCfg   config.ArbitrageConfig
	log      *slog.Logger
	now      func() time.Time
}

// NewExecutor builds the execution stage.
func NewExecutor(
	exchange ports.Exchange,
	store ports.Storage,
	alloc *risk.Allocator,
	notifier ports.Notifier,
	fees domain.FeeSchedule,
	cfg config.TradingConfig,
	arbCfg config.ArbitrageConfig,
	log *slog.Logger,
) *Executor {
	return &Executor{
		exchange: exchange,
		store:    store,
		alloc:    alloc,
		notifier: notifier,
		fees:     fees,
		cfg:      cfg,
		arbCfg:   arbCfg,
		log:      log,
		now:      time.Now,
	}
}

// Execute sizes and places one intent. The returned order carries the final
// fill accounting; a position is recorded only when something filled.
func (e *Executor) Execute(ctx context.Context, intent domain.TradeIntent) (domain.Order, error) {
	qty, err := e.alloc.Size(intent, intent.Strategy)
	if err != nil {
		return domain.Order{}, fmt.Errorf("execute.Execute: sizing %s: %w", intent.Market.Ticker, err)
	}
	committed := float64(qty) * intent.TargetPrice

	// Never ask for more than the book offers at the top level.
	depth, err := e.askDepth(ctx, intent.Market.Ticker, intent.Side)
	if err != nil {
		e.alloc.Release(intent.Strategy, committed)
		return domain.Order{}, fmt.Errorf("execute.Execute: book %s: %w", intent.Market.Ticker, err)
	}
	if depth > 0 && depth < qty {
		e.alloc.Release(intent.Strategy, float64(qty-depth)*intent.TargetPrice)
		committed = float64(depth) * intent.TargetPrice
		qty = depth
	}

	order := domain.Order{
		ID:        uuid.NewString(),
		Ticker:    intent.Market.Ticker,
		Side:      intent.Side,
		Action:    domain.ActionBuy,
		Price:     intent.TargetPrice,
		Quantity:  qty,
		Status:    domain.OrderPending,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveOrder(ctx, order); err != nil {
		e.log.Warn("order not persisted", "order", order.ID, "error", err)
	}

	final, err := e.placeAndPoll(ctx, order)
	if err != nil {
		// Contracts bought before the failure are real: keep their cost
		// committed and record the position, release only the remainder.
		e.alloc.Release(intent.Strategy, committed-final.FilledCost())
		if final.FilledQty > 0 {
			pos := e.buildPosition(intent, final)
			if perr := e.store.SavePosition(ctx, pos); perr != nil {
				e.log.Error("filled order has no persisted position",
					"order", final.ID, "filled", final.FilledQty, "error", perr)
			} else {
				e.notifier.TradeOpened(ctx, pos)
			}
		}
		return final, fmt.Errorf("execute.Execute: place %s: %w", intent.Market.Ticker, err)
	}

	// Commit only what filled; everything else goes back to the bucket.
	e.alloc.Release(intent.Strategy, committed-final.FilledCost())

	if final.FilledQty == 0 {
		e.log.Info("order expired unfilled", "market", intent.Market.Ticker, "order", final.ID)
		return final, nil
	}

	pos := e.buildPosition(intent, final)
	if err := e.store.SavePosition(ctx, pos); err != nil {
		return final, fmt.Errorf("execute.Execute: persist position %s: %w", pos.ID, err)
	}
	e.notifier.TradeOpened(ctx, pos)
	e.log.Info("position opened",
		"market", pos.Ticker,
		"side", pos.Side,
		"quantity", pos.Quantity,
		"entry", pos.EntryPrice,
		"strategy", pos.Strategy)
	return final, nil
}

// placeAndPoll sends the order and polls fills until the order reaches a
// terminal state or the attempts run out, cancelling the remainder.
func (e *Executor) placeAndPoll(ctx context.Context, order domain.Order) (domain.Order, error) {
	placed, err := e.exchange.PlaceOrder(ctx, order)
	if err != nil {
		_ = order.Transition(domain.OrderFailed)
		e.updateOrder(ctx, order)
		return order, err
	}
	e.updateOrder(ctx, placed)

	interval := time.Duration(e.cfg.FillPollSeconds * float64(time.Second))
	for attempt := 0; attempt < e.cfg.FillPollAttempts; attempt++ {
		if placed.Status.Terminal() || placed.FilledQty == placed.Quantity {
			break
		}
		select {
		case <-time.After(interval):
		case <-ctx.Done():
			return placed, ctx.Err()
		}
		refreshed, err := e.exchange.GetOrder(ctx, placed.ExchangeID)
		if err != nil {
			e.log.Warn("fill poll failed", "order", placed.ID, "error", err)
			continue
		}
		refreshed.ID = placed.ID
		placed = refreshed
		e.updateOrder(ctx, placed)
	}

	if !placed.Status.Terminal() {
		if err := e.exchange.CancelOrder(ctx, placed.ExchangeID); err != nil {
			e.log.Warn("cancel failed", "order", placed.ID, "error", err)
		}
		// The cancel races late fills; take one final read.
		if refreshed, err := e.exchange.GetOrder(ctx, placed.ExchangeID); err == nil {
			refreshed.ID = placed.ID
			placed = refreshed
		}
		e.updateOrder(ctx, placed)
	}
	return placed, nil
}

func (e *Executor) buildPosition(intent domain.TradeIntent, order domain.Order) domain.Position {
	entry := order.AvgFillPrice
	if entry == 0 {
		entry = order.Price
	}
	tte := time.Until(intent.Market.ExpiresAt)
	return domain.Position{
		ID:          uuid.NewString(),
		Ticker:      intent.Market.Ticker,
		EventTicker: intent.Market.EventTicker,
		Side:        intent.Side,
		EntryPrice:  entry,
		Quantity:    order.FilledQty,
		OpenedAt:    e.now(),
		Strategy:    intent.Strategy,
		Status:      domain.PositionOpen,
		Tracked:     true,
		Rationale:   intent.Rationale,
		Confidence:  intent.Confidence,
		Exit:        domain.NewExitStrategy(entry, intent.Confidence, markVolatility(entry), tte),
	}
}

func (e *Executor) askDepth(ctx context.Context, ticker string, side domain.Side) (int, error) {
	yes, no, err := e.exchange.GetOrderBook(ctx, ticker)
	if err != nil {
		return 0, err
	}
	if side == domain.SideNo {
		return no.AskDepth(), nil
	}
	return yes.AskDepth(), nil
}

func (e *Executor) updateOrder(ctx context.Context, o domain.Order) {
	if err := e.store.UpdateOrder(ctx, o); err != nil {
		e.log.Warn("order update not persisted", "order", o.ID, "error", err)
	}
}

// markVolatility is the stdev of a binary contract at the given price,
// used to widen stops for mid-priced entries.
func markVolatility(price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return math.Sqrt(price * (1 - price))
}
