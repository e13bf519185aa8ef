package execute

// group.go — multi-leg arbitrage execution. The invariant is all-or-none:
// either every leg fills and becomes a position sharing one group id, or
// whatever filled gets flattened with at most one offsetting order per leg.
// Between detection and placement the books move, so every leg is
// re-verified against a fresh ask before any order goes out.

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// GroupResult summarizes one arbitrage group execution.
type GroupResult struct {
	GroupID   string
	Units     int
	Orders    []domain.Order
	Positions []domain.Position
	Aborted   bool   // TOCTOU re-verify failed, zero orders placed
	Flattened int    // legs closed with an offsetting order
	Escalated bool   // a flatten failed and the operator was alerted
}

// ExecuteGroup verifies, sizes and places all legs of an arbitrage
// opportunity concurrently.
func (e *Executor) ExecuteGroup(ctx context.Context, opp domain.ArbOpportunity) (GroupResult, error) {
	budget, err := e.alloc.GroupBudget()
	if err != nil {
		return GroupResult{}, fmt.Errorf("execute.ExecuteGroup: budget: %w", err)
	}

	// TOCTOU guard: the group is only as good as the books are right now.
	fresh, err := e.freshAsks(ctx, opp)
	if err != nil {
		e.alloc.Release("arbitrage", budget)
		return GroupResult{}, fmt.Errorf("execute.ExecuteGroup: refresh books: %w", err)
	}
	if !opp.Verify(fresh, e.fees, e.arbCfg.PriceTolerance, e.arbCfg.MinNetProfit) {
		e.alloc.Release("arbitrage", budget)
		e.log.Info("arbitrage group no longer clears, aborting",
			"event", opp.EventTicker, "legs", len(opp.Legs))
		return GroupResult{Aborted: true}, nil
	}

	units := opp.MaxUnits(budget, e.arbCfg.MaxGroupUnits)
	if units < 1 {
		e.alloc.Release("arbitrage", budget)
		return GroupResult{Aborted: true}, nil
	}

	groupID := uuid.NewString()
	orders := e.placeLegs(ctx, opp, fresh, units, groupID)

	result := GroupResult{GroupID: groupID, Units: units, Orders: orders}
	e.reconcileGroup(ctx, opp, orders, units, groupID, budget, &result)
	return result, nil
}

// placeLegs fans the leg orders out concurrently. A failing leg never
// cancels its siblings; reconciliation deals with the aftermath.
func (e *Executor) placeLegs(ctx context.Context, opp domain.ArbOpportunity, asks []float64, units int, groupID string) []domain.Order {
	type legResult struct {
		idx   int
		order domain.Order
	}

	resultCh := make(chan legResult, len(opp.Legs))
	var wg sync.WaitGroup
	for i, leg := range opp.Legs {
		wg.Add(1)
		go func(idx int, leg domain.ArbLeg, ask float64) {
			defer wg.Done()
			order := domain.Order{
				ID:        uuid.NewString(),
				Ticker:    leg.Ticker,
				Side:      leg.Side,
				Action:    domain.ActionBuy,
				Price:     ask,
				Quantity:  units,
				Status:    domain.OrderPending,
				GroupID:   groupID,
				CreatedAt: e.now(),
			}
			if err := e.store.SaveOrder(ctx, order); err != nil {
				e.log.Warn("leg order not persisted", "order", order.ID, "error", err)
			}
			final, err := e.placeAndPoll(ctx, order)
			if err != nil {
				e.log.Warn("leg placement failed",
					"group", groupID, "market", leg.Ticker, "error", err)
			}
			resultCh <- legResult{idx: idx, order: final}
		}(i, leg, asks[i])
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	orders := make([]domain.Order, len(opp.Legs))
	for r := range resultCh {
		orders[r.idx] = r.order
	}
	return orders
}

// reconcileGroup inspects the leg fills and either records positions (all
// legs filled), records nothing (no fills), or flattens the partial fills.
func (e *Executor) reconcileGroup(ctx context.Context, opp domain.ArbOpportunity, orders []domain.Order, units int, groupID string, budget float64, result *GroupResult) {
	filledLegs := 0
	anyFill := false
	var spent float64
	for _, o := range orders {
		if o.FilledQty > 0 {
			anyFill = true
		}
		if o.FilledQty == units {
			filledLegs++
		}
		spent += o.FilledCost()
	}

	switch {
	case filledLegs == len(orders):
		for i, o := range orders {
			pos := domain.Position{
				ID:          uuid.NewString(),
				Ticker:      opp.Legs[i].Ticker,
				EventTicker: opp.EventTicker,
				Side:        opp.Legs[i].Side,
				EntryPrice:  entryPrice(o),
				Quantity:    o.FilledQty,
				OpenedAt:    e.now(),
				Strategy:    "arbitrage",
				Status:      domain.PositionOpen,
				Tracked:     true,
				GroupID:     groupID,
			}
			if err := e.store.SavePosition(ctx, pos); err != nil {
				e.log.Warn("group position not persisted", "position", pos.ID, "error", err)
				continue
			}
			e.notifier.TradeOpened(ctx, pos)
			result.Positions = append(result.Positions, pos)
		}
		e.alloc.Release("arbitrage", budget-spent)
		e.log.Info("arbitrage group filled",
			"group", groupID, "event", opp.EventTicker, "units", units,
			"net_per_unit", opp.NetPerUnit)

	case !anyFill:
		e.alloc.Release("arbitrage", budget)
		e.log.Info("arbitrage group expired unfilled", "group", groupID)

	default:
		// Partial group: one basket leg missing breaks the guarantee.
		// Flatten every filled leg, one offsetting order each.
		escalated := false
		for i, o := range orders {
			if o.FilledQty == 0 {
				continue
			}
			if err := e.flattenLeg(ctx, opp.Legs[i], o, groupID); err != nil {
				e.log.Error("flatten failed",
					"group", groupID, "market", o.Ticker, "error", err)
				if !escalated {
					e.notifier.Escalate(ctx,
						fmt.Sprintf("arbitrage group %s partially filled; manual intervention required for %s", groupID, o.Ticker),
						err)
					escalated = true
				}
				continue
			}
			result.Flattened++
		}
		result.Escalated = escalated
		e.alloc.Release("arbitrage", budget)
	}
}

// flattenLeg places the single offsetting sell for a filled leg.
func (e *Executor) flattenLeg(ctx context.Context, leg domain.ArbLeg, filled domain.Order, groupID string) error {
	offset := domain.Order{
		ID:        uuid.NewString(),
		Ticker:    leg.Ticker,
		Side:      leg.Side,
		Action:    domain.ActionSell,
		Price:     flattenPrice(entryPrice(filled)),
		Quantity:  filled.FilledQty,
		Status:    domain.OrderPending,
		GroupID:   groupID,
		CreatedAt: e.now(),
	}
	if err := e.store.SaveOrder(ctx, offset); err != nil {
		e.log.Warn("flatten order not persisted", "order", offset.ID, "error", err)
	}
	if _, err := e.placeAndPoll(ctx, offset); err != nil {
		return err
	}
	return nil
}

func (e *Executor) freshAsks(ctx context.Context, opp domain.ArbOpportunity) ([]float64, error) {
	asks := make([]float64, len(opp.Legs))
	for i, leg := range opp.Legs {
		yes, no, err := e.exchange.GetOrderBook(ctx, leg.Ticker)
		if err != nil {
			return nil, err
		}
		if leg.Side == domain.SideNo {
			asks[i] = no.BestAsk()
		} else {
			asks[i] = yes.BestAsk()
		}
	}
	return asks, nil
}

func entryPrice(o domain.Order) float64 {
	if o.AvgFillPrice > 0 {
		return o.AvgFillPrice
	}
	return o.Price
}

// flattenPrice undercuts the entry to exit quickly. Aggressive by a few
// cents; the loss is bounded by the leg size.
func flattenPrice(entry float64) float64 {
	p := entry - 0.03
	if p < 0.01 {
		p = 0.01
	}
	return p
}
