package execute

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/application/risk"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// fillScript controls how the fake exchange fills orders on a ticker.
type fillScript struct {
	qty int     // contracts to fill, capped at the requested quantity
	avg float64 // average fill price, 0 means the limit price
}

type scriptedExchange struct {
	ports.Exchange
	mu          sync.Mutex
	books       map[string][2]domain.OrderBook
	fills       map[string]fillScript
	orders      map[string]domain.Order
	placed      []domain.Order
	failPlace   map[string]bool
	failFlatten bool
}

func newScriptedExchange() *scriptedExchange {
	return &scriptedExchange{
		books:     make(map[string][2]domain.OrderBook),
		fills:     make(map[string]fillScript),
		orders:    make(map[string]domain.Order),
		failPlace: make(map[string]bool),
	}
}

func (f *scriptedExchange) GetOrderBook(_ context.Context, ticker string) (domain.OrderBook, domain.OrderBook, error) {
	b := f.books[ticker]
	return b[0], b[1], nil
}

func (f *scriptedExchange) PlaceOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if order.Action == domain.ActionSell && f.failFlatten {
		return domain.Order{}, errors.New("exchange rejected sell")
	}
	if f.failPlace[order.Ticker] {
		return domain.Order{}, errors.New("exchange rejected order")
	}

	order.ExchangeID = "X-" + order.ID
	if err := order.Transition(domain.OrderPlaced); err != nil {
		return domain.Order{}, err
	}

	script, ok := f.fills[order.Ticker]
	if !ok {
		script = fillScript{qty: order.Quantity}
	}
	qty := script.qty
	if qty > order.Quantity {
		qty = order.Quantity
	}
	if err := order.RecordFill(qty, script.avg); err != nil {
		return domain.Order{}, err
	}

	f.placed = append(f.placed, order)
	f.orders[order.ExchangeID] = order
	return order, nil
}

func (f *scriptedExchange) GetOrder(_ context.Context, exchangeID string) (domain.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.orders[exchangeID], nil
}

func (f *scriptedExchange) CancelOrder(_ context.Context, exchangeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := f.orders[exchangeID]
	if !o.Status.Terminal() {
		if err := o.Transition(domain.OrderCancelled); err != nil {
			return err
		}
		f.orders[exchangeID] = o
	}
	return nil
}

func (f *scriptedExchange) buyOrders() []domain.Order {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Order
	for _, o := range f.placed {
		if o.Action == domain.ActionBuy {
			out = append(out, o)
		}
	}
	return out
}

type recordingStore struct {
	ports.Storage
	mu        sync.Mutex
	positions []domain.Position
	orders    []domain.Order
}

func (r *recordingStore) SaveOrder(_ context.Context, o domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	return nil
}

func (r *recordingStore) UpdateOrder(_ context.Context, _ domain.Order) error { return nil }

func (r *recordingStore) SavePosition(_ context.Context, p domain.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, p)
	return nil
}

type countingNotifier struct {
	ports.Notifier
	mu         sync.Mutex
	opened     int
	escalated  int
	lastEscMsg string
}

func (n *countingNotifier) TradeOpened(_ context.Context, _ domain.Position) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.opened++
}

func (n *countingNotifier) Escalate(_ context.Context, msg string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.escalated++
	n.lastEscMsg = msg
}

func testExecutor(ex *scriptedExchange, store *recordingStore, notifier *countingNotifier) (*Executor, *risk.Allocator) {
	alloc := risk.NewAllocator(config.RiskConfig{
		MaxPositionPct: 0.05,
		KellyFraction:  0.25,
		Buckets: map[string]float64{
			"directional": 0.50,
			"arbitrage":   0.10,
		},
		MaxVolatility:     0.80,
		MaxCorrelation:    0.95,
		MaxDrawdown:       0.50,
		MaxDailyLossPct:   0.10,
		MinCashReservePct: 0.15,
		MaxPositions:      15,
	})
	alloc.Rebalance(1000, nil, 0)

	cfg := config.TradingConfig{FillPollAttempts: 2, FillPollSeconds: 0.001}
	arbCfg := config.ArbitrageConfig{
		MinNetProfit:   0.02,
		PriceTolerance: 0.01,
		MaxGroupUnits:  100,
	}
	return NewExecutor(ex, store, alloc, notifier, domain.DefaultFeeSchedule(), cfg, arbCfg, slog.Default()), alloc
}

func testIntent() domain.TradeIntent {
	return domain.TradeIntent{
		Market: domain.Market{
			Ticker:      "KXFED-26MAR",
			EventTicker: "KXFED",
			YesAsk:      0.40,
			ExpiresAt:   time.Now().Add(48 * time.Hour),
		},
		Side:        domain.SideYes,
		TargetPrice: 0.40,
		Probability: 0.55,
		Confidence:  0.8,
		Edge:        0.15,
		Strategy:    "directional",
	}
}

func TestExecuteRecordsFilledNotRequested(t *testing.T) {
	ex := newScriptedExchange()
	ex.books["KXFED-26MAR"] = [2]domain.OrderBook{
		{Asks: []domain.BookEntry{{Price: 0.40, Size: 200}}}, {},
	}
	ex.fills["KXFED-26MAR"] = fillScript{qty: 7, avg: 0.39}
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, alloc := testExecutor(ex, store, notifier)

	final, err := e.Execute(context.Background(), testIntent())
	require.NoError(t, err)

	assert.LessOrEqual(t, final.FilledQty, final.Quantity)
	require.Len(t, store.positions, 1)
	pos := store.positions[0]
	assert.Equal(t, 7, pos.Quantity)
	assert.InDelta(t, 0.39, pos.EntryPrice, 1e-9)
	assert.True(t, pos.Tracked)
	assert.True(t, pos.Exit.Defined())
	assert.Equal(t, 1, notifier.opened)

	// Only the filled cost stays committed.
	assert.InDelta(t, 7*0.39, alloc.Committed("directional"), 1e-9)
}

func TestExecuteClampsToBookDepth(t *testing.T) {
	ex := newScriptedExchange()
	ex.books["KXFED-26MAR"] = [2]domain.OrderBook{
		{Asks: []domain.BookEntry{{Price: 0.40, Size: 10}}}, {},
	}
	store := &recordingStore{}
	e, _ := testExecutor(ex, store, &countingNotifier{})

	final, err := e.Execute(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, 10, final.Quantity)
}

func TestExecuteUnfilledRecordsNothing(t *testing.T) {
	ex := newScriptedExchange()
	ex.books["KXFED-26MAR"] = [2]domain.OrderBook{
		{Asks: []domain.BookEntry{{Price: 0.40, Size: 200}}}, {},
	}
	ex.fills["KXFED-26MAR"] = fillScript{qty: 0}
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, alloc := testExecutor(ex, store, notifier)

	final, err := e.Execute(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Zero(t, final.FilledQty)
	assert.Empty(t, store.positions)
	assert.Zero(t, notifier.opened)
	assert.InDelta(t, 0, alloc.Committed("directional"), 1e-9)
}

func TestExecuteCancelledMidPollKeepsPartialFill(t *testing.T) {
	ex := newScriptedExchange()
	ex.books["KXFED-26MAR"] = [2]domain.OrderBook{
		{Asks: []domain.BookEntry{{Price: 0.40, Size: 200}}}, {},
	}
	ex.fills["KXFED-26MAR"] = fillScript{qty: 5, avg: 0.40}
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, alloc := testExecutor(ex, store, notifier)

	// The supervisory deadline hits while the order sits partially filled.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := e.Execute(ctx, testIntent())
	require.Error(t, err)
	assert.Equal(t, 5, final.FilledQty)

	// The five bought contracts are accounted for, not forgotten until
	// the next restart.
	require.Len(t, store.positions, 1)
	assert.Equal(t, 5, store.positions[0].Quantity)
	assert.Equal(t, 1, notifier.opened)
	assert.InDelta(t, 5*0.40, alloc.Committed("directional"), 1e-9)
}

func TestExecuteReleasesOnPlacementFailure(t *testing.T) {
	ex := newScriptedExchange()
	ex.books["KXFED-26MAR"] = [2]domain.OrderBook{
		{Asks: []domain.BookEntry{{Price: 0.40, Size: 200}}}, {},
	}
	ex.failPlace["KXFED-26MAR"] = true
	store := &recordingStore{}
	e, alloc := testExecutor(ex, store, &countingNotifier{})

	_, err := e.Execute(context.Background(), testIntent())
	assert.Error(t, err)
	assert.Empty(t, store.positions)
	assert.InDelta(t, 0, alloc.Committed("directional"), 1e-9)
}

func groupOpportunity(t *testing.T) domain.ArbOpportunity {
	t.Helper()
	legs := []domain.ArbLeg{
		{Ticker: "EV-A", Side: domain.SideYes, Ask: 0.30, Depth: 30},
		{Ticker: "EV-B", Side: domain.SideYes, Ask: 0.30, Depth: 30},
		{Ticker: "EV-C", Side: domain.SideYes, Ask: 0.30, Depth: 30},
	}
	opp, ok := domain.FindGroupArbitrage("EV", legs, domain.DefaultFeeSchedule(), 0.02)
	require.True(t, ok)
	return opp
}

func setGroupBooks(ex *scriptedExchange, ask float64) {
	for _, ticker := range []string{"EV-A", "EV-B", "EV-C"} {
		ex.books[ticker] = [2]domain.OrderBook{
			{Asks: []domain.BookEntry{{Price: ask, Size: 30}}}, {},
		}
	}
}

func TestExecuteGroupAllLegsFill(t *testing.T) {
	ex := newScriptedExchange()
	setGroupBooks(ex, 0.30)
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, _ := testExecutor(ex, store, notifier)

	result, err := e.ExecuteGroup(context.Background(), groupOpportunity(t))
	require.NoError(t, err)

	assert.False(t, result.Aborted)
	require.Len(t, result.Positions, 3)
	for _, pos := range result.Positions {
		assert.Equal(t, result.GroupID, pos.GroupID)
		assert.Equal(t, "arbitrage", pos.Strategy)
		assert.Equal(t, result.Units, pos.Quantity)
	}
	assert.Equal(t, 3, notifier.opened)
	assert.Zero(t, notifier.escalated)
}

func TestExecuteGroupAbortsWhenBooksMove(t *testing.T) {
	ex := newScriptedExchange()
	// Asks moved 3¢ above detection, beyond the 1¢ tolerance.
	setGroupBooks(ex, 0.33)
	store := &recordingStore{}
	e, alloc := testExecutor(ex, store, &countingNotifier{})

	result, err := e.ExecuteGroup(context.Background(), groupOpportunity(t))
	require.NoError(t, err)

	assert.True(t, result.Aborted)
	assert.Empty(t, ex.placed) // zero orders placed
	assert.Empty(t, store.positions)
	assert.InDelta(t, 0, alloc.Committed("arbitrage"), 1e-9)
}

func TestExecuteGroupPartialFlattensFilledLegs(t *testing.T) {
	ex := newScriptedExchange()
	setGroupBooks(ex, 0.30)
	ex.failPlace["EV-B"] = true // leg B never fills
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, _ := testExecutor(ex, store, notifier)

	result, err := e.ExecuteGroup(context.Background(), groupOpportunity(t))
	require.NoError(t, err)

	// Both filled legs flattened, exactly one offsetting order each.
	assert.Equal(t, 2, result.Flattened)
	assert.Empty(t, result.Positions)
	assert.Zero(t, notifier.escalated)

	sells := 0
	for _, o := range ex.placed {
		if o.Action == domain.ActionSell {
			sells++
		}
	}
	assert.Equal(t, 2, sells)
}

func TestExecuteGroupEscalatesOnceWhenFlattenFails(t *testing.T) {
	ex := newScriptedExchange()
	setGroupBooks(ex, 0.30)
	ex.failPlace["EV-B"] = true
	ex.failFlatten = true
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, _ := testExecutor(ex, store, notifier)

	result, err := e.ExecuteGroup(context.Background(), groupOpportunity(t))
	require.NoError(t, err)

	// Two flattens fail, but the operator hears about it exactly once.
	assert.True(t, result.Escalated)
	assert.Equal(t, 1, notifier.escalated)
	assert.Zero(t, result.Flattened)
	assert.Contains(t, notifier.lastEscMsg, "partially filled")

	require.Len(t, ex.buyOrders(), 2) // the two accepted legs
}

func TestExecuteGroupNoFillsRecordsNothing(t *testing.T) {
	ex := newScriptedExchange()
	setGroupBooks(ex, 0.30)
	for _, ticker := range []string{"EV-A", "EV-B", "EV-C"} {
		ex.fills[ticker] = fillScript{qty: 0}
	}
	store := &recordingStore{}
	notifier := &countingNotifier{}
	e, alloc := testExecutor(ex, store, notifier)

	result, err := e.ExecuteGroup(context.Background(), groupOpportunity(t))
	require.NoError(t, err)

	assert.Empty(t, result.Positions)
	assert.Empty(t, store.positions)
	assert.Zero(t, notifier.opened)
	assert.InDelta(t, 0, alloc.Committed("arbitrage"), 1e-9)
}
