package risk

// allocator.go — capital allocation with fractional Kelly and strategy
// buckets. The Allocator owns CapitalState: every read and write happens
// under its mutex, and sizing commits capital under the same lock so two
// concurrent intents can never jointly overcommit a bucket.

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// ErrRiskBlocked marks a sizing request rejected by a risk gate or by
// capital limits. It blocks opening trades only; closing flows never
// consult the allocator.
var ErrRiskBlocked = errors.New("risk: blocked")

// Holding is one open position as the allocator sees it, refreshed on
// every Rebalance.
type Holding struct {
	Ticker      string
	EventTicker string
	Category    string
	Bucket      string
	Cost        float64 // entry dollars
	Value       float64 // mark-to-market dollars
	Mark        float64 // current contract price
}

// Allocator owns the capital state: total equity, per-bucket commitments
// and the inputs to the hard risk gates.
type Allocator struct {
	mu  sync.Mutex
	cfg config.RiskConfig

	cash      float64
	total     float64 // cash + Σ holding values, tracked and untracked
	committed map[string]float64
	holdings  []Holding
	dailyLoss float64 // realized losses today, positive number
	peak      float64 // peak equity for the drawdown gate
}

// NewAllocator creates an Allocator with the given limits. Capital state
// starts empty; the startup sync seeds it with the first Rebalance.
func NewAllocator(cfg config.RiskConfig) *Allocator {
	return &Allocator{
		cfg:       cfg,
		committed: make(map[string]float64),
	}
}

// Rebalance refreshes the capital state from ground truth: exchange cash,
// current holdings (tracked and untracked) and today's realized P&L.
func (a *Allocator) Rebalance(cash float64, holdings []Holding, realizedToday float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cash = cash
	a.holdings = holdings
	a.total = cash
	committed := make(map[string]float64, len(a.committed))
	for _, h := range holdings {
		a.total += h.Value
		bucket := h.Bucket
		if bucket == "" {
			bucket = "directional"
		}
		committed[bucket] += h.Cost
	}
	a.committed = committed

	a.dailyLoss = 0
	if realizedToday < 0 {
		a.dailyLoss = -realizedToday
	}
	if a.total > a.peak {
		a.peak = a.total
	}
}

// Size runs the hard gates and returns the contract count for an intent,
// committing the corresponding capital to the bucket. The caller must
// Release whatever does not fill.
func (a *Allocator) Size(intent domain.TradeIntent, bucket string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.gateCheck(intent); err != nil {
		return 0, err
	}

	price := intent.TargetPrice
	if price <= 0 || price >= 1 {
		return 0, fmt.Errorf("risk.Size: %w: target price %.2f outside (0, 1)", ErrRiskBlocked, price)
	}

	dollars := a.kellyDollars(intent.Probability, intent.Confidence, price)
	dollars = math.Min(dollars, a.cfg.MaxPositionPct*a.total)
	dollars = math.Min(dollars, a.bucketRemainingLocked(bucket))
	dollars = math.Min(dollars, a.spendableCashLocked())

	qty := int(math.Floor(dollars / price))
	if qty < 1 {
		return 0, fmt.Errorf("risk.Size: %w: no capital for %s in bucket %s", ErrRiskBlocked, intent.Market.Ticker, bucket)
	}

	a.committed[bucket] += float64(qty) * price
	a.cash -= float64(qty) * price
	return qty, nil
}

// GroupBudget returns the dollars available for one arbitrage group and
// commits them. Release returns the unused remainder after execution.
func (a *Allocator) GroupBudget() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.portfolioGatesLocked(); err != nil {
		return 0, err
	}
	dollars := math.Min(a.bucketRemainingLocked("arbitrage"), a.spendableCashLocked())
	if dollars <= 0 {
		return 0, fmt.Errorf("risk.GroupBudget: %w: arbitrage bucket exhausted", ErrRiskBlocked)
	}
	a.committed["arbitrage"] += dollars
	a.cash -= dollars
	return dollars, nil
}

// Release returns uncommitted capital to a bucket, clamping at zero.
func (a *Allocator) Release(bucket string, dollars float64) {
	if dollars <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.committed[bucket] -= dollars
	if a.committed[bucket] < 0 {
		a.committed[bucket] = 0
	}
	a.cash += dollars
}

// Total returns current total equity.
func (a *Allocator) Total() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.total
}

// Committed returns the dollars committed to a bucket.
func (a *Allocator) Committed(bucket string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed[bucket]
}

// CommittedTotal returns the sum across buckets, for the invariant
// Σ committed ≤ total.
func (a *Allocator) CommittedTotal() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	var sum float64
	for _, c := range a.committed {
		sum += c
	}
	return sum
}

// kellyDollars computes the fractional-Kelly stake for a binary contract
// bought at price with forecast probability p. b is the net odds of the
// contract paying $1.
func (a *Allocator) kellyDollars(p, confidence, price float64) float64 {
	b := (1 - price) / price
	f := (p*b - (1 - p)) / b
	if f <= 0 {
		return 0
	}
	// Confidence discounts the stake further: a 0.6-confidence forecast
	// deserves less than its raw edge suggests.
	f *= a.cfg.KellyFraction * confidence
	return f * a.total
}

// bucketRemainingLocked returns the uncommitted capital of a bucket.
// Caller holds mu.
func (a *Allocator) bucketRemainingLocked(bucket string) float64 {
	share, ok := a.cfg.Buckets[bucket]
	if !ok {
		return 0
	}
	remaining := share*a.total - a.committed[bucket]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// spendableCashLocked returns cash above the reserve floor. Caller holds mu.
func (a *Allocator) spendableCashLocked() float64 {
	floor := a.cfg.MinCashReservePct * a.total
	spendable := a.cash - floor
	if spendable < 0 {
		return 0
	}
	return spendable
}
