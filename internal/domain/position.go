package domain

import (
	"fmt"
	"time"
)

// Side es el lado de un contrato binario.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite devuelve el lado contrario.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// PositionStatus is the lifecycle state of a position. Transitions are
// monotonic: open → exiting → closed. A position that settles without an
// exit order may jump open → closed directly.
type PositionStatus string

const (
	PositionOpen    PositionStatus = "open"
	PositionExiting PositionStatus = "exiting"
	PositionClosed  PositionStatus = "closed"
)

var positionTransitions = map[PositionStatus][]PositionStatus{
	PositionOpen:    {PositionExiting, PositionClosed},
	PositionExiting: {PositionClosed},
	PositionClosed:  {},
}

// ExitReason records which rule closed a position.
type ExitReason string

const (
	ExitResolved        ExitReason = "resolved"
	ExitStopLoss        ExitReason = "stop_loss"
	ExitTakeProfit      ExitReason = "take_profit"
	ExitMaxHold         ExitReason = "max_hold"
	ExitConfidenceDrift ExitReason = "confidence_drift"
	ExitSync            ExitReason = "sync"
)

// ExitStrategy holds the per-position exit levels computed at entry time.
type ExitStrategy struct {
	StopLoss        float64       // exit when mark drops to or below this price
	TakeProfit      float64       // exit when mark rises to or above this price
	MaxHold         time.Duration // exit when held longer than this
	ConfidenceDelta float64       // exit when confidence drops by more than this
}

// Defined returns true if the strategy has usable levels. Positions imported
// from the exchange (untracked) or created before exit descriptors existed
// carry a zero value and get defaults from NewExitStrategy.
func (e ExitStrategy) Defined() bool {
	return e.StopLoss > 0 && e.TakeProfit > 0 && e.MaxHold > 0
}

// Position is one holding of contracts on a single market side.
type Position struct {
	ID          string
	Ticker      string
	EventTicker string
	Side        Side
	EntryPrice  float64
	Quantity    int // contracts actually filled, never the requested amount
	OpenedAt    time.Time
	Strategy    string // capital bucket: directional | arbitrage | marketmake
	Status      PositionStatus
	Tracked     bool // false for positions imported from the exchange
	Rationale   string
	Confidence  float64 // forecast confidence at entry (0 for untracked)
	GroupID     string  // shared by all legs of a multi-leg group
	Exit        ExitStrategy
	ExitReason  ExitReason
	ClosePrice  float64
	ClosedAt    *time.Time
}

// Transition moves the position to a new status, rejecting any move the
// lifecycle does not allow.
func (p *Position) Transition(to PositionStatus) error {
	for _, allowed := range positionTransitions[p.Status] {
		if allowed == to {
			p.Status = to
			return nil
		}
	}
	return fmt.Errorf("domain.Position.Transition: %s → %s not allowed for position %s", p.Status, to, p.ID)
}

// CostBasis returns the dollars paid to open the position.
func (p Position) CostBasis() float64 {
	return p.EntryPrice * float64(p.Quantity)
}

// UnrealizedPnL marks the position against the given price. Both YES and NO
// holdings are long their own contract: price up is profit.
func (p Position) UnrealizedPnL(mark float64) float64 {
	return (mark - p.EntryPrice) * float64(p.Quantity)
}

// MarketValue returns the current value at the given mark.
func (p Position) MarketValue(mark float64) float64 {
	return mark * float64(p.Quantity)
}

// HeldFor returns how long the position has been open.
func (p Position) HeldFor(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

// Stop-loss bands by entry confidence. Higher confidence takes a tighter
// stop and a wider profit target.
const (
	stopLossTight   = 0.05
	stopLossDefault = 0.07
	stopLossWide    = 0.10

	takeProfitWide    = 0.30
	takeProfitDefault = 0.20
	takeProfitNarrow  = 0.15

	minHoldHours = 6
	maxHoldHours = 72

	defaultConfidenceDelta = 0.15
)

// NewExitStrategy computes exit levels from entry price, forecast confidence
// and time to expiry. Volatility widens the stop so book noise does not shake
// the position out.
func NewExitStrategy(entryPrice, confidence, volatility float64, timeToExpiry time.Duration) ExitStrategy {
	entryPrice = clampPrice(entryPrice)
	if confidence <= 0 {
		confidence = 0.7
	}
	if volatility <= 0 {
		volatility = 0.2
	}

	var stopPct, profitPct float64
	switch {
	case confidence >= 0.8:
		stopPct, profitPct = stopLossTight, takeProfitWide
	case confidence >= 0.6:
		stopPct, profitPct = stopLossDefault, takeProfitDefault
	default:
		stopPct, profitPct = stopLossWide, takeProfitNarrow
	}

	volAdj := 1.0 + (volatility - 0.2)
	if volAdj > 1.5 {
		volAdj = 1.5
	}
	if volAdj < 1.0 {
		volAdj = 1.0
	}
	stopPct *= volAdj

	hold := timeToExpiry / 2
	if hold > maxHoldHours*time.Hour {
		hold = maxHoldHours * time.Hour
	}
	if hold < minHoldHours*time.Hour {
		hold = minHoldHours * time.Hour
	}

	return ExitStrategy{
		StopLoss:        clampPrice(entryPrice * (1 - stopPct)),
		TakeProfit:      clampPrice(entryPrice * (1 + profitPct)),
		MaxHold:         hold,
		ConfidenceDelta: defaultConfidenceDelta,
	}
}

func clampPrice(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
