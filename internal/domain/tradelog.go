package domain

import "time"

// TradeLog is the immutable record of one completed round trip. Rows are
// written exclusively by the position tracker when a tracked position
// closes; untracked positions never produce one.
type TradeLog struct {
	ID          int64
	PositionID  string
	Ticker      string
	Side        Side
	Strategy    string
	Quantity    int
	EntryPrice  float64
	ExitPrice   float64
	Fees        float64
	RealizedPnL float64
	ExitReason  ExitReason
	Slippage    float64 // exit fill price − trigger price
	OpenedAt    time.Time
	ClosedAt    time.Time
}

// Won returns true for a profitable round trip.
func (t TradeLog) Won() bool {
	return t.RealizedPnL > 0
}

// MarketAnalysis is the audit record of one forecast call, stored verbatim
// whether or not a trade resulted. The cooldown and per-market cap queries
// run against these rows.
type MarketAnalysis struct {
	ID          int64
	Ticker      string
	Action      string // buy_yes | buy_no | abstain | unparseable
	Probability float64
	Confidence  float64
	Edge        float64
	CostUSD     float64
	Model       string
	RawResponse string
	CreatedAt   time.Time
}

// BalanceSnapshot records cash and position value at one point in time.
type BalanceSnapshot struct {
	ID             int64
	Cash           float64
	PositionsValue float64
	Total          float64
	At             time.Time
}

// StrategyPerf aggregates results for one capital bucket.
type StrategyPerf struct {
	Trades      int
	Wins        int
	RealizedPnL float64
}

// WinRate returns the fraction of winning trades, 0 for no trades.
func (s StrategyPerf) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}

// PerformanceSnapshot is the output of one evaluation cycle.
type PerformanceSnapshot struct {
	At            time.Time
	RealizedPnL   float64
	UnrealizedPnL float64
	Trades        int
	Wins          int
	WinRate       float64
	OpenPositions int
	ByStrategy    map[string]StrategyPerf
}
