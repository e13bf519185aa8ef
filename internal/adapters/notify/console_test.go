package notify_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alejandrodnm/kalshibot/internal/adapters/notify"
	"github.com/alejandrodnm/kalshibot/internal/domain"
)

func TestConsoleTradeOpened(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.TradeOpened(context.Background(), domain.Position{
		Ticker:     "KXFED-26MAR",
		Side:       domain.SideYes,
		Quantity:   50,
		EntryPrice: 0.42,
		Strategy:   "directional",
		Confidence: 0.7,
		Tracked:    true,
		Exit: domain.ExitStrategy{
			StopLoss: 0.39, TakeProfit: 0.50, MaxHold: 24 * time.Hour,
		},
	})

	out := buf.String()
	assert.Contains(t, out, "OPEN")
	assert.Contains(t, out, "KXFED-26MAR")
	assert.Contains(t, out, "stop $0.39")
	assert.NotContains(t, out, "untracked")
}

func TestConsoleTradeOpenedUntracked(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.TradeOpened(context.Background(), domain.Position{Ticker: "A", Side: domain.SideNo, Quantity: 1})
	assert.Contains(t, buf.String(), "untracked")
}

func TestConsoleTradeClosed(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.TradeClosed(context.Background(), domain.TradeLog{
		Ticker: "A", Side: domain.SideYes, Quantity: 50,
		EntryPrice: 0.40, ExitPrice: 0.50, RealizedPnL: 5.0,
		ExitReason: domain.ExitTakeProfit,
	})

	out := buf.String()
	assert.Contains(t, out, "CLOSE")
	assert.Contains(t, out, "+$5.00")
	assert.Contains(t, out, "take_profit")
}

func TestConsolePerformanceReport(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.PerformanceReport(context.Background(), domain.PerformanceSnapshot{
		Trades: 4, Wins: 3, WinRate: 0.75, RealizedPnL: 12.5, OpenPositions: 2,
		ByStrategy: map[string]domain.StrategyPerf{
			"directional": {Trades: 3, Wins: 2, RealizedPnL: 10.0},
			"arbitrage":   {Trades: 1, Wins: 1, RealizedPnL: 2.5},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "PERFORMANCE")
	assert.Contains(t, out, "directional")
	assert.Contains(t, out, "arbitrage")
}

func TestConsoleEscalate(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf)

	n.Escalate(context.Background(), "flatten failed for leg KXEV-A", errors.New("timeout"))
	out := buf.String()
	assert.Contains(t, out, "ESCALATION")
	assert.Contains(t, out, "KXEV-A")
	assert.Contains(t, out, "timeout")
}
