package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Console implementa ports.Notifier escribiendo a stdout. Es el único
// canal de salida del bot: las escalaciones también terminan aquí, con un
// prefijo que el operador puede grepear.
type Console struct {
	out io.Writer
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// TradeOpened anuncia una posición recién abierta.
func (c *Console) TradeOpened(_ context.Context, p domain.Position) {
	tracked := ""
	if !p.Tracked {
		tracked = " (untracked)"
	}
	fmt.Fprintf(c.out, "[%s] OPEN  %s %s ×%d @ $%.2f  strategy=%s conf=%.2f%s\n",
		timestamp(), p.Ticker, p.Side, p.Quantity, p.EntryPrice, p.Strategy, p.Confidence, tracked)
	if p.Exit.Defined() {
		fmt.Fprintf(c.out, "         exits: stop $%.2f | target $%.2f | max hold %s\n",
			p.Exit.StopLoss, p.Exit.TakeProfit, p.Exit.MaxHold)
	}
}

// TradeClosed anuncia un round trip cerrado con su P&L.
func (c *Console) TradeClosed(_ context.Context, t domain.TradeLog) {
	sign := "+"
	if t.RealizedPnL < 0 {
		sign = "-"
	}
	fmt.Fprintf(c.out, "[%s] CLOSE %s %s ×%d  $%.2f → $%.2f  pnl %s$%.2f  reason=%s\n",
		timestamp(), t.Ticker, t.Side, t.Quantity, t.EntryPrice, t.ExitPrice,
		sign, abs(t.RealizedPnL), t.ExitReason)
}

// PerformanceReport imprime el snapshot de evaluación con el desglose por
// estrategia en tabla.
func (c *Console) PerformanceReport(_ context.Context, s domain.PerformanceSnapshot) {
	fmt.Fprintf(c.out, "\n[%s] PERFORMANCE — %d trades, win rate %.0f%%\n",
		timestamp(), s.Trades, s.WinRate*100)
	fmt.Fprintf(c.out, "  realized $%.2f | unrealized $%.2f | open positions %d\n",
		s.RealizedPnL, s.UnrealizedPnL, s.OpenPositions)

	if len(s.ByStrategy) == 0 {
		fmt.Fprintln(c.out)
		return
	}

	names := make([]string, 0, len(s.ByStrategy))
	for name := range s.ByStrategy {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(c.out)
	table.Header("Strategy", "Trades", "Wins", "Win%", "PnL")
	for _, name := range names {
		perf := s.ByStrategy[name]
		table.Append(
			name,
			fmt.Sprintf("%d", perf.Trades),
			fmt.Sprintf("%d", perf.Wins),
			fmt.Sprintf("%.0f%%", perf.WinRate()*100),
			fmt.Sprintf("$%.2f", perf.RealizedPnL),
		)
	}
	table.Render()
	fmt.Fprintln(c.out)
}

// Escalate señala una condición que requiere intervención manual.
func (c *Console) Escalate(_ context.Context, msg string, err error) {
	if err != nil {
		fmt.Fprintf(c.out, "[%s] !! ESCALATION: %s: %v\n", timestamp(), msg, err)
		return
	}
	fmt.Fprintf(c.out, "[%s] !! ESCALATION: %s\n", timestamp(), msg)
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
