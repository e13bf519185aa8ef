package risk

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// gateCheck runs the hard limits against one candidate intent. A breach
// returns ErrRiskBlocked wrapped with the gate that fired. Caller holds mu.
func (a *Allocator) gateCheck(intent domain.TradeIntent) error {
	if err := a.portfolioGatesLocked(); err != nil {
		return err
	}

	if corr := a.correlationLocked(intent.Market); corr >= a.cfg.MaxCorrelation {
		return fmt.Errorf("risk: %w: correlation %.2f with held positions exceeds %.2f",
			ErrRiskBlocked, corr, a.cfg.MaxCorrelation)
	}

	if vol := a.volatilityWithLocked(intent); vol > a.cfg.MaxVolatility {
		return fmt.Errorf("risk: %w: portfolio volatility %.2f exceeds %.2f",
			ErrRiskBlocked, vol, a.cfg.MaxVolatility)
	}
	return nil
}

// portfolioGatesLocked checks the gates that do not depend on the
// candidate: position count, daily loss and drawdown. Caller holds mu.
func (a *Allocator) portfolioGatesLocked() error {
	if len(a.holdings) >= a.cfg.MaxPositions {
		return fmt.Errorf("risk: %w: %d open positions at limit %d",
			ErrRiskBlocked, len(a.holdings), a.cfg.MaxPositions)
	}
	if a.total > 0 && a.dailyLoss >= a.cfg.MaxDailyLossPct*a.total {
		return fmt.Errorf("risk: %w: daily loss $%.2f at limit %.0f%% of equity",
			ErrRiskBlocked, a.dailyLoss, a.cfg.MaxDailyLossPct*100)
	}
	if a.peak > 0 {
		drawdown := (a.peak - a.total) / a.peak
		if drawdown >= a.cfg.MaxDrawdown {
			return fmt.Errorf("risk: %w: drawdown %.0f%% from peak $%.2f at limit %.0f%%",
				ErrRiskBlocked, drawdown*100, a.peak, a.cfg.MaxDrawdown*100)
		}
	}
	return nil
}

// correlationLocked approximates the correlation of a candidate with the
// current book. A position in the same event is fully correlated; beyond
// that the proxy is the share of holdings in the candidate's category.
// Caller holds mu.
func (a *Allocator) correlationLocked(m domain.Market) float64 {
	if len(a.holdings) == 0 {
		return 0
	}
	sameCategory := 0
	for _, h := range a.holdings {
		if m.EventTicker != "" && h.EventTicker == m.EventTicker {
			return 1.0
		}
		if m.Category != "" && h.Category == m.Category {
			sameCategory++
		}
	}
	return float64(sameCategory) / float64(len(a.holdings))
}

// volatilityWithLocked estimates portfolio volatility as per-contract
// volatility weighted by position value over total equity, candidate
// included at a nominal max-position stake. A binary contract at price p
// has stdev sqrt(p(1-p)); the 2x factor normalizes the 50/50 contract to
// 1.0, and cash in the denominator dampens the whole book. Caller holds mu.
func (a *Allocator) volatilityWithLocked(intent domain.TradeIntent) float64 {
	if a.total <= 0 {
		return 0
	}
	var weighted float64
	for _, h := range a.holdings {
		if h.Value <= 0 {
			continue
		}
		weighted += h.Value * contractVol(clamp01(h.Mark))
	}
	stake := a.cfg.MaxPositionPct * a.total
	weighted += stake * contractVol(intent.TargetPrice)
	return weighted / a.total
}

func contractVol(price float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	return 2 * math.Sqrt(price*(1-price))
}

func clamp01(v float64) float64 {
	if v < 0.01 {
		return 0.01
	}
	if v > 0.99 {
		return 0.99
	}
	return v
}
