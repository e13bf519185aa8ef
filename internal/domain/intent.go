package domain

import "fmt"

// Forecast is the typed result of one model call about a market.
// Probability is always P(YES resolves true).
type Forecast struct {
	Probability float64
	Confidence  float64
	Rationale   string
	CostUSD     float64
	Model       string
	Raw         string // verbatim response body, persisted for audit
}

// Validate rejects forecasts outside the unit ranges before any decision
// logic runs on them.
func (f Forecast) Validate() error {
	if f.Probability < 0 || f.Probability > 1 {
		return fmt.Errorf("domain.Forecast.Validate: probability %.3f outside [0, 1]", f.Probability)
	}
	if f.Confidence < 0 || f.Confidence > 1 {
		return fmt.Errorf("domain.Forecast.Validate: confidence %.3f outside [0, 1]", f.Confidence)
	}
	return nil
}

// TradeIntent is an approved trading decision, ready for sizing and
// execution. It carries everything the executor and the audit trail need.
type TradeIntent struct {
	Market      Market
	Side        Side
	TargetPrice float64 // ask at decision time
	Probability float64 // forecast probability for the chosen side
	Confidence  float64
	Edge        float64 // |forecast − market implied|
	Rationale   string
	Strategy    string // capital bucket
}
