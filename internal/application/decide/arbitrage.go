package decide

// arbitrage.go — scanner de grupos de arbitraje. Opera sobre los candidatos
// que ya pasaron ingestion: busca (a) pares YES+NO de un mismo mercado y
// (b) eventos multi-outcome donde la suma de asks YES queda bajo $1.00
// neto de fees. No toca el forecaster: el arbitraje es puramente mecánico.

import (
	"context"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// ArbScanner detecta oportunidades de arbitraje entre los candidatos del
// ciclo.
type ArbScanner struct {
	exchange ports.Exchange
	fees     domain.FeeSchedule
	cfg      config.ArbitrageConfig
	log      *slog.Logger
}

// NewArbScanner crea el scanner de arbitraje.
func NewArbScanner(exchange ports.Exchange, fees domain.FeeSchedule, cfg config.ArbitrageConfig, log *slog.Logger) *ArbScanner {
	return &ArbScanner{exchange: exchange, fees: fees, cfg: cfg, log: log}
}

// Scan devuelve las oportunidades detectadas entre los mercados dados,
// ordenadas por neto descendente. Un error de book invalida el grupo
// afectado, nunca el scan completo.
func (s *ArbScanner) Scan(ctx context.Context, markets []domain.Market) []domain.ArbOpportunity {
	var opps []domain.ArbOpportunity

	books := make(map[string][2]domain.OrderBook, len(markets))
	for _, m := range markets {
		yes, no, err := s.exchange.GetOrderBook(ctx, m.Ticker)
		if err != nil {
			s.log.Warn("orderbook fetch failed", "market", m.Ticker, "error", err)
			continue
		}
		books[m.Ticker] = [2]domain.OrderBook{yes, no}

		// Par YES+NO del propio mercado.
		legs := domain.PairLegs(m, yes.AskDepth(), no.AskDepth())
		legs[0].Ask = yes.BestAsk()
		legs[1].Ask = no.BestAsk()
		if opp, ok := domain.FindGroupArbitrage(m.EventTicker, legs, s.fees, s.cfg.MinNetProfit); ok {
			opps = append(opps, opp)
		}
	}

	// Grupos multi-outcome: todos los mercados de un evento, comprando YES
	// en cada outcome. Exactamente uno paga $1.
	byEvent := make(map[string][]domain.Market)
	for _, m := range markets {
		if m.EventTicker == "" {
			continue
		}
		byEvent[m.EventTicker] = append(byEvent[m.EventTicker], m)
	}
	for event, group := range byEvent {
		if len(group) < 2 {
			continue
		}
		legs := make([]domain.ArbLeg, 0, len(group))
		complete := true
		for _, m := range group {
			book, ok := books[m.Ticker]
			if !ok {
				complete = false
				break
			}
			legs = append(legs, domain.ArbLeg{
				Ticker: m.Ticker,
				Side:   domain.SideYes,
				Ask:    book[0].BestAsk(),
				Depth:  book[0].AskDepth(),
			})
		}
		if !complete {
			continue
		}
		if opp, ok := domain.FindGroupArbitrage(event, legs, s.fees, s.cfg.MinNetProfit); ok {
			opps = append(opps, opp)
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		return opps[i].NetPerUnit > opps[j].NetPerUnit
	})
	if len(opps) > 0 {
		s.log.Info("arbitrage scan complete", "opportunities", len(opps))
	}
	return opps
}
