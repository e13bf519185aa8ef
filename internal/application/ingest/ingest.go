package ingest

// Package ingest descubre mercados operables: pagina el exchange, aplica
// los filtros de liquidez y expiración, y persiste el snapshot de cada
// candidato antes de entregarlo al pipeline de decisión.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alejandrodnm/kalshibot/config"
	"github.com/alejandrodnm/kalshibot/internal/domain"
	"github.com/alejandrodnm/kalshibot/internal/ports"
)

const pageLimit = 200

// Ingestor implementa la etapa de descubrimiento de mercados.
type Ingestor struct {
	exchange ports.Exchange
	store    ports.Storage
	cfg      config.TradingConfig
	log      *slog.Logger
	excluded map[string]bool
}

// NewIngestor crea la etapa de ingestión.
func NewIngestor(exchange ports.Exchange, store ports.Storage, cfg config.TradingConfig, log *slog.Logger) *Ingestor {
	excluded := make(map[string]bool, len(cfg.ExcludedCategories))
	for _, c := range cfg.ExcludedCategories {
		excluded[strings.ToLower(c)] = true
	}
	return &Ingestor{
		exchange: exchange,
		store:    store,
		cfg:      cfg,
		log:      log,
		excluded: excluded,
	}
}

// FetchCandidates pagina los mercados abiertos del exchange y devuelve los
// que pasan los filtros. Cada candidato queda persistido; un fallo de
// persistencia individual se loguea y no tumba el ciclo.
func (i *Ingestor) FetchCandidates(ctx context.Context) ([]domain.Market, error) {
	var candidates []domain.Market
	var fetched, skipped int
	cursor := ""
	now := time.Now()

	for {
		markets, next, err := i.exchange.ListMarkets(ctx, cursor, pageLimit)
		if err != nil {
			return nil, fmt.Errorf("ingest.FetchCandidates: list markets: %w", err)
		}
		fetched += len(markets)

		for _, m := range markets {
			if !i.eligible(m, now) {
				skipped++
				continue
			}
			if err := i.store.UpsertMarket(ctx, m); err != nil {
				i.log.Warn("market snapshot not persisted", "ticker", m.Ticker, "error", err)
			}
			candidates = append(candidates, m)
		}

		if next == "" {
			break
		}
		cursor = next
	}

	i.log.Info("market scan complete",
		"fetched", fetched,
		"candidates", len(candidates),
		"skipped", skipped)
	return candidates, nil
}

// eligible aplica los filtros estáticos de un mercado: estado, volumen,
// ventana de expiración, categoría y sanidad de precios.
func (i *Ingestor) eligible(m domain.Market, now time.Time) bool {
	if !m.Tradable() {
		return false
	}
	if m.Volume < i.cfg.MinVolume {
		return false
	}
	hours := m.HoursToExpiry(now)
	if hours < i.cfg.MinHoursToExpiry || hours > i.cfg.MaxDaysToExpiry*24 {
		return false
	}
	if i.excluded[strings.ToLower(m.Category)] {
		return false
	}
	// Un libro cuyo YES y NO no suman ~$1 está roto o sin liquidez real.
	if !m.PriceSane(0.05) {
		return false
	}
	return true
}
