package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Forecaster produce una estimación de probabilidad para un mercado a
// partir de un modelo externo. Analyze devuelve ErrUnparseable del adapter
// si la respuesta no se puede reparar a JSON válido; el caller lo trata
// como abstención, nunca como trade.
type Forecaster interface {
	// Analyze pide una estimación completa del mercado.
	Analyze(ctx context.Context, m domain.Market) (domain.Forecast, error)

	// QuickCheck es la variante barata para el fast path de mercados con
	// odds extremas cerca de expiración: prompt corto, misma salida.
	QuickCheck(ctx context.Context, m domain.Market) (domain.Forecast, error)
}
