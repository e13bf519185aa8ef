package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Storage persiste el estado del bot. Las operaciones de posición son la
// fuente de verdad local; el exchange es la fuente de verdad remota y se
// reconcilia en el arranque.
type Storage interface {
	// UpsertMarket guarda el snapshot más reciente de un mercado.
	UpsertMarket(ctx context.Context, m domain.Market) error

	// SavePosition inserta una posición nueva.
	SavePosition(ctx context.Context, p domain.Position) error

	// UpdatePosition actualiza status, exit y precios de cierre.
	UpdatePosition(ctx context.Context, p domain.Position) error

	// GetPosition devuelve una posición por ID.
	GetPosition(ctx context.Context, id string) (domain.Position, error)

	// OpenPositions devuelve todas las posiciones no cerradas, tracked y
	// untracked.
	OpenPositions(ctx context.Context) ([]domain.Position, error)

	// OpenPositionForMarket devuelve la posición abierta en un mercado,
	// o nil si no hay ninguna.
	OpenPositionForMarket(ctx context.Context, ticker string) (*domain.Position, error)

	// CountPositions devuelve cuántas posiciones hay en total, abiertas o
	// no. Usado para detectar el primer arranque.
	CountPositions(ctx context.Context) (int, error)

	// SaveOrder inserta una orden; UpdateOrder actualiza status y fills.
	SaveOrder(ctx context.Context, o domain.Order) error
	UpdateOrder(ctx context.Context, o domain.Order) error

	// SaveTradeLog inserta el registro inmutable de un round trip cerrado.
	SaveTradeLog(ctx context.Context, t domain.TradeLog) error

	// TradeLogs devuelve los trades cerrados desde la fecha dada.
	TradeLogs(ctx context.Context, since time.Time) ([]domain.TradeLog, error)

	// SaveAnalysis persiste el resultado verbatim de una llamada de
	// forecast, haya producido trade o no.
	SaveAnalysis(ctx context.Context, a domain.MarketAnalysis) error

	// LatestAnalysis devuelve el análisis más reciente de un mercado, o
	// nil si nunca se analizó.
	LatestAnalysis(ctx context.Context, ticker string) (*domain.MarketAnalysis, error)

	// AnalysisCountSince cuenta análisis de un mercado desde la fecha dada.
	AnalysisCountSince(ctx context.Context, ticker string, since time.Time) (int, error)

	// ForecastSpendSince suma el coste de forecast desde la fecha dada.
	ForecastSpendSince(ctx context.Context, since time.Time) (float64, error)

	// RealizedPnLSince suma el P&L realizado desde la fecha dada.
	RealizedPnLSince(ctx context.Context, since time.Time) (float64, error)

	// SaveBalanceSnapshot registra cash y valor de posiciones.
	SaveBalanceSnapshot(ctx context.Context, s domain.BalanceSnapshot) error

	// SavePerformanceSnapshot registra el resultado de un ciclo de
	// evaluación.
	SavePerformanceSnapshot(ctx context.Context, s domain.PerformanceSnapshot) error

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
