package ports

import (
	"context"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

// Notifier presenta la actividad del bot al operador.
type Notifier interface {
	// TradeOpened anuncia una posición recién abierta.
	TradeOpened(ctx context.Context, p domain.Position)

	// TradeClosed anuncia un round trip cerrado con su P&L.
	TradeClosed(ctx context.Context, t domain.TradeLog)

	// PerformanceReport imprime el snapshot de evaluación.
	PerformanceReport(ctx context.Context, s domain.PerformanceSnapshot)

	// Escalate señala una condición que requiere intervención manual,
	// como una leg de arbitraje que no se pudo aplanar.
	Escalate(ctx context.Context, msg string, err error)
}
