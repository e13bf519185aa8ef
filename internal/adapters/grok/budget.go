package grok

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBudgetExhausted indica que el gasto de forecast del día alcanzó el
// límite. El stage de decisión lo trata como stop del ciclo, no como
// fallo.
var ErrBudgetExhausted = errors.New("grok: daily forecast budget exhausted")

// Budget acota el gasto diario agregado en llamadas al modelo. Lo
// comparten todos los workers del pool de decisión, así que todo el
// estado vive detrás del mutex. El día rueda en UTC.
type Budget struct {
	mu    sync.Mutex
	limit float64
	spent float64
	day   time.Time
	now   func() time.Time
}

// NewBudget crea un Budget con el límite diario dado en dólares.
func NewBudget(limit float64) *Budget {
	b := &Budget{limit: limit, now: time.Now}
	b.day = dayOf(b.now())
	return b
}

// Seed inicializa el gasto de hoy desde lo ya persistido, para que un
// reinicio no resetee el presupuesto.
func (b *Budget) Seed(spent float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	b.spent = spent
}

// Reserve comprueba que quepa una llamada más con el coste estimado dado.
// No descuenta nada: el coste real entra por Record.
func (b *Budget) Reserve(estimate float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	if b.spent+estimate > b.limit {
		return fmt.Errorf("%w: spent %.2f of %.2f", ErrBudgetExhausted, b.spent, b.limit)
	}
	return nil
}

// Record suma el coste real de una llamada completada.
func (b *Budget) Record(cost float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	b.spent += cost
}

// SpentToday devuelve el gasto acumulado del día.
func (b *Budget) SpentToday() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.roll()
	return b.spent
}

// roll resetea el acumulado al cambiar de día. Caller holds mu.
func (b *Budget) roll() {
	today := dayOf(b.now())
	if !today.Equal(b.day) {
		b.day = today
		b.spent = 0
	}
}

func dayOf(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
