package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	decOne     = decimal.NewFromInt(1)
	decHundred = decimal.NewFromInt(100)
)

// FeeSchedule es el modelo de fees del exchange, inyectable para poder
// cambiarlo sin tocar la lógica de arbitraje. Los cálculos usan decimal
// porque el exchange redondea en centavos y el float64 acumula error en
// grupos de varias legs.
type FeeSchedule struct {
	takerRate decimal.Decimal
	makerRate decimal.Decimal
}

// NewFeeSchedule construye un FeeSchedule desde rates en string
// (p.ej. "0.07"). Falla si los rates no parsean o son negativos.
func NewFeeSchedule(takerRate, makerRate string) (FeeSchedule, error) {
	taker, err := decimal.NewFromString(takerRate)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("domain.NewFeeSchedule: taker rate %q: %w", takerRate, err)
	}
	maker, err := decimal.NewFromString(makerRate)
	if err != nil {
		return FeeSchedule{}, fmt.Errorf("domain.NewFeeSchedule: maker rate %q: %w", makerRate, err)
	}
	if taker.IsNegative() || maker.IsNegative() {
		return FeeSchedule{}, fmt.Errorf("domain.NewFeeSchedule: rates must not be negative")
	}
	return FeeSchedule{takerRate: taker, makerRate: maker}, nil
}

// DefaultFeeSchedule devuelve el schedule publicado por Kalshi:
// taker 7%, maker 0.
func DefaultFeeSchedule() FeeSchedule {
	return FeeSchedule{
		takerRate: decimal.NewFromFloat(0.07),
		makerRate: decimal.Zero,
	}
}

// TakerFee devuelve el fee en dólares por tomar qty contratos a price.
// Fórmula del exchange: ceil(rate × qty × p × (1−p)) en centavos; el
// redondeo hacia arriba por operación es lo que hace inviable blanquear
// el fee como un porcentaje del notional.
func (f FeeSchedule) TakerFee(price float64, qty int) float64 {
	return f.fee(f.takerRate, price, qty)
}

// MakerFee devuelve el fee en dólares por qty contratos en reposo.
func (f FeeSchedule) MakerFee(price float64, qty int) float64 {
	return f.fee(f.makerRate, price, qty)
}

func (f FeeSchedule) fee(rate decimal.Decimal, price float64, qty int) float64 {
	if qty <= 0 || price <= 0 || price >= 1 || rate.IsZero() {
		return 0
	}
	p := decimal.NewFromFloat(price)
	raw := rate.
		Mul(decimal.NewFromInt(int64(qty))).
		Mul(p).
		Mul(decOne.Sub(p))
	cents := raw.Mul(decHundred).Ceil()
	return cents.Div(decHundred).InexactFloat64()
}
