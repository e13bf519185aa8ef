package domain

import "math"

// ArbLeg es una compra a mercado dentro de un grupo de arbitraje.
type ArbLeg struct {
	Ticker string
	Side   Side
	Ask    float64 // mejor ask observado
	Depth  int     // contratos disponibles en ese ask
}

// ArbOpportunity es un grupo de legs cuya suma de asks queda por debajo de
// $1.00: comprar un contrato de cada leg garantiza $1 en liquidación porque
// exactamente un resultado del grupo paga.
type ArbOpportunity struct {
	EventTicker  string
	Legs         []ArbLeg
	SumAsk       float64
	GrossPerUnit float64 // 1.0 − SumAsk
	FeePerUnit   float64 // suma de taker fees por unidad, leg a leg
	NetPerUnit   float64 // GrossPerUnit − FeePerUnit
}

// FindGroupArbitrage evalúa un conjunto de legs mutuamente excluyentes.
// Sirve tanto para el par YES+NO de un mercado individual como para los
// mercados YES de un evento multi-outcome. Devuelve false si el neto por
// unidad, después de fees por leg, no alcanza minNet.
func FindGroupArbitrage(eventTicker string, legs []ArbLeg, fees FeeSchedule, minNet float64) (ArbOpportunity, bool) {
	if len(legs) < 2 {
		return ArbOpportunity{}, false
	}

	var sum, feeTotal float64
	for _, leg := range legs {
		if leg.Ask <= 0 || leg.Depth <= 0 {
			// Un book vacío invalida el grupo entero: no se puede
			// garantizar la cesta completa.
			return ArbOpportunity{}, false
		}
		sum += leg.Ask
		feeTotal += fees.TakerFee(leg.Ask, 1)
	}

	opp := ArbOpportunity{
		EventTicker:  eventTicker,
		Legs:         legs,
		SumAsk:       sum,
		GrossPerUnit: 1.0 - sum,
		FeePerUnit:   feeTotal,
		NetPerUnit:   1.0 - sum - feeTotal,
	}
	if opp.NetPerUnit < minNet {
		return ArbOpportunity{}, false
	}
	return opp, true
}

// PairLegs construye las dos legs YES+NO de un mercado individual para
// evaluarlas como grupo de arbitraje.
func PairLegs(m Market, yesDepth, noDepth int) []ArbLeg {
	return []ArbLeg{
		{Ticker: m.Ticker, Side: SideYes, Ask: m.YesAsk, Depth: yesDepth},
		{Ticker: m.Ticker, Side: SideNo, Ask: m.NoAsk, Depth: noDepth},
	}
}

// MaxUnits devuelve cuántas unidades completas del grupo caben dentro del
// capital disponible, la profundidad mínima entre legs y el cap de unidades.
func (o ArbOpportunity) MaxUnits(capital float64, unitCap int) int {
	if len(o.Legs) == 0 {
		return 0
	}
	minDepth := o.Legs[0].Depth
	for _, leg := range o.Legs[1:] {
		if leg.Depth < minDepth {
			minDepth = leg.Depth
		}
	}

	costPerUnit := o.SumAsk + o.FeePerUnit
	if costPerUnit <= 0 {
		return 0
	}
	byCapital := int(math.Floor(capital / costPerUnit))

	units := minDepth
	if byCapital < units {
		units = byCapital
	}
	if unitCap > 0 && unitCap < units {
		units = unitCap
	}
	if units < 0 {
		return 0
	}
	return units
}

// Verify recalcula el grupo contra asks frescos y confirma que sigue
// cerrando con el neto mínimo. freshAsks va indexado por posición de leg.
// Una leg que se haya movido más de tolerance por encima del ask original
// invalida el grupo aunque la suma aún cierre: el book está en movimiento
// y el fill simultáneo no es fiable.
func (o ArbOpportunity) Verify(freshAsks []float64, fees FeeSchedule, tolerance, minNet float64) bool {
	if len(freshAsks) != len(o.Legs) {
		return false
	}
	var sum, feeTotal float64
	for i, leg := range o.Legs {
		fresh := freshAsks[i]
		if fresh <= 0 {
			return false
		}
		if fresh-leg.Ask > tolerance {
			return false
		}
		sum += fresh
		feeTotal += fees.TakerFee(fresh, 1)
	}
	return 1.0-sum-feeTotal >= minNet
}
