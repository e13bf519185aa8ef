package domain

import (
	"math"
	"time"
)

// MarketStatus es el estado del mercado según el exchange.
type MarketStatus string

const (
	MarketActive  MarketStatus = "active"
	MarketClosed  MarketStatus = "closed"
	MarketSettled MarketStatus = "settled"
)

// Market representa un mercado de predicción binario en Kalshi.
// Los precios se manejan en dólares (0.01–0.99); el wire format en
// centavos se convierte en el adapter.
type Market struct {
	Ticker      string
	EventTicker string // agrupa mercados mutuamente excluyentes
	Title       string
	Category    string
	YesBid      float64
	YesAsk      float64
	NoBid       float64
	NoAsk       float64
	LastPrice   float64 // último precio YES
	Volume      float64 // contratos negociados
	Liquidity   float64
	ExpiresAt   time.Time
	Status      MarketStatus
	Result      string // "yes" | "no" | "" si no está resuelto
}

// Tradable devuelve true si el mercado acepta órdenes.
func (m Market) Tradable() bool {
	return m.Status == MarketActive
}

// Resolved devuelve true si el exchange ya reportó resultado.
func (m Market) Resolved() bool {
	return m.Status == MarketSettled || m.Result != ""
}

// HoursToExpiry devuelve las horas hasta la expiración del mercado.
// Devuelve 0 si ya expiró o si ExpiresAt no está definido.
func (m Market) HoursToExpiry(now time.Time) float64 {
	if m.ExpiresAt.IsZero() {
		return 0
	}
	h := m.ExpiresAt.Sub(now).Hours()
	if h < 0 {
		return 0
	}
	return h
}

// ImpliedYes devuelve la probabilidad implícita del lado YES (midpoint).
func (m Market) ImpliedYes() float64 {
	if m.YesBid == 0 && m.YesAsk == 0 {
		return m.LastPrice
	}
	return (m.YesBid + m.YesAsk) / 2
}

// AskFor devuelve el mejor ask para el lado dado.
func (m Market) AskFor(side Side) float64 {
	if side == SideNo {
		return m.NoAsk
	}
	return m.YesAsk
}

// BidFor devuelve el mejor bid para el lado dado.
func (m Market) BidFor(side Side) float64 {
	if side == SideNo {
		return m.NoBid
	}
	return m.YesBid
}

// MarkFor devuelve el precio de valoración (midpoint) para el lado dado.
func (m Market) MarkFor(side Side) float64 {
	var bid, ask float64
	if side == SideNo {
		bid, ask = m.NoBid, m.NoAsk
	} else {
		bid, ask = m.YesBid, m.YesAsk
	}
	if bid == 0 && ask == 0 {
		if side == SideNo {
			return 1 - m.LastPrice
		}
		return m.LastPrice
	}
	return (bid + ask) / 2
}

// PriceSane comprueba la coherencia YES/NO: |yes + no − 1| dentro de la
// tolerancia. Un mercado fuera de tolerancia tiene datos corruptos o un
// book roto y se descarta en ingestion.
func (m Market) PriceSane(tolerance float64) bool {
	yes := m.ImpliedYes()
	no := (m.NoBid + m.NoAsk) / 2
	if yes == 0 || no == 0 {
		return false
	}
	return math.Abs(yes+no-1) <= tolerance
}

// Balanced devuelve true si ambos lados cotizan cerca de 50¢ (sin señal
// direccional que justifique gastar una llamada de forecast).
func (m Market) Balanced(band float64) bool {
	yes := m.ImpliedYes()
	return math.Abs(yes-0.5) <= band
}

// YesSpread devuelve el spread del lado YES.
func (m Market) YesSpread() float64 {
	if m.YesBid == 0 || m.YesAsk == 0 {
		return 0
	}
	return m.YesAsk - m.YesBid
}

// AtExtreme devuelve true si el precio YES está clavado en un extremo
// (≤1¢ o ≥99¢): el mercado está efectivamente resuelto aunque el exchange
// aún no haya cambiado el status.
func (m Market) AtExtreme() bool {
	p := m.ImpliedYes()
	return p > 0 && (p <= 0.01 || p >= 0.99)
}

// SettlementFor devuelve el valor de liquidación por contrato para el
// lado dado. Sin resultado reportado, la resolución por precio solo
// aplica en los extremos (≤1¢ / ≥99¢); un mercado cerrado a mitad de
// rango se valora al mark actual, nunca a un 0/1 inventado.
func (m Market) SettlementFor(side Side) float64 {
	switch m.Result {
	case "yes":
		if side == SideYes {
			return 1
		}
		return 0
	case "no":
		if side == SideNo {
			return 1
		}
		return 0
	}
	p := m.ImpliedYes()
	switch {
	case p >= 0.99:
		if side == SideYes {
			return 1
		}
		return 0
	case p > 0 && p <= 0.01:
		if side == SideNo {
			return 1
		}
		return 0
	}
	return m.MarkFor(side)
}

// TruncateTitle devuelve el título truncado a maxLen caracteres, con el
// ticker como fallback si está vacío.
func TruncateTitle(title, ticker string, maxLen int) string {
	t := title
	if t == "" {
		t = ticker
	}
	if len(t) > maxLen {
		t = t[:maxLen-3] + "..."
	}
	return t
}
