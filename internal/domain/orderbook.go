package domain

// OrderBook representa el libro de órdenes de un lado de un mercado.
type OrderBook struct {
	Ticker string
	Side   Side
	Bids   []BookEntry // ordenados mayor a menor precio
	Asks   []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook. Size en contratos.
type BookEntry struct {
	Price float64
	Size  int
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// Spread devuelve el spread del book (ask - bid).
func (ob OrderBook) Spread() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return ask - bid
}

// AskDepth devuelve los contratos disponibles en el best ask.
func (ob OrderBook) AskDepth() int {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Size
}

// BidDepth devuelve los contratos disponibles en el best bid.
func (ob OrderBook) BidDepth() int {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Size
}

// VolumeWeightedAsk calcula el precio medio ponderado por volumen para
// comprar units contratos recorriendo los asks del book. Devuelve 0 si el
// book no tiene profundidad suficiente.
func VolumeWeightedAsk(asks []BookEntry, units int) float64 {
	if len(asks) == 0 || units <= 0 {
		return 0
	}
	remaining := units
	totalCost := 0.0

	for _, ask := range asks {
		if ask.Size >= remaining {
			totalCost += float64(remaining) * ask.Price
			remaining = 0
			break
		}
		totalCost += float64(ask.Size) * ask.Price
		remaining -= ask.Size
	}

	if remaining > 0 {
		return 0
	}
	return totalCost / float64(units)
}
