package domain

import (
	"fmt"
	"time"
)

// OrderAction distinguishes opening buys from closing sells.
type OrderAction string

const (
	ActionBuy  OrderAction = "buy"
	ActionSell OrderAction = "sell"
)

// OrderStatus is the lifecycle state of an order. pending means created
// locally but not yet acknowledged by the exchange.
type OrderStatus string

const (
	OrderPending       OrderStatus = "pending"
	OrderPlaced        OrderStatus = "placed"
	OrderPartialFilled OrderStatus = "partially_filled"
	OrderFilled        OrderStatus = "filled"
	OrderFailed        OrderStatus = "failed"
	OrderCancelled     OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:       {OrderPlaced, OrderFailed},
	OrderPlaced:        {OrderPartialFilled, OrderFilled, OrderCancelled, OrderFailed},
	OrderPartialFilled: {OrderFilled, OrderCancelled},
	OrderFilled:        {},
	OrderFailed:        {},
	OrderCancelled:     {},
}

// Terminal returns true for states with no outgoing transitions.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is one order sent to the exchange. ID is the local client order id
// (UUID); ExchangeID is assigned by the exchange on acceptance.
type Order struct {
	ID           string
	ExchangeID   string
	Ticker       string
	Side         Side
	Action       OrderAction
	Price        float64 // limit price in dollars
	Quantity     int     // contracts requested
	FilledQty    int     // contracts actually filled, FilledQty ≤ Quantity
	AvgFillPrice float64
	Status       OrderStatus
	GroupID      string // set for multi-leg group members
	CreatedAt    time.Time
}

// Transition moves the order to a new status, rejecting moves the lifecycle
// does not allow.
func (o *Order) Transition(to OrderStatus) error {
	for _, allowed := range orderTransitions[o.Status] {
		if allowed == to {
			o.Status = to
			return nil
		}
	}
	return fmt.Errorf("domain.Order.Transition: %s → %s not allowed for order %s", o.Status, to, o.ID)
}

// RecordFill updates fill accounting and derives the resulting status.
func (o *Order) RecordFill(qty int, avgPrice float64) error {
	if qty < 0 || qty > o.Quantity {
		return fmt.Errorf("domain.Order.RecordFill: fill %d outside [0, %d] for order %s", qty, o.Quantity, o.ID)
	}
	o.FilledQty = qty
	if avgPrice > 0 {
		o.AvgFillPrice = avgPrice
	}
	switch {
	case qty == o.Quantity:
		return o.Transition(OrderFilled)
	case qty > 0 && o.Status == OrderPlaced:
		return o.Transition(OrderPartialFilled)
	}
	return nil
}

// Remaining returns the unfilled contract count.
func (o Order) Remaining() int {
	return o.Quantity - o.FilledQty
}

// FilledCost returns the dollars actually spent on fills.
func (o Order) FilledCost() float64 {
	price := o.AvgFillPrice
	if price == 0 {
		price = o.Price
	}
	return price * float64(o.FilledQty)
}
