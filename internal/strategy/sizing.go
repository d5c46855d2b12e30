package strategy

import (
	"math"

	"github.com/ajitpratap0/alphapilot/internal/exchange"
)

// leveragedEntrySize converts available margin into a base-asset order
// size: fraction of balance × leverage as notional, divided by price,
// floored to the lot. Returns 0 when the inputs cannot produce a
// positive size; callers treat 0 as no-action, not as an error.
func leveragedEntrySize(available, fraction, leverage, price, lot float64) float64 {
	if available <= 0 || price <= 0 {
		return 0
	}
	if leverage <= 0 {
		leverage = 1
	}
	notional := available * fraction * leverage
	size := FloorToLot(notional/price, lot)
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return 0
	}
	return size
}

// marketablePrice rounds a limit price to the tick in the crossing
// direction: buys round up, sells round down, so an IOC limit at this
// price behaves like a market order with bounded slippage
func marketablePrice(price, tick float64, side exchange.OrderSide) float64 {
	return RoundToTick(price, tick, side == exchange.OrderSideBuy)
}
