package strategy

import "math"

// roundEpsilon absorbs float64 representation error so a price already
// on a tick boundary does not get pushed a full tick by ceiling rounding
const roundEpsilon = 1e-9

// RoundToTick rounds a price to the pair's tick size. up=true rounds
// toward higher prices (used when buying to close a short, to bias
// toward fill certainty), up=false rounds down.
func RoundToTick(price, tick float64, up bool) float64 {
	if tick <= 0 {
		return price
	}
	steps := price / tick
	if up {
		steps = math.Ceil(steps - roundEpsilon)
	} else {
		steps = math.Floor(steps + roundEpsilon)
	}
	return steps * tick
}

// FloorToLot rounds a size down to the pair's lot size. Sizing always
// rounds down so the resulting order never exceeds the computed budget.
func FloorToLot(size, lot float64) float64 {
	if lot <= 0 {
		return size
	}
	return math.Floor(size/lot+roundEpsilon) * lot
}
