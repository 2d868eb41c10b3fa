package analyzer

import (
	"github.com/kilolend/lvm/internal/types"
)

// Price bands for the volatility label, in USD per KAIA.
const (
	VOLATILITY_HIGH_BELOW   = 0.10
	VOLATILITY_MEDIUM_BELOW = 0.15
	VOLATILITY_LOW_BELOW    = 0.20
)

// CalculateVolatility labels market volatility from the current KAIA price level.
// This is a static price-band classifier, not a variance estimate: cheaper KAIA has
// historically coincided with sharper moves, so lower bands are labelled more volatile.
func CalculateVolatility(price float64) types.VolatilityLabel {
	switch {
	case price < VOLATILITY_HIGH_BELOW:
		return types.VolatilityHigh
	case price < VOLATILITY_MEDIUM_BELOW:
		return types.VolatilityMedium
	case price < VOLATILITY_LOW_BELOW:
		return types.VolatilityLow
	default:
		return types.VolatilityVeryLow
	}
}
