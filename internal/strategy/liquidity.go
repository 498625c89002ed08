package strategy

import (
	"github.com/montanaflynn/stats"

	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/util"
)

// DefaultMaxSpreadPct is the widest relative bid/ask spread a leg may carry.
const DefaultMaxSpreadPct = 0.10

// IsLiquid reports whether every leg has a positive mid price and a relative
// spread of at most maxSpreadPct.
func IsLiquid(legs []models.Leg, maxSpreadPct float64) bool {
	for _, leg := range legs {
		// Written positively so NaN quotes fail
		if !(leg.MidPrice > 0) || !(leg.RelativeSpread() <= maxSpreadPct) {
			return false
		}
	}
	return true
}

// LiquidityScore is 1 minus the mean relative spread of the legs, in [0,1].
func LiquidityScore(legs []models.Leg) float64 {
	spreads := make([]float64, 0, len(legs))
	for _, leg := range legs {
		if leg.MidPrice <= 0 {
			return 0
		}
		spreads = append(spreads, leg.RelativeSpread())
	}
	mean, err := stats.Mean(spreads)
	if err != nil {
		return 0
	}
	return util.Clamp(1-mean, 0, 1)
}
