package strategy

import (
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/util"
)

// NetGreeks sums ratio-weighted leg sensitivities. Non-finite values count as zero.
func NetGreeks(legs []models.Leg) models.Greeks {
	var net models.Greeks
	for _, leg := range legs {
		r := float64(leg.Ratio)
		net.Delta += r * util.FiniteOrZero(leg.Greeks.Delta)
		net.Gamma += r * util.FiniteOrZero(leg.Greeks.Gamma)
		net.Theta += r * util.FiniteOrZero(leg.Greeks.Theta)
		net.Vega += r * util.FiniteOrZero(leg.Greeks.Vega)
		net.Rho += r * util.FiniteOrZero(leg.Greeks.Rho)
	}
	return net
}
