package strategy

import (
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/util"
)

// buildMetrics fills the fields every algorithm derives the same way.
func buildMetrics(legs []models.Leg, maxProfit models.Profit, maxLoss, pop float64, breakevens []float64) models.Metrics {
	net := NetGreeks(legs)
	m := models.Metrics{
		MaxProfit:           maxProfit,
		MaxLoss:             maxLoss,
		ProbabilityOfProfit: util.Clamp(pop, 0, 1),
		Breakevens:          breakevens,
		NetGreeks:           net,
		ThetaDecayPerDay:    net.Theta * models.SharesPerContract,
		LiquidityScore:      LiquidityScore(legs),
	}
	if amount, ok := maxProfit.Amount(); ok && maxLoss > 0 {
		rr := amount / maxLoss
		m.RiskReward = &rr
	}
	return m
}
