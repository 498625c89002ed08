package strategy

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// BullCallSpreadName is the display name of the bullish-outlook strategy.
const BullCallSpreadName = "Bull Call Spread"

const (
	bullCallBuyDelta  = 0.65
	bullCallSellDelta = 0.30
	// maxBullCallDebitRatio caps the debit as a fraction of spread width
	maxBullCallDebitRatio = 0.5
)

func (e *Engine) bullCallSpread(r *run) (models.Strategy, bool, error) {
	log := r.log.WithField("strategy", BullCallSpreadName)

	buy, ok, err := r.sel.byDelta(models.OptionTypeCall, bullCallBuyDelta)
	if err != nil || !ok {
		log.Debug("no long call candidate")
		return models.Strategy{}, false, err
	}
	sell, ok, err := r.sel.byDelta(models.OptionTypeCall, bullCallSellDelta)
	if err != nil || !ok {
		log.Debug("no short call candidate")
		return models.Strategy{}, false, err
	}
	if buy.Strike >= sell.Strike {
		log.WithFields(logrus.Fields{
			"buy_strike":  buy.Strike,
			"sell_strike": sell.Strike,
		}).Debug("rejected: long strike not below short strike")
		return models.Strategy{}, false, nil
	}

	legs := []models.Leg{
		r.leg(e, buy, 1, models.OptionTypeCall),
		r.leg(e, sell, -1, models.OptionTypeCall),
	}
	if !IsLiquid(legs, e.config.MaxSpreadPct) {
		log.Debug("rejected: bid/ask spread too wide")
		return models.Strategy{}, false, nil
	}

	netDebit := buy.Ask - sell.Bid
	spreadWidth := sell.Strike - buy.Strike
	if netDebit >= maxBullCallDebitRatio*spreadWidth {
		log.WithField("net_debit", netDebit).Debug("rejected: debit not below half the spread width")
		return models.Strategy{}, false, nil
	}

	pop := e.config.Probability.BullCallSpread(spreadWidth, netDebit)
	metrics := buildMetrics(legs, models.FiniteProfit(spreadWidth-netDebit), netDebit, pop,
		[]float64{buy.Strike + netDebit})

	return models.Strategy{
		Name: BullCallSpreadName,
		Description: fmt.Sprintf("Buy the %.2f call and sell the %.2f call for a %.2f debit; profits as %s rises toward %.2f",
			buy.Strike, sell.Strike, netDebit, r.symbol, sell.Strike),
		Legs:    legs,
		Metrics: metrics,
	}, true, nil
}
