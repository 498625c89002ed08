package strategy

import (
	"fmt"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// LongStraddleName is the display name of the volatile-outlook strategy.
const LongStraddleName = "Long Straddle"

const (
	straddleCallDelta = 0.50
	straddlePutDelta  = -0.50
	// maxStraddleDebitPct caps the debit as a fraction of spot
	maxStraddleDebitPct = 0.10
)

func (e *Engine) longStraddle(r *run) (models.Strategy, bool, error) {
	log := r.log.WithField("strategy", LongStraddleName)

	call, ok, err := r.sel.byDelta(models.OptionTypeCall, straddleCallDelta)
	if err != nil || !ok {
		log.Debug("no at-the-money call candidate")
		return models.Strategy{}, false, err
	}
	put, ok, err := r.sel.byDelta(models.OptionTypePut, straddlePutDelta)
	if err != nil || !ok {
		log.Debug("no at-the-money put candidate")
		return models.Strategy{}, false, err
	}

	legs := []models.Leg{
		r.leg(e, call, 1, models.OptionTypeCall),
		r.leg(e, put, 1, models.OptionTypePut),
	}
	if !IsLiquid(legs, e.config.MaxSpreadPct) {
		log.Debug("rejected: bid/ask spread too wide")
		return models.Strategy{}, false, nil
	}

	netDebit := call.Ask + put.Ask
	if netDebit > maxStraddleDebitPct*r.info.Spot {
		log.WithField("net_debit", netDebit).Debug("rejected: debit above 10% of spot")
		return models.Strategy{}, false, nil
	}

	net := NetGreeks(legs)
	if math.Abs(net.Gamma) < 2*math.Abs(net.Theta) {
		log.WithFields(logrus.Fields{
			"net_gamma": net.Gamma,
			"net_theta": net.Theta,
		}).Info("advisory: theta decay outweighs gamma exposure")
	}

	pop := e.config.Probability.LongStraddle(netDebit, r.info.Spot)
	metrics := buildMetrics(legs, models.UnboundedProfit(), netDebit, pop,
		[]float64{call.Strike + netDebit, put.Strike - netDebit})

	return models.Strategy{
		Name: LongStraddleName,
		Description: fmt.Sprintf("Buy the %.2f call and %.2f put for a %.2f debit; profits on a large move in %s either way",
			call.Strike, put.Strike, netDebit, r.symbol),
		Legs:    legs,
		Metrics: metrics,
	}, true, nil
}
