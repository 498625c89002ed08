package strategy

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// IronCondorName is the display name of the neutral-outlook strategy.
const IronCondorName = "Iron Condor"

// maxCondorNetDelta bounds |net delta| for a condor to count as neutral.
const maxCondorNetDelta = 0.10

// IronCondorParams are the strike placement parameters for one risk profile.
type IronCondorParams struct {
	TargetDelta float64 // |delta| of both short legs
	WingWidth   float64 // distance from short to long strike, in dollars
}

// IronCondorParamsFor returns the placement parameters for a risk profile.
func IronCondorParamsFor(profile models.RiskProfile) IronCondorParams {
	if profile == models.RiskAggressive {
		return IronCondorParams{TargetDelta: 0.30, WingWidth: 10}
	}
	return IronCondorParams{TargetDelta: 0.20, WingWidth: 5}
}

func (e *Engine) ironCondor(r *run) (models.Strategy, bool, error) {
	p := IronCondorParamsFor(r.profile)
	log := r.log.WithField("strategy", IronCondorName)

	shortCall, ok, err := r.sel.byDelta(models.OptionTypeCall, p.TargetDelta)
	if err != nil || !ok {
		log.Debug("no short call candidate")
		return models.Strategy{}, false, err
	}
	longCall, ok := FindByTargetStrike(r.chain, models.OptionTypeCall, shortCall.Strike+p.WingWidth)
	if !ok {
		log.Debug("no long call wing candidate")
		return models.Strategy{}, false, nil
	}
	shortPut, ok, err := r.sel.byDelta(models.OptionTypePut, -p.TargetDelta)
	if err != nil || !ok {
		log.Debug("no short put candidate")
		return models.Strategy{}, false, err
	}
	longPut, ok := FindByTargetStrike(r.chain, models.OptionTypePut, shortPut.Strike-p.WingWidth)
	if !ok {
		log.Debug("no long put wing candidate")
		return models.Strategy{}, false, nil
	}

	legs := []models.Leg{
		r.leg(e, shortCall, -1, models.OptionTypeCall),
		r.leg(e, longCall, 1, models.OptionTypeCall),
		r.leg(e, shortPut, -1, models.OptionTypePut),
		r.leg(e, longPut, 1, models.OptionTypePut),
	}
	if !IsLiquid(legs, e.config.MaxSpreadPct) {
		log.Debug("rejected: bid/ask spread too wide")
		return models.Strategy{}, false, nil
	}

	netCredit := shortCall.Bid + shortPut.Bid - longCall.Ask - longPut.Ask
	if netCredit < p.WingWidth/3 {
		log.WithField("net_credit", netCredit).Debug("rejected: credit below a third of wing width")
		return models.Strategy{}, false, nil
	}
	maxLoss := p.WingWidth - netCredit
	net := NetGreeks(legs)
	if math.Abs(net.Delta) >= maxCondorNetDelta {
		log.WithField("net_delta", net.Delta).Debug("rejected: position not delta neutral")
		return models.Strategy{}, false, nil
	}

	if dte := legs[0].DTE; dte < e.config.MinAdvisoryDTE || dte > e.config.MaxAdvisoryDTE {
		log.WithField("dte", dte).Infof("advisory: DTE outside preferred %d-%d day window",
			e.config.MinAdvisoryDTE, e.config.MaxAdvisoryDTE)
	}

	pop := e.config.Probability.IronCondor(p.WingWidth, netCredit)
	metrics := buildMetrics(legs, models.FiniteProfit(netCredit), maxLoss, pop,
		[]float64{shortCall.Strike + netCredit, shortPut.Strike - netCredit})

	return models.Strategy{
		Name: IronCondorName,
		Description: fmt.Sprintf("Sell %.2f call / buy %.2f call, sell %.2f put / buy %.2f put for a %.2f credit; profits while %s stays between the short strikes",
			shortCall.Strike, longCall.Strike, shortPut.Strike, longPut.Strike, netCredit, r.symbol),
		Legs:    legs,
		Metrics: metrics,
	}, true, nil
}
