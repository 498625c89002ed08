package strategy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// ChainInfo is the chain metadata every leg of a candidate inherits.
type ChainInfo struct {
	Expiration time.Time
	AsOf       time.Time
	Spot       float64
}

// BuildLeg turns a selected quote into an immutable leg. Missing Greeks are
// filled from fallback when one is given; the quote itself is never written.
func BuildLeg(
	q models.Quote,
	symbol string,
	ratio int,
	kind models.OptionType,
	info ChainInfo,
	fallback SensitivityFallback,
) models.Leg {
	var greeks models.Greeks
	if q.Greeks != nil {
		greeks = *q.Greeks
	}
	if fallback != nil && !greeks.Complete() {
		if est, ok := fallback.ComputeSensitivities(q.Strike, kind, info.Expiration, info.Spot); ok {
			greeks = greeks.FillMissing(est)
		}
	}

	contract := q.Symbol
	if contract == "" {
		contract = OptionSymbol(symbol, info.Expiration, kind, q.Strike)
	}

	return models.Leg{
		Symbol:     symbol,
		Contract:   contract,
		Strike:     q.Strike,
		Ratio:      ratio,
		OptionType: kind,
		Greeks:     greeks,
		Bid:        q.Bid,
		Ask:        q.Ask,
		MidPrice:   (q.Bid + q.Ask) / 2,
		Expiration: info.Expiration,
		DTE:        models.DaysToExpiration(info.AsOf, info.Expiration),
	}
}

// OptionSymbol formats an OCC-style contract symbol:
// <root><YYMMDD><C|P><strike*1000 padded to 8 digits>.
func OptionSymbol(underlying string, expiration time.Time, kind models.OptionType, strike float64) string {
	typ := "C"
	if kind == models.OptionTypePut {
		typ = "P"
	}
	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(underlying),
		expiration.UTC().Format("060102"),
		typ,
		int(math.Round(strike*1000)))
}
