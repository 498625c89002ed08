// Package pricing estimates option sensitivities when the upstream chain
// omits them.
package pricing

import (
	"math"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

const (
	sqrt2Pi      = 2.5066282746310002
	daysPerYear  = 365.0
	minYearsLeft = 1.0 / (daysPerYear * 24)
)

// BlackScholes estimates Greeks from a flat volatility and risk-free rate.
// It satisfies strategy.SensitivityFallback.
type BlackScholes struct {
	Now        func() time.Time
	Volatility float64 // annualised, as a decimal
	Rate       float64 // annual risk-free rate
}

// NewBlackScholes returns an estimator using the wall clock.
func NewBlackScholes(volatility, rate float64) *BlackScholes {
	return &BlackScholes{Volatility: volatility, Rate: rate, Now: time.Now}
}

// ComputeSensitivities returns Black-Scholes Greeks for one contract.
// Theta is per calendar day, vega per volatility point and rho per rate point.
// ok is false when the inputs cannot produce a finite estimate.
func (b *BlackScholes) ComputeSensitivities(
	strike float64,
	kind models.OptionType,
	expiration time.Time,
	spot float64,
) (models.Greeks, bool) {
	if b == nil || !(b.Volatility > 0) || !(strike > 0) || !(spot > 0) || expiration.IsZero() {
		return models.Greeks{}, false
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	T := expiration.Sub(now()).Hours() / 24 / daysPerYear
	if T < minYearsLeft {
		T = minYearsLeft
	}

	g := Greeks(kind == models.OptionTypeCall, spot, strike, T, b.Rate, b.Volatility)
	for _, v := range []float64{g.Delta, g.Gamma, g.Theta, g.Vega, g.Rho} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Greeks{}, false
		}
	}
	return g, true
}

// Greeks evaluates the closed-form sensitivities of a European option.
// T is in years; sigma and r are annual decimals.
func Greeks(isCall bool, S, K, T, r, sigma float64) models.Greeks {
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * T)

	g := models.Greeks{
		Gamma: normPDF(d1) / (S * sigma * sqrtT),
		Vega:  S * normPDF(d1) * sqrtT / 100,
	}
	decay := -S * normPDF(d1) * sigma / (2 * sqrtT)
	if isCall {
		g.Delta = normCDF(d1)
		g.Theta = (decay - r*K*disc*normCDF(d2)) / daysPerYear
		g.Rho = K * T * disc * normCDF(d2) / 100
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (decay + r*K*disc*normCDF(-d2)) / daysPerYear
		g.Rho = -K * T * disc * normCDF(-d2) / 100
	}
	return g
}

// Price is the Black-Scholes value of a European option. Non-positive T or
// sigma yield intrinsic value.
func Price(isCall bool, S, K, T, r, sigma float64) float64 {
	if T <= 0 || sigma <= 0 {
		if isCall {
			return math.Max(0, S-K)
		}
		return math.Max(0, K-S)
	}
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+0.5*sigma*sigma)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	if isCall {
		return S*normCDF(d1) - K*math.Exp(-r*T)*normCDF(d2)
	}
	return K*math.Exp(-r*T)*normCDF(-d2) - S*normCDF(-d1)
}

func normPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / sqrt2Pi
}

func normCDF(x float64) float64 {
	return 0.5 * math.Erfc(-x/math.Sqrt2)
}
