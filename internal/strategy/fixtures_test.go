package strategy

import (
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

var (
	testAsOf       = time.Date(2025, time.January, 2, 15, 0, 0, 0, time.UTC)
	testExpiration = time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)
)

func fixedClock() time.Time { return testAsOf }

func quote(strike, bid, ask, delta float64) models.Quote {
	return models.Quote{
		Strike: strike,
		Bid:    bid,
		Ask:    ask,
		Greeks: &models.Greeks{Delta: delta, Gamma: 0.02, Theta: -0.03, Vega: 0.10, Rho: 0.01},
	}
}

func noGreeks(strike, bid, ask float64) models.Quote {
	return models.Quote{Strike: strike, Bid: bid, Ask: ask}
}

// condorChain is a symmetric chain around a 100 spot whose conservative condor
// sells the 105/95 strikes and buys the 110/90 wings.
func condorChain() *models.Chain {
	return &models.Chain{
		Symbol:     "SPY",
		SpotPrice:  100,
		Expiration: testExpiration,
		Calls: []models.Quote{
			quote(105, 2.0, 2.05, 0.20),
			quote(110, 0.5, 0.55, 0.10),
		},
		Puts: []models.Quote{
			quote(95, 2.0, 2.05, -0.20),
			quote(90, 0.5, 0.55, -0.10),
		},
	}
}

func straddleChain() *models.Chain {
	call := quote(100, 3.0, 3.1, 0.52)
	call.Greeks.Gamma = 0.05
	call.Greeks.Theta = -0.04
	put := quote(100, 2.9, 3.0, -0.48)
	put.Greeks.Gamma = 0.05
	put.Greeks.Theta = -0.04
	return &models.Chain{
		Symbol:     "SPY",
		SpotPrice:  100,
		Expiration: testExpiration,
		Calls:      []models.Quote{call, quote(110, 0.5, 0.55, 0.15)},
		Puts:       []models.Quote{put, quote(90, 0.5, 0.55, -0.15)},
	}
}

func bullCallChain() *models.Chain {
	return &models.Chain{
		Symbol:     "SPY",
		SpotPrice:  100,
		Expiration: testExpiration,
		Calls: []models.Quote{
			quote(95, 6.8, 7.0, 0.65),
			quote(105, 2.5, 2.6, 0.30),
		},
	}
}

func newTestEngine(config ...Config) *Engine {
	return NewEngine(nil, config...).WithClock(fixedClock)
}

// fakeFallback returns fixed sensitivities and records how often it was asked.
type fakeFallback struct {
	greeks models.Greeks
	calls  int
}

func (f *fakeFallback) ComputeSensitivities(float64, models.OptionType, time.Time, float64) (models.Greeks, bool) {
	f.calls++
	return f.greeks, true
}
