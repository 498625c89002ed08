// Package mock provides a deterministic synthetic chain provider for local
// runs and tests.
package mock

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/pricing"
	"github.com/eddiefleurent/options_strategist/internal/util"
)

const (
	tick            = 0.01
	defaultSpot     = 450.0
	defaultVol      = 0.18
	defaultRate     = 0.04
	defaultStep     = 5.0
	defaultStrikes  = 20   // strikes on each side of spot
	defaultSpreadPc = 0.02 // full bid/ask spread as a fraction of theoretical value
)

// Provider generates option chains from a Black-Scholes surface with a flat
// volatility. Output depends only on its settings, the request and the clock.
type Provider struct {
	mu    sync.RWMutex
	spots map[string]float64
	now   func() time.Time

	Volatility float64
	Rate       float64
	StrikeStep float64
	Strikes    int
	SpreadPct  float64
}

// Compile-time interface compliance check
var _ broker.ChainProvider = (*Provider)(nil)

// NewDataProvider returns a provider with SPY-like defaults.
func NewDataProvider() *Provider {
	return &Provider{
		spots:      map[string]float64{},
		now:        time.Now,
		Volatility: defaultVol,
		Rate:       defaultRate,
		StrikeStep: defaultStep,
		Strikes:    defaultStrikes,
		SpreadPct:  defaultSpreadPc,
	}
}

// WithSpot pins the underlying price for symbol.
func (m *Provider) WithSpot(symbol string, spot float64) *Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spots[strings.ToUpper(symbol)] = spot
	return m
}

// WithClock overrides the time source used for days to expiration.
func (m *Provider) WithClock(now func() time.Time) *Provider {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *Provider) spot(symbol string) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.spots[symbol]; ok {
		return s
	}
	return defaultSpot
}

// GetChain builds a chain of evenly spaced strikes around spot. The free tier
// returns the same surface; delay has no meaning for synthetic data.
func (m *Provider) GetChain(ctx context.Context, symbol string, expiration time.Time, _ broker.Tier) (*models.Chain, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrMalformedChain)
	}
	if expiration.IsZero() {
		return nil, fmt.Errorf("%w: expiration is required", models.ErrMalformedChain)
	}

	spot := m.spot(symbol)
	step := m.StrikeStep
	if step <= 0 {
		step = defaultStep
	}
	n := m.Strikes
	if n <= 0 {
		n = defaultStrikes
	}

	dte := models.DaysToExpiration(m.now(), expiration)
	// Clamp to minimum 1 day to keep the surface finite
	T := math.Max(1, float64(dte)) / 365.0

	chain := &models.Chain{
		Symbol:     symbol,
		SpotPrice:  spot,
		Expiration: expiration.UTC().Truncate(24 * time.Hour),
		Calls:      make([]models.Quote, 0, 2*n+1),
		Puts:       make([]models.Quote, 0, 2*n+1),
	}

	atm := math.Round(spot/step) * step
	for i := -n; i <= n; i++ {
		strike := atm + float64(i)*step
		if strike <= 0 {
			continue
		}
		chain.Calls = append(chain.Calls, m.quote(symbol, expiration, models.OptionTypeCall, spot, strike, T))
		chain.Puts = append(chain.Puts, m.quote(symbol, expiration, models.OptionTypePut, spot, strike, T))
	}
	return chain, nil
}

func (m *Provider) quote(symbol string, exp time.Time, kind models.OptionType, spot, strike, T float64) models.Quote {
	isCall := kind == models.OptionTypeCall
	value := pricing.Price(isCall, spot, strike, T, m.Rate, m.Volatility)
	g := pricing.Greeks(isCall, spot, strike, T, m.Rate, m.Volatility)

	half := math.Max(tick, value*m.SpreadPct/2)
	bid := math.Max(0, util.RoundToTick(value-half, tick))
	ask := math.Max(bid+tick, util.RoundToTick(value+half, tick))

	// Liquidity thins out with distance from the money
	moneyness := math.Abs(strike-spot) / spot
	oi := int64(math.Round(50000 * math.Exp(-20*moneyness)))
	iv := m.Volatility

	typ := "C"
	if !isCall {
		typ = "P"
	}
	return models.Quote{
		Symbol:            fmt.Sprintf("%s%s%s%08d", symbol, exp.UTC().Format("060102"), typ, int(math.Round(strike*1000))),
		Strike:            strike,
		Bid:               bid,
		Ask:               ask,
		Volume:            oi / 10,
		OpenInterest:      oi,
		ImpliedVolatility: &iv,
		Greeks:            &g,
	}
}

// GetExpirations lists the next eight weekly Friday expirations.
func (m *Provider) GetExpirations(ctx context.Context, _ string, _ broker.Tier) ([]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	today := m.now().UTC().Truncate(24 * time.Hour)
	days := (int(time.Friday) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	first := today.AddDate(0, 0, days)

	out := make([]time.Time, 0, 8)
	for i := 0; i < 8; i++ {
		out = append(out, first.AddDate(0, 0, 7*i))
	}
	return out, nil
}
