package models

import (
	"fmt"
	"strings"
	"time"
)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// ParseOptionType accepts "call"/"put" and the single-letter forms "c"/"p".
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "call", "c":
		return OptionTypeCall, nil
	case "put", "p":
		return OptionTypePut, nil
	default:
		return "", fmt.Errorf("unknown option type %q", s)
	}
}

// Greeks holds the price sensitivities of a single contract.
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
	Rho   float64 `json:"rho"`
}

// Complete reports whether every sensitivity is non-zero.
func (g Greeks) Complete() bool {
	return g.Delta != 0 && g.Gamma != 0 && g.Theta != 0 && g.Vega != 0 && g.Rho != 0
}

// FillMissing returns a copy of g where each zero field is taken from other.
func (g Greeks) FillMissing(other Greeks) Greeks {
	if g.Delta == 0 {
		g.Delta = other.Delta
	}
	if g.Gamma == 0 {
		g.Gamma = other.Gamma
	}
	if g.Theta == 0 {
		g.Theta = other.Theta
	}
	if g.Vega == 0 {
		g.Vega = other.Vega
	}
	if g.Rho == 0 {
		g.Rho = other.Rho
	}
	return g
}

// Quote is one normalized option contract from a chain snapshot.
// A nil Greeks means the upstream supplied no delta for the contract.
type Quote struct {
	Greeks            *Greeks  `json:"greeks,omitempty"`
	ImpliedVolatility *float64 `json:"implied_volatility,omitempty"`
	Symbol            string   `json:"symbol,omitempty"`
	Strike            float64  `json:"strike"`
	Bid               float64  `json:"bid"`
	Ask               float64  `json:"ask"`
	Volume            int64    `json:"volume"`
	OpenInterest      int64    `json:"open_interest"`
}

// HasDelta reports whether the quote carries a delta value.
func (q Quote) HasDelta() bool {
	return q.Greeks != nil
}

// WithGreeks returns a copy of q carrying g. The receiver is left untouched.
func (q Quote) WithGreeks(g Greeks) Quote {
	q.Greeks = &g
	return q
}

// Chain is an immutable option chain snapshot for one expiration.
type Chain struct {
	Expiration time.Time `json:"expiration"`
	Symbol     string    `json:"symbol"`
	Calls      []Quote   `json:"calls"`
	Puts       []Quote   `json:"puts"`
	SpotPrice  float64   `json:"spot_price"`
}

// Side returns the quotes of the requested option type.
func (c *Chain) Side(kind OptionType) []Quote {
	if c == nil {
		return nil
	}
	if kind == OptionTypePut {
		return c.Puts
	}
	return c.Calls
}

// IsEmpty reports whether the chain has no contracts on either side.
func (c *Chain) IsEmpty() bool {
	return c == nil || (len(c.Calls) == 0 && len(c.Puts) == 0)
}

// DaysToExpiration counts calendar days from asOf to expiration.
// Expired contracts report 0.
func DaysToExpiration(asOf, expiration time.Time) int {
	f := asOf.UTC().Truncate(24 * time.Hour)
	t := expiration.UTC().Truncate(24 * time.Hour)
	d := int(t.Sub(f).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}
