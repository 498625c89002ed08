package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SharesPerContract is the equity multiplier of one standard option contract.
const SharesPerContract = 100.0

var (
	// ErrMalformedChain is returned when a chain snapshot lacks required top-level data
	ErrMalformedChain = errors.New("malformed option chain")
	// ErrUnknownOutlook is returned when an outlook string does not name a supported variant
	ErrUnknownOutlook = errors.New("unknown market outlook")
	// ErrUnknownRiskProfile is returned when a risk profile string is not recognised
	ErrUnknownRiskProfile = errors.New("unknown risk profile")
)

// Outlook is the market view a recommendation is built for.
type Outlook string

const (
	// OutlookNeutral expects the underlying to stay range-bound
	OutlookNeutral Outlook = "neutral"
	// OutlookVolatile expects a large move in either direction
	OutlookVolatile Outlook = "volatile"
	// OutlookBullish expects the underlying to rise
	OutlookBullish Outlook = "bullish"
	// OutlookBearish expects the underlying to fall
	OutlookBearish Outlook = "bearish"
)

// Valid returns true if the Outlook is one of the defined constants
func (o Outlook) Valid() bool {
	switch o {
	case OutlookNeutral, OutlookVolatile, OutlookBullish, OutlookBearish:
		return true
	default:
		return false
	}
}

// ParseOutlook converts user input into an Outlook.
func ParseOutlook(s string) (Outlook, error) {
	o := Outlook(strings.ToLower(strings.TrimSpace(s)))
	if !o.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownOutlook, s)
	}
	return o, nil
}

// RiskProfile selects the aggressiveness of strike placement.
type RiskProfile string

const (
	// RiskConservative places short strikes further out of the money
	RiskConservative RiskProfile = "conservative"
	// RiskAggressive collects more premium closer to the money
	RiskAggressive RiskProfile = "aggressive"
)

// Valid returns true if the RiskProfile is one of the defined constants
func (r RiskProfile) Valid() bool {
	return r == RiskConservative || r == RiskAggressive
}

// ParseRiskProfile converts user input into a RiskProfile. Empty input means conservative.
func ParseRiskProfile(s string) (RiskProfile, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RiskConservative, nil
	}
	r := RiskProfile(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRiskProfile, s)
	}
	return r, nil
}

// Leg is one resolved contract position inside a strategy.
// MidPrice is always (Bid+Ask)/2; legs are built by the strategy package.
type Leg struct {
	Expiration time.Time  `json:"expiration"`
	Greeks     Greeks     `json:"greeks"`
	Symbol     string     `json:"symbol"`
	Contract   string     `json:"contract"`
	OptionType OptionType `json:"option_type"`
	Strike     float64    `json:"strike"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	MidPrice   float64    `json:"mid_price"`
	Ratio      int        `json:"ratio"` // +1 long, -1 short
	DTE        int        `json:"dte"`
}

// IsLong reports whether the leg buys the contract.
func (l Leg) IsLong() bool {
	return l.Ratio > 0
}

// RelativeSpread is (ask-bid)/mid. It is only meaningful when MidPrice > 0.
func (l Leg) RelativeSpread() float64 {
	return (l.Ask - l.Bid) / l.MidPrice
}

// Profit is either a finite amount or unbounded.
type Profit struct {
	amount    float64
	unbounded bool
}

// FiniteProfit returns a bounded profit of amount.
func FiniteProfit(amount float64) Profit {
	return Profit{amount: amount}
}

// UnboundedProfit returns the unbounded marker.
func UnboundedProfit() Profit {
	return Profit{unbounded: true}
}

// IsUnbounded reports whether the profit has no upper limit.
func (p Profit) IsUnbounded() bool {
	return p.unbounded
}

// Amount returns the finite amount; ok is false for an unbounded profit.
func (p Profit) Amount() (amount float64, ok bool) {
	if p.unbounded {
		return 0, false
	}
	return p.amount, true
}

func (p Profit) String() string {
	if p.unbounded {
		return "unbounded"
	}
	return fmt.Sprintf("%.2f", p.amount)
}

type profitJSON struct {
	Amount *float64 `json:"amount,omitempty"`
	Kind   string   `json:"kind"`
}

// MarshalJSON encodes the variant as {"kind":"finite","amount":x} or {"kind":"unbounded"}.
func (p Profit) MarshalJSON() ([]byte, error) {
	if p.unbounded {
		return json.Marshal(profitJSON{Kind: "unbounded"})
	}
	amt := p.amount
	return json.Marshal(profitJSON{Kind: "finite", Amount: &amt})
}

// UnmarshalJSON decodes the form written by MarshalJSON.
func (p *Profit) UnmarshalJSON(b []byte) error {
	var raw profitJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch raw.Kind {
	case "unbounded":
		*p = UnboundedProfit()
	case "finite":
		if raw.Amount == nil {
			return errors.New("finite profit requires an amount")
		}
		*p = FiniteProfit(*raw.Amount)
	default:
		return fmt.Errorf("unknown profit kind %q", raw.Kind)
	}
	return nil
}

// Metrics are the payoff and risk figures of a strategy, per share.
type Metrics struct {
	MaxProfit Profit `json:"max_profit"`

	// RiskReward is nil when MaxProfit is unbounded.
	RiskReward *float64 `json:"risk_reward,omitempty"`

	Breakevens          []float64 `json:"breakevens"`
	NetGreeks           Greeks    `json:"net_greeks"`
	MaxLoss             float64   `json:"max_loss"`
	ProbabilityOfProfit float64   `json:"probability_of_profit"`
	ThetaDecayPerDay    float64   `json:"theta_decay_per_day"`
	LiquidityScore      float64   `json:"liquidity_score"`
}

// Strategy is a fully validated multi-leg recommendation.
type Strategy struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Outlook     Outlook `json:"outlook"`
	Legs        []Leg   `json:"legs"`
	Metrics     Metrics `json:"metrics"`
	// Contracts is the number of spreads the requested capital can carry at max loss.
	Contracts int `json:"contracts"`
}

// MaxLossPerContract returns the dollar loss of one spread.
func (s Strategy) MaxLossPerContract() float64 {
	return s.Metrics.MaxLoss * SharesPerContract
}
