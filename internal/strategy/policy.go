package strategy

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// ErrMissingSensitivity is returned under PolicyReject when a scanned quote has no delta.
var ErrMissingSensitivity = errors.New("quote is missing sensitivities")

// MissingGreeksPolicy decides what the selector does with quotes that carry no delta.
type MissingGreeksPolicy string

const (
	// PolicySkip ignores quotes without delta
	PolicySkip MissingGreeksPolicy = "skip"
	// PolicyEstimate asks the configured SensitivityFallback for a delta
	PolicyEstimate MissingGreeksPolicy = "estimate"
	// PolicyReject treats a quote without delta as an input error
	PolicyReject MissingGreeksPolicy = "reject"
)

// ParseMissingGreeksPolicy converts a config string into a policy. Empty means skip.
func ParseMissingGreeksPolicy(s string) (MissingGreeksPolicy, error) {
	switch p := MissingGreeksPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicySkip, nil
	case PolicySkip, PolicyEstimate, PolicyReject:
		return p, nil
	default:
		return "", fmt.Errorf("unknown missing greeks policy %q", s)
	}
}

// SensitivityFallback supplies Greeks for a contract the upstream left without them.
type SensitivityFallback interface {
	ComputeSensitivities(strike float64, kind models.OptionType, expiration time.Time, spot float64) (models.Greeks, bool)
}

// NoopFallback never produces sensitivities.
type NoopFallback struct{}

// ComputeSensitivities always reports no result.
func (NoopFallback) ComputeSensitivities(float64, models.OptionType, time.Time, float64) (models.Greeks, bool) {
	return models.Greeks{}, false
}

// ProbabilityModel estimates probability of profit for each supported structure.
// Engine output is clamped to [0,1] whatever the model returns.
type ProbabilityModel interface {
	IronCondor(wingWidth, netCredit float64) float64
	LongStraddle(netDebit, spot float64) float64
	BullCallSpread(spreadWidth, netDebit float64) float64
}

// HeuristicProbability is the fixed-constant model. The straddle and bull call
// values are simplifications, not derived from a distribution.
type HeuristicProbability struct {
	Straddle float64
	BullCall float64
}

// DefaultProbability holds the reference heuristic constants.
var DefaultProbability = HeuristicProbability{
	Straddle: 0.30,
	BullCall: 0.65,
}

// IronCondor returns (wingWidth - netCredit) / wingWidth.
func (h HeuristicProbability) IronCondor(wingWidth, netCredit float64) float64 {
	if wingWidth <= 0 {
		return 0
	}
	return (wingWidth - netCredit) / wingWidth
}

// LongStraddle returns the fixed straddle constant.
func (h HeuristicProbability) LongStraddle(float64, float64) float64 {
	return h.Straddle
}

// BullCallSpread returns the fixed bull call constant.
func (h HeuristicProbability) BullCallSpread(float64, float64) float64 {
	return h.BullCall
}
