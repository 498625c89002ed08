package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// FindByTargetDelta scans one side of the chain for the quote whose delta is
// closest to targetDelta. Quotes without delta are skipped. Ties keep the
// first quote in chain order; the tie-break carries no meaning beyond
// determinism. ok is false for an empty side or when no quote has a delta.
func FindByTargetDelta(chain *models.Chain, kind models.OptionType, targetDelta float64) (models.Quote, bool) {
	s := selector{chain: chain, policy: PolicySkip, fallback: NoopFallback{}}
	q, ok, _ := s.byDelta(kind, targetDelta)
	return q, ok
}

// FindByTargetStrike scans one side of the chain for the quote whose strike is
// closest to targetStrike, keeping the first quote on ties.
func FindByTargetStrike(chain *models.Chain, kind models.OptionType, targetStrike float64) (models.Quote, bool) {
	var best models.Quote
	bestDiff := math.MaxFloat64
	found := false

	for _, q := range chain.Side(kind) {
		diff := math.Abs(q.Strike - targetStrike)
		if diff < bestDiff {
			bestDiff = diff
			best = q
			found = true
		}
	}
	return best, found
}

// selector applies a MissingGreeksPolicy while searching by delta.
type selector struct {
	expiration time.Time
	chain      *models.Chain
	fallback   SensitivityFallback
	policy     MissingGreeksPolicy
	spot       float64
}

func (s selector) byDelta(kind models.OptionType, targetDelta float64) (models.Quote, bool, error) {
	var best models.Quote
	bestDiff := math.MaxFloat64
	found := false

	for _, q := range s.chain.Side(kind) {
		if !q.HasDelta() {
			resolved, ok, err := s.resolveMissing(q, kind)
			if err != nil {
				return models.Quote{}, false, err
			}
			if !ok {
				continue
			}
			q = resolved
		}

		delta := q.Greeks.Delta
		if math.IsNaN(delta) {
			continue
		}
		diff := math.Abs(delta - targetDelta)
		if diff < bestDiff {
			bestDiff = diff
			best = q
			found = true
		}
	}
	return best, found, nil
}

// resolveMissing returns a copy of q with estimated Greeks when the policy allows it.
func (s selector) resolveMissing(q models.Quote, kind models.OptionType) (models.Quote, bool, error) {
	switch s.policy {
	case PolicyReject:
		return models.Quote{}, false, fmt.Errorf("%w: %s strike %.2f", ErrMissingSensitivity, kind, q.Strike)
	case PolicyEstimate:
		if s.fallback == nil {
			return models.Quote{}, false, nil
		}
		g, ok := s.fallback.ComputeSensitivities(q.Strike, kind, s.expiration, s.spot)
		if !ok {
			return models.Quote{}, false, nil
		}
		return q.WithGreeks(g), true, nil
	default:
		return models.Quote{}, false, nil
	}
}
