package models

import "time"

// EmptyResultMessage is shown when no strategy passes validation.
const EmptyResultMessage = "No strategy currently satisfies our validation rules for this outlook."

// Recommendation is one journaled engine run: the request and what came back.
type Recommendation struct {
	CreatedAt   time.Time   `json:"created_at"`
	Expiration  time.Time   `json:"expiration"`
	ID          string      `json:"id"`
	Symbol      string      `json:"symbol"`
	Outlook     Outlook     `json:"outlook"`
	RiskProfile RiskProfile `json:"risk_profile"`
	Tier        string      `json:"tier,omitempty"`
	Message     string      `json:"message,omitempty"`
	Strategies  []Strategy  `json:"strategies"`
	SpotPrice   float64     `json:"spot_price"`
	Capital     float64     `json:"capital,omitempty"`
}

// IsEmpty reports whether the run produced no strategies.
func (r *Recommendation) IsEmpty() bool {
	return len(r.Strategies) == 0
}

// Best returns the highest ranked strategy, if any.
func (r *Recommendation) Best() (Strategy, bool) {
	if r.IsEmpty() {
		return Strategy{}, false
	}
	return r.Strategies[0], true
}
