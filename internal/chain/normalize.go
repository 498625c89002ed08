// Package chain turns loosely shaped upstream option chain payloads into
// models.Chain values. Every field alias is resolved in one pass here so the
// strategy engine only ever sees canonical names.
package chain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// MalformedError reports a required chain field that is missing or unreadable.
type MalformedError struct {
	Field  string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed chain field %q: %s", e.Field, e.Reason)
}

// Unwrap lets callers match any MalformedError with models.ErrMalformedChain.
func (e *MalformedError) Unwrap() error {
	return models.ErrMalformedChain
}

func malformed(field, format string, args ...any) error {
	return &MalformedError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

var (
	symbolKeys     = []string{"symbol", "underlying"}
	expirationKeys = []string{"expiration", "expiration_date"}
	spotKeys       = []string{"spot_price", "underlying_price", "spot"}

	strikeKeys       = []string{"strike", "strike_price"}
	bidKeys          = []string{"bid", "bid_price"}
	askKeys          = []string{"ask", "ask_price"}
	openInterestKeys = []string{"open_interest", "openInterest"}
	volumeKeys       = []string{"volume", "traded_volume"}
	ivKeys           = []string{"implied_volatility", "iv", "impliedVolatility"}
	contractKeys     = []string{"option_symbol", "contract", "symbol"}
	greeksKeys       = []string{"greeks", "sensitivities"}
)

// expirationLayouts are tried in order when the expiration is a string.
var expirationLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"20060102",
}

// Normalize converts a decoded JSON object into a chain. Symbol and spot price
// are required; a missing expiration is left zero for the engine to report.
// Absent calls or puts are treated as an empty side.
func Normalize(raw map[string]any) (*models.Chain, error) {
	if raw == nil {
		return nil, malformed("chain", "payload is empty")
	}

	c := &models.Chain{}

	symbol, ok := lookup(raw, symbolKeys)
	if !ok {
		return nil, malformed("symbol", "missing")
	}
	s, isString := symbol.(string)
	if !isString || strings.TrimSpace(s) == "" {
		return nil, malformed("symbol", "must be a non-empty string")
	}
	c.Symbol = strings.ToUpper(strings.TrimSpace(s))

	spot, ok, err := lookupFloat(raw, spotKeys)
	if err != nil {
		return nil, malformed("spot_price", "%v", err)
	}
	if !ok {
		return nil, malformed("spot_price", "missing")
	}
	c.SpotPrice = spot

	if v, ok := lookup(raw, expirationKeys); ok {
		exp, err := parseExpiration(v)
		if err != nil {
			return nil, malformed("expiration", "%v", err)
		}
		c.Expiration = exp
	}

	if c.Calls, err = normalizeSide(raw, "calls"); err != nil {
		return nil, err
	}
	if c.Puts, err = normalizeSide(raw, "puts"); err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeSide(raw map[string]any, key string) ([]models.Quote, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return []models.Quote{}, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, malformed(key, "must be an array")
	}

	quotes := make([]models.Quote, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, malformed(field, "must be an object")
		}
		q, err := normalizeQuote(obj, field)
		if err != nil {
			return nil, err
		}
		quotes = append(quotes, q)
	}
	return quotes, nil
}

func normalizeQuote(obj map[string]any, field string) (models.Quote, error) {
	var q models.Quote

	strike, ok, err := lookupFloat(obj, strikeKeys)
	if err != nil {
		return q, malformed(field+".strike", "%v", err)
	}
	if !ok {
		return q, malformed(field+".strike", "missing")
	}
	q.Strike = strike

	if q.Bid, _, err = lookupFloat(obj, bidKeys); err != nil {
		return q, malformed(field+".bid", "%v", err)
	}
	if q.Ask, _, err = lookupFloat(obj, askKeys); err != nil {
		return q, malformed(field+".ask", "%v", err)
	}
	vol, _, err := lookupFloat(obj, volumeKeys)
	if err != nil {
		return q, malformed(field+".volume", "%v", err)
	}
	q.Volume = int64(vol)
	oi, _, err := lookupFloat(obj, openInterestKeys)
	if err != nil {
		return q, malformed(field+".open_interest", "%v", err)
	}
	q.OpenInterest = int64(oi)

	iv, ok, err := lookupFloat(obj, ivKeys)
	if err != nil {
		return q, malformed(field+".implied_volatility", "%v", err)
	}
	if ok {
		q.ImpliedVolatility = &iv
	}

	if v, ok := lookup(obj, contractKeys); ok {
		if s, isString := v.(string); isString {
			q.Symbol = s
		}
	}

	greeks, err := normalizeGreeks(obj, field)
	if err != nil {
		return q, err
	}
	q.Greeks = greeks
	return q, nil
}

// normalizeGreeks reads sensitivities nested under a greeks object or flat on
// the quote. Without a delta the quote is reported as having no Greeks.
func normalizeGreeks(obj map[string]any, field string) (*models.Greeks, error) {
	src := obj
	if v, ok := lookup(obj, greeksKeys); ok {
		nested, isObj := v.(map[string]any)
		if !isObj {
			return nil, malformed(field+".greeks", "must be an object")
		}
		src = nested
	}

	delta, ok, err := lookupFloat(src, []string{"delta"})
	if err != nil {
		return nil, malformed(field+".delta", "%v", err)
	}
	if !ok {
		return nil, nil
	}

	g := &models.Greeks{Delta: delta}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"gamma", &g.Gamma},
		{"theta", &g.Theta},
		{"vega", &g.Vega},
		{"rho", &g.Rho},
	} {
		v, _, err := lookupFloat(src, []string{f.name})
		if err != nil {
			return nil, malformed(field+"."+f.name, "%v", err)
		}
		*f.dst = v
	}
	return g, nil
}

// lookup returns the first non-null value stored under any of keys.
func lookup(obj map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := obj[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func lookupFloat(obj map[string]any, keys []string) (float64, bool, error) {
	v, ok := lookup(obj, keys)
	if !ok {
		return 0, false, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

// toFloat accepts JSON numbers and numeric strings.
func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		f, err = n.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
	if err != nil {
		return 0, fmt.Errorf("not a number: %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %v", v)
	}
	return f, nil
}

func parseExpiration(v any) (time.Time, error) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("expected a date string, got %T", v)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for _, layout := range expirationLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised date %q", s)
}
