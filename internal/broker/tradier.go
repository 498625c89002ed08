// Package broker retrieves option chain snapshots from market data providers.
// It includes the Tradier API client and a circuit breaker wrapper.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

const (
	// ProductionBaseURL serves real-time data
	ProductionBaseURL = "https://api.tradier.com/v1"
	// SandboxBaseURL serves 15-minute delayed data
	SandboxBaseURL = "https://sandbox.tradier.com/v1"

	defaultTimeout = 10 * time.Second
	dateLayout     = "2006-01-02"
)

// ErrNoQuote is returned when the quote endpoint has nothing for the underlying.
var ErrNoQuote = errors.New("no quote for underlying")

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// Endpoint is one Tradier environment and the token that authenticates against it.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// TradierProvider implements ChainProvider over the Tradier market data API.
// TierPro requests go to the production endpoint and TierFree requests to the
// delayed sandbox endpoint.
type TradierProvider struct {
	client *http.Client
	logger logrus.FieldLogger
	pro    Endpoint
	free   Endpoint
}

// Compile-time interface compliance check
var _ ChainProvider = (*TradierProvider)(nil)

// NewTradierProvider creates a provider. Empty base URLs fall back to the
// public Tradier endpoints and an empty free key reuses the pro key.
func NewTradierProvider(pro, free Endpoint, logger logrus.FieldLogger) *TradierProvider {
	if pro.BaseURL == "" {
		pro.BaseURL = ProductionBaseURL
	}
	if free.BaseURL == "" {
		free.BaseURL = SandboxBaseURL
	}
	if free.APIKey == "" {
		free.APIKey = pro.APIKey
	}
	// Normalize once
	pro.BaseURL = strings.TrimRight(pro.BaseURL, "/")
	free.BaseURL = strings.TrimRight(free.BaseURL, "/")

	// Guard against nil logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &TradierProvider{
		client: &http.Client{Timeout: defaultTimeout},
		logger: logger,
		pro:    pro,
		free:   free,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierProvider) WithHTTPClient(c *http.Client) *TradierProvider {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierProvider) WithTimeout(timeout time.Duration) *TradierProvider {
	if t.client != nil && timeout > 0 {
		t.client.Timeout = timeout
	}
	return t
}

func (t *TradierProvider) endpoint(tier Tier) Endpoint {
	if tier == TierPro {
		return t.pro
	}
	return t.free
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// optionChainResponse represents the API response for option chain requests.
// Tradier sends "options": null when the expiration has no contracts.
type optionChainResponse struct {
	Options *struct {
		Option singleOrArray[tradierOption] `json:"option"`
	} `json:"options"`
}

// tradierOption represents an option contract from the Tradier API.
type tradierOption struct {
	Greeks         *tradierGreeks `json:"greeks,omitempty"`
	Symbol         string         `json:"symbol"`
	OptionType     string         `json:"option_type"`
	ExpirationDate string         `json:"expiration_date"`
	Underlying     string         `json:"underlying"`
	Bid            float64        `json:"bid"`
	Ask            float64        `json:"ask"`
	Volume         int64          `json:"volume"`
	OpenInterest   int64          `json:"open_interest"`
	Strike         float64        `json:"strike"`
}

// tradierGreeks contains option Greeks data from the Tradier API.
type tradierGreeks struct {
	Delta *float64 `json:"delta"`
	Gamma float64  `json:"gamma"`
	Theta float64  `json:"theta"`
	Vega  float64  `json:"vega"`
	Rho   float64  `json:"rho"`
	MidIV float64  `json:"mid_iv"`
}

// quotesResponse represents the quotes response from the Tradier API.
type quotesResponse struct {
	Quotes struct {
		Quote singleOrArray[quoteItem] `json:"quote"`
	} `json:"quotes"`
}

// quoteItem carries the underlying price fields the provider reads.
type quoteItem struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	PrevClose float64 `json:"prevclose"`
}

// spot picks the best available underlying price: last trade, then mid, then prior close.
func (q quoteItem) spot() float64 {
	switch {
	case q.Last > 0:
		return q.Last
	case q.Bid > 0 && q.Ask > 0:
		return (q.Bid + q.Ask) / 2
	default:
		return q.PrevClose
	}
}

// expirationsResponse represents the expirations response from the Tradier API.
type expirationsResponse struct {
	Expirations *struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

// ============ API Methods ============

// GetChain fetches the underlying quote and the chain with Greeks for one expiration.
func (t *TradierProvider) GetChain(
	ctx context.Context,
	symbol string,
	expiration time.Time,
	tier Tier,
) (*models.Chain, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrMalformedChain)
	}
	if expiration.IsZero() {
		return nil, fmt.Errorf("%w: expiration is required", models.ErrMalformedChain)
	}
	ep := t.endpoint(tier)

	spot, err := t.getSpot(ctx, ep, symbol)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration.Format(dateLayout))
	params.Set("greeks", "true")

	var response optionChainResponse
	if err := t.makeRequestCtx(ctx, ep, "/markets/options/chains", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get option chain for %s %s: %w", symbol, expiration.Format(dateLayout), err)
	}

	chain := &models.Chain{
		Symbol:     symbol,
		SpotPrice:  spot,
		Expiration: expiration.UTC().Truncate(24 * time.Hour),
		Calls:      []models.Quote{},
		Puts:       []models.Quote{},
	}
	if response.Options == nil {
		return chain, nil
	}

	for _, opt := range response.Options.Option {
		kind, err := models.ParseOptionType(opt.OptionType)
		if err != nil {
			t.logger.WithField("contract", opt.Symbol).Debug("skipping contract with unknown option type")
			continue
		}
		q := opt.toQuote()
		if kind == models.OptionTypePut {
			chain.Puts = append(chain.Puts, q)
		} else {
			chain.Calls = append(chain.Calls, q)
		}
	}

	sort.SliceStable(chain.Calls, func(i, j int) bool { return chain.Calls[i].Strike < chain.Calls[j].Strike })
	sort.SliceStable(chain.Puts, func(i, j int) bool { return chain.Puts[i].Strike < chain.Puts[j].Strike })

	t.logger.WithFields(logrus.Fields{
		"symbol":     symbol,
		"expiration": expiration.Format(dateLayout),
		"tier":       tier,
		"calls":      len(chain.Calls),
		"puts":       len(chain.Puts),
	}).Debug("fetched option chain")

	return chain, nil
}

// toQuote converts a Tradier contract. A contract without a delta gets nil Greeks.
func (o tradierOption) toQuote() models.Quote {
	q := models.Quote{
		Symbol:       o.Symbol,
		Strike:       o.Strike,
		Bid:          o.Bid,
		Ask:          o.Ask,
		Volume:       o.Volume,
		OpenInterest: o.OpenInterest,
	}
	if o.Greeks == nil {
		return q
	}
	if o.Greeks.MidIV > 0 {
		iv := o.Greeks.MidIV
		q.ImpliedVolatility = &iv
	}
	if o.Greeks.Delta != nil {
		q.Greeks = &models.Greeks{
			Delta: *o.Greeks.Delta,
			Gamma: o.Greeks.Gamma,
			Theta: o.Greeks.Theta,
			Vega:  o.Greeks.Vega,
			Rho:   o.Greeks.Rho,
		}
	}
	return q
}

func (t *TradierProvider) getSpot(ctx context.Context, ep Endpoint, symbol string) (float64, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")

	var response quotesResponse
	if err := t.makeRequestCtx(ctx, ep, "/markets/quotes", params, &response); err != nil {
		return 0, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoQuote, symbol)
	}
	spot := quotes[0].spot()
	if !(spot > 0) {
		return 0, fmt.Errorf("%w: no usable price for %s", models.ErrMalformedChain, symbol)
	}
	return spot, nil
}

// GetExpirations retrieves available expiration dates for options on a symbol.
func (t *TradierProvider) GetExpirations(ctx context.Context, symbol string, tier Tier) ([]time.Time, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(strings.TrimSpace(symbol)))
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")

	var response expirationsResponse
	if err := t.makeRequestCtx(ctx, t.endpoint(tier), "/markets/options/expirations", params, &response); err != nil {
		return nil, fmt.Errorf("failed to get expirations for %s: %w", symbol, err)
	}
	if response.Expirations == nil {
		return []time.Time{}, nil
	}

	out := make([]time.Time, 0, len(response.Expirations.Date))
	for _, d := range response.Expirations.Date {
		exp, err := time.Parse(dateLayout, d)
		if err != nil {
			t.logger.WithField("date", d).Debug("skipping unparseable expiration")
			continue
		}
		out = append(out, exp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// makeRequestCtx performs a GET against ep and decodes the JSON body into response.
func (t *TradierProvider) makeRequestCtx(
	ctx context.Context,
	ep Endpoint,
	path string,
	params url.Values,
	response interface{},
) error {
	endpoint := ep.BaseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	req.Header.Add("Authorization", "Bearer "+ep.APIKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "options-strategist/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			t.logger.WithError(err).Warn("failed to close response body")
		}
	}()

	// Check rate limit headers
	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" {
		t.logger.WithField("remaining", remaining).Debug("rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", path)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", path, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return fmt.Errorf("%w: decode %s: %v", models.ErrMalformedChain, path, err)
	}
	return nil
}
