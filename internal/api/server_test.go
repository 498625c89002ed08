package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/mock"
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/recommend"
	"github.com/eddiefleurent/options_strategist/internal/storage"
	"github.com/eddiefleurent/options_strategist/internal/strategy"
)

var asOf = time.Date(2025, time.January, 2, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return asOf }

// failingProvider returns err for every call.
type failingProvider struct{ err error }

func (f failingProvider) GetChain(context.Context, string, time.Time, broker.Tier) (*models.Chain, error) {
	return nil, f.err
}

func (f failingProvider) GetExpirations(context.Context, string, broker.Tier) ([]time.Time, error) {
	return nil, f.err
}

func newTestServer(t *testing.T, provider broker.ChainProvider, token string) (*Server, storage.Interface) {
	t.Helper()
	if provider == nil {
		provider = mock.NewDataProvider().WithClock(fixedClock)
	}
	journal := storage.NewMemoryStorage(100)
	svc := recommend.NewService(provider, strategy.NewEngine(nil).WithClock(fixedClock), journal, nil).WithClock(fixedClock)
	return NewServer(Config{AuthToken: token, RequestTimeout: 5 * time.Second}, svc, nil), journal
}

func do(t *testing.T, s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const condorBody = `{
  "outlook": "neutral",
  "capital": 1000,
  "chain": {
    "symbol": "spy",
    "underlying_price": "100",
    "expiration": "2025-02-14",
    "calls": [
      {"strike": 105, "bid": 2.0, "ask": 2.05, "greeks": {"delta": 0.20, "gamma": 0.02, "theta": -0.03, "vega": 0.1}},
      {"strike": 110, "bid": 0.5, "ask": 0.55, "greeks": {"delta": 0.10, "gamma": 0.02, "theta": -0.03, "vega": 0.1}}
    ],
    "puts": [
      {"strike": 95, "bid": 2.0, "ask": 2.05, "greeks": {"delta": -0.20, "gamma": 0.02, "theta": -0.03, "vega": 0.1}},
      {"strike": 90, "bid": 0.5, "ask": 0.55, "greeks": {"delta": -0.10, "gamma": 0.02, "theta": -0.03, "vega": 0.1}}
    ]
  }
}`

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, nil, "secret")
	rec := do(t, s, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuth(t *testing.T) {
	s, _ := newTestServer(t, nil, "secret")

	tests := []struct {
		name    string
		path    string
		headers []string
		want    int
	}{
		{"missing token", "/api/history", nil, http.StatusUnauthorized},
		{"wrong token", "/api/history", []string{"X-Auth-Token", "nope"}, http.StatusUnauthorized},
		{"header token", "/api/history", []string{"X-Auth-Token", "secret"}, http.StatusOK},
		{"query token", "/api/history?token=secret", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, tt.path, "", tt.headers...)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestStrategies_InlineChain(t *testing.T) {
	s, journal := newTestServer(t, failingProvider{err: errors.New("should not be called")}, "")

	rec := do(t, s, http.MethodPost, "/api/strategies", condorBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "SPY", got.Symbol)
	require.Len(t, got.Strategies, 1)
	assert.Equal(t, strategy.IronCondorName, got.Strategies[0].Name)
	assert.InDelta(t, 2.9, mustAmount(t, got.Strategies[0].Metrics.MaxProfit), 1e-9)
	assert.Equal(t, 4, got.Strategies[0].Contracts)
	assert.Equal(t, 1, journal.GetStatistics().Total)
}

func mustAmount(t *testing.T, p models.Profit) float64 {
	t.Helper()
	amount, ok := p.Amount()
	require.True(t, ok, "expected finite profit")
	return amount
}

func TestStrategies_Bearish(t *testing.T) {
	s, _ := newTestServer(t, nil, "")
	rec := do(t, s, http.MethodPost, "/api/strategies", `{"symbol":"SPY","outlook":"bearish"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.Strategies)
	assert.Equal(t, models.EmptyResultMessage, got.Message)
}

func TestStrategies_MockProvider(t *testing.T) {
	s, _ := newTestServer(t, nil, "")
	rec := do(t, s, http.MethodPost, "/api/strategies",
		`{"symbol":"SPY","outlook":"volatile","tier":"pro","expiration":"2025-02-14"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "pro", got.Tier)
	assert.Equal(t, 450.0, got.SpotPrice)
	assert.NotEmpty(t, got.ID)
}

func TestStrategies_Errors(t *testing.T) {
	tests := []struct {
		name     string
		provider broker.ChainProvider
		body     string
		want     int
	}{
		{"invalid json", nil, `{"symbol":`, http.StatusBadRequest},
		{"unknown field", nil, `{"symbol":"SPY","outlook":"neutral","color":"red"}`, http.StatusBadRequest},
		{"unknown outlook", nil, `{"symbol":"SPY","outlook":"sideways"}`, http.StatusBadRequest},
		{"unknown risk", nil, `{"symbol":"SPY","outlook":"neutral","risk_profile":"yolo"}`, http.StatusBadRequest},
		{"bad expiration", nil, `{"symbol":"SPY","outlook":"neutral","expiration":"14/02/2025"}`, http.StatusBadRequest},
		{"missing symbol", nil, `{"outlook":"neutral","expiration":"2025-02-14"}`, http.StatusBadRequest},
		{"malformed inline chain", nil, `{"outlook":"neutral","chain":{"symbol":"SPY"}}`, http.StatusUnprocessableEntity},
		{
			"provider outage",
			failingProvider{err: &broker.APIError{Status: 500, Body: "boom"}},
			`{"symbol":"SPY","outlook":"neutral","expiration":"2025-02-14"}`,
			http.StatusBadGateway,
		},
		{
			"provider malformed",
			failingProvider{err: models.ErrMalformedChain},
			`{"symbol":"SPY","outlook":"neutral","expiration":"2025-02-14"}`,
			http.StatusUnprocessableEntity,
		},
		{
			"breaker open",
			failingProvider{err: gobreaker.ErrOpenState},
			`{"symbol":"SPY","outlook":"neutral","expiration":"2025-02-14"}`,
			http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t, tt.provider, "")
			rec := do(t, s, http.MethodPost, "/api/strategies", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())

			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestScan(t *testing.T) {
	s, _ := newTestServer(t, nil, "")
	rec := do(t, s, http.MethodPost, "/api/strategies/scan",
		`{"symbol":"SPY","outlook":"neutral","expirations":["2025-02-07","2025-02-14"]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got recommend.ScanResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "SPY", got.Symbol)
	assert.Len(t, got.Recommendations, 2)

	bad := do(t, s, http.MethodPost, "/api/strategies/scan", `{"symbol":"SPY","outlook":"neutral","expirations":["soon"]}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestHistory(t *testing.T) {
	s, _ := newTestServer(t, nil, "")
	for _, sym := range []string{"SPY", "QQQ", "SPY"} {
		rec := do(t, s, http.MethodPost, "/api/strategies", `{"symbol":"`+sym+`","outlook":"bearish"}`)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/api/history?symbol=spy", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.Recommendation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)

	rec = do(t, s, http.MethodGet, "/api/history?limit=1", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	assert.Len(t, history, 1)

	assert.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/history?limit=abc", "").Code)

	item := do(t, s, http.MethodGet, "/api/history/"+history[0].ID, "")
	assert.Equal(t, http.StatusOK, item.Code)
	assert.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/history/missing", "").Code)

	stats := do(t, s, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, stats.Code)
	var st storage.Statistics
	require.NoError(t, json.Unmarshal(stats.Body.Bytes(), &st))
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 3, st.ByOutlook[models.OutlookBearish])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{recommend.ErrInvalidRequest, http.StatusBadRequest},
		{storage.ErrNotFound, http.StatusNotFound},
		{recommend.ErrNoExpiration, http.StatusUnprocessableEntity},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{gobreaker.ErrTooManyRequests, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}
