package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

const chainBody = `{"options":{"option":[
 {"symbol":"SPY250214C00110000","option_type":"call","strike":110,"bid":0.5,"ask":0.55,"volume":10,"open_interest":100,
  "greeks":{"delta":0.10,"gamma":0.01,"theta":-0.02,"vega":0.05,"rho":0.01,"mid_iv":0.17}},
 {"symbol":"SPY250214C00105000","option_type":"call","strike":105,"bid":2.0,"ask":2.05,"volume":20,"open_interest":200,
  "greeks":{"delta":0.20,"gamma":0.03,"theta":-0.05,"vega":0.11,"rho":0.02,"mid_iv":0.18}},
 {"symbol":"SPY250214P00095000","option_type":"put","strike":95,"bid":2.0,"ask":2.05,"greeks":null},
 {"symbol":"SPY250214P00090000","option_type":"put","strike":90,"bid":0.5,"ask":0.55,"greeks":{"gamma":0.01,"mid_iv":0.2}}
]}}`

var testExpiration = time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T, token string, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid access token"))
			return
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 429, Body: "too many requests"}
	want := "API error 429: too many requests"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNewTradierProvider_Defaults(t *testing.T) {
	p := NewTradierProvider(Endpoint{APIKey: "k"}, Endpoint{}, nil)
	if p.pro.BaseURL != ProductionBaseURL {
		t.Errorf("pro base = %q, want %q", p.pro.BaseURL, ProductionBaseURL)
	}
	if p.free.BaseURL != SandboxBaseURL {
		t.Errorf("free base = %q, want %q", p.free.BaseURL, SandboxBaseURL)
	}
	if p.free.APIKey != "k" {
		t.Errorf("free key = %q, want pro key reused", p.free.APIKey)
	}

	p = NewTradierProvider(Endpoint{BaseURL: "https://example.test/api/"}, Endpoint{}, nil)
	if p.pro.BaseURL != "https://example.test/api" {
		t.Errorf("base URL not trimmed: %q", p.pro.BaseURL)
	}
}

func TestGetChain(t *testing.T) {
	srv := newTestServer(t, "free-token", map[string]string{
		"/markets/quotes":         `{"quotes":{"quote":{"symbol":"SPY","last":100.25,"bid":100.2,"ask":100.3}}}`,
		"/markets/options/chains": chainBody,
	})
	p := NewTradierProvider(Endpoint{APIKey: "pro-token"}, Endpoint{BaseURL: srv.URL, APIKey: "free-token"}, nil)

	chain, err := p.GetChain(context.Background(), "spy", testExpiration, TierFree)
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	if chain.Symbol != "SPY" || chain.SpotPrice != 100.25 {
		t.Fatalf("got symbol %q spot %v", chain.Symbol, chain.SpotPrice)
	}
	if !chain.Expiration.Equal(testExpiration) {
		t.Errorf("expiration = %v", chain.Expiration)
	}
	if len(chain.Calls) != 2 || len(chain.Puts) != 2 {
		t.Fatalf("calls=%d puts=%d, want 2/2", len(chain.Calls), len(chain.Puts))
	}
	if chain.Calls[0].Strike != 105 || chain.Calls[1].Strike != 110 {
		t.Errorf("calls not sorted by strike: %v, %v", chain.Calls[0].Strike, chain.Calls[1].Strike)
	}

	c := chain.Calls[0]
	if c.Greeks == nil || c.Greeks.Delta != 0.20 || c.Greeks.Vega != 0.11 {
		t.Errorf("call greeks = %+v", c.Greeks)
	}
	if c.ImpliedVolatility == nil || *c.ImpliedVolatility != 0.18 {
		t.Errorf("call iv = %v", c.ImpliedVolatility)
	}
	if c.Symbol != "SPY250214C00105000" || c.OpenInterest != 200 {
		t.Errorf("call = %+v", c)
	}

	for _, put := range chain.Puts {
		if put.Greeks != nil {
			t.Errorf("put %v: greeks without delta must be nil, got %+v", put.Strike, put.Greeks)
		}
	}
	if chain.Puts[0].ImpliedVolatility == nil {
		t.Error("put 90 iv should survive a missing delta")
	}
}

func TestGetChain_TierRouting(t *testing.T) {
	quote := `{"quotes":{"quote":[{"symbol":"SPY","last":0,"bid":99,"ask":101}]}}`
	pro := newTestServer(t, "pro-token", map[string]string{
		"/markets/quotes":         quote,
		"/markets/options/chains": `{"options":null}`,
	})
	p := NewTradierProvider(Endpoint{BaseURL: pro.URL, APIKey: "pro-token"}, Endpoint{BaseURL: "http://127.0.0.1:1"}, nil)

	chain, err := p.GetChain(context.Background(), "SPY", testExpiration, TierPro)
	if err != nil {
		t.Fatalf("GetChain: %v", err)
	}
	if chain.SpotPrice != 100 {
		t.Errorf("spot = %v, want mid 100", chain.SpotPrice)
	}
	if !chain.IsEmpty() {
		t.Error("null options should give an empty chain")
	}
}

func TestGetChain_Errors(t *testing.T) {
	tests := []struct {
		name     string
		routes   map[string]string
		token    string
		symbol   string
		exp      time.Time
		wantIs   error
		wantAPI  int
		wantText string
	}{
		{
			name:   "missing symbol",
			symbol: "",
			exp:    testExpiration,
			wantIs: models.ErrMalformedChain,
		},
		{
			name:   "missing expiration",
			symbol: "SPY",
			wantIs: models.ErrMalformedChain,
		},
		{
			name:    "unauthorized",
			token:   "wrong",
			symbol:  "SPY",
			exp:     testExpiration,
			wantAPI: http.StatusUnauthorized,
		},
		{
			name:   "no quote",
			routes: map[string]string{"/markets/quotes": `{"quotes":{"quote":null}}`},
			symbol: "SPY",
			exp:    testExpiration,
			wantIs: ErrNoQuote,
		},
		{
			name:   "garbage chain payload",
			routes: map[string]string{"/markets/quotes": `{"quotes":{"quote":{"last":1}}}`, "/markets/options/chains": `{"options":`},
			symbol: "SPY",
			exp:    testExpiration,
			wantIs: models.ErrMalformedChain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, "tok", tt.routes)
			token := "tok"
			if tt.token != "" {
				token = tt.token
			}
			p := NewTradierProvider(Endpoint{BaseURL: srv.URL, APIKey: token}, Endpoint{}, nil)

			_, err := p.GetChain(context.Background(), tt.symbol, tt.exp, TierPro)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("err = %v, want %v", err, tt.wantIs)
			}
			if tt.wantAPI != 0 {
				var apiErr *APIError
				if !errors.As(err, &apiErr) || apiErr.Status != tt.wantAPI {
					t.Errorf("err = %v, want APIError %d", err, tt.wantAPI)
				}
			}
		})
	}
}

func TestGetExpirations(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"array", `{"expirations":{"date":["2025-03-21","2025-02-14","bogus"]}}`, []string{"2025-02-14", "2025-03-21"}},
		{"single", `{"expirations":{"date":"2025-02-14"}}`, []string{"2025-02-14"}},
		{"null", `{"expirations":null}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, "tok", map[string]string{"/markets/options/expirations": tt.body})
			p := NewTradierProvider(Endpoint{}, Endpoint{BaseURL: srv.URL, APIKey: "tok"}, nil)

			got, err := p.GetExpirations(context.Background(), "spy", TierFree)
			if err != nil {
				t.Fatalf("GetExpirations: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d dates, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Format(dateLayout) != tt.want[i] {
					t.Errorf("date[%d] = %s, want %s", i, got[i].Format(dateLayout), tt.want[i])
				}
			}
		})
	}
}

func TestMakeRequestCtx_RetryAfterInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	}))
	defer srv.Close()

	p := NewTradierProvider(Endpoint{BaseURL: srv.URL}, Endpoint{}, nil)
	err := p.makeRequestCtx(context.Background(), p.pro, "/markets/quotes", nil, &quotesResponse{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "retry-after: 3") {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestMakeRequestCtx_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewTradierProvider(Endpoint{BaseURL: srv.URL}, Endpoint{}, nil)
	if err := p.makeRequestCtx(ctx, p.pro, "/markets/quotes", nil, &quotesResponse{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		in      string
		want    Tier
		wantErr bool
	}{
		{"", TierFree, false},
		{"FREE", TierFree, false},
		{" pro ", TierPro, false},
		{"gold", "", true},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseTier(%q) = %q, %v", tt.in, got, err)
		}
	}
}
