package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// Tier selects the market data feed a chain is fetched from.
type Tier string

const (
	// TierFree uses the delayed feed
	TierFree Tier = "free"
	// TierPro uses the real-time feed
	TierPro Tier = "pro"
)

// ParseTier converts user input into a Tier. Empty input means free.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(strings.ToLower(strings.TrimSpace(s))); t {
	case "":
		return TierFree, nil
	case TierFree, TierPro:
		return t, nil
	default:
		return "", fmt.Errorf("unknown data tier %q", s)
	}
}

// ChainProvider retrieves option chain snapshots from a market data source.
type ChainProvider interface {
	// GetChain returns one expiration's chain, with Greeks when the feed has them.
	GetChain(ctx context.Context, symbol string, expiration time.Time, tier Tier) (*models.Chain, error)
	// GetExpirations lists the listed expiration dates for symbol, ascending.
	GetExpirations(ctx context.Context, symbol string, tier Tier) ([]time.Time, error)
}

// CircuitBreakerProvider wraps a ChainProvider with circuit breaker functionality
type CircuitBreakerProvider struct {
	provider ChainProvider
	breaker  *gobreaker.CircuitBreaker
}

// Compile-time interface compliance check
var _ ChainProvider = (*CircuitBreakerProvider)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	provider ChainProvider,
	fn func(ChainProvider) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(provider) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least 5 requests.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerProvider creates a CircuitBreakerProvider with default settings
func NewCircuitBreakerProvider(provider ChainProvider, logger logrus.FieldLogger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, DefaultCircuitBreakerSettings, logger)
}

// NewCircuitBreakerProviderWithSettings creates a CircuitBreakerProvider with custom settings
func NewCircuitBreakerProviderWithSettings(
	provider ChainProvider,
	settings CircuitBreakerSettings,
	logger logrus.FieldLogger,
) *CircuitBreakerProvider {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	gbSettings := gobreaker.Settings{
		Name:        "ChainProviderCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			// Bad payloads are the caller's problem, not an outage
			return err == nil || errors.Is(err, models.ErrMalformedChain) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("circuit breaker state changed")
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// State reports the breaker's current state.
func (c *CircuitBreakerProvider) State() gobreaker.State {
	return c.breaker.State()
}

// GetChain wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetChain(
	ctx context.Context,
	symbol string,
	expiration time.Time,
	tier Tier,
) (*models.Chain, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p ChainProvider) (*models.Chain, error) {
		return p.GetChain(ctx, symbol, expiration, tier)
	})
}

// GetExpirations wraps the underlying provider call with circuit breaker
func (c *CircuitBreakerProvider) GetExpirations(ctx context.Context, symbol string, tier Tier) ([]time.Time, error) {
	return execCircuitBreaker(c.breaker, c.provider, func(p ChainProvider) ([]time.Time, error) {
		return p.GetExpirations(ctx, symbol, tier)
	})
}
