// Package retry wraps a chain provider with bounded, jittered retries for
// transient upstream failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/models"
)

// Config bounds the retry loop.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

// DefaultConfig retries three times within two minutes.
var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client retries provider calls on transient errors. It is itself a ChainProvider.
type Client struct {
	provider broker.ChainProvider
	logger   logrus.FieldLogger
	config   Config
}

// Compile-time interface compliance check
var _ broker.ChainProvider = (*Client)(nil)

// NewClient creates a retrying client. Non-positive config values fall back to defaults.
func NewClient(provider broker.ChainProvider, logger logrus.FieldLogger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}

	// Guard against nil logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Client{
		provider: provider,
		logger:   logger,
		config:   cfg,
	}
}

// GetChain implements broker.ChainProvider.
func (c *Client) GetChain(ctx context.Context, symbol string, expiration time.Time, tier broker.Tier) (*models.Chain, error) {
	return c.GetChainWithRetry(ctx, symbol, expiration, tier)
}

// GetExpirations implements broker.ChainProvider.
func (c *Client) GetExpirations(ctx context.Context, symbol string, tier broker.Tier) ([]time.Time, error) {
	return do(ctx, c, "get expirations", logrus.Fields{"symbol": symbol, "tier": tier},
		func(ctx context.Context) ([]time.Time, error) {
			return c.provider.GetExpirations(ctx, symbol, tier)
		})
}

// GetChainWithRetry fetches a chain, retrying transient failures with backoff.
func (c *Client) GetChainWithRetry(
	ctx context.Context,
	symbol string,
	expiration time.Time,
	tier broker.Tier,
) (*models.Chain, error) {
	fields := logrus.Fields{
		"symbol":     symbol,
		"expiration": expiration.Format("2006-01-02"),
		"tier":       tier,
	}
	return do(ctx, c, "get chain", fields, func(ctx context.Context) (*models.Chain, error) {
		return c.provider.GetChain(ctx, symbol, expiration, tier)
	})
}

func do[T any](
	ctx context.Context,
	c *Client,
	op string,
	fields logrus.Fields,
	fn func(context.Context) (T, error),
) (T, error) {
	var zero T
	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	log := c.logger.WithFields(fields)
	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", op, ctx.Err())
		}
		select {
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s timed out after %v: %w", op, c.config.Timeout, opCtx.Err())
		default:
		}

		res, err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				log.Infof("%s succeeded on attempt %d", op, attempt+1)
			}
			return res, nil
		}

		lastErr = err
		log.WithError(err).Warnf("%s attempt %d/%d failed", op, attempt+1, c.config.MaxRetries+1)

		if !IsTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		log.Debugf("transient error detected, retrying in %v", backoff)
		select {
		case <-time.After(backoff):
			backoff = c.calculateNextBackoff(backoff)
		case <-ctx.Done():
			return zero, fmt.Errorf("%s canceled during backoff: %w", op, ctx.Err())
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s timed out during backoff: %w", op, opCtx.Err())
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", op, c.config.MaxRetries+1, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

// IsTransientError reports whether err is worth retrying. Malformed payloads,
// cancellation and client-side API errors are permanent.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, models.ErrMalformedChain) || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"too many requests",
		"eof",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
