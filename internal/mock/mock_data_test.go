package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/models"
)

var (
	thursday   = time.Date(2025, time.January, 2, 15, 0, 0, 0, time.UTC)
	expiration = time.Date(2025, time.February, 14, 0, 0, 0, 0, time.UTC)
)

func provider() *Provider {
	return NewDataProvider().WithClock(func() time.Time { return thursday }).WithSpot("SPY", 400)
}

func TestDataProvider_GetChain(t *testing.T) {
	chain, err := provider().GetChain(context.Background(), "spy", expiration, broker.TierFree)
	require.NoError(t, err)

	assert.Equal(t, "SPY", chain.Symbol)
	assert.Equal(t, 400.0, chain.SpotPrice)
	assert.True(t, chain.Expiration.Equal(expiration))
	require.Len(t, chain.Calls, 2*defaultStrikes+1)
	require.Len(t, chain.Puts, 2*defaultStrikes+1)

	for i, q := range chain.Calls {
		assert.Greater(t, q.Ask, q.Bid, "call %v", q.Strike)
		assert.GreaterOrEqual(t, q.Bid, 0.0)
		require.NotNil(t, q.Greeks)
		if i > 0 {
			assert.Greater(t, q.Strike, chain.Calls[i-1].Strike)
			assert.Less(t, q.Greeks.Delta, chain.Calls[i-1].Greeks.Delta, "call delta falls with strike")
		}
	}
	for _, q := range chain.Puts {
		assert.LessOrEqual(t, q.Greeks.Delta, 0.0)
		assert.GreaterOrEqual(t, q.Greeks.Delta, -1.0)
	}
	assert.Equal(t, "SPY250214C00400000", chain.Calls[defaultStrikes].Symbol)
}

func TestDataProvider_Deterministic(t *testing.T) {
	a, err := provider().GetChain(context.Background(), "SPY", expiration, broker.TierPro)
	require.NoError(t, err)
	b, err := provider().GetChain(context.Background(), "SPY", expiration, broker.TierFree)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDataProvider_PastExpiration(t *testing.T) {
	past := thursday.AddDate(0, 0, -30)
	chain, err := provider().GetChain(context.Background(), "SPY", past, broker.TierFree)
	require.NoError(t, err)
	assert.NotEmpty(t, chain.Calls, "expected some options even for past expiration")
}

func TestDataProvider_Errors(t *testing.T) {
	p := provider()

	_, err := p.GetChain(context.Background(), "", expiration, broker.TierFree)
	assert.ErrorIs(t, err, models.ErrMalformedChain)

	_, err = p.GetChain(context.Background(), "SPY", time.Time{}, broker.TierFree)
	assert.ErrorIs(t, err, models.ErrMalformedChain)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = p.GetChain(ctx, "SPY", expiration, broker.TierFree)
	assert.True(t, errors.Is(err, context.Canceled))
	_, err = p.GetExpirations(ctx, "SPY", broker.TierFree)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestDataProvider_GetExpirations(t *testing.T) {
	exps, err := provider().GetExpirations(context.Background(), "SPY", broker.TierFree)
	require.NoError(t, err)
	require.Len(t, exps, 8)

	assert.Equal(t, time.Date(2025, time.January, 3, 0, 0, 0, 0, time.UTC), exps[0])
	for i, e := range exps {
		assert.Equal(t, time.Friday, e.Weekday())
		if i > 0 {
			assert.Equal(t, 7*24*time.Hour, e.Sub(exps[i-1]))
		}
	}
}

func TestDataProvider_DefaultSpot(t *testing.T) {
	chain, err := NewDataProvider().GetChain(context.Background(), "QQQ", expiration, broker.TierFree)
	require.NoError(t, err)
	assert.Equal(t, defaultSpot, chain.SpotPrice)
}
