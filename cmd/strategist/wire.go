package main

import (
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/config"
	"github.com/eddiefleurent/options_strategist/internal/mock"
	"github.com/eddiefleurent/options_strategist/internal/pricing"
	"github.com/eddiefleurent/options_strategist/internal/recommend"
	"github.com/eddiefleurent/options_strategist/internal/retry"
	"github.com/eddiefleurent/options_strategist/internal/storage"
	"github.com/eddiefleurent/options_strategist/internal/strategy"
)

// buildProvider layers retry over the circuit breaker over the configured source.
func buildProvider(cfg *config.Config, logger logrus.FieldLogger) broker.ChainProvider {
	var provider broker.ChainProvider
	switch cfg.Provider.Type {
	case config.ProviderTradier:
		provider = broker.NewTradierProvider(
			broker.Endpoint{BaseURL: cfg.Provider.BaseURL, APIKey: cfg.Provider.APIKey},
			broker.Endpoint{BaseURL: cfg.Provider.FreeBaseURL, APIKey: cfg.Provider.FreeAPIKey},
			logger,
		).WithTimeout(cfg.Provider.Timeout)
	default:
		m := mock.NewDataProvider()
		for sym, spot := range cfg.Provider.MockSpots {
			m.WithSpot(sym, spot)
		}
		m.Volatility = cfg.Engine.Volatility
		m.Rate = cfg.Engine.Rate
		provider = m
	}

	if cb := cfg.Provider.CircuitBreaker; cb.Enabled {
		provider = broker.NewCircuitBreakerProviderWithSettings(provider, broker.CircuitBreakerSettings{
			MaxRequests:  cb.MaxRequests,
			Interval:     cb.Interval,
			Timeout:      cb.Timeout,
			MinRequests:  cb.MinRequests,
			FailureRatio: cb.FailureRatio,
		}, logger)
	}

	return retry.NewClient(provider, logger, retry.Config{
		MaxRetries:     cfg.Retry.MaxRetries,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		Timeout:        cfg.Retry.Timeout,
	})
}

func buildEngine(cfg *config.Config, logger logrus.FieldLogger) *strategy.Engine {
	ec := strategy.DefaultConfig
	ec.MissingGreeks = cfg.MissingGreeksPolicy()
	ec.MaxSpreadPct = cfg.Engine.MaxSpreadPct
	ec.MinAdvisoryDTE, ec.MaxAdvisoryDTE = cfg.DTEWindow()
	if ec.MissingGreeks == strategy.PolicyEstimate {
		ec.Fallback = pricing.NewBlackScholes(cfg.Engine.Volatility, cfg.Engine.Rate)
	}
	return strategy.NewEngine(logger, ec)
}

func buildService(cfg *config.Config, provider broker.ChainProvider, logger logrus.FieldLogger) (*recommend.Service, error) {
	journal, err := storage.NewStorage(cfg.Storage.Path, cfg.Storage.MaxRecords)
	if err != nil {
		return nil, err
	}
	minDTE, maxDTE := cfg.DTEWindow()
	return recommend.NewService(provider, buildEngine(cfg, logger), journal, logger, recommend.Options{
		MinDTE: minDTE,
		MaxDTE: maxDTE,
	}), nil
}
