// Package strategy selects contracts from an option chain snapshot and
// assembles validated multi-leg strategies for a market outlook.
//
// The engine is synchronous and pure given its inputs: it performs no I/O,
// holds no mutable state after construction, and never writes to the
// caller's chain. Candidates that fail a validation gate are dropped, not
// reported as errors.
package strategy

import (
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_strategist/internal/models"
)

// Config holds the engine's validation thresholds and injected policies.
type Config struct {
	Fallback      SensitivityFallback
	Probability   ProbabilityModel
	MissingGreeks MissingGreeksPolicy
	MaxSpreadPct  float64

	// DTE window outside which a condor is flagged (advisory only)
	MinAdvisoryDTE int
	MaxAdvisoryDTE int
}

// DefaultConfig is the reference engine configuration.
var DefaultConfig = Config{
	Fallback:       NoopFallback{},
	Probability:    DefaultProbability,
	MissingGreeks:  PolicySkip,
	MaxSpreadPct:   DefaultMaxSpreadPct,
	MinAdvisoryDTE: 30,
	MaxAdvisoryDTE: 60,
}

// Request carries the per-invocation parameters.
// Zero Symbol, SpotPrice and Expiration fall back to the chain's values.
// Zero AsOf means the engine clock, so identical output across calls needs a
// fixed AsOf.
type Request struct {
	Expiration  time.Time
	AsOf        time.Time
	Symbol      string
	Outlook     models.Outlook
	RiskProfile models.RiskProfile
	SpotPrice   float64
	Capital     float64
}

// algorithm builds at most one candidate for a resolved run.
type algorithm func(e *Engine, r *run) (models.Strategy, bool, error)

// algorithms maps every outlook with an implementation. Bearish is absent on purpose.
var algorithms = map[models.Outlook]algorithm{
	models.OutlookNeutral:  (*Engine).ironCondor,
	models.OutlookVolatile: (*Engine).longStraddle,
	models.OutlookBullish:  (*Engine).bullCallSpread,
}

// Supports reports whether an algorithm exists for the outlook.
func Supports(o models.Outlook) bool {
	_, ok := algorithms[o]
	return ok
}

// Engine dispatches a request to the algorithm for its outlook.
type Engine struct {
	logger logrus.FieldLogger
	clock  func() time.Time
	config Config
}

// NewEngine creates an engine. A nil logger discards output.
func NewEngine(logger logrus.FieldLogger, config ...Config) *Engine {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.Fallback == nil {
		cfg.Fallback = NoopFallback{}
	}
	if cfg.Probability == nil {
		cfg.Probability = DefaultProbability
	}
	if cfg.MissingGreeks == "" {
		cfg.MissingGreeks = PolicySkip
	}
	if cfg.MaxSpreadPct <= 0 {
		cfg.MaxSpreadPct = DefaultMaxSpreadPct
	}

	// Guard against nil logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	return &Engine{
		logger: logger,
		clock:  time.Now,
		config: cfg,
	}
}

// WithClock overrides the time source used when a request has no AsOf.
func (e *Engine) WithClock(clock func() time.Time) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// run is the resolved state of one invocation.
type run struct {
	chain   *models.Chain
	log     logrus.FieldLogger
	sel     selector
	info    ChainInfo
	symbol  string
	profile models.RiskProfile
	outlook models.Outlook
}

func (r *run) leg(e *Engine, q models.Quote, ratio int, kind models.OptionType) models.Leg {
	var fallback SensitivityFallback
	if e.config.MissingGreeks == PolicyEstimate {
		fallback = e.config.Fallback
	}
	return BuildLeg(q, r.symbol, ratio, kind, r.info, fallback)
}

// GenerateStrategies returns the validated strategies for the requested
// outlook, sorted by probability of profit, highest first. An empty slice
// means nothing passed validation. Errors are returned only for structurally
// invalid input.
func (e *Engine) GenerateStrategies(chain *models.Chain, req Request) ([]models.Strategy, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is nil", models.ErrMalformedChain)
	}
	if !req.Outlook.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownOutlook, req.Outlook)
	}
	profile := req.RiskProfile
	if profile == "" {
		profile = models.RiskConservative
	}
	if !profile.Valid() {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownRiskProfile, profile)
	}

	symbol := req.Symbol
	if symbol == "" {
		symbol = chain.Symbol
	}
	if symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", models.ErrMalformedChain)
	}
	spot := req.SpotPrice
	if spot == 0 {
		spot = chain.SpotPrice
	}
	if !(spot > 0) || math.IsInf(spot, 0) {
		return nil, fmt.Errorf("%w: spot price must be positive, got %v", models.ErrMalformedChain, spot)
	}

	log := e.logger.WithFields(logrus.Fields{
		"symbol":  symbol,
		"outlook": req.Outlook,
		"risk":    profile,
	})
	results := []models.Strategy{}

	expiration := req.Expiration
	if expiration.IsZero() {
		expiration = chain.Expiration
	}
	if expiration.IsZero() {
		log.Warn("no expiration date on request or chain; skipping strategy generation")
		return results, nil
	}

	algo, ok := algorithms[req.Outlook]
	if !ok {
		log.Info("no strategy algorithm for outlook")
		return results, nil
	}

	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = e.clock()
	}

	r := &run{
		chain:   chain,
		log:     log,
		symbol:  symbol,
		profile: profile,
		outlook: req.Outlook,
		info: ChainInfo{
			Expiration: expiration,
			AsOf:       asOf,
			Spot:       spot,
		},
		sel: selector{
			chain:      chain,
			fallback:   e.config.Fallback,
			policy:     e.config.MissingGreeks,
			expiration: expiration,
			spot:       spot,
		},
	}

	s, found, err := algo(e, r)
	if err != nil {
		return nil, err
	}
	if found {
		s.Outlook = req.Outlook
		s.Contracts = contractsFor(req.Capital, s.Metrics.MaxLoss)
		results = append(results, s)
	}

	SortByProbability(results)
	return results, nil
}

// contractsFor sizes a position so the total max loss fits inside capital.
func contractsFor(capital, maxLoss float64) int {
	if capital <= 0 || maxLoss <= 0 {
		return 0
	}
	return int(math.Floor(capital / (maxLoss * models.SharesPerContract)))
}

// SortByProbability orders strategies by descending POP; NaN ranks as 0.
func SortByProbability(s []models.Strategy) {
	pop := func(i int) float64 {
		p := s[i].Metrics.ProbabilityOfProfit
		if math.IsNaN(p) {
			return 0
		}
		return p
	}
	sort.SliceStable(s, func(i, j int) bool { return pop(i) > pop(j) })
}
