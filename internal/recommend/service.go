// Package recommend ties a chain provider, the strategy engine and the
// recommendation journal into request-level operations.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/storage"
	"github.com/eddiefleurent/options_strategist/internal/strategy"
)

var (
	// ErrInvalidRequest is returned when request parameters fail validation
	ErrInvalidRequest = errors.New("invalid request")
	// ErrNoExpiration is returned when the provider lists no usable expiration
	ErrNoExpiration = errors.New("no usable expiration")
)

// Options bounds expiration selection and scan fan-out.
type Options struct {
	MinDTE             int
	MaxDTE             int
	MaxScanExpirations int
	Concurrency        int
}

// DefaultOptions targets the 30-60 DTE window.
var DefaultOptions = Options{
	MinDTE:             30,
	MaxDTE:             60,
	MaxScanExpirations: 6,
	Concurrency:        4,
}

// Request describes a single recommendation run.
// A zero Expiration lets the service pick one inside the DTE window.
type Request struct {
	Expiration  time.Time
	Symbol      string
	Outlook     models.Outlook
	RiskProfile models.RiskProfile
	Tier        broker.Tier
	Capital     float64
}

// ScanRequest runs one Request per expiration.
// Empty Expirations means every listed expiration inside the DTE window.
type ScanRequest struct {
	Request
	Expirations []time.Time
}

// ScanResult merges the per-expiration runs.
type ScanResult struct {
	Symbol          string                  `json:"symbol"`
	Outlook         models.Outlook          `json:"outlook"`
	RiskProfile     models.RiskProfile      `json:"risk_profile"`
	Message         string                  `json:"message,omitempty"`
	Strategies      []models.Strategy       `json:"strategies"`
	Recommendations []models.Recommendation `json:"recommendations"`
	Skipped         []string                `json:"skipped,omitempty"`
}

// Service is safe for concurrent use.
type Service struct {
	provider broker.ChainProvider
	engine   *strategy.Engine
	journal  storage.Interface
	logger   logrus.FieldLogger
	clock    func() time.Time
	opts     Options
}

// NewService wires a provider, engine and journal. A nil journal disables recording.
func NewService(
	provider broker.ChainProvider,
	engine *strategy.Engine,
	journal storage.Interface,
	logger logrus.FieldLogger,
	opts ...Options,
) *Service {
	o := DefaultOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.MinDTE <= 0 {
		o.MinDTE = DefaultOptions.MinDTE
	}
	if o.MaxDTE < o.MinDTE {
		o.MaxDTE = o.MinDTE
	}
	if o.MaxScanExpirations <= 0 {
		o.MaxScanExpirations = DefaultOptions.MaxScanExpirations
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultOptions.Concurrency
	}

	// Guard against nil logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if engine == nil {
		engine = strategy.NewEngine(logger)
	}

	return &Service{
		provider: provider,
		engine:   engine,
		journal:  journal,
		logger:   logger,
		clock:    time.Now,
		opts:     o,
	}
}

// WithClock overrides the time source used for DTE and as-of timestamps.
func (s *Service) WithClock(clock func() time.Time) *Service {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (r *Request) normalize() error {
	r.Symbol = strings.ToUpper(strings.TrimSpace(r.Symbol))
	if r.Symbol == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidRequest)
	}
	if !r.Outlook.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, models.ErrUnknownOutlook, r.Outlook)
	}
	if r.RiskProfile == "" {
		r.RiskProfile = models.RiskConservative
	}
	if !r.RiskProfile.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRequest, models.ErrUnknownRiskProfile, r.RiskProfile)
	}
	if r.Tier == "" {
		r.Tier = broker.TierFree
	}
	if r.Tier != broker.TierFree && r.Tier != broker.TierPro {
		return fmt.Errorf("%w: unknown tier %q", ErrInvalidRequest, r.Tier)
	}
	if r.Capital < 0 || math.IsNaN(r.Capital) || math.IsInf(r.Capital, 0) {
		return fmt.Errorf("%w: capital must be a non-negative number", ErrInvalidRequest)
	}
	return nil
}

// Recommend fetches one chain, runs the engine and journals the result.
func (s *Service) Recommend(ctx context.Context, req Request) (*models.Recommendation, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	now := s.clock()

	// No algorithm means no chain is needed
	if !strategy.Supports(req.Outlook) {
		rec := s.newRecord(req, req.Expiration, 0, nil, now)
		s.record(rec)
		return rec, nil
	}

	expiration := req.Expiration
	if expiration.IsZero() {
		exps, err := s.provider.GetExpirations(ctx, req.Symbol, req.Tier)
		if err != nil {
			return nil, fmt.Errorf("listing expirations for %s: %w", req.Symbol, err)
		}
		var ok bool
		if expiration, ok = PickExpiration(exps, now, s.opts.MinDTE, s.opts.MaxDTE); !ok {
			return nil, fmt.Errorf("%w for %s", ErrNoExpiration, req.Symbol)
		}
	}

	rec, err := s.run(ctx, req, expiration, now)
	if err != nil {
		return nil, err
	}
	s.record(rec)
	return rec, nil
}

// Evaluate runs the engine over a caller-supplied chain and journals the
// result. Symbol and expiration default to the chain's own values.
func (s *Service) Evaluate(req Request, chain *models.Chain) (*models.Recommendation, error) {
	if chain == nil {
		return nil, fmt.Errorf("%w: chain is nil", models.ErrMalformedChain)
	}
	if strings.TrimSpace(req.Symbol) == "" {
		req.Symbol = chain.Symbol
	}
	if err := req.normalize(); err != nil {
		return nil, err
	}
	expiration := req.Expiration
	if expiration.IsZero() {
		expiration = chain.Expiration
	}

	rec, err := s.evaluate(req, chain, expiration, s.clock())
	if err != nil {
		return nil, err
	}
	s.record(rec)
	return rec, nil
}

// Scan runs the engine across several expirations concurrently and merges
// the strategies by probability of profit. Chains the provider reports as
// malformed are skipped.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}
	now := s.clock()

	result := &ScanResult{
		Symbol:          req.Symbol,
		Outlook:         req.Outlook,
		RiskProfile:     req.RiskProfile,
		Strategies:      []models.Strategy{},
		Recommendations: []models.Recommendation{},
	}
	if !strategy.Supports(req.Outlook) {
		rec := s.newRecord(req.Request, time.Time{}, 0, nil, now)
		s.record(rec)
		result.Recommendations = append(result.Recommendations, *rec)
		result.Message = models.EmptyResultMessage
		return result, nil
	}

	exps := req.Expirations
	if len(exps) == 0 {
		listed, err := s.provider.GetExpirations(ctx, req.Symbol, req.Tier)
		if err != nil {
			return nil, fmt.Errorf("listing expirations for %s: %w", req.Symbol, err)
		}
		exps = InWindow(listed, now, s.opts.MinDTE, s.opts.MaxDTE)
	}
	exps = dedupe(exps)
	if len(exps) > s.opts.MaxScanExpirations {
		exps = exps[:s.opts.MaxScanExpirations]
	}
	if len(exps) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoExpiration, req.Symbol)
	}

	var (
		mu      sync.Mutex
		recs    = make([]*models.Recommendation, len(exps))
		skipped []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i, exp := range exps {
		i, exp := i, exp
		g.Go(func() error {
			rec, err := s.run(gctx, req.Request, exp, now)
			if errors.Is(err, models.ErrMalformedChain) {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"symbol":     req.Symbol,
					"expiration": exp.Format("2006-01-02"),
				}).Warn("skipping malformed chain")
				mu.Lock()
				skipped = append(skipped, exp.Format("2006-01-02"))
				mu.Unlock()
				return nil
			}
			if err != nil {
				return err
			}
			recs[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, rec := range recs {
		if rec == nil {
			continue
		}
		s.record(rec)
		result.Recommendations = append(result.Recommendations, *rec)
		result.Strategies = append(result.Strategies, rec.Strategies...)
	}
	sort.Strings(skipped)
	result.Skipped = skipped
	strategy.SortByProbability(result.Strategies)
	if len(result.Strategies) == 0 {
		result.Message = models.EmptyResultMessage
	}
	return result, nil
}

func (s *Service) run(ctx context.Context, req Request, expiration time.Time, now time.Time) (*models.Recommendation, error) {
	chain, err := s.provider.GetChain(ctx, req.Symbol, expiration, req.Tier)
	if err != nil {
		return nil, fmt.Errorf("fetching %s chain for %s: %w", req.Symbol, expiration.Format("2006-01-02"), err)
	}
	return s.evaluate(req, chain, expiration, now)
}

func (s *Service) evaluate(req Request, chain *models.Chain, expiration, now time.Time) (*models.Recommendation, error) {
	strategies, err := s.engine.GenerateStrategies(chain, strategy.Request{
		Expiration:  expiration,
		AsOf:        now,
		Symbol:      req.Symbol,
		Outlook:     req.Outlook,
		RiskProfile: req.RiskProfile,
		Capital:     req.Capital,
	})
	if err != nil {
		return nil, fmt.Errorf("generating strategies: %w", err)
	}
	return s.newRecord(req, expiration, chain.SpotPrice, strategies, now), nil
}

func (s *Service) newRecord(
	req Request,
	expiration time.Time,
	spot float64,
	strategies []models.Strategy,
	now time.Time,
) *models.Recommendation {
	if strategies == nil {
		strategies = []models.Strategy{}
	}
	rec := &models.Recommendation{
		CreatedAt:   now.UTC(),
		Expiration:  expiration,
		Symbol:      req.Symbol,
		Outlook:     req.Outlook,
		RiskProfile: req.RiskProfile,
		Tier:        string(req.Tier),
		Strategies:  strategies,
		SpotPrice:   spot,
		Capital:     req.Capital,
	}
	if rec.IsEmpty() {
		rec.Message = models.EmptyResultMessage
	}
	return rec
}

// record journals rec. Failures are logged; the caller still gets its result.
func (s *Service) record(rec *models.Recommendation) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Append(rec); err != nil {
		s.logger.WithError(err).WithField("symbol", rec.Symbol).Error("failed to journal recommendation")
	}
}

// History returns journaled recommendations, newest first.
func (s *Service) History(symbol string, limit int) []models.Recommendation {
	if s.journal == nil {
		return []models.Recommendation{}
	}
	return s.journal.History(symbol, limit)
}

// Get returns one journaled recommendation.
func (s *Service) Get(id string) (*models.Recommendation, error) {
	if s.journal == nil {
		return nil, storage.ErrNotFound
	}
	return s.journal.Get(id)
}

// Statistics returns journal counters.
func (s *Service) Statistics() *storage.Statistics {
	if s.journal == nil {
		return &storage.Statistics{}
	}
	return s.journal.GetStatistics()
}
