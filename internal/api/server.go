// Package api exposes the recommendation service over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/options_strategist/internal/broker"
	"github.com/eddiefleurent/options_strategist/internal/chain"
	"github.com/eddiefleurent/options_strategist/internal/models"
	"github.com/eddiefleurent/options_strategist/internal/recommend"
	"github.com/eddiefleurent/options_strategist/internal/storage"
)

const (
	maxBodyBytes    = 4 << 20
	maxHistory      = 500
	requestIDHeader = "X-Request-ID"
)

// Server serves the JSON API.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	service   *recommend.Service
	logger    logrus.FieldLogger
	addr      string
	authToken string
	timeout   time.Duration
}

// Config holds listener settings. An empty AuthToken disables authentication.
type Config struct {
	Addr           string
	AuthToken      string
	RequestTimeout time.Duration
}

// NewServer builds the router around service.
func NewServer(cfg Config, service *recommend.Service, logger logrus.FieldLogger) *Server {
	// Guard against nil logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}

	s := &Server{
		router:    chi.NewRouter(),
		service:   service,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
		timeout:   cfg.RequestTimeout,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(s.timeout))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/strategies", s.handleStrategies)
		r.Post("/strategies/scan", s.handleScan)
		r.Get("/history", s.handleHistory)
		r.Get("/history/{id}", s.handleHistoryItem)
		r.Get("/stats", s.handleStats)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).String(),
			"request_id": ww.Header().Get(requestIDHeader),
		}).Info("request")
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting API server on %s", s.addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// strategyRequest is the body of POST /api/strategies.
// Chain, when present, is evaluated instead of fetching one from the provider.
type strategyRequest struct {
	Chain       map[string]any `json:"chain,omitempty"`
	Symbol      string         `json:"symbol"`
	Outlook     string         `json:"outlook"`
	RiskProfile string         `json:"risk_profile"`
	Tier        string         `json:"tier"`
	Expiration  string         `json:"expiration"`
	Capital     float64        `json:"capital"`
}

type scanRequest struct {
	Symbol      string   `json:"symbol"`
	Outlook     string   `json:"outlook"`
	RiskProfile string   `json:"risk_profile"`
	Tier        string   `json:"tier"`
	Expirations []string `json:"expirations"`
	Capital     float64  `json:"capital"`
}

func (b strategyRequest) toRequest() (recommend.Request, error) {
	return buildRequest(b.Symbol, b.Outlook, b.RiskProfile, b.Tier, b.Expiration, b.Capital)
}

func buildRequest(symbol, outlook, risk, tier, expiration string, capital float64) (recommend.Request, error) {
	o, err := models.ParseOutlook(outlook)
	if err != nil {
		return recommend.Request{}, fmt.Errorf("%w: %w", recommend.ErrInvalidRequest, err)
	}
	rp, err := models.ParseRiskProfile(risk)
	if err != nil {
		return recommend.Request{}, fmt.Errorf("%w: %w", recommend.ErrInvalidRequest, err)
	}
	t, err := broker.ParseTier(tier)
	if err != nil {
		return recommend.Request{}, fmt.Errorf("%w: %w", recommend.ErrInvalidRequest, err)
	}
	exp, err := parseDate(expiration)
	if err != nil {
		return recommend.Request{}, err
	}
	return recommend.Request{
		Expiration:  exp,
		Symbol:      symbol,
		Outlook:     o,
		RiskProfile: rp,
		Tier:        t,
		Capital:     capital,
	}, nil
}

func parseDate(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: expiration %q must be YYYY-MM-DD", recommend.ErrInvalidRequest, s)
	}
	return t, nil
}

func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	var body strategyRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := body.toRequest()
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var rec *models.Recommendation
	if body.Chain != nil {
		c, nerr := chain.Normalize(body.Chain)
		if nerr != nil {
			s.respondError(w, r, nerr)
			return
		}
		rec, err = s.service.Evaluate(req, c)
	} else {
		rec, err = s.service.Recommend(r.Context(), req)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := buildRequest(body.Symbol, body.Outlook, body.RiskProfile, body.Tier, "", body.Capital)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	scan := recommend.ScanRequest{Request: req}
	for _, e := range body.Expirations {
		exp, err := parseDate(e)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if !exp.IsZero() {
			scan.Expirations = append(scan.Expirations, exp)
		}
	}

	res, err := s.service.Scan(r.Context(), scan)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistory)
	}
	writeJSON(w, http.StatusOK, s.service.History(r.URL.Query().Get("symbol"), limit))
}

func (s *Server) handleHistoryItem(w http.ResponseWriter, r *http.Request) {
	rec, err := s.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Statistics())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, recommend.ErrInvalidRequest),
		errors.Is(err, models.ErrUnknownOutlook),
		errors.Is(err, models.ErrUnknownRiskProfile):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrMalformedChain),
		errors.Is(err, recommend.ErrNoExpiration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := s.logger.WithError(err).WithFields(logrus.Fields{
		"path":   r.URL.Path,
		"status": status,
	})
	if status >= 500 {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	writeError(w, status, err.Error())
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
