// Package server exposes the relayer as a JSON-RPC 2.0 endpoint over HTTP.
// The request pipeline is: liveness rewrite, rate limit, CORS, body size
// limit, method whitelist, auth, then the method handler.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/brojonat/kora/service/cache"
	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/fee"
	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/payment"
	"github.com/brojonat/kora/service/signer"
	"github.com/brojonat/kora/service/solana"
	"github.com/brojonat/kora/service/usage"
	"github.com/brojonat/kora/service/validator"
)

// Deps bundles the request-pipeline dependencies.
type Deps struct {
	Pool      *signer.Pool
	Chain     *solana.Client
	Accounts  *cache.AccountCache
	Validator *validator.Validator
	Estimator *fee.Estimator
	Payments  *payment.Verifier
	Usage     *usage.Limiter
	Metrics   *metrics.Metrics
}

// Server is the relayer's HTTP front end.
type Server struct {
	addr    string
	cfg     *config.Config
	rules   *config.Rules
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger
	server  *http.Server
}

// New creates a server. The rate limiter is global: rate_limit requests per
// second with an equal burst. A zero rate_limit disables limiting.
func New(addr string, cfg *config.Config, rules *config.Rules, deps Deps, logger *slog.Logger) *Server {
	var limiter *rate.Limiter
	if cfg.Kora.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Kora.RateLimit), int(cfg.Kora.RateLimit))
	}
	return &Server{
		addr:    addr,
		cfg:     cfg,
		rules:   rules,
		deps:    deps,
		limiter: limiter,
		logger:  logger,
	}
}

// Start runs the HTTP server until it fails or Shutdown is called.
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.Handle("POST /", s.handleRPC())

	handler := livenessMiddleware(
		rateLimitMiddleware(s.limiter, s.deps.Metrics,
			corsMiddleware(mux)))

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting JSON-RPC server",
		"addr", s.addr,
		"enabled_methods", s.cfg.EnabledMethodNames(knownMethods),
	)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down JSON-RPC server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
