// Package api implements the marketplace HTTP API server.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/klingnet-market/config"
	"github.com/Klingon-tech/klingnet-market/internal/history"
	"github.com/Klingon-tech/klingnet-market/internal/ledger"
	klog "github.com/Klingon-tech/klingnet-market/internal/log"
	"github.com/Klingon-tech/klingnet-market/internal/metrics"
	"github.com/Klingon-tech/klingnet-market/internal/sale"
	"github.com/Klingon-tech/klingnet-market/internal/transfer"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Services are the domain components behind the API.
type Services struct {
	Ledger    *ledger.Ledger
	Sales     *sale.Engine
	Transfers *transfer.Handler
	History   *history.Log
}

// Server is the marketplace HTTP server.
type Server struct {
	addr        string
	svc         Services
	router      chi.Router
	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	limiter     *rateLimiter // nil = no rate limiting.
	allowedNets []*net.IPNet // Empty = allow all.
	corsOrigins []string     // Empty = no CORS headers.
}

// New creates a new API server. A zero-value APIConfig allows all IPs,
// disables CORS and rate limiting and listens on an ephemeral port.
func New(cfg config.APIConfig, svc Services) *Server {
	s := &Server{
		addr:        cfg.ListenAddr(),
		svc:         svc,
		logger:      klog.WithComponent("api"),
		allowedNets: parseAllowedIPs(cfg.AllowedIPs),
		corsOrigins: cfg.CORSOrigins,
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		s.limiter = newRateLimiter(cfg.RateLimit, burst)
	}

	s.router = s.routes()
	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.filterIPs)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(metrics.InstrumentHandler)
	r.Use(s.cors)
	if s.limiter != nil {
		r.Use(s.limiter.Handler)
	}
	r.Use(limitBody)

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/tokens", s.handleListTokens)
		r.Post("/tokens/create", s.handleCreateToken)
		r.Get("/tokens/{id}", s.handleGetToken)
		r.Post("/tokens/{id}/buy", s.handleBuy)

		r.Get("/sales/{saleId}", s.handleGetSale)
		r.Post("/sales/{saleId}/confirm", s.handleConfirm)

		r.Post("/transfer", s.handleTransfer)

		r.Get("/balances/{address}", s.handleBalances)
		r.Get("/history/{address}", s.handleHistory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, errorBody{Reason: reasonNotFound, Error: "route not found"})
	})

	return r
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("API server listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
