package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/pascal/internal/domain"
	"github.com/alanyoungcy/pascal/internal/server/handler"
	"github.com/alanyoungcy/pascal/internal/server/middleware"
	"github.com/alanyoungcy/pascal/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	// APIKeys gates the operator routes. An empty list rejects every gated
	// request.
	APIKeys []string
	// GateCreateMarket puts POST /api/createMarket behind the API key too.
	GateCreateMarket bool
	RateLimit        int
	RateWindow       time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health   *handler.HealthHandler
	Status   *handler.StatusHandler
	Markets  *handler.MarketHandler
	Orders   *handler.OrderHandler
	Lending  *handler.LendingHandler
	Creation *handler.CreationHandler
	Admin    *handler.AdminHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with every route registered. wsHub and limiter
// may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := Routes(cfg, handlers, wsHub)

	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Routes builds the route table without the outer middleware.
func Routes(cfg Config, handlers Handlers, wsHub *ws.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	gate := middleware.APIKey(cfg.APIKeys)
	gated := func(f http.HandlerFunc) http.Handler { return gate(f) }

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Catalog.
	if cfg.GateCreateMarket {
		mux.Handle("POST /api/createMarket", gated(handlers.Markets.CreateMarket))
	} else {
		mux.HandleFunc("POST /api/createMarket", handlers.Markets.CreateMarket)
	}
	mux.HandleFunc("GET /api/getMarkets", handlers.Markets.GetMarkets)
	mux.HandleFunc("GET /api/markets/{publicKey}", handlers.Markets.GetMarket)
	mux.HandleFunc("GET /api/markets/{publicKey}/position", handlers.Markets.GetPosition)

	// Orders.
	mux.HandleFunc("POST /api/placeOrder", handlers.Orders.PlaceOrder)
	mux.HandleFunc("GET /api/user", handlers.Orders.GetUser)

	// Lending.
	mux.HandleFunc("GET /api/loans", handlers.Lending.Loans)
	mux.HandleFunc("GET /api/treasury-stats", handlers.Lending.TreasuryStats)
	mux.HandleFunc("GET /api/token-price", handlers.Lending.TokenPrice)
	mux.HandleFunc("GET /api/loan-quote", handlers.Lending.LoanQuote)

	// Server-side market creation.
	mux.Handle("POST /api/creation", gated(handlers.Creation.Submit))
	mux.HandleFunc("GET /api/creation/{runId}", handlers.Creation.GetRun)

	// Operator.
	mux.Handle("POST /api/admin/export", gated(handlers.Admin.Export))
	mux.Handle("GET /api/admin/exports", gated(handlers.Admin.ListExports))
	mux.Handle("GET /api/admin/audit", gated(handlers.Admin.ListAudit))

	// Other methods on the single-method routes get a JSON 405.
	for _, path := range []string{
		"/api/createMarket", "/api/placeOrder", "/api/loans",
		"/api/treasury-stats", "/api/token-price", "/api/creation",
	} {
		mux.HandleFunc(path, handler.MethodNotAllowed)
	}

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
	return mux
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
