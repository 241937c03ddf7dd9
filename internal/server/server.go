package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/alanyoungcy/nftmarket/internal/metrics"
	"github.com/alanyoungcy/nftmarket/internal/server/handler"
	"github.com/alanyoungcy/nftmarket/internal/server/middleware"
	"github.com/alanyoungcy/nftmarket/internal/server/ws"
)

// Config configures the API listener and its guards.
type Config struct {
	Port        int
	CORSOrigins []string
	// AdminToken guards /api/admin routes. Empty disables them.
	AdminToken string
	// TxRateLimit caps POST /api/tx per client IP per TxRateWindow.
	TxRateLimit  int
	TxRateWindow time.Duration
	// TrustedProxies are the CIDRs whose X-Forwarded-For is believed when
	// keying the limiter. Empty keys on the socket peer.
	TrustedProxies []string
}

// Handlers are the route groups to serve.
// Only Health is required; routes of nil handlers are not registered.
type Handlers struct {
	Health *handler.HealthHandler
	Market *handler.MarketHandler
	Index  *handler.IndexHandler
	Tx     *handler.TxHandler
	Admin  *handler.AdminHandler
}

// Server is the HTTP and WebSocket API of the marketplace node.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers the routes of the non-nil handlers.
// limiter, wsHub and m may be nil.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, wsHub *ws.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/ready", handlers.Health.Ready)

	if handlers.Market != nil {
		mux.HandleFunc("GET /api/deployments", handlers.Market.Deployments)
		mux.HandleFunc("GET /api/version", handlers.Market.Version)
		mux.HandleFunc("GET /api/accounts/{address}", handlers.Market.GetAccount)
		mux.HandleFunc("GET /api/orders/{id}", handlers.Market.GetOrder)
		mux.HandleFunc("GET /api/orders/{id}/proposals", handlers.Market.ListProposals)
		mux.HandleFunc("GET /api/tokens/{contract}/{id}/owner", handlers.Market.OwnerOf)
	}

	if handlers.Index != nil {
		mux.HandleFunc("GET /api/orders", handlers.Index.ListOrders)
		mux.HandleFunc("GET /api/events", handlers.Index.RecentEvents)
	}

	if handlers.Tx != nil {
		proxies, err := middleware.ParseProxies(cfg.TrustedProxies)
		if err != nil {
			logger.Error("ignoring trusted proxies", slog.String("error", err.Error()))
			proxies = nil
		}
		submit := middleware.RateLimit(limiter, cfg.TxRateLimit, cfg.TxRateWindow, proxies, logger)(http.HandlerFunc(handlers.Tx.Submit))
		mux.Handle("POST /api/tx", submit)
		mux.HandleFunc("GET /api/tx/{hash}", handlers.Tx.GetReceipt)
	}

	if handlers.Admin != nil && cfg.AdminToken != "" {
		guard := middleware.AdminAuth(cfg.AdminToken, logger)
		mux.Handle("POST /api/admin/snapshot", guard(http.HandlerFunc(handlers.Admin.TriggerSnapshot)))
		mux.Handle("GET /api/admin/audit", guard(http.HandlerFunc(handlers.Admin.AuditLog)))
	}

	mux.Handle("GET /metrics", m.Handler())

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Logging(logger, m)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       2 * time.Minute,
		},
		logger: logger,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start binds the port and serves until Shutdown. A bind failure is
// returned immediately.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.httpServer.Addr, err)
	}
	s.logger.Info("api listening", slog.String("addr", ln.Addr().String()))
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.logger.Info("api stopped")
	return nil
}
