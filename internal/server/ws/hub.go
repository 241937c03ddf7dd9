// Package ws relays committed marketplace events from the signal bus to
// WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Config selects the bus channel to relay and what the hello frame reports.
type Config struct {
	Channel   string
	Mode      string
	StartedAt time.Time
	// Origins lists browser origins allowed to connect. Empty or "*"
	// allows any origin.
	Origins []string
}

// Hub fans bus events out to connected clients according to each client's
// filter.
type Hub struct {
	bus       domain.SignalBus
	channel   string
	mode      string
	startedAt time.Time
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub reading from bus. logger may be nil.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "unknown"
	}
	started := cfg.StartedAt
	if started.IsZero() {
		started = time.Now().UTC()
	}
	return &Hub{
		bus:       bus,
		channel:   cfg.Channel,
		mode:      mode,
		startedAt: started,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.Origins),
		},
		logger:  logger.With(slog.String("component", "ws")),
		clients: make(map[*client]struct{}),
	}
}

// originChecker admits requests without an Origin header (non-browser
// clients) and browser requests from an allowed origin.
func originChecker(origins []string) func(*http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[strings.ToLower(o)] = true
		}
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
	}
}

// Run relays bus messages until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		return fmt.Errorf("ws: subscribe %s: %w", h.channel, err)
	}
	h.logger.InfoContext(ctx, "relaying events", slog.String("channel", h.channel))
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ws: subscription to %s closed", h.channel)
			}
			var ev eventHeader
			if err := json.Unmarshal(data, &ev); err != nil || ev.Name == "" {
				h.logger.DebugContext(ctx, "ignoring malformed bus message")
				continue
			}
			h.broadcast(ev, data)
		}
	}
}

// eventHeader is the part of a domain.MarketEvent used for routing.
type eventHeader struct {
	Name    string `json:"name"`
	OrderID uint64 `json:"orderId"`
}

func (h *Hub) broadcast(ev eventHeader, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.filter.match(ev) {
			continue
		}
		if !c.enqueue(data) {
			h.logger.Warn("disconnecting slow client", slog.String("remote", c.remote))
			h.dropLocked(c)
		}
	}
}

// HandleWS upgrades the request and serves the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := newClient(h, conn, r.RemoteAddr)

	n, ok := h.register(c)
	if !ok {
		_ = conn.Close()
		return
	}
	h.logger.Info("client connected", slog.String("remote", c.remote), slog.Int("clients", n))

	go c.writeLoop()
	go c.readLoop()
}

// register adds c with the hello message already queued. It fails once
// the hub has shut down.
func (h *Hub) register(c *client) (int, bool) {
	hello := h.hello()

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, false
	}
	h.clients[c] = struct{}{}
	c.enqueue(hello)
	return len(h.clients), true
}

// drop forgets c and closes its outbound queue. Safe to call twice.
func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c)
}

func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c)
	}
}

func (h *Hub) hello() []byte {
	b, _ := json.Marshal(map[string]any{
		"type": "hello",
		"payload": map[string]any{
			"mode":           h.mode,
			"channel":        h.channel,
			"uptime_seconds": max(int64(time.Since(h.startedAt).Seconds()), 0),
		},
	})
	return b
}
