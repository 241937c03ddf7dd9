package ws

import (
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// request is what clients send to change their filter, e.g.
//
//	{"action":"subscribe","events":["Proposal*"],"orders":[7]}
type request struct {
	Action string   `json:"action"`
	Events []string `json:"events"`
	Orders []uint64 `json:"orders"`
}

type client struct {
	hub    *Hub
	conn   *websocket.Conn
	remote string
	send   chan []byte
	filter *filter
}

func newClient(h *Hub, conn *websocket.Conn, remote string) *client {
	return &client{
		hub:    h,
		conn:   conn,
		remote: remote,
		send:   make(chan []byte, sendBuffer),
		filter: newFilter(),
	}
}

// enqueue queues data without blocking and reports whether it fit. The
// caller holds the hub lock, so send is not closed concurrently.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *client) readLoop() {
	defer func() {
		c.hub.drop(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("client read failed", slog.String("remote", c.remote), slog.String("error", err.Error()))
			}
			return
		}
		var req request
		if json.Unmarshal(raw, &req) != nil {
			continue
		}
		if !c.filter.apply(req) {
			continue
		}
		ack, _ := json.Marshal(map[string]any{"type": "subscriptions", "payload": c.filter.snapshot()})
		c.hub.mu.Lock()
		if _, live := c.hub.clients[c]; live {
			c.enqueue(ack)
		}
		c.hub.mu.Unlock()
	}
}

func (c *client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// filter selects events by name and, optionally, by order. Names may end
// in "*" to match a prefix. A new client receives everything; the first
// subscribe narrows that to what was asked for.
type filter struct {
	mu     sync.RWMutex
	all    bool
	names  map[string]bool
	orders map[uint64]bool
}

func newFilter() *filter {
	return &filter{all: true, names: map[string]bool{}, orders: map[uint64]bool{}}
}

// apply updates the filter and reports whether req was understood.
func (f *filter) apply(req request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch req.Action {
	case "subscribe":
		if f.all && len(req.Events) > 0 {
			f.all = false
		}
		for _, n := range req.Events {
			if n == "*" {
				f.all = true
				continue
			}
			f.names[n] = true
		}
		for _, id := range req.Orders {
			f.orders[id] = true
		}
	case "unsubscribe":
		for _, n := range req.Events {
			if n == "*" {
				f.all = false
			}
			delete(f.names, n)
		}
		for _, id := range req.Orders {
			delete(f.orders, id)
		}
	default:
		return false
	}
	return true
}

// match applies the name filter, then the order filter when one is set.
// Events not tied to an order (upgrades, admin changes) pass the order
// filter.
func (f *filter) match(ev eventHeader) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if len(f.orders) > 0 && ev.OrderID != 0 && !f.orders[ev.OrderID] {
		return false
	}
	if f.all || f.names[ev.Name] {
		return true
	}
	for n := range f.names {
		if prefix, ok := strings.CutSuffix(n, "*"); ok && strings.HasPrefix(ev.Name, prefix) {
			return true
		}
	}
	return false
}

type filterState struct {
	All    bool     `json:"all"`
	Events []string `json:"events"`
	Orders []uint64 `json:"orders"`
}

func (f *filter) snapshot() filterState {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s := filterState{All: f.all, Events: []string{}, Orders: []uint64{}}
	for n := range f.names {
		s.Events = append(s.Events, n)
	}
	for id := range f.orders {
		s.Orders = append(s.Orders, id)
	}
	slices.Sort(s.Events)
	slices.Sort(s.Orders)
	return s
}
