// Package ws streams committed shop events to websocket clients.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/editionshop/internal/domain"
	"github.com/alanyoungcy/editionshop/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 256

	// maxReplay bounds the stream backlog sent on connect.
	maxReplay = 500
)

// client is one websocket connection with its event filter. Empty filter
// sets match everything.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	mu      sync.RWMutex
	kinds   map[string]bool
	markets map[string]bool
}

// filterMsg is sent by clients to narrow or widen what they receive.
//
//	{"action":"subscribe","kinds":["sale"],"markets":["0xabc..."]}
type filterMsg struct {
	Action  string   `json:"action"`
	Kinds   []string `json:"kinds"`
	Markets []string `json:"markets"`
}

// Hub fans events from one bus channel out to connected clients.
type Hub struct {
	bus        domain.SignalBus
	channel    string
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	logger     *slog.Logger
}

// Config configures a Hub.
type Config struct {
	// Channel is the bus channel and stream events are read from.
	Channel string
	// AllowedOrigins restricts websocket upgrades. Empty allows all.
	AllowedOrigins []string
}

// NewHub creates a Hub reading from bus.
func NewHub(bus domain.SignalBus, cfg Config, logger *slog.Logger) *Hub {
	if cfg.Channel == "" {
		cfg.Channel = service.DefaultEventsChannel
	}
	h := &Hub{
		bus:        bus,
		channel:    cfg.Channel,
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		logger:     logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || len(cfg.AllowedOrigins) == 0 {
				return true
			}
			for _, o := range cfg.AllowedOrigins {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Run subscribes to the bus and serves clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.bus.Subscribe(ctx, h.channel)
	if err != nil {
		return err
	}
	h.logger.InfoContext(ctx, "ws: subscribed", slog.String("channel", h.channel))

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client connected", slog.Int("total_clients", n))

		case c := <-h.unregister:
			h.mu.Lock()
			if h.clients[c] {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("ws: client disconnected", slog.Int("total_clients", n))

		case payload, ok := <-msgs:
			if !ok {
				h.logger.Warn("ws: subscription closed", slog.String("channel", h.channel))
				msgs = nil
				continue
			}
			h.fanOut(payload)
		}
	}
}

// fanOut delivers payload to every client whose filter matches it. Slow
// clients lose the message.
func (h *Hub) fanOut(payload []byte) {
	ev, err := service.DecodeEvent(payload)
	if err != nil {
		h.logger.Warn("ws: undecodable event", slog.String("error", err.Error()))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(ev) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("ws: dropping message for slow client")
		}
	}
}

// HandleWS upgrades the request and registers the client. With ?since=<id>
// the stream backlog after that entry is sent first; ?kinds= and ?markets=
// preset the filter as comma separated lists.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	q := r.URL.Query()
	c := &client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		kinds:   make(map[string]bool),
		markets: make(map[string]bool),
	}
	c.apply(filterMsg{Action: "subscribe", Kinds: splitList(q.Get("kinds")), Markets: splitList(q.Get("markets"))})

	if since := q.Get("since"); since != "" {
		h.replay(r.Context(), c, since, q.Get("limit"))
	}

	h.register <- c
	go c.writePump()
	go c.readPump()
}

// replay queues stream entries after lastID that match c's filter.
func (h *Hub) replay(ctx context.Context, c *client, lastID, limit string) {
	n, err := strconv.Atoi(limit)
	if err != nil || n <= 0 || n > maxReplay {
		n = maxReplay
	}
	entries, err := h.bus.StreamRead(ctx, h.channel, lastID, n)
	if err != nil {
		h.logger.WarnContext(ctx, "ws: replay failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		ev, err := service.DecodeEvent(e.Payload)
		if err != nil || !c.matches(ev) {
			continue
		}
		select {
		case c.send <- e.Payload:
		default:
			return
		}
	}
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// matches reports whether ev passes the client filter. An event matches a
// market filter when any of its fields names that market.
func (c *client) matches(ev service.Event) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.kinds) > 0 && !c.kinds[ev.Kind] {
		return false
	}
	if len(c.markets) == 0 {
		return true
	}
	return c.markets[strings.ToLower(ev.Fields["market"])]
}

func (c *client) apply(msg filterMsg) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch msg.Action {
	case "subscribe":
		for _, k := range msg.Kinds {
			c.kinds[k] = true
		}
		for _, m := range msg.Markets {
			c.markets[strings.ToLower(m)] = true
		}
	case "unsubscribe":
		for _, k := range msg.Kinds {
			delete(c.kinds, k)
		}
		for _, m := range msg.Markets {
			delete(c.markets, strings.ToLower(m))
		}
	}
}

// readPump applies filter messages until the connection closes.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error", slog.String("error", err.Error()))
			}
			return
		}
		var msg filterMsg
		if err := json.Unmarshal(message, &msg); err == nil && msg.Action != "" {
			c.apply(msg)
		}
	}
}

// writePump sends queued events as text frames and pings to keep the
// connection alive.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
