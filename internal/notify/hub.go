package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	hubSendBuffer     = 16
	hubMaxActivations = 128
	hubReadLimit      = 4096

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// HubOptions configures a Hub.
type HubOptions struct {
	// OnVisibility receives page visibility changes reported by connected pages.
	OnVisibility func(hidden bool, at time.Time)

	// AllowedOrigins restricts the websocket Origin header. Empty allows any origin.
	AllowedOrigins []string

	Now func() time.Time
}

// Hub pushes notifications to dashboard pages over websockets and listens to
// what the pages report back.
//
// Pages speak a small JSON protocol:
//
//	{"type":"permission","granted":true}   the page may show notifications
//	{"type":"visibility","hidden":true}    page hidden / shown
//	{"type":"activate","id":"..."}         user clicked a notification
//
// and receive {"type":"notification", ...Notification fields}.
type Hub struct {
	log      *zap.Logger
	opts     HubOptions
	upgrader websocket.Upgrader

	mu          sync.Mutex
	clients     map[*hubClient]struct{}
	activations map[string]func()
	order       []string
	closed      bool
}

type hubClient struct {
	conn      *websocket.Conn
	send      chan []byte
	granted   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func (c *hubClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

type hubOutbound struct {
	Type string `json:"type"`
	Notification
}

type hubInbound struct {
	Type    string `json:"type"`
	Granted bool   `json:"granted"`
	Hidden  bool   `json:"hidden"`
	ID      string `json:"id"`
}

func NewHub(log *zap.Logger, opts HubOptions) *Hub {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	h := &Hub{
		log:         log,
		opts:        opts,
		clients:     make(map[*hubClient]struct{}),
		activations: make(map[string]func()),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.opts.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and serves the page until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("hub_upgrade_error", zap.Error(err))
		return
	}
	c := &hubClient{
		conn: conn,
		send: make(chan []byte, hubSendBuffer),
		done: make(chan struct{}),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.close()
		return
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Info("hub_client_connected", zap.Int("clients", n))

	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *hubClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		n := len(h.clients)
		h.mu.Unlock()
		c.close()
		h.log.Info("hub_client_disconnected", zap.Int("clients", n))
	}()

	c.conn.SetReadLimit(hubReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg hubInbound
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("hub_read_error", zap.Error(err))
			}
			return
		}
		h.handle(c, msg)
	}
}

func (h *Hub) handle(c *hubClient, msg hubInbound) {
	switch msg.Type {
	case "permission":
		c.granted.Store(msg.Granted)
		h.log.Info("hub_permission", zap.Bool("granted", msg.Granted))
	case "visibility":
		if h.opts.OnVisibility != nil {
			h.opts.OnVisibility(msg.Hidden, h.opts.Now())
		}
	case "activate":
		h.mu.Lock()
		fn := h.activations[msg.ID]
		delete(h.activations, msg.ID)
		h.mu.Unlock()
		if fn != nil {
			go fn()
		}
	default:
		h.log.Debug("hub_unknown_message", zap.String("type", msg.Type))
	}
}

func (h *Hub) writeLoop(c *hubClient) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.close()
				return
			}
		case <-ping.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

// Send pushes n to every page that granted notification permission.
// With no such page it returns ErrPermissionDenied.
func (h *Hub) Send(_ context.Context, n Notification) error {
	payload, err := json.Marshal(hubOutbound{Type: "notification", Notification: n})
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	granted, delivered := 0, 0
	for c := range h.clients {
		if !c.granted.Load() {
			continue
		}
		granted++
		select {
		case c.send <- payload:
			delivered++
		default:
			h.log.Warn("hub_client_slow", zap.String("notification", n.ID))
		}
	}
	if granted == 0 {
		return ErrPermissionDenied
	}
	if delivered == 0 {
		return errors.New("notify: no hub client accepted the notification")
	}
	if n.OnActivate != nil && n.ID != "" {
		h.rememberLocked(n.ID, n.OnActivate)
	}
	return nil
}

func (h *Hub) rememberLocked(id string, fn func()) {
	if _, ok := h.activations[id]; !ok {
		h.order = append(h.order, id)
	}
	h.activations[id] = fn
	for len(h.order) > hubMaxActivations {
		delete(h.activations, h.order[0])
		h.order = h.order[1:]
	}
}

// Clients returns the number of connected pages.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every page and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}
