package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"pizzeria-be/internal/auth"
	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/metrics"
	"pizzeria-be/internal/utils"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const defaultSendBuffer = 64

// TokenParser verifies the bearer token presented on the handshake.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// InboundHandler processes one event received from a client.
type InboundHandler func(ctx context.Context, c *Client, data json.RawMessage) error

type route struct {
	fn          InboundHandler
	requireAuth bool
}

type errorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type Stats struct {
	Connected int64  `json:"connected"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
}

// Hub fans events out to connected clients. Delivery is best-effort: a
// client whose queue is full misses the event and is disconnected. Nothing
// is persisted or replayed.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	routes  map[string]route
	closed  bool
	wg      sync.WaitGroup

	tokens     TokenParser
	upgrader   websocket.Upgrader
	sendBuffer int
	pingPeriod time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	log    *zap.Logger

	connected metrics.Gauge
	delivered metrics.Counter
	dropped   metrics.Counter
}

type Option func(*Hub)

// WithAllowedOrigin restricts handshakes to one browser origin; "*" allows any.
func WithAllowedOrigin(origin string) Option {
	return func(h *Hub) {
		if origin == "" || origin == "*" {
			return
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			o := r.Header.Get("Origin")
			return o == "" || o == origin
		}
	}
}

func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

func WithPingPeriod(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

func NewHub(tokens TokenParser, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		routes:     make(map[string]route),
		tokens:     tokens,
		sendBuffer: defaultSendBuffer,
		pingPeriod: pingPeriod,
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.Component("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	h.Handle(InboundPing, false, func(ctx context.Context, c *Client, _ json.RawMessage) error {
		return c.Send(EventPong, nil)
	})
	return h
}

// Handle registers fn for an inbound event. Handlers with requireAuth only
// run for connections that presented a valid bearer token.
func (h *Hub) Handle(event string, requireAuth bool, fn InboundHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.routes[event] = route{fn: fn, requireAuth: requireAuth}
}

// Relay returns a handler that re-broadcasts the inbound payload verbatim as event.
func (h *Hub) Relay(event string) InboundHandler {
	return func(ctx context.Context, c *Client, data json.RawMessage) error {
		h.Broadcast(event, data)
		return nil
	}
}

// Broadcast sends event to every connected client subscribed to it.
func (h *Hub) Broadcast(event string, payload any) {
	msg, err := encode(event, payload)
	if err != nil {
		h.log.Error("failed to encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		if c.role.Subscribes(event) && !c.isClosed() {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if c.enqueue(msg) {
			h.delivered.Inc()
			continue
		}
		h.dropped.Inc()
		h.log.Warn("dropping slow client",
			zap.String("client_id", c.id),
			zap.String("event", event),
		)
		c.close()
	}

	h.log.Debug("broadcast",
		zap.String("event", event),
		zap.Int("recipients", len(targets)),
	)
}

// ServeHTTP upgrades GET /ws. The role comes from the "role" query parameter;
// the admin role needs a valid bearer token.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.FromCtx(r.Context())

	role, err := ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		utils.WriteJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	var claims *auth.Claims
	if tokenStr := auth.ExtractAccessToken(r); tokenStr != "" {
		claims, err = h.tokens.Parse(tokenStr)
		if err != nil {
			log.Warn("rejected realtime token", zap.Error(err))
			utils.WriteJSONError(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}
	if role == RoleAdmin && claims == nil {
		utils.WriteJSONError(w, "admin role requires a token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		id:     uuid.New().String(),
		role:   role,
		claims: claims,
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, h.sendBuffer),
		done:   make(chan struct{}),
	}

	if !h.register(c) {
		conn.Close()
		return
	}

	h.log.Info("client connected",
		zap.String("client_id", c.id),
		zap.String("role", string(role)),
		zap.Bool("authenticated", c.Authenticated()),
	)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.connected.Inc()
	h.wg.Add(2)
	return true
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		h.connected.Dec()
	}
	h.mu.Unlock()

	if ok {
		h.log.Info("client disconnected", zap.String("client_id", c.id))
	}
}

func (h *Hub) dispatch(c *Client, env Envelope) {
	h.mu.RLock()
	rt, ok := h.routes[env.Event]
	h.mu.RUnlock()

	log := h.log.With(zap.String("client_id", c.id), zap.String("event", env.Event))

	if !ok {
		log.Warn("unknown inbound event")
		_ = c.Send(EventError, errorPayload{Event: env.Event, Message: "unknown event"})
		return
	}
	if rt.requireAuth && !c.Authenticated() {
		log.Warn("unauthenticated inbound event")
		_ = c.Send(EventError, errorPayload{Event: env.Event, Message: "unauthorized"})
		return
	}

	ctx := logger.WithClientID(h.ctx, c.id)
	if err := rt.fn(ctx, c, env.Data); err != nil {
		log.Warn("inbound event failed", zap.Error(err))
		_ = c.Send(EventError, errorPayload{Event: env.Event, Message: publicMessage(err)})
	}
}

func (h *Hub) Stats() Stats {
	return Stats{
		Connected: h.connected.Load(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

// Shutdown disconnects every client and waits for their goroutines.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	h.cancel()
	for _, c := range clients {
		c.close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
