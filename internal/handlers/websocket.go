package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/vigil/internal/common"
	"github.com/ternarybob/vigil/internal/interfaces"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second // must be less than wsPongWait
)

// wsEnvelope is the outbound frame. Lagged is set on the first frame after
// the client's send buffer overflowed and older frames were dropped.
type wsEnvelope struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload,omitempty"`
	At      time.Time   `json:"at"`
	Lagged  bool        `json:"lagged,omitempty"`
}

// wsCommand is the inbound control frame.
type wsCommand struct {
	Action string   `json:"action"` // subscribe | unsubscribe | ping
	Topics []string `json:"topics,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn

	// mu serializes enqueues with closeSend so deliver can never hit a
	// closed channel.
	mu     sync.RWMutex
	send   chan wsEnvelope
	closed bool
	topics map[string]struct{}
	lagged bool

	limiterMu sync.Mutex
	limiters  map[string]*rate.Limiter
}

// closeSend closes the outbox exactly once. Safe against concurrent deliver.
func (c *wsClient) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsClient) subscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		if t != "" {
			c.topics[t] = struct{}{}
		}
	}
}

func (c *wsClient) unsubscribe(topics []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range topics {
		delete(c.topics, t)
	}
}

// wants reports whether the client subscribed to the topic, either exactly
// or via a trailing-star wildcard such as "logs.job.*".
func (c *wsClient) wants(topic string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if _, ok := c.topics[topic]; ok {
		return true
	}
	for pattern := range c.topics {
		if strings.HasSuffix(pattern, ".*") && strings.HasPrefix(topic, strings.TrimSuffix(pattern, "*")) {
			return true
		}
	}
	return false
}

// WSHandler fans events out to websocket subscribers. It subscribes to the
// full event stream and filters per client topic.
type WSHandler struct {
	logger     arbor.ILogger
	instanceID string
	bufferSize int
	throttles  map[string]time.Duration
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

// NewWSHandler creates the hub and attaches it to the event stream.
func NewWSHandler(events interfaces.EventService, cfg *common.WebSocketConfig, instanceID string, logger arbor.ILogger) *WSHandler {
	bufferSize := 256
	if cfg != nil && cfg.SendBufferSize > 0 {
		bufferSize = cfg.SendBufferSize
	}

	throttles := make(map[string]time.Duration)
	if cfg != nil {
		for topic, raw := range cfg.ThrottleIntervals {
			d, err := time.ParseDuration(raw)
			if err != nil || d <= 0 {
				logger.Warn().Str("topic", topic).Str("interval", raw).Msg("Ignoring invalid throttle interval")
				continue
			}
			throttles[topic] = d
		}
	}

	h := &WSHandler{
		logger:     logger,
		instanceID: instanceID,
		bufferSize: bufferSize,
		throttles:  throttles,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*wsClient]struct{}),
	}

	if events != nil {
		if err := events.SubscribeAll(h.onEvent); err != nil {
			logger.Warn().Err(err).Msg("Failed to subscribe websocket hub to event stream")
		}
	}
	return h
}

// WebSocketHandler handles GET /ws
func (h *WSHandler) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &wsClient{
		conn:     conn,
		send:     make(chan wsEnvelope, h.bufferSize),
		topics:   make(map[string]struct{}),
		limiters: make(map[string]*rate.Limiter),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Int("subscribers", count).Msg("WebSocket client connected")

	h.deliver(client, wsEnvelope{
		Topic:   "welcome",
		Payload: map[string]string{"instanceId": h.instanceID},
		At:      time.Now().UTC(),
	})

	go h.writeLoop(client)
	go h.readLoop(client)
}

// SubscriberCount returns the number of connected clients.
func (h *WSHandler) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients.
func (h *WSHandler) Close() {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.closeSend()
		c.conn.Close()
	}
}

func (h *WSHandler) remove(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	client.closeSend()
	client.conn.Close()
}

// onEvent receives every published event and fans it out to clients whose
// subscriptions match the topic.
func (h *WSHandler) onEvent(ctx context.Context, event interfaces.Event) error {
	topic := string(event.Type)

	h.mu.RLock()
	clients := make([]*wsClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	now := time.Now().UTC()
	for _, client := range clients {
		if !client.wants(topic) {
			continue
		}
		if !h.allow(client, topic) {
			continue
		}
		h.deliver(client, wsEnvelope{Topic: topic, Payload: event.Payload, At: now})
	}
	return nil
}

// allow applies the configured per-topic throttle for one client.
func (h *WSHandler) allow(client *wsClient, topic string) bool {
	interval, ok := h.throttles[topic]
	if !ok {
		return true
	}
	client.limiterMu.Lock()
	defer client.limiterMu.Unlock()
	limiter, ok := client.limiters[topic]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(interval), 1)
		client.limiters[topic] = limiter
	}
	return limiter.Allow()
}

// deliver enqueues without blocking the event bus. When the buffer is full
// the oldest frame is dropped and the next delivered frame is marked lagged.
// Frames for a closed client are discarded.
func (h *WSHandler) deliver(client *wsClient, envelope wsEnvelope) {
	client.mu.Lock()
	defer client.mu.Unlock()
	if client.closed {
		return
	}

	if client.lagged {
		envelope.Lagged = true
		client.lagged = false
	}

	select {
	case client.send <- envelope:
	default:
		select {
		case <-client.send:
		default:
		}
		client.lagged = true
		select {
		case client.send <- envelope:
		default:
		}
	}
}

func (h *WSHandler) writeLoop(client *wsClient) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case envelope, ok := <-client.send:
			if !ok {
				client.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(wsWriteWait))
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteJSON(envelope); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *WSHandler) readLoop(client *wsClient) {
	defer h.remove(client)

	client.conn.SetReadLimit(4096)
	client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		switch cmd.Action {
		case "subscribe":
			client.subscribe(cmd.Topics)
		case "unsubscribe":
			client.unsubscribe(cmd.Topics)
		case "ping":
			h.deliver(client, wsEnvelope{Topic: "pong", At: time.Now().UTC()})
		}
	}
}
