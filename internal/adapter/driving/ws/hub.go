// Package ws is the websocket driving adapter pushing release notifications
// to live connections.
package ws

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/econpulse/econpulse/internal/domain/model"
)

const (
	// sendBuffer bounds the per-connection outbound queue. A client that
	// cannot drain it loses messages rather than blocking broadcast.
	sendBuffer = 32

	writeTimeout = 5 * time.Second
)

// serverMessage is the server-to-client wire format.
type serverMessage struct {
	Type      string               `json:"type"`
	Channels  []string             `json:"channels,omitempty"`
	Data      *model.ReleaseUpdate `json:"data,omitempty"`
	Timestamp string               `json:"timestamp,omitempty"`
	Message   string               `json:"message,omitempty"`
}

// clientMessage is the client-to-server wire format.
type clientMessage struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// client is one live connection and its subscription set.
type client struct {
	id            string
	conn          *websocket.Conn
	send          chan serverMessage
	subscriptions map[string]struct{}
}

// enqueue queues a message for the client's writer without blocking. Returns
// false when the queue is full and the message was dropped.
func (c *client) enqueue(msg serverMessage) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Hub owns the connection registry and routes release updates to interested
// connections. It is created by the composition root and injected into the
// detector and the websocket handler; no package-level state.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]*client

	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewHub creates an empty Hub. heartbeatInterval is both the ping cadence and
// the deadline within which a connection must acknowledge its ping.
func NewHub(heartbeatInterval time.Duration, logger *slog.Logger) *Hub {
	return &Hub{
		clients:           make(map[string]*client),
		heartbeatInterval: heartbeatInterval,
		logger:            logger,
	}
}

// add registers a new connection with the default `all` subscription and
// returns it alongside the registry size.
func (h *Hub) add(conn *websocket.Conn) (*client, int) {
	c := &client{
		id:            uuid.NewString(),
		conn:          conn,
		send:          make(chan serverMessage, sendBuffer),
		subscriptions: map[string]struct{}{"all": {}},
	}

	h.mu.Lock()
	h.clients[c.id] = c
	total := len(h.clients)
	h.mu.Unlock()

	return c, total
}

// remove unregisters a connection. Safe to call more than once. After remove
// returns, no broadcast iteration will touch the client. The send queue is
// never closed; the writer goroutine exits through its context instead, so a
// late enqueue from a racing broadcast is harmless. Returns the remaining
// registry size.
func (h *Hub) remove(id string) int {
	h.mu.Lock()
	delete(h.clients, id)
	remaining := len(h.clients)
	h.mu.Unlock()

	return remaining
}

// drop removes a connection and closes its socket. Used when the writer or
// heartbeat gives up on a client.
func (h *Hub) drop(id, reason string) {
	h.mu.RLock()
	c := h.clients[id]
	h.mu.RUnlock()
	if c == nil {
		return
	}

	remaining := h.remove(id)
	_ = c.conn.Close(websocket.StatusNormalClosure, reason)
	h.logger.Info("websocket client dropped", "client_id", id, "reason", reason, "remaining", remaining)
}

// subscribe adds the valid channels to the client's set and returns the
// resulting subscription list plus any channels that were rejected.
func (h *Hub) subscribe(c *client, channels []string) (current, rejected []string) {
	h.mu.Lock()
	for _, channel := range channels {
		if !validChannel(channel) {
			rejected = append(rejected, channel)
			continue
		}
		c.subscriptions[channel] = struct{}{}
	}
	current = subscriptionList(c.subscriptions)
	h.mu.Unlock()
	return current, rejected
}

// unsubscribe removes channels from the client's set. A client is never left
// without routing: emptying the set restores the `all` default.
func (h *Hub) unsubscribe(c *client, channels []string) []string {
	h.mu.Lock()
	for _, channel := range channels {
		delete(c.subscriptions, channel)
	}
	if len(c.subscriptions) == 0 {
		c.subscriptions["all"] = struct{}{}
	}
	current := subscriptionList(c.subscriptions)
	h.mu.Unlock()
	return current
}

// BroadcastUpdate routes a release update to every connection whose
// subscription set matches it. Delivery is fire-and-forget per connection; a
// slow client drops the message instead of blocking the rest. Returns the
// number of clients the update was queued for.
func (h *Hub) BroadcastUpdate(update model.ReleaseUpdate) int {
	msg := serverMessage{Type: "release_update", Data: &update}

	h.mu.RLock()
	defer h.mu.RUnlock()

	var sent int
	for _, c := range h.clients {
		if !matchesUpdate(c.subscriptions, update) {
			continue
		}
		if c.enqueue(msg) {
			sent++
		} else {
			h.logger.Warn("websocket send queue full, dropping update",
				"client_id", c.id, "event", update.EventSlug)
		}
	}

	return sent
}

// Stats returns the number of live connections and a per-channel subscriber
// count.
func (h *Hub) Stats() (int, map[string]int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscriptions := make(map[string]int)
	for _, c := range h.clients {
		for channel := range c.subscriptions {
			subscriptions[channel]++
		}
	}

	return len(h.clients), subscriptions
}

// StartHeartbeat pings every connection each cycle, with the cycle length as
// the pong deadline. A connection that fails to acknowledge one ping is
// terminated and removed, bounding registry growth from half-open sockets.
// Blocks until the context is canceled.
func (h *Hub) StartHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(h.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("websocket heartbeat stopped")
			return
		case <-ticker.C:
			h.pingAll(ctx)
		}
	}
}

func (h *Hub) pingAll(ctx context.Context) {
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		go func(c *client) {
			pingCtx, cancel := context.WithTimeout(ctx, h.heartbeatInterval)
			defer cancel()
			if err := c.conn.Ping(pingCtx); err != nil && ctx.Err() == nil {
				h.drop(c.id, "heartbeat timeout")
			}
		}(c)
	}
}

// Shutdown closes every connection with a going-away status.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*client)
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}

	h.logger.Info("websocket hub shut down", "closed", len(clients))
}

// matchesUpdate reports whether a subscription set intersects the channels an
// update belongs to.
func matchesUpdate(subscriptions map[string]struct{}, u model.ReleaseUpdate) bool {
	if _, ok := subscriptions["all"]; ok {
		return true
	}
	if _, ok := subscriptions["country:"+u.Country]; ok {
		return true
	}
	if _, ok := subscriptions["category:"+u.Category]; ok {
		return true
	}
	if _, ok := subscriptions["importance:"+string(u.Importance)]; ok {
		return true
	}
	if _, ok := subscriptions["event:"+u.EventSlug]; ok {
		return true
	}
	return false
}

// validChannel reports whether a channel belongs to the closed subscription
// vocabulary: all, country:<CODE>, category:<name>, importance:<level>,
// event:<slug>.
func validChannel(channel string) bool {
	if channel == "all" {
		return true
	}

	prefix, value, ok := strings.Cut(channel, ":")
	if !ok || value == "" {
		return false
	}

	switch prefix {
	case "country", "category", "importance", "event":
		return true
	default:
		return false
	}
}

func subscriptionList(subscriptions map[string]struct{}) []string {
	list := make([]string, 0, len(subscriptions))
	for channel := range subscriptions {
		list = append(list, channel)
	}
	return list
}
