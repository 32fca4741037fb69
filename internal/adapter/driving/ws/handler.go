package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// Handler upgrades HTTP requests to websocket connections and runs their
// read loops.
type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

// NewHandler creates a websocket Handler attached to the given hub.
func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// ServeHTTP accepts the websocket upgrade, registers the connection with the
// hub, confirms the default subscription, and serves client messages until
// the connection goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{})
	if err != nil {
		return
	}

	c, total := h.hub.add(conn)
	h.logger.Info("websocket client connected", "client_id", c.id, "total", total)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go h.writeLoop(ctx, c)

	c.enqueue(serverMessage{Type: "subscribed", Channels: []string{"all"}})

	h.readLoop(ctx, c)

	remaining := h.hub.remove(c.id)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.logger.Info("websocket client disconnected", "client_id", c.id, "remaining", remaining)
}

// readLoop serves client messages until the connection closes. A message that
// is not valid JSON gets an error reply and the connection stays open.
func (h *Handler) readLoop(ctx context.Context, c *client) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.enqueue(serverMessage{Type: "error", Message: "Invalid JSON message"})
			continue
		}

		switch msg.Action {
		case "subscribe":
			current, rejected := h.hub.subscribe(c, msg.Channels)
			for _, channel := range rejected {
				c.enqueue(serverMessage{Type: "error", Message: "Invalid channel: " + channel})
			}
			c.enqueue(serverMessage{Type: "subscribed", Channels: current})
		case "unsubscribe":
			current := h.hub.unsubscribe(c, msg.Channels)
			c.enqueue(serverMessage{Type: "unsubscribed", Channels: current})
		case "ping":
			c.enqueue(serverMessage{Type: "heartbeat", Timestamp: time.Now().UTC().Format(time.RFC3339)})
		default:
			c.enqueue(serverMessage{Type: "error", Message: fmt.Sprintf("Unknown action: %s", msg.Action)})
		}
	}
}

// writeLoop pumps the client's send queue to the socket. A failed or timed-out
// write drops the client; other connections are unaffected.
func (h *Handler) writeLoop(ctx context.Context, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			writeCtx, cancelWrite := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(writeCtx, c.conn, msg)
			cancelWrite()
			if err != nil {
				if ctx.Err() == nil {
					h.hub.drop(c.id, "write failed")
				}
				return
			}
		}
	}
}
