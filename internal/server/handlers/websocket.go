// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"spotit/internal/adapter/events"
	"spotit/internal/domain/identity"
	"spotit/internal/service/session"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 4 * 1024,
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origins are enforced by the CORS layer and the token
		return true
	},
}

// notificationClient streams one viewer's sink messages
type notificationClient struct {
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	session *session.Session
	sub     *nats.Subscription
	config  WebSocketConfig
	logger  *slog.Logger
}

// inbound is a command sent by the client over the socket
type inbound struct {
	Type string `json:"type"`
}

// NotificationStream upgrades to a WebSocket that carries notify.<user>
// messages. The client may send {"type":"dismiss"} or {"type":"refresh"}.
func NotificationStream(natsConn *nats.Conn, sessions Sessions, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marker, ok := identity.MarkerFrom(r.Context())
		if !ok {
			Unauthorized(w, r, identity.ErrUnauthenticated)
			return
		}
		if natsConn == nil {
			respondWithError(w, http.StatusServiceUnavailable, "notification stream unavailable")
			return
		}

		sess, err := sessions.Get(r.Context(), marker)
		if err != nil {
			respondWithDomainError(w, r, logger, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Failed to upgrade to WebSocket", "error", err)
			return
		}

		client := &notificationClient{
			conn:    conn,
			send:    make(chan []byte, 256),
			done:    make(chan struct{}),
			session: sess,
			config:  DefaultWebSocketConfig(),
			logger:  logger.With("user", marker.UserID),
		}

		if err := client.subscribe(natsConn, marker.UserID); err != nil {
			client.logger.Error("Failed to subscribe to notifications", "error", err)
			client.close()
			return
		}

		go client.writePump()
		go client.readPump()

		welcome, _ := json.Marshal(map[string]interface{}{
			"type":    "welcome",
			"user_id": marker.UserID,
			"time":    time.Now(),
		})
		client.enqueue(welcome)

		client.logger.Info("Notification stream opened")
	}
}

func (c *notificationClient) subscribe(natsConn *nats.Conn, userID string) error {
	sub, err := natsConn.Subscribe(events.NotifySubject(userID), func(msg *nats.Msg) {
		c.enqueue(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", events.NotifySubject(userID), err)
	}
	c.sub = sub
	return nil
}

// enqueue hands a message to the write pump. Slow clients drop messages
// rather than stall the NATS dispatcher.
func (c *notificationClient) enqueue(data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("Dropping notification for slow client")
	}
}

// readPump processes client commands until the connection fails
func (c *notificationClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket error", "error", err)
			}
			return
		}
		c.handle(message)
	}
}

func (c *notificationClient) handle(message []byte) {
	var cmd inbound
	if err := json.Unmarshal(message, &cmd); err != nil {
		c.logger.Debug("Ignoring malformed WebSocket message", "error", err)
		return
	}

	switch cmd.Type {
	case "dismiss":
		c.session.Dismiss()
	case "refresh":
		ctx, cancel := context.WithTimeout(context.Background(), c.config.WriteWait)
		defer cancel()
		// Failures reach the client through the sink
		c.session.Refresh(ctx)
	default:
		c.logger.Debug("Unknown WebSocket message type", "type", cmd.Type)
	}
}

// writePump pumps queued messages and pings to the connection
func (c *notificationClient) writePump() {
	ticker := time.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close unsubscribes and closes the connection exactly once
func (c *notificationClient) close() {
	c.once.Do(func() {
		close(c.done)
		if c.sub != nil {
			c.sub.Unsubscribe()
		}
		c.conn.Close()
		c.logger.Info("Notification stream closed")
	})
}
