// Package ws serves per-user WebSocket subscriptions.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/couchcryptid/road-telemetry-service/internal/broadcast"
	"github.com/couchcryptid/road-telemetry-service/internal/domain"
)

const (
	writeWait      = 5 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxInboundSize = 4096
)

// Handler upgrades GET /ws/{user_id} and subscribes the connection to that
// user's records until the client goes away.
type Handler struct {
	registry *broadcast.Registry
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates the upgrade handler that subscribes each connection to its user id.
func NewHandler(registry *broadcast.Registry, logger *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			CheckOrigin:      func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.Atoi(r.PathValue("user_id"))
	if err != nil {
		http.Error(w, "user_id must be an integer", http.StatusBadRequest)
		return
	}

	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		h.logger.Warn("websocket upgrade failed", "error", err, "user_id", userID)
		return
	}

	conn := newConn(c)
	h.registry.Subscribe(userID, conn)
	h.logger.Info("subscriber connected", "channel", conn.ID(), "user_id", userID)

	conn.serve()

	h.registry.Unsubscribe(userID, conn)
	h.logger.Info("subscriber disconnected", "channel", conn.ID(), "user_id", userID)
}

// Conn is one subscriber connection. It implements broadcast.Channel.
type Conn struct {
	id   string
	conn *websocket.Conn

	// gorilla allows one concurrent writer.
	writeMu sync.Mutex
	done    chan struct{}
}

func newConn(c *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		conn: c,
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Send writes record as one JSON text message.
func (c *Conn) Send(ctx context.Context, record domain.ProcessedAgentData) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// serve reads and discards inbound messages, keeping the connection alive
// with pings, and returns once the peer disconnects.
func (c *Conn) serve() {
	defer c.conn.Close()
	defer close(c.done)

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.ping()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Conn) ping() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
