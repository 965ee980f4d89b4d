package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// DefaultPollInterval bounds how often clients are told to refetch
	DefaultPollInterval = 2 * time.Second

	// MessageTypeVersion tags board version notifications
	MessageTypeVersion = "LEADERBOARD_VERSION"

	sendBuffer = 256
)

// VersionSource returns the current board version counter
type VersionSource interface {
	GetLeaderboardVersion(ctx context.Context) (int64, error)
}

// Client represents a WebSocket client connection
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and tells them when the board version moves.
// Clients refetch the leaderboard themselves, so a burst of writes costs at
// most one notification per poll interval.
type Hub struct {
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	versions     VersionSource
	pollInterval time.Duration
	logger       *zap.Logger

	mu sync.RWMutex

	// only touched by the Run goroutine
	lastVersion int64
}

// VersionUpdate is the message pushed to clients
type VersionUpdate struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// NewHub creates a new WebSocket hub
func NewHub(versions VersionSource, pollInterval time.Duration, logger *zap.Logger) *Hub {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		register:     make(chan *Client),
		unregister:   make(chan *Client),
		done:         make(chan struct{}),
		clients:      make(map[*Client]bool),
		versions:     versions,
		pollInterval: pollInterval,
		logger:       logger.Named("ws-hub"),
	}
}

// Run starts the WebSocket hub
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("websocket hub started", zap.Duration("poll_interval", h.pollInterval))

	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client connected", zap.Int("clients", total))

			h.sendInitialVersion(ctx, client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("client disconnected", zap.Int("clients", total))

		case <-ticker.C:
			h.checkAndBroadcastVersion(ctx)

		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			h.logger.Info("websocket hub shutting down")
			return
		}
	}
}

// checkAndBroadcastVersion broadcasts only when the counter moved
func (h *Hub) checkAndBroadcastVersion(ctx context.Context) {
	current, err := h.versions.GetLeaderboardVersion(ctx)
	if err != nil {
		h.logger.Warn("failed to read leaderboard version", zap.Error(err))
		return
	}
	if current == h.lastVersion {
		return
	}
	h.lastVersion = current

	message, err := encodeVersion(current)
	if err != nil {
		h.logger.Error("failed to encode version update", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	h.logger.Debug("broadcasting version", zap.Int64("version", current), zap.Int("clients", len(h.clients)))
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			h.logger.Warn("client send buffer full, skipping")
		}
	}
}

// sendInitialVersion lets a new client render the board it connected to
func (h *Hub) sendInitialVersion(ctx context.Context, client *Client) {
	current, err := h.versions.GetLeaderboardVersion(ctx)
	if err != nil {
		h.logger.Warn("failed to read initial version", zap.Error(err))
		return
	}
	if h.lastVersion == 0 {
		h.lastVersion = current
	}

	message, err := encodeVersion(current)
	if err != nil {
		h.logger.Error("failed to encode initial version", zap.Error(err))
		return
	}

	select {
	case client.send <- message:
	default:
		h.logger.Warn("client send buffer full, initial version dropped")
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}

func encodeVersion(version int64) ([]byte, error) {
	return json.Marshal(VersionUpdate{Type: MessageTypeVersion, Version: version})
}

// GetClientCount returns the current number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// readPump drains and ignores client frames until the peer goes away
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debug("websocket unexpected close", zap.Error(err))
			}
			return
		}
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for message := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// ServeWS registers the connection and blocks until it closes
func ServeWS(hub *Hub, conn *websocket.Conn) {
	client := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		_ = conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}
