// Package websocket tracks live push channels per authenticated user and
// fans domain events out to them.
package websocket

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"flopods-backend/pkg/observability"
)

// Hub is the connection registry: it maintains active WebSocket sessions
// per user and delivers outbound frames to every session of a user. One
// user can have many sessions (tabs, devices); each session carries its
// own id, which doubles as the advisory lock holder.
type Hub struct {
	connections map[string]map[*Client]bool // userID -> set of clients
	mu          sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *outbound

	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	metrics *observability.Collector

	// onDisconnect runs after a session is removed from the registry,
	// with the session id and owning user id. Wired to lock release.
	onDisconnect func(sessionID, userID string)
}

// outbound is one frame addressed to every session of a user
type outbound struct {
	userID string
	data   []byte
}

// NewHub creates a hub. Call Run to start its event loop.
func NewHub(metrics *observability.Collector, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	return &Hub{
		connections: make(map[string]map[*Client]bool),
		register:    make(chan *Client, 100),
		unregister:  make(chan *Client, 100),
		broadcast:   make(chan *outbound, 1000),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
		metrics:     metrics,
	}
}

// SetDisconnectHandler registers the callback invoked when a session is
// unregistered. Must be called before Run.
func (h *Hub) SetDisconnectHandler(fn func(sessionID, userID string)) {
	h.onDisconnect = fn
}

// Run drives the hub's event loop until Stop is called
func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("hub shutting down")
			h.closeAllConnections()
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastToUser(message)

		case <-ticker.C:
			h.performHealthCheck()
		}
	}
}

// Stop shuts the hub down and closes every session
func (h *Hub) Stop() {
	h.cancel()
}

// Send queues one frame for every live session of userID. Returns false
// when the broadcast queue is full and the frame was dropped.
func (h *Hub) Send(userID string, data []byte) bool {
	select {
	case h.broadcast <- &outbound{userID: userID, data: data}:
		return true
	default:
		h.logger.Warn("broadcast queue full, frame dropped",
			zap.String("user_id", userID))
		h.metrics.MessagesFailed.Inc()
		return false
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[client.userID] == nil {
		h.connections[client.userID] = make(map[*Client]bool)
	}
	h.connections[client.userID][client] = true
	h.metrics.ActiveConnections.Inc()

	h.logger.Info("session registered",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.id),
		zap.Int("user_sessions", len(h.connections[client.userID])))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	clients, ok := h.connections[client.userID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.connections, client.userID)
	}
	remaining := len(clients)
	h.mu.Unlock()

	h.metrics.ActiveConnections.Dec()

	h.logger.Info("session unregistered",
		zap.String("user_id", client.userID),
		zap.String("session_id", client.id),
		zap.Int("remaining_sessions", remaining))

	if h.onDisconnect != nil {
		// Lock release may touch the store; keep the event loop free.
		go h.onDisconnect(client.id, client.userID)
	}
}

func (h *Hub) broadcastToUser(message *outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.connections[message.userID]))
	for client := range h.connections[message.userID] {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	for _, client := range clients {
		select {
		case client.send <- message.data:
			h.metrics.MessagesSent.Inc()
		default:
			// A full send buffer means the client stopped draining.
			// Cut it loose rather than stall everyone else.
			h.metrics.MessagesFailed.Inc()
			h.logger.Warn("disconnecting slow session",
				zap.String("user_id", client.userID),
				zap.String("session_id", client.id))

			go func(c *Client) {
				h.unregister <- c
				c.closeConn()
			}(client)
		}
	}
}

func (h *Hub) performHealthCheck() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.connections {
		total += len(clients)
		for client := range clients {
			select {
			case client.send <- []byte(`{"type":"ping"}`):
			default:
				h.logger.Warn("failed to ping session",
					zap.String("user_id", client.userID),
					zap.String("session_id", client.id))
			}
		}
	}

	h.logger.Debug("health check performed",
		zap.Int("sessions", total),
		zap.Int("users", len(h.connections)))
}

func (h *Hub) closeAllConnections() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for userID, clients := range h.connections {
		for client := range clients {
			close(client.send)
			client.closeConn()
		}
		delete(h.connections, userID)
	}
	h.metrics.ActiveConnections.Set(0)
}

// SessionCount returns the number of live sessions for a user
func (h *Hub) SessionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}
