package dashboard

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"degen-dashboard-go/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	wsWriteWait         = 10 * time.Second
	wsMaxMessageSize    = 512
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
)

// Hub maintains the set of connected websocket clients and pushes overview
// snapshots to all of them after every poll tick.
type Hub struct {
	clients      map[string]*websocket.Conn
	clientsMu    sync.Mutex
	upgrader     websocket.Upgrader
	pingInterval time.Duration
	pongTimeout  time.Duration
	logger       *zap.Logger
}

// NewHub creates a hub with keepalive intervals from config, falling back
// to defaults when unset.
func NewHub(cfg *models.Config, logger *zap.Logger) *Hub {
	pingInterval := defaultPingInterval
	if cfg.WebSocketPingIntervalSec > 0 {
		pingInterval = time.Duration(cfg.WebSocketPingIntervalSec) * time.Second
	}
	pongTimeout := defaultPongTimeout
	if cfg.WebSocketPongTimeoutSec > 0 {
		pongTimeout = time.Duration(cfg.WebSocketPongTimeoutSec) * time.Second
	}

	return &Hub{
		clients: make(map[string]*websocket.Conn),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The dashboard serves its own frontend; same-host pages
				// and local tools are both fine.
				return true
			},
		},
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		logger:       logger,
	}
}

// HandleWebSocket upgrades the request and manages the connection until the
// client goes away. Incoming messages are not processed; the read loop only
// exists to detect disconnects and answer pings.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	h.register(id, conn)
	defer func() {
		h.unregister(id)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.pongTimeout))
	})

	// Pinger keeps the connection alive; it exits once a write fails,
	// which happens as soon as the connection is closed.
	go func() {
		ticker := time.NewTicker(h.pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (h *Hub) register(id string, conn *websocket.Conn) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	h.clients[id] = conn
	h.logger.Info("websocket client connected",
		zap.String("client_id", id),
		zap.Int("total_clients", len(h.clients)))
}

func (h *Hub) unregister(id string) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		h.logger.Info("websocket client disconnected",
			zap.String("client_id", id),
			zap.Int("total_clients", len(h.clients)))
	}
}

// Broadcast sends a message to all connected clients, dropping any client
// whose write fails.
func (h *Hub) Broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Error(err))
		return
	}

	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for id, conn := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Warn("websocket write failed, dropping client",
				zap.String("client_id", id),
				zap.Error(err))
			conn.Close()
			delete(h.clients, id)
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client, used on shutdown.
func (h *Hub) CloseAll() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for id, conn := range h.clients {
		conn.Close()
		delete(h.clients, id)
	}
}
