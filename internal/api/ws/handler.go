package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 64
	maxMessage = 4096
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // same policy as the CORS middleware
	},
}

// Message is the envelope pushed to clients
type Message struct {
	Type       string         `json:"type"`
	DownloadID string         `json:"downloadId,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Message    string         `json:"message,omitempty"`
	Timestamp  int64          `json:"timestamp,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// Handler accepts download progress subscribers and fans messages out to them
type Handler struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHandler creates a hub. metrics may be nil.
func NewHandler(logger *zap.Logger, metrics *monitoring.Metrics) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		logger:  logger,
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// HandleConnection upgrades the request and registers the client
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	if !h.register(cl) {
		_ = conn.Close()
		return
	}

	go h.writePump(cl)
	h.enqueue(cl, Message{Type: "system", Message: "connected", Timestamp: time.Now().Unix()})
	h.readPump(cl)
}

// BroadcastDownload pushes a download_progress message to every client
func (h *Handler) BroadcastDownload(downloadID string, data map[string]any) {
	h.Broadcast(Message{Type: "download_progress", DownloadID: downloadID, Data: data})
}

// Broadcast sends msg to every client. Slow clients drop messages.
func (h *Handler) Broadcast(msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("Failed to encode WebSocket message", zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		select {
		case cl.send <- payload:
		default:
			h.logger.Debug("WebSocket client lagging, message dropped")
		}
	}
}

// Clients reports the number of connected clients
func (h *Handler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for cl := range h.clients {
		cl.close()
		delete(h.clients, cl)
		h.disconnected()
	}
}

func (h *Handler) register(cl *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[cl] = struct{}{}
	if h.metrics != nil {
		h.metrics.IncWSConnections()
	}
	h.logger.Info("WebSocket client connected", zap.Int("clients", len(h.clients)))
	return true
}

func (h *Handler) unregister(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	delete(h.clients, cl)
	cl.close()
	h.disconnected()
	h.logger.Info("WebSocket client disconnected", zap.Int("clients", len(h.clients)))
}

func (h *Handler) disconnected() {
	if h.metrics != nil {
		h.metrics.DecWSConnections()
	}
}

func (h *Handler) enqueue(cl *client, msg Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[cl]; !ok {
		return
	}
	select {
	case cl.send <- payload:
	default:
	}
}

// readPump answers pings and detects disconnects
func (h *Handler) readPump(cl *client) {
	defer func() {
		h.unregister(cl)
		_ = cl.conn.Close()
	}()

	cl.conn.SetReadLimit(maxMessage)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := cl.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			h.enqueue(cl, Message{Type: "pong", Timestamp: time.Now().Unix()})
		default:
			h.enqueue(cl, Message{Type: "error", Message: "unknown message type", Timestamp: time.Now().Unix()})
		}
	}
}

func (h *Handler) writePump(cl *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
