package ws

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/ipclog"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/domain/lifecycle"
	"github.com/GriffinCanCode/ExtensionHost/backend/internal/infrastructure/monitoring"
)

const (
	writeWait     = 5 * time.Second
	logBufferSize = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware guards the HTTP surface
	},
}

// Message is a client frame
type Message struct {
	Type string `json:"type"`
	Ext  string `json:"ext,omitempty"`
}

// Handler manages WebSocket connections
type Handler struct {
	manager *lifecycle.Manager
	metrics *monitoring.Metrics
	logger  *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	changed chan struct{}
	logs    chan ipclog.Entry

	mu     sync.Mutex
	follow string
}

// NewHandler creates a new WebSocket handler and hooks it to the manager's
// change feed and bridge log
func NewHandler(manager *lifecycle.Manager, metrics *monitoring.Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Handler{
		manager: manager,
		metrics: metrics,
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
	manager.Watch(h.changed)
	manager.Log().OnWrite(h.logged)
	return h
}

// Clients returns the number of open connections
func (h *Handler) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Handler) changed() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.changed <- struct{}{}:
		default:
		}
	}
}

func (h *Handler) logged(e ipclog.Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if !c.wants(e) {
			continue
		}
		select {
		case c.logs <- e:
		default:
		}
	}
}

func (c *client) wants(e ipclog.Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.follow {
	case "":
		return false
	case "all":
		return true
	default:
		return e.ExtID == c.follow
	}
}

func (c *client) setFollow(ext string) {
	c.mu.Lock()
	c.follow = ext
	c.mu.Unlock()
}

// HandleConnection handles WebSocket upgrade and messages
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	cl := &client{
		conn:    conn,
		changed: make(chan struct{}, 1),
		logs:    make(chan ipclog.Entry, logBufferSize),
	}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, cl)
		h.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	if err := h.sendSnapshot(cl); err != nil {
		return
	}
	go h.push(ctx, cl)

	// Listen for messages
	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "ping":
			err = h.send(cl, gin.H{"type": "pong"})
		case "snapshot":
			err = h.sendSnapshot(cl)
		case "logs":
			cl.setFollow(msg.Ext)
			err = h.send(cl, gin.H{"type": "following", "ext": msg.Ext})
		default:
			err = h.sendError(cl, "unknown message type")
		}
		if err != nil {
			return
		}
	}
}

// push forwards coalesced changes and followed log entries until ctx ends
func (h *Handler) push(ctx context.Context, cl *client) {
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-cl.changed:
			err = h.sendSnapshot(cl)
		case e := <-cl.logs:
			err = h.send(cl, gin.H{"type": "log", "entry": e})
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) sendSnapshot(cl *client) error {
	return h.send(cl, gin.H{"type": "snapshot", "data": h.manager.Snapshot()})
}

func (h *Handler) sendError(cl *client, message string) error {
	return h.send(cl, gin.H{"type": "error", "message": message})
}

func (h *Handler) send(cl *client, frame interface{}) error {
	data, err := sonic.Marshal(frame)
	if err != nil {
		h.logger.Error("Failed to encode frame", zap.Error(err))
		return nil
	}

	cl.writeMu.Lock()
	defer cl.writeMu.Unlock()
	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cl.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		h.logger.Debug("WebSocket write failed", zap.Error(err))
		return err
	}
	return nil
}
