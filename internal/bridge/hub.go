package bridge

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"torrentbridge/internal/domain"
	"torrentbridge/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxFrameBytes  = 64 << 10
	broadcastDepth = 256
	emitWait       = 5 * time.Second
	clientDepth    = 64
)

// FrameHandler receives every inbound text frame.
type FrameHandler func(clientID string, frame []byte)

type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans events out to every connected host client and hands inbound
// frames to a FrameHandler. It implements ports.EventSink.
type Hub struct {
	clients    map[*client]bool
	count      atomic.Int64
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  sync.Once
	onFrame    FrameHandler
	logger     *slog.Logger
	upgrader   websocket.Upgrader
	emitWait   time.Duration
}

func NewHub(onFrame FrameHandler, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, broadcastDepth),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		onFrame:    onFrame,
		logger:     logger,
		emitWait:   emitWait,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run owns the client set until Close is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "sidecar shutting down"),
					time.Now().Add(2*time.Second),
				)
				h.drop(c)
			}
			h.logger.Debug("bridge hub stopped")
			return
		case c := <-h.register:
			h.clients[c] = true
			h.setCount()
			h.logger.Info("host client connected",
				slog.String("clientId", c.id),
				slog.Int("total", len(h.clients)),
			)
		case c := <-h.unregister:
			if h.clients[c] {
				h.drop(c)
				h.logger.Info("host client disconnected",
					slog.String("clientId", c.id),
					slog.Int("total", len(h.clients)),
				)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("host client too slow, disconnecting", slog.String("clientId", c.id))
					h.drop(c)
				}
			}
		}
	}
}

func (h *Hub) drop(c *client) {
	delete(h.clients, c)
	close(c.send)
	h.setCount()
}

func (h *Hub) setCount() {
	h.count.Store(int64(len(h.clients)))
	metrics.BridgeClients.Set(float64(len(h.clients)))
}

// Close disconnects every client and stops Run.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// ClientCount reports connected clients.
func (h *Hub) ClientCount() int {
	return int(h.count.Load())
}

// Emit broadcasts ev to all connected clients. Telemetry events are dropped
// when the broadcast buffer is full. Any other event waits up to emitWait
// for room.
func (h *Hub) Emit(ev domain.Event) {
	frame, err := encodeEvent(ev)
	if err != nil {
		h.logger.Error("bridge event encode failed", slog.String("error", err.Error()))
		return
	}
	select {
	case h.broadcast <- frame:
		return
	case <-h.done:
		return
	default:
	}

	if isTelemetry(ev) {
		h.logger.Warn("bridge broadcast buffer full, event dropped",
			slog.String("type", ev.EventType()),
		)
		return
	}

	timer := time.NewTimer(h.emitWait)
	defer timer.Stop()
	select {
	case h.broadcast <- frame:
	case <-h.done:
	case <-timer.C:
		h.logger.Error("bridge broadcast stalled, event dropped",
			slog.String("type", ev.EventType()),
			slog.Duration("waited", h.emitWait),
		)
	}
}

// isTelemetry reports events that are superseded by the next sample.
func isTelemetry(ev domain.Event) bool {
	switch ev.EventType() {
	case domain.EventTorrentProgress, domain.EventTorrentDownloadBytes, domain.EventTorrentUploadBytes:
		return true
	}
	return false
}

// ServeWS upgrades the request and attaches a new host client.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("bridge upgrade failed", slog.String("error", err.Error()))
		return
	}
	c := &client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, clientDepth),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxFrameBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		kind, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("host client read failed",
					slog.String("clientId", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage || c.hub.onFrame == nil {
			continue
		}
		c.hub.onFrame(c.id, frame)
	}
}
