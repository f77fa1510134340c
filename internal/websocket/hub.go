package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/adapters/iflytek"
	"github.com/sa2kit/iatbridge/domain/entities"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024 // 512KB for audio chunks
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is the hosting application's policy.
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// SessionBridge consumes the downstream protocol events of one
// connection. Satisfied by *iflytek.Adapter.
type SessionBridge interface {
	HandleStart(socket iflytek.Socket, payload entities.StartPayload)
	HandleAudio(socket iflytek.Socket, frame entities.AudioFrame)
	HandleStop(socket iflytek.Socket, payload entities.StopPayload)
	HandleDisconnect(socket iflytek.Socket)
}

// Hub maintains the set of active connections and hands their
// protocol events to the session bridge.
type Hub struct {
	// Registered connections.
	conns map[string]*Conn

	// Register requests from the connections.
	register chan *Conn

	// Unregister requests from connections.
	unregister chan *Conn

	// Mutex for thread-safe access to conns map
	mu sync.RWMutex

	bridge SessionBridge

	logger *zap.Logger
}

// NewHub creates a new WebSocket hub
func NewHub(bridge SessionBridge, logger *zap.Logger) *Hub {
	return &Hub{
		conns:      make(map[string]*Conn),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		bridge:     bridge,
		logger:     logger,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.conns[conn.id] = conn
			h.mu.Unlock()
			h.logger.Info("Connection registered", zap.String("connID", conn.id))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.conns[conn.id]; ok {
				delete(h.conns, conn.id)
				close(conn.send)
			}
			h.mu.Unlock()
			h.logger.Info("Connection unregistered", zap.String("connID", conn.id))
		}
	}
}

// ConnCount returns the number of registered connections.
func (h *Hub) ConnCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Conn is a middleman between one websocket connection and the
// session bridge. It implements iflytek.Socket.
type Conn struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	send chan []byte

	// Connection identity; keys the bridge's session store.
	id string

	logger *zap.Logger
}

// ID returns the connection identity.
func (c *Conn) ID() string {
	return c.id
}

// Emit queues a protocol event for delivery to the peer. A full send
// buffer drops the message rather than blocking the bridge.
func (c *Conn) Emit(event string, payload interface{}) error {
	data, err := EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, dropping event",
			zap.String("connID", c.id),
			zap.String("event", event))
		return nil
	}
}

// HandleWebSocket upgrades the request and runs the connection pumps.
func HandleWebSocket(hub *Hub, c echo.Context, logger *zap.Logger) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	client := &Conn{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		id:     uuid.NewString(),
		logger: logger,
	}

	client.hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()

	return nil
}

// readPump pumps messages from the websocket connection to the bridge.
func (c *Conn) readPump() {
	defer func() {
		c.hub.bridge.HandleDisconnect(c)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		if messageType != websocket.TextMessage {
			c.logger.Warn("Received unknown message type", zap.Int("type", messageType))
			continue
		}

		c.dispatch(message)
	}
}

// writePump pumps messages from the bridge to the websocket connection.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one protocol event to the bridge.
func (c *Conn) dispatch(message []byte) {
	env, err := DecodeEnvelope(message)
	if err != nil {
		c.logger.Error("Failed to parse message", zap.Error(err))
		return
	}

	switch env.Event {
	case entities.EventStart:
		var payload entities.StartPayload
		if err := decodePayload(env.Payload, &payload); err != nil {
			c.logger.Error("Invalid start payload", zap.Error(err))
			return
		}
		c.hub.bridge.HandleStart(c, payload)

	case entities.EventAudio:
		var frame entities.AudioFrame
		if err := decodePayload(env.Payload, &frame); err != nil {
			c.logger.Error("Invalid audio frame", zap.Error(err))
			return
		}
		c.hub.bridge.HandleAudio(c, frame)

	case entities.EventStop:
		var payload entities.StopPayload
		if err := decodePayload(env.Payload, &payload); err != nil {
			c.logger.Error("Invalid stop payload", zap.Error(err))
			return
		}
		c.hub.bridge.HandleStop(c, payload)

	default:
		c.logger.Warn("Unknown event", zap.String("event", env.Event))
	}
}

// decodePayload tolerates events sent without a payload.
func decodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}
