package client

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sa2kit/iatbridge/domain/repositories"
	intws "github.com/sa2kit/iatbridge/internal/websocket"
)

// WSTransport implements repositories.Transport over a websocket
// connection to the bridge's /ws endpoint, speaking the same envelope
// frames the server hub does.
type WSTransport struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	handlers map[string]repositories.Handler
	closed   bool
}

// DialTransport connects to the bridge and starts the read loop.
func DialTransport(url string, logger *zap.Logger) (*WSTransport, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &WSTransport{
		conn:     conn,
		logger:   logger,
		handlers: make(map[string]repositories.Handler),
	}
	go t.readLoop()
	return t, nil
}

// Emit sends one protocol event to the bridge.
func (t *WSTransport) Emit(event string, payload interface{}) error {
	data, err := intws.EncodeEnvelope(event, payload)
	if err != nil {
		return err
	}
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

// On registers the handler for an event, replacing any previous one.
func (t *WSTransport) On(event string, handler repositories.Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handlers[event] = handler
}

// Off removes the handler for an event.
func (t *WSTransport) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
}

// Close tears the connection down; the read loop exits on its own.
func (t *WSTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return t.conn.Close()
}

func (t *WSTransport) readLoop() {
	for {
		_, data, err := t.conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if !closed {
				t.logger.Debug("transport read failed", zap.Error(err))
			}
			return
		}

		env, err := intws.DecodeEnvelope(data)
		if err != nil {
			t.logger.Debug("malformed envelope", zap.Error(err))
			continue
		}

		t.mu.Lock()
		handler := t.handlers[env.Event]
		t.mu.Unlock()
		if handler != nil {
			handler(env.Payload)
		}
	}
}
