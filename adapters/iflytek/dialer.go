package iflytek

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// UpstreamConn is the minimal surface the adapter needs from an open
// recognizer connection.
type UpstreamConn interface {
	WriteMessage(data []byte) error
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens upstream recognizer connections.
type Dialer interface {
	Dial(url string) (UpstreamConn, error)
}

// WSDialer dials the recognizer over websocket.
type WSDialer struct {
	dialer *websocket.Dialer
}

func NewWSDialer(handshakeTimeout time.Duration) *WSDialer {
	return &WSDialer{
		dialer: &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

func (d *WSDialer) Dial(url string) (UpstreamConn, error) {
	conn, _, err := d.dialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) WriteMessage(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// isExpectedClose reports whether a read-loop error is just the
// connection winding down rather than a transport failure.
func isExpectedClose(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
