// Package ws provides the default WebSocket transport, built on nhooyr.io/websocket.
package ws

import (
	"context"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/omochice/sabi-chat/internal/transport"
)

// Conn adapts nhooyr.io/websocket to transport.Conn.
type Conn struct {
	conn *websocket.Conn
}

// NewConn wraps an established websocket.Conn.
func NewConn(conn *websocket.Conn) *Conn {
	return &Conn{conn: conn}
}

// Read implements transport.Conn.
// Binary frames are passed through as text; the service only sends UTF-8.
func (c *Conn) Read(ctx context.Context) (string, error) {
	_, data, err := c.conn.Read(ctx)
	if err != nil {
		var ce websocket.CloseError
		if errors.As(err, &ce) {
			return "", &transport.CloseError{Code: transport.StatusCode(ce.Code), Reason: ce.Reason}
		}
		return "", err
	}
	return string(data), nil
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, text string) error {
	return c.conn.Write(ctx, websocket.MessageText, []byte(text))
}

// Close implements transport.Conn.
func (c *Conn) Close(code transport.StatusCode, reason string) error {
	return c.conn.Close(websocket.StatusCode(code), reason)
}
