// Package transport defines the frame-level connection contract shared by
// all WebSocket implementations used by the chat client.
package transport

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// StatusCode is a WebSocket close code (RFC 6455 section 7.4).
type StatusCode int

const (
	StatusNormalClosure   StatusCode = 1000
	StatusGoingAway       StatusCode = 1001
	StatusNoStatusRcvd    StatusCode = 1005
	StatusAbnormalClosure StatusCode = 1006
	StatusInternalError   StatusCode = 1011
)

// Clean reports whether the code indicates an orderly shutdown.
// 1005 is sent when the peer completed the closing handshake without a code.
func (c StatusCode) Clean() bool {
	switch c {
	case StatusNormalClosure, StatusGoingAway, StatusNoStatusRcvd:
		return true
	default:
		return false
	}
}

// CloseError is returned by Conn.Read once the peer has closed the connection.
type CloseError struct {
	Code   StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("websocket closed: status = %d", e.Code)
	}
	return fmt.Sprintf("websocket closed: status = %d, reason = %q", e.Code, e.Reason)
}

// AsCloseError extracts a *CloseError from err, if any.
func AsCloseError(err error) (*CloseError, bool) {
	var ce *CloseError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// Conn abstracts one bidirectional text-frame connection.
// Implementations isolate the WebSocket library from the chat logic.
type Conn interface {
	// Read blocks for the next text frame. It returns a *CloseError when the
	// peer closed the connection and any other error on transport failure.
	Read(ctx context.Context) (string, error)

	// Write sends text as exactly one frame.
	Write(ctx context.Context, text string) error

	// Close starts the closing handshake with code and releases the connection.
	Close(code StatusCode, reason string) error
}

// Dialer opens a Conn to a ws:// or wss:// endpoint.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc adapts a plain function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}
