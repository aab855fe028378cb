package ws

import (
	"context"

	"github.com/pkg/errors"
	"nhooyr.io/websocket"

	"github.com/omochice/sabi-chat/internal/transport"
)

// DefaultReadLimit bounds a single inbound frame. Assistant replies can be
// long, so this is well above the library default of 32 KiB.
const DefaultReadLimit = 4 << 20

// Dialer dials endpoints with nhooyr.io/websocket.
type Dialer struct {
	// Options is passed to websocket.Dial and may be nil.
	Options *websocket.DialOptions
	// ReadLimit overrides DefaultReadLimit when positive.
	ReadLimit int64
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, _, err := websocket.Dial(ctx, endpoint, d.Options)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint)
	}

	limit := d.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	return NewConn(conn), nil
}
