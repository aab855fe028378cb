package gobwas

import (
	"context"

	"github.com/gobwas/ws"
	"github.com/pkg/errors"

	"github.com/omochice/sabi-chat/internal/transport"
)

// Dialer dials endpoints with gobwas/ws.
type Dialer struct {
	// Dialer is used for the handshake; the zero value is ws.DefaultDialer.
	Dialer ws.Dialer
}

// Dial implements transport.Dialer.
func (d Dialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	conn, br, _, err := d.Dialer.Dial(ctx, endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s", endpoint)
	}
	return NewConn(conn, br), nil
}
