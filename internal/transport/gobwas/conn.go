// Package gobwas provides an alternative WebSocket transport built on the
// zero-copy github.com/gobwas/ws primitives.
package gobwas

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/pkg/errors"

	"github.com/omochice/sabi-chat/internal/transport"
)

// Conn adapts a client-side gobwas connection to transport.Conn.
type Conn struct {
	conn net.Conn
	r    io.Reader

	// writeMu guards whole frames on conn. Control replies produced while
	// reading are buffered and flushed under the same lock.
	writeMu sync.Mutex
}

// NewConn wraps conn. br holds frames the server sent right after the
// handshake and may be nil.
func NewConn(conn net.Conn, br *bufio.Reader) *Conn {
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &Conn{conn: conn, r: r}
}

// Read implements transport.Conn.
func (c *Conn) Read(ctx context.Context) (string, error) {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	data, err := c.readData()
	if err != nil {
		var ce wsutil.ClosedError
		if errors.As(err, &ce) {
			return "", &transport.CloseError{Code: transport.StatusCode(ce.Code), Reason: ce.Reason}
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return string(data), nil
}

func (c *Conn) readData() ([]byte, error) {
	rd := &wsutil.Reader{
		Source:         c.r,
		State:          ws.StateClientSide,
		CheckUTF8:      true,
		OnIntermediate: c.handleControl,
	}
	for {
		hdr, err := rd.NextFrame()
		if err != nil {
			return nil, err
		}
		if hdr.OpCode.IsControl() {
			if err := c.handleControl(hdr, rd); err != nil {
				return nil, err
			}
			continue
		}
		if hdr.OpCode&(ws.OpText|ws.OpBinary) == 0 {
			if err := rd.Discard(); err != nil {
				return nil, err
			}
			continue
		}
		return io.ReadAll(rd)
	}
}

func (c *Conn) handleControl(hdr ws.Header, r io.Reader) error {
	var buf bytes.Buffer
	err := wsutil.ControlFrameHandler(&buf, ws.StateClientSide)(hdr, r)
	if buf.Len() > 0 {
		c.writeMu.Lock()
		_, werr := c.conn.Write(buf.Bytes())
		c.writeMu.Unlock()
		if err == nil && werr != nil {
			err = werr
		}
	}
	return err
}

// Write implements transport.Conn.
func (c *Conn) Write(ctx context.Context, text string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientText(c.conn, []byte(text))
}

// Close implements transport.Conn.
func (c *Conn) Close(code transport.StatusCode, reason string) error {
	c.writeMu.Lock()
	body := ws.NewCloseFrameBody(ws.StatusCode(code), reason)
	_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, body)
	c.writeMu.Unlock()
	return c.conn.Close()
}
