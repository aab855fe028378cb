package chat

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/omochice/sabi-chat/internal/transport"
)

// link is one live socket plus its reader and writer goroutines.
// Outbound frames go through a bounded outbox so Send never blocks the loop.
type link struct {
	gen     uint64
	conn    transport.Conn
	outbox  chan string
	ctx     context.Context
	cancel  context.CancelFunc
	closing atomic.Bool
	log     zerolog.Logger
}

func newLink(gen uint64, conn transport.Conn, outboxSize int, log zerolog.Logger) *link {
	ctx, cancel := context.WithCancel(context.Background())
	return &link{
		gen:    gen,
		conn:   conn,
		outbox: make(chan string, outboxSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With().Uint64("link", gen).Logger(),
	}
}

// start runs the reader and writer. onFrame and onFailure are called from
// the reader goroutine; onFailure at most once and never after close.
func (l *link) start(wg *sync.WaitGroup, onFrame func(string), onFailure func(error)) {
	wg.Add(2)
	go func() {
		defer wg.Done()
		l.readLoop(onFrame, onFailure)
	}()
	go func() {
		defer wg.Done()
		l.writeLoop()
	}()
}

func (l *link) readLoop(onFrame func(string), onFailure func(error)) {
	for {
		text, err := l.conn.Read(l.ctx)
		if err != nil {
			if l.closing.Load() {
				return
			}
			l.log.Debug().Err(err).Msg("read loop ended")
			onFailure(err)
			return
		}
		onFrame(text)
	}
}

func (l *link) writeLoop() {
	for {
		select {
		case <-l.ctx.Done():
			return
		case text := <-l.outbox:
			if err := l.conn.Write(l.ctx, text); err != nil {
				if l.closing.Load() {
					return
				}
				// Surfaces to the manager through the reader as error + close.
				l.log.Warn().Err(err).Msg("failed to write frame")
				_ = l.conn.Close(transport.StatusInternalError, "write failed")
				return
			}
		}
	}
}

// enqueue hands text to the writer without blocking.
func (l *link) enqueue(text string) bool {
	select {
	case l.outbox <- text:
		return true
	default:
		return false
	}
}

// close performs the closing handshake and stops both goroutines.
// Failures after this point are not reported.
func (l *link) close(code transport.StatusCode, reason string) {
	l.closing.Store(true)
	if err := l.conn.Close(code, reason); err != nil {
		l.log.Debug().Err(err).Msg("close after shutdown")
	}
	l.cancel()
}
