// Package plain is the line-mode front end, for pipes and dumb terminals.
// Each input line is one message; each turn is printed as "[role] text".
package plain

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/transport"
)

// Options configures Run.
type Options struct {
	Endpoint   string
	Dialer     transport.Dialer
	Recovery   chat.Recovery
	OutboxSize int
	Clock      chat.Clock
	Logger     zerolog.Logger

	// In is read line by line. Run closes it when it implements io.Closer
	// and waits for the reader, so an In that can block must be closable.
	In  io.Reader
	Out io.Writer
}

// printer renders one session to the output stream.
type printer struct {
	out     io.Writer
	enabled bool
	onTurn  func(chat.Role)
}

func (p *printer) Append(turn chat.Turn) {
	fmt.Fprintf(p.out, "[%s] %s\n", turn.Role(), turn.Raw())
	p.onTurn(turn.Role())
}

func (p *printer) ShowPending() {}

func (p *printer) ClearPending() {}

func (p *printer) SetSendEnabled(enabled bool) { p.enabled = enabled }

func (p *printer) PublishStatus(s chat.Status) {
	fmt.Fprintf(p.out, "*** %s ***\n", s)
}

// client is the state of one Run, owned by the loop.
type client struct {
	opts    Options
	ctx     context.Context
	loop    *chat.Loop
	stop    context.CancelFunc
	reader  sync.WaitGroup
	printer *printer
	manager *chat.Manager
	retired []*chat.Manager
	backlog []string
	eof     bool
	// sent and replies count messages of the live session.
	sent    int
	replies int
	log     zerolog.Logger
}

// Run chats until the input ends and the last reply arrived, the session
// closes cleanly, the user types "quit" or ctx is done.
func Run(ctx context.Context, opts Options) error {
	if opts.In == nil || opts.Out == nil {
		return errors.New("plain: input and output are required")
	}

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	c := &client{
		opts: opts,
		ctx:  ctx,
		loop: chat.NewLoop(64),
		stop: stop,
		log:  opts.Logger.With().Str("component", "plain").Logger(),
	}
	if err := c.startSession(); err != nil {
		return err
	}

	c.reader.Add(1)
	go func() {
		defer c.reader.Done()
		c.readInput()
	}()

	// Run only returns once loopCtx is done, by stop or by ctx.
	_ = c.loop.Run(loopCtx)

	if closer, ok := opts.In.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			c.log.Debug().Err(err).Msg("failed to close input")
		}
	}
	c.reader.Wait()

	c.manager.Shutdown()
	c.retired = append(c.retired, c.manager)
	for _, m := range c.retired {
		m.Wait()
	}
	return nil
}

func (c *client) startSession() error {
	c.printer = &printer{out: c.opts.Out, onTurn: c.turnPrinted}

	id := uuid.NewString()
	mgr, err := chat.NewManager(chat.Options{
		Endpoint:   c.opts.Endpoint,
		Dialer:     c.opts.Dialer,
		Executor:   c.loop,
		Renderer:   c.printer,
		Composer:   c.printer,
		Status:     statusFilter{c},
		Clock:      c.opts.Clock,
		Recovery:   c.opts.Recovery,
		OutboxSize: c.opts.OutboxSize,
		OnReload:   c.reload,
		Logger:     c.opts.Logger.With().Str("session", id).Logger(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create session")
	}
	c.manager = mgr
	c.log.Info().Str("session", id).Msg("session started")
	mgr.Start(c.ctx)
	return nil
}

func (c *client) reload() {
	fmt.Fprintln(c.opts.Out, "*** reloading ***")
	c.retired = append(c.retired, c.manager)
	c.sent, c.replies = 0, 0
	if err := c.startSession(); err != nil {
		c.log.Error().Err(err).Msg("failed to reload session")
		c.stop()
	}
}

// statusFilter prints status changes, submits held lines once connected and
// ends the run after a clean close.
type statusFilter struct{ c *client }

func (f statusFilter) PublishStatus(s chat.Status) {
	f.c.printer.PublishStatus(s)
	switch {
	case s == chat.StatusConnected:
		f.c.flush()
	case s == chat.StatusDisconnected && f.c.manager.State() == chat.StateClosedClean:
		f.c.stop()
	}
}

// readInput forwards input lines to the loop until the input ends or Run
// closes it.
func (c *client) readInput() {
	scanner := bufio.NewScanner(c.opts.In)
	for scanner.Scan() {
		line := scanner.Text()
		if t := strings.TrimSpace(line); t == "quit" || t == "exit" {
			c.loop.Post(c.stop)
			return
		}
		c.loop.Post(func() { c.submit(line) })
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, io.ErrClosedPipe) {
		c.log.Warn().Err(err).Msg("failed to read input")
	}
	c.loop.Post(func() {
		c.eof = true
		c.maybeFinish()
	})
}

// submit sends line now, or holds it until sending is enabled.
func (c *client) submit(line string) {
	if !c.printer.enabled {
		c.backlog = append(c.backlog, line)
		return
	}
	c.send(line)
}

func (c *client) send(line string) {
	if strings.TrimSpace(line) != "" {
		c.sent++
	}
	c.manager.Send(line)
}

func (c *client) flush() {
	for len(c.backlog) > 0 && c.printer.enabled {
		line := c.backlog[0]
		c.backlog = c.backlog[1:]
		c.send(line)
	}
}

func (c *client) turnPrinted(role chat.Role) {
	switch role {
	case chat.RoleAssistant:
		c.replies++
		c.maybeFinish()
	case chat.RoleSystem:
		c.maybeFinish()
	}
}

// maybeFinish stops once the input ended and every message got a reply.
func (c *client) maybeFinish() {
	if c.eof && len(c.backlog) == 0 && c.replies >= c.sent {
		c.stop()
	}
}
