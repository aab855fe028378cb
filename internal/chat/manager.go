package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/omochice/sabi-chat/internal/transport"
)

// DefaultOutboxSize is the number of outbound frames buffered per link.
const DefaultOutboxSize = 64

// Options configures a Manager.
type Options struct {
	Endpoint string
	Dialer   transport.Dialer
	Executor Executor

	Renderer Renderer
	Composer Affordance
	Status   StatusPublisher

	// Clock defaults to RealClock.
	Clock Clock
	// Recovery defaults to DefaultRecovery().
	Recovery Recovery
	// OutboxSize defaults to DefaultOutboxSize.
	OutboxSize int
	// OnReload is called on the loop when a RecoverReload delay elapsed.
	// The caller replaces the whole session.
	OnReload func()

	Logger zerolog.Logger
}

// Manager owns one connection to the conversational service, drives the
// connection state machine and dispatches turns to its collaborators.
//
// All methods except Wait must be called on the loop behind Options.Executor.
type Manager struct {
	endpoint   string
	dialer     transport.Dialer
	exec       Executor
	clock      Clock
	recovery   Recovery
	outboxSize int
	onReload   func()

	renderer Renderer
	composer Affordance
	status   StatusPublisher

	log    zerolog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	state    State
	gen      uint64
	link     *link
	pending  bool
	stopped  bool
	backOff  backoff.BackOff
	attempts int
}

// NewManager validates opts and returns a Manager in StateConnecting.
// Nothing happens until Start.
func NewManager(opts Options) (*Manager, error) {
	switch {
	case opts.Endpoint == "":
		return nil, errors.New("chat: endpoint is required")
	case opts.Dialer == nil:
		return nil, errors.New("chat: dialer is required")
	case opts.Executor == nil:
		return nil, errors.New("chat: executor is required")
	case opts.Renderer == nil || opts.Composer == nil || opts.Status == nil:
		return nil, errors.New("chat: renderer, composer and status collaborators are required")
	}

	m := &Manager{
		endpoint:   opts.Endpoint,
		dialer:     opts.Dialer,
		exec:       opts.Executor,
		clock:      opts.Clock,
		recovery:   opts.Recovery,
		outboxSize: opts.OutboxSize,
		onReload:   opts.OnReload,
		renderer:   opts.Renderer,
		composer:   opts.Composer,
		status:     opts.Status,
		log:        opts.Logger.With().Str("component", "chat").Str("endpoint", opts.Endpoint).Logger(),
		state:      StateConnecting,
	}
	if m.clock == nil {
		m.clock = RealClock
	}
	if m.outboxSize <= 0 {
		m.outboxSize = DefaultOutboxSize
	}
	switch m.recovery.Mode {
	case RecoverReload:
		if m.recovery.Delay <= 0 {
			m.recovery.Delay = DefaultReloadDelay
		}
	case RecoverRetry:
		if m.recovery.NewBackOff == nil {
			return nil, errors.New("chat: retry recovery needs a back-off schedule")
		}
	default:
		return nil, errors.Errorf("chat: unknown recovery mode %d", m.recovery.Mode)
	}
	if m.onReload == nil {
		m.onReload = func() {}
	}
	return m, nil
}

// State returns the current connection state.
func (m *Manager) State() State { return m.state }

// Pending reports whether a pending-reply marker is live.
func (m *Manager) Pending() bool { return m.pending }

// Endpoint returns the socket URL.
func (m *Manager) Endpoint() string { return m.endpoint }

// Start dials the endpoint in the background.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.connect()
}

// Send renders text as a user turn, shows the pending marker and queues the
// text as one frame. Blank text is ignored. There is no acknowledgement: a
// frame lost to a failing socket is not resent.
func (m *Manager) Send(text string) {
	text = strings.TrimSpace(text)
	if text == "" || m.stopped {
		return
	}

	m.renderer.Append(NewTurn(RoleUser, text))
	m.pending = true
	m.renderer.ShowPending()

	if m.link == nil {
		m.log.Warn().Stringer("state", m.state).Msg("no connection, frame dropped")
		return
	}
	if !m.link.enqueue(text) {
		m.log.Warn().Int("outbox", m.outboxSize).Msg("outbox full, frame dropped")
	}
}

// Shutdown closes the connection with a normal closure and suppresses every
// later event. It does not block; call Wait once the loop stopped.
func (m *Manager) Shutdown() {
	if m.stopped {
		return
	}
	m.stopped = true
	m.composer.SetSendEnabled(false)
	if m.link != nil {
		m.release(m.link, transport.StatusNormalClosure, "")
		m.link = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	m.log.Info().Msg("session shut down")
}

// Wait blocks until every goroutine started by the manager returned.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) connect() {
	m.gen++
	gen := m.gen
	m.setState(StateConnecting)
	m.composer.SetSendEnabled(false)
	m.status.PublishStatus(StatusConnecting)

	ctx := m.ctx
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		conn, err := m.dialer.Dial(ctx, m.endpoint)
		m.exec.Post(func() { m.dialed(gen, conn, err) })
	}()
}

func (m *Manager) dialed(gen uint64, conn transport.Conn, err error) {
	if m.stopped || gen != m.gen {
		if conn != nil {
			m.release(newLink(gen, conn, 1, m.log), transport.StatusNormalClosure, "")
		}
		return
	}
	if err != nil {
		m.handleError(gen, err)
		m.handleClose(gen, transport.StatusAbnormalClosure, "")
		return
	}

	l := newLink(gen, conn, m.outboxSize, m.log)
	m.link = l
	l.start(&m.wg,
		func(text string) { m.exec.Post(func() { m.handleFrame(gen, text) }) },
		func(err error) { m.exec.Post(func() { m.handleFailure(gen, err) }) },
	)
	m.handleOpen(gen)
}

func (m *Manager) handleOpen(gen uint64) {
	if m.stopped || gen != m.gen {
		return
	}
	m.setState(StateOpen)
	if m.backOff != nil {
		m.backOff.Reset()
		m.attempts = 0
	}
	m.composer.SetSendEnabled(true)
	m.status.PublishStatus(StatusConnected)
}

// handleFrame renders one inbound frame as one complete assistant turn.
func (m *Manager) handleFrame(gen uint64, text string) {
	if m.stopped || gen != m.gen {
		return
	}
	if m.pending {
		m.pending = false
		m.renderer.ClearPending()
	}
	m.renderer.Append(NewTurn(RoleAssistant, text))
}

// handleFailure mirrors a browser socket: a close frame is a close event,
// anything else is an error event followed by an abnormal close.
func (m *Manager) handleFailure(gen uint64, err error) {
	if ce, ok := transport.AsCloseError(err); ok {
		m.handleClose(gen, ce.Code, ce.Reason)
		return
	}
	m.handleError(gen, err)
	m.handleClose(gen, transport.StatusAbnormalClosure, "")
}

// handleError surfaces a transport error. Recovery is left to the close that
// follows it.
func (m *Manager) handleError(gen uint64, err error) {
	if m.stopped || gen != m.gen {
		return
	}
	m.log.Warn().Err(err).Stringer("state", m.state).Msg("transport error")
	m.setState(StateErrored)
	m.status.PublishStatus(StatusError)
}

func (m *Manager) handleClose(gen uint64, code transport.StatusCode, reason string) {
	if m.stopped || gen != m.gen {
		return
	}
	// Later events of this link are stale.
	m.gen++

	if m.link != nil {
		m.release(m.link, transport.StatusNormalClosure, "")
		m.link = nil
	}
	m.composer.SetSendEnabled(false)
	clean := code.Clean()
	if clean {
		m.setState(StateClosedClean)
	} else {
		m.setState(StateClosedUnclean)
	}
	m.status.PublishStatus(StatusDisconnected)

	evt := m.log.Info().Int("code", int(code)).Str("reason", reason)
	if clean {
		evt.Msg("connection closed")
		return
	}
	evt.Msg("connection lost")
	m.recover()
}

func (m *Manager) recover() {
	if m.recovery.Mode == RecoverRetry {
		m.retry()
		return
	}

	m.renderer.Append(NewTurn(RoleSystem,
		fmt.Sprintf("Connection lost. Reloading in %s...", m.recovery.Delay)))
	m.clock.AfterFunc(m.recovery.Delay, func() {
		m.exec.Post(m.reload)
	})
}

func (m *Manager) retry() {
	if m.backOff == nil {
		m.backOff = m.recovery.NewBackOff()
	}
	delay := m.backOff.NextBackOff()
	if delay == backoff.Stop {
		m.renderer.Append(NewTurn(RoleSystem,
			fmt.Sprintf("Connection lost. Gave up after %d reconnection attempts.", m.attempts)))
		m.log.Warn().Int("attempts", m.attempts).Msg("reconnection attempts exhausted")
		return
	}
	m.attempts++
	m.renderer.Append(NewTurn(RoleSystem,
		fmt.Sprintf("Connection lost. Reconnecting in %s (attempt %d)...", delay, m.attempts)))

	gen := m.gen
	m.clock.AfterFunc(delay, func() {
		m.exec.Post(func() {
			if m.stopped || gen != m.gen {
				return
			}
			m.connect()
		})
	})
}

func (m *Manager) reload() {
	if m.stopped {
		return
	}
	m.log.Info().Msg("reloading session")
	m.Shutdown()
	m.onReload()
}

func (m *Manager) release(l *link, code transport.StatusCode, reason string) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		l.close(code, reason)
	}()
}

func (m *Manager) setState(s State) {
	if m.state != s {
		m.log.Debug().Stringer("from", m.state).Stringer("to", s).Msg("state transition")
	}
	m.state = s
}
