// Package tui is the full-screen terminal front end of the chat client.
package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/compose"
	"github.com/omochice/sabi-chat/internal/render"
	"github.com/omochice/sabi-chat/internal/transport"
)

// runMsg carries a connection manager reaction onto the program's loop.
type runMsg func()

// MsgSender is the part of *tea.Program the model posts through.
type MsgSender interface {
	Send(msg tea.Msg)
}

// Options configures a Model.
type Options struct {
	Endpoint   string
	Dialer     transport.Dialer
	Recovery   chat.Recovery
	OutboxSize int
	Hyperlinks bool
	Clock      chat.Clock
	Logger     zerolog.Logger
}

type keyMap struct {
	Quit     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
}

var keys = keyMap{
	Quit:     key.NewBinding(key.WithKeys("ctrl+c", "esc"), key.WithHelp("esc", "quit")),
	PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
	PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdown", "scroll down")),
}

var (
	statusStyles = map[chat.Status]lipgloss.Style{
		chat.StatusConnecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		chat.StatusConnected:    lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		chat.StatusDisconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		chat.StatusError:        lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
	}
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// session is everything a reload throws away.
type session struct {
	id         string
	transcript *render.Transcript
	composer   *compose.Composer
	manager    *chat.Manager
	status     chat.Status
}

// PublishStatus implements chat.StatusPublisher.
func (s *session) PublishStatus(st chat.Status) { s.status = st }

// Model is the bubbletea model. It owns exactly one live session at a time.
type Model struct {
	opts    Options
	sender  MsgSender
	ctx     context.Context
	session *session
	width   int
	height  int
	log     zerolog.Logger

	// retired tracks replaced managers whose goroutines are still running.
	retired  sync.WaitGroup
	retiring atomic.Int32
}

// New creates a model. Attach must be called before the program runs.
func New(ctx context.Context, opts Options) *Model {
	return &Model{
		opts:   opts,
		ctx:    ctx,
		width:  80,
		height: 24,
		log:    opts.Logger.With().Str("component", "tui").Logger(),
	}
}

// Attach sets where manager reactions are posted, normally the program.
func (m *Model) Attach(s MsgSender) { m.sender = s }

// Post implements chat.Executor.
func (m *Model) Post(fn func()) { m.sender.Send(runMsg(fn)) }

// Init starts the first session.
func (m *Model) Init() tea.Cmd {
	if err := m.startSession(); err != nil {
		m.log.Error().Err(err).Msg("failed to start session")
		return tea.Quit
	}
	return textarea.Blink
}

func (m *Model) startSession() error {
	s := &session{
		id:         uuid.NewString(),
		transcript: render.NewTranscript(m.width, 1),
		composer:   compose.New(nil, m.width),
		status:     chat.StatusConnecting,
	}
	s.transcript.SetHyperlinks(m.opts.Hyperlinks)

	mgr, err := chat.NewManager(chat.Options{
		Endpoint:   m.opts.Endpoint,
		Dialer:     m.opts.Dialer,
		Executor:   m,
		Renderer:   s.transcript,
		Composer:   s.composer,
		Status:     s,
		Clock:      m.opts.Clock,
		Recovery:   m.opts.Recovery,
		OutboxSize: m.opts.OutboxSize,
		OnReload:   m.reload,
		Logger:     m.opts.Logger.With().Str("session", s.id).Logger(),
	})
	if err != nil {
		return err
	}
	s.manager = mgr
	s.composer.SetSender(mgr)

	m.session = s
	m.layout()
	m.log.Info().Str("session", s.id).Msg("session started")
	mgr.Start(m.ctx)
	return nil
}

// reload replaces the session: new socket, new state machine, empty
// transcript.
func (m *Model) reload() {
	m.retire(m.session.manager)
	if err := m.startSession(); err != nil {
		m.log.Error().Err(err).Msg("failed to reload session")
	}
}

// retire waits for a shut down manager in the background so nothing keeps
// it alive once its goroutines returned.
func (m *Model) retire(mgr *chat.Manager) {
	m.retiring.Add(1)
	m.retired.Add(1)
	go func() {
		defer m.retired.Done()
		mgr.Wait()
		m.retiring.Add(-1)
	}()
}

// Retiring reports how many replaced sessions are still winding down.
func (m *Model) Retiring() int { return int(m.retiring.Load()) }

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case runMsg:
		prev := m.session
		msg()
		if m.session != prev && m.session != nil {
			// a reload brought a fresh composer
			return m, textarea.Blink
		}
		return m, nil
	}
	if m.session == nil {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.session.manager.Shutdown()
			return m, tea.Quit
		case key.Matches(msg, keys.PageUp, keys.PageDown):
			return m, m.session.transcript.Update(msg)
		}
		cmd := m.session.composer.Update(msg)
		m.layout()
		return m, cmd

	case tea.MouseMsg:
		return m, m.session.transcript.Update(msg)
	}

	cmd := m.session.composer.Update(msg)
	return m, cmd
}

// layout gives the composer its height and the transcript the rest.
func (m *Model) layout() {
	if m.session == nil {
		return
	}
	m.session.composer.SetWidth(m.width)
	// separator and status line
	h := m.height - m.session.composer.Height() - 2
	if h < 1 {
		h = 1
	}
	m.session.transcript.SetSize(m.width, h)
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.session == nil {
		return ""
	}
	s := m.session
	separator := separatorStyle.Render(strings.Repeat("─", max(m.width, 0)))
	return lipgloss.JoinVertical(lipgloss.Left,
		s.transcript.View(),
		separator,
		s.composer.View(),
		m.statusLine(),
	)
}

func (m *Model) statusLine() string {
	s := m.session
	indicator := statusStyles[s.status].Render("● " + string(s.status))
	hint := "enter send · alt+enter newline · esc quit"
	if !s.composer.Enabled() {
		hint = "sending disabled · esc quit"
	}
	return fmt.Sprintf("%s %s", indicator, dimStyle.Render(m.opts.Endpoint+" · "+hint))
}

// SessionID returns the id of the live session.
func (m *Model) SessionID() string { return m.session.id }

// Status returns the indicator of the live session.
func (m *Model) Status() chat.Status { return m.session.status }

// Transcript returns the live session's transcript.
func (m *Model) Transcript() *render.Transcript { return m.session.transcript }

// Composer returns the live session's composer.
func (m *Model) Composer() *compose.Composer { return m.session.composer }

// Manager returns the live session's connection manager.
func (m *Model) Manager() *chat.Manager { return m.session.manager }

// Close shuts the live session down and waits for the goroutines of every
// session. Call it after the program returned.
func (m *Model) Close() {
	if m.session != nil {
		m.session.manager.Shutdown()
		m.retire(m.session.manager)
		m.session = nil
	}
	m.retired.Wait()
}
