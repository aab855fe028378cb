package tui_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/transport"
	"github.com/omochice/sabi-chat/internal/tui"
)

type fakeConn struct {
	inbound  chan string
	fail     chan error
	outbound chan string
	done     chan struct{}
	once     sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound:  make(chan string, 4),
		fail:     make(chan error, 1),
		outbound: make(chan string, 4),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.done:
		return "", io.EOF
	case err := <-c.fail:
		return "", err
	case text := <-c.inbound:
		return text, nil
	}
}

func (c *fakeConn) Write(ctx context.Context, text string) error {
	c.outbound <- text
	return nil
}

func (c *fakeConn) Close(transport.StatusCode, string) error {
	c.once.Do(func() { close(c.done) })
	return nil
}

type fakeDialer struct {
	conns chan *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	select {
	case c := <-d.conns:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// inbox stands in for the program: it collects posted messages until the
// test feeds them to Update.
type inbox chan tea.Msg

func (in inbox) Send(msg tea.Msg) { in <- msg }

type clock struct {
	mu  sync.Mutex
	fns []func()
}

func (c *clock) AfterFunc(_ time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fns = append(c.fns, fn)
}

func (c *clock) fire() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fixture struct {
	t      *testing.T
	model  *tui.Model
	inbox  inbox
	dialer *fakeDialer
	clock  *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		inbox:  make(inbox, 16),
		dialer: &fakeDialer{conns: make(chan *fakeConn, 2)},
		clock:  &clock{},
	}
	f.model = tui.New(context.Background(), tui.Options{
		Endpoint:   "ws://localhost:8001/ws/chat",
		Dialer:     f.dialer,
		Recovery:   chat.DefaultRecovery(),
		Hyperlinks: true,
		Clock:      f.clock,
	})
	f.model.Attach(f.inbox)
	t.Cleanup(f.model.Close)
	return f
}

// pump feeds one posted message to the model.
func (f *fixture) pump() {
	f.t.Helper()
	select {
	case msg := <-f.inbox:
		f.model.Update(msg)
	case <-time.After(time.Second):
		f.t.Fatal("timeout waiting for a posted message")
	}
}

func (f *fixture) connect() *fakeConn {
	f.t.Helper()
	conn := newFakeConn()
	f.dialer.conns <- conn
	f.pump()
	require.Equal(f.t, chat.StatusConnected, f.model.Status())
	return conn
}

func (f *fixture) typeAndSend(text string) {
	f.model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	f.model.Update(tea.KeyMsg{Type: tea.KeyEnter})
}

func TestModel_ConnectsOnInit(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.model.Init())
	assert.Equal(t, chat.StatusConnecting, f.model.Status())
	assert.False(t, f.model.Composer().Enabled())

	f.connect()
	assert.True(t, f.model.Composer().Enabled())
	assert.Contains(t, f.model.View(), "connected")
}

func TestModel_SendAndReceive(t *testing.T) {
	f := newFixture(t)
	f.model.Init()
	conn := f.connect()

	f.typeAndSend("hello")

	select {
	case text := <-conn.outbound:
		assert.Equal(t, "hello", text)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for frame")
	}
	assert.Empty(t, f.model.Composer().Value())
	assert.True(t, f.model.Transcript().Pending())

	conn.inbound <- "see https://example.com"
	f.pump()

	assert.False(t, f.model.Transcript().Pending())
	turns := f.model.Transcript().Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role())
	assert.Equal(t, chat.RoleAssistant, turns[1].Role())
	assert.Contains(t, f.model.Transcript().Content(), "\x1b]8;;https://example.com")
}

func TestModel_EnterIgnoredWhileConnecting(t *testing.T) {
	f := newFixture(t)
	f.model.Init()

	f.typeAndSend("too early")
	assert.Empty(t, f.model.Transcript().Turns())
	assert.Equal(t, "too early", f.model.Composer().Value())
}

func TestModel_InitStartsCursorBlink(t *testing.T) {
	f := newFixture(t)
	assert.NotNil(t, f.model.Init())
}

func TestModel_ReloadReplacesSession(t *testing.T) {
	f := newFixture(t)
	f.model.Init()
	conn := f.connect()
	first := f.model.SessionID()

	f.typeAndSend("hello")
	<-conn.outbound

	conn.fail <- &transport.CloseError{Code: transport.StatusInternalError}
	f.pump()
	assert.Equal(t, chat.StatusDisconnected, f.model.Status())
	assert.Len(t, f.model.Transcript().Turns(), 2, "user turn plus the system notice")

	f.clock.fire()
	var cmd tea.Cmd
	select {
	case msg := <-f.inbox:
		_, cmd = f.model.Update(msg)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for the reload")
	}
	assert.NotNil(t, cmd, "the new composer's cursor blinks")
	assert.NotEqual(t, first, f.model.SessionID())
	assert.Empty(t, f.model.Transcript().Turns())
	assert.Equal(t, chat.StatusConnecting, f.model.Status())

	f.connect()
	assert.Equal(t, chat.StateOpen, f.model.Manager().State())
}

func TestModel_ReloadReleasesOldSessions(t *testing.T) {
	f := newFixture(t)
	f.model.Init()

	for range 3 {
		conn := f.connect()
		conn.fail <- &transport.CloseError{Code: transport.StatusInternalError}
		f.pump()
		f.clock.fire()
		f.pump() // reload
	}

	assert.Eventually(t, func() bool { return f.model.Retiring() == 0 },
		time.Second, 10*time.Millisecond, "replaced managers are not waited on until Close")
}

func TestModel_CleanCloseStaysDown(t *testing.T) {
	f := newFixture(t)
	f.model.Init()
	conn := f.connect()

	conn.fail <- &transport.CloseError{Code: transport.StatusNormalClosure}
	f.pump()

	assert.Equal(t, chat.StatusDisconnected, f.model.Status())
	assert.Empty(t, f.model.Transcript().Turns())
	assert.Contains(t, f.model.View(), "sending disabled")
}

func TestModel_Quit(t *testing.T) {
	f := newFixture(t)
	f.model.Init()
	f.connect()

	_, cmd := f.model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.False(t, f.model.Composer().Enabled())
}

func TestModel_WindowSize(t *testing.T) {
	f := newFixture(t)
	f.model.Init()
	f.model.Update(tea.WindowSizeMsg{Width: 60, Height: 20})

	for range 30 {
		f.model.Transcript().Append(chat.NewTurn(chat.RoleAssistant, "filler"))
	}
	assert.True(t, f.model.Transcript().AtBottom())
	f.model.Update(tea.KeyMsg{Type: tea.KeyPgUp})
	assert.False(t, f.model.Transcript().AtBottom())
}
