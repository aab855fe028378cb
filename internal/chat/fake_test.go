package chat_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/transport"
)

// journal records collaborator calls and socket writes in one order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(entry string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, entry)
}

func (j *journal) all() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

// mockConn is a mock implementation of transport.Conn for testing.
type mockConn struct {
	readCh  chan string
	failCh  chan error
	written chan string
	log     *journal

	writeErr  error
	closeOnce sync.Once
	closed    chan struct{}
	closeCode transport.StatusCode
}

func newMockConn(log *journal) *mockConn {
	return &mockConn{
		readCh:  make(chan string, 10),
		failCh:  make(chan error, 1),
		written: make(chan string, 10),
		closed:  make(chan struct{}),
		log:     log,
	}
}

func (m *mockConn) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-m.closed:
		return "", io.EOF
	case err := <-m.failCh:
		return "", err
	case text := <-m.readCh:
		return text, nil
	}
}

func (m *mockConn) Write(ctx context.Context, text string) error {
	if m.writeErr != nil {
		return m.writeErr
	}
	m.log.add("write:" + text)
	m.written <- text
	return nil
}

func (m *mockConn) Close(code transport.StatusCode, reason string) error {
	m.closeOnce.Do(func() {
		m.closeCode = code
		close(m.closed)
	})
	return nil
}

// remoteClose simulates the service closing the connection.
func (m *mockConn) remoteClose(code transport.StatusCode) {
	m.failCh <- &transport.CloseError{Code: code}
}

// Compile-time check that mockConn implements transport.Conn
var _ transport.Conn = (*mockConn)(nil)

// mockDialer hands out queued results in order.
type mockDialer struct {
	mu      sync.Mutex
	results []dialResult
	dials   int
}

type dialResult struct {
	conn transport.Conn
	err  error
}

func (d *mockDialer) push(conn transport.Conn, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.results = append(d.results, dialResult{conn: conn, err: err})
}

func (d *mockDialer) Dial(ctx context.Context, endpoint string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.results) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	r := d.results[0]
	d.results = d.results[1:]
	return r.conn, r.err
}

func (d *mockDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// recorder implements the manager's collaborators.
type recorder struct {
	log      *journal
	turns    []chat.Turn
	pending  int
	enabled  bool
	statuses []chat.Status
}

func (r *recorder) Append(turn chat.Turn) {
	r.log.add("append:" + string(turn.Role()) + ":" + turn.Raw())
	r.turns = append(r.turns, turn)
}

func (r *recorder) ShowPending() {
	r.log.add("pending")
	r.pending = 1
}

func (r *recorder) ClearPending() {
	r.log.add("clear")
	r.pending = 0
}

func (r *recorder) SetSendEnabled(enabled bool) { r.enabled = enabled }

func (r *recorder) PublishStatus(s chat.Status) { r.statuses = append(r.statuses, s) }

func (r *recorder) lastStatus() chat.Status {
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

// queue is an Executor drained explicitly by the test goroutine, which plays
// the role of the event loop.
type queue struct {
	ch chan func()
}

func newQueue() *queue {
	return &queue{ch: make(chan func(), 64)}
}

func (q *queue) Post(fn func()) { q.ch <- fn }

// step runs exactly one posted reaction.
func (q *queue) step(t *testing.T) {
	t.Helper()
	select {
	case fn := <-q.ch:
		fn()
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for a posted reaction")
	}
}

// idle asserts nothing is posted for a short while.
func (q *queue) idle(t *testing.T) {
	t.Helper()
	select {
	case <-q.ch:
		t.Fatal("unexpected posted reaction")
	case <-time.After(50 * time.Millisecond):
	}
}

// fakeClock records scheduled callbacks; fire runs them.
type fakeClock struct {
	mu     sync.Mutex
	timers []fakeTimer
}

type fakeTimer struct {
	d  time.Duration
	fn func()
}

func (c *fakeClock) AfterFunc(d time.Duration, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.timers = append(c.timers, fakeTimer{d: d, fn: fn})
}

func (c *fakeClock) scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Duration
	for _, tm := range c.timers {
		out = append(out, tm.d)
	}
	return out
}

// fire runs and removes every scheduled callback.
func (c *fakeClock) fire() {
	c.mu.Lock()
	timers := c.timers
	c.timers = nil
	c.mu.Unlock()
	for _, tm := range timers {
		tm.fn()
	}
}
