package plain_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"nhooyr.io/websocket"

	"github.com/omochice/sabi-chat/internal/chat"
	"github.com/omochice/sabi-chat/internal/plain"
	"github.com/omochice/sabi-chat/internal/server"
	"github.com/omochice/sabi-chat/internal/transport/ws"
)

func endpoint(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	e, err := chat.Endpoint(ts.URL, "")
	require.NoError(t, err)
	return e
}

func run(t *testing.T, ts *httptest.Server, input string) string {
	t.Helper()
	var out bytes.Buffer

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := plain.Run(ctx, plain.Options{
		Endpoint: endpoint(t, ts),
		Dialer:   ws.Dialer{},
		Recovery: chat.DefaultRecovery(),
		In:       strings.NewReader(input),
		Out:      &out,
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Err(), "run did not finish on its own")
	return out.String()
}

func TestRun_EchoUntilInputEnds(t *testing.T) {
	srv := server.New(":0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Stop()

	out := run(t, ts, "hello\n\n   \nsecond\n")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	assert.Equal(t, []string{
		"*** connecting ***",
		"*** connected ***",
		"[user] hello",
		"[user] second",
		"[assistant] echo: hello",
		"[assistant] echo: second",
	}, lines)
}

func TestRun_Quit(t *testing.T) {
	srv := server.New(":0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Stop()

	out := run(t, ts, "quit\nnever sent\n")
	assert.NotContains(t, out, "never sent")
}

func TestRun_CleanCloseEnds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Close(websocket.StatusNormalClosure, "bye")
	}))
	defer ts.Close()

	pr, pw := io.Pipe()
	defer pw.Close()

	var out bytes.Buffer
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := plain.Run(ctx, plain.Options{
		Endpoint: endpoint(t, ts),
		Dialer:   ws.Dialer{},
		Recovery: chat.DefaultRecovery(),
		In:       pr,
		Out:      &out,
	})
	require.NoError(t, err)
	require.NoError(t, ctx.Err())
	assert.Contains(t, out.String(), "*** disconnected ***")
	assert.NotContains(t, out.String(), "Reloading")
}

func TestRun_RequiresIO(t *testing.T) {
	err := plain.Run(context.Background(), plain.Options{})
	require.Error(t, err)
}

func TestRun_CancelReleasesBlockedInput(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := server.New(":0")
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	defer srv.Stop()

	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	url := endpoint(t, ts)
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- plain.Run(ctx, plain.Options{
			Endpoint: url,
			Dialer:   ws.Dialer{},
			Recovery: chat.DefaultRecovery(),
			In:       pr,
			Out:      &out,
		})
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run blocked on input after its context ended")
	}
	assert.Contains(t, out.String(), "*** connected ***")

	_, err := pw.Write([]byte("late\n"))
	assert.ErrorIs(t, err, io.ErrClosedPipe, "input is closed once Run returns")
}
