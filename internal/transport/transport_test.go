package transport_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/sabi-chat/internal/transport"
)

func TestStatusCode_Clean(t *testing.T) {
	tests := []struct {
		code transport.StatusCode
		want bool
	}{
		{transport.StatusNormalClosure, true},
		{transport.StatusGoingAway, true},
		{transport.StatusNoStatusRcvd, true},
		{transport.StatusAbnormalClosure, false},
		{transport.StatusInternalError, false},
		{4000, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.code.Clean(), "code %d", tt.code)
	}
}

func TestAsCloseError(t *testing.T) {
	wrapped := errors.Wrap(&transport.CloseError{Code: 1011, Reason: "Service unavailable"}, "read")

	ce, ok := transport.AsCloseError(wrapped)
	require.True(t, ok)
	assert.Equal(t, transport.StatusInternalError, ce.Code)
	assert.Equal(t, "Service unavailable", ce.Reason)

	_, ok = transport.AsCloseError(errors.New("boom"))
	assert.False(t, ok)
}

func TestCloseError_Error(t *testing.T) {
	assert.Equal(t, "websocket closed: status = 1000", (&transport.CloseError{Code: 1000}).Error())
	assert.Contains(t, (&transport.CloseError{Code: 1011, Reason: "bye"}).Error(), `"bye"`)
}

func TestDialerFunc(t *testing.T) {
	var got string
	d := transport.DialerFunc(func(ctx context.Context, endpoint string) (transport.Conn, error) {
		got = endpoint
		return nil, errors.New("refused")
	})

	_, err := d.Dial(context.Background(), "ws://example.test/ws/chat")
	require.Error(t, err)
	assert.Equal(t, "ws://example.test/ws/chat", got)
}
