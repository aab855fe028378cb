package server

import (
	"context"
	"strings"
)

// Responder answers the text frames of one chat session, one reply per
// frame. Implementations may keep per-session state.
type Responder interface {
	Respond(ctx context.Context, text string) (string, error)
}

// ResponderFactory builds the responder of a new session. An error closes
// the session with 1011.
type ResponderFactory func(sessionID string) (Responder, error)

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, text string) (string, error)

// Respond implements Responder.
func (f ResponderFunc) Respond(ctx context.Context, text string) (string, error) {
	return f(ctx, text)
}

// Echo replies with the received text and remembers the session's messages.
type Echo struct {
	history []string
}

// NewEcho is a ResponderFactory for Echo.
func NewEcho(string) (Responder, error) {
	return &Echo{}, nil
}

// Respond implements Responder.
func (e *Echo) Respond(_ context.Context, text string) (string, error) {
	e.history = append(e.history, text)
	return "echo: " + strings.TrimSpace(text), nil
}

// History returns the messages received so far.
func (e *Echo) History() []string {
	return append([]string(nil), e.history...)
}
