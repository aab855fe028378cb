// Package chat implements the connection manager of the chat client: the
// connection state machine, the send/receive protocol and recovery after an
// unexpected disconnect.
//
// Everything in this package that mutates state runs on a single event loop
// (see Executor). Transport goroutines only post reactions to that loop, so
// no state here is guarded by locks.
package chat

import "github.com/omochice/sabi-chat/internal/linkify"

// Role attributes a Turn. It is used for styling only.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one message of the conversation. It is immutable once created.
type Turn struct {
	role   Role
	raw    string
	markup string
}

// NewTurn creates a turn and derives its markup from raw.
func NewTurn(role Role, raw string) Turn {
	return Turn{role: role, raw: raw, markup: linkify.Markup(raw)}
}

func (t Turn) Role() Role { return t.role }

// Raw returns the text as composed or received.
func (t Turn) Raw() string { return t.raw }

// Markup returns the linkified HTML rendering of Raw.
func (t Turn) Markup() string { return t.markup }

// Segments splits Raw into link and text runs for non-HTML renderers.
func (t Turn) Segments() []linkify.Segment { return linkify.Segments(t.raw) }

// State is the connection lifecycle state of one session.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosedClean
	StateClosedUnclean
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosedClean:
		return "closed-clean"
	case StateClosedUnclean:
		return "closed-unclean"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// Status is the user-visible connection indicator.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// Renderer displays the turn sequence. Implementations keep at most one
// pending-reply placeholder; ClearPending is a no-op when none is shown.
type Renderer interface {
	Append(turn Turn)
	ShowPending()
	ClearPending()
}

// Affordance is the composer's send control, enabled only while Open.
type Affordance interface {
	SetSendEnabled(enabled bool)
}

// StatusPublisher receives every status change.
type StatusPublisher interface {
	PublishStatus(status Status)
}

// StatusFunc adapts a function to StatusPublisher.
type StatusFunc func(Status)

// PublishStatus implements StatusPublisher.
func (f StatusFunc) PublishStatus(s Status) { f(s) }
