// Package server is a development stand-in for the conversational service:
// it speaks the same wire protocol as the real one and answers every text
// frame through a pluggable Responder.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// ChatPath and InfoPath are the routes served by Handler.
const (
	ChatPath = "/ws/chat"
	InfoPath = "/ws"
)

const (
	closeTimeout = time.Second
	outgoingSize = 16
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // dev service accepts any origin
	},
}

// session is one connected chat client.
type session struct {
	id        string
	conn      *websocket.Conn
	responder Responder
	outgoing  chan string
}

// Server serves the chat socket and the endpoint discovery route.
type Server struct {
	address      string
	newResponder ResponderFactory
	log          zerolog.Logger

	listener net.Listener
	server   *http.Server
	sessions map[*session]bool
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithResponder sets the per-session responder factory. Defaults to NewEcho.
func WithResponder(f ResponderFactory) Option {
	return func(s *Server) { s.newResponder = f }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// New creates a Server that will listen on address.
func New(address string, opts ...Option) *Server {
	s := &Server{
		address:      address,
		newResponder: NewEcho,
		log:          zerolog.Nop(),
		sessions:     make(map[*session]bool),
		quit:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("component", "server").Logger()
	return s
}

// Handler returns the routes without a listener, for embedding and tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET "+InfoPath, s.handleInfo)
	mux.HandleFunc(ChatPath, s.handleChat)
	return mux
}

// Start listens and serves until Stop is called. It returns nil after Stop.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return errors.Wrap(err, "failed to start server")
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info().Str("addr", listener.Addr().String()).Msg("server started")

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return errors.Wrap(err, "server failed")
	case <-s.quit:
		return nil
	}
}

// Stop closes the listener and says goodbye to every session with 1001.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)

		s.mu.Lock()
		if s.server != nil {
			s.server.Close()
		}
		for sess := range s.sessions {
			s.closeSession(sess, websocket.CloseGoingAway, "server shutting down")
		}
		s.mu.Unlock()

		s.wg.Wait()
		s.log.Info().Msg("server stopped")
	})
}

// DropSessions closes every live session with code, keeping the server up.
// It simulates a service restart.
func (s *Server) DropSessions(code int, reason string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for sess := range s.sessions {
		s.closeSession(sess, code, reason)
	}
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// ClientCount returns the number of connected sessions.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"websocket_endpoint": ChatPath}); err != nil {
		s.log.Warn().Err(err).Msg("failed to write endpoint info")
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to upgrade connection")
		return
	}

	id := uuid.NewString()
	log := s.log.With().Str("session", id).Logger()

	responder, err := s.newResponder(id)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize chat session")
		deadline := time.Now().Add(closeTimeout)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "Service unavailable"), deadline)
		conn.Close()
		return
	}

	sess := &session{
		id:        id,
		conn:      conn,
		responder: responder,
		outgoing:  make(chan string, outgoingSize),
	}

	s.mu.Lock()
	select {
	case <-s.quit:
		s.mu.Unlock()
		s.closeSession(sess, websocket.CloseGoingAway, "server shutting down")
		conn.Close()
		return
	default:
	}
	s.sessions[sess] = true
	s.wg.Add(1)
	s.mu.Unlock()

	log.Info().Msg("session started")
	s.handleSession(r.Context(), sess, log)
}

// handleSession runs one session until the peer goes away.
func (s *Server) handleSession(ctx context.Context, sess *session, log zerolog.Logger) {
	defer s.wg.Done()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for text := range sess.outgoing {
			if err := sess.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
				log.Warn().Err(err).Msg("failed to send reply")
				return
			}
		}
	}()
	defer func() {
		close(sess.outgoing)
		<-writerDone
		sess.conn.Close()
		s.mu.Lock()
		delete(s.sessions, sess)
		s.mu.Unlock()
		log.Info().Msg("session ended")
	}()

	for {
		messageType, data, err := sess.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Msg("session error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			s.closeSession(sess, websocket.CloseUnsupportedData, "text frames only")
			return
		}

		reply, err := sess.responder.Respond(ctx, string(data))
		if err != nil {
			log.Error().Err(err).Msg("failed to handle message")
			reply = "Error: " + err.Error()
		}

		select {
		case sess.outgoing <- reply:
		case <-s.quit:
			return
		}
	}
}

// closeSession starts the closing handshake. The read deadline bounds the
// wait for the peer's reply.
func (s *Server) closeSession(sess *session, code int, reason string) {
	deadline := time.Now().Add(closeTimeout)
	_ = sess.conn.SetReadDeadline(deadline)
	if err := sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline); err != nil {
		s.log.Debug().Err(err).Str("session", sess.id).Msg("failed to send close frame")
	}
}
