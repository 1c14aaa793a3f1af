// Package server accepts client connections and runs one Session per
// connection against a shared room registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/room"
)

// maxAcceptDelay caps the backoff after temporary accept failures.
const maxAcceptDelay = time.Second

// Server owns the listeners and live sessions. The registry is injected so
// tests and multiple transports can share it.
type Server struct {
	registry *room.Registry
	config   Config
	logger   *slog.Logger
	origins  *originPolicy
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	sessions  map[*Session]struct{}
}

// NewServer creates a server for registry. cfg is sanitized; a nil logger
// discards output.
func NewServer(registry *room.Registry, cfg Config, logger *slog.Logger) *Server {
	cfg = cfg.Sanitize()
	logger = loggerOrDiscard(logger)
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		registry:  registry,
		config:    cfg,
		logger:    logger,
		origins:   newOriginPolicy(cfg.AllowedOrigins, logger),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[net.Listener]struct{}),
		sessions:  make(map[*Session]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	return s
}

// Registry returns the room registry the server dispatches against.
func (s *Server) Registry() *room.Registry {
	return s.registry
}

// Config returns the sanitized configuration.
func (s *Server) Config() Config {
	return s.config
}

// Serve accepts connections on listener until Shutdown, starting a session
// for each without waiting for earlier ones. It returns ErrServerClosed after
// Shutdown and the accept error if the listener fails permanently.
func (s *Server) Serve(listener net.Listener) error {
	if !s.trackListener(listener) {
		_ = listener.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(listener)

	s.logger.Info("Listening for chat connections", "address", listener.Addr().String())

	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if isTemporary(err) {
				delay = nextAcceptDelay(delay)
				s.logger.Warn("Temporary accept error, retrying", "error", err, "delay", delay)
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("accept: %w", err)
		}
		delay = 0

		go func() {
			_ = s.ServeConn(NewTCPConn(conn, int(s.config.MaxMessageSize)))
		}()
	}
}

// ServeConn runs a session on conn and blocks until it ends. Transports that
// accept connections themselves, such as the WebSocket handler, call it
// directly.
func (s *Server) ServeConn(conn LineConn) error {
	session := NewSession(conn, s.registry, s.config, s.logger)
	if !s.trackSession(session) {
		_ = conn.Close()
		return ErrServerClosed
	}
	defer s.untrackSession(session)

	session.logger.Info("Session started", "sessions", s.ActiveSessions())
	err := session.Serve(s.ctx)
	if err != nil {
		session.logger.Warn("Session ended with error", "error", err)
		return err
	}
	session.logger.Info("Session ended")
	return nil
}

// ActiveSessions returns the number of running sessions.
func (s *Server) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting, ends every session and waits for them to finish
// or for timeout to pass.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	listeners := make([]net.Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	s.logger.Info("Initiating chat server shutdown...")
	s.cancel()
	for _, l := range listeners {
		if err := l.Close(); err != nil && !isExpectedCloseError(err) {
			s.logger.Warn("Error closing listener", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Chat server shutdown completed")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Shutdown timeout reached, some sessions may still be running")
		return context.DeadlineExceeded
	}
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) trackListener(l net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.listeners[l] = struct{}{}
	return true
}

func (s *Server) untrackListener(l net.Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, l)
}

// trackSession registers a session with the shutdown wait group. The Add
// happens under mu so it can never race with Shutdown's Wait.
func (s *Server) trackSession(session *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[session] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrackSession(session *Session) {
	s.mu.Lock()
	delete(s.sessions, session)
	s.mu.Unlock()
	s.wg.Done()
}

func isTemporary(err error) bool {
	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) {
		return temporary.Temporary()
	}
	return false
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return 5 * time.Millisecond
	}
	delay *= 2
	if delay > maxAcceptDelay {
		return maxAcceptDelay
	}
	return delay
}
