package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofrs/uuid/v5"

	"github.com/Tyrowin/roomchat/internal/broadcast"
	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/room"
)

// Session is the server side of one client connection. It reads requests,
// dispatches them against the registry and owns at most one room
// subscription at a time.
//
// All fields except out are touched only by the goroutine running Serve.
type Session struct {
	id       string
	conn     LineConn
	registry *room.Registry
	policy   UsernamePolicy
	logger   *slog.Logger
	out      *outbox

	username string
	// member is nil while the session is in no room.
	member *membership
}

// membership is the InRoom state: the room plus the goroutine forwarding
// its broadcasts into the outbox.
type membership struct {
	room   *room.Room
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession prepares a session for conn. Call Serve to run it.
func NewSession(conn LineConn, registry *room.Registry, cfg Config, logger *slog.Logger) *Session {
	cfg = cfg.Sanitize()
	id := newSessionID(conn)
	logger = loggerOrDiscard(logger).With("session", id, "remote", conn.RemoteAddr())

	return &Session{
		id:       id,
		conn:     conn,
		registry: registry,
		policy:   cfg.UsernamePolicy,
		logger:   logger,
		out:      newOutbox(conn, cfg.OutboxSize, logger),
	}
}

func newSessionID(conn LineConn) string {
	id, err := uuid.NewV4()
	if err != nil {
		return conn.RemoteAddr()
	}
	return id.String()
}

// ID returns the session identifier used in logs.
func (s *Session) ID() string {
	return s.id
}

// Serve runs the session until the client disconnects, a read or write fails,
// or ctx is cancelled. Every goroutine it starts has exited when it returns,
// and the connection is closed. A normal hangup returns nil.
func (s *Session) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Unblocks ReadLine on shutdown or after a failed write.
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()

	writeErr := make(chan error, 1)
	go func() {
		err := s.out.run()
		if err != nil {
			cancel()
		}
		writeErr <- err
	}()

	err := s.readLoop(ctx)

	s.leaveRoom()
	s.out.close()
	werr := <-writeErr
	cancel()
	_ = s.conn.Close()

	if err == nil && werr != nil && !isExpectedCloseError(werr) {
		err = fmt.Errorf("write: %w", werr)
	}
	if isExpectedCloseError(err) {
		return nil
	}
	return err
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		line, err := s.conn.ReadLine()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handleLine(ctx, line)
	}
}

// handleLine answers one request. Nothing here ends the session; bad input
// gets an error reply and the loop moves on.
func (s *Session) handleLine(ctx context.Context, line []byte) {
	req, err := protocol.ParseRequest(line)
	if err != nil {
		s.logger.Debug("Invalid request", "error", err)
		s.reply(ctx, protocol.Message(protocol.TextInvalidJSON))
		return
	}

	s.observeUsername(req.Username)

	switch req.Command {
	case protocol.CreateRoom:
		s.createRoom(ctx, req)
	case protocol.ListRooms:
		s.listRooms(ctx)
	case protocol.JoinRoom:
		s.joinRoom(ctx, req)
	case protocol.SendMsg:
		s.sendMessage(ctx, req)
	default:
		s.logger.Debug("Unknown command", "command", string(req.Command))
		s.reply(ctx, protocol.Message(protocol.TextUnknownCommand))
	}
}

func (s *Session) observeUsername(username string) {
	if s.policy == UsernameSticky && s.username != "" {
		return
	}
	s.username = username
}

func (s *Session) reply(ctx context.Context, resp protocol.Response) {
	s.out.send(ctx, resp)
}

func (s *Session) createRoom(ctx context.Context, req protocol.Request) {
	name, ok := req.RoomName()
	if !ok {
		s.reply(ctx, protocol.Message(protocol.TextRoomRequired))
		return
	}
	if _, created := s.registry.CreateIfAbsent(name); created {
		s.logger.Info("Room created", "room", name, "rooms", s.registry.Len())
	}
	s.reply(ctx, protocol.Message(protocol.RoomCreatedText(name)))
}

func (s *Session) listRooms(ctx context.Context) {
	names := s.registry.Names()
	if len(names) == 0 {
		s.reply(ctx, protocol.Message(protocol.TextNoRooms))
		return
	}
	s.reply(ctx, protocol.Rooms(names))
}

// joinRoom moves the session into the named room. The old forwarder is
// stopped before the history snapshot is taken, so nothing from the old room
// is queued after the join acknowledgment.
func (s *Session) joinRoom(ctx context.Context, req protocol.Request) {
	name, ok := req.RoomName()
	if !ok {
		s.reply(ctx, protocol.Message(protocol.TextRoomRequired))
		return
	}
	r, ok := s.registry.Get(name)
	if !ok {
		s.reply(ctx, protocol.Message(protocol.TextRoomNotFound))
		return
	}

	s.leaveRoom()

	history, rx := r.Join()
	s.reply(ctx, protocol.Message(protocol.JoinedText(name)))
	s.reply(ctx, protocol.History(history))

	memberCtx, cancel := context.WithCancel(ctx)
	m := &membership{room: r, cancel: cancel, done: make(chan struct{})}
	s.member = m
	go s.forward(memberCtx, m, rx)

	s.logger.Info("Joined room", "room", name, "history", len(history), "subscribers", r.Subscribers())
}

// sendMessage publishes to the current room. Delivery back to the sender
// goes through its own forwarder like everyone else's.
func (s *Session) sendMessage(ctx context.Context, req protocol.Request) {
	if s.member == nil || s.username == "" {
		s.reply(ctx, protocol.Message(protocol.TextJoinFirst))
		return
	}
	text, ok := req.Text()
	if !ok {
		s.reply(ctx, protocol.Message(protocol.TextMessageRequired))
		return
	}
	s.member.room.Publish(protocol.BroadcastText(s.username, text))
}

// leaveRoom stops the forwarder, if any, and waits for it to exit.
func (s *Session) leaveRoom() {
	if s.member == nil {
		return
	}
	s.member.cancel()
	<-s.member.done
	s.logger.Debug("Left room", "room", s.member.room.Name())
	s.member = nil
}

// forward drains the room subscription into the outbox until ctx ends or
// the channel closes. Lagging is not fatal: skipped messages are lost and
// forwarding continues.
func (s *Session) forward(ctx context.Context, m *membership, rx *broadcast.Receiver[string]) {
	defer close(m.done)
	defer rx.Close()

	for {
		text, err := rx.Recv(ctx)
		var lagged *broadcast.LaggedError
		switch {
		case err == nil:
			if !s.out.send(ctx, protocol.Message(text)) {
				return
			}
		case errors.As(err, &lagged):
			s.logger.Warn("Subscriber lagged, messages skipped",
				"room", m.room.Name(), "skipped", lagged.Skipped)
		default:
			return
		}
	}
}
