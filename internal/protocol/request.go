// Package protocol defines the line-delimited JSON wire format spoken between
// chat clients and the server: one request object per line in, one response
// object per line out.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command identifies a client request. Commands are matched case-insensitively
// and are stored upper-cased after parsing.
type Command string

// Commands understood by the server. QUIT is handled by the client itself and
// never crosses the wire.
const (
	CreateRoom Command = "CREATEROOM"
	ListRooms  Command = "LISTROOMS"
	JoinRoom   Command = "JOINROOM"
	SendMsg    Command = "SENDMSG"
	Quit       Command = "QUIT"
)

// ErrInvalidJSON is returned by ParseRequest when a line is not a JSON object.
var ErrInvalidJSON = errors.New("protocol: invalid JSON")

// NormalizeCommand upper-cases and trims a raw command string.
func NormalizeCommand(raw string) Command {
	return Command(strings.ToUpper(strings.TrimSpace(raw)))
}

// Known reports whether the server dispatches this command.
func (c Command) Known() bool {
	switch c {
	case CreateRoom, ListRooms, JoinRoom, SendMsg:
		return true
	default:
		return false
	}
}

// Request is a single client request. Msg and Room are optional and only
// meaningful for the commands that use them.
type Request struct {
	Username string  `json:"username"`
	Command  Command `json:"command"`
	Msg      *string `json:"msg,omitempty"`
	Room     *string `json:"room,omitempty"`
}

// wireRequest also accepts "arg", which the terminal client historically used
// to carry the command name.
type wireRequest struct {
	Username string  `json:"username"`
	Command  string  `json:"command"`
	Arg      string  `json:"arg"`
	Msg      *string `json:"msg"`
	Room     *string `json:"room"`
}

// ParseRequest decodes one line into a Request with a normalized command.
// Unknown commands are not an error here; the caller decides how to answer.
func ParseRequest(line []byte) (Request, error) {
	var wire wireRequest
	if err := json.Unmarshal(line, &wire); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	command := wire.Command
	if command == "" {
		command = wire.Arg
	}
	return Request{
		Username: wire.Username,
		Command:  NormalizeCommand(command),
		Msg:      wire.Msg,
		Room:     wire.Room,
	}, nil
}

// RoomName returns the room field, or false when it is absent or blank.
func (r Request) RoomName() (string, bool) {
	if r.Room == nil || strings.TrimSpace(*r.Room) == "" {
		return "", false
	}
	return *r.Room, true
}

// Text returns the msg field, or false when it is absent.
func (r Request) Text() (string, bool) {
	if r.Msg == nil {
		return "", false
	}
	return *r.Msg, true
}

// MarshalLine encodes the request as a newline-terminated JSON object.
func (r Request) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// NewRequest builds a request for the given command. The argument is placed in
// the field the command expects: room for CREATEROOM/JOINROOM, msg for SENDMSG.
func NewRequest(username string, command Command, arg string) Request {
	req := Request{Username: username, Command: command}
	switch command {
	case CreateRoom, JoinRoom:
		req.Room = &arg
	case SendMsg:
		req.Msg = &arg
	}
	return req
}
