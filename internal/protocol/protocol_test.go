package protocol_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// TestParseRequest tests decoding of request lines.
// It verifies command normalization, the legacy "arg" field, and optional fields.
func TestParseRequest(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantCommand protocol.Command
		wantUser    string
		wantRoom    string
		hasRoom     bool
		wantMsg     string
		hasMsg      bool
	}{
		{
			name:        "lowercase command is normalized",
			line:        `{"username":"alice","command":"createroom","room":"lobby"}`,
			wantCommand: protocol.CreateRoom,
			wantUser:    "alice",
			wantRoom:    "lobby",
			hasRoom:     true,
		},
		{
			name:        "legacy arg field carries the command",
			line:        `{"username":"bob","arg":"SendMsg","msg":"hi"}`,
			wantCommand: protocol.SendMsg,
			wantUser:    "bob",
			wantMsg:     "hi",
			hasMsg:      true,
		},
		{
			name:        "command wins over arg",
			line:        `{"username":"bob","command":"LISTROOMS","arg":"JOINROOM"}`,
			wantCommand: protocol.ListRooms,
			wantUser:    "bob",
		},
		{
			name:        "blank room is treated as absent",
			line:        `{"username":"carol","command":"JOINROOM","room":"  "}`,
			wantCommand: protocol.JoinRoom,
			wantUser:    "carol",
		},
		{
			name:        "unknown command still parses",
			line:        `{"username":"dave","command":" dance "}`,
			wantCommand: protocol.Command("DANCE"),
			wantUser:    "dave",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := protocol.ParseRequest([]byte(tt.line))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if req.Command != tt.wantCommand {
				t.Errorf("Expected command %q, got %q", tt.wantCommand, req.Command)
			}
			if req.Username != tt.wantUser {
				t.Errorf("Expected username %q, got %q", tt.wantUser, req.Username)
			}
			room, ok := req.RoomName()
			if ok != tt.hasRoom || room != tt.wantRoom {
				t.Errorf("Expected room (%q, %v), got (%q, %v)", tt.wantRoom, tt.hasRoom, room, ok)
			}
			msg, ok := req.Text()
			if ok != tt.hasMsg || msg != tt.wantMsg {
				t.Errorf("Expected msg (%q, %v), got (%q, %v)", tt.wantMsg, tt.hasMsg, msg, ok)
			}
		})
	}
}

// TestParseRequestInvalidJSON verifies that malformed lines yield ErrInvalidJSON.
func TestParseRequestInvalidJSON(t *testing.T) {
	for _, line := range []string{"", "hello", "{", `["CREATEROOM"]`, `{"command": 5}`} {
		_, err := protocol.ParseRequest([]byte(line))
		if !errors.Is(err, protocol.ErrInvalidJSON) {
			t.Errorf("Line %q: expected ErrInvalidJSON, got %v", line, err)
		}
	}
}

// TestCommandKnown verifies the dispatch vocabulary.
func TestCommandKnown(t *testing.T) {
	known := []protocol.Command{protocol.CreateRoom, protocol.ListRooms, protocol.JoinRoom, protocol.SendMsg}
	for _, c := range known {
		if !c.Known() {
			t.Errorf("Expected %s to be known", c)
		}
	}
	for _, c := range []protocol.Command{protocol.Quit, "", "LEAVEROOM"} {
		if c.Known() {
			t.Errorf("Expected %q to be unknown", c)
		}
	}
}

// TestResponseMarshalLine tests the three response shapes on the wire.
func TestResponseMarshalLine(t *testing.T) {
	tests := []struct {
		name string
		resp protocol.Response
		want string
	}{
		{"message", protocol.Message("You joined lobby"), `{"message":"You joined lobby"}` + "\n"},
		{"rooms", protocol.Rooms([]string{"a", "b"}), `{"rooms":["a","b"]}` + "\n"},
		{"empty history", protocol.History(nil), `{"history":[]}` + "\n"},
		{"history", protocol.History([]string{"alice: hi"}), `{"history":["alice: hi"]}` + "\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.resp.MarshalLine()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, string(got))
			}
		})
	}
}

// TestParseResponse verifies that clients can recover the response shape.
func TestParseResponse(t *testing.T) {
	resp, err := protocol.ParseResponse([]byte(`{"history":[]}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Kind != protocol.KindHistory || len(resp.Items) != 0 {
		t.Errorf("Expected empty history, got %+v", resp)
	}

	resp, err = protocol.ParseResponse([]byte(`{"rooms":["x"]}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.Kind != protocol.KindRooms || !reflect.DeepEqual(resp.Items, []string{"x"}) {
		t.Errorf("Expected rooms [x], got %+v", resp)
	}

	if _, err := protocol.ParseResponse([]byte(`{"other":1}`)); err == nil {
		t.Error("Expected error for response without a known field")
	}
}

// TestNewRequestRoundTrip verifies that client-built requests parse back on the server side.
func TestNewRequestRoundTrip(t *testing.T) {
	line, err := protocol.NewRequest("alice", protocol.SendMsg, "hello there").MarshalLine()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	req, err := protocol.ParseRequest(line)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if msg, ok := req.Text(); !ok || msg != "hello there" {
		t.Errorf("Expected msg %q, got %q", "hello there", msg)
	}
	if _, ok := req.RoomName(); ok {
		t.Error("SENDMSG request should not carry a room")
	}
}
