package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Reply texts sent inside {"message": ...} responses.
const (
	TextNoRooms         = "No rooms"
	TextRoomNotFound    = "Room does not exist!"
	TextJoinFirst       = "Join a room first and set a username!"
	TextUnknownCommand  = "Unknown command"
	TextInvalidJSON     = "Invalid JSON!"
	TextRoomRequired    = "Room name required!"
	TextMessageRequired = "Message required!"
)

// RoomCreatedText acknowledges CREATEROOM. It is sent whether or not the room
// already existed.
func RoomCreatedText(name string) string {
	return fmt.Sprintf("Room %s created!, now join it", name)
}

// JoinedText acknowledges a successful JOINROOM.
func JoinedText(name string) string {
	return fmt.Sprintf("You joined %s", name)
}

// BroadcastText formats a chat line as it is stored in history and fanned out.
func BroadcastText(username, text string) string {
	return username + ": " + text
}

// ResponseKind selects which of the three response shapes is on the wire.
type ResponseKind int

const (
	KindMessage ResponseKind = iota
	KindRooms
	KindHistory
)

// Response is one server-to-client object. Text is used for KindMessage,
// Items for KindRooms and KindHistory.
type Response struct {
	Kind  ResponseKind
	Text  string
	Items []string
}

// Message builds a {"message": text} response.
func Message(text string) Response {
	return Response{Kind: KindMessage, Text: text}
}

// Rooms builds a {"rooms": [...]} response.
func Rooms(names []string) Response {
	return Response{Kind: KindRooms, Items: names}
}

// History builds a {"history": [...]} response. An empty history is still
// encoded as an empty array.
func History(lines []string) Response {
	return Response{Kind: KindHistory, Items: lines}
}

// MarshalJSON implements json.Marshaler.
func (r Response) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []string{}
	}
	switch r.Kind {
	case KindMessage:
		return json.Marshal(struct {
			Message string `json:"message"`
		}{r.Text})
	case KindRooms:
		return json.Marshal(struct {
			Rooms []string `json:"rooms"`
		}{items})
	case KindHistory:
		return json.Marshal(struct {
			History []string `json:"history"`
		}{items})
	default:
		return nil, fmt.Errorf("protocol: unknown response kind %d", r.Kind)
	}
}

// UnmarshalJSON implements json.Unmarshaler for clients reading responses.
func (r *Response) UnmarshalJSON(data []byte) error {
	var raw struct {
		Message *string   `json:"message"`
		Rooms   *[]string `json:"rooms"`
		History *[]string `json:"history"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch {
	case raw.Message != nil:
		*r = Message(*raw.Message)
	case raw.Rooms != nil:
		*r = Rooms(*raw.Rooms)
	case raw.History != nil:
		*r = History(*raw.History)
	default:
		return errors.New("protocol: response has no message, rooms or history field")
	}
	return nil
}

// MarshalLine encodes the response as a newline-terminated JSON object.
func (r Response) MarshalLine() ([]byte, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// ParseResponse decodes one response line.
func ParseResponse(line []byte) (Response, error) {
	var r Response
	if err := json.Unmarshal(line, &r); err != nil {
		return Response{}, err
	}
	return r, nil
}
