// Package testhelpers provides common utilities and helper functions for testing the chat server.
//
// It provides line-protocol clients over TCP, WebSocket dialing, and HTTP
// request and assertion helpers shared by the package tests.
package testhelpers

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// DefaultTimeout bounds every blocking read a helper performs.
const DefaultTimeout = 2 * time.Second

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:8080"

// LineClient speaks the line protocol over a stream connection.
type LineClient struct {
	Conn   net.Conn
	reader *bufio.Reader
}

// NewLineClient wraps an already connected stream.
func NewLineClient(conn net.Conn) *LineClient {
	return &LineClient{Conn: conn, reader: bufio.NewReader(conn)}
}

// DialTCP connects to a chat server and closes the connection when the test ends.
func DialTCP(t *testing.T, addr string) *LineClient {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return NewLineClient(conn)
}

// Send writes a request built from command and argument.
func (c *LineClient) Send(t *testing.T, username string, command protocol.Command, arg string) {
	t.Helper()

	line, err := protocol.NewRequest(username, command, arg).MarshalLine()
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	c.SendRaw(t, string(line))
}

// SendRaw writes line as-is. Callers include the terminator.
func (c *LineClient) SendRaw(t *testing.T, line string) {
	t.Helper()

	if err := c.Conn.SetWriteDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set write deadline: %v", err)
	}
	if _, err := c.Conn.Write([]byte(line)); err != nil {
		t.Fatalf("Failed to send %q: %v", line, err)
	}
}

// ReadLine returns the next raw response line without its terminator.
func (c *LineClient) ReadLine(timeout time.Duration) (string, error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", err
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return line[:len(line)-1], nil
}

// Receive reads and decodes the next response, failing the test on timeout.
func (c *LineClient) Receive(t *testing.T) protocol.Response {
	t.Helper()

	line, err := c.ReadLine(DefaultTimeout)
	if err != nil {
		t.Fatalf("Failed to receive response: %v", err)
	}
	resp, err := protocol.ParseResponse([]byte(line))
	if err != nil {
		t.Fatalf("Failed to decode response %q: %v", line, err)
	}
	return resp
}

// ExpectMessage reads the next response and checks it is {"message": want}.
func (c *LineClient) ExpectMessage(t *testing.T, want string) {
	t.Helper()
	AssertMessage(t, c.Receive(t), want)
}

// ExpectNoMessage fails the test if anything arrives within d.
func (c *LineClient) ExpectNoMessage(t *testing.T, d time.Duration) {
	t.Helper()

	line, err := c.ReadLine(d)
	if err == nil {
		t.Errorf("Expected no message, got %q", line)
		return
	}
	if !IsTimeout(err) {
		t.Errorf("Expected read timeout, got %v", err)
	}
}

// Join sends JOINROOM and consumes the acknowledgment and history lines,
// returning the history.
func (c *LineClient) Join(t *testing.T, username, room string) []string {
	t.Helper()

	c.Send(t, username, protocol.JoinRoom, room)
	c.ExpectMessage(t, protocol.JoinedText(room))
	history := c.Receive(t)
	if history.Kind != protocol.KindHistory {
		t.Fatalf("Expected history after join, got %+v", history)
	}
	return history.Items
}

// IsTimeout reports whether err is a network timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}

// AssertMessage checks that resp is {"message": want}.
func AssertMessage(t *testing.T, resp protocol.Response, want string) {
	t.Helper()
	if resp.Kind != protocol.KindMessage {
		t.Errorf("Expected a message response, got %+v", resp)
		return
	}
	if resp.Text != want {
		t.Errorf("Expected message %q, got %q", want, resp.Text)
	}
}

// ConnectWebSocket creates a WebSocket connection to the specified URL with
// the given Origin header.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// SendWebSocketRequest writes one request as a text frame.
func SendWebSocketRequest(conn *websocket.Conn, username string, command protocol.Command, arg string) error {
	line, err := protocol.NewRequest(username, command, arg).MarshalLine()
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, line)
}

// ReceiveWebSocketResponse reads and decodes one text frame.
func ReceiveWebSocketResponse(t *testing.T, conn *websocket.Conn) protocol.Response {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(DefaultTimeout)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read WebSocket frame: %v", err)
	}
	resp, err := protocol.ParseResponse(data)
	if err != nil {
		t.Fatalf("Failed to decode frame %q: %v", data, err)
	}
	return resp
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}
