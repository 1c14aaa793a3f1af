package server_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomchat/internal/protocol"
	"github.com/Tyrowin/roomchat/internal/room"
	"github.com/Tyrowin/roomchat/internal/server"
	"github.com/Tyrowin/roomchat/internal/testhelpers"
)

// startHTTPServer serves SetupRoutes on an httptest server.
func startHTTPServer(t *testing.T, cfg *server.Config) (*server.Server, *httptest.Server) {
	t.Helper()

	if cfg == nil {
		cfg = server.NewConfig()
	}
	srv := server.NewServer(room.NewRegistry(cfg.FanoutCapacity), *cfg, nil)
	testServer := httptest.NewServer(server.SetupRoutes(srv))
	t.Cleanup(func() {
		_ = srv.Shutdown(2 * time.Second)
		testServer.Close()
	})
	return srv, testServer
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

// TestHealthHandlerUnit tests the health handler function in isolation.
func TestHealthHandlerUnit(t *testing.T) {
	tests := []struct {
		name   string
		method string
	}{
		{"GET request to health endpoint", http.MethodGet},
		{"POST request to health endpoint", http.MethodPost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/", http.NoBody)
			rr := httptest.NewRecorder()

			server.HealthHandler(rr, req)

			if rr.Code != http.StatusOK {
				t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
			if rr.Body.String() != server.HealthText {
				t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), server.HealthText)
			}
		})
	}
}

// TestRoutes tests the router's plain HTTP endpoints.
func TestRoutes(t *testing.T) {
	srv, testServer := startHTTPServer(t, nil)
	srv.Registry().CreateIfAbsent("beta")
	srv.Registry().CreateIfAbsent("alpha")

	tests := []struct {
		name        string
		method      string
		path        string
		status      int
		contentType string
		body        string
	}{
		{"health", http.MethodGet, "/", http.StatusOK, "text/plain", server.HealthText},
		{"rooms", http.MethodGet, "/rooms", http.StatusOK, "application/json", `{"rooms":["alpha","beta"]}` + "\n"},
		{"test page", http.MethodGet, "/test", http.StatusOK, "text/html", ""},
		{"websocket rejects POST", http.MethodPost, "/ws", http.StatusMethodNotAllowed, "", ""},
		{"unknown path", http.MethodGet, "/nope", http.StatusNotFound, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := testhelpers.MakeRequest(t, tt.method, testServer.URL+tt.path)
			defer func() { _ = resp.Body.Close() }()

			testhelpers.AssertStatusCode(t, resp, tt.status)
			if tt.contentType != "" {
				testhelpers.AssertContentType(t, resp, tt.contentType)
			}
			if tt.body != "" {
				body, err := io.ReadAll(resp.Body)
				if err != nil {
					t.Fatalf("Failed to read body: %v", err)
				}
				if string(body) != tt.body {
					t.Errorf("Expected body %q, got %q", tt.body, body)
				}
			}
		})
	}
}

// TestRoomsHandlerEmpty verifies that an empty registry still yields a rooms array.
func TestRoomsHandlerEmpty(t *testing.T) {
	_, testServer := startHTTPServer(t, nil)

	resp := testhelpers.MakeRequest(t, http.MethodGet, testServer.URL+"/rooms")
	defer func() { _ = resp.Body.Close() }()

	var payload struct {
		Rooms []string `json:"rooms"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode rooms: %v", err)
	}
	if payload.Rooms == nil || len(payload.Rooms) != 0 {
		t.Errorf("Expected empty rooms array, got %v", payload.Rooms)
	}
}

// TestWebSocketChatFlow runs the command set over the WebSocket gateway.
func TestWebSocketChatFlow(t *testing.T) {
	cfg := server.NewConfig()
	_, testServer := startHTTPServer(t, cfg)

	conn, _, err := testhelpers.ConnectWebSocket(wsURL(testServer.URL), testhelpers.TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	steps := []struct {
		command protocol.Command
		arg     string
		want    string
	}{
		{protocol.CreateRoom, "web", protocol.RoomCreatedText("web")},
		{protocol.JoinRoom, "web", protocol.JoinedText("web")},
	}
	for _, step := range steps {
		if err := testhelpers.SendWebSocketRequest(conn, "webuser", step.command, step.arg); err != nil {
			t.Fatalf("Failed to send %s: %v", step.command, err)
		}
		testhelpers.AssertMessage(t, testhelpers.ReceiveWebSocketResponse(t, conn), step.want)
	}

	history := testhelpers.ReceiveWebSocketResponse(t, conn)
	if history.Kind != protocol.KindHistory || len(history.Items) != 0 {
		t.Errorf("Expected empty history, got %+v", history)
	}

	if err := testhelpers.SendWebSocketRequest(conn, "webuser", protocol.SendMsg, "over ws"); err != nil {
		t.Fatalf("Failed to send message: %v", err)
	}
	testhelpers.AssertMessage(t, testhelpers.ReceiveWebSocketResponse(t, conn), "webuser: over ws")
}

// TestWebSocketReceivesRoomBroadcasts verifies that a WebSocket member gets messages published to its room.
func TestWebSocketReceivesRoomBroadcasts(t *testing.T) {
	srv, testServer := startHTTPServer(t, nil)
	srv.Registry().CreateIfAbsent("mixed")

	conn, _, err := testhelpers.ConnectWebSocket(wsURL(testServer.URL), testhelpers.TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	if err := testhelpers.SendWebSocketRequest(conn, "web", protocol.JoinRoom, "mixed"); err != nil {
		t.Fatalf("Failed to join: %v", err)
	}
	testhelpers.ReceiveWebSocketResponse(t, conn)
	testhelpers.ReceiveWebSocketResponse(t, conn)

	mixed, _ := srv.Registry().Get("mixed")
	mixed.Publish("tcp: hello web")
	testhelpers.AssertMessage(t, testhelpers.ReceiveWebSocketResponse(t, conn), "tcp: hello web")
}

// TestWebSocketOriginValidation tests the origin allow-list on upgrade.
func TestWebSocketOriginValidation(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		ok      bool
	}{
		{"allowed origin", []string{"http://localhost:8080"}, "http://localhost:8080", true},
		{"case-insensitive host", []string{"http://LOCALHOST:8080"}, "http://localhost:8080", true},
		{"disallowed origin", []string{"http://localhost:8080"}, "http://evil.example", false},
		{"missing origin", []string{"http://localhost:8080"}, "", false},
		{"malformed origin", []string{"http://localhost:8080"}, "not-a-url", false},
		{"wildcard", []string{"*"}, "http://anywhere.example", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := server.NewConfig()
			cfg.AllowedOrigins = tt.allowed
			_, testServer := startHTTPServer(t, cfg)

			conn, resp, err := testhelpers.ConnectWebSocket(wsURL(testServer.URL), tt.origin)
			if tt.ok {
				if err != nil {
					t.Fatalf("Expected connection to succeed, got %v", err)
				}
				_ = conn.Close()
				return
			}
			if err == nil {
				_ = conn.Close()
				t.Fatal("Expected connection to be rejected")
			}
			if resp == nil || resp.StatusCode != http.StatusForbidden {
				t.Errorf("Expected status %d, got %+v", http.StatusForbidden, resp)
			}
		})
	}
}

// TestWebSocketMessageTooLarge verifies that an oversized frame ends the session.
func TestWebSocketMessageTooLarge(t *testing.T) {
	cfg := server.NewConfig()
	cfg.MaxMessageSize = 128
	srv, testServer := startHTTPServer(t, cfg)

	conn, _, err := testhelpers.ConnectWebSocket(wsURL(testServer.URL), testhelpers.TestOrigin)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()
	waitFor(t, "websocket session", func() bool { return srv.ActiveSessions() == 1 })

	if err := testhelpers.SendWebSocketRequest(conn, "u", protocol.SendMsg, strings.Repeat("x", 512)); err != nil {
		t.Fatalf("Failed to send: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(testhelpers.DefaultTimeout))
	if _, _, err := conn.ReadMessage(); err == nil || testhelpers.IsTimeout(err) {
		t.Errorf("Expected the server to close the connection, got %v", err)
	}
	waitFor(t, "session end", func() bool { return srv.ActiveSessions() == 0 })
}
