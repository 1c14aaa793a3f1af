// Package server exposes HTTP handlers, including the WebSocket gateway into
// the chat protocol, health checks, room listing and the built-in test page.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// HealthText is the body returned by HealthHandler.
const HealthText = "Chat server is running!"

// WebSocketHandler upgrades the request and runs a chat session over it.
// The session speaks the same protocol as the TCP listener, one JSON object
// per text frame. The handler returns when the session ends.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	_ = s.ServeConn(NewWebSocketConn(conn, r.RemoteAddr, s.config.MaxMessageSize))
}

// RoomsHandler returns the registry contents in the LISTROOMS wire shape,
// always as {"rooms": [...]} so HTTP callers need not special-case empty.
func (s *Server) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(protocol.Rooms(s.registry.Names())); err != nil {
		s.logger.Warn("Error writing rooms response", "error", err)
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
// It responds with a plain text message indicating the server is running.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprint(w, HealthText)
}

// TestPageHandler serves an HTML page that connects to /ws and lets a
// browser create, list and join rooms and send messages.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPageHTML)
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 200px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .history { color: gray; }
        .rooms { color: purple; }
    </style>
</head>
<body>
    <h1>Room Chat Test</h1>

    <div>
        <input type="text" id="username" placeholder="Username">
        <select id="command">
            <option>SENDMSG</option>
            <option>CREATEROOM</option>
            <option>JOINROOM</option>
            <option>LISTROOMS</option>
        </select>
        <input type="text" id="argument" placeholder="Room or message">
        <button onclick="send()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        const messagesDiv = document.getElementById('messages');
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.textContent = text;
            if (cls) { el.className = cls; }
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        ws.onopen = () => addLine('Connected');
        ws.onclose = () => addLine('Connection closed');
        ws.onmessage = (event) => {
            const data = JSON.parse(event.data);
            if (data.message !== undefined) {
                addLine(data.message);
            } else if (data.rooms !== undefined) {
                addLine('Rooms: ' + data.rooms.join(', '), 'rooms');
            } else if (data.history !== undefined) {
                data.history.forEach((line) => addLine(line, 'history'));
            }
        };

        function send() {
            const command = document.getElementById('command').value;
            const argument = document.getElementById('argument').value;
            const request = { username: document.getElementById('username').value, command: command };
            if (command === 'CREATEROOM' || command === 'JOINROOM') {
                request.room = argument;
            } else if (command === 'SENDMSG') {
                request.msg = argument;
            }
            ws.send(JSON.stringify(request));
            document.getElementById('argument').value = '';
        }

        document.getElementById('argument').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') { send(); }
        });
    </script>
</body>
</html>`
