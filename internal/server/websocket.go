package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// closeGracePeriod bounds how long Close waits to deliver the close frame.
	closeGracePeriod = time.Second
	writeWait        = 10 * time.Second
	// pongWait is how long the peer may stay silent, pongs included.
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
)

// wsConn carries the line protocol over a WebSocket: each text frame holds
// exactly one request or response object.
type wsConn struct {
	conn      *websocket.Conn
	addr      string
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn adapts an upgraded WebSocket to LineConn. Frames larger
// than maxMessageSize fail with ErrLineTooLong.
func NewWebSocketConn(conn *websocket.Conn, addr string, maxMessageSize int64) LineConn {
	if maxMessageSize > 0 {
		conn.SetReadLimit(maxMessageSize)
	}
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c := &wsConn{conn: conn, addr: addr, done: make(chan struct{})}
	go c.keepAlive()
	return c
}

// keepAlive pings the peer until Close. A peer that stops answering runs
// into the read deadline and the session ends.
func (c *wsConn) keepAlive() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *wsConn) ReadLine() ([]byte, error) {
	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, c.classifyReadError(err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		return bytes.TrimRight(data, "\r\n"), nil
	}
}

// classifyReadError maps normal closure onto io.EOF so the session treats a
// WebSocket goodbye like a TCP hangup.
func (c *wsConn) classifyReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", ErrLineTooLong, err)
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return io.EOF
	}
	return err
}

func (c *wsConn) WriteLine(line []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(line, []byte("\n")))
}

// Close sends a best-effort close frame and then closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		message := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(closeGracePeriod))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *wsConn) RemoteAddr() string {
	return c.addr
}
