// Package client implements the terminal front end of the chat protocol:
// it turns typed commands into requests and renders responses as text.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// Usage lists the commands the client understands.
const Usage = "Commands: CREATEROOM <name>, LISTROOMS, JOINROOM <name>, SENDMSG <message>, QUIT"

// ErrEmptyInput is returned by ParseInput for a blank line.
var ErrEmptyInput = errors.New("client: empty input")

// ParseInput turns "COMMAND [argument]" into a request. The command is
// case-insensitive and the argument is everything after the first space.
// quit is true for QUIT, which is handled locally and never sent.
func ParseInput(line, username string) (req protocol.Request, quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return protocol.Request{}, false, ErrEmptyInput
	}

	word, arg, _ := strings.Cut(line, " ")
	command := protocol.NormalizeCommand(word)
	if command == protocol.Quit {
		return protocol.Request{}, true, nil
	}
	return protocol.NewRequest(username, command, strings.TrimSpace(arg)), false, nil
}

// Format renders a response for the terminal. History lines are printed one
// per line so they read like the live messages that follow them.
func Format(resp protocol.Response) string {
	switch resp.Kind {
	case protocol.KindRooms:
		return "Rooms: " + strings.Join(resp.Items, ", ")
	case protocol.KindHistory:
		if len(resp.Items) == 0 {
			return "(no history)"
		}
		return strings.Join(resp.Items, "\n")
	default:
		return resp.Text
	}
}

// Client is one connection to a chat server.
type Client struct {
	conn     net.Conn
	username string
	logger   *slog.Logger
	writeMu  sync.Mutex
}

// New wraps an established connection.
func New(conn net.Conn, username string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Client{conn: conn, username: username, logger: logger}
}

// Dial connects to a chat server at addr.
func Dial(ctx context.Context, addr, username string, logger *slog.Logger) (*Client, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return New(conn, username, logger), nil
}

// Send writes one request line.
func (c *Client) Send(req protocol.Request) error {
	line, err := req.MarshalLine()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.conn.Write(line)
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Run copies typed commands from in to the server and server responses to
// out until QUIT, the end of input, ctx cancellation or the server hanging
// up. The connection is closed on return.
func (c *Client) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer c.Close()
	stop := context.AfterFunc(ctx, func() { _ = c.conn.Close() })
	defer stop()

	printer := &linePrinter{w: out}
	printer.println(Usage)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		c.receive(printer)
	}()

	inputDone := make(chan error, 1)
	go func() { inputDone <- c.readInput(in, printer) }()

	select {
	case err := <-inputDone:
		_ = c.conn.Close()
		<-serverDone
		if ctx.Err() != nil {
			return nil
		}
		return err
	case <-serverDone:
		return nil
	}
}

func (c *Client) readInput(in io.Reader, printer *linePrinter) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		req, quit, err := ParseInput(scanner.Text(), c.username)
		if errors.Is(err, ErrEmptyInput) {
			continue
		}
		if quit {
			printer.println("Quitting")
			return nil
		}
		if err := c.Send(req); err != nil {
			return fmt.Errorf("sending %s: %w", req.Command, err)
		}
	}
	return scanner.Err()
}

func (c *Client) receive(printer *linePrinter) {
	reader := bufio.NewReader(c.conn)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			resp, perr := protocol.ParseResponse(line)
			if perr != nil {
				c.logger.Debug("Unreadable response", "line", string(line), "error", perr)
				printer.println(strings.TrimSpace(string(line)))
			} else {
				printer.println(Format(resp))
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, net.ErrClosed), errors.Is(err, io.ErrClosedPipe):
				// Closed locally.
			case errors.Is(err, io.EOF):
				printer.println("Server disconnected")
			default:
				c.logger.Debug("Read failed", "error", err)
				printer.println("Server disconnected")
			}
			return
		}
	}
}

// linePrinter serializes output from the input and receive goroutines.
type linePrinter struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *linePrinter) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintln(p.w, s)
}
