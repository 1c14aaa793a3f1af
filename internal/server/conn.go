package server

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
)

// LineConn is one client connection seen as a stream of request lines in and
// response lines out. Implementations must allow Close to be called
// concurrently with ReadLine and WriteLine, and more than once.
type LineConn interface {
	// ReadLine returns the next request without its line terminator.
	ReadLine() ([]byte, error)
	// WriteLine writes one newline-terminated response.
	WriteLine(line []byte) error
	Close() error
	RemoteAddr() string
}

// minLineBuffer is the smallest buffer bufio accepts.
const minLineBuffer = 16

type tcpConn struct {
	conn   net.Conn
	reader *bufio.Reader
}

// NewTCPConn wraps a stream connection. Lines longer than maxLine bytes
// (terminator included) fail with ErrLineTooLong.
func NewTCPConn(conn net.Conn, maxLine int) LineConn {
	if maxLine < minLineBuffer {
		maxLine = minLineBuffer
	}
	return &tcpConn{
		conn:   conn,
		reader: bufio.NewReaderSize(conn, maxLine),
	}
}

func (c *tcpConn) ReadLine() ([]byte, error) {
	line, err := c.reader.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, fmt.Errorf("%w (limit %d bytes)", ErrLineTooLong, c.reader.Size())
	case errors.Is(err, io.EOF) && len(line) > 0:
		// Unterminated final line; the next call reports EOF.
	case err != nil:
		return nil, err
	}
	return bytes.Clone(bytes.TrimRight(line, "\r\n")), nil
}

func (c *tcpConn) WriteLine(line []byte) error {
	_, err := c.conn.Write(line)
	return err
}

func (c *tcpConn) Close() error {
	return c.conn.Close()
}

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
