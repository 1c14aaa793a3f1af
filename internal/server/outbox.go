package server

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Tyrowin/roomchat/internal/protocol"
)

// outbox is the single writer of a connection. Command replies and room
// broadcasts are queued here and written by one goroutine, so lines from the
// two producers never interleave.
type outbox struct {
	conn      LineConn
	queue     chan []byte
	logger    *slog.Logger
	closeOnce sync.Once
}

func newOutbox(conn LineConn, size int, logger *slog.Logger) *outbox {
	return &outbox{
		conn:   conn,
		queue:  make(chan []byte, size),
		logger: logger,
	}
}

// send queues a response, waiting for room in the queue. It returns false if
// ctx ended first or the response could not be encoded.
func (o *outbox) send(ctx context.Context, resp protocol.Response) bool {
	line, err := resp.MarshalLine()
	if err != nil {
		o.logger.Error("Error encoding response", "error", err)
		return false
	}

	select {
	case o.queue <- line:
		return true
	case <-ctx.Done():
		return false
	}
}

// close tells run to finish after writing what is already queued. No send
// may happen after close.
func (o *outbox) close() {
	o.closeOnce.Do(func() {
		close(o.queue)
	})
}

// run writes queued lines until the queue is closed or a write fails.
func (o *outbox) run() error {
	for line := range o.queue {
		if err := o.conn.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}
