package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/Tyrowin/roomchat/internal/server"
)

// httpGateway is the HTTP side of the service: health, room listing, the
// WebSocket transport and the browser test page.
type httpGateway struct {
	http *http.Server
}

func startGateway(srv *server.Server, addr string, logger *slog.Logger, errs chan<- error) (*httpGateway, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}

	httpServer := server.CreateServer(addr, server.SetupRoutes(srv))
	go func() {
		if err := server.StartServer(httpServer, listener); err != nil {
			errs <- fmt.Errorf("http gateway: %w", err)
		}
	}()

	logger.Info("HTTP gateway listening", "address", listener.Addr().String())
	return &httpGateway{http: httpServer}, nil
}

// shutdown stops accepting HTTP requests. Upgraded WebSocket sessions are
// hijacked and end with the chat server's own Shutdown.
func (g *httpGateway) shutdown(timeout time.Duration, logger *slog.Logger) {
	if err := server.ShutdownServer(g.http, timeout); err != nil {
		logger.Warn("HTTP gateway shutdown incomplete", "error", err)
	}
}
