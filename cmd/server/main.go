// Command server runs the room chat service: a TCP listener speaking the
// line-delimited JSON protocol and, unless disabled, an HTTP gateway serving
// the same protocol over WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Tyrowin/roomchat/internal/room"
	"github.com/Tyrowin/roomchat/internal/server"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}

	logger, err := server.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}

	registry := room.NewRegistry(cfg.FanoutCapacity)
	srv := server.NewServer(registry, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.TCPAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.TCPAddress, err)
	}

	errs := make(chan error, 2)
	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, server.ErrServerClosed) {
			errs <- fmt.Errorf("chat listener: %w", err)
		}
	}()

	var gateway *httpGateway
	if cfg.HTTPAddress != "" {
		gateway, err = startGateway(srv, cfg.HTTPAddress, logger, errs)
		if err != nil {
			_ = srv.Shutdown(cfg.ShutdownTimeout)
			return err
		}
	}

	logger.Info("Chat server started",
		"tcp", listener.Addr().String(),
		"http", cfg.HTTPAddress,
		"username_policy", string(cfg.UsernamePolicy),
		"fanout_capacity", cfg.FanoutCapacity,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errs:
		logger.Error("Server failed", "error", runErr)
	}

	if gateway != nil {
		gateway.shutdown(cfg.ShutdownTimeout, logger)
	}
	if err := srv.Shutdown(cfg.ShutdownTimeout); err != nil {
		logger.Warn("Chat server shutdown incomplete", "error", err)
	}
	return runErr
}

// loadConfig layers defaults, the optional YAML file, environment variables
// and finally any flags given explicitly on the command line.
func loadConfig(args []string) (server.Config, error) {
	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a YAML configuration file")
	tcpAddress := flags.String("tcp", "", "TCP listen address for the line protocol (default :8000)")
	httpAddress := flags.String("http", "", "HTTP listen address for health, rooms and WebSocket (empty disables)")
	origins := flags.StringSlice("allowed-origins", nil, "origins allowed to open WebSocket sessions (* allows any)")
	maxMessageSize := flags.Int64("max-message-size", 0, "maximum request size in bytes")
	fanoutCapacity := flags.Int("fanout-capacity", 0, "messages a subscriber may fall behind before skipping")
	outboxSize := flags.Int("outbox-size", 0, "responses queued per connection")
	usernamePolicy := flags.String("username-policy", "", "per-request or sticky")
	logLevel := flags.String("log-level", "", "debug, info, warn or error")
	logFormat := flags.String("log-format", "", "text or json")
	shutdownTimeout := flags.Duration("shutdown-timeout", 0, "time allowed for sessions to end on shutdown")

	if err := flags.Parse(args); err != nil {
		return server.Config{}, err
	}
	if flags.NArg() > 0 {
		return server.Config{}, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	loaded, err := server.LoadConfig(*configPath)
	if err != nil {
		return server.Config{}, err
	}
	cfg := *loaded

	if flags.Changed("tcp") {
		cfg.TCPAddress = *tcpAddress
	}
	if flags.Changed("http") {
		cfg.HTTPAddress = *httpAddress
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins = *origins
	}
	if flags.Changed("max-message-size") {
		cfg.MaxMessageSize = *maxMessageSize
	}
	if flags.Changed("fanout-capacity") {
		cfg.FanoutCapacity = *fanoutCapacity
	}
	if flags.Changed("outbox-size") {
		cfg.OutboxSize = *outboxSize
	}
	if flags.Changed("username-policy") {
		cfg.UsernamePolicy = server.UsernamePolicy(*usernamePolicy)
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = *logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = *logFormat
	}
	if flags.Changed("shutdown-timeout") {
		cfg.ShutdownTimeout = *shutdownTimeout
	}

	cfg = cfg.Sanitize()
	if err := cfg.Validate(); err != nil {
		return server.Config{}, err
	}
	return cfg, nil
}
