// Command client is an interactive terminal client for the room chat server.
//
// Lines are typed as "COMMAND [argument]", for example "JOINROOM lobby" or
// "SENDMSG hello". QUIT disconnects.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/Tyrowin/roomchat/internal/client"
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
	flags := pflag.NewFlagSet("client", pflag.ContinueOnError)
	addr := flags.String("addr", "localhost:8000", "chat server TCP address")
	username := flags.StringP("username", "u", "", "name shown with your messages (prompted when empty)")
	logLevel := flags.String("log-level", "error", "debug, info, warn or error")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}

	logger, err := server.NewLogger(os.Stderr, *logLevel, "text")
	if err != nil {
		return err
	}

	stdin := bufio.NewReader(os.Stdin)
	name := strings.TrimSpace(*username)
	if name == "" {
		fmt.Print("Enter username: ")
		line, err := stdin.ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("reading username: %w", err)
		}
		name = strings.TrimSpace(line)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, *addr, name, logger)
	if err != nil {
		return err
	}
	return c.Run(ctx, stdin, os.Stdout)
}
