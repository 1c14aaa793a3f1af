// Package server implements the chat server: the TCP listener, per-connection
// sessions, and the HTTP side with its WebSocket gateway.
//
// The implementation is organized into specialized files for configuration,
// sessions, transports, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
