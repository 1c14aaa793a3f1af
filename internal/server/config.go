// Package server provides configuration helpers that define runtime defaults,
// validation, and file/environment loading for the chat service.
package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tyrowin/roomchat/internal/room"
)

// UsernamePolicy decides how a session's username follows the username field
// carried by every request.
type UsernamePolicy string

const (
	// UsernamePerRequest takes the username of every request, last one wins.
	UsernamePerRequest UsernamePolicy = "per-request"
	// UsernameSticky binds the first non-empty username for the whole
	// connection and ignores later values.
	UsernameSticky UsernamePolicy = "sticky"
)

// Config holds the server configuration settings.
type Config struct {
	// TCPAddress is where the line protocol listener binds.
	TCPAddress string `yaml:"tcp_address"`
	// HTTPAddress serves health, room listing and the WebSocket gateway.
	// Empty disables the HTTP side entirely.
	HTTPAddress    string   `yaml:"http_address"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// MaxMessageSize bounds a single request line in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
	// FanoutCapacity is how far a subscriber may fall behind a room before
	// it skips messages.
	FanoutCapacity int `yaml:"fanout_capacity"`
	// OutboxSize is the per-connection queue of responses awaiting write.
	OutboxSize      int            `yaml:"outbox_size"`
	UsernamePolicy  UsernamePolicy `yaml:"username_policy"`
	LogLevel        string         `yaml:"log_level"`
	LogFormat       string         `yaml:"log_format"`
	ShutdownTimeout time.Duration  `yaml:"shutdown_timeout"`
}

const (
	defaultTCPAddress      = ":8000"
	defaultHTTPAddress     = ":8080"
	defaultMaxMessageSize  = 4096
	defaultOutboxSize      = 256
	defaultShutdownTimeout = 10 * time.Second
)

func defaultConfig() Config {
	return Config{
		TCPAddress:  defaultTCPAddress,
		HTTPAddress: defaultHTTPAddress,
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize:  defaultMaxMessageSize,
		FanoutCapacity:  room.DefaultFanoutCapacity,
		OutboxSize:      defaultOutboxSize,
		UsernamePolicy:  UsernamePerRequest,
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	cfg.applyEnv()
	return &cfg
}

// LoadConfig reads defaults, then the YAML file at path (if path is not
// empty), then environment overrides. Unknown keys in the file are errors.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := decodeConfig(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

func decodeConfig(data []byte, cfg *Config) error {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (cfg *Config) applyEnv() {
	if addr, ok := os.LookupEnv("TCP_ADDRESS"); ok && addr != "" {
		cfg.TCPAddress = addr
	}

	// HTTP_ADDRESS may be set to an empty string to disable the gateway.
	if addr, ok := os.LookupEnv("HTTP_ADDRESS"); ok {
		cfg.HTTPAddress = addr
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if capacity := os.Getenv("FANOUT_CAPACITY"); capacity != "" {
		cfg.FanoutCapacity = parseIntValue(capacity, cfg.FanoutCapacity)
	}

	if size := os.Getenv("OUTBOX_SIZE"); size != "" {
		cfg.OutboxSize = parseIntValue(size, cfg.OutboxSize)
	}

	if policy := os.Getenv("USERNAME_POLICY"); policy != "" {
		cfg.UsernamePolicy = UsernamePolicy(strings.ToLower(strings.TrimSpace(policy)))
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = format
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseSeconds(timeout, cfg.ShutdownTimeout)
	}
}

// Sanitize returns a copy with zero or negative values replaced by defaults.
// HTTPAddress is left alone since empty means disabled.
func (cfg Config) Sanitize() Config {
	if cfg.TCPAddress == "" {
		cfg.TCPAddress = defaultTCPAddress
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultMaxMessageSize
	}

	if cfg.FanoutCapacity <= 0 {
		cfg.FanoutCapacity = room.DefaultFanoutCapacity
	}

	if cfg.OutboxSize <= 0 {
		cfg.OutboxSize = defaultOutboxSize
	}

	if cfg.UsernamePolicy == "" {
		cfg.UsernamePolicy = UsernamePerRequest
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// Validate reports settings that cannot be defaulted away.
func (cfg Config) Validate() error {
	switch cfg.UsernamePolicy {
	case UsernamePerRequest, UsernameSticky:
	default:
		return fmt.Errorf("unknown username policy %q (want %q or %q)",
			cfg.UsernamePolicy, UsernamePerRequest, UsernameSticky)
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return err
	}
	switch strings.ToLower(cfg.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", cfg.LogFormat)
	}
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseSeconds(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}
