// Package config loads the relay's runtime configuration from environment
// variables, with a small flag surface for overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "SIGNAL_RELAY_LISTEN_ADDR"
	envVarMode            = "SIGNAL_RELAY_MODE"
	envVarLogFormat       = "SIGNAL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "SIGNAL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "SIGNAL_RELAY_SHUTDOWN_TIMEOUT"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"

	// WebSocket inbound hardening.
	envVarMaxMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"

	// Room limits.
	envVarMaxRoomMembers = "MAX_ROOM_MEMBERS"

	// Optional cross-instance fan-out bus.
	envVarRedisAddr = "REDIS_ADDR"
	envVarRedisDB   = "REDIS_DB"
)

const (
	// DefaultListenAddr binds all interfaces on the relay's historical port.
	DefaultListenAddr = "0.0.0.0:5000"

	DefaultShutdownTimeout = 15 * time.Second

	DefaultMode Mode = ModeDev

	DefaultMaxMessageBytes      = int64(64 * 1024)
	DefaultMaxMessagesPerSecond = 50
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
)

type Mode string

const (
	ModeDev        Mode = "dev"
	ModeProduction Mode = "production"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr string
	Mode       Mode

	LogFormat LogFormat
	LogLevel  slog.Level

	ShutdownTimeout time.Duration

	// AllowedOrigins restricts browser origins for the WS and ICE endpoints.
	// Empty means any origin is accepted, which matches the relay's default
	// open posture.
	AllowedOrigins []string

	MaxMessageBytes      int64
	MaxMessagesPerSecond int
	WSIdleTimeout        time.Duration
	WSPingInterval       time.Duration

	// MaxRoomMembers caps room size; 0 means unlimited.
	MaxRoomMembers int

	// RedisAddr enables the cross-instance bus when non-empty.
	RedisAddr string
	RedisDB   int

	// ICEServers is served to clients via GET /webrtc/ice so they can
	// bootstrap their PeerConnections. The relay itself never dials these.
	ICEServers []webrtc.ICEServer
}

// Load reads configuration from the process environment and the given
// command-line arguments.
func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

// load is the testable core of Load; lookup stands in for os.LookupEnv.
func load(lookup func(string) (string, bool), args []string) (Config, error) {
	mode, err := parseMode(envOrDefault(lookup, envVarMode, string(DefaultMode)))
	if err != nil {
		return Config{}, err
	}

	logFormat, err := parseLogFormat(envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode)))
	if err != nil {
		return Config{}, err
	}
	logLevel, err := parseLogLevel(envOrDefault(lookup, envVarLogLevel, defaultLogLevelForMode(mode)))
	if err != nil {
		return Config{}, err
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, DefaultListenAddr)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdownTimeout)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins := splitCommaSeparated(envOrDefault(lookup, envVarAllowedOrigins, ""))

	maxMessageBytes, err := envInt64OrDefault(lookup, envVarMaxMessageBytes, DefaultMaxMessageBytes)
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, DefaultWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, DefaultWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	if wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s (%s) must be shorter than %s (%s)",
			envVarWSPingInterval, wsPingInterval, envVarWSIdleTimeout, wsIdleTimeout)
	}

	maxRoomMembers, err := envIntOrDefault(lookup, envVarMaxRoomMembers, 0)
	if err != nil {
		return Config{}, err
	}
	if maxRoomMembers < 0 {
		return Config{}, fmt.Errorf("%s must be >= 0", envVarMaxRoomMembers)
	}

	redisAddr := envOrDefault(lookup, envVarRedisAddr, "")
	redisDB, err := envIntOrDefault(lookup, envVarRedisDB, 0)
	if err != nil {
		return Config{}, err
	}

	iceServers, err := parseICEServersFromEnv(lookup)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		Mode:            mode,
		LogFormat:       logFormat,
		LogLevel:        logLevel,
		ShutdownTimeout: shutdownTimeout,
		AllowedOrigins:  allowedOrigins,

		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
		WSIdleTimeout:        wsIdleTimeout,
		WSPingInterval:       wsPingInterval,

		MaxRoomMembers: maxRoomMembers,

		RedisAddr: redisAddr,
		RedisDB:   redisDB,

		ICEServers: iceServers,
	}

	fs := flag.NewFlagSet("signal-relay", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP listen address")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// NewLogger builds the process logger from the loaded config.
func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeDev:
		return ModeDev, nil
	case ModeProduction:
		return ModeProduction, nil
	default:
		return "", fmt.Errorf("invalid %s %q (want dev or production)", envVarMode, raw)
	}
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProduction {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProduction {
		return "info"
	}
	return "debug"
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch LogFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid %s %q (want text or json)", envVarLogFormat, raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid %s %q (want debug, info, warn or error)", envVarLogLevel, raw)
	}
}

func envOrDefault(lookup func(string) (string, bool), key, def string) string {
	if raw, ok := lookup(key); ok && strings.TrimSpace(raw) != "" {
		return strings.TrimSpace(raw)
	}
	return def
}

func envIntOrDefault(lookup func(string) (string, bool), key string, def int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envInt64OrDefault(lookup func(string) (string, bool), key string, def int64) (int64, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, def time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func splitCommaSeparated(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
