package realtime

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second

	// Origin is required and only localhost is allowed unless configured.
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	wsDefaultCookieName = "sessionId"
)

// GatewayConfig holds the websocket gateway knobs.
type GatewayConfig struct {
	// DevInsecure disables websocket.Accept's origin verification. Dev only.
	DevInsecure    bool
	OriginRequired bool
	AllowedOrigins []string

	// CookieName is the session cookie read at handshake.
	CookieName string

	WriteTimeout  time.Duration
	SendQueueSize int

	// The heartbeat is the only dead-peer check; listen-only clients send no
	// data frames.
	HeartbeatEvery   time.Duration
	HeartbeatTimeout time.Duration

	RateEvents int
	RateWindow time.Duration
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		OriginRequired:   wsDefaultOriginRequired,
		AllowedOrigins:   splitCSV(wsDefaultAllowedOrigins),
		CookieName:       wsDefaultCookieName,
		WriteTimeout:     wsDefaultWriteTimeout,
		SendQueueSize:    wsDefaultSendQueueSize,
		HeartbeatEvery:   heartbeatInterval,
		HeartbeatTimeout: heartbeatTimeout,
		RateEvents:       rateLimitEvents,
		RateWindow:       rateLimitWindow,
	}
}

// GatewayConfigFromEnv reads HUDDLE_WS_* over the defaults. Invalid values
// fall back to the default for that key.
func GatewayConfigFromEnv() GatewayConfig {
	def := DefaultGatewayConfig()
	cfg := GatewayConfig{
		DevInsecure:      envBoolWS("HUDDLE_WS_DEV_INSECURE", false),
		OriginRequired:   envBoolWS("HUDDLE_WS_ORIGIN_REQUIRED", def.OriginRequired),
		AllowedOrigins:   envCSVWS("HUDDLE_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins),
		CookieName:       envStringWS("HUDDLE_SESSION_COOKIE", def.CookieName),
		WriteTimeout:     envDurationWS("HUDDLE_WS_WRITE_TIMEOUT", def.WriteTimeout),
		SendQueueSize:    envIntWS("HUDDLE_WS_SEND_QUEUE", def.SendQueueSize),
		HeartbeatEvery:   envDurationWS("HUDDLE_WS_HEARTBEAT_INTERVAL", def.HeartbeatEvery),
		HeartbeatTimeout: envDurationWS("HUDDLE_WS_HEARTBEAT_TIMEOUT", def.HeartbeatTimeout),
		RateEvents:       envIntWS("HUDDLE_WS_RATE_EVENTS", def.RateEvents),
		RateWindow:       envDurationWS("HUDDLE_WS_RATE_WINDOW", def.RateWindow),
	}
	return cfg.normalized()
}

// normalized fills zero values from the defaults and applies floors.
func (c GatewayConfig) normalized() GatewayConfig {
	def := DefaultGatewayConfig()
	if c.CookieName == "" {
		c.CookieName = def.CookieName
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = def.SendQueueSize
	}
	if c.SendQueueSize < wsMinSendQueueSize {
		c.SendQueueSize = wsMinSendQueueSize
	}
	if c.HeartbeatEvery <= 0 {
		c.HeartbeatEvery = def.HeartbeatEvery
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = def.HeartbeatTimeout
	}
	if c.RateEvents <= 0 {
		c.RateEvents = def.RateEvents
	}
	if c.RateWindow <= 0 {
		c.RateWindow = def.RateWindow
	}
	return c
}

// ---- env helpers ----

func envStringWS(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	return splitCSV(raw)
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
