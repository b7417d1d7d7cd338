package session

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	MinTTL = 24 * time.Hour
	MaxTTL = 7 * 24 * time.Hour
)

// Config controls how sessions are minted and transported.
type Config struct {
	// TTL is the fixed lifetime of a session from login.
	TTL time.Duration

	// CookieName carries the token on browser requests.
	CookieName string

	// KeyPrefix namespaces stored sessions.
	KeyPrefix string
}

func DefaultConfig() Config {
	return Config{
		TTL:        24 * time.Hour,
		CookieName: "sessionId",
		KeyPrefix:  "session:",
	}
}

// LoadConfigFromEnv reads HUDDLE_SESSION_TTL and HUDDLE_SESSION_COOKIE on top
// of DefaultConfig. TTL must be within [MinTTL, MaxTTL].
func LoadConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()

	if v := strings.TrimSpace(os.Getenv("HUDDLE_SESSION_TTL")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("%w: HUDDLE_SESSION_TTL: %v", ErrConfig, err)
		}
		cfg.TTL = d
	}
	if v := strings.TrimSpace(os.Getenv("HUDDLE_SESSION_COOKIE")); v != "" {
		cfg.CookieName = v
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.TTL < MinTTL || c.TTL > MaxTTL {
		return fmt.Errorf("%w: ttl %s outside [%s, %s]", ErrConfig, c.TTL, MinTTL, MaxTTL)
	}
	if c.CookieName == "" || strings.ContainsAny(c.CookieName, " ;,=\t") {
		return fmt.Errorf("%w: cookie name %q", ErrConfig, c.CookieName)
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("%w: empty key prefix", ErrConfig)
	}
	return nil
}
