package authapi

import (
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite

	// Login attempts allowed per client IP and per email, each per window.
	LoginIPMax      int
	LoginIPWindow   time.Duration
	LoginUserMax    int
	LoginUserWindow time.Duration
}

// LoadConfigFromEnv loads auth config from environment variables with safe defaults.
func LoadConfigFromEnv() Config {
	cfg := Config{
		TrustProxy:      envBool("HUDDLE_AUTH_TRUST_PROXY", false),
		MaxBodyBytes:    envInt64("HUDDLE_AUTH_MAX_BODY_BYTES", 1<<20), // 1 MiB
		CookiePath:      envString("HUDDLE_COOKIE_PATH", "/"),
		CookieDomain:    envString("HUDDLE_COOKIE_DOMAIN", ""),
		CookieSecure:    envBool("HUDDLE_COOKIE_SECURE", false),
		CookieSameSite:  parseSameSite(envString("HUDDLE_COOKIE_SAMESITE", "lax")),
		LoginIPMax:      envInt("HUDDLE_AUTH_LOGIN_IP_MAX", 20),
		LoginIPWindow:   envDuration("HUDDLE_AUTH_LOGIN_IP_WINDOW", 5*time.Minute),
		LoginUserMax:    envInt("HUDDLE_AUTH_LOGIN_USER_MAX", 5),
		LoginUserWindow: envDuration("HUDDLE_AUTH_LOGIN_USER_WINDOW", 15*time.Minute),
	}

	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg
}

func parseSameSite(v string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
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

func envInt(key string, def int) int {
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

func envInt64(key string, def int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
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
