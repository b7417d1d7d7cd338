package app

import (
	"errors"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	LogFormat string

	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	MaxHeaderBytes    int

	// Empty DatabaseURL runs every store in memory.
	DatabaseURL   string
	DBSchema      string
	DBMaxConns    int32
	DBMinConns    int32
	DBApplySchema bool

	// Empty RedisURL keeps sessions in memory.
	RedisURL string

	// If true, /readyz returns 503 unless DB is configured and reachable.
	ReadinessRequireDB bool

	// TokenHMACKey keys session token hashing. RequireTokenHMAC refuses to
	// start without a key of at least 32 bytes.
	TokenHMACKey     string
	RequireTokenHMAC bool

	// Per client IP request budget across the HTTP surface.
	HTTPRateRPS   int
	HTTPRateBurst int

	CORSAllowedOrigins   []string
	CORSAllowCredentials bool
	CORSMaxAgeSeconds    int
}

// LoadConfig loads an optional .env file (HUDDLE_ENV_FILE, default ".env")
// and then reads Config from the environment. Variables already set in the
// process environment win over the file.
func LoadConfig() (Config, error) {
	path := EnvString("HUDDLE_ENV_FILE", ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	return Config{
		HTTPAddr:  EnvString("HUDDLE_HTTP_ADDR", "0.0.0.0:8080"),
		LogLevel:  EnvString("HUDDLE_LOG_LEVEL", "info"),
		LogFormat: EnvString("HUDDLE_LOG_FORMAT", "json"),

		ReadHeaderTimeout: EnvDuration("HUDDLE_HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
		ReadTimeout:       EnvDuration("HUDDLE_HTTP_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:      EnvDuration("HUDDLE_HTTP_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:       EnvDuration("HUDDLE_HTTP_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout:   EnvDuration("HUDDLE_HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),

		MaxHeaderBytes: EnvInt("HUDDLE_HTTP_MAX_HEADER_BYTES", 1<<20),

		DatabaseURL:   EnvString("HUDDLE_DATABASE_URL", ""),
		DBSchema:      EnvString("HUDDLE_DB_SCHEMA", "huddle"),
		DBMaxConns:    EnvInt32("HUDDLE_DB_MAX_CONNS", 10),
		DBMinConns:    EnvInt32("HUDDLE_DB_MIN_CONNS", 0),
		DBApplySchema: EnvBool("HUDDLE_DB_APPLY_SCHEMA", false),

		RedisURL: EnvString("HUDDLE_REDIS_URL", ""),

		ReadinessRequireDB: EnvBool("HUDDLE_READINESS_REQUIRE_DB", false),

		TokenHMACKey:     os.Getenv("HUDDLE_TOKEN_HMAC_KEY"),
		RequireTokenHMAC: EnvBool("HUDDLE_REQUIRE_TOKEN_HMAC", false),

		HTTPRateRPS:   EnvInt("HUDDLE_HTTP_RATE_RPS", 20),
		HTTPRateBurst: EnvInt("HUDDLE_HTTP_RATE_BURST", 40),

		CORSAllowedOrigins:   EnvCSV("HUDDLE_CORS_ALLOWED_ORIGINS"),
		CORSAllowCredentials: EnvBool("HUDDLE_CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAgeSeconds:    EnvInt("HUDDLE_CORS_MAX_AGE_SECONDS", 600),
	}, nil
}

func (c Config) dbEnabled() bool { return strings.TrimSpace(c.DatabaseURL) != "" }
