package password

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// Params are the Argon2id cost knobs. MemoryKiB is in KiB as argon2.IDKey expects.
type Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy bounds what users may pick as a password.
type Policy struct {
	MinLength      int
	MaxLength      int
	RejectVeryWeak bool
}

type Config struct {
	Params Params
	Policy Policy
}

// DefaultConfig is tuned for interactive logins on small containers.
func DefaultConfig() Config {
	lanes := runtime.NumCPU()
	switch {
	case lanes < 1:
		lanes = 1
	case lanes > 4:
		lanes = 4
	}

	return Config{
		Params: Params{
			MemoryKiB:   64 * 1024,
			Iterations:  3,
			Parallelism: uint8(lanes), // #nosec G115 -- clamped to [1..4].
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength: 8,
			MaxLength: 256,
		},
	}
}

// FromEnv starts from DefaultConfig and applies HUDDLE_PASSWORD_* and
// HUDDLE_ARGON2_* overrides. Unset variables keep their default.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()

	ints := []struct {
		key      string
		min, max int
		set      func(int)
	}{
		{"HUDDLE_PASSWORD_MIN_LEN", 1, 1024, func(n int) { cfg.Policy.MinLength = n }},
		{"HUDDLE_PASSWORD_MAX_LEN", 1, 4096, func(n int) { cfg.Policy.MaxLength = n }},
		{"HUDDLE_ARGON2_MEMORY_KIB", 8 * 1024, 1024 * 1024, func(n int) { cfg.Params.MemoryKiB = uint32(n) }}, // #nosec G115 -- range checked.
		{"HUDDLE_ARGON2_ITERATIONS", 1, 20, func(n int) { cfg.Params.Iterations = uint32(n) }},               // #nosec G115 -- range checked.
		{"HUDDLE_ARGON2_PARALLELISM", 1, 64, func(n int) { cfg.Params.Parallelism = uint8(n) }},              // #nosec G115 -- range checked.
		{"HUDDLE_ARGON2_SALT_LEN", 8, 64, func(n int) { cfg.Params.SaltLength = uint32(n) }},                 // #nosec G115 -- range checked.
		{"HUDDLE_ARGON2_KEY_LEN", 16, 64, func(n int) { cfg.Params.KeyLength = uint32(n) }},                  // #nosec G115 -- range checked.
	}
	for _, o := range ints {
		raw, ok := os.LookupEnv(o.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("%s: not an integer", o.key)
		}
		if n < o.min || n > o.max {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", o.key, o.min, o.max)
		}
		o.set(n)
	}

	if raw, ok := os.LookupEnv("HUDDLE_PASSWORD_REJECT_VERY_WEAK"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("HUDDLE_PASSWORD_REJECT_VERY_WEAK: invalid boolean")
		}
		cfg.Policy.RejectVeryWeak = b
	}

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf("password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength, cfg.Policy.MaxLength)
	}
	return cfg, nil
}
