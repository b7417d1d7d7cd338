package app

import (
	"errors"

	"huddle/cmd/security/token"
)

// newTokenHasher builds the session token hasher and enforces the HMAC policy
// at startup. Falling back to plain SHA-256 is allowed only when the key is
// not required.
func newTokenHasher(cfg Config) (token.Hasher, error) {
	h, err := token.NewHasher(cfg.TokenHMACKey, cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: HUDDLE_REQUIRE_TOKEN_HMAC=true but HUDDLE_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: HUDDLE_REQUIRE_TOKEN_HMAC=true but HUDDLE_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	case err != nil:
		return token.Hasher{}, err
	}

	if cfg.RequireTokenHMAC && !h.Keyed() {
		return token.Hasher{}, errors.New("security policy: HUDDLE_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
