package authapi

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"huddle/cmd/identity"
	"huddle/cmd/internal/httpjson"
	"huddle/cmd/internal/ratelimit"
)

// loginThrottle bounds login attempts per client IP and per email.
type loginThrottle struct {
	byIP   *ratelimit.Keyed
	byUser *ratelimit.Keyed
}

func newLoginThrottle(cfg Config) loginThrottle {
	return loginThrottle{
		byIP:   ratelimit.NewKeyed(cfg.LoginIPMax, cfg.LoginIPWindow, cfg.LoginIPMax, cfg.LoginIPWindow),
		byUser: ratelimit.NewKeyed(cfg.LoginUserMax, cfg.LoginUserWindow, cfg.LoginUserMax, cfg.LoginUserWindow),
	}
}

// check spends one attempt for ip and email. It returns a positive retry-after
// when either bucket is empty.
func (t loginThrottle) check(ip net.IP, email string) time.Duration {
	if ip != nil {
		if d := t.byIP.Reserve(ip.String()); d > 0 {
			return d
		}
	}
	if email != "" {
		if d := t.byUser.Reserve(identity.NormalizeEmail(email)); d > 0 {
			return d
		}
	}
	return 0
}

func (t loginThrottle) stop() {
	t.byIP.Stop()
	t.byUser.Stop()
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		secs := int64((retryAfter + time.Second - 1) / time.Second)
		w.Header().Set("Retry-After", strconv.FormatInt(secs, 10))
	}
	httpjson.Error(w, http.StatusTooManyRequests, "rate_limited", "too many attempts")
}
