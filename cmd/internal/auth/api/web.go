package authapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

// setSessionCookie stores the URL-encoded session token as an HttpOnly cookie.
func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessCfg.CookieName,
		Value:    url.PathEscape(token),
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		MaxAge:   int(time.Until(exp).Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireSessionCookie(w http.ResponseWriter) {
	if strings.TrimSpace(h.sessCfg.CookieName) == "" {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessCfg.CookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
