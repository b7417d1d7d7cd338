package authapi

import (
	"log/slog"
	"net"
	"time"
)

// Audit events go to the structured log with their fields grouped under "audit".

func (h *Handler) audit(action string, attrs ...any) {
	h.log.Info(action, slog.Group("audit", attrs...))
}

func (h *Handler) auditRegistered(userID string, ip net.IP) {
	h.audit("auth.register", "user_id", userID, "ip", ipString(ip))
}

func (h *Handler) auditLoginFailed(identifier string, ip net.IP, reason string) {
	h.audit("auth.login.failed", "identifier", identifier, "ip", ipString(ip), "reason", reason)
}

func (h *Handler) auditLoginSuccess(userID string, ip net.IP) {
	h.audit("auth.login.success", "user_id", userID, "ip", ipString(ip))
}

func (h *Handler) auditLoginRateLimited(identifier string, ip net.IP, retryAfter time.Duration) {
	h.audit("auth.login.rate_limited", "identifier", identifier, "ip", ipString(ip), "retry_after_s", int64(retryAfter.Seconds()))
}

func (h *Handler) auditLogout(userID string, ip net.IP) {
	h.audit("auth.logout", "user_id", userID, "ip", ipString(ip))
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}
