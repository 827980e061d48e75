package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LocalhostOnly restricts access to loopback plus an operator allowlist of
// IPs and CIDR ranges. Guards the admin surface.
type LocalhostOnly struct {
	logger     *logrus.Logger
	allowedIPs []string
}

// NewLocalhostOnly creates the access-restriction middleware.
func NewLocalhostOnly(logger *logrus.Logger, allowedIPs []string) *LocalhostOnly {
	return &LocalhostOnly{logger: logger, allowedIPs: allowedIPs}
}

// Restrict rejects requests from addresses outside the allowlist.
func (l *LocalhostOnly) Restrict() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		remoteIP, _, _ := net.SplitHostPort(c.Request.RemoteAddr)

		if !l.isAllowedIP(clientIP) && !isLocalhost(remoteIP) {
			l.logger.WithFields(logrus.Fields{
				"client_ip": clientIP,
				"remote_ip": remoteIP,
				"path":      c.Request.URL.Path,
				"method":    c.Request.Method,
			}).Warn("⚠️ Admin access denied")

			c.JSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "Access denied",
				"code":    "IP_NOT_ALLOWED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// isAllowedIP checks the client IP against the allowlist. Entries may be
// plain IPs or CIDR ranges.
func (l *LocalhostOnly) isAllowedIP(ip string) bool {
	if isLocalhost(ip) {
		return true
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}

	for _, allowed := range l.allowedIPs {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if strings.Contains(allowed, "/") {
			if _, cidr, err := net.ParseCIDR(allowed); err == nil && cidr.Contains(parsed) {
				return true
			}
			continue
		}
		if allowedIP := net.ParseIP(allowed); allowedIP != nil && allowedIP.Equal(parsed) {
			return true
		}
	}
	return false
}

func isLocalhost(ip string) bool {
	if ip == "" {
		return false
	}
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}
