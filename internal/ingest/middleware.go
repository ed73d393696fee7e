package ingest

import (
	"crypto/subtle"
	"net"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthConfig holds the bearer-token auth policy for the ingest surface.
// Token resolution order is CLI flag (Token, set at construction) > the
// SPARKD_TOKEN environment variable > a token file read at startup, per
// spec §4.1.
type AuthConfig struct {
	Enabled bool
	Token   string
}

// ResolveToken returns the effective token, falling back to the environment
// when no explicit token was configured.
func (c *AuthConfig) ResolveToken() string {
	if c.Token != "" {
		return c.Token
	}
	return os.Getenv("SPARKD_TOKEN")
}

var whitelistedPaths = map[string]bool{
	"/health": true,
}

// BearerAuth enforces bearer-token authentication on every path except the
// health check, bypassing auth for loopback callers. Modeled directly on
// echoryn's handler/middleware auth gate.
func BearerAuth(cfg *AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.Enabled {
			c.Next()
			return
		}

		if whitelistedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		token := cfg.ResolveToken()
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "no token configured", "type": "authentication_error"},
			})
			return
		}

		if isLocalRequest(c.Request) {
			c.Next()
			return
		}

		const prefix = "Bearer "
		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "missing or malformed Authorization header", "type": "authentication_error"},
			})
			return
		}

		provided := authHeader[len(prefix):]
		if subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"message": "invalid bearer token", "type": "authentication_error"},
			})
			return
		}

		c.Next()
	}
}

func isLocalRequest(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}
