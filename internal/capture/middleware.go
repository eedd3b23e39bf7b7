package capture

import (
	"net/http"
	"net/url"
	"strings"

	"growthdesk_backend/internal/capture/repository"

	"github.com/gin-gonic/gin"
)

// Gin context keys set by the key middleware.
const (
	ContextKeyID     = "captureKeyID"
	ContextKeyDomain = "captureOrigin"
)

// KeyAuthMiddleware validates the X-Capture-Key header and enforces the
// key's allowed-domain list against the request origin.
func KeyAuthMiddleware(repo *repository.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		presented := c.GetHeader("X-Capture-Key")
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing capture key"})
			return
		}

		key, err := repo.GetActiveByHash(c.Request.Context(), repository.HashKey(presented))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid capture key"})
			return
		}

		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = c.GetHeader("Referer")
		}
		if len(key.AllowedDomains) > 0 && !isDomainAllowed(origin, key.AllowedDomains) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "domain not allowed"})
			return
		}

		_ = repo.TouchLastUsed(c.Request.Context(), key.ID)

		c.Set(ContextKeyID, key.ID)
		c.Set(ContextKeyDomain, hostOf(origin))
		c.Next()
	}
}

// isDomainAllowed matches the origin host against the allowed list.
// Supports exact hosts, "*" and wildcard subdomains ("*.example.com",
// which also matches the apex).
func isDomainAllowed(origin string, allowed []string) bool {
	host := hostOf(origin)
	if host == "" {
		return false
	}

	for _, domain := range allowed {
		domain = strings.ToLower(strings.TrimSpace(domain))
		switch {
		case domain == "*":
			return true
		case strings.HasPrefix(domain, "*."):
			if strings.HasSuffix(host, domain[1:]) || host == domain[2:] {
				return true
			}
		case host == domain:
			return true
		}
	}
	return false
}

func hostOf(origin string) string {
	if origin == "" {
		return ""
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	if parsed.Hostname() == "" {
		// Bare hosts without a scheme still count.
		return strings.ToLower(strings.Split(origin, "/")[0])
	}
	return strings.ToLower(parsed.Hostname())
}
