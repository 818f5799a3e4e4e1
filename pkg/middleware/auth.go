package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// ClaimsKey holds the verified claims map in the gin context.
	ClaimsKey = "claims"
	// TenantKey holds the resolved tenant id in the gin context.
	TenantKey = "tenant"

	legacyTokenHeader = "x-auth-token"
)

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// TenantMiddleware verifies the request token and stores the tenant it names.
// The token comes from "Authorization: Bearer <token>" or the x-auth-token header.
func TenantMiddleware(ver Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := rawToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token, authorization denied"})
			return
		}

		tok, err := ver.Verify(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
			return
		}

		var claims map[string]interface{}
		if err := tok.Claims(&claims); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "failed to parse claims"})
			return
		}
		tenant := TenantFromClaims(claims)
		if tenant == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token does not name a tenant"})
			return
		}

		c.Set(ClaimsKey, claims)
		c.Set(TenantKey, tenant)
		c.Next()
	}
}

func rawToken(c *gin.Context) (string, bool) {
	if auth := c.GetHeader("Authorization"); auth != "" {
		scheme, token, found := strings.Cut(auth, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", false
		}
		return strings.TrimSpace(token), true
	}
	if token := strings.TrimSpace(c.GetHeader(legacyTokenHeader)); token != "" {
		return token, true
	}
	return "", false
}

// TenantFromClaims returns user.id when present, else sub.
func TenantFromClaims(claims map[string]interface{}) string {
	if user, ok := claims["user"].(map[string]interface{}); ok {
		if id, ok := user["id"].(string); ok && id != "" {
			return id
		}
	}
	if sub, ok := claims["sub"].(string); ok {
		return sub
	}
	return ""
}

// TenantFrom returns the tenant set by TenantMiddleware, or "".
func TenantFrom(c *gin.Context) string {
	return c.GetString(TenantKey)
}
