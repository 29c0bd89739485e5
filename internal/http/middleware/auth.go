// README: JWT bearer-token middleware and caller identity accessors.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gocab/internal/auth"
	"gocab/internal/types"
)

const (
	ctxUserID = "auth.user_id"
	ctxRole   = "auth.role"
)

// Auth validates the Authorization bearer token and stashes the caller's
// identity in the request context. Requests without a valid token stop here.
func Auth(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		claims, err := tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

// RequireRole rejects callers whose token carries a different role. It must
// run after Auth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CallerRole(c) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// CallerID returns the authenticated user's id, or "" when unauthenticated.
func CallerID(c *gin.Context) types.ID {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(types.ID); ok {
			return id
		}
	}
	return ""
}

// CallerRole returns the authenticated user's role, or "".
func CallerRole(c *gin.Context) string {
	if v, ok := c.Get(ctxRole); ok {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return ""
}
