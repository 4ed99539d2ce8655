package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// Scopes understood by the admin API. ScopeAdmin satisfies every check.
const (
	ScopeAdmin        = "admin"
	ScopeVaultRead    = "vault:read"
	ScopeVaultWrite   = "vault:write"
	ScopeTasksRead    = "tasks:read"
	ScopeTasksWrite   = "tasks:write"
	ScopeSessionsCtrl = "sessions:control"
)

// ScopesFrom returns the scopes JWTAuth stored on c. ok is false when the
// request was not authenticated.
func ScopesFrom(c *gin.Context) (scopes []string, ok bool) {
	raw, exists := c.Get(string(ctxKeyScopes))
	if !exists {
		return nil, false
	}
	scopes, ok = raw.([]string)
	return scopes, ok
}

// HasScope reports whether granted satisfies want.
func HasScope(granted []string, want string) bool {
	return slices.Contains(granted, ScopeAdmin) || slices.Contains(granted, want)
}

// RequireScope aborts with 403 unless the caller holds scope.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted, ok := ScopesFrom(c)
		switch {
		case !ok:
			forbidden(c, "no scopes in context")
		case !HasScope(granted, scope):
			forbidden(c, "missing scope "+scope)
		default:
			c.Next()
		}
	}
}

func forbidden(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "message": msg})
}
