package mw

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"parking-occupancy-backend/internal/auth"
	"parking-occupancy-backend/internal/model"
)

// Context keys set by RequireOfficer.
const (
	ContextOfficerID   = "officerId"
	ContextOfficerRole = "officerRole"
)

// TokenVerifier validates bearer tokens.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RequireOfficer rejects requests without a valid bearer token.
func RequireOfficer(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header missing", "kind": "UNAUTHORIZED"})
			return
		}

		claims, err := v.Verify(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token", "kind": "UNAUTHORIZED"})
			return
		}

		c.Set(ContextOfficerID, claims.OfficerID)
		c.Set(ContextOfficerRole, claims.Role)
		c.Next()
	}
}

// RequireRole lets through only officers holding role. It must run after RequireOfficer.
func RequireRole(role model.OfficerRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		got, _ := c.Get(ContextOfficerRole)
		if r, ok := got.(model.OfficerRole); !ok || r != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role", "kind": "FORBIDDEN"})
			return
		}
		c.Next()
	}
}
