package httpkit

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// ContextIdentityKey is the gin context key for the caller identity.
	ContextIdentityKey = "identity"

	headerUserID    = "X-User-Id"
	headerUserRoles = "X-User-Roles"
)

// Identity describes the authenticated caller as forwarded by the upstream
// gateway. Authentication itself happens outside this service; the gateway
// strips and re-adds the identity headers on every request.
type Identity struct {
	UserID uuid.UUID
	Roles  []string
}

// HasRole reports whether the identity carries the given role name.
func (id Identity) HasRole(role string) bool {
	for _, item := range id.Roles {
		if strings.EqualFold(item, role) {
			return true
		}
	}
	return false
}

// IdentityFromHeaders extracts the forwarded identity into the gin context.
// Requests without a user ID are rejected.
func IdentityFromHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		userID, err := uuid.Parse(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid identity"})
			return
		}

		c.Set(ContextIdentityKey, Identity{
			UserID: userID,
			Roles:  splitRoles(c.GetHeader(headerUserRoles)),
		})
		c.Next()
	}
}

// MustGetIdentity returns the caller identity or aborts with 401.
func MustGetIdentity(c *gin.Context) (Identity, bool) {
	value, ok := c.Get(ContextIdentityKey)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
		return Identity{}, false
	}
	return identity, true
}

// RequireRole returns middleware that checks if the caller has the given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, ok := MustGetIdentity(c)
		if !ok {
			return
		}
		if !identity.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func splitRoles(header string) []string {
	parts := strings.Split(header, ",")
	roles := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			roles = append(roles, trimmed)
		}
	}
	return roles
}
