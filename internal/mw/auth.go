package mw

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"attendance-backend/internal/apperr"
	"attendance-backend/internal/auth"
)

const identityKey = "identity"

// Authenticator resolves an Authorization header into an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, header string) (auth.Identity, error)
}

// Authenticate rejects requests without a valid bearer token and stores the caller's identity.
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := a.Authenticate(c.Request.Context(), c.GetHeader("Authorization"))
		if err != nil {
			status := http.StatusUnauthorized
			msg := "unauthorized"
			if !apperr.Is(err, apperr.KindUnauthorized) {
				status = http.StatusInternalServerError
				msg = "internal error"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Authenticate.
func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok
}

// RequireAdmin lets only admin identities through.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := IdentityFrom(c)
		if !ok || !id.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}
