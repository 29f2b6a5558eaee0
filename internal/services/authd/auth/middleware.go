package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/trackhire/trackhire/internal/api"
)

const identityKey = "auth.identity"

// RequireAuth extracts and validates the bearer token and stores the
// caller's identity in the gin context. This middleware is the only way
// the rest of the application learns who is calling; it never consults
// the ledger; signature and expiry are the whole check.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, ok := bearerToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := h.uc.Authenticate(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or expired token"})
			return
		}

		id, err := claims.UserID()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{Error: "invalid or expired token"})
			return
		}

		c.Set(identityKey, api.Identity{ID: id, Email: claims.Email})
		c.Next()
	}
}

// IdentityFrom returns the authenticated caller set by RequireAuth.
func IdentityFrom(c *gin.Context) (api.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return api.Identity{}, false
	}
	ident, ok := v.(api.Identity)
	return ident, ok
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(h), "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(h[len("bearer "):])
	return tok, tok != ""
}
