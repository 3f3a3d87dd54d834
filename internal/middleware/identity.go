package middleware

import (
	"context"
	"net/http"
	"strings"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"ai-tools-server/internal/identity"
	"ai-tools-server/internal/models"
)

const (
	// OwnerIDKey is the gin context key holding the resolved owner id.
	OwnerIDKey = "ownerID"

	guestCookieMaxAge = 365 * 24 * 60 * 60
)

// TokenVerifier validates Firebase ID tokens. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// cookieStore adapts the gin request/response cookies to the guest identity
// store.
type cookieStore struct {
	c *gin.Context
}

func (s cookieStore) Get(key string) (string, bool) {
	value, err := s.c.Cookie(key)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

func (s cookieStore) Set(key, value string) {
	// Not HttpOnly: the browser client reads the id to label its requests.
	s.c.SetCookie(key, value, guestCookieMaxAge, "/", "", false, false)
}

// ResolveOwner determines the request owner. A valid Firebase bearer token
// wins; otherwise a guest id is read from, or assigned to, a cookie. A
// malformed or expired token is rejected rather than downgraded to a
// guest, and so is any token when verification is not configured, so an
// authenticated client never ends up writing under a guest identity.
func ResolveOwner(verifier TokenVerifier, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader != "" {
			if verifier == nil {
				log.Warn("Bearer token presented but token verification is not configured")
				c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
					Code:    models.ErrCodeTokenInvalid,
					Message: "token verification is not configured on this server",
				})
				return
			}

			idToken, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || idToken == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
					Code:    models.ErrCodeTokenInvalid,
					Message: "invalid authorization header format",
				})
				return
			}

			token, err := verifier.VerifyIDToken(c.Request.Context(), idToken)
			if err != nil {
				log.Warn("Firebase token verification failed", zap.Error(err))
				c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
					Code:    models.ErrCodeTokenInvalid,
					Message: "invalid or expired token",
				})
				return
			}

			c.Set(OwnerIDKey, token.UID)
			c.Next()
			return
		}

		c.Set(OwnerIDKey, identity.GetOrCreate(cookieStore{c: c}))
		c.Next()
	}
}

// OwnerID returns the owner id resolved by ResolveOwner.
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerIDKey)
}
