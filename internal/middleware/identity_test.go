package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"firebase.google.com/go/v4/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"ai-tools-server/internal/identity"
)

type fakeVerifier struct {
	uid string
	err error
}

func (f fakeVerifier) VerifyIDToken(_ context.Context, _ string) (*auth.Token, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &auth.Token{UID: f.uid}, nil
}

func newIdentityRouter(verifier TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ResolveOwner(verifier, zap.NewNop()))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, OwnerID(c))
	})
	return router
}

func TestResolveOwnerAssignsGuestCookie(t *testing.T) {
	router := newIdentityRouter(fakeVerifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "guest_"))

	var guestCookie *http.Cookie
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == identity.GuestIDKey {
			guestCookie = cookie
		}
	}
	require.NotNil(t, guestCookie)
	assert.Equal(t, w.Body.String(), guestCookie.Value)
}

func TestResolveOwnerReusesGuestCookie(t *testing.T) {
	router := newIdentityRouter(fakeVerifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: identity.GuestIDKey, Value: "guest_existing123"})
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "guest_existing123", w.Body.String())
}

func TestResolveOwnerPrefersFirebaseUID(t *testing.T) {
	router := newIdentityRouter(fakeVerifier{uid: "firebase_user_42"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	req.AddCookie(&http.Cookie{Name: identity.GuestIDKey, Value: "guest_existing123"})
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "firebase_user_42", w.Body.String())
}

func TestResolveOwnerRejectsInvalidToken(t *testing.T) {
	router := newIdentityRouter(fakeVerifier{err: errors.New("expired")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_invalid")
}

func TestResolveOwnerRejectsTokenWithoutVerifier(t *testing.T) {
	router := newIdentityRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer some-token")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "token_invalid")

	// Cookie-only requests still resolve to a guest.
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Body.String(), "guest_"))
}

func TestResolveOwnerRejectsMalformedHeader(t *testing.T) {
	router := newIdentityRouter(fakeVerifier{uid: "firebase_user_42"})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Token abc")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
