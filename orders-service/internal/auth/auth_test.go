package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewVerifier("secret")
	token, err := v.Issue(Identity{UserID: "user-1", Email: "buyer@example.com"}, time.Minute)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "user-1", Email: "buyer@example.com"}, id)
}

func TestVerifyRejects(t *testing.T) {
	v := NewVerifier("secret")

	expired, err := v.Issue(Identity{UserID: "user-1"}, -time.Minute)
	require.NoError(t, err)
	otherKey, err := NewVerifier("other").Issue(Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)
	noSubject, err := v.Issue(Identity{}, time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "user-1"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":    expired,
		"other key":  otherKey,
		"no subject": noSubject,
		"alg none":   none,
		"garbage":    "not-a-jwt",
	} {
		_, err := v.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken, name)
	}
}

func TestMiddleware(t *testing.T) {
	v := NewVerifier("secret")
	var seen Identity
	var authed bool
	h := v.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, authed = FromContext(r.Context())
	}))

	token, err := v.Issue(Identity{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, authed)
	assert.Equal(t, "user-1", seen.UserID)

	authed = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders/x/ws?token="+token, nil))
	assert.True(t, authed)

	authed = false
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, authed)

	req = httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Bearer broken")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
