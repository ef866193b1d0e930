package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

func TestTokenAuthenticator(t *testing.T) {
	a := NewTokenAuthenticator("secret", "hanabi")
	token, err := a.Issue(user.Identity{UserID: 7, Username: "Alice", Muted: true}, time.Minute)
	require.NoError(t, err)

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.Header.Set("Authorization", "Bearer "+token)
		id, err := a.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, user.Identity{UserID: 7, Username: "Alice", Muted: true}, id)
	})

	t.Run("cookie", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		r.AddCookie(&http.Cookie{Name: "token", Value: token})
		id, err := a.Authenticate(r)
		require.NoError(t, err)
		assert.Equal(t, 7, id.UserID)
	})

	t.Run("query", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		_, err := a.Authenticate(r)
		require.NoError(t, err)
	})

	t.Run("missing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		_, err := a.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenAuthenticator("other", "hanabi")
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		_, err := other.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewTokenAuthenticator("secret", "elsewhere")
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
		_, err := other.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("expired", func(t *testing.T) {
		expired, err := a.Issue(user.Identity{UserID: 7, Username: "Alice"}, -time.Minute)
		require.NoError(t, err)
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+expired, nil)
		_, err = a.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})

	t.Run("bad subject", func(t *testing.T) {
		claims := Claims{
			Username: "Alice",
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "alice",
				Issuer:    "hanabi",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
		require.NoError(t, err)
		r := httptest.NewRequest(http.MethodGet, "/ws?token="+signed, nil)
		_, err = a.Authenticate(r)
		assert.ErrorIs(t, err, ErrUnauthenticated)
	})
}

func TestInsecureAuthenticator(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?userID=3&username=Cathy", nil)
	id, err := InsecureAuthenticator{}.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, user.Identity{UserID: 3, Username: "Cathy"}, id)

	r = httptest.NewRequest(http.MethodGet, "/ws?userID=4", nil)
	id, err = InsecureAuthenticator{}.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "user4", id.Username)

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	_, err = InsecureAuthenticator{}.Authenticate(r)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}
