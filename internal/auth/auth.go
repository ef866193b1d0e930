// Package auth resolves the identity behind a websocket upgrade request.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hanabi-live/hanabi-server-go/internal/user"
)

// ErrUnauthenticated is returned when a request carries no usable credentials.
var ErrUnauthenticated = errors.New("unauthenticated")

// Authenticator maps an upgrade request to a user identity.
type Authenticator interface {
	Authenticate(r *http.Request) (user.Identity, error)
}

// Claims are the token claims issued by the login service.
type Claims struct {
	Username   string `json:"username"`
	Muted      bool   `json:"muted,omitempty"`
	Hyphenated bool   `json:"hyphenated,omitempty"`
	jwt.RegisteredClaims
}

// TokenAuthenticator validates HS256 tokens passed as a bearer header,
// a "token" cookie or a "token" query parameter.
type TokenAuthenticator struct {
	secret []byte
	issuer string
	parser *jwt.Parser
}

// NewTokenAuthenticator creates an authenticator. An empty issuer accepts
// tokens from any issuer.
func NewTokenAuthenticator(secret, issuer string) *TokenAuthenticator {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &TokenAuthenticator{
		secret: []byte(secret),
		issuer: issuer,
		parser: jwt.NewParser(opts...),
	}
}

// Authenticate validates the request's token.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (user.Identity, error) {
	raw := tokenFromRequest(r)
	if raw == "" {
		return user.Identity{}, ErrUnauthenticated
	}
	claims := &Claims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return user.Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	id, err := strconv.Atoi(claims.Subject)
	if err != nil || id <= 0 {
		return user.Identity{}, fmt.Errorf("%w: invalid subject %q", ErrUnauthenticated, claims.Subject)
	}
	if claims.Username == "" {
		return user.Identity{}, fmt.Errorf("%w: missing username", ErrUnauthenticated)
	}
	return user.Identity{
		UserID:     id,
		Username:   claims.Username,
		Muted:      claims.Muted,
		Hyphenated: claims.Hyphenated,
	}, nil
}

// Issue signs a token for identity. It is used by tooling and tests.
func (a *TokenAuthenticator) Issue(identity user.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username:   identity.Username,
		Muted:      identity.Muted,
		Hyphenated: identity.Hyphenated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.Itoa(identity.UserID),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func tokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	if c, err := r.Cookie("token"); err == nil && c.Value != "" {
		return c.Value
	}
	return r.URL.Query().Get("token")
}

// InsecureAuthenticator trusts the "userID" and "username" query parameters.
// It exists for local development only.
type InsecureAuthenticator struct{}

// Authenticate reads the identity from the query string.
func (InsecureAuthenticator) Authenticate(r *http.Request) (user.Identity, error) {
	q := r.URL.Query()
	id, err := strconv.Atoi(q.Get("userID"))
	if err != nil || id <= 0 {
		return user.Identity{}, fmt.Errorf("%w: userID query parameter required", ErrUnauthenticated)
	}
	name := q.Get("username")
	if name == "" {
		name = "user" + strconv.Itoa(id)
	}
	return user.Identity{UserID: id, Username: name}, nil
}
