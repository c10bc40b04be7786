// Package auth verifies the bearer tokens that identify users of the HTTP API.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// DefaultTokenLifetime is used by Issue when no lifetime is given.
const DefaultTokenLifetime = 24 * time.Hour

// RoleAdmin grants access to the admin endpoints.
const RoleAdmin = "admin"

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
	ErrDisabled     = errors.New("authentication is not configured")
)

// Claims is the JWT payload; the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Identity is the verified caller.
type Identity struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Role   string `json:"role,omitempty"`
	Admin  bool   `json:"admin"`
}

// Authenticator signs and verifies HS256 tokens.
type Authenticator struct {
	secret     []byte
	adminEmail string
}

// New returns an Authenticator. An empty secret disables verification.
func New(secret, adminEmail string) *Authenticator {
	return &Authenticator{secret: []byte(secret), adminEmail: strings.ToLower(strings.TrimSpace(adminEmail))}
}

// Enabled reports whether a signing secret is configured.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Issue signs a token for id valid for ttl.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	if id.UserID == "" {
		return "", errors.New("user id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenLifetime
	}
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		Email: id.Email,
		Role:  id.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a token.
func (a *Authenticator) Verify(token string) (Identity, error) {
	if !a.Enabled() {
		return Identity{}, ErrDisabled
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		var verr *jwt.ValidationError
		if errors.As(err, &verr) && verr.Errors&jwt.ValidationErrorExpired != 0 {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Identity{}, ErrInvalidToken
	}
	id := Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}
	id.Admin = claims.Role == RoleAdmin || (a.adminEmail != "" && strings.EqualFold(claims.Email, a.adminEmail))
	return id, nil
}

// BearerToken extracts the token of an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, error) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// FromRequest verifies the bearer token of r.
func (a *Authenticator) FromRequest(r *http.Request) (Identity, error) {
	token, err := BearerToken(r)
	if err != nil {
		return Identity{}, err
	}
	return a.Verify(token)
}

type ctxKey struct{}

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
