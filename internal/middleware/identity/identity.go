// Package identity resolves the signed-in user of a request from an HS256
// bearer token, or from a plain header in development.
package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	applog "faturas/internal/log"
)

// DevHeader carries the user id when development identity is enabled.
const DevHeader = "X-User-ID"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

type contextKey struct{}

// Config selects how users are identified. At least one of Secret and
// DevHeader must be set.
type Config struct {
	Secret    []byte
	DevHeader bool
	Leeway    time.Duration
}

// Authenticator verifies requests and stores the user id in their context.
type Authenticator struct {
	secret    []byte
	devHeader bool
	parser    *jwt.Parser
}

func NewAuthenticator(cfg Config) *Authenticator {
	leeway := cfg.Leeway
	if leeway == 0 {
		leeway = 30 * time.Second
	}
	return &Authenticator{
		secret:    cfg.Secret,
		devHeader: cfg.DevHeader,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(leeway),
		),
	}
}

// UserID resolves the caller of r.
func (a *Authenticator) UserID(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" && len(a.secret) > 0 {
		raw, ok := strings.CutPrefix(auth, "Bearer ")
		if !ok {
			return "", fmt.Errorf("%w: expected bearer scheme", ErrInvalidToken)
		}
		return a.verify(strings.TrimSpace(raw))
	}
	if a.devHeader {
		if id := strings.TrimSpace(r.Header.Get(DevHeader)); id != "" {
			return id, nil
		}
	}
	return "", ErrMissingCredentials
}

func (a *Authenticator) verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Issue signs a token for userID valid for ttl. Used by tests and local tooling.
func (a *Authenticator) Issue(userID string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Middleware rejects unidentified requests through onFail and adds the user
// id to the context and the request logger otherwise.
func (a *Authenticator) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.UserID(r)
			if err != nil {
				applog.FromContext(r.Context()).WarnContext(r.Context(), "Request not authenticated",
					applog.NewFields().WithError(err, applog.ErrorTypeAuth).ToSlice()...)
				if onFail != nil {
					onFail(w, r, err)
				} else {
					http.Error(w, "unauthorized", http.StatusUnauthorized)
				}
				return
			}
			ctx := NewContext(r.Context(), userID)
			ctx = applog.Enrich(ctx, applog.NewFields().WithUserID(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func NewContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// FromContext returns the user id stored by the middleware.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}
