// Package auth resolves the calling user of an API request, either from an
// HS256 bearer token or, when no secret is configured, from the X-User-ID
// header.
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

	"zetafin/internal/log"
)

type contextKey struct{}

// UserIDHeader identifies the caller in development mode.
const UserIDHeader = "X-User-ID"

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenInvalid       = errors.New("token invalid")
)

// Claims carries the user id in the standard subject claim.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies callers. The zero secret disables token checks.
type Authenticator struct {
	secret []byte
	issuer string
	logger *log.Logger
}

func New(secret, issuer string) *Authenticator {
	return &Authenticator{
		secret: []byte(secret),
		issuer: issuer,
		logger: log.Default(log.ComponentAuth),
	}
}

// TokenMode reports whether bearer tokens are required.
func (a *Authenticator) TokenMode() bool {
	return len(a.secret) > 0
}

// IssueToken signs a token for userID valid for ttl.
func (a *Authenticator) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if !a.TokenMode() {
		return "", errors.New("no signing secret configured")
	}
	now := time.Now()
	claims := Claims{jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    a.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *Authenticator) keyFunc(t *jwt.Token) (any, error) {
	if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
	return a.secret, nil
}

// ParseToken validates token and returns its subject as a user id.
func (a *Authenticator) ParseToken(token string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, a.keyFunc)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return uuid.Nil, ErrTokenExpired
		}
		return uuid.Nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return uuid.Nil, ErrTokenInvalid
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return uuid.Nil, ErrTokenInvalid
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrTokenInvalid
	}
	return id, nil
}

// Authenticate returns the caller of r.
func (a *Authenticator) Authenticate(r *http.Request) (uuid.UUID, error) {
	if !a.TokenMode() {
		raw := strings.TrimSpace(r.Header.Get(UserIDHeader))
		if raw == "" {
			return uuid.Nil, ErrMissingCredentials
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, ErrTokenInvalid
		}
		return id, nil
	}

	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return uuid.Nil, ErrMissingCredentials
	}
	return a.ParseToken(strings.TrimSpace(token))
}

// Middleware rejects unauthenticated requests through onFail and stores the
// caller's id in the request context otherwise.
func (a *Authenticator) Middleware(onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := a.Authenticate(r)
			if err != nil {
				log.FromContext(r.Context()).WarnContext(r.Context(), "Authentication failed",
					log.FieldPath, r.URL.Path, "reason", err)
				if onFail != nil {
					onFail(w, r, err)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}

			ctx := WithUserID(r.Context(), userID)
			ctx = context.WithValue(ctx, log.LoggerContextKey, log.FromContext(ctx).With(log.FieldUserID, userID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func WithUserID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// UserIDFrom returns the authenticated caller stored by Middleware.
func UserIDFrom(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(contextKey{}).(uuid.UUID)
	return id, ok
}
