// Package access provides authentication middleware and token issuing.
package access

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/gorilla/mux"

	"github.com/trackww/backend/core/logger"
)

// contextKey is the type for context keys. Go linter does not like plain strings
type contextKey string

const contextKeyIdentity contextKey = "_identity_"

// IdentityFromContext returns the authenticated user identity, or an empty
// string for unauthenticated requests.
func IdentityFromContext(ctx context.Context) string {
	identity, _ := ctx.Value(contextKeyIdentity).(string)
	return identity
}

// ContextWithIdentity returns a new context carrying the identity.
func ContextWithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, contextKeyIdentity, identity)
}

// Claims are the token claims issued by this service.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// IssueToken creates a signed HS256 token for the given user.
func IssueToken(secret []byte, userID string, validity time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validity)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseToken validates the token string and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// NewJwtMiddleware returns a middleware handler to validate JWT bearer
// tokens. Tokens are accepted as "Authorization: Bearer" header. The
// middleware only authenticates; authorization policy is up to the caller.
func NewJwtMiddleware(secret []byte) mux.MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if identity := IdentityFromContext(r.Context()); identity != "" {
				h.ServeHTTP(w, r)
				return
			}

			rlog := logger.FromContext(r.Context())

			bearer := r.Header.Get("Authorization")
			if len(bearer) < 8 || !strings.EqualFold(bearer[:7], "bearer ") {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}
			claims, err := ParseToken(secret, bearer[7:])
			if err != nil {
				rlog.WithError(err).Debugln("token rejected")
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := ContextWithIdentity(r.Context(), claims.UserID)
			ctx, _ = logger.ContextWithLoggerIdentity(ctx, claims.UserID)
			h.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
