package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/portfolio-tracker/internal/service"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// TokenParser verifies bearer tokens
type TokenParser interface {
	ParseToken(token string) (*service.Claims, error)
}

// AuthMiddleware verifies the Authorization bearer token and stashes the
// authenticated identity on the request context.
func AuthMiddleware(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Missing bearer token", nil)
				return
			}

			claims, err := parser.ParseToken(token)
			if err != nil {
				respondError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "Invalid or expired token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
			ctx = context.WithValue(ctx, usernameKey, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// userID returns the authenticated user's ID from the request context
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}
