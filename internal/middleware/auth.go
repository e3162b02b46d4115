package middleware

import (
	"context"
	"net/http"
	"strings"

	"escrowledger/internal/auth"
)

type contextKey string

const (
	userIDKey contextKey = "user_id"
	adminKey  contextKey = "admin"
)

func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok
}

func IsAdmin(ctx context.Context) bool {
	admin, _ := ctx.Value(adminKey).(bool)
	return admin
}

func contextWithClaims(ctx context.Context, claims auth.Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, claims.UserID)
	return context.WithValue(ctx, adminKey, claims.Admin)
}

// BearerToken extracts the token from the Authorization header, falling back
// to the token query parameter browsers must use for websocket upgrades.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return ""
		}
		return parts[1]
	}
	return r.URL.Query().Get("token")
}

func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" && r.URL.Query().Get("token") == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			token := BearerToken(r)
			if token == "" {
				http.Error(w, "invalid authorization header", http.StatusUnauthorized)
				return
			}
			claims, err := auth.ParseToken(secret, token)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(contextWithClaims(r.Context(), claims)))
		})
	}
}
