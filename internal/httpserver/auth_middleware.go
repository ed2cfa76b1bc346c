package httpserver

import (
	"context"
	"net/http"
	"strings"

	"chatcore/internal/security"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a new context carrying the verified user identity.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, identityKey, userID)
}

// Identity extracts the verified user identity from the request context.
func Identity(r *http.Request) string {
	if v := r.Context().Value(identityKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// AuthMiddleware validates the Bearer token and attaches the verified
// identity to the context. It is the same gate as the channel handshake.
func AuthMiddleware(tokens *security.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			tokenStr := strings.TrimSpace(authHeader[len("Bearer "):])

			userID, err := tokens.Verify(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), userID)))
		})
	}
}
