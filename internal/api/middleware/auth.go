package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/jobboard/server/internal/api/render"
	"github.com/jobboard/server/internal/auth"
	"github.com/jobboard/server/internal/metrics"
)

const (
	accessDeniedMessage = "Access Denied"
	invalidTokenMessage = "Invalid Token"
)

const userIDKey contextKey = "user_id"

// RequireAuth admits requests carrying a valid bearer token and stores the
// caller's id in the context. A missing header is 401; anything wrong with a
// supplied token is 400.
func RequireAuth(manager *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				metrics.AuthFailures.WithLabelValues("missing").Inc()
				render.Message(w, r, http.StatusUnauthorized, accessDeniedMessage, nil)
				return
			}

			token, err := auth.TokenFromHeader(header)
			if err != nil {
				metrics.AuthFailures.WithLabelValues("invalid").Inc()
				render.Message(w, r, http.StatusBadRequest, invalidTokenMessage, err)
				return
			}

			claims, err := manager.Validate(token)
			if err != nil {
				reason := "invalid"
				if errors.Is(err, auth.ErrExpiredToken) {
					reason = "expired"
				}
				metrics.AuthFailures.WithLabelValues(reason).Inc()
				render.Message(w, r, http.StatusBadRequest, invalidTokenMessage, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), claims.ID)))
		})
	}
}

func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the authenticated caller set by RequireAuth.
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}
