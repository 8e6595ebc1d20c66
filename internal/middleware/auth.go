package middleware

import (
	"net/http"

	"pizzeria-be/internal/auth"
	"pizzeria-be/internal/logger"
	"pizzeria-be/internal/utils"

	"go.uber.org/zap"
)

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// RequireAdmin rejects requests without a bearer token (401) or with an
// invalid, expired or non-admin one (403).
func RequireAdmin(tokens TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				utils.WriteJSONError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := tokens.Parse(tokenStr)
			if err != nil || claims.Role != auth.RoleAdmin {
				logger.FromCtx(r.Context()).Warn("rejected bearer token",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				utils.WriteJSONError(w, "forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithClaims(r.Context(), claims)))
		})
	}
}
