package auth

import (
	"net/http"
	"strings"
)

// ExtractAccessToken finds the bearer credential on a request. Browsers cannot
// set headers on a WebSocket handshake, so the query string is the last resort.
func ExtractAccessToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}

	if cookie, err := r.Cookie("access_token"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	return r.URL.Query().Get("token")
}
