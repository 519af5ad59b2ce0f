package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// NewJWTHookVerifier returns a HookVerifier that requires a valid HS256
// bearer token signed with the shared secret. The host signs its hook
// deliveries with the same secret configured on both sides.
func NewJWTHookVerifier(secret string, logger *slog.Logger) HookVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	key := []byte(secret)

	return func(r *http.Request) error {
		raw := extractBearerToken(r)
		if raw == "" {
			return fmt.Errorf("missing bearer token")
		}

		token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil {
			logger.Debug("hook token rejected", "error", err)
			return fmt.Errorf("invalid token: %w", err)
		}
		if !token.Valid {
			return fmt.Errorf("invalid token")
		}
		return nil
	}
}

// extractBearerToken pulls the token out of the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
