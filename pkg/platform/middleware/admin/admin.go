package admin

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"freightdesk/pkg/platform/httputil"
	"freightdesk/pkg/requestcontext"
)

const HeaderAdminToken = "X-Admin-Token"

// RequireAdminToken guards administrative routes (deleting containers,
// forcing closes). expected is either the token itself or its bcrypt hash.
func RequireAdminToken(expected string, logger *slog.Logger) func(http.Handler) http.Handler {
	hashed := strings.HasPrefix(expected, "$2a$") || strings.HasPrefix(expected, "$2b$") || strings.HasPrefix(expected, "$2y$")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get(HeaderAdminToken)
			if token == "" || !matches(token, expected, hashed) {
				ctx := r.Context()
				logger.WarnContext(ctx, "admin token mismatch",
					"request_id", requestcontext.RequestID(ctx),
					"client_ip", requestcontext.ClientIP(ctx),
				)
				httputil.WriteJSON(w, http.StatusUnauthorized, httputil.ErrorResponse{
					Error:       "unauthorized",
					Description: "admin token required",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func matches(token, expected string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(expected), []byte(token)) == nil
	}
	// constant time to avoid leaking the token through response timing
	return subtle.ConstantTimeCompare([]byte(token), []byte(expected)) == 1
}
