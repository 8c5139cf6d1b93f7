package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"freightdesk/pkg/requestcontext"
)

// HeaderOperatorID names the operator acting through a scanner or console.
// Authentication happens upstream; the value is recorded for audit only.
const HeaderOperatorID = "X-Operator-ID"

const maxOperatorIDLength = 64

// ClientMetadata records the client IP, the operator id and a device
// description in the request context for audit trails.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientIP(r.Context(), ClientIPFromRequest(r))
		if op := strings.TrimSpace(r.Header.Get(HeaderOperatorID)); op != "" && len(op) <= maxOperatorIDLength {
			ctx = requestcontext.WithOperatorID(ctx, op)
		}
		if device := DescribeDevice(r.Header.Get("User-Agent")); device != "" {
			ctx = requestcontext.WithDevice(ctx, device)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeDevice condenses a User-Agent into "<browser> on <os>". Handheld
// scanners usually report a mobile browser; bots and empty agents yield "".
func DescribeDevice(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	ua := useragent.New(raw)
	if ua.Bot() {
		return ""
	}
	browser, _ := ua.Browser()
	os := ua.OS()
	switch {
	case browser == "" && os == "":
		return ""
	case os == "":
		return browser
	case browser == "":
		return os
	}
	device := browser + " on " + os
	if ua.Mobile() {
		device += " (mobile)"
	}
	return device
}

// ClientIPFromRequest extracts the client IP, preferring proxy headers.
func ClientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// the first entry is the original client
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return addr[:idx]
		}
		return addr
	}
	return "unknown"
}
