// Package requesttime pins one "now" per HTTP request so every timestamp a
// request writes (container transitions, marks, payments) agrees.
package requesttime

import (
	"net/http"
	"time"

	"freightdesk/pkg/requestcontext"
)

// HeaderScannedAt lets handheld scanners that queued work while offline
// replay it with the original capture time (RFC 3339).
const HeaderScannedAt = "X-Scanned-At"

// MaxReplayAge bounds how far back a replayed capture time may reach.
const MaxReplayAge = 24 * time.Hour

// Middleware captures the request time in UTC. A valid X-Scanned-At in the
// past MaxReplayAge replaces the server clock; anything else is ignored.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()
		if scanned, ok := scannedAt(r, now); ok {
			now = scanned
		}
		ctx := requestcontext.WithTime(r.Context(), now)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func scannedAt(r *http.Request, now time.Time) (time.Time, bool) {
	raw := r.Header.Get(HeaderScannedAt)
	if raw == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	t = t.UTC()
	if t.After(now) || now.Sub(t) > MaxReplayAge {
		return time.Time{}, false
	}
	return t, true
}
