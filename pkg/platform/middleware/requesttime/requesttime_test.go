package requesttime

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"freightdesk/pkg/requestcontext"
)

func TestMiddlewarePinsUTCTime(t *testing.T) {
	var first, second time.Time
	var ok bool
	h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		first, ok = requestcontext.Time(r.Context())
		second = requestcontext.Now(r.Context())
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok)
	assert.Equal(t, first, second)
	assert.Equal(t, time.UTC, first.Location())
}

func TestScannedAtReplay(t *testing.T) {
	capture := func(header string) time.Time {
		var got time.Time
		h := Middleware(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			got = requestcontext.Now(r.Context())
		}))
		r := httptest.NewRequest(http.MethodPost, "/invoices/INV-1/items/mark", nil)
		if header != "" {
			r.Header.Set(HeaderScannedAt, header)
		}
		h.ServeHTTP(httptest.NewRecorder(), r)
		return got
	}

	recent := time.Now().Add(-2 * time.Hour).Truncate(time.Second).UTC()
	assert.Equal(t, recent, capture(recent.Format(time.RFC3339)))

	stale := time.Now().Add(-48 * time.Hour)
	assert.WithinDuration(t, time.Now(), capture(stale.Format(time.RFC3339)), time.Minute)

	future := time.Now().Add(time.Hour)
	assert.WithinDuration(t, time.Now(), capture(future.Format(time.RFC3339)), time.Minute)

	assert.WithinDuration(t, time.Now(), capture("yesterday"), time.Minute)
}
