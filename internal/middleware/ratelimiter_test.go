package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func limitedHandler(limiter *ClientLimiter) http.Handler {
	return RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func doRequest(h http.Handler, path, remoteAddr string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = remoteAddr
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimit_BurstExceeded(t *testing.T) {
	h := limitedHandler(NewClientLimiter(rate.Limit(1), 2))

	assert.Equal(t, http.StatusOK, doRequest(h, "/api/user/balance", "10.0.0.1:5000"))
	assert.Equal(t, http.StatusOK, doRequest(h, "/api/user/balance", "10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "/api/user/balance", "10.0.0.1:5000"))
}

func TestRateLimit_ClientsHaveSeparateBuckets(t *testing.T) {
	h := limitedHandler(NewClientLimiter(rate.Limit(1), 1))

	assert.Equal(t, http.StatusOK, doRequest(h, "/api/user/balance", "10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "/api/user/balance", "10.0.0.1:5001"))

	// Different IP, untouched bucket.
	assert.Equal(t, http.StatusOK, doRequest(h, "/api/user/balance", "10.0.0.2:5000"))
}

func TestRateLimit_AuthenticatedUserKeyedByID(t *testing.T) {
	h := limitedHandler(NewClientLimiter(rate.Limit(1), 1))

	authedRequest := func(userID int64, remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/user/balance", nil)
		req.RemoteAddr = remoteAddr
		req = req.WithContext(context.WithValue(req.Context(), UserIDKey, userID))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	// Same user from two addresses shares one bucket.
	assert.Equal(t, http.StatusOK, authedRequest(1, "10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, authedRequest(1, "10.0.0.2:5000"))

	// Another user is unaffected.
	assert.Equal(t, http.StatusOK, authedRequest(2, "10.0.0.1:5000"))
}

func TestRateLimit_ExemptPathNeverShed(t *testing.T) {
	limiter := NewClientLimiter(rate.Limit(1), 1).Exempt("/api/payments/callback")
	h := limitedHandler(limiter)

	// Webhook retries arrive in bursts from one provider address; none of
	// them may be dropped.
	for i := 0; i < 10; i++ {
		assert.Equal(t, http.StatusOK, doRequest(h, "/api/payments/callback", "10.0.0.9:5000"))
	}

	// The same address is still limited on ordinary routes.
	assert.Equal(t, http.StatusOK, doRequest(h, "/api/user/balance", "10.0.0.9:5000"))
	assert.Equal(t, http.StatusTooManyRequests, doRequest(h, "/api/user/balance", "10.0.0.9:5000"))
}
