package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"partnerledger/storage/sqlstore"
)

func TestRateLimiterThrottlesPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerMinute: 60, Burst: 2})
	fixed := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	limiter.clockNow = func() time.Time { return fixed }
	handler := limiter.Middleware("test")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusOK, serve("10.0.0.1"))
	require.Equal(t, http.StatusOK, serve("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, serve("10.0.0.1"))
	require.Equal(t, http.StatusOK, serve("10.0.0.2"))

	fixed = fixed.Add(time.Second)
	require.Equal(t, http.StatusOK, serve("10.0.0.1"))
}

func TestClientIDPrefersForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	require.Equal(t, "192.0.2.1", clientID(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	require.Equal(t, "203.0.113.9", clientID(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	require.Equal(t, "198.51.100.7", clientID(req))
}

func newIdempotencyHandler(t *testing.T, calls *int32, status int) http.Handler {
	t.Helper()
	db, err := sqlstore.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), true)
	require.NoError(t, err)
	require.NoError(t, sqlstore.AutoMigrate(db))
	return Idempotency(db)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(calls, 1)
		require.Equal(t, "key-1", KeyFromContext(r.Context()))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"call":%d}`, n)
	}))
}

func post(handler http.Handler, path, key string) *httptest.ResponseRecorder {
	return postBody(handler, path, key, `{}`)
}

func postBody(handler http.Handler, path, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	var calls int32
	handler := newIdempotencyHandler(t, &calls, http.StatusCreated)

	first := post(handler, "/v1/withdrawals", "key-1")
	require.Equal(t, http.StatusCreated, first.Code)
	second := post(handler, "/v1/withdrawals", "key-1")
	require.Equal(t, http.StatusCreated, second.Code)
	require.Equal(t, "true", second.Header().Get("Idempotent-Replay"))
	require.JSONEq(t, `{"call":1}`, second.Body.String())
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))

	mismatch := post(handler, "/v1/checkout/spend", "key-1")
	require.Equal(t, http.StatusUnprocessableEntity, mismatch.Code)

	tooLong := post(handler, "/v1/withdrawals", strings.Repeat("k", 129))
	require.Equal(t, http.StatusBadRequest, tooLong.Code)
}

func TestIdempotencyRejectsDifferentBody(t *testing.T) {
	var calls int32
	handler := newIdempotencyHandler(t, &calls, http.StatusCreated)

	first := postBody(handler, "/v1/checkout/spend", "key-1", `{"user_id":"u1","amount":100}`)
	require.Equal(t, http.StatusCreated, first.Code)
	other := postBody(handler, "/v1/checkout/spend", "key-1", `{"user_id":"u2","amount":100}`)
	require.Equal(t, http.StatusUnprocessableEntity, other.Code)
	require.Empty(t, other.Header().Get("Idempotent-Replay"))
	same := postBody(handler, "/v1/checkout/spend", "key-1", `{"user_id":"u1","amount":100}`)
	require.Equal(t, "true", same.Header().Get("Idempotent-Replay"))
	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestIdempotencySkipsAuthFailures(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		var calls int32
		handler := newIdempotencyHandler(t, &calls, status)
		post(handler, "/v1/withdrawals", "key-1")
		post(handler, "/v1/withdrawals", "key-1")
		require.EqualValues(t, 2, atomic.LoadInt32(&calls), "status %d", status)
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	var calls int32
	handler := newIdempotencyHandler(t, &calls, http.StatusInternalServerError)

	post(handler, "/v1/withdrawals", "key-1")
	post(handler, "/v1/withdrawals", "key-1")
	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
}
