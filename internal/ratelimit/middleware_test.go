package ratelimit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-storefront/internal/session"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil))
	return rr
}

func TestHandlerEnforcesLimitWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := NewFixed(client, "ratelimit")
	require.NoError(t, err)
	h := Handler{
		Limiter: lim,
		Config:  Config{Key: func(*http.Request) string { return "static" }, Window: time.Minute, Max: 1},
	}.Middleware(okHandler())

	require.Equal(t, http.StatusOK, serve(h).Code)
	rr := serve(h)
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Equal(t, "1", rr.Header().Get("X-RateLimit-Limit"))
	require.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	require.Contains(t, rr.Body.String(), "RATE_LIMITED")
}

func TestFixedMemoryStore(t *testing.T) {
	lim, err := NewFixed(nil, "test")
	require.NoError(t, err)
	ctx := context.Background()

	allowed, remaining, _, err := lim.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
	require.Equal(t, 1, remaining)

	_, _, _, err = lim.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	allowed, _, _, err = lim.Allow(ctx, "k", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)

	allowed, _, _, err = lim.Allow(ctx, "other", time.Minute, 2)
	require.NoError(t, err)
	require.True(t, allowed)
}

func TestSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	lim := Sliding{Client: client, Prefix: "test:"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, _, err := lim.Allow(ctx, "key", time.Minute, 2)
		require.NoError(t, err)
		require.True(t, allowed)
	}
	allowed, remaining, _, err := lim.Allow(ctx, "key", time.Minute, 2)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Zero(t, remaining)
}

func TestHandlerFailsOpen(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0", MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	var buf bytes.Buffer
	h := Handler{
		Limiter: Sliding{Client: client},
		Config:  Config{Key: func(*http.Request) string { return "err" }, Window: time.Second, Max: 1},
		Logger:  zerolog.New(&buf),
	}.Middleware(okHandler())

	require.Equal(t, http.StatusOK, serve(h).Code)
	require.Contains(t, buf.String(), "ratelimit_unavailable")
}

func TestBySession(t *testing.T) {
	key := BySession("cart")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:5555"
	require.Equal(t, "cart:ip:192.0.2.7", key(req))

	req = req.WithContext(session.WithID(req.Context(), "abc"))
	require.Equal(t, "cart:s:abc", key(req))
}
