package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/county-health/internal/config"
	"github.com/iliyamo/county-health/internal/metrics"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func cacheConfig() config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  "route_query",
		Prefix:       "cache",
		MaxBodyBytes: 1 << 20,
	}
}

// countingServer answers GET /tables with the number of times the handler
// actually ran.
func countingServer(mw echo.MiddlewareFunc, status int) (*echo.Echo, *int) {
	calls := 0
	e := echo.New()
	e.GET("/tables", func(c echo.Context) error {
		calls++
		return c.JSON(status, echo.Map{"calls": calls})
	}, mw)
	return e, &calls
}

func serve(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestResponseCacheHitAndMiss(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(cacheConfig(), rdb, metrics.New())
	e, calls := countingServer(rc.Middleware(), http.StatusOK)

	first := serve(e, http.MethodGet, "/tables")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := serve(e, http.MethodGet, "/tables")
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get(echo.HeaderContentType))
	assert.Equal(t, 1, *calls)

	// A different query string is a different key.
	serve(e, http.MethodGet, "/tables?x=1")
	assert.Equal(t, 2, *calls)
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(cacheConfig(), rdb, nil)
	e, calls := countingServer(rc.Middleware(), http.StatusInternalServerError)

	serve(e, http.MethodGet, "/tables")
	serve(e, http.MethodGet, "/tables")
	assert.Equal(t, 2, *calls)
}

func TestResponseCacheInvalidate(t *testing.T) {
	mr, rdb := newRedis(t)
	require.NoError(t, mr.Set("unrelated", "keep"))
	rc := NewResponseCache(cacheConfig(), rdb, nil)
	e, calls := countingServer(rc.Middleware(), http.StatusOK)

	serve(e, http.MethodGet, "/tables")
	serve(e, http.MethodGet, "/tables?a=1")
	require.Equal(t, 2, *calls)

	n, err := rc.Invalidate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("unrelated"))

	rec := serve(e, http.MethodGet, "/tables")
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, 3, *calls)
}

func TestResponseCacheDisabled(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := cacheConfig()
	cfg.Enabled = false
	rc := NewResponseCache(cfg, rdb, nil)
	e, calls := countingServer(rc.Middleware(), http.StatusOK)

	rec := serve(e, http.MethodGet, "/tables")
	serve(e, http.MethodGet, "/tables")
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 2, *calls)

	n, err := NewResponseCache(cfg, nil, nil).Invalidate(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPayloadRoundTrip(t *testing.T) {
	hdr := http.Header{"Content-Type": {"application/json"}}
	bs, err := encodePayload(http.StatusOK, hdr, []byte(`{"a":1}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(bs)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, hdr, gotHdr)
	assert.Equal(t, `{"a":1}`, string(body))

	_, _, _, ok = decodePayload([]byte{0, 1})
	assert.False(t, ok)
}
