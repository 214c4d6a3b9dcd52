package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/county-health/internal/config"
	"github.com/iliyamo/county-health/internal/metrics"
)

// captureWriter tees the response body into buf, up to limit bytes, while
// forwarding everything to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	size   int64
	limit  int64
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	switch {
	case cw.limit <= 0:
		cw.buf.Write(b)
	case cw.size < cw.limit:
		remain := cw.limit - cw.size
		if int64(len(b)) <= remain {
			cw.buf.Write(b)
		} else {
			cw.buf.Write(b[:remain])
		}
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// ResponseCache stores successful responses in Redis.  Entries are keyed
// under Prefix so Invalidate can drop all of them after an ingest.
type ResponseCache struct {
	cfg     config.CacheConfig
	rdb     *redis.Client
	metrics *metrics.Manager
}

// NewResponseCache returns a cache over rdb.  A nil client or a disabled
// config yields a cache whose middleware passes every request through.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, m *metrics.Manager) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "cache"
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, metrics: m}
}

func (rc *ResponseCache) enabled() bool { return rc.cfg.Enabled && rc.rdb != nil }

// Key builds the cache key for a request.  The route and query are hashed so
// keys stay short whatever the client sends.
func (rc *ResponseCache) Key(c echo.Context) string {
	r := c.Request()
	route := c.Path()
	query := r.URL.RawQuery

	var parts []string
	switch strings.ToLower(rc.cfg.KeyStrategy) {
	case "route":
		parts = []string{"route", route}
	case "method_route":
		parts = []string{"method", r.Method, "route", route}
	case "method_route_query":
		parts = []string{"method", r.Method, "route", route, "q", query}
	default: // route_query
		parts = []string{"route", route, "q", query}
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", rc.cfg.Prefix, sum[:])
}

// Middleware serves cached responses with X-Cache: HIT and records 200
// responses of the configured methods on a miss.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.enabled() {
		return passThrough
	}
	maxBody := int64(rc.cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !rc.cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := rc.Key(c)

			if bs, err := rc.rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodePayload(bs); ok {
					rc.metrics.ObserveCache(true)
					for k, vals := range hdr {
						if strings.EqualFold(k, echo.HeaderContentLength) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}
			rc.metrics.ObserveCache(false)

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			// Truncated bodies are never stored.
			if cw.status != http.StatusOK || (maxBody > 0 && cw.size > maxBody) {
				return nil
			}
			hdr := c.Response().Header().Clone()
			hdr.Del("X-Cache")
			payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			if err := rc.rdb.SetEx(context.WithoutCancel(ctx), key, payload, rc.cfg.TTL).Err(); err != nil {
				c.Logger().Warnf("cache: store %s: %v", key, err)
			}
			return nil
		}
	}
}

// Invalidate deletes every entry under the cache prefix and returns how many
// keys were removed.
func (rc *ResponseCache) Invalidate(ctx context.Context) (int, error) {
	if rc.rdb == nil {
		return 0, nil
	}
	var (
		cursor  uint64
		removed int
	)
	for {
		keys, next, err := rc.rdb.Scan(ctx, cursor, rc.cfg.Prefix+":*", 200).Result()
		if err != nil {
			return removed, err
		}
		if len(keys) > 0 {
			n, err := rc.rdb.Del(ctx, keys...).Result()
			if err != nil {
				return removed, err
			}
			removed += int(n)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	rc.metrics.ObserveInvalidation()
	return removed, nil
}

// encodePayload packs [4 bytes status][4 bytes header length][header JSON][body].
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdrJSON)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }
