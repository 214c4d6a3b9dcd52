package config

// Redis backs the response cache and the rate limiter.  Both degrade to
// pass-through middleware when NewRedisClient returns nil, so the service runs
// without Redis.

import (
	"context"
	"crypto/tls"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for Redis.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadRedisConfig reads:
//   REDIS_ENABLED – set to false to skip Redis entirely (default true)
//   REDIS_HOST and REDIS_PORT – hostname and port of the Redis server
//   REDIS_ADDR – host:port shorthand, used when host/port are not both set
//   REDIS_PASSWORD – optional password
//   REDIS_DB – database number (default 0)
//   REDIS_TLS – enable TLS when "true" or "1"
func LoadRedisConfig() RedisConfig {
	host := os.Getenv("REDIS_HOST")
	port := os.Getenv("REDIS_PORT")
	addr := os.Getenv("REDIS_ADDR")
	if host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Enabled:  envBool("REDIS_ENABLED", true),
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       envInt("REDIS_DB", 0),
		TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
	}
}

// NewRedisClient connects with the given settings and pings the server with
// a short timeout.  The returned client is nil when Redis is disabled or
// unreachable.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	if !cfg.Enabled {
		return nil
	}
	var tlsConf *tls.Config
	if cfg.TLS {
		tlsConf = &tls.Config{InsecureSkipVerify: true}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      cfg.Addr,
		Password:  cfg.Password,
		DB:        cfg.DB,
		TLSConfig: tlsConf,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}
