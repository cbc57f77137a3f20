package store

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// OpenRedis returns a client for addr and the result of a first ping. addr is
// either host:port or a redis:// URL carrying credentials and a db number.
// The client is usable even when the ping fails; callers decide whether an
// unreachable redis is fatal.
func OpenRedis(ctx context.Context, addr string) (*redis.Client, error) {
	opts, err := redisOptions(addr)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	return client, client.Ping(ctx).Err()
}

// redisOptions applies short timeouts. BRPOP callers pass their own block
// timeout, so ReadTimeout only bounds ordinary commands.
func redisOptions(addr string) (*redis.Options, error) {
	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		var err error
		if opts, err = redis.ParseURL(addr); err != nil {
			return nil, err
		}
	}
	opts.DialTimeout = 2 * time.Second
	opts.ReadTimeout = time.Second
	opts.WriteTimeout = time.Second
	return opts, nil
}

// RedisHealthy adapts a client to the health check signature used by /healthz.
func RedisHealthy(client *redis.Client) func(context.Context) bool {
	return func(ctx context.Context) bool {
		return client.Ping(ctx).Err() == nil
	}
}
