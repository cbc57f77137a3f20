package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// SummaryCache stores computed summaries per day.
type SummaryCache interface {
	Get(ctx context.Context, day string) (Summary, bool, error)
	Set(ctx context.Context, s Summary) error
	Invalidate(ctx context.Context, day string) error
}

// RedisSummaryCache keeps summaries as JSON strings with a TTL.
type RedisSummaryCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSummaryCache builds a cache under keys prefix+day.
func NewRedisSummaryCache(client *redis.Client, ttl time.Duration) *RedisSummaryCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisSummaryCache{client: client, prefix: "rollcall:summary:", ttl: ttl}
}

// Get returns the cached summary for day, if any.
func (c *RedisSummaryCache) Get(ctx context.Context, day string) (Summary, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+day).Bytes()
	if errors.Is(err, redis.Nil) {
		return Summary{}, false, nil
	}
	if err != nil {
		return Summary{}, false, err
	}
	var s Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		return Summary{}, false, err
	}
	return s, true, nil
}

// Set stores s under its day.
func (c *RedisSummaryCache) Set(ctx context.Context, s Summary) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+s.Day, raw, c.ttl).Err()
}

// Invalidate drops the cached summary for day.
func (c *RedisSummaryCache) Invalidate(ctx context.Context, day string) error {
	return c.client.Del(ctx, c.prefix+day).Err()
}
