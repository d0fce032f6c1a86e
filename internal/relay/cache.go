package relay

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

// ProbeCache remembers recent reachability probe results per relay URL so
// rapid URL edits do not hammer the server. Optional: a nil cache disables
// caching.
type ProbeCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProbeCache(client *redis.Client, ttl time.Duration) *ProbeCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ProbeCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *ProbeCache) Close() error {
	return c.client.Close()
}

// Get returns the cached probe result for url, and whether one was present.
func (c *ProbeCache) Get(ctx context.Context, url string) (bool, bool) {
	val, err := c.client.Get(ctx, probeKey(url)).Result()
	if err != nil {
		return false, false
	}
	return val == "1", true
}

// Put stores a probe result for url with the configured TTL.
func (c *ProbeCache) Put(ctx context.Context, url string, reachable bool) error {
	val := "0"
	if reachable {
		val = "1"
	}
	return c.client.SetEX(ctx, probeKey(url), val, c.ttl).Err()
}

func probeKey(url string) string {
	return "relay:probe:" + url
}
