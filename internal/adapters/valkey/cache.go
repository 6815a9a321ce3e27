package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// keyspace prefixes every key so the instance can be shared with other
// services without collisions.
const keyspace = "oficios:"

// clientCacheTTL bounds how long a hot read is served from the client-side
// cache before revalidating against the server.
const clientCacheTTL = 5 * time.Second

// Cache implements ports.CacheService over Valkey. It backs the
// visible-request projections served by MatchService; reads go through
// valkey-go's server-assisted client-side cache, so repeated feed loads for
// the same provider don't round-trip while the entry is fresh.
type Cache struct {
	client valkey.Client
}

// New connects to the Valkey instance at addr.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client}, nil
}

// Get retrieves a value by key, served from the client-side cache when the
// server hasn't invalidated it.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	resp := c.client.DoCache(ctx, c.client.B().Get().Key(keyspace+key).Cache(), clientCacheTTL)
	if err := resp.Error(); err != nil {
		return nil, err
	}
	return resp.AsBytes()
}

// Set stores a value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	ttl := time.Duration(ttlSeconds) * time.Second
	return c.client.Do(ctx,
		c.client.B().Set().Key(keyspace+key).Value(valkey.BinaryString(value)).Ex(ttl).Build(),
	).Error()
}

// Delete removes a key. The server-assisted invalidation protocol evicts it
// from every client-side cache as a side effect.
func (c *Cache) Delete(ctx context.Context, key string) error {
	return c.client.Do(ctx, c.client.B().Del().Key(keyspace+key).Build()).Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}
