package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/toko-storefront/internal/obs"
)

// Cache stores JSON-encoded catalog responses in Redis. A nil Cache or one
// without a client is a no-op.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl, prefix: "catalog:"}
}

// GetJSON unmarshals a cached payload into dst and reports whether the key existed.
func (c *Cache) GetJSON(ctx context.Context, resource, key string, dst any) (bool, error) {
	if c == nil || c.client == nil || key == "" {
		return false, nil
	}
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			obs.IncCounter(obs.CatalogCacheTotal, resource, "miss")
			return false, nil
		}
		obs.IncCounter(obs.CatalogCacheTotal, resource, "error")
		return false, err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		obs.IncCounter(obs.CatalogCacheTotal, resource, "error")
		return false, err
	}
	obs.IncCounter(obs.CatalogCacheTotal, resource, "hit")
	return true, nil
}

// SetJSON serialises v as JSON and stores it with the configured TTL.
func (c *Cache) SetJSON(ctx context.Context, key string, v any) error {
	if c == nil || c.client == nil || key == "" {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.prefix+key, data, c.ttl).Err()
}

// digest shortens a normalised query into a fixed-length cache key suffix.
func digest(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:16])
}
