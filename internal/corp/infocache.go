package corp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// InfoCache is the secondary redis cache of public corporation info, shared
// by all processes and explicitly invalidated on membership changes.
type InfoCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInfoCache constructs an InfoCache.
func NewInfoCache(client *redis.Client, ttl time.Duration) *InfoCache {
	return &InfoCache{client: client, ttl: ttl}
}

func infoKey(corporationID int64) string {
	return fmt.Sprintf("corp:info:%d", corporationID)
}

// Get returns the cached info, or ok=false on a miss.
func (c *InfoCache) Get(ctx context.Context, corporationID int64) (Info, bool, error) {
	data, err := c.client.Get(ctx, infoKey(corporationID)).Bytes()
	if err == redis.Nil {
		return Info{}, false, nil
	}
	if err != nil {
		return Info{}, false, fmt.Errorf("corp: info cache get: %w", err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, false, fmt.Errorf("corp: info cache decode: %w", err)
	}
	return info, true, nil
}

// Set stores the info snapshot.
func (c *InfoCache) Set(ctx context.Context, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("corp: info cache encode: %w", err)
	}
	if err := c.client.Set(ctx, infoKey(info.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("corp: info cache set: %w", err)
	}
	return nil
}

// InfoSourcePort loads the snapshot from the store on a cache miss.
type InfoSourcePort interface {
	GetInfo(ctx context.Context, corporationID int64) (Info, error)
}

// InfoReader is the read-through view over the info cache.
type InfoReader struct {
	cache  *InfoCache
	source InfoSourcePort
}

// NewInfoReader constructs an InfoReader.
func NewInfoReader(cache *InfoCache, source InfoSourcePort) *InfoReader {
	return &InfoReader{cache: cache, source: source}
}

// Info returns the public snapshot, populating the cache on a miss. Cache
// errors degrade to a store read rather than failing the request.
func (r *InfoReader) Info(ctx context.Context, corporationID int64) (Info, error) {
	info, ok, err := r.cache.Get(ctx, corporationID)
	if err == nil && ok {
		return info, nil
	}
	info, err = r.source.GetInfo(ctx, corporationID)
	if err != nil {
		return Info{}, err
	}
	_ = r.cache.Set(ctx, info)
	return info, nil
}

// Invalidate drops cached entries for the given corporations.
func (c *InfoCache) Invalidate(ctx context.Context, corporationIDs ...int64) error {
	if len(corporationIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(corporationIDs))
	for _, id := range corporationIDs {
		if id != 0 {
			keys = append(keys, infoKey(id))
		}
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("corp: info cache invalidate: %w", err)
	}
	return nil
}
