package memory

import (
	"context"
	"encoding/json"
	"time"

	"voice2note-be/internal/pkg/logger"
	"voice2note-be/internal/tenant"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultLocalTTL  = time.Minute
	DefaultSharedTTL = 10 * time.Minute
)

// NoteCache is a two-level read-through cache for note details: a process-local go-cache
// in front of an optional shared Redis. Entries are JSON so both levels hold the same bytes.
// Cache failures are logged and reported as misses.
type NoteCache struct {
	local     *cache.Cache
	rdb       *redis.Client
	sharedTTL time.Duration
	logger    logger.ILogger
}

func NewNoteCache(rdb *redis.Client, localTTL, sharedTTL time.Duration, log logger.ILogger) *NoteCache {
	if localTTL <= 0 {
		localTTL = DefaultLocalTTL
	}
	if sharedTTL <= 0 {
		sharedTTL = DefaultSharedTTL
	}
	return &NoteCache{
		local:     cache.New(localTTL, 2*localTTL),
		rdb:       rdb,
		sharedTTL: sharedTTL,
		logger:    log,
	}
}

func noteKey(id tenant.ID, audioKey string) string {
	return "note:" + id.String() + ":" + audioKey
}

// Get decodes the cached entry into dst and reports whether one was found.
func (c *NoteCache) Get(ctx context.Context, id tenant.ID, audioKey string, dst interface{}) bool {
	key := noteKey(id, audioKey)

	if raw, found := c.local.Get(key); found {
		return json.Unmarshal(raw.([]byte), dst) == nil
	}
	if c.rdb == nil {
		return false
	}

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("NoteCache", "redis get failed", map[string]interface{}{"key": key, "error": err.Error()})
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false
	}
	c.local.Set(key, raw, cache.DefaultExpiration)
	return true
}

func (c *NoteCache) Set(ctx context.Context, id tenant.ID, audioKey string, v interface{}) {
	key := noteKey(id, audioKey)
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.local.Set(key, raw, cache.DefaultExpiration)
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.sharedTTL).Err(); err != nil {
		c.logger.Warn("NoteCache", "redis set failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}

func (c *NoteCache) Invalidate(ctx context.Context, id tenant.ID, audioKey string) {
	key := noteKey(id, audioKey)
	c.local.Delete(key)
	if c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		c.logger.Warn("NoteCache", "redis delete failed", map[string]interface{}{"key": key, "error": err.Error()})
	}
}
