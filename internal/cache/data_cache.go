package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mstfa13/asura-backend/internal/observability"

	"github.com/go-redis/redis/v8"
)

const (
	DefaultTTL = 5 * time.Minute

	// version keys outlive the values they guard
	minVersionTTL = 24 * time.Hour

	dataKeyType = "user_data"
)

// fillScript stores the value only while the entry version still matches the
// one observed before the database read.
var fillScript = redis.NewScript(`
local current = redis.call('GET', KEYS[2])
if (current or '0') ~= ARGV[2] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[3])
return 1
`)

var invalidateScript = redis.NewScript(`
redis.call('INCR', KEYS[2])
redis.call('PEXPIRE', KEYS[2], ARGV[1])
redis.call('DEL', KEYS[1])
return 1
`)

// DataCache stores the serialized text of user data entries. Every entry has
// a version counter; writers bump it and readers may only fill the cache
// with a value read under the version they observed.
type DataCache struct {
	rdb        *redis.Client
	ttl        time.Duration
	versionTTL time.Duration
	metrics    *observability.Metrics
}

func NewDataCache(rdb *redis.Client, ttl time.Duration, metrics *observability.Metrics) *DataCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	versionTTL := minVersionTTL
	if 2*ttl > versionTTL {
		versionTTL = 2 * ttl
	}
	return &DataCache{rdb: rdb, ttl: ttl, versionTTL: versionTTL, metrics: metrics}
}

func DataKey(userID int64, key string) string {
	return fmt.Sprintf("user_data:%d:%s", userID, key)
}

func VersionKey(userID int64, key string) string {
	return fmt.Sprintf("user_data_version:%d:%s", userID, key)
}

// Get returns the cached text, the entry version read with it and whether
// the text was present.
func (c *DataCache) Get(ctx context.Context, userID int64, key string) (string, int64, bool, error) {
	vals, err := c.rdb.MGet(ctx, DataKey(userID, key), VersionKey(userID, key)).Result()
	if err != nil {
		return "", 0, false, err
	}

	version, err := parseVersion(vals[1])
	if err != nil {
		return "", 0, false, err
	}

	text, ok := vals[0].(string)
	if !ok {
		c.miss()
		return "", version, false, nil
	}

	c.hit()
	return text, version, true, nil
}

// Fill caches value unless the entry was invalidated after version was read.
// It reports whether the value was stored.
func (c *DataCache) Fill(ctx context.Context, userID int64, key, value string, version int64) (bool, error) {
	stored, err := fillScript.Run(ctx, c.rdb,
		[]string{DataKey(userID, key), VersionKey(userID, key)},
		value, strconv.FormatInt(version, 10), c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// Invalidate drops the cached text and bumps the entry version so that
// in-flight fills based on older reads are rejected.
func (c *DataCache) Invalidate(ctx context.Context, userID int64, key string) error {
	return invalidateScript.Run(ctx, c.rdb,
		[]string{DataKey(userID, key), VersionKey(userID, key)},
		c.versionTTL.Milliseconds(),
	).Err()
}

func parseVersion(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	version, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cache version %q: %w", s, err)
	}
	return version, nil
}

func (c *DataCache) hit() {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(dataKeyType).Inc()
	}
}

func (c *DataCache) miss() {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(dataKeyType).Inc()
	}
}
