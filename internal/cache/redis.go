package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisTier is the optional tier-2 shared cache, grounded on
// redis_cache/redis.go adapted from a sharded ring (the teacher's
// multi-shard deployment) to a single client, since one updater host
// talking to one shared Redis instance has no sharding concern.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier dials addr and returns a tier backed by it. Connection
// failures are not fatal here - every call degrades to a miss, logged
// at debug level, the way the teacher's redis_cache treats ErrCacheDown.
func NewRedisTier(addr string) *RedisTier {
	return &RedisTier{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func (r *RedisTier) Close() error {
	return r.client.Close()
}

func (r *RedisTier) Get(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.Debug("cache: redis get failed, treating as miss: ", err)
		}
		return nil, false
	}
	return b, true
}

func (r *RedisTier) Set(key string, value []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		logrus.Debug("cache: redis set failed, continuing with tier-1 only: ", err)
	}
}
