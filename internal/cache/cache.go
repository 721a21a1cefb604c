// Package cache provides a two-tier cache for remote manifests
// (GetRemoteHashes's result), grounded on the teacher's internal_cache
// package split: an in-process tier (patrickmn/go-cache) backed by an
// optional shared tier (go-redis) so that multiple installs polling the
// same repository host don't each refetch the same release manifest
// independently.
package cache

import (
	"encoding/json"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kestrelgames/cytrus-updater/internal/manifest"
	"github.com/kestrelgames/cytrus-updater/internal/metrics"
)

// defaultTTL bounds how long a cached manifest is trusted before a fresh
// GetRemoteHashes call is required; manifests aren't versioned by etag in
// the cytrus v5 protocol, so a short TTL keeps staleness bounded instead.
const defaultTTL = 2 * time.Minute

// tier is the interface both the in-process and Redis tiers satisfy,
// mirroring internal_cache's ContentCache shape but specialized to
// manifest bytes instead of arbitrary media content.
type tier interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
}

// Cache looks up a tier-1 hit first and falls through to tier 2 on miss,
// populating tier 1 from whatever tier 2 returns.
type Cache struct {
	tier1 tier
	tier2 tier // nil when Redis is disabled
}

// New builds a Cache with an always-present in-process tier and an
// optional shared tier.
func New(tier2 tier) *Cache {
	return &Cache{tier1: newMemoryTier(), tier2: tier2}
}

func manifestKey(gameUID, channel, platform, version string) string {
	return gameUID + "/" + channel + "/" + platform + "/" + version
}

// GetManifest returns a cached remote manifest for the given coordinates,
// or reports a miss across both tiers.
func (c *Cache) GetManifest(gameUID, channel, platform, version string) (manifest.Manifest, bool) {
	key := manifestKey(gameUID, channel, platform, version)

	if raw, ok := c.tier1.Get(key); ok {
		metrics.CacheHits.WithLabelValues("manifest").Inc()
		return decodeManifest(raw)
	}
	if c.tier2 != nil {
		if raw, ok := c.tier2.Get(key); ok {
			c.tier1.Set(key, raw, defaultTTL)
			metrics.CacheHits.WithLabelValues("manifest").Inc()
			return decodeManifest(raw)
		}
	}
	metrics.CacheMisses.WithLabelValues("manifest").Inc()
	return nil, false
}

// PutManifest populates both tiers with m for the given coordinates.
func (c *Cache) PutManifest(gameUID, channel, platform, version string, m manifest.Manifest) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	key := manifestKey(gameUID, channel, platform, version)
	c.tier1.Set(key, raw, defaultTTL)
	if c.tier2 != nil {
		c.tier2.Set(key, raw, defaultTTL)
	}
	return nil
}

func decodeManifest(raw []byte) (manifest.Manifest, bool) {
	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	return m, true
}

type memoryTier struct {
	c *gocache.Cache
}

func newMemoryTier() *memoryTier {
	return &memoryTier{c: gocache.New(defaultTTL, defaultTTL*2)}
}

func (m *memoryTier) Get(key string) ([]byte, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

func (m *memoryTier) Set(key string, value []byte, ttl time.Duration) {
	m.c.Set(key, value, ttl)
}
