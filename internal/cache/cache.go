// Package cache keeps catalog metadata on disk between invocations so that
// repeated lookups of the same skill do not hit the network.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"

	"github.com/klauern/skillmaster/internal/model"
)

// Entry is one cached catalog record.
type Entry struct {
	Skill    model.CatalogSkill `json:"skill"`
	CachedAt time.Time          `json:"cached_at"`
}

// Cache is a JSON file of catalog records keyed by lookup reference.
type Cache struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`
	path    string
	ttl     time.Duration
	now     func() time.Time
}

const (
	cacheVersion = "1"
	// DefaultTTL is the default time-to-live for cache entries
	DefaultTTL = 1 * time.Hour
)

// DefaultDir returns the cache directory under the XDG cache home.
func DefaultDir() string {
	return filepath.Join(xdg.CacheHome, "skillmaster")
}

// New creates or loads the cache file named sourceName in cacheDir.
// An empty cacheDir uses DefaultDir and a zero ttl uses DefaultTTL.
// Unreadable or outdated cache files are discarded.
func New(sourceName, cacheDir string, ttl time.Duration) (*Cache, error) {
	if cacheDir == "" {
		cacheDir = DefaultDir()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if err := os.MkdirAll(cacheDir, 0o750); err != nil {
		return nil, err
	}

	c := &Cache{
		Version: cacheVersion,
		Entries: make(map[string]Entry),
		path:    filepath.Join(cacheDir, sourceName+".json"),
		ttl:     ttl,
		now:     time.Now,
	}

	// #nosec G304 - path is built from the configured cache directory
	if data, err := os.ReadFile(c.path); err == nil {
		if err := json.Unmarshal(data, c); err != nil || c.Version != cacheVersion || c.Entries == nil {
			c.Entries = make(map[string]Entry)
			c.Version = cacheVersion
		}
	}
	return c, nil
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Get returns the cached record for key if it has not expired.
func (c *Cache) Get(key string) (model.CatalogSkill, bool) {
	key = normalizeKey(key)
	entry, ok := c.Entries[key]
	if !ok {
		return model.CatalogSkill{}, false
	}
	if c.now().Sub(entry.CachedAt) > c.ttl {
		delete(c.Entries, key)
		return model.CatalogSkill{}, false
	}
	return entry.Skill, true
}

// Set stores skill under key and under its id and name, so a later lookup
// by any of them hits.
func (c *Cache) Set(key string, skill model.CatalogSkill) {
	entry := Entry{Skill: skill, CachedAt: c.now()}
	for _, k := range []string{key, skill.ID, skill.Name} {
		if k = normalizeKey(k); k != "" {
			c.Entries[k] = entry
		}
	}
}

// Save persists the cache to disk.
func (c *Cache) Save() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	// #nosec G306 - cache files should be readable by user
	return os.WriteFile(c.path, data, 0o644)
}

// Clear removes all entries and the cache file.
func (c *Cache) Clear() error {
	c.Entries = make(map[string]Entry)
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Size returns the number of entries in the cache.
func (c *Cache) Size() int {
	return len(c.Entries)
}

// Prune removes expired entries and returns how many were dropped.
func (c *Cache) Prune() int {
	pruned := 0
	now := c.now()
	for key, entry := range c.Entries {
		if now.Sub(entry.CachedAt) > c.ttl {
			delete(c.Entries, key)
			pruned++
		}
	}
	return pruned
}
