package resolver

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/cassette/internal/events"
	"github.com/desertthunder/cassette/internal/models"
	"github.com/desertthunder/cassette/internal/shared"
	lru "github.com/hashicorp/golang-lru/v2"
)

// CacheKey is the durable key holding the resolution cache.
const CacheKey = "player.resolveCache.v1"

// DefaultCacheSize is used when the configured size is not positive.
const DefaultCacheSize = 512

// JSONStore is the best-effort durable store the cache persists through.
type JSONStore interface {
	LoadJSON(ctx context.Context, key string, v any) bool
	StoreJSON(ctx context.Context, key string, v any)
}

// Cache remembers resolved sources keyed by trackId:quality.
//
// Entries live in a bounded LRU and the whole set is written back to the durable store
// after every change. Writes are last-writer-wins per key.
type Cache struct {
	entries *lru.Cache[string, models.CacheEntry]
	store   JSONStore
	logger  *log.Logger
	mu      sync.Mutex
	now     func() time.Time
}

// NewCache creates a cache of at most size entries and loads persisted entries from store.
// store may be nil for a memory-only cache.
func NewCache(ctx context.Context, size int, store JSONStore, logger *log.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if logger == nil {
		logger = shared.NopLogger()
	}

	entries, _ := lru.New[string, models.CacheEntry](size)
	c := &Cache{entries: entries, store: store, logger: logger, now: time.Now}
	c.load(ctx)
	return c
}

func (c *Cache) load(ctx context.Context) {
	if c.store == nil {
		return
	}

	var persisted map[string]models.CacheEntry
	if !c.store.LoadJSON(ctx, CacheKey, &persisted) {
		return
	}

	list := make([]models.CacheEntry, 0, len(persisted))
	for key, entry := range persisted {
		if entry.SourceURL == "" || entry.Key() != key {
			continue
		}
		list = append(list, entry)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CachedAt.Before(list[j].CachedAt) })
	for _, entry := range list {
		c.entries.Add(entry.Key(), entry)
	}
	c.logger.Debug("loaded resolution cache", "entries", c.entries.Len())
}

func (c *Cache) persist(ctx context.Context) {
	if c.store == nil {
		return
	}
	snapshot := make(map[string]models.CacheEntry, c.entries.Len())
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok {
			snapshot[key] = entry
		}
	}
	c.store.StoreJSON(ctx, CacheKey, snapshot)
}

// Get returns the entry for a track at a quality.
func (c *Cache) Get(trackID int64, q models.Quality) (models.CacheEntry, bool) {
	return c.entries.Get(models.CacheKey(trackID, q))
}

// Put stores an entry, stamping CachedAt when unset.
func (c *Cache) Put(ctx context.Context, entry models.CacheEntry) {
	if entry.TrackID <= 0 || entry.SourceURL == "" {
		return
	}
	if entry.CachedAt.IsZero() {
		entry.CachedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(entry.Key(), entry)
	c.persist(ctx)
}

// Remove drops one entry.
func (c *Cache) Remove(ctx context.Context, trackID int64, q models.Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries.Remove(models.CacheKey(trackID, q)) {
		c.persist(ctx)
	}
}

// EvictTrack drops every entry sharing trackID and returns how many were removed.
func (c *Cache) EvictTrack(ctx context.Context, trackID int64) int {
	prefix := strconv.FormatInt(trackID, 10) + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for _, key := range c.entries.Keys() {
		if strings.HasPrefix(key, prefix) && c.entries.Remove(key) {
			removed++
		}
	}
	if removed > 0 {
		c.persist(ctx)
	}
	return removed
}

// Entries returns every entry, oldest first.
func (c *Cache) Entries() []models.CacheEntry {
	keys := c.entries.Keys()
	out := make([]models.CacheEntry, 0, len(keys))
	for _, key := range keys {
		if entry, ok := c.entries.Peek(key); ok {
			out = append(out, entry)
		}
	}
	return out
}

// Len returns the number of entries.
func (c *Cache) Len() int { return c.entries.Len() }

// Clear drops every entry.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
	c.persist(ctx)
}

// HandleTrackRemoved evicts cached resolutions for a removed track. Register it with
// [events.Bus.Handle] for [events.KindTrackRemoved].
func (c *Cache) HandleTrackRemoved(ev events.Event) {
	removed, ok := ev.Payload.(events.TrackRemoved)
	if !ok {
		return
	}
	if n := c.EvictTrack(context.Background(), removed.TrackID); n > 0 {
		c.logger.Debug("evicted cached resolutions", "track", removed.TrackID, "entries", n)
	}
}
