package persistence

import (
	"reflect"
	"sync"

	"github.com/asaidimu/go-repodb/core/schema"
)

// cacheEntry is the last known state of one collection. records may include
// writes that are queued but not yet durable.
type cacheEntry struct {
	records  []schema.Document
	revision string
	etag     string
	version  uint64
}

// collectionCache holds one entry per collection. Readers always receive
// copies.
type collectionCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	epochs  map[string]uint64
	seq     uint64
}

func newCollectionCache() *collectionCache {
	return &collectionCache{
		entries: make(map[string]*cacheEntry),
		epochs:  make(map[string]uint64),
	}
}

// epoch counts the settled writes of a collection. Snapshots fetched under
// an older epoch may predate a write and are not installed.
func (c *collectionCache) epoch(name string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.epochs[name]
}

func (c *collectionCache) bumpEpoch(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.epochs[name]++
}

// get returns a copy of the cached records.
func (c *collectionCache) get(name string) ([]schema.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	return cloneRecords(e.records), true
}

// entry returns a copy of the whole entry.
func (c *collectionCache) entry(name string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	if !ok {
		return cacheEntry{}, false
	}
	out := *e
	out.records = cloneRecords(e.records)
	return out, true
}

// replace installs a remote snapshot. It reports the new version and whether
// the records differ from what was cached.
func (c *collectionCache) replace(name string, records []schema.Document, revision, etag string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &cacheEntry{}
		c.entries[name] = e
	}
	changed := !ok || !reflect.DeepEqual(e.records, records)
	e.records = cloneRecords(records)
	e.revision = revision
	e.etag = etag
	if changed {
		c.seq++
		e.version = c.seq
	}
	return e.version, changed
}

// setRecords replaces the records of an existing entry, keeping its
// revision and etag so the next conditional read still validates against the
// last remote state.
func (c *collectionCache) setRecords(name string, records []schema.Document) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		return 0, false
	}
	if reflect.DeepEqual(e.records, records) {
		return e.version, false
	}
	e.records = cloneRecords(records)
	c.seq++
	e.version = c.seq
	return e.version, true
}

func (c *collectionCache) names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.entries))
	for name := range c.entries {
		out = append(out, name)
	}
	return out
}
