package refs

import (
	"context"
	"sync"
	"time"

	"github.com/wolfeidau/repospanner"
)

// LoadFunc fills t with the full reference listing and returns the digest
// of the raw listing.
type LoadFunc func(ctx context.Context, t *Table) (repospanner.Digest, error)

// Cache holds the reference table of one backend. The table is loaded at
// most once; a failed load leaves the cache empty so the next call retries.
type Cache struct {
	mu       sync.RWMutex
	table    *Table
	digest   repospanner.Digest
	loadedAt time.Time
}

// Load runs fetch if the cache is empty. The write lock is held for the
// whole fetch, so readers wait for the load to finish and never see a
// partial table.
func (c *Cache) Load(ctx context.Context, fetch LoadFunc) error {
	c.mu.RLock()
	loaded := c.table != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.table != nil {
		return nil
	}

	t := NewTable()
	digest, err := fetch(ctx, t)
	if err != nil {
		return err
	}

	c.table = t
	c.digest = digest
	c.loadedAt = time.Now()
	return nil
}

// Loaded reports whether a table has been installed.
func (c *Cache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.table != nil
}

// Get looks up name.
func (c *Cache) Get(name string) (Reference, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return Reference{}, false
	}
	return c.table.Get(name)
}

// Has reports whether name is present.
func (c *Cache) Has(name string) bool {
	_, ok := c.Get(name)
	return ok
}

// Len returns the number of cached references.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return 0
	}
	return c.table.Len()
}

// Snapshot returns a private copy of the table, or an empty table if
// nothing is loaded.
func (c *Cache) Snapshot() *Table {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.table == nil {
		return NewTable()
	}
	return c.table.Copy()
}

// Digest returns the digest of the loaded listing.
func (c *Cache) Digest() repospanner.Digest {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.digest
}

// LoadedAt returns when the table was installed.
func (c *Cache) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
