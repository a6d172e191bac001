package autosave

import (
	"sync"
	"time"
)

// Fields is a partial set of a record's field values.
type Fields map[string]interface{}

func (f Fields) clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

func (f Fields) merge(partial Fields) {
	for k, v := range partial {
		f[k] = v
	}
}

// Cache holds the read-side view of records with three-tier precedence:
// a locally staged value wins over the last server-confirmed value,
// which wins over the value from the initial listing fetch. A screen
// reading through the cache never regresses to stale data while a write
// is pending.
type Cache struct {
	lock        sync.RWMutex
	loaded      map[string]Fields
	confirmed   map[string]Fields
	staged      map[string]Fields
	lastSuccess map[string]time.Time
}

func NewCache() *Cache {
	return &Cache{
		loaded:      make(map[string]Fields),
		confirmed:   make(map[string]Fields),
		staged:      make(map[string]Fields),
		lastSuccess: make(map[string]time.Time),
	}
}

// SetLoaded installs the record values from the initial listing fetch.
// Lowest precedence tier; replaces any earlier loaded values.
func (c *Cache) SetLoaded(recordID string, fields Fields) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.loaded[recordID] = fields.clone()
}

// Stage overlays optimistic, not-yet-confirmed field values.
func (c *Cache) Stage(recordID string, partial Fields) {
	c.lock.Lock()
	defer c.lock.Unlock()
	staged, ok := c.staged[recordID]
	if !ok {
		staged = make(Fields, len(partial))
		c.staged[recordID] = staged
	}
	staged.merge(partial)
}

// Confirm reconciles the record with the server's canonical response.
// Server-assigned fields win in the confirmed tier; staged values, if
// any remain, still shadow them on reads.
func (c *Cache) Confirm(recordID string, canonical Fields, at time.Time) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.confirmed[recordID] = canonical.clone()
	c.lastSuccess[recordID] = at
}

// ClearStaged drops the optimistic tier for a record, exposing the
// confirmed values underneath.
func (c *Cache) ClearStaged(recordID string) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.staged, recordID)
}

// Value returns a single field with staged > confirmed > loaded
// precedence.
func (c *Cache) Value(recordID, field string) (interface{}, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	for _, tier := range []map[string]Fields{c.staged, c.confirmed, c.loaded} {
		if fields, ok := tier[recordID]; ok {
			if v, ok := fields[field]; ok {
				return v, true
			}
		}
	}
	return nil, false
}

// Record returns the merged view of a record across all three tiers.
func (c *Cache) Record(recordID string) (Fields, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	out := Fields{}
	found := false
	for _, tier := range []map[string]Fields{c.loaded, c.confirmed, c.staged} {
		if fields, ok := tier[recordID]; ok {
			out.merge(fields)
			found = true
		}
	}
	if !found {
		return nil, false
	}
	return out, true
}

// LastSuccess returns when the record's last write was confirmed.
func (c *Cache) LastSuccess(recordID string) (time.Time, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	at, ok := c.lastSuccess[recordID]
	return at, ok
}
