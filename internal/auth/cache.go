package auth

import (
	"sync"
	"time"
)

// KeyCache remembers which project an ingest key resolved to, so repeated
// events skip the DB lookup and bcrypt compare.
//
// Entries past their TTL are still served. The first reader of an expired
// entry is told to refresh it; later readers get the stale project until the
// refresh calls Put or Evict.
type KeyCache struct {
	ttl time.Duration
	now func() time.Time

	mu        sync.RWMutex
	keys      map[string]*keyEntry
	byProject map[string]map[string]struct{}
}

type keyEntry struct {
	project    *ProjectContext
	freshUntil time.Time
	refreshing bool
}

// Lookup is the outcome of KeyCache.Lookup.
type Lookup struct {
	Project *ProjectContext
	Hit     bool
	// Refresh is set for exactly one reader per expiry.
	Refresh bool
}

// NewKeyCache creates a cache whose entries stay fresh for ttl.
func NewKeyCache(ttl time.Duration) *KeyCache {
	return &KeyCache{
		ttl:       ttl,
		now:       time.Now,
		keys:      make(map[string]*keyEntry),
		byProject: make(map[string]map[string]struct{}),
	}
}

// Lookup returns the cached project for key.
func (c *KeyCache) Lookup(key string) Lookup {
	c.mu.RLock()
	e, ok := c.keys[key]
	if !ok {
		c.mu.RUnlock()
		return Lookup{}
	}
	if c.now().Before(e.freshUntil) {
		p := e.project
		c.mu.RUnlock()
		return Lookup{Project: p, Hit: true}
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok = c.keys[key]
	if !ok {
		return Lookup{}
	}
	res := Lookup{Project: e.project, Hit: true}
	if !e.refreshing && !c.now().Before(e.freshUntil) {
		e.refreshing = true
		res.Refresh = true
	}
	return res
}

// Put stores the project for key and restarts its TTL.
func (c *KeyCache) Put(key string, project *ProjectContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.keys[key]; ok {
		c.unindex(key, old.project.ProjectID)
	}
	c.keys[key] = &keyEntry{project: project, freshUntil: c.now().Add(c.ttl)}
	ids, ok := c.byProject[project.ProjectID]
	if !ok {
		ids = make(map[string]struct{})
		c.byProject[project.ProjectID] = ids
	}
	ids[key] = struct{}{}
}

// Evict drops key.
func (c *KeyCache) Evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.keys[key]; ok {
		delete(c.keys, key)
		c.unindex(key, e.project.ProjectID)
	}
}

// EvictProject drops every key that resolves to projectID.
func (c *KeyCache) EvictProject(projectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.byProject[projectID] {
		delete(c.keys, key)
	}
	delete(c.byProject, projectID)
}

// Len returns the number of cached keys.
func (c *KeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.keys)
}

// unindex must be called with c.mu held.
func (c *KeyCache) unindex(key, projectID string) {
	ids := c.byProject[projectID]
	delete(ids, key)
	if len(ids) == 0 {
		delete(c.byProject, projectID)
	}
}
