package state

import (
	"sort"
	"sync"
)

// Cache maps root document paths to their most recent BuildState. A lookup
// for any known subfile of a root returns that root's cached state. Access is
// guarded by a mutex; the composer is the single writer but the watch loop
// reads concurrently.
type Cache struct {
	mu     sync.Mutex
	states map[string]*BuildState
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{states: make(map[string]*BuildState)}
}

// Lookup returns the cached state whose root or known subfiles include path.
// When more than one root claims the path the lexically smallest root wins,
// so repeated lookups return the same state.
func (c *Cache) Lookup(path string) *BuildState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[path]; ok {
		return s
	}
	roots := make([]string, 0, len(c.states))
	for root := range c.states {
		roots = append(roots, root)
	}
	sort.Strings(roots)
	for _, root := range roots {
		if s := c.states[root]; s.HasSubfile(path) {
			return s
		}
	}
	return nil
}

// Store inserts a state for its root path, evicting the prior entry for that
// root. Any other cached root that previously claimed one of the new state's
// files loses its entry: the file has moved to a different root.
func (c *Cache) Store(s *BuildState) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for root, cached := range c.states {
		if root == s.FilePath {
			continue
		}
		if c.claimsAny(cached, s) {
			delete(c.states, root)
		}
	}
	c.states[s.FilePath] = s
}

// Evict removes the entry for the given root path, if present.
func (c *Cache) Evict(rootPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.states, rootPath)
}

// Len returns the number of cached roots.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.states)
}

func (c *Cache) claimsAny(cached, incoming *BuildState) bool {
	if cached.HasSubfile(incoming.FilePath) {
		return true
	}
	for _, path := range incoming.Subfiles() {
		if cached.HasSubfile(path) {
			return true
		}
	}
	return false
}
