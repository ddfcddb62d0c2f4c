package loader

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/dop251/goja"
)

// programCache keeps compiled programs keyed by a hash of their source, so
// identical sources behind different URLs compile once.
type programCache struct {
	mu       sync.Mutex
	programs map[uint64]*goja.Program
	hits     atomic.Uint64
	misses   atomic.Uint64
}

func newProgramCache() *programCache {
	return &programCache{programs: make(map[uint64]*goja.Program)}
}

func (c *programCache) compile(name string, src []byte) (*goja.Program, error) {
	key := xxhash.Sum64(src)

	c.mu.Lock()
	p, ok := c.programs[key]
	c.mu.Unlock()
	if ok {
		c.hits.Add(1)
		return p, nil
	}

	c.misses.Add(1)
	p, err := goja.Compile(name, string(src), false)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.programs[key] = p
	c.mu.Unlock()
	return p, nil
}

// CacheStats reports compile cache hits and misses.
type CacheStats struct {
	Hits     uint64
	Misses   uint64
	Programs int
}

func (c *programCache) stats() CacheStats {
	c.mu.Lock()
	n := len(c.programs)
	c.mu.Unlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Programs: n}
}
