package services

import (
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/pivoter/pivoter/internal/pivot"
)

// treeCache is a size-bounded, concurrency-safe memo of built pivot trees
// keyed by dataset ID. A size of zero disables it.
//
// Every remove bumps a generation counter. A build reads the generation
// before loading its dataset and adds the result with addIfCurrent, so a
// tree loaded before a delete is never memoised after it.
type treeCache struct {
	mu  sync.Mutex
	lru *lru.Cache
	gen uint64
}

func newTreeCache(size int) *treeCache {
	if size <= 0 {
		return &treeCache{}
	}
	return &treeCache{lru: lru.New(size)}
}

func (c *treeCache) get(id string) (*pivot.Tree, bool) {
	if c.lru == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*pivot.Tree), true
}

func (c *treeCache) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// addIfCurrent memoises tree unless a remove happened since gen was read.
func (c *treeCache) addIfCurrent(id string, tree *pivot.Tree, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	if c.lru != nil {
		c.lru.Add(id, tree)
	}
	return true
}

func (c *treeCache) remove(id string) {
	c.mu.Lock()
	c.gen++
	if c.lru != nil {
		c.lru.Remove(id)
	}
	c.mu.Unlock()
}

func (c *treeCache) len() int {
	if c.lru == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
