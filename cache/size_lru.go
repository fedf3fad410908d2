// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package cache

import (
	"math"
	"sync"

	"github.com/hashicorp/golang-lru/simplelru"
)

// SizeLRU is a LRU cache bounded by the total size of its entries rather than their count.
// The size of an entry is given by the caller when it's added.
type SizeLRU struct {
	lock    sync.Mutex
	lru     *simplelru.LRU
	size    int
	budget  int
	onEvict func(key, value any)
}

type sizedEntry struct {
	value any
	size  int
}

// Loader defines loader to load value and its size.
type Loader func(key any) (value any, size int, err error)

// NewSizeLRU creates a SizeLRU holding entries up to budget in total size.
// onEvict, if not nil, is called for every entry dropped to keep the budget.
func NewSizeLRU(budget int, onEvict func(key, value any)) *SizeLRU {
	c := &SizeLRU{
		budget:  budget,
		onEvict: onEvict,
	}
	// the count limit is never reached, entries are evicted by size.
	c.lru, _ = simplelru.NewLRU(math.MaxInt32, func(_ any, value any) {
		c.size -= value.(*sizedEntry).size
	})
	return c
}

// Add adds or replaces the entry, then evicts least recently used entries
// until the total size is within budget. An entry larger than the budget is not cached.
// It returns the count of evicted entries.
func (c *SizeLRU) Add(key, value any, size int) int {
	c.lock.Lock()
	defer c.lock.Unlock()

	// removal goes through the eviction callback, which keeps size accounting
	c.lru.Remove(key)
	if size > c.budget {
		return 0
	}
	c.lru.Add(key, &sizedEntry{value, size})
	c.size += size

	evicted := 0
	for c.size > c.budget {
		k, v, ok := c.lru.RemoveOldest()
		if !ok {
			break
		}
		evicted++
		if c.onEvict != nil {
			c.onEvict(k, v.(*sizedEntry).value)
		}
	}
	return evicted
}

// Get returns the value of key, marking it as most recently used.
func (c *SizeLRU) Get(key any) (any, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if v, ok := c.lru.Get(key); ok {
		return v.(*sizedEntry).value, true
	}
	return nil, false
}

// GetOrLoad first try to get from cache, do load if missed.
// The loaded value is cached with the size the loader returns.
func (c *SizeLRU) GetOrLoad(key any, loader Loader) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, size, err := loader(key)
	if err != nil {
		return nil, err
	}
	c.Add(key, v, size)
	return v, nil
}

// Remove removes the entry of key. It reports whether the key was present.
func (c *SizeLRU) Remove(key any) bool {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lru.Remove(key)
}

// Len returns the count of entries.
func (c *SizeLRU) Len() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.lru.Len()
}

// Size returns the total size of entries.
func (c *SizeLRU) Size() int {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.size
}
