// Package cache memoizes fuzzy queries and holds manually forced results.
//
// Two independent stores are consulted in a fixed order: the bias store, set
// only by explicit overrides, then the regular result cache. Clearing one
// never touches the other.
package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/andreiashu/geobases/internal/fuzzy"
)

// Key is the canonical identity of a fuzzy query. Texts normalizing to the
// same tokens produce the same Key.
type Key struct {
	Text     string
	Field    string
	Limit    int
	MinMatch float64
}

// NewKey canonicalizes a query.
func NewKey(text, field string, limit int, minMatch float64) Key {
	return Key{Text: fuzzy.Key(text), Field: field, Limit: limit, MinMatch: minMatch}
}

// Origin tells where a Lookup result came from.
type Origin int

const (
	Computed Origin = iota
	Cached
	Biased
)

func (o Origin) String() string {
	switch o {
	case Cached:
		return "cache"
	case Biased:
		return "bias"
	default:
		return "computed"
	}
}

// Stats counts lookups by origin.
type Stats struct {
	Hits         uint64
	Misses       uint64
	BiasHits     uint64
	Computations uint64
	Entries      int
	BiasEntries  int
}

// Cache is safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	bias    map[Key]V
	results *expirable.LRU[Key, V]

	hits         atomic.Uint64
	misses       atomic.Uint64
	biasHits     atomic.Uint64
	computations atomic.Uint64
}

// New returns a cache holding at most size results for at most ttl each.
// Zero size or ttl means unbounded.
func New[V any](size int, ttl time.Duration) *Cache[V] {
	if size < 0 {
		size = 0
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache[V]{
		bias:    make(map[Key]V),
		results: expirable.NewLRU[Key, V](size, nil, ttl),
	}
}

// Lookup returns the bias entry for k if any, else the cached result, else
// the value from compute, which is stored in the regular cache. Errors from
// compute are returned as is and nothing is stored.
func (c *Cache[V]) Lookup(k Key, compute func() (V, error)) (V, Origin, error) {
	c.mu.Lock()
	if v, ok := c.bias[k]; ok {
		c.mu.Unlock()
		c.biasHits.Add(1)
		return v, Biased, nil
	}
	c.mu.Unlock()

	if v, ok := c.results.Get(k); ok {
		c.hits.Add(1)
		return v, Cached, nil
	}
	c.misses.Add(1)

	c.computations.Add(1)
	v, err := compute()
	if err != nil {
		var zero V
		return zero, Computed, err
	}
	c.results.Add(k, v)
	return v, Computed, nil
}

// SetBias forces v as the result for k. It takes effect on the next Lookup,
// including after Clear.
func (c *Cache[V]) SetBias(k Key, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bias[k] = v
}

// Bias returns the forced result for k.
func (c *Cache[V]) Bias(k Key) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.bias[k]
	return v, ok
}

// Clear empties the regular cache.
func (c *Cache[V]) Clear() {
	c.results.Purge()
}

// ClearBias empties the bias store.
func (c *Cache[V]) ClearBias() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bias = make(map[Key]V)
}

// Stats returns a snapshot of the counters.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	biasEntries := len(c.bias)
	c.mu.Unlock()
	return Stats{
		Hits:         c.hits.Load(),
		Misses:       c.misses.Load(),
		BiasHits:     c.biasHits.Load(),
		Computations: c.computations.Load(),
		Entries:      c.results.Len(),
		BiasEntries:  biasEntries,
	}
}
