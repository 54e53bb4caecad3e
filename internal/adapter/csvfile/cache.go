package csvfile

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/couchcryptid/storm-peakflow/internal/domain"
	"github.com/couchcryptid/storm-peakflow/internal/observability"
)

// PrecipLoader loads a precipitation table from a path or URL.
type PrecipLoader interface {
	Load(ctx context.Context, path string, opts domain.PrecipOptions) (domain.PrecipitationTable, error)
}

// CachedLoader wraps a PrecipLoader with an in-memory LRU cache keyed by
// source and options.
type CachedLoader struct {
	inner   PrecipLoader
	cache   *lruCache[domain.PrecipitationTable]
	metrics *observability.Metrics
}

// NewCachedLoader creates a cache decorator around a loader.
func NewCachedLoader(inner PrecipLoader, maxEntries int, metrics *observability.Metrics) *CachedLoader {
	return &CachedLoader{
		inner:   inner,
		cache:   newLRUCache[domain.PrecipitationTable](maxEntries),
		metrics: metrics,
	}
}

// Load returns the cached table for path and opts, loading it on a miss.
// Failed loads are not cached.
func (c *CachedLoader) Load(ctx context.Context, path string, opts domain.PrecipOptions) (domain.PrecipitationTable, error) {
	key := fmt.Sprintf("%s|%+v", path, opts)
	if table, ok := c.cache.get(key); ok {
		c.metrics.PrecipCache.WithLabelValues("hit").Inc()
		return table, nil
	}
	c.metrics.PrecipCache.WithLabelValues("miss").Inc()

	table, err := c.inner.Load(ctx, path, opts)
	if err != nil {
		return table, err
	}
	c.cache.put(key, table)
	return table, nil
}

// Len returns the number of cached tables.
func (c *CachedLoader) Len() int {
	return c.cache.size()
}

// lruCache is a thread-safe LRU cache keyed by string.
type lruCache[V any] struct {
	maxEntries int
	mu         sync.Mutex
	order      *list.List // front is most recently used
	entries    map[string]*list.Element
}

type lruEntry[V any] struct {
	key   string
	value V
}

func newLRUCache[V any](maxEntries int) *lruCache[V] {
	return &lruCache[V]{
		maxEntries: maxEntries,
		order:      list.New(),
		entries:    make(map[string]*list.Element),
	}
}

func (c *lruCache[V]) get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*lruEntry[V]).value, true
}

func (c *lruCache[V]) put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		el.Value.(*lruEntry[V]).value = value
		c.order.MoveToFront(el)
		return
	}
	c.entries[key] = c.order.PushFront(&lruEntry[V]{key: key, value: value})

	if c.order.Len() > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*lruEntry[V]).key)
	}
}

func (c *lruCache[V]) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
