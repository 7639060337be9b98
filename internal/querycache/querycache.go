// Package querycache caches the results of upstream reads for a short time
// and lets writers drop them by key prefix.
package querycache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type entry struct {
	value   any
	expires time.Time
}

type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry

	lookups *prometheus.CounterVec
}

func New(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "querycache_lookups_total",
				Help: "Cache lookups by result",
			},
			[]string{"result"},
		),
	}
}

// Collector exposes the cache metrics for registration.
func (c *Cache) Collector() prometheus.Collector {
	return c.lookups
}

func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expires) {
		delete(c.entries, key)
		c.lookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	c.lookups.WithLabelValues("hit").Inc()
	return e.value, true
}

func (c *Cache) Set(key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry{value: v, expires: c.now().Add(c.ttl)}
}

// Invalidate drops every entry whose key starts with one of prefixes.
func (c *Cache) Invalidate(_ context.Context, prefixes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for k := range c.entries {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				delete(c.entries, k)
				break
			}
		}
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Fetch returns the cached value for key or loads and caches it. Errors are
// not cached.
func Fetch[T any](ctx context.Context, c *Cache, key string, load func(context.Context) (T, error)) (T, error) {
	if v, ok := c.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v)
	return v, nil
}
