// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc loads the value for a key on a cache miss.
type FetchFunc[K comparable, V any] func(key K) (V, error)

type ttlItem[V any] struct {
	value   V
	fetched time.Time
}

// TTLCache keeps each value for a fixed duration after it was fetched.
// Concurrent misses on the same key share one fetch.
type TTLCache[K comparable, V any] struct {
	ttl time.Duration
	now func() time.Time

	lock  sync.RWMutex
	data  map[K]ttlItem[V]
	group singleflight.Group
}

func NewTTLCache[K comparable, V any](ttl time.Duration) *TTLCache[K, V] {
	return NewTTLCacheWithClock[K, V](ttl, time.Now)
}

// NewTTLCacheWithClock uses now instead of the wall clock to age entries.
func NewTTLCacheWithClock[K comparable, V any](ttl time.Duration, now func() time.Time) *TTLCache[K, V] {
	return &TTLCache[K, V]{
		ttl:  ttl,
		now:  now,
		data: make(map[K]ttlItem[V]),
	}
}

// Get returns the cached value for key while it is fresh and fetches it
// otherwise. With invalidate set the entry is dropped first so no caller can
// read the stale value while the refetch is in flight.
func (c *TTLCache[K, V]) Get(key K, fetch FetchFunc[K, V], invalidate bool) (V, error) {
	if invalidate {
		c.Invalidate(key)
	} else if v, ok := c.fresh(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(keyString(key), func() (interface{}, error) {
		value, err := fetch(key)
		if err != nil {
			return nil, err
		}
		c.lock.Lock()
		c.data[key] = ttlItem[V]{value: value, fetched: c.now()}
		c.lock.Unlock()
		return value, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

func (c *TTLCache[K, V]) Invalidate(key K) {
	c.lock.Lock()
	delete(c.data, key)
	c.lock.Unlock()
}

// Len counts entries, fresh or not.
func (c *TTLCache[K, V]) Len() int {
	c.lock.RLock()
	defer c.lock.RUnlock()
	return len(c.data)
}

func (c *TTLCache[K, V]) fresh(key K) (V, bool) {
	c.lock.RLock()
	item, ok := c.data[key]
	c.lock.RUnlock()
	if !ok || c.now().Sub(item.fetched) >= c.ttl {
		var zero V
		return zero, false
	}
	return item.value, true
}

func keyString[K comparable](key K) string {
	if s, ok := any(key).(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%v", key)
}
