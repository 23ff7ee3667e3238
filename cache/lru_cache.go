// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// LRUCache is a size-bounded cache for values that never go stale, such as
// records of work already done.
type LRUCache[K comparable, V any] struct {
	cache *lru.Cache[K, V]
}

func NewLRUCache[K comparable, V any](size int) (*LRUCache[K, V], error) {
	c, err := lru.New[K, V](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache[K, V]{cache: c}, nil
}

func (c *LRUCache[K, V]) Add(key K, value V) {
	c.cache.Add(key, value)
}

func (c *LRUCache[K, V]) Contains(key K) bool {
	return c.cache.Contains(key)
}
