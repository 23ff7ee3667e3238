// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package cache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheSingleKey(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cache := NewTTLCacheWithClock[string, int](time.Second, clock.Now)

	fetches := 0
	fetch := func(string) (int, error) {
		fetches++
		return 42, nil
	}

	tests := []struct {
		name       string
		advance    time.Duration
		invalidate bool
		wantCount  int
	}{
		{name: "fresh cache, fetch", wantCount: 1},
		{name: "use cache, no fetch", wantCount: 1},
		{name: "invalidate, fetch", invalidate: true, wantCount: 2},
		{name: "not yet expired", advance: 999 * time.Millisecond, wantCount: 2},
		{name: "ttl expired, fetch", advance: time.Millisecond, wantCount: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			clock.Advance(tt.advance)

			v, err := cache.Get("key", fetch, tt.invalidate)
			require.NoError(err)
			require.Equal(42, v)
			require.Equal(tt.wantCount, fetches)
		})
	}
}

func TestTTLCacheFetchError(t *testing.T) {
	require := require.New(t)
	cache := NewTTLCache[int, string](time.Minute)

	errFetch := errors.New("feed down")
	_, err := cache.Get(1, func(int) (string, error) { return "", errFetch }, false)
	require.ErrorIs(err, errFetch)
	require.Zero(cache.Len())

	v, err := cache.Get(1, func(int) (string, error) { return "ok", nil }, false)
	require.NoError(err)
	require.Equal("ok", v)
}

func TestTTLCacheSharesInflightFetch(t *testing.T) {
	require := require.New(t)
	cache := NewTTLCache[string, int](time.Minute)

	var fetches atomic.Int32
	release := make(chan struct{})
	fetch := func(string) (int, error) {
		fetches.Add(1)
		<-release
		return 7, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := cache.Get("price", fetch, false)
			assert.NoError(t, err)
			assert.Equal(t, 7, v)
		}()
	}
	require.Eventually(func() bool { return fetches.Load() == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(fetches.Load(), int32(8))
	require.Equal(1, cache.Len())
}
