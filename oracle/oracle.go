// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package oracle supplies token prices in USD with six decimals.
package oracle

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute/cache"
)

var ErrNoPrice = errors.New("no price for token")

// PriceFeed returns the USD price of one whole token, scaled by 1e6.
type PriceFeed interface {
	Price(token common.Address) (*uint256.Int, error)
}

var (
	_ PriceFeed = (*StaticFeed)(nil)
	_ PriceFeed = (*CachedFeed)(nil)
)

// StaticFeed serves prices set by an operator.
type StaticFeed struct {
	mu     sync.RWMutex
	prices map[common.Address]*uint256.Int
}

func NewStaticFeed() *StaticFeed {
	return &StaticFeed{prices: make(map[common.Address]*uint256.Int)}
}

func (f *StaticFeed) SetPrice(token common.Address, price *uint256.Int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[token] = new(uint256.Int).Set(price)
}

func (f *StaticFeed) Price(token common.Address) (*uint256.Int, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	p, ok := f.prices[token]
	if !ok || p.IsZero() {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, token)
	}
	return new(uint256.Int).Set(p), nil
}

// CachedFeed serves prices from another feed for up to ttl after each
// fetch.
type CachedFeed struct {
	feed  PriceFeed
	cache *cache.TTLCache[common.Address, *uint256.Int]
}

func NewCachedFeed(feed PriceFeed, ttl time.Duration) *CachedFeed {
	return &CachedFeed{
		feed:  feed,
		cache: cache.NewTTLCache[common.Address, *uint256.Int](ttl),
	}
}

func (f *CachedFeed) Price(token common.Address) (*uint256.Int, error) {
	return f.get(token, false)
}

// Refresh refetches the price of token and replaces the cached value.
func (f *CachedFeed) Refresh(token common.Address) (*uint256.Int, error) {
	return f.get(token, true)
}

func (f *CachedFeed) get(token common.Address, invalidate bool) (*uint256.Int, error) {
	p, err := f.cache.Get(token, f.feed.Price, invalidate)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(p), nil
}
