// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"

	"github.com/luxfi/xroute"
)

// chains maps chain ids to names and back. Callers hold the router lock.
type chains struct {
	names map[uint64]string
	ids   map[string]uint64
}

func newChains() *chains {
	return &chains{
		names: make(map[uint64]string),
		ids:   make(map[string]uint64),
	}
}

func (c *chains) set(id uint64, name string) error {
	if id == xroute.ChainIDNotSet {
		return ErrInvalidChainID
	}
	if name == "" {
		return ErrInvalidChainName
	}
	if old, ok := c.names[id]; ok {
		delete(c.ids, old)
	}
	if old, ok := c.ids[name]; ok {
		delete(c.names, old)
	}
	c.names[id] = name
	c.ids[name] = id
	return nil
}

func (c *chains) name(id uint64) (string, error) {
	name, ok := c.names[id]
	if !ok {
		return "", fmt.Errorf("%w: %d", ErrUnknownChain, id)
	}
	return name, nil
}

// id returns xroute.ChainIDNotSet for unknown names.
func (c *chains) id(name string) uint64 {
	return c.ids[name]
}
