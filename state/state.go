// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package state provides the owned key-value stores that gateways, routers
// and gas services keep their records in.
package state

import (
	"errors"

	"github.com/luxfi/database"
	"github.com/luxfi/database/memdb"
	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"

	"github.com/luxfi/xroute"
)

// ErrNotFound is returned by Get for absent keys.
var ErrNotFound = database.ErrNotFound

// KV is the store a single component owns. It is a subset of
// database.Database so any luxfi database can back it.
type KV interface {
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Put(key, value []byte) error
	Delete(key []byte) error
	Close() error
}

var _ KV = (database.Database)(nil)

// NewMemory returns an in-memory store.
func NewMemory() KV {
	return memdb.New()
}

// Key derives the storage key of id within a prefix.
func Key(prefix []byte, id []byte) common.Hash {
	h := blake3.New()
	_, _ = h.Write(prefix)
	_, _ = h.Write(id)
	var key common.Hash
	_, _ = h.Digest().Read(key[:])
	return key
}

// GetRecord decodes the record at key into v. found is false when the key
// is absent.
func GetRecord(kv KV, key common.Hash, v interface{}) (found bool, err error) {
	b, err := kv.Get(key.Bytes())
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := xroute.Codec.Unmarshal(b, v); err != nil {
		return false, err
	}
	return true, nil
}

// PutRecord encodes v and stores it at key.
func PutRecord(kv KV, key common.Hash, v interface{}) error {
	b, err := xroute.Codec.Marshal(v)
	if err != nil {
		return err
	}
	return kv.Put(key.Bytes(), b)
}
