// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	bolt "go.etcd.io/bbolt"
)

var _ KV = (*Bolt)(nil)

// Bolt is a durable store kept in one bucket of a bbolt file.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// NewBolt opens (or creates) the bbolt file at path and the named bucket.
func NewBolt(path string, bucket string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	name := []byte(bucket)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, e := tx.CreateBucketIfNotExists(name)
		return e
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Bolt{db: db, bucket: name}, nil
}

func (b *Bolt) Has(key []byte) (bool, error) {
	var found bool
	err := b.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(b.bucket).Get(key) != nil
		return nil
	})
	return found, err
}

func (b *Bolt) Get(key []byte) ([]byte, error) {
	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(b.bucket).Get(key)
		if v == nil {
			return ErrNotFound
		}
		// bbolt values are only valid inside the transaction
		out = append([]byte{}, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Bolt) Put(key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Put(key, value)
	})
}

func (b *Bolt) Delete(key []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete(key)
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
