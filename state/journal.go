// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"errors"
	"fmt"
)

var ErrInvalidSnapshot = errors.New("invalid snapshot")

type journalEntry struct {
	key     []byte
	prev    []byte
	existed bool
}

// Journal writes through to a KV while remembering the previous value of
// every key it touches, so an operation can be rolled back to a snapshot
// after a later step fails.
type Journal struct {
	kv      KV
	entries []journalEntry
}

// NewJournal starts an empty journal over kv.
func NewJournal(kv KV) *Journal {
	return &Journal{kv: kv}
}

func (j *Journal) Has(key []byte) (bool, error) {
	return j.kv.Has(key)
}

func (j *Journal) Get(key []byte) ([]byte, error) {
	return j.kv.Get(key)
}

func (j *Journal) Put(key, value []byte) error {
	if err := j.record(key); err != nil {
		return err
	}
	return j.kv.Put(key, value)
}

func (j *Journal) Delete(key []byte) error {
	if err := j.record(key); err != nil {
		return err
	}
	return j.kv.Delete(key)
}

// Close is a no-op; the journal does not own the underlying store.
func (*Journal) Close() error {
	return nil
}

// Snapshot returns a marker RevertTo can roll back to.
func (j *Journal) Snapshot() int {
	return len(j.entries)
}

// RevertTo undoes, newest first, every write made after snapshot.
func (j *Journal) RevertTo(snapshot int) error {
	if snapshot < 0 || snapshot > len(j.entries) {
		return fmt.Errorf("%w: %d of %d", ErrInvalidSnapshot, snapshot, len(j.entries))
	}
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		e := j.entries[i]
		var err error
		if e.existed {
			err = j.kv.Put(e.key, e.prev)
		} else {
			err = j.kv.Delete(e.key)
		}
		if err != nil {
			return err
		}
	}
	j.entries = j.entries[:snapshot]
	return nil
}

// Commit forgets the recorded history. Writes already reached the store.
func (j *Journal) Commit() {
	j.entries = j.entries[:0]
}

func (j *Journal) record(key []byte) error {
	prev, err := j.kv.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		j.entries = append(j.entries, journalEntry{key: append([]byte{}, key...)})
	case err != nil:
		return err
	default:
		j.entries = append(j.entries, journalEntry{
			key:     append([]byte{}, key...),
			prev:    append([]byte{}, prev...),
			existed: true,
		})
	}
	return nil
}
