// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package state

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Status uint8
	Chain  uint64
}

func backends(t *testing.T) map[string]KV {
	bolt, err := NewBolt(filepath.Join(t.TempDir(), "state.db"), "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bolt.Close() })
	return map[string]KV{
		"memory": NewMemory(),
		"bolt":   bolt,
	}
}

func TestKV(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			_, err := kv.Get([]byte("missing"))
			require.ErrorIs(err, ErrNotFound)
			has, err := kv.Has([]byte("missing"))
			require.NoError(err)
			require.False(has)

			require.NoError(kv.Put([]byte("k"), []byte("v")))
			v, err := kv.Get([]byte("k"))
			require.NoError(err)
			require.Equal([]byte("v"), v)

			require.NoError(kv.Delete([]byte("k")))
			has, err = kv.Has([]byte("k"))
			require.NoError(err)
			require.False(has)
		})
	}
}

func TestRecords(t *testing.T) {
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			key := Key([]byte("sent"), []byte{1, 2, 3})
			var r record
			found, err := GetRecord(kv, key, &r)
			require.NoError(err)
			require.False(found)

			require.NoError(PutRecord(kv, key, &record{Status: 2, Chain: 7}))
			found, err = GetRecord(kv, key, &r)
			require.NoError(err)
			require.True(found)
			require.Equal(record{Status: 2, Chain: 7}, r)
		})
	}
}

func TestKey(t *testing.T) {
	require := require.New(t)

	a := Key([]byte("sent"), []byte{1})
	require.Equal(a, Key([]byte("sent"), []byte{1}))
	require.NotEqual(a, Key([]byte("recv"), []byte{1}))
	require.NotEqual(a, Key([]byte("sent"), []byte{2}))
}

func TestJournal(t *testing.T) {
	require := require.New(t)

	kv := NewMemory()
	require.NoError(kv.Put([]byte("a"), []byte("1")))

	j := NewJournal(kv)
	require.NoError(j.Put([]byte("a"), []byte("2")))
	snap := j.Snapshot()
	require.NoError(j.Put([]byte("b"), []byte("x")))
	require.NoError(j.Delete([]byte("a")))

	require.NoError(j.RevertTo(snap))
	v, err := kv.Get([]byte("a"))
	require.NoError(err)
	require.Equal([]byte("2"), v)
	has, err := kv.Has([]byte("b"))
	require.NoError(err)
	require.False(has)

	require.NoError(j.RevertTo(0))
	v, err = kv.Get([]byte("a"))
	require.NoError(err)
	require.Equal([]byte("1"), v)

	require.NoError(j.Put([]byte("c"), []byte("3")))
	j.Commit()
	require.NoError(j.RevertTo(0))
	v, err = j.Get([]byte("c"))
	require.NoError(err)
	require.Equal([]byte("3"), v)

	require.ErrorIs(j.RevertTo(5), ErrInvalidSnapshot)
}
