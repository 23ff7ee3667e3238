// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package checkpoint

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/luxfi/log/level"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/xroute/state"
)

func TestCommitMovesForward(t *testing.T) {
	require := require.New(t)
	kv := state.NewMemory()
	logger := log.NewTestLogger(level.Info)

	m := NewManager(logger, kv)
	cursor, err := m.Cursor("chain-a")
	require.NoError(err)
	require.Zero(cursor)

	require.NoError(m.Commit("chain-a", 5))
	require.NoError(m.Commit("chain-a", 3))
	cursor, err = m.Cursor("chain-a")
	require.NoError(err)
	require.Equal(uint64(5), cursor)

	// a new manager over the same store resumes
	cursor, err = NewManager(logger, kv).Cursor("chain-a")
	require.NoError(err)
	require.Equal(uint64(5), cursor)

	cursor, err = NewManager(logger, kv).Cursor("chain-b")
	require.NoError(err)
	require.Zero(cursor)
}
