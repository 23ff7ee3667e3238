// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

func TestLocker(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	lockerAddr := common.HexToAddress("0x10")
	locker := NewLocker(lockerAddr, NewAsset(l, tokenA), router)
	require.Equal(lockerAddr, locker.Address())

	require.ErrorIs(locker.Lock(bob, alice, uint256.NewInt(1)), ErrNotOperator)

	require.NoError(l.Approve(tokenA, alice, router, uint256.NewInt(300)))
	require.NoError(locker.Lock(router, alice, uint256.NewInt(300)))
	require.Equal(uint64(300), locker.Locked().Uint64())
	require.Equal(uint64(300), l.BalanceOf(tokenA, lockerAddr).Uint64())

	require.ErrorIs(locker.Unlock(router, bob, uint256.NewInt(301)), ErrInsufficientLock)
	require.ErrorIs(locker.Unlock(bob, bob, uint256.NewInt(1)), ErrNotOperator)

	require.NoError(locker.Unlock(router, bob, uint256.NewInt(100)))
	require.Equal(uint64(200), locker.Locked().Uint64())
	require.Equal(uint64(100), l.BalanceOf(tokenA, bob).Uint64())

	locker.AddOperator(bob)
	require.NoError(locker.Unlock(bob, alice, uint256.NewInt(200)))
	require.True(locker.Locked().IsZero())
}
