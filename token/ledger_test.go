// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xa0")
	alice  = common.HexToAddress("0x01")
	bob    = common.HexToAddress("0x02")
	router = common.HexToAddress("0x03")
)

func newTestLedger(t *testing.T) *MemLedger {
	l := NewMemLedger()
	require.NoError(t, l.Register(tokenA, "A", 6, router))
	require.NoError(t, l.Fund(tokenA, alice, uint256.NewInt(1000)))
	return l
}

func TestRegister(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	require.ErrorIs(l.Register(tokenA, "A", 6), ErrTokenExists)
	dec, err := l.Decimals(tokenA)
	require.NoError(err)
	require.Equal(uint8(6), dec)
	dec, err = l.Decimals(Native)
	require.NoError(err)
	require.Equal(uint8(NativeDecimals), dec)

	_, err = l.Decimals(bob)
	require.ErrorIs(err, ErrUnknownToken)

	sym, err := l.Symbol(tokenA)
	require.NoError(err)
	require.Equal("A", sym)
}

func TestTransfer(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	require.NoError(l.Transfer(tokenA, alice, bob, uint256.NewInt(400)))
	require.Equal(uint64(600), l.BalanceOf(tokenA, alice).Uint64())
	require.Equal(uint64(400), l.BalanceOf(tokenA, bob).Uint64())

	err := l.Transfer(tokenA, alice, bob, uint256.NewInt(601))
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(uint64(600), l.BalanceOf(tokenA, alice).Uint64())

	require.ErrorIs(l.Transfer(bob, alice, bob, uint256.NewInt(1)), ErrUnknownToken)
}

func TestTransferFrom(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	err := l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(1))
	require.ErrorIs(err, ErrInsufficientAllowance)

	require.NoError(l.Approve(tokenA, alice, router, uint256.NewInt(2000)))
	err = l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(1500))
	require.ErrorIs(err, ErrInsufficientBalance)
	require.Equal(uint64(2000), l.Allowance(tokenA, alice, router).Uint64())

	require.NoError(l.TransferFrom(tokenA, router, alice, bob, uint256.NewInt(250)))
	require.Equal(uint64(1750), l.Allowance(tokenA, alice, router).Uint64())
	require.Equal(uint64(250), l.BalanceOf(tokenA, bob).Uint64())
}

func TestMintBurn(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	require.ErrorIs(l.Mint(tokenA, bob, bob, uint256.NewInt(1)), ErrNotMinter)
	require.ErrorIs(l.Mint(Native, router, bob, uint256.NewInt(1)), ErrNativeAsset)
	require.ErrorIs(l.GrantMinter(Native, bob), ErrNativeAsset)

	require.NoError(l.Mint(tokenA, router, bob, uint256.NewInt(10)))
	require.Equal(uint64(1010), l.TotalSupply(tokenA).Uint64())

	// burning someone else's tokens needs their allowance
	require.ErrorIs(l.Burn(tokenA, router, alice, uint256.NewInt(100)), ErrInsufficientAllowance)
	require.NoError(l.Approve(tokenA, alice, router, uint256.NewInt(100)))
	require.NoError(l.Burn(tokenA, router, alice, uint256.NewInt(100)))
	require.Equal(uint64(900), l.BalanceOf(tokenA, alice).Uint64())
	require.Equal(uint64(910), l.TotalSupply(tokenA).Uint64())

	require.ErrorIs(l.Burn(tokenA, router, alice, uint256.NewInt(901)), ErrInsufficientBalance)

	require.NoError(l.GrantMinter(tokenA, bob))
	require.NoError(l.Burn(tokenA, bob, bob, uint256.NewInt(10)))
	require.True(l.BalanceOf(tokenA, bob).IsZero())
}

func TestTransferHookRunsUnlocked(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)

	var seen []uint64
	l.SetTransferHook(func(token, from, to common.Address, amount *uint256.Int) {
		// reading the ledger inside the hook must not deadlock
		seen = append(seen, l.BalanceOf(token, to).Uint64())
	})
	require.NoError(l.Transfer(tokenA, alice, bob, uint256.NewInt(5)))
	require.NoError(l.Mint(tokenA, router, bob, uint256.NewInt(5)))
	require.Equal([]uint64{5, 10}, seen)
}

func TestAssetNative(t *testing.T) {
	require := require.New(t)
	l := newTestLedger(t)
	require.NoError(l.Fund(Native, alice, uint256.NewInt(50)))

	native := NewAsset(l, Native)
	require.True(native.IsNative())
	require.False(NewAsset(l, tokenA).IsNative())

	// native moves without an allowance
	require.NoError(native.TransferFrom(router, alice, bob, uint256.NewInt(20)))
	require.Equal(uint64(20), native.BalanceOf(bob).Uint64())
}
