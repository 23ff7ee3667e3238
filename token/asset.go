// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// Asset binds one token address to a ledger so callers handle native
// currency and ledger assets through the same calls.
type Asset struct {
	ledger  Ledger
	address common.Address
}

// NewAsset returns the asset at address on ledger.
func NewAsset(ledger Ledger, address common.Address) Asset {
	return Asset{ledger: ledger, address: address}
}

// Address returns the token address; the zero address for native currency.
func (a Asset) Address() common.Address {
	return a.address
}

// IsNative reports whether the asset is the chain's native currency.
func (a Asset) IsNative() bool {
	return a.address == Native
}

func (a Asset) Decimals() (uint8, error) {
	return a.ledger.Decimals(a.address)
}

func (a Asset) BalanceOf(holder common.Address) *uint256.Int {
	return a.ledger.BalanceOf(a.address, holder)
}

func (a Asset) Transfer(from, to common.Address, amount *uint256.Int) error {
	return a.ledger.Transfer(a.address, from, to, amount)
}

// TransferFrom moves amount out of from using spender's allowance. Native
// currency carries no allowances, so it is moved directly.
func (a Asset) TransferFrom(spender, from, to common.Address, amount *uint256.Int) error {
	if a.IsNative() {
		return a.ledger.Transfer(a.address, from, to, amount)
	}
	return a.ledger.TransferFrom(a.address, spender, from, to, amount)
}

func (a Asset) Approve(owner, spender common.Address, amount *uint256.Int) error {
	return a.ledger.Approve(a.address, owner, spender, amount)
}

func (a Asset) Mint(minter, to common.Address, amount *uint256.Int) error {
	return a.ledger.Mint(a.address, minter, to, amount)
}

func (a Asset) Burn(burner, from common.Address, amount *uint256.Int) error {
	return a.ledger.Burn(a.address, burner, from, amount)
}
