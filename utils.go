// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package xroute

import (
	"crypto/ecdsa"
	"errors"
	"math"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// ChainIDNotSet is the reserved "not registered" chain id.
const ChainIDNotSet uint64 = 0

// CheckMulDoesNotOverflow checks if a * b would overflow uint64
func CheckMulDoesNotOverflow(a, b uint64) error {
	if a == 0 || b == 0 {
		return nil
	}
	if a > math.MaxUint64/b {
		return errors.New("multiplication would overflow")
	}
	return nil
}

// AddUint64 adds two uint64 values and returns an error if overflow
func AddUint64(a, b uint64) (uint64, error) {
	if a > math.MaxUint64-b {
		return 0, errors.New("addition would overflow")
	}
	return a + b, nil
}

// Keccak256ID hashes data with keccak256 and returns it as an ids.ID.
func Keccak256ID(data ...[]byte) ids.ID {
	var id ids.ID
	copy(id[:], crypto.Keccak256(data...))
	return id
}

// Keccak256Hash hashes data with keccak256. luxfi/crypto returns its own
// common.Hash; this converts it to the geth type used across the module.
func Keccak256Hash(data ...[]byte) common.Hash {
	return common.Hash(crypto.Keccak256Hash(data...))
}

// PubkeyToAddress derives the account address of an ECDSA public key.
func PubkeyToAddress(pub ecdsa.PublicKey) common.Address {
	return common.Address(crypto.PubkeyToAddress(pub))
}
