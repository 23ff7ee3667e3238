// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package auth validates the proofs that accompany gateway command batches.
package auth

import (
	"errors"
	"fmt"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute"
)

const signedMessagePrefix = "\x19Ethereum Signed Message:\n32"

var (
	ErrInvalidOperators       = errors.New("invalid operators")
	ErrMalformedSigners       = errors.New("malformed signers")
	ErrLowSignaturesWeight    = errors.New("low signatures weight")
	ErrInvalidWeights         = errors.New("invalid weights")
	ErrInvalidThreshold       = errors.New("invalid threshold")
	ErrDuplicateOperators     = errors.New("duplicate operators")
	ErrOperatorsNotSorted     = errors.New("operators not sorted ascending")
	ErrInvalidSignature       = errors.New("invalid signature")
	ErrInsufficientWeight     = errors.New("insufficient weight")
	ErrOperatorshipNotAllowed = errors.New("authorizer does not support operatorship transfer")
	ErrWeightOverflow         = errors.New("weight overflow")
)

// Authorizer validates batch proofs on behalf of a gateway.
type Authorizer interface {
	// ValidateProof checks proof against the signing hash of a batch. The
	// returned flag reports whether the signer set may rotate operators.
	ValidateProof(signingHash common.Hash, proof []byte) (bool, error)

	// TransferOperatorship installs a new signer set from encoded params.
	TransferOperatorship(params []byte) error
}

// SigningHash is the hash operators sign for a batch: keccak256 over the
// signed-message prefix and keccak256(data).
func SigningHash(data []byte) common.Hash {
	return xroute.Keccak256Hash([]byte(signedMessagePrefix), crypto.Keccak256(data))
}

// AddWeight returns a+b or an error on overflow.
func AddWeight(a, b uint64) (uint64, error) {
	c, err := xroute.AddUint64(a, b)
	if err != nil {
		return 0, fmt.Errorf("%w: %d + %d", ErrWeightOverflow, a, b)
	}
	return c, nil
}
