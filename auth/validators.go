// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/crypto/bls"
)

var (
	ErrEmptyValidatorSet = errors.New("empty validator set")
	ErrInvalidValidator  = errors.New("invalid validator")
)

// Validator is a BLS key with voting weight.
type Validator struct {
	PublicKey      *bls.PublicKey
	PublicKeyBytes []byte
	Weight         uint64
}

// NewValidator builds a validator from its public key.
func NewValidator(publicKey *bls.PublicKey, weight uint64) *Validator {
	return &Validator{
		PublicKey:      publicKey,
		PublicKeyBytes: bls.PublicKeyToCompressedBytes(publicKey),
		Weight:         weight,
	}
}

// Less returns true if this validator is less than the other
func (v *Validator) Less(other *Validator) bool {
	return bytes.Compare(v.PublicKeyBytes, other.PublicKeyBytes) < 0
}

// CanonicalValidatorSet orders validators by public key so signer bit sets
// index the same validator everywhere.
type CanonicalValidatorSet struct {
	validators  []*Validator
	totalWeight uint64
}

// NewCanonicalValidatorSet creates a new canonical validator set
func NewCanonicalValidatorSet(validators []*Validator) (*CanonicalValidatorSet, error) {
	if len(validators) == 0 {
		return nil, ErrEmptyValidatorSet
	}

	seen := make(map[string]bool)
	var totalWeight uint64

	for i, v := range validators {
		if v == nil || v.PublicKey == nil {
			return nil, fmt.Errorf("%w: nil validator at index %d", ErrInvalidValidator, i)
		}
		if v.Weight == 0 {
			return nil, fmt.Errorf("%w: validator at index %d has zero weight", ErrInvalidValidator, i)
		}
		if len(v.PublicKeyBytes) == 0 {
			return nil, fmt.Errorf("%w: validator at index %d has empty public key", ErrInvalidValidator, i)
		}

		key := string(v.PublicKeyBytes)
		if seen[key] {
			return nil, fmt.Errorf("%w: duplicate public key %x", ErrInvalidValidator, v.PublicKeyBytes)
		}
		seen[key] = true

		newWeight, err := AddWeight(totalWeight, v.Weight)
		if err != nil {
			return nil, err
		}
		totalWeight = newWeight
	}

	sorted := make([]*Validator, len(validators))
	copy(sorted, validators)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Less(sorted[j])
	})

	return &CanonicalValidatorSet{
		validators:  sorted,
		totalWeight: totalWeight,
	}, nil
}

// Validators returns the validators in canonical order
func (c *CanonicalValidatorSet) Validators() []*Validator {
	return c.validators
}

// TotalWeight returns the total weight of all validators
func (c *CanonicalValidatorSet) TotalWeight() uint64 {
	return c.totalWeight
}

// IndexOf returns the canonical index of the validator with publicKey.
func (c *CanonicalValidatorSet) IndexOf(publicKey *bls.PublicKey) (int, bool) {
	key := bls.PublicKeyToCompressedBytes(publicKey)
	for i, v := range c.validators {
		if bytes.Equal(v.PublicKeyBytes, key) {
			return i, true
		}
	}
	return -1, false
}

// Len returns the number of validators
func (c *CanonicalValidatorSet) Len() int {
	return len(c.validators)
}
