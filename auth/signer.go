// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"sort"

	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
)

var ErrNoSigners = errors.New("no signers provided")

// BatchSigner produces the proof for a batch body.
type BatchSigner interface {
	SignBatch(data []byte) ([]byte, error)
}

var (
	_ BatchSigner = (*OperatorSigner)(nil)
	_ BatchSigner = (*BLSSigner)(nil)
)

// OperatorSigner holds the keys of a weighted operator set, or of enough of
// it to reach the threshold.
type OperatorSigner struct {
	operators []common.Address
	weights   []uint64
	threshold uint64
	keys      map[common.Address]*ecdsa.PrivateKey
}

// NewOperatorSigner builds a signer for the set formed by keys and weights.
// Operators are sorted by address, carrying their weights along.
func NewOperatorSigner(keys []*ecdsa.PrivateKey, weights []uint64, threshold uint64) (*OperatorSigner, error) {
	if len(keys) == 0 {
		return nil, ErrNoSigners
	}
	if len(keys) != len(weights) {
		return nil, fmt.Errorf("%w: %d keys, %d weights", ErrInvalidWeights, len(keys), len(weights))
	}

	type entry struct {
		addr   common.Address
		weight uint64
	}
	entries := make([]entry, len(keys))
	byAddr := make(map[common.Address]*ecdsa.PrivateKey, len(keys))
	for i, key := range keys {
		addr := xroute.PubkeyToAddress(key.PublicKey)
		entries[i] = entry{addr: addr, weight: weights[i]}
		byAddr[addr] = key
	}
	sort.Slice(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].addr.Bytes(), entries[j].addr.Bytes()) < 0
	})

	s := &OperatorSigner{
		operators: make([]common.Address, len(entries)),
		weights:   make([]uint64, len(entries)),
		threshold: threshold,
		keys:      byAddr,
	}
	for i, e := range entries {
		s.operators[i] = e.addr
		s.weights[i] = e.weight
	}
	return s, nil
}

// Params returns the operator set in the form installed by an authorizer.
func (s *OperatorSigner) Params() *payload.TransferOperatorshipParams {
	return &payload.TransferOperatorshipParams{
		Operators: append([]common.Address(nil), s.operators...),
		Weights:   append([]uint64(nil), s.weights...),
		Threshold: s.threshold,
	}
}

// SignBatch signs with operators in order until the threshold is met.
func (s *OperatorSigner) SignBatch(data []byte) ([]byte, error) {
	hash := SigningHash(data)

	proof := &payload.OperatorProof{
		Operators: s.operators,
		Weights:   s.weights,
		Threshold: s.threshold,
	}
	var weight uint64
	for i, op := range s.operators {
		if weight >= s.threshold {
			break
		}
		key, ok := s.keys[op]
		if !ok {
			continue
		}
		sig, err := crypto.Sign(hash.Bytes(), key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}
		proof.Signatures = append(proof.Signatures, sig)
		weight += s.weights[i]
	}
	if weight < s.threshold {
		return nil, fmt.Errorf("%w: have %d of %d", ErrLowSignaturesWeight, weight, s.threshold)
	}
	return proof.Bytes(), nil
}

// BLSSigner signs batches with local BLS keys of a canonical validator set.
type BLSSigner struct {
	validators *CanonicalValidatorSet
	keys       []*bls.SecretKey
}

// NewBLSSigner returns a signer for keys, all of which must belong to the
// validator set.
func NewBLSSigner(validators *CanonicalValidatorSet, keys ...*bls.SecretKey) (*BLSSigner, error) {
	if len(keys) == 0 {
		return nil, ErrNoSigners
	}
	for _, sk := range keys {
		if _, ok := validators.IndexOf(sk.PublicKey()); !ok {
			return nil, fmt.Errorf("%w: signer not found in validator set", ErrInvalidValidator)
		}
	}
	return &BLSSigner{validators: validators, keys: keys}, nil
}

// SignBatch aggregates one signature per key and marks the signers.
func (s *BLSSigner) SignBatch(data []byte) ([]byte, error) {
	hash := SigningHash(data)

	signers := NewBits()
	sigs := make([]*bls.Signature, 0, len(s.keys))
	for _, sk := range s.keys {
		index, _ := s.validators.IndexOf(sk.PublicKey())
		sig, err := sk.Sign(hash.Bytes())
		if err != nil {
			return nil, fmt.Errorf("failed to sign: %w", err)
		}
		signers.Add(index)
		sigs = append(sigs, sig)
	}

	aggSig, err := bls.AggregateSignatures(sigs)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate signatures: %w", err)
	}
	proof := &payload.BLSProof{
		Signers:   signers,
		Signature: bls.SignatureToBytes(aggSig),
	}
	return proof.Bytes(), nil
}
