// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
)

// OldKeyRetention is how many epochs a superseded operator set may keep
// signing batches.
const OldKeyRetention = 16

var _ Authorizer = (*OperatorAuth)(nil)

// OperatorAuth is a weighted ECDSA multisig over rotating operator sets.
// Each installed set opens a new epoch; proofs from the last
// OldKeyRetention epochs are accepted but only the current epoch may
// rotate operators.
type OperatorAuth struct {
	log log.Logger

	mu           sync.RWMutex
	currentEpoch uint64
	epochForHash map[common.Hash]uint64
	hashForEpoch map[uint64]common.Hash
}

// NewOperatorAuth installs the initial operator sets in order; the last one
// becomes current.
func NewOperatorAuth(logger log.Logger, initial ...*payload.TransferOperatorshipParams) (*OperatorAuth, error) {
	a := &OperatorAuth{
		log:          logger,
		epochForHash: make(map[common.Hash]uint64),
		hashForEpoch: make(map[uint64]common.Hash),
	}
	for _, params := range initial {
		if err := a.install(params); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// OperatorsHash identifies an operator set.
func OperatorsHash(operators []common.Address, weights []uint64, threshold uint64) common.Hash {
	p := &payload.TransferOperatorshipParams{
		Operators: operators,
		Weights:   weights,
		Threshold: threshold,
	}
	return xroute.Keccak256Hash(p.Bytes())
}

// CurrentEpoch returns the epoch of the newest operator set.
func (a *OperatorAuth) CurrentEpoch() uint64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentEpoch
}

// HashForEpoch returns the operators hash installed at epoch.
func (a *OperatorAuth) HashForEpoch(epoch uint64) (common.Hash, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	h, ok := a.hashForEpoch[epoch]
	return h, ok
}

func (a *OperatorAuth) ValidateProof(signingHash common.Hash, proof []byte) (bool, error) {
	p, err := payload.ParseOperatorProof(proof)
	if err != nil {
		return false, err
	}

	operatorsHash := OperatorsHash(p.Operators, p.Weights, p.Threshold)

	a.mu.RLock()
	epoch := a.epochForHash[operatorsHash]
	currentEpoch := a.currentEpoch
	a.mu.RUnlock()

	if epoch == 0 || currentEpoch-epoch >= OldKeyRetention {
		return false, fmt.Errorf("%w: operators %s at epoch %d, current %d", ErrInvalidOperators, operatorsHash, epoch, currentEpoch)
	}
	if err := validateSignatures(signingHash, p); err != nil {
		return false, err
	}
	return epoch == currentEpoch, nil
}

func (a *OperatorAuth) TransferOperatorship(params []byte) error {
	p, err := payload.ParseTransferOperatorshipParams(params)
	if err != nil {
		return err
	}
	return a.install(p)
}

func (a *OperatorAuth) install(p *payload.TransferOperatorshipParams) error {
	if err := p.Verify(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOperators, err)
	}
	if !sortedUnique(p.Operators) {
		return ErrOperatorsNotSorted
	}

	var totalWeight uint64
	for i, w := range p.Weights {
		if w == 0 {
			return fmt.Errorf("%w: operator %d has zero weight", ErrInvalidWeights, i)
		}
		total, err := AddWeight(totalWeight, w)
		if err != nil {
			return err
		}
		totalWeight = total
	}
	if p.Threshold == 0 || totalWeight < p.Threshold {
		return fmt.Errorf("%w: threshold %d, total weight %d", ErrInvalidThreshold, p.Threshold, totalWeight)
	}

	newHash := OperatorsHash(p.Operators, p.Weights, p.Threshold)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.epochForHash[newHash] != 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateOperators, newHash)
	}
	epoch := a.currentEpoch + 1
	a.currentEpoch = epoch
	a.hashForEpoch[epoch] = newHash
	a.epochForHash[newHash] = epoch

	a.log.Info("operatorship transferred",
		log.Uint64("epoch", epoch),
		log.Int("operators", len(p.Operators)),
		log.Uint64("threshold", p.Threshold),
	)
	return nil
}

// validateSignatures walks operators in order, matching each recovered
// signer to the next operator with that address, until the accumulated
// weight reaches the threshold.
func validateSignatures(signingHash common.Hash, p *payload.OperatorProof) error {
	operatorIndex := 0
	var weight uint64
	for i, sig := range p.Signatures {
		signer, err := recoverSigner(signingHash, sig)
		if err != nil {
			return fmt.Errorf("%w: signature %d: %w", ErrMalformedSigners, i, err)
		}
		for operatorIndex < len(p.Operators) && signer != p.Operators[operatorIndex] {
			operatorIndex++
		}
		if operatorIndex == len(p.Operators) {
			return fmt.Errorf("%w: signer %s out of order or unknown", ErrMalformedSigners, signer)
		}
		weight, err = AddWeight(weight, p.Weights[operatorIndex])
		if err != nil {
			return err
		}
		if weight >= p.Threshold {
			return nil
		}
		operatorIndex++
	}
	return fmt.Errorf("%w: %d of %d", ErrLowSignaturesWeight, weight, p.Threshold)
}

func recoverSigner(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	pub, err := crypto.SigToPub(hash.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return xroute.PubkeyToAddress(*pub), nil
}

func sortedUnique(addrs []common.Address) bool {
	seen := set.NewSet[common.Address](len(addrs))
	for i, addr := range addrs {
		if addr == (common.Address{}) || seen.Contains(addr) {
			return false
		}
		if i > 0 && bytes.Compare(addrs[i-1].Bytes(), addr.Bytes()) >= 0 {
			return false
		}
		seen.Add(addr)
	}
	return true
}
