// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"fmt"

	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
)

var _ Authorizer = (*BLSAuth)(nil)

// BLSAuth accepts a batch when validators holding at least quorumNum /
// quorumDen of the set's weight signed its hash with one aggregate BLS
// signature. The set is fixed, so it never grants operatorship transfer.
type BLSAuth struct {
	validators *CanonicalValidatorSet
	quorumNum  uint64
	quorumDen  uint64
}

// NewBLSAuth returns an authorizer over a canonical validator set.
func NewBLSAuth(validators *CanonicalValidatorSet, quorumNum, quorumDen uint64) (*BLSAuth, error) {
	if quorumDen == 0 || quorumNum == 0 || quorumNum > quorumDen {
		return nil, fmt.Errorf("%w: quorum %d/%d", ErrInvalidThreshold, quorumNum, quorumDen)
	}
	return &BLSAuth{
		validators: validators,
		quorumNum:  quorumNum,
		quorumDen:  quorumDen,
	}, nil
}

func (a *BLSAuth) ValidateProof(signingHash common.Hash, proof []byte) (bool, error) {
	p, err := payload.ParseBLSProof(proof)
	if err != nil {
		return false, err
	}
	signers := Bits(p.Signers)
	vdrs := a.validators.Validators()
	if signers.HighestSetBit() > len(vdrs) {
		return false, fmt.Errorf("%w: signer index %d exceeds validator count %d",
			ErrMalformedSigners, signers.HighestSetBit()-1, len(vdrs))
	}

	var signedWeight uint64
	pks := make([]*bls.PublicKey, 0, signers.Len())
	for i := 0; i < signers.HighestSetBit(); i++ {
		if !signers.Contains(i) {
			continue
		}
		signedWeight, err = AddWeight(signedWeight, vdrs[i].Weight)
		if err != nil {
			return false, err
		}
		pks = append(pks, vdrs[i].PublicKey)
	}

	if err := VerifyWeight(signedWeight, a.validators.TotalWeight(), a.quorumNum, a.quorumDen); err != nil {
		return false, err
	}

	aggPK, err := bls.AggregatePublicKeys(pks)
	if err != nil {
		return false, fmt.Errorf("failed to aggregate public keys: %w", err)
	}
	sig, err := bls.SignatureFromBytes(p.Signature)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	if !bls.Verify(aggPK, sig, signingHash.Bytes()) {
		return false, ErrInvalidSignature
	}
	return false, nil
}

// TransferOperatorship is not supported by a fixed validator set.
func (*BLSAuth) TransferOperatorship([]byte) error {
	return ErrOperatorshipNotAllowed
}

// VerifyWeight verifies that the signed weight meets the quorum threshold
func VerifyWeight(signedWeight, totalWeight, quorumNum, quorumDen uint64) error {
	if signedWeight == 0 {
		return fmt.Errorf("%w: signed weight is 0", ErrInsufficientWeight)
	}

	// signedWeight / totalWeight >= quorumNum / quorumDen, cross-multiplied
	if err := xroute.CheckMulDoesNotOverflow(quorumNum, totalWeight); err != nil {
		return fmt.Errorf("%w: quorumNum * totalWeight: %w", ErrWeightOverflow, err)
	}
	if err := xroute.CheckMulDoesNotOverflow(quorumDen, signedWeight); err != nil {
		return fmt.Errorf("%w: quorumDen * signedWeight: %w", ErrWeightOverflow, err)
	}
	if quorumNum*totalWeight > quorumDen*signedWeight {
		return fmt.Errorf("%w: signed weight %d / total weight %d < quorum %d / %d",
			ErrInsufficientWeight, signedWeight, totalWeight, quorumNum, quorumDen)
	}
	return nil
}
