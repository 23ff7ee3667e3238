// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"testing"

	"github.com/luxfi/crypto/bls"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/xroute/payload"
)

func newBLSKeys(t *testing.T, n int) ([]*bls.SecretKey, *CanonicalValidatorSet) {
	keys := make([]*bls.SecretKey, n)
	vdrs := make([]*Validator, n)
	for i := range keys {
		seed := make([]byte, 32)
		for j := range seed {
			seed[j] = byte(i*32 + j + 1)
		}
		sk, err := bls.SecretKeyFromSeed(seed)
		require.NoError(t, err)
		keys[i] = sk
		vdrs[i] = NewValidator(sk.PublicKey(), 10)
	}
	set, err := NewCanonicalValidatorSet(vdrs)
	require.NoError(t, err)
	return keys, set
}

func TestBLSAuth(t *testing.T) {
	require := require.New(t)

	keys, set := newBLSKeys(t, 3)
	require.Equal(uint64(30), set.TotalWeight())

	a, err := NewBLSAuth(set, 2, 3)
	require.NoError(err)

	data := []byte("batch")
	signer, err := NewBLSSigner(set, keys[0], keys[2])
	require.NoError(err)
	proof, err := signer.SignBatch(data)
	require.NoError(err)

	allowed, err := a.ValidateProof(SigningHash(data), proof)
	require.NoError(err)
	require.False(allowed)

	_, err = a.ValidateProof(SigningHash([]byte("tampered")), proof)
	require.ErrorIs(err, ErrInvalidSignature)

	lone, err := NewBLSSigner(set, keys[1])
	require.NoError(err)
	proof, err = lone.SignBatch(data)
	require.NoError(err)
	_, err = a.ValidateProof(SigningHash(data), proof)
	require.ErrorIs(err, ErrInsufficientWeight)

	require.ErrorIs(a.TransferOperatorship(nil), ErrOperatorshipNotAllowed)
}

func TestBLSAuthRejectsOutOfRangeSigners(t *testing.T) {
	keys, set := newBLSKeys(t, 2)
	a, err := NewBLSAuth(set, 1, 2)
	require.NoError(t, err)

	sig, err := keys[0].Sign([]byte("x"))
	require.NoError(t, err)
	proof := &payload.BLSProof{Signers: NewBits(5), Signature: bls.SignatureToBytes(sig)}
	_, err = a.ValidateProof(SigningHash([]byte("x")), proof.Bytes())
	require.ErrorIs(t, err, ErrMalformedSigners)
}

func TestNewBLSAuthQuorum(t *testing.T) {
	_, set := newBLSKeys(t, 1)
	for _, q := range [][2]uint64{{0, 1}, {1, 0}, {3, 2}} {
		_, err := NewBLSAuth(set, q[0], q[1])
		require.ErrorIs(t, err, ErrInvalidThreshold)
	}
}

func TestVerifyWeight(t *testing.T) {
	tests := []struct {
		name         string
		signedWeight uint64
		totalWeight  uint64
		quorumNum    uint64
		quorumDen    uint64
		wantErr      error
	}{
		{"exact quorum", 67, 100, 67, 100, nil},
		{"below quorum", 66, 100, 67, 100, ErrInsufficientWeight},
		{"zero weight", 0, 100, 1, 2, ErrInsufficientWeight},
		{"overflow", 1, ^uint64(0), 2, 3, ErrWeightOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyWeight(tt.signedWeight, tt.totalWeight, tt.quorumNum, tt.quorumDen)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestBits(t *testing.T) {
	require := require.New(t)

	b := NewBits(0, 9)
	require.True(b.Contains(0))
	require.True(b.Contains(9))
	require.False(b.Contains(1))
	require.False(b.Contains(-1))
	require.Equal(2, b.Len())
	require.Equal(10, b.HighestSetBit())
	require.Equal("[0 9]", b.String())
	require.Zero(NewBits().HighestSetBit())
}

func TestCanonicalValidatorSetRejectsDuplicates(t *testing.T) {
	keys, _ := newBLSKeys(t, 1)
	v := NewValidator(keys[0].PublicKey(), 1)
	_, err := NewCanonicalValidatorSet([]*Validator{v, v})
	require.ErrorIs(t, err, ErrInvalidValidator)

	_, err = NewCanonicalValidatorSet(nil)
	require.ErrorIs(t, err, ErrEmptyValidatorSet)
}
