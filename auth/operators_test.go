// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"bytes"
	"crypto/ecdsa"
	"sort"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/log/level"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
)

func newKeys(t *testing.T, n int) []*ecdsa.PrivateKey {
	keys := make([]*ecdsa.PrivateKey, n)
	for i := range keys {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		keys[i] = key
	}
	return keys
}

func newOperatorAuth(t *testing.T, signer *OperatorSigner) *OperatorAuth {
	a, err := NewOperatorAuth(log.NewTestLogger(level.Info), signer.Params())
	require.NoError(t, err)
	return a
}

func TestOperatorProofCurrentEpoch(t *testing.T) {
	require := require.New(t)

	signer, err := NewOperatorSigner(newKeys(t, 3), []uint64{1, 2, 3}, 3)
	require.NoError(err)
	a := newOperatorAuth(t, signer)
	require.Equal(uint64(1), a.CurrentEpoch())

	data := []byte("batch")
	proof, err := signer.SignBatch(data)
	require.NoError(err)

	allowed, err := a.ValidateProof(SigningHash(data), proof)
	require.NoError(err)
	require.True(allowed)

	_, err = a.ValidateProof(SigningHash([]byte("other batch")), proof)
	require.ErrorIs(err, ErrMalformedSigners)
}

func TestOperatorProofOldEpochs(t *testing.T) {
	require := require.New(t)

	keys := newKeys(t, 1)
	first, err := NewOperatorSigner(keys, []uint64{1}, 1)
	require.NoError(err)
	a := newOperatorAuth(t, first)

	data := []byte("batch")
	proof, err := first.SignBatch(data)
	require.NoError(err)

	// epochs 2 through OldKeyRetention keep the first set valid
	for w := uint64(2); w <= OldKeyRetention; w++ {
		next, err := NewOperatorSigner(keys, []uint64{w}, 1)
		require.NoError(err)
		require.NoError(a.TransferOperatorship(next.Params().Bytes()))

		allowed, err := a.ValidateProof(SigningHash(data), proof)
		require.NoError(err)
		require.False(allowed)
	}

	last, err := NewOperatorSigner(keys, []uint64{OldKeyRetention + 1}, 1)
	require.NoError(err)
	require.NoError(a.TransferOperatorship(last.Params().Bytes()))
	require.Equal(uint64(OldKeyRetention+1), a.CurrentEpoch())

	_, err = a.ValidateProof(SigningHash(data), proof)
	require.ErrorIs(err, ErrInvalidOperators)

	latest, err := last.SignBatch(data)
	require.NoError(err)
	allowed, err := a.ValidateProof(SigningHash(data), latest)
	require.NoError(err)
	require.True(allowed)
}

func TestOperatorProofRejects(t *testing.T) {
	require := require.New(t)

	keys := newKeys(t, 2)
	signer, err := NewOperatorSigner(keys, []uint64{1, 1}, 2)
	require.NoError(err)
	a := newOperatorAuth(t, signer)

	data := []byte("batch")
	hash := SigningHash(data)
	params := signer.Params()

	// unknown operator set
	stranger, err := NewOperatorSigner(newKeys(t, 1), []uint64{1}, 1)
	require.NoError(err)
	proof, err := stranger.SignBatch(data)
	require.NoError(err)
	_, err = a.ValidateProof(hash, proof)
	require.ErrorIs(err, ErrInvalidOperators)

	sign := func(op common.Address) []byte {
		for _, k := range keys {
			if xroute.PubkeyToAddress(k.PublicKey) == op {
				sig, err := crypto.Sign(hash.Bytes(), k)
				require.NoError(err)
				return sig
			}
		}
		t.Fatalf("no key for %s", op)
		return nil
	}

	// one signature is below the threshold
	low := &payload.OperatorProof{
		Operators:  params.Operators,
		Weights:    params.Weights,
		Threshold:  params.Threshold,
		Signatures: [][]byte{sign(params.Operators[0])},
	}
	_, err = a.ValidateProof(hash, low.Bytes())
	require.ErrorIs(err, ErrLowSignaturesWeight)

	// signatures must follow operator order
	reversed := &payload.OperatorProof{
		Operators:  params.Operators,
		Weights:    params.Weights,
		Threshold:  params.Threshold,
		Signatures: [][]byte{sign(params.Operators[1]), sign(params.Operators[0])},
	}
	_, err = a.ValidateProof(hash, reversed.Bytes())
	require.ErrorIs(err, ErrMalformedSigners)

	// a repeated signature cannot count twice
	repeated := &payload.OperatorProof{
		Operators:  params.Operators,
		Weights:    params.Weights,
		Threshold:  params.Threshold,
		Signatures: [][]byte{sign(params.Operators[0]), sign(params.Operators[0])},
	}
	_, err = a.ValidateProof(hash, repeated.Bytes())
	require.ErrorIs(err, ErrMalformedSigners)

	_, err = a.ValidateProof(hash, []byte{0x01})
	require.ErrorIs(err, payload.ErrInvalidPayload)
}

func TestTransferOperatorshipValidation(t *testing.T) {
	addrs := []common.Address{
		common.HexToAddress("0x01"),
		common.HexToAddress("0x02"),
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	tests := []struct {
		name    string
		params  *payload.TransferOperatorshipParams
		wantErr error
	}{
		{
			name:    "unsorted",
			params:  &payload.TransferOperatorshipParams{Operators: []common.Address{addrs[1], addrs[0]}, Weights: []uint64{1, 1}, Threshold: 1},
			wantErr: ErrOperatorsNotSorted,
		},
		{
			name:    "duplicate address",
			params:  &payload.TransferOperatorshipParams{Operators: []common.Address{addrs[0], addrs[0]}, Weights: []uint64{1, 1}, Threshold: 1},
			wantErr: ErrOperatorsNotSorted,
		},
		{
			name:    "zero weight",
			params:  &payload.TransferOperatorshipParams{Operators: addrs, Weights: []uint64{1, 0}, Threshold: 1},
			wantErr: ErrInvalidWeights,
		},
		{
			name:    "zero threshold",
			params:  &payload.TransferOperatorshipParams{Operators: addrs, Weights: []uint64{1, 1}, Threshold: 0},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "threshold above total",
			params:  &payload.TransferOperatorshipParams{Operators: addrs, Weights: []uint64{1, 1}, Threshold: 3},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "empty",
			params:  &payload.TransferOperatorshipParams{},
			wantErr: payload.ErrEmptyOperators,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewOperatorAuth(log.NewTestLogger(level.Info))
			require.NoError(t, err)
			require.ErrorIs(t, a.TransferOperatorship(tt.params.Bytes()), tt.wantErr)
			require.Zero(t, a.CurrentEpoch())
		})
	}

	t.Run("duplicate set", func(t *testing.T) {
		require := require.New(t)
		params := &payload.TransferOperatorshipParams{Operators: addrs, Weights: []uint64{1, 1}, Threshold: 2}
		a, err := NewOperatorAuth(log.NewTestLogger(level.Info), params)
		require.NoError(err)
		require.ErrorIs(a.TransferOperatorship(params.Bytes()), ErrDuplicateOperators)
		h, ok := a.HashForEpoch(1)
		require.True(ok)
		require.Equal(OperatorsHash(addrs, []uint64{1, 1}, 2), h)
	})
}
