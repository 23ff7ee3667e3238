// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
)

func TestBridgeDetailsRoundTrip(t *testing.T) {
	require := require.New(t)

	d := &BridgeDetails{
		SourceToken:       common.HexToAddress("0x1111111111111111111111111111111111111111"),
		SourceAmount:      uint256.NewInt(1000),
		DestinationToken:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
		DestinationAmount: uint256.NewInt(995),
	}
	b := d.Bytes()
	require.Len(b, DetailsLen)

	parsed, err := ParseBridgeDetails(b)
	require.NoError(err)
	require.Equal(d.SourceToken, parsed.SourceToken)
	require.Equal(d.DestinationToken, parsed.DestinationToken)
	require.Equal(uint64(1000), parsed.SourceAmount.Uint64())
	require.Equal(uint64(995), parsed.DestinationAmount.Uint64())
}

func TestSwapDetailsNilAmountEncodesZero(t *testing.T) {
	require := require.New(t)

	d := &SwapDetails{
		SourceToken:  common.HexToAddress("0x01"),
		SourceAmount: uint256.NewInt(7),
	}
	parsed, err := ParseSwapDetails(d.Bytes())
	require.NoError(err)
	require.True(parsed.MinAmountOut.IsZero())
	require.Equal(uint64(7), parsed.SourceAmount.Uint64())
}

func TestParseDetailsRejectsWrongLength(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short", make([]byte, DetailsLen-1)},
		{"long", make([]byte, DetailsLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBridgeDetails(tt.data)
			require.ErrorIs(t, err, ErrInvalidDetails)
			_, err = ParseSwapDetails(tt.data)
			require.ErrorIs(t, err, ErrInvalidDetails)
		})
	}
}

func TestBatchData(t *testing.T) {
	require := require.New(t)

	_, err := NewBatchData(1, []ids.ID{{1}}, []string{CommandApproveContractCall}, nil)
	require.ErrorIs(err, ErrArrayLengthMismatch)

	params := &ApproveContractCallParams{
		SourceChain:     "chain-a",
		SourceAddress:   "0xabc",
		ContractAddress: common.HexToAddress("0x03"),
		PayloadHash:     common.HexToHash("0x04"),
	}
	batch, err := NewBatchData(
		2,
		[]ids.ID{{1}},
		[]string{CommandApproveContractCall},
		[][]byte{params.Bytes()},
	)
	require.NoError(err)

	decoded, err := ParseBatchData(batch.Bytes())
	require.NoError(err)
	require.Equal(uint64(2), decoded.ChainID)
	require.Equal(batch.CommandIDs, decoded.CommandIDs)
	require.Equal(batch.Commands, decoded.Commands)

	approve, err := ParseApproveContractCallParams(decoded.Params[0])
	require.NoError(err)
	require.Equal(*params, *approve)

	_, err = ParseBatchData([]byte{0xff, 0x00})
	require.ErrorIs(err, ErrInvalidPayload)
}

func TestApproveParamsRequireSource(t *testing.T) {
	p := &ApproveContractCallParams{SourceAddress: "0xabc"}
	_, err := ParseApproveContractCallParams(p.Bytes())
	require.ErrorIs(t, err, ErrInvalidPayload)
}

func TestOperatorshipParams(t *testing.T) {
	require := require.New(t)

	_, err := ParseTransferOperatorshipParams((&TransferOperatorshipParams{}).Bytes())
	require.ErrorIs(err, ErrEmptyOperators)

	p := &TransferOperatorshipParams{
		Operators: []common.Address{common.HexToAddress("0x01")},
		Weights:   []uint64{1, 2},
		Threshold: 1,
	}
	_, err = ParseTransferOperatorshipParams(p.Bytes())
	require.ErrorIs(err, ErrWeightsMismatch)

	p.Weights = []uint64{5}
	parsed, err := ParseTransferOperatorshipParams(p.Bytes())
	require.NoError(err)
	require.Equal(uint64(5), parsed.Weights[0])
}

func TestBLSProof(t *testing.T) {
	require := require.New(t)

	_, err := ParseBLSProof((&BLSProof{Signature: []byte{1}}).Bytes())
	require.ErrorIs(err, ErrInvalidPayload)

	p := &BLSProof{Signers: []byte{0x03}, Signature: []byte{9, 9}}
	parsed, err := ParseBLSProof(p.Bytes())
	require.NoError(err)
	require.Equal(p.Signers, parsed.Signers)
}
