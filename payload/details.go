// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

// DetailsLen is the packed size of both bridge and swap details:
// token(20) amount(32) token(20) amount(32).
const DetailsLen = common.AddressLength + 32 + common.AddressLength + 32

var ErrInvalidDetails = errors.New("invalid details")

// BridgeDetails carries the token leg of a bridge message.
type BridgeDetails struct {
	SourceToken       common.Address
	SourceAmount      *uint256.Int
	DestinationToken  common.Address
	DestinationAmount *uint256.Int
}

// SwapDetails carries the token leg of a swap message. MinAmountOut is the
// least the receiver accepts on the destination ledger.
type SwapDetails struct {
	SourceToken      common.Address
	SourceAmount     *uint256.Int
	DestinationToken common.Address
	MinAmountOut     *uint256.Int
}

// Bytes packs the bridge details.
func (d *BridgeDetails) Bytes() []byte {
	return packLeg(d.SourceToken, d.SourceAmount, d.DestinationToken, d.DestinationAmount)
}

// ParseBridgeDetails unpacks bridge details, rejecting any input that is not
// exactly DetailsLen bytes.
func ParseBridgeDetails(data []byte) (*BridgeDetails, error) {
	src, srcAmt, dst, dstAmt, err := unpackLeg(data)
	if err != nil {
		return nil, err
	}
	return &BridgeDetails{
		SourceToken:       src,
		SourceAmount:      srcAmt,
		DestinationToken:  dst,
		DestinationAmount: dstAmt,
	}, nil
}

// Bytes packs the swap details.
func (d *SwapDetails) Bytes() []byte {
	return packLeg(d.SourceToken, d.SourceAmount, d.DestinationToken, d.MinAmountOut)
}

// ParseSwapDetails unpacks swap details.
func ParseSwapDetails(data []byte) (*SwapDetails, error) {
	src, srcAmt, dst, minOut, err := unpackLeg(data)
	if err != nil {
		return nil, err
	}
	return &SwapDetails{
		SourceToken:      src,
		SourceAmount:     srcAmt,
		DestinationToken: dst,
		MinAmountOut:     minOut,
	}, nil
}

func packLeg(srcToken common.Address, srcAmount *uint256.Int, dstToken common.Address, dstAmount *uint256.Int) []byte {
	buf := make([]byte, DetailsLen)
	offset := 0

	copy(buf[offset:], srcToken.Bytes())
	offset += common.AddressLength
	putUint256(buf[offset:offset+32], srcAmount)
	offset += 32
	copy(buf[offset:], dstToken.Bytes())
	offset += common.AddressLength
	putUint256(buf[offset:offset+32], dstAmount)

	return buf
}

func unpackLeg(data []byte) (common.Address, *uint256.Int, common.Address, *uint256.Int, error) {
	if len(data) != DetailsLen {
		return common.Address{}, nil, common.Address{}, nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidDetails, DetailsLen, len(data))
	}
	offset := 0

	srcToken := common.BytesToAddress(data[offset : offset+common.AddressLength])
	offset += common.AddressLength
	srcAmount := new(uint256.Int).SetBytes32(data[offset : offset+32])
	offset += 32
	dstToken := common.BytesToAddress(data[offset : offset+common.AddressLength])
	offset += common.AddressLength
	dstAmount := new(uint256.Int).SetBytes32(data[offset : offset+32])

	return srcToken, srcAmount, dstToken, dstAmount, nil
}

func putUint256(dst []byte, v *uint256.Int) {
	if v == nil {
		return
	}
	b := v.Bytes32()
	copy(dst, b[:])
}
