// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

// Package xroute defines the cross-chain message exchanged between router
// deployments, its canonical packed encoding and its content-addressed
// identifier.
package xroute

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

const (
	// HeaderLen is the length of the fixed-width part of an encoded message:
	// action(1) nonce(8) source(8) destination(8) usdValue(32) sender(20)
	// receiver(20) detailsLen(1).
	HeaderLen = 1 + 8 + 8 + 8 + 32 + common.AddressLength + common.AddressLength + 1

	// MaxDetailsLen is the largest details blob a one byte length prefix can carry.
	MaxDetailsLen = 255
)

var (
	ErrInvalidMessage    = errors.New("invalid message")
	ErrDetailsTooLong    = errors.New("details exceed 255 bytes")
	ErrUnknownActionType = errors.New("unknown action type")
	ErrMessageTooShort   = errors.New("message too short")
	ErrLengthMismatch    = errors.New("details length prefix does not match payload")
)

// ActionType selects how the destination router settles a message.
type ActionType uint8

const (
	ActionBridge ActionType = iota
	ActionSwap
	ActionCancel
)

func (a ActionType) String() string {
	switch a {
	case ActionBridge:
		return "bridge"
	case ActionSwap:
		return "swap"
	case ActionCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Valid reports whether a is one of the defined action types.
func (a ActionType) Valid() bool {
	return a <= ActionCancel
}

// Message is a cross-ledger instruction. Its identity is the keccak256 hash
// of Encode, so changing any field changes the identifier.
type Message struct {
	ActionType         ActionType
	Nonce              uint64
	SourceChainID      uint64
	DestinationChainID uint64
	USDValue           *uint256.Int
	Sender             common.Address
	Receiver           common.Address
	Details            []byte
}

// Encode packs the message: fixed-width big-endian fields, the two addresses,
// a one byte details length and the raw details.
func (m *Message) Encode() ([]byte, error) {
	if len(m.Details) > MaxDetailsLen {
		return nil, fmt.Errorf("%w: got %d", ErrDetailsTooLong, len(m.Details))
	}
	if !m.ActionType.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownActionType, m.ActionType)
	}

	buf := make([]byte, HeaderLen+len(m.Details))
	offset := 0

	buf[offset] = byte(m.ActionType)
	offset++
	binary.BigEndian.PutUint64(buf[offset:], m.Nonce)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], m.SourceChainID)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], m.DestinationChainID)
	offset += 8

	usd := m.USDValue
	if usd == nil {
		usd = new(uint256.Int)
	}
	usdBytes := usd.Bytes32()
	copy(buf[offset:offset+32], usdBytes[:])
	offset += 32

	copy(buf[offset:], m.Sender.Bytes())
	offset += common.AddressLength
	copy(buf[offset:], m.Receiver.Bytes())
	offset += common.AddressLength

	buf[offset] = byte(len(m.Details))
	offset++
	copy(buf[offset:], m.Details)

	return buf, nil
}

// ID returns the content-addressed identifier of the message.
func (m *Message) ID() (ids.ID, error) {
	b, err := m.Encode()
	if err != nil {
		return ids.Empty, err
	}
	return Keccak256ID(b), nil
}

// WithAction returns a copy of the message with its action type replaced.
// Cancellations are the original message re-sent with ActionCancel.
func (m *Message) WithAction(action ActionType) *Message {
	cp := *m
	cp.ActionType = action
	if m.USDValue != nil {
		cp.USDValue = new(uint256.Int).Set(m.USDValue)
	}
	cp.Details = append([]byte(nil), m.Details...)
	return &cp
}

// DecodeMessage parses a packed message. It rejects unknown action types,
// truncated input and any mismatch between the length prefix and the
// remaining bytes.
func DecodeMessage(b []byte) (*Message, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %w: got %d bytes, need at least %d", ErrInvalidMessage, ErrMessageTooShort, len(b), HeaderLen)
	}

	m := &Message{}
	offset := 0

	m.ActionType = ActionType(b[offset])
	offset++
	if !m.ActionType.Valid() {
		return nil, fmt.Errorf("%w: %w: %d", ErrInvalidMessage, ErrUnknownActionType, m.ActionType)
	}
	m.Nonce = binary.BigEndian.Uint64(b[offset:])
	offset += 8
	m.SourceChainID = binary.BigEndian.Uint64(b[offset:])
	offset += 8
	m.DestinationChainID = binary.BigEndian.Uint64(b[offset:])
	offset += 8

	m.USDValue = new(uint256.Int).SetBytes32(b[offset : offset+32])
	offset += 32

	m.Sender = common.BytesToAddress(b[offset : offset+common.AddressLength])
	offset += common.AddressLength
	m.Receiver = common.BytesToAddress(b[offset : offset+common.AddressLength])
	offset += common.AddressLength

	detailsLen := int(b[offset])
	offset++
	if len(b)-offset != detailsLen {
		return nil, fmt.Errorf("%w: %w: prefix %d, remaining %d", ErrInvalidMessage, ErrLengthMismatch, detailsLen, len(b)-offset)
	}
	m.Details = append([]byte{}, b[offset:]...)

	return m, nil
}

// Identify decodes a packed message and returns it with its identifier.
func Identify(b []byte) (*Message, ids.ID, error) {
	m, err := DecodeMessage(b)
	if err != nil {
		return nil, ids.Empty, err
	}
	return m, Keccak256ID(b), nil
}
