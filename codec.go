// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package xroute

import (
	"github.com/luxfi/geth/rlp"
)

// CodecImpl is used for serializing/deserializing relay envelopes: command
// batches, proofs and stored records. Messages themselves use the packed
// encoding in message.go.
type CodecImpl struct{}

// Codec is the default codec instance
var Codec = &CodecImpl{}

// Marshal serializes the value
func (c *CodecImpl) Marshal(v interface{}) ([]byte, error) {
	return rlp.EncodeToBytes(v)
}

// Unmarshal deserializes the bytes into v. Trailing bytes are rejected.
func (c *CodecImpl) Unmarshal(b []byte, v interface{}) error {
	return rlp.DecodeBytes(b, v)
}
