// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package auth

import (
	"fmt"
	"math/bits"
)

// Bits is a little-endian bit set of validator indices.
type Bits []byte

// NewBits returns a bit set containing indices.
func NewBits(indices ...int) Bits {
	b := make(Bits, 0)
	for _, i := range indices {
		b.Add(i)
	}
	return b
}

// Add adds an index to the bit set
func (b *Bits) Add(i int) {
	if i < 0 {
		return
	}
	byteIndex := i / 8
	bitIndex := i % 8

	for len(*b) <= byteIndex {
		*b = append(*b, 0)
	}

	(*b)[byteIndex] |= 1 << uint(bitIndex) //nolint:gosec // bitIndex is always 0-7
}

// Contains returns true if the bit set contains the index
func (b Bits) Contains(i int) bool {
	if i < 0 {
		return false
	}
	byteIndex := i / 8
	if byteIndex >= len(b) {
		return false
	}
	bitIndex := i % 8
	return (b[byteIndex] & (1 << uint(bitIndex))) != 0 //nolint:gosec // bitIndex is always 0-7
}

// HighestSetBit returns the highest set index + 1, or 0 when empty.
func (b Bits) HighestSetBit() int {
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 {
			return i*8 + bits.Len8(b[i])
		}
	}
	return 0
}

// Len returns the number of set bits
func (b Bits) Len() int {
	count := 0
	for _, byte := range b {
		count += bits.OnesCount8(byte)
	}
	return count
}

// String returns a string representation of the bit set
func (b Bits) String() string {
	indices := make([]int, 0, b.Len())
	for i := 0; i < b.HighestSetBit(); i++ {
		if b.Contains(i) {
			indices = append(indices, i)
		}
	}
	return fmt.Sprintf("%v", indices)
}
