// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package settlement holds the pure pricing functions used to settle
// cross-chain swaps: constant-product quotes, USD conversion, the TVL bound
// and tiered rate tables. Nothing here mutates state.
package settlement

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// BasisPoints is the denominator of every rate in this package.
const BasisPoints uint64 = 10_000

var (
	ErrInsufficientInput     = errors.New("insufficient input amount")
	ErrInsufficientOutput    = errors.New("insufficient output amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidFee            = errors.New("fee must be below 10000 bps")
	ErrOverflow              = errors.New("arithmetic overflow")
	ErrZeroPrice             = errors.New("zero price")
)

var bps = uint256.NewInt(BasisPoints)

// QuoteAmountOut returns the output of selling amountIn into a
// constant-product pool after deducting feeBps from the input. Division
// truncates toward zero.
func QuoteAmountOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountIn == nil || amountIn.IsZero() {
		return nil, ErrInsufficientInput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if feeBps >= BasisPoints {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}

	inWithFee, overflow := new(uint256.Int).MulOverflow(amountIn, uint256.NewInt(BasisPoints-feeBps))
	if overflow {
		return nil, ErrOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(inWithFee, reserveOut)
	if overflow {
		return nil, ErrOverflow
	}
	denominator, overflow := new(uint256.Int).MulOverflow(reserveIn, bps)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = denominator.AddOverflow(denominator, inWithFee); overflow {
		return nil, ErrOverflow
	}
	return numerator.Div(numerator, denominator), nil
}

// QuoteAmountIn returns the input needed to buy amountOut from a
// constant-product pool. The quotient is rounded up by adding one so that
// QuoteAmountOut of the result never falls short of amountOut.
func QuoteAmountIn(reserveIn, reserveOut, amountOut *uint256.Int, feeBps uint64) (*uint256.Int, error) {
	if amountOut == nil || amountOut.IsZero() {
		return nil, ErrInsufficientOutput
	}
	if reserveIn == nil || reserveOut == nil || reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, fmt.Errorf("%w: want %s of %s", ErrInsufficientLiquidity, amountOut, reserveOut)
	}
	if feeBps >= BasisPoints {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFee, feeBps)
	}

	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, ErrOverflow
	}
	if _, overflow = numerator.MulOverflow(numerator, bps); overflow {
		return nil, ErrOverflow
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	if _, overflow = denominator.MulOverflow(denominator, uint256.NewInt(BasisPoints-feeBps)); overflow {
		return nil, ErrOverflow
	}

	amountIn := numerator.Div(numerator, denominator)
	if _, overflow = amountIn.AddOverflow(amountIn, uint256.NewInt(1)); overflow {
		return nil, ErrOverflow
	}
	return amountIn, nil
}

// ApplyBps returns amount * rate / 10000.
func ApplyBps(amount *uint256.Int, rate uint64) (*uint256.Int, error) {
	out, overflow := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(rate), bps)
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Min returns a copy of the smaller of a and b.
func Min(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}

// ApplySubsidyCap bounds a computed subsidy by the global cap.
func ApplySubsidyCap(subsidy, usdMaxSubsidy *uint256.Int) *uint256.Int {
	return Min(subsidy, usdMaxSubsidy)
}
