// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"fmt"

	"github.com/holiman/uint256"
)

// USD values and prices carry six decimals.
const (
	USDDecimals  = 6
	USDPrecision = 1_000_000
)

// MaxDecimals bounds token decimals so 10^decimals fits comfortably.
const MaxDecimals = 36

// Pow10 returns 10^n.
func Pow10(n uint8) (*uint256.Int, error) {
	if n > MaxDecimals {
		return nil, fmt.Errorf("%w: 10^%d", ErrOverflow, n)
	}
	return new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(n))), nil
}

// ToUSD prices amount base units of a token with the given decimals:
// amount * price / 10^decimals.
func ToUSD(amount, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	unit, err := Pow10(decimals)
	if err != nil {
		return nil, err
	}
	usd, overflow := new(uint256.Int).MulDivOverflow(amount, price, unit)
	if overflow {
		return nil, ErrOverflow
	}
	return usd, nil
}

// FromUSD converts a USD value to base units: usd * 10^decimals / price.
func FromUSD(usd, price *uint256.Int, decimals uint8) (*uint256.Int, error) {
	if price == nil || price.IsZero() {
		return nil, ErrZeroPrice
	}
	unit, err := Pow10(decimals)
	if err != nil {
		return nil, err
	}
	amount, overflow := new(uint256.Int).MulDivOverflow(usd, unit, price)
	if overflow {
		return nil, ErrOverflow
	}
	return amount, nil
}

// BoundedAmountInByTVL converts usdValue into units of a token priced at
// price and checks the result against tvlBps of the token's pool reserve.
// A value over the bound is reported with ok=false rather than an error so
// callers can route it into a cancellation.
func BoundedAmountInByTVL(reserve, price *uint256.Int, decimals uint8, usdValue *uint256.Int, tvlBps uint64) (amount *uint256.Int, ok bool, err error) {
	amount, err = FromUSD(usdValue, price, decimals)
	if err != nil {
		return nil, false, err
	}
	bound, err := ApplyBps(reserve, tvlBps)
	if err != nil {
		return nil, false, err
	}
	return amount, amount.Cmp(bound) <= 0, nil
}
