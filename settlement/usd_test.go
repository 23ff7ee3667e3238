// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package settlement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUSDConversion(t *testing.T) {
	require := require.New(t)

	// 2.5 tokens with 18 decimals at 2 USD
	amount, err := FromUSD(u(5*USDPrecision), u(2*USDPrecision), 18)
	require.NoError(err)
	require.Equal("2500000000000000000", amount.Dec())

	usd, err := ToUSD(amount, u(2*USDPrecision), 18)
	require.NoError(err)
	require.Equal(uint64(5*USDPrecision), usd.Uint64())

	_, err = FromUSD(u(1), u(0), 6)
	require.ErrorIs(err, ErrZeroPrice)

	_, err = Pow10(MaxDecimals + 1)
	require.ErrorIs(err, ErrOverflow)
}

func TestBoundedAmountInByTVL(t *testing.T) {
	tests := []struct {
		name     string
		reserve  uint64
		usd      uint64
		tvlBps   uint64
		wantAmt  uint64
		wantOkay bool
	}{
		// price 1 USD, 6 decimals: amount == usd
		{name: "within bound", reserve: 10_000, usd: 1_000, tvlBps: 1_000, wantAmt: 1_000, wantOkay: true},
		{name: "at bound", reserve: 10_000, usd: 2_000, tvlBps: 2_000, wantAmt: 2_000, wantOkay: true},
		{name: "over bound", reserve: 10_000, usd: 1_001, tvlBps: 1_000, wantAmt: 1_001, wantOkay: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			amt, ok, err := BoundedAmountInByTVL(u(tt.reserve), u(USDPrecision), 6, u(tt.usd), tt.tvlBps)
			require.NoError(err)
			require.Equal(tt.wantOkay, ok)
			require.Equal(tt.wantAmt, amt.Uint64())
		})
	}
}
