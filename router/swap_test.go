// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/log/level"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/aggregator"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/pool"
	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/token"
)

var (
	xrtA     = common.HexToAddress("0x00000000000000000000000000000000000000d1")
	xrtB     = common.HexToAddress("0x00000000000000000000000000000000000000d2")
	usdcB    = common.HexToAddress("0x00000000000000000000000000000000000000d3")
	poolAddr = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	aggAddr  = common.HexToAddress("0x00000000000000000000000000000000000000f2")
)

// swapEnv settles in XRT on both chains. Chain B pools 1,000 XRT against
// 2,000 USDC, so XRT trades at $2.
type swapEnv struct {
	a, b   *testChain
	ra, rb *SwapRouter
	pool   *pool.Pool
}

func newSwapEnv(t *testing.T) *swapEnv {
	require := require.New(t)

	a := newTestChain(t, chainA, nameA)
	b := newTestChain(t, chainB, nameB)
	require.NoError(a.ledger.Register(xrtA, "XRT", 18, routerAddr))
	require.NoError(b.ledger.Register(xrtB, "XRT", 18, routerAddr))
	require.NoError(b.ledger.Register(usdcB, "USDC", 6))
	a.feed.SetPrice(xrtA, uint256.NewInt(2*usdPrice))
	b.feed.SetPrice(usdcB, uint256.NewInt(usdPrice))

	require.NoError(b.ledger.Fund(xrtB, poolAddr, units(1_000, 18)))
	require.NoError(b.ledger.Fund(usdcB, poolAddr, units(2_000, 6)))
	p, err := pool.New(b.ledger, poolAddr, xrtB, usdcB, 30)
	require.NoError(err)
	agg := aggregator.NewPoolAggregator(b.ledger, aggAddr)
	agg.AddPool(p)

	// 1% subsidy up to $100, capped at $1
	subsidy, err := settlement.NewTierTable([]settlement.Tier{
		{Threshold: uint256.NewInt(100 * usdPrice), Rate: 100},
		{Rate: 0},
	})
	require.NoError(err)

	logger := log.NewTestLogger(level.Info)
	ra := NewSwapRouter(logger, &SwapConfig{
		Config:          *a.config(),
		SettlementToken: xrtA,
	})
	rb := NewSwapRouter(logger, &SwapConfig{
		Config:          *b.config(),
		SettlementToken: xrtB,
		Pool:            p,
		Aggregator:      agg,
		SubsidyTiers:    subsidy,
		USDMaxSubsidy:   uint256.NewInt(usdPrice),
		TVLPercentage:   5_000,
		DebtThreshold:   units(1_000_000, 18),
	})
	registerChains(t, ra)
	registerChains(t, rb)
	require.NoError(rb.SetSupportedToken(owner, usdcB, true))

	require.NoError(a.ledger.Fund(xrtA, sender, units(100, 18)))
	require.NoError(a.ledger.Approve(xrtA, sender, routerAddr, units(100, 18)))
	require.NoError(a.ledger.Approve(xrtA, sender, gasAddr, units(100, 18)))

	return &swapEnv{a: a, b: b, ra: ra, rb: rb, pool: p}
}

func (e *swapEnv) request(dest uint64, destToken common.Address, minOut *uint256.Int) *SwapRequest {
	return &SwapRequest{
		Sender:             sender,
		DestinationChainID: dest,
		Receiver:           receiver,
		Details: payload.SwapDetails{
			SourceToken:      xrtA,
			SourceAmount:     units(10, 18),
			DestinationToken: destToken,
			MinAmountOut:     minOut,
		},
	}
}

// deliver sends 10 XRT from A and executes it on B.
func (e *swapEnv) deliver(t *testing.T, destToken common.Address, minOut *uint256.Int) (*SendResult, *ExecuteResult) {
	res, err := e.ra.Send(e.request(chainB, destToken, minOut))
	require.NoError(t, err)
	result, err := e.rb.Execute(approve(t, e.a, e.b, lastCall(t, e.a)))
	require.NoError(t, err)
	return res, result
}

func requireSolvency(t *testing.T, r *SwapRouter, sold, boughtBack *uint256.Int) {
	s, err := r.Solvency()
	require.NoError(t, err)
	require.Equal(t, sold.String(), s.TotalSold.String())
	require.Equal(t, boughtBack.String(), s.TotalBoughtBack.String())
}

func TestSwapSendBooksBuyBack(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	res, err := e.ra.Send(e.request(chainB, xrtB, nil))
	require.NoError(err)

	// $20 at 0.5%
	remaining := new(uint256.Int).Sub(units(10, 18), res.Fee)
	require.Equal(new(uint256.Int).Div(units(10, 18), uint256.NewInt(200)), res.Fee)
	require.Equal(uint64(19_900_000), res.Message.USDValue.Uint64())
	require.Equal(xroute.ActionSwap, res.Message.ActionType)

	details, err := payload.ParseSwapDetails(res.Message.Details)
	require.NoError(err)
	require.Equal(remaining, details.SourceAmount)
	require.True(details.MinAmountOut.IsZero())

	requireSolvency(t, e.ra, new(uint256.Int), remaining)
	require.Equal(units(90, 18), e.a.ledger.BalanceOf(xrtA, sender))
}

func TestSwapSettlementDelivery(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	want, err := e.pool.QuoteOut(usdcB, uint256.NewInt(19_900_000))
	require.NoError(err)

	res, result := e.deliver(t, xrtB, nil)
	require.Equal(res.MessageID, result.MessageID)
	require.Equal(StatusCompleted, result.Status)
	require.Equal(want, e.b.ledger.BalanceOf(xrtB, receiver))
	requireSolvency(t, e.rb, want, new(uint256.Int))

	// paid from custody, the pool is untouched
	reserve, err := e.pool.ReserveOf(xrtB)
	require.NoError(err)
	require.Equal(units(1_000, 18), reserve)
}

func TestSwapMinimumOutputCancels(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	res, result := e.deliver(t, xrtB, units(100, 18))
	require.Equal(StatusCanceled, result.Status)
	require.True(result.Bounced)
	require.Contains(result.Reason, "insufficient output amount")
	require.True(e.b.ledger.BalanceOf(xrtB, receiver).IsZero())
	requireSolvency(t, e.rb, new(uint256.Int), new(uint256.Int))

	ack, err := e.ra.Execute(approve(t, e.b, e.a, lastCall(t, e.b)))
	require.NoError(err)
	require.Equal(res.MessageID, ack.MessageID)
	require.Equal(StatusCanceled, ack.Status)

	refunded := new(uint256.Int).Sub(units(100, 18), res.Fee)
	require.Equal(refunded, e.a.ledger.BalanceOf(xrtA, sender))
	requireSolvency(t, e.ra, new(uint256.Int), new(uint256.Int))
}

func TestSwapOffRampThroughAggregator(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	usd := uint256.NewInt(19_900_000)
	base, err := settlement.FromUSD(usd, uint256.NewInt(2*usdPrice), 18)
	require.NoError(err)
	// 1% of $19.90 in XRT at $2
	bonus, err := settlement.FromUSD(uint256.NewInt(199_000), uint256.NewInt(2*usdPrice), 18)
	require.NoError(err)
	ceiling := new(uint256.Int).Add(base, bonus)
	needed, err := e.pool.QuoteIn(xrtB, usd)
	require.NoError(err)
	amountIn := settlement.Min(needed, ceiling)
	wantOut, err := e.pool.QuoteOut(xrtB, amountIn)
	require.NoError(err)

	_, result := e.deliver(t, usdcB, nil)
	require.Equal(StatusCompleted, result.Status)
	require.Equal(wantOut, e.b.ledger.BalanceOf(usdcB, receiver))
	requireSolvency(t, e.rb, amountIn, new(uint256.Int))

	reserve, err := e.pool.ReserveOf(xrtB)
	require.NoError(err)
	require.Equal(new(uint256.Int).Add(units(1_000, 18), amountIn), reserve)
	require.True(e.b.ledger.BalanceOf(xrtB, routerAddr).IsZero())
	require.True(e.b.ledger.Allowance(xrtB, routerAddr, aggAddr).IsZero())
}

func TestSwapSubsidyCapBinds(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)
	// 1% of $19.90 is $0.199, well above a $0.05 cap
	require.NoError(e.rb.SetUSDMaxSubsidy(owner, uint256.NewInt(50_000)))

	usd := uint256.NewInt(19_900_000)
	base, err := settlement.FromUSD(usd, uint256.NewInt(2*usdPrice), 18)
	require.NoError(err)
	bonus, err := settlement.FromUSD(uint256.NewInt(50_000), uint256.NewInt(2*usdPrice), 18)
	require.NoError(err)
	ceiling := new(uint256.Int).Add(base, bonus)
	require.Equal(units(9_975, 15), ceiling)

	needed, err := e.pool.QuoteIn(xrtB, usd)
	require.NoError(err)
	require.True(ceiling.Lt(needed))
	wantOut, err := e.pool.QuoteOut(xrtB, ceiling)
	require.NoError(err)

	_, result := e.deliver(t, usdcB, nil)
	require.Equal(StatusCompleted, result.Status)
	require.Equal(wantOut, e.b.ledger.BalanceOf(usdcB, receiver))
	requireSolvency(t, e.rb, ceiling, new(uint256.Int))
}

func TestSwapAggregatorRevertCancels(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	_, result := e.deliver(t, usdcB, units(1_000, 6))
	require.Equal(StatusCanceled, result.Status)
	require.Contains(result.Reason, "insufficient output amount")

	// the released XRT went back into custody
	require.True(e.b.ledger.BalanceOf(xrtB, routerAddr).IsZero())
	require.Equal(units(1_000, 18), e.b.ledger.TotalSupply(xrtB))
	require.True(e.b.ledger.Allowance(xrtB, routerAddr, aggAddr).IsZero())
	requireSolvency(t, e.rb, new(uint256.Int), new(uint256.Int))
	require.Equal(nameA, lastCall(t, e.b).DestinationChain)
}

func TestSwapCircuitBreaker(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)
	require.NoError(e.rb.SetDebtThreshold(owner, uint256.NewInt(1)))

	res, err := e.ra.Send(e.request(chainB, xrtB, nil))
	require.NoError(err)
	req := approve(t, e.a, e.b, lastCall(t, e.a))

	_, err = e.rb.Execute(req)
	require.ErrorIs(err, ErrCircuitBreaker)
	received, err := e.rb.ReceivedMessage(res.MessageID)
	require.NoError(err)
	require.Equal(StatusNotSet, received.Status)
	require.True(isApproved(t, e.b, req))

	// the approval survives so delivery can be retried
	require.NoError(e.rb.SetDebtThreshold(owner, units(1_000, 18)))
	result, err := e.rb.Execute(req)
	require.NoError(err)
	require.Equal(StatusCompleted, result.Status)
}

func TestSwapDeliveryCancels(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*testing.T, *swapEnv)
		destToken  common.Address
		wantReason string
	}{
		{
			name: "tvl bound",
			setup: func(t *testing.T, e *swapEnv) {
				require.NoError(t, e.rb.SetTVLPercentage(owner, 1))
			},
			destToken:  usdcB,
			wantReason: "exceeds tvl bound",
		},
		{
			name: "unsupported destination token",
			setup: func(t *testing.T, e *swapEnv) {
				require.NoError(t, e.rb.SetSupportedToken(owner, usdcB, false))
			},
			destToken:  usdcB,
			wantReason: "unsupported destination token",
		},
		{
			name: "no route",
			setup: func(t *testing.T, e *swapEnv) {
				require.NoError(t, e.rb.SetSupportedToken(owner, stranger, true))
			},
			destToken:  stranger,
			wantReason: aggregator.ErrNoRoute.Error(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			e := newSwapEnv(t)
			tt.setup(t, e)

			res, result := e.deliver(t, tt.destToken, nil)
			require.Equal(StatusCanceled, result.Status)
			require.Contains(result.Reason, tt.wantReason)

			received, err := e.rb.ReceivedMessage(res.MessageID)
			require.NoError(err)
			require.Equal(StatusCanceled, received.Status)
			requireSolvency(t, e.rb, new(uint256.Int), new(uint256.Int))
		})
	}
}

func TestSwapWrongDestination(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	_, err := e.ra.Send(e.request(chainC, xrtB, nil))
	require.NoError(err)
	result, err := e.rb.Execute(approve(t, e.a, e.b, lastCall(t, e.a)))
	require.NoError(err)
	require.Equal(StatusCanceled, result.Status)
	require.Contains(result.Reason, "wrong destination chain")
}

func TestSwapRejectsBridgeAction(t *testing.T) {
	e := newSwapEnv(t)

	msg := &xroute.Message{
		ActionType:         xroute.ActionBridge,
		Nonce:              1,
		SourceChainID:      chainA,
		DestinationChainID: chainB,
		Sender:             sender,
		Receiver:           receiver,
	}
	encoded, err := msg.Encode()
	require.NoError(t, err)

	_, err = e.rb.Execute(&ExecuteRequest{
		CommandID:     ids.ID{1},
		SourceChain:   nameA,
		SourceAddress: routerAddr.Hex(),
		Payload:       encoded,
	})
	require.ErrorIs(t, err, ErrUnsupportedAction)
}

func TestSwapSendValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SwapRequest)
		wantErr error
	}{
		{"relay gas", func(r *SwapRequest) { r.RelayGas = uint256.NewInt(1) }, ErrInvalidRelayGas},
		{"native", func(r *SwapRequest) { r.Details.SourceToken = token.Native }, ErrNativeToken},
		{"unsupported", func(r *SwapRequest) { r.Details.SourceToken = stranger }, ErrUnsupportedToken},
		{"zero amount", func(r *SwapRequest) { r.Details.SourceAmount = nil }, ErrZeroAmount},
		{"same chain", func(r *SwapRequest) { r.DestinationChainID = chainA }, ErrSameChain},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSwapEnv(t)
			req := e.request(chainB, xrtB, nil)
			tt.mutate(req)
			_, err := e.ra.Send(req)
			require.ErrorIs(t, err, tt.wantErr)
			requireSolvency(t, e.ra, new(uint256.Int), new(uint256.Int))
		})
	}
}

func TestSwapRelayGasCovered(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)
	require.NoError(e.a.ledger.Fund(token.Native, sender, uint256.NewInt(10)))

	req := e.request(chainB, xrtB, nil)
	req.Value = uint256.NewInt(3)
	req.RelayGas = uint256.NewInt(2)
	_, err := e.ra.Send(req)
	require.NoError(err)
	require.Equal(uint64(3), e.a.ledger.BalanceOf(token.Native, gasAddr).Uint64())
}

func TestSwapAdmin(t *testing.T) {
	require := require.New(t)
	e := newSwapEnv(t)

	require.Equal(xrtB, e.rb.SettlementToken())
	require.True(e.rb.IsSupported(xrtB))
	require.ErrorIs(e.rb.SetSupportedToken(owner, token.Native, true), ErrNativeToken)
	require.ErrorIs(e.rb.SetSupportedToken(stranger, usdcB, false), ErrNotOwner)
	require.ErrorIs(e.rb.SetTVLPercentage(owner, settlement.BasisPoints+1), settlement.ErrRateOutOfBounds)
	require.ErrorIs(e.rb.SetAggregator(stranger, nil), ErrNotOwner)

	require.NoError(e.rb.SetSupportedToken(owner, usdcB, false))
	require.False(e.rb.IsSupported(usdcB))

	// no aggregator is a hard failure for off-ramp deliveries
	require.NoError(e.rb.SetSupportedToken(owner, usdcB, true))
	require.NoError(e.rb.SetAggregator(owner, nil))
	_, err := e.ra.Send(e.request(chainB, usdcB, nil))
	require.NoError(err)
	_, err = e.rb.Execute(approve(t, e.a, e.b, lastCall(t, e.a)))
	require.ErrorIs(err, ErrNoAggregator)
}
