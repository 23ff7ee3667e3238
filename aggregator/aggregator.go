// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package aggregator is the boundary to external swap venues used for the
// off-ramp leg of a swap settlement.
package aggregator

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute/pool"
	"github.com/luxfi/xroute/token"
)

// DefaultRevertReason is reported when revert data cannot be decoded.
const DefaultRevertReason = "aggregator call failed"

// minRevertLen is selector(4) + offset(32) + length(32).
const minRevertLen = 4 + 32 + 32

var (
	revertSelector = []byte{0x08, 0xc3, 0x79, 0xa0}

	ErrNoRoute = errors.New("no route")
)

// Request asks for AmountIn of TokenIn held by Caller to be sold for at
// least MinAmountOut of TokenOut paid to Receiver. Caller must have approved
// the aggregator.
type Request struct {
	Caller       common.Address
	TokenIn      common.Address
	TokenOut     common.Address
	AmountIn     *uint256.Int
	MinAmountOut *uint256.Int
	Receiver     common.Address
}

// Aggregator executes swaps on external venues. Failures are returned as
// *RevertError when the venue reverted.
type Aggregator interface {
	Address() common.Address
	Swap(req *Request) (*uint256.Int, error)
}

// RevertError carries the raw revert data of a failed call.
type RevertError struct {
	Data []byte
}

func (e *RevertError) Error() string {
	return "execution reverted: " + Reason(e.Data)
}

// Revert builds a RevertError with reason ABI-encoded as Error(string).
func Revert(reason string) *RevertError {
	stringType, _ := abi.NewType("string", "", nil)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	if err != nil {
		return &RevertError{}
	}
	return &RevertError{Data: append(append([]byte{}, revertSelector...), packed...)}
}

// Reason decodes Error(string) revert data. Data shorter than a selector,
// offset and length, or that fails to decode, yields DefaultRevertReason.
func Reason(data []byte) string {
	if len(data) < minRevertLen {
		return DefaultRevertReason
	}
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		return DefaultRevertReason
	}
	return reason
}

// ReasonOf returns the revert reason carried by err.
func ReasonOf(err error) string {
	var revert *RevertError
	if errors.As(err, &revert) {
		return Reason(revert.Data)
	}
	return DefaultRevertReason
}

var _ Aggregator = (*PoolAggregator)(nil)

// PoolAggregator routes single-hop swaps through registered pools.
type PoolAggregator struct {
	ledger  token.Ledger
	address common.Address

	mu    sync.RWMutex
	pools map[[2]common.Address]*pool.Pool
}

func NewPoolAggregator(ledger token.Ledger, address common.Address) *PoolAggregator {
	return &PoolAggregator{
		ledger:  ledger,
		address: address,
		pools:   make(map[[2]common.Address]*pool.Pool),
	}
}

func (a *PoolAggregator) Address() common.Address {
	return a.address
}

// AddPool routes both directions of p's pair through p.
func (a *PoolAggregator) AddPool(p *pool.Pool) {
	t0, t1 := p.Tokens()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pools[[2]common.Address{t0, t1}] = p
	a.pools[[2]common.Address{t1, t0}] = p
}

func (a *PoolAggregator) Swap(req *Request) (*uint256.Int, error) {
	a.mu.RLock()
	p, ok := a.pools[[2]common.Address{req.TokenIn, req.TokenOut}]
	a.mu.RUnlock()
	if !ok {
		return nil, Revert(fmt.Sprintf("%s: %s -> %s", ErrNoRoute, req.TokenIn, req.TokenOut))
	}

	if err := a.ledger.TransferFrom(req.TokenIn, a.address, req.Caller, a.address, req.AmountIn); err != nil {
		return nil, Revert(err.Error())
	}
	if err := a.ledger.Approve(req.TokenIn, a.address, p.Address(), req.AmountIn); err != nil {
		return nil, a.refund(req, err)
	}
	out, err := p.Swap(a.address, req.TokenIn, req.AmountIn, req.MinAmountOut, req.Receiver)
	if err != nil {
		return nil, a.refund(req, err)
	}
	return out, nil
}

// refund returns the pulled input to the caller and reports cause as a
// revert.
func (a *PoolAggregator) refund(req *Request, cause error) error {
	if err := a.ledger.Transfer(req.TokenIn, a.address, req.Caller, req.AmountIn); err != nil {
		return errors.Join(Revert(cause.Error()), err)
	}
	return Revert(cause.Error())
}
