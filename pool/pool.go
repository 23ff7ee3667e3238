// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package pool is a two-asset constant-product liquidity pool whose
// reserves are the pool's own balances on a token ledger.
package pool

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/token"
)

var (
	ErrIdenticalTokens = errors.New("identical tokens")
	ErrTokenNotInPool  = errors.New("token not in pool")
	ErrReentrant       = errors.New("reentrant call")
)

// Pool prices trades between Token0 and Token1 with x*y=k.
type Pool struct {
	ledger  token.Ledger
	address common.Address
	token0  common.Address
	token1  common.Address
	feeBps  uint64

	mu     sync.Mutex
	locked bool
}

// New returns the pool at address trading tokenA against tokenB with a
// fee of feeBps taken from the input.
func New(ledger token.Ledger, address, tokenA, tokenB common.Address, feeBps uint64) (*Pool, error) {
	if tokenA == tokenB {
		return nil, fmt.Errorf("%w: %s", ErrIdenticalTokens, tokenA)
	}
	if feeBps >= settlement.BasisPoints {
		return nil, settlement.ErrInvalidFee
	}
	return &Pool{
		ledger:  ledger,
		address: address,
		token0:  tokenA,
		token1:  tokenB,
		feeBps:  feeBps,
	}, nil
}

func (p *Pool) Address() common.Address {
	return p.address
}

func (p *Pool) Tokens() (common.Address, common.Address) {
	return p.token0, p.token1
}

// Fee returns the swap fee in bps.
func (p *Pool) Fee() uint64 {
	return p.feeBps
}

// Other returns the counter-asset of tok.
func (p *Pool) Other(tok common.Address) (common.Address, error) {
	switch tok {
	case p.token0:
		return p.token1, nil
	case p.token1:
		return p.token0, nil
	default:
		return common.Address{}, fmt.Errorf("%w: %s", ErrTokenNotInPool, tok)
	}
}

// ReserveOf returns the pool's balance of tok.
func (p *Pool) ReserveOf(tok common.Address) (*uint256.Int, error) {
	if _, err := p.Other(tok); err != nil {
		return nil, err
	}
	return p.ledger.BalanceOf(tok, p.address), nil
}

// Reserves returns the reserves ordered as (tokenIn, counter-asset).
func (p *Pool) Reserves(tokenIn common.Address) (reserveIn, reserveOut *uint256.Int, err error) {
	tokenOut, err := p.Other(tokenIn)
	if err != nil {
		return nil, nil, err
	}
	return p.ledger.BalanceOf(tokenIn, p.address), p.ledger.BalanceOf(tokenOut, p.address), nil
}

// QuoteOut returns what amountIn of tokenIn buys right now.
func (p *Pool) QuoteOut(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	return settlement.QuoteAmountOut(reserveIn, reserveOut, amountIn, p.feeBps)
}

// QuoteIn returns how much tokenIn buys amountOut of the counter-asset.
func (p *Pool) QuoteIn(tokenIn common.Address, amountOut *uint256.Int) (*uint256.Int, error) {
	reserveIn, reserveOut, err := p.Reserves(tokenIn)
	if err != nil {
		return nil, err
	}
	return settlement.QuoteAmountIn(reserveIn, reserveOut, amountOut, p.feeBps)
}

// ImpliedPrice derives the USD price of tok from the USD price of its
// counter-asset and the reserve ratio, adjusting for decimals.
func (p *Pool) ImpliedPrice(tok common.Address, counterPrice *uint256.Int) (*uint256.Int, error) {
	counter, err := p.Other(tok)
	if err != nil {
		return nil, err
	}
	reserve := p.ledger.BalanceOf(tok, p.address)
	counterReserve := p.ledger.BalanceOf(counter, p.address)
	if reserve.IsZero() || counterReserve.IsZero() {
		return nil, settlement.ErrInsufficientLiquidity
	}

	dec, err := p.ledger.Decimals(tok)
	if err != nil {
		return nil, err
	}
	counterDec, err := p.ledger.Decimals(counter)
	if err != nil {
		return nil, err
	}
	scale, err := settlement.Pow10(dec)
	if err != nil {
		return nil, err
	}
	counterScale, err := settlement.Pow10(counterDec)
	if err != nil {
		return nil, err
	}

	value, overflow := new(uint256.Int).MulOverflow(counterPrice, counterReserve)
	if overflow {
		return nil, settlement.ErrOverflow
	}
	den, overflow := new(uint256.Int).MulOverflow(reserve, counterScale)
	if overflow {
		return nil, settlement.ErrOverflow
	}
	price, overflow := new(uint256.Int).MulDivOverflow(value, scale, den)
	if overflow {
		return nil, settlement.ErrOverflow
	}
	if price.IsZero() {
		return nil, settlement.ErrZeroPrice
	}
	return price, nil
}

// Swap sells amountIn of tokenIn from trader, who must have approved the
// pool, and pays the output to receiver.
func (p *Pool) Swap(trader, tokenIn common.Address, amountIn, minAmountOut *uint256.Int, receiver common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	if p.locked {
		p.mu.Unlock()
		return nil, ErrReentrant
	}
	p.locked = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.locked = false
		p.mu.Unlock()
	}()

	tokenOut, err := p.Other(tokenIn)
	if err != nil {
		return nil, err
	}
	amountOut, err := p.QuoteOut(tokenIn, amountIn)
	if err != nil {
		return nil, err
	}
	if minAmountOut != nil && amountOut.Lt(minAmountOut) {
		return nil, fmt.Errorf("%w: out %s, min %s", settlement.ErrInsufficientOutput, amountOut, minAmountOut)
	}

	if err := token.NewAsset(p.ledger, tokenIn).TransferFrom(p.address, trader, p.address, amountIn); err != nil {
		return nil, err
	}
	if err := p.ledger.Transfer(tokenOut, p.address, receiver, amountOut); err != nil {
		if rerr := p.ledger.Transfer(tokenIn, p.address, trader, amountIn); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}
	return amountOut, nil
}
