// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package token models the fungible-token ledger of one chain: native
// currency plus any number of registered assets, with allowances and
// mint/burn roles.
package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

// Native is the address under which the chain's native currency is booked.
var Native = common.Address{}

// NativeDecimals is the precision of the native currency.
const NativeDecimals = 18

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrTokenExists           = errors.New("token already registered")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrNotMinter             = errors.New("caller is not a minter")
	ErrNativeAsset           = errors.New("operation not supported for native currency")
	ErrBalanceOverflow       = errors.New("balance overflow")
)

// Ledger is the token capability consumed by gateways, routers and gas
// services.
type Ledger interface {
	Decimals(token common.Address) (uint8, error)
	BalanceOf(token, holder common.Address) *uint256.Int
	Allowance(token, owner, spender common.Address) *uint256.Int
	Transfer(token, from, to common.Address, amount *uint256.Int) error
	TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error
	Approve(token, owner, spender common.Address, amount *uint256.Int) error
	Mint(token, minter, to common.Address, amount *uint256.Int) error
	Burn(token, burner, from common.Address, amount *uint256.Int) error
}

// TransferHook observes every balance movement after it has been applied.
// Hooks run without the ledger lock held and may call back into anything,
// which makes them the way tests model token callbacks.
type TransferHook func(token, from, to common.Address, amount *uint256.Int)

type tokenInfo struct {
	symbol   string
	decimals uint8
	supply   *uint256.Int
	minters  set.Set[common.Address]
}

var _ Ledger = (*MemLedger)(nil)

// MemLedger is an in-memory Ledger.
type MemLedger struct {
	mu         sync.RWMutex
	tokens     map[common.Address]*tokenInfo
	balances   map[common.Address]map[common.Address]*uint256.Int
	allowances map[common.Address]map[[2]common.Address]*uint256.Int
	hook       TransferHook
}

// NewMemLedger returns a ledger that knows only the native currency.
func NewMemLedger() *MemLedger {
	l := &MemLedger{
		tokens:     make(map[common.Address]*tokenInfo),
		balances:   make(map[common.Address]map[common.Address]*uint256.Int),
		allowances: make(map[common.Address]map[[2]common.Address]*uint256.Int),
	}
	l.tokens[Native] = &tokenInfo{
		symbol:   "NATIVE",
		decimals: NativeDecimals,
		supply:   new(uint256.Int),
		minters:  set.NewSet[common.Address](0),
	}
	return l
}

// Register adds an asset. minters may mint and burn it.
func (l *MemLedger) Register(token common.Address, symbol string, decimals uint8, minters ...common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tokens[token]; ok {
		return fmt.Errorf("%w: %s", ErrTokenExists, token)
	}
	info := &tokenInfo{
		symbol:   symbol,
		decimals: decimals,
		supply:   new(uint256.Int),
		minters:  set.NewSet[common.Address](len(minters)),
	}
	for _, m := range minters {
		info.minters.Add(m)
	}
	l.tokens[token] = info
	return nil
}

// GrantMinter lets account mint and burn token.
func (l *MemLedger) GrantMinter(token, account common.Address) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if token == Native {
		return ErrNativeAsset
	}
	info, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	info.minters.Add(account)
	return nil
}

// SetTransferHook installs the hook run after each movement.
func (l *MemLedger) SetTransferHook(hook TransferHook) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hook = hook
}

// Fund credits amount out of thin air. It is the genesis allocation used by
// devnets and tests.
func (l *MemLedger) Fund(token, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	info, ok := l.tokens[token]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return l.credit(info, token, to, amount)
}

// Symbol returns the registered symbol.
func (l *MemLedger) Symbol(token common.Address) (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info, ok := l.tokens[token]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return info.symbol, nil
}

func (l *MemLedger) Decimals(token common.Address) (uint8, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info, ok := l.tokens[token]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	return info.decimals, nil
}

// TotalSupply returns the amount in circulation.
func (l *MemLedger) TotalSupply(token common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	info, ok := l.tokens[token]
	if !ok {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(info.supply)
}

func (l *MemLedger) BalanceOf(token, holder common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if bal, ok := l.balances[token][holder]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (l *MemLedger) Allowance(token, owner, spender common.Address) *uint256.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if a, ok := l.allowances[token][[2]common.Address{owner, spender}]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

func (l *MemLedger) Approve(token, owner, spender common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	if l.allowances[token] == nil {
		l.allowances[token] = make(map[[2]common.Address]*uint256.Int)
	}
	l.allowances[token][[2]common.Address{owner, spender}] = new(uint256.Int).Set(amount)
	return nil
}

func (l *MemLedger) Transfer(token, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	if err := l.move(token, from, to, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	hook := l.hook
	l.mu.Unlock()

	l.runHook(hook, token, from, to, amount)
	return nil
}

func (l *MemLedger) TransferFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	if err := l.spendAllowance(token, from, spender, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.move(token, from, to, amount); err != nil {
		// restore the allowance consumed above
		if a, ok := l.allowances[token][[2]common.Address{from, spender}]; ok {
			a.Add(a, amount)
		}
		l.mu.Unlock()
		return err
	}
	hook := l.hook
	l.mu.Unlock()

	l.runHook(hook, token, from, to, amount)
	return nil
}

func (l *MemLedger) Mint(token, minter, to common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	info, err := l.minterInfo(token, minter)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := l.credit(info, token, to, amount); err != nil {
		l.mu.Unlock()
		return err
	}
	hook := l.hook
	l.mu.Unlock()

	l.runHook(hook, token, common.Address{}, to, amount)
	return nil
}

// Burn destroys amount held by from. A burner other than from spends from's
// allowance.
func (l *MemLedger) Burn(token, burner, from common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	info, err := l.minterInfo(token, burner)
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if l.balanceLocked(token, from).Lt(amount) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s has %s, burning %s", ErrInsufficientBalance, from, l.balanceLocked(token, from), amount)
	}
	if burner != from {
		if err := l.spendAllowance(token, from, burner, amount); err != nil {
			l.mu.Unlock()
			return err
		}
	}
	if !amount.IsZero() {
		bal := l.balances[token][from]
		bal.Sub(bal, amount)
		info.supply.Sub(info.supply, amount)
	}
	hook := l.hook
	l.mu.Unlock()

	l.runHook(hook, token, from, common.Address{}, amount)
	return nil
}

func (l *MemLedger) minterInfo(token, caller common.Address) (*tokenInfo, error) {
	if token == Native {
		return nil, ErrNativeAsset
	}
	info, ok := l.tokens[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	if !info.minters.Contains(caller) {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotMinter, caller, token)
	}
	return info, nil
}

func (l *MemLedger) spendAllowance(token, owner, spender common.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	key := [2]common.Address{owner, spender}
	allowance, ok := l.allowances[token][key]
	if !ok || allowance.Lt(amount) {
		have := new(uint256.Int)
		if ok {
			have.Set(allowance)
		}
		return fmt.Errorf("%w: %s allowed %s, need %s", ErrInsufficientAllowance, spender, have, amount)
	}
	allowance.Sub(allowance, amount)
	return nil
}

func (l *MemLedger) move(token, from, to common.Address, amount *uint256.Int) error {
	if _, ok := l.tokens[token]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownToken, token)
	}
	bal := l.balanceLocked(token, from)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s has %s, sending %s", ErrInsufficientBalance, from, bal, amount)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	l.balances[token][from].Sub(l.balances[token][from], amount)
	l.add(token, to, amount)
	return nil
}

func (l *MemLedger) credit(info *tokenInfo, token, to common.Address, amount *uint256.Int) error {
	if _, overflow := new(uint256.Int).AddOverflow(info.supply, amount); overflow {
		return ErrBalanceOverflow
	}
	info.supply.Add(info.supply, amount)
	l.add(token, to, amount)
	return nil
}

func (l *MemLedger) add(token, to common.Address, amount *uint256.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*uint256.Int)
	}
	bal, ok := l.balances[token][to]
	if !ok {
		bal = new(uint256.Int)
		l.balances[token][to] = bal
	}
	bal.Add(bal, amount)
}

func (l *MemLedger) balanceLocked(token, holder common.Address) *uint256.Int {
	if bal, ok := l.balances[token][holder]; ok {
		return bal
	}
	return new(uint256.Int)
}

func (*MemLedger) runHook(hook TransferHook, token, from, to common.Address, amount *uint256.Int) {
	if hook != nil {
		hook(token, from, to, new(uint256.Int).Set(amount))
	}
}
