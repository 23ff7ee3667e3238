// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package token

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/math/set"
)

var (
	ErrNotOperator      = errors.New("caller is not a locker operator")
	ErrInsufficientLock = errors.New("unlock exceeds locked amount")
)

// Locker is a custody account for one asset. Operators (routers) lock
// tokens pulled from users and unlock them to receivers.
type Locker struct {
	mu        sync.Mutex
	address   common.Address
	asset     Asset
	operators set.Set[common.Address]
	locked    *uint256.Int
}

// NewLocker returns a locker holding asset at address.
func NewLocker(address common.Address, asset Asset, operators ...common.Address) *Locker {
	l := &Locker{
		address:   address,
		asset:     asset,
		operators: set.NewSet[common.Address](len(operators)),
		locked:    new(uint256.Int),
	}
	for _, op := range operators {
		l.operators.Add(op)
	}
	return l
}

func (l *Locker) Address() common.Address {
	return l.address
}

func (l *Locker) Asset() Asset {
	return l.asset
}

// AddOperator authorizes operator to lock and unlock.
func (l *Locker) AddOperator(operator common.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.operators.Add(operator)
}

// Locked returns the amount currently in custody through this locker.
func (l *Locker) Locked() *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.locked)
}

// Lock pulls amount from owner into custody using the caller's allowance.
func (l *Locker) Lock(caller, owner common.Address, amount *uint256.Int) error {
	if !l.isOperator(caller) {
		return fmt.Errorf("%w: %s", ErrNotOperator, caller)
	}
	if err := l.asset.TransferFrom(caller, owner, l.address, amount); err != nil {
		return err
	}

	l.mu.Lock()
	l.locked.Add(l.locked, amount)
	l.mu.Unlock()
	return nil
}

// Unlock releases amount from custody to receiver. The locked total is
// reduced before the transfer runs.
func (l *Locker) Unlock(caller, receiver common.Address, amount *uint256.Int) error {
	l.mu.Lock()
	if !l.operators.Contains(caller) {
		l.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotOperator, caller)
	}
	if l.locked.Lt(amount) {
		l.mu.Unlock()
		return fmt.Errorf("%w: locked %s, unlocking %s", ErrInsufficientLock, l.locked, amount)
	}
	l.locked.Sub(l.locked, amount)
	l.mu.Unlock()

	if err := l.asset.Transfer(l.address, receiver, amount); err != nil {
		l.mu.Lock()
		l.locked.Add(l.locked, amount)
		l.mu.Unlock()
		return err
	}
	return nil
}

func (l *Locker) isOperator(caller common.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.operators.Contains(caller)
}
