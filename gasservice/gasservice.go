// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package gasservice escrows relay fees paid alongside outbound contract
// calls.
package gasservice

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/token"
)

var (
	ErrNotOwner             = errors.New("caller is not the owner")
	ErrNotCollector         = errors.New("caller is not the collector")
	ErrInsufficientPayment  = errors.New("payment does not cover the variable fee")
	ErrInsufficientFixedFee = errors.New("payment below the fixed fee")
	ErrZeroAddress          = errors.New("zero address")
	ErrArrayLengthMismatch  = errors.New("tokens and amounts differ in length")
	ErrNoFeeTiers           = errors.New("fee tiers not configured")
)

// Event is a record emitted by the gas service.
type Event interface {
	EventName() string
}

// GasPaid records fees escrowed for one outbound call.
type GasPaid struct {
	Payer              common.Address
	NativeValue        *uint256.Int
	FeeToken           common.Address
	VariableFee        *uint256.Int
	DestinationChain   string
	DestinationAddress string
	PayloadHash        common.Hash
	RefundAddress      common.Address
}

// Refunded records one refunded fee component.
type Refunded struct {
	Receiver common.Address
	Token    common.Address
	Amount   *uint256.Int
}

// Collected records one withdrawn balance.
type Collected struct {
	Receiver common.Address
	Token    common.Address
	Amount   *uint256.Int
}

func (GasPaid) EventName() string   { return "GasPaid" }
func (Refunded) EventName() string  { return "Refunded" }
func (Collected) EventName() string { return "Collected" }

// Payment describes the fees attached to an outbound call. Value is the
// native currency attached by the payer; VariableFee is denominated in
// FeeToken, which may itself be native.
type Payment struct {
	Payer              common.Address
	Value              *uint256.Int
	FeeToken           common.Address
	VariableFee        *uint256.Int
	DestinationChain   string
	DestinationAddress string
	PayloadHash        common.Hash
	RefundAddress      common.Address
}

// CollectItem is the outcome of one requested withdrawal.
type CollectItem struct {
	Token     common.Address
	Amount    *uint256.Int
	Collected bool
}

// CollectReport lists every requested withdrawal in order.
type CollectReport struct {
	Items []CollectItem
}

// Service holds escrowed fees at its own address on a ledger.
type Service struct {
	log     log.Logger
	ledger  token.Ledger
	address common.Address

	mu        sync.Mutex
	owner     common.Address
	collector common.Address
	fixedFee  *uint256.Int
	feeTiers  *settlement.TierTable
	events    []Event
}

// New returns a gas service at address. The owner starts as collector.
func New(
	logger log.Logger,
	ledger token.Ledger,
	address common.Address,
	owner common.Address,
	fixedFee *uint256.Int,
	feeTiers *settlement.TierTable,
) *Service {
	if fixedFee == nil {
		fixedFee = new(uint256.Int)
	}
	return &Service{
		log:       logger,
		ledger:    ledger,
		address:   address,
		owner:     owner,
		collector: owner,
		fixedFee:  new(uint256.Int).Set(fixedFee),
		feeTiers:  feeTiers,
	}
}

func (s *Service) Address() common.Address {
	return s.address
}

func (s *Service) Collector() common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collector
}

func (s *Service) FixedFee() *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(uint256.Int).Set(s.fixedFee)
}

func (s *Service) SetCollector(caller, collector common.Address) error {
	if collector == (common.Address{}) {
		return ErrZeroAddress
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return ErrNotOwner
	}
	s.collector = collector
	return nil
}

func (s *Service) SetFixedFee(caller common.Address, fee *uint256.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return ErrNotOwner
	}
	s.fixedFee = new(uint256.Int).Set(fee)
	return nil
}

func (s *Service) SetFeeTiers(caller common.Address, tiers *settlement.TierTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if caller != s.owner {
		return ErrNotOwner
	}
	s.feeTiers = tiers
	return nil
}

// FeePercentage returns the fee rate in bps for a transfer worth usdValue.
// The first tier with usdValue < threshold applies.
func (s *Service) FeePercentage(usdValue *uint256.Int) (uint64, error) {
	s.mu.Lock()
	tiers := s.feeTiers
	s.mu.Unlock()

	if tiers == nil {
		return 0, ErrNoFeeTiers
	}
	return tiers.RateBelow(usdValue), nil
}

// VariableFee returns the fee charged on amount for a transfer worth
// usdValue, truncated toward zero.
func (s *Service) VariableFee(amount, usdValue *uint256.Int) (*uint256.Int, error) {
	rate, err := s.FeePercentage(usdValue)
	if err != nil {
		return nil, err
	}
	return settlement.ApplyBps(amount, rate)
}

// PayGas escrows the fixed native fee and the variable fee. When the fee
// token is native both come out of Value and the remainder must still cover
// the fixed fee. Otherwise the variable fee is pulled from the payer, who
// must have approved the service.
func (s *Service) PayGas(p *Payment) error {
	value := p.Value
	if value == nil {
		value = new(uint256.Int)
	}
	variableFee := p.VariableFee
	if variableFee == nil {
		variableFee = new(uint256.Int)
	}
	fixedFee := s.FixedFee()

	remaining := new(uint256.Int).Set(value)
	nativeFee := p.FeeToken == token.Native
	if nativeFee {
		if value.Lt(variableFee) {
			return fmt.Errorf("%w: value %s, fee %s", ErrInsufficientPayment, value, variableFee)
		}
		remaining.Sub(remaining, variableFee)
	}
	if remaining.Lt(fixedFee) {
		return fmt.Errorf("%w: remaining %s, fixed fee %s", ErrInsufficientFixedFee, remaining, fixedFee)
	}

	if err := s.ledger.Transfer(token.Native, p.Payer, s.address, value); err != nil {
		return err
	}
	if !nativeFee {
		err := token.NewAsset(s.ledger, p.FeeToken).TransferFrom(s.address, p.Payer, s.address, variableFee)
		if err != nil {
			if rerr := s.ledger.Transfer(token.Native, s.address, p.Payer, value); rerr != nil {
				return errors.Join(err, rerr)
			}
			return err
		}
	}

	s.emit(GasPaid{
		Payer:              p.Payer,
		NativeValue:        new(uint256.Int).Set(value),
		FeeToken:           p.FeeToken,
		VariableFee:        new(uint256.Int).Set(variableFee),
		DestinationChain:   p.DestinationChain,
		DestinationAddress: p.DestinationAddress,
		PayloadHash:        p.PayloadHash,
		RefundAddress:      p.RefundAddress,
	})
	s.log.Debug("gas paid",
		log.Stringer("payer", p.Payer),
		log.Stringer("value", value),
		log.Stringer("feeToken", p.FeeToken),
		log.Stringer("variableFee", variableFee),
	)
	return nil
}

// Refund returns escrowed fees to receiver. Either component may be zero.
func (s *Service) Refund(caller, receiver, feeToken common.Address, nativeAmount, variableAmount *uint256.Int) error {
	if receiver == (common.Address{}) {
		return ErrZeroAddress
	}
	if caller != s.Collector() {
		return ErrNotCollector
	}
	if err := s.canRefund(feeToken, nativeAmount, variableAmount); err != nil {
		return err
	}

	if nativeAmount != nil && !nativeAmount.IsZero() {
		if err := s.ledger.Transfer(token.Native, s.address, receiver, nativeAmount); err != nil {
			return err
		}
		s.emit(Refunded{Receiver: receiver, Token: token.Native, Amount: new(uint256.Int).Set(nativeAmount)})
	}
	if variableAmount != nil && !variableAmount.IsZero() {
		if err := s.ledger.Transfer(feeToken, s.address, receiver, variableAmount); err != nil {
			return err
		}
		s.emit(Refunded{Receiver: receiver, Token: feeToken, Amount: new(uint256.Int).Set(variableAmount)})
	}
	s.log.Info("fees refunded", log.Stringer("receiver", receiver), log.Stringer("feeToken", feeToken))
	return nil
}

// canRefund checks both refund components are covered before either one
// moves.
func (s *Service) canRefund(feeToken common.Address, nativeAmount, variableAmount *uint256.Int) error {
	native := new(uint256.Int)
	if nativeAmount != nil {
		native.Set(nativeAmount)
	}
	variable := new(uint256.Int)
	if variableAmount != nil {
		variable.Set(variableAmount)
	}
	if feeToken == token.Native {
		var overflow bool
		if native, overflow = native.AddOverflow(native, variable); overflow {
			return settlement.ErrOverflow
		}
		variable.Clear()
	}
	if bal := s.ledger.BalanceOf(token.Native, s.address); bal.Lt(native) {
		return fmt.Errorf("%w: native refund %s, holding %s", token.ErrInsufficientBalance, native, bal)
	}
	if variable.IsZero() {
		return nil
	}
	if bal := s.ledger.BalanceOf(feeToken, s.address); bal.Lt(variable) {
		return fmt.Errorf("%w: refund %s of %s, holding %s", token.ErrInsufficientBalance, variable, feeToken, bal)
	}
	return nil
}

// Collect withdraws balances to receiver. A request exceeding the balance
// held for that token is skipped and reported, not failed.
func (s *Service) Collect(caller, receiver common.Address, tokens []common.Address, amounts []*uint256.Int) (*CollectReport, error) {
	if receiver == (common.Address{}) {
		return nil, ErrZeroAddress
	}
	if len(tokens) != len(amounts) {
		return nil, fmt.Errorf("%w: %d tokens, %d amounts", ErrArrayLengthMismatch, len(tokens), len(amounts))
	}
	if caller != s.Collector() {
		return nil, ErrNotCollector
	}

	report := &CollectReport{Items: make([]CollectItem, 0, len(tokens))}
	for i, tok := range tokens {
		item := CollectItem{Token: tok, Amount: new(uint256.Int)}
		if amounts[i] != nil {
			item.Amount.Set(amounts[i])
		}
		if item.Amount.IsZero() || s.ledger.BalanceOf(tok, s.address).Lt(item.Amount) {
			report.Items = append(report.Items, item)
			continue
		}
		if err := s.ledger.Transfer(tok, s.address, receiver, item.Amount); err != nil {
			return nil, err
		}
		item.Collected = true
		report.Items = append(report.Items, item)
		s.emit(Collected{Receiver: receiver, Token: tok, Amount: new(uint256.Int).Set(item.Amount)})
	}
	return report, nil
}

// Events returns every event emitted so far.
func (s *Service) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Service) emit(e Event) {
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}
