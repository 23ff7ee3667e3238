// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package router tracks cross-chain messages through their lifecycle. A
// BridgeRouter moves tokens between peer deployments; a SwapRouter settles
// swaps against a settlement asset. Both share the send path, the
// cancellation path and custody handling implemented here.
package router

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/gasservice"
	"github.com/luxfi/xroute/gateway"
	"github.com/luxfi/xroute/oracle"
	"github.com/luxfi/xroute/settlement"
	"github.com/luxfi/xroute/state"
	"github.com/luxfi/xroute/token"
)

var (
	prefixSent     = []byte("sent")
	prefixReceived = []byte("received")
	prefixNonce    = []byte("nonce")
)

// Gateway is the transport a router sends through and claims approvals
// from.
type Gateway interface {
	CallContract(sender common.Address, destinationChain, destinationAddress string, payload []byte) gateway.ContractCall
	ValidateContractCall(caller common.Address, commandID ids.ID, sourceChain, sourceAddress string, payloadHash common.Hash) (bool, error)
	RestoreContractCall(caller common.Address, commandID ids.ID, sourceChain, sourceAddress string, payloadHash common.Hash) error
}

// GasService prices and escrows relay fees.
type GasService interface {
	Address() common.Address
	FeePercentage(usdValue *uint256.Int) (uint64, error)
	PayGas(p *gasservice.Payment) error
}

var (
	_ Gateway    = (*gateway.Gateway)(nil)
	_ GasService = (*gasservice.Service)(nil)
)

// Config holds what both router variants need.
type Config struct {
	ChainID    uint64
	Address    common.Address
	Owner      common.Address
	Ledger     token.Ledger
	Gateway    Gateway
	GasService GasService
	PriceFeed  oracle.PriceFeed
	State      state.KV
}

// core is the lifecycle engine shared by both variants. Operations are
// expected to be serialized by the caller; an operation that starts while
// another is running, including from a token callback, is rejected with
// ErrReentrant.
type core struct {
	log     log.Logger
	chainID uint64
	address common.Address
	ledger  token.Ledger
	gateway Gateway
	gas     GasService
	action  xroute.ActionType
	journal *state.Journal

	mu        sync.Mutex
	owner     common.Address
	paused    bool
	entered   bool
	priceFeed oracle.PriceFeed
	chains    *chains
	lockers   map[common.Address]*token.Locker
	events    []Event
}

func newCore(logger log.Logger, cfg *Config, action xroute.ActionType) *core {
	kv := cfg.State
	if kv == nil {
		kv = state.NewMemory()
	}
	return &core{
		log:       logger,
		chainID:   cfg.ChainID,
		address:   cfg.Address,
		ledger:    cfg.Ledger,
		gateway:   cfg.Gateway,
		gas:       cfg.GasService,
		action:    action,
		journal:   state.NewJournal(kv),
		owner:     cfg.Owner,
		priceFeed: cfg.PriceFeed,
		chains:    newChains(),
		lockers:   make(map[common.Address]*token.Locker),
	}
}

func (c *core) Address() common.Address {
	return c.address
}

func (c *core) ChainID() uint64 {
	return c.chainID
}

func (c *core) Owner() common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner
}

func (c *core) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// onlyOwner runs fn under the router lock if caller is the owner.
func (c *core) onlyOwner(caller common.Address, fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if caller != c.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller)
	}
	return fn()
}

func (c *core) TransferOwnership(caller, owner common.Address) error {
	return c.onlyOwner(caller, func() error {
		c.owner = owner
		return nil
	})
}

func (c *core) Pause(caller common.Address) error {
	return c.onlyOwner(caller, func() error {
		c.paused = true
		return nil
	})
}

func (c *core) Unpause(caller common.Address) error {
	return c.onlyOwner(caller, func() error {
		c.paused = false
		return nil
	})
}

// SetChain registers id under name, replacing any previous mapping of
// either.
func (c *core) SetChain(caller common.Address, id uint64, name string) error {
	return c.onlyOwner(caller, func() error {
		return c.chains.set(id, name)
	})
}

// SetLocker makes l the custodian of its asset. Tokens without a locker
// are burned on send and minted on release.
func (c *core) SetLocker(caller common.Address, l *token.Locker) error {
	return c.onlyOwner(caller, func() error {
		c.lockers[l.Asset().Address()] = l
		return nil
	})
}

func (c *core) SetPriceFeed(caller common.Address, feed oracle.PriceFeed) error {
	return c.onlyOwner(caller, func() error {
		c.priceFeed = feed
		return nil
	})
}

// ChainName returns the name registered for id.
func (c *core) ChainName(id uint64) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains.name(id)
}

// ChainIDOf returns the id registered for name, or xroute.ChainIDNotSet.
func (c *core) ChainIDOf(name string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains.id(name)
}

// Nonce returns the last nonce assigned to sender; zero if none.
func (c *core) Nonce(sender common.Address) (uint64, error) {
	var n uint64
	if _, err := state.GetRecord(c.journal, state.Key(prefixNonce, sender.Bytes()), &n); err != nil {
		return 0, err
	}
	return n, nil
}

// SentMessage returns the source-side record of id. Unknown ids have
// StatusNotSet.
func (c *core) SentMessage(id ids.ID) (*SentMessage, error) {
	sent := &SentMessage{}
	found, err := state.GetRecord(c.journal, state.Key(prefixSent, id[:]), sent)
	if err != nil {
		return nil, err
	}
	if !found {
		return &SentMessage{Status: StatusNotSet}, nil
	}
	return sent, nil
}

// ReceivedMessage returns the destination-side record of id. Unknown ids
// have StatusNotSet.
func (c *core) ReceivedMessage(id ids.ID) (*ReceivedMessage, error) {
	received := &ReceivedMessage{}
	found, err := state.GetRecord(c.journal, state.Key(prefixReceived, id[:]), received)
	if err != nil {
		return nil, err
	}
	if !found {
		return &ReceivedMessage{Status: StatusNotSet}, nil
	}
	return received, nil
}

// Events returns every event emitted so far.
func (c *core) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *core) emit(e Event) {
	c.mu.Lock()
	c.events = append(c.events, e)
	c.mu.Unlock()
}

// enter starts a guarded operation.
func (c *core) enter() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entered {
		return ErrReentrant
	}
	if c.paused {
		return ErrPaused
	}
	c.entered = true
	return nil
}

func (c *core) exit() {
	c.mu.Lock()
	c.entered = false
	c.mu.Unlock()
}

// atomically runs fn and rolls back every journaled write if it fails.
func (c *core) atomically(fn func() error) error {
	snapshot := c.journal.Snapshot()
	if err := fn(); err != nil {
		if rerr := c.journal.RevertTo(snapshot); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	c.journal.Commit()
	return nil
}

func (c *core) locker(tok common.Address) *token.Locker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lockers[tok]
}

// takeCustody moves amount of tok from owner into custody and returns the
// compensation that gives it back.
func (c *core) takeCustody(tok, owner common.Address, amount *uint256.Int) (func() error, error) {
	if l := c.locker(tok); l != nil {
		if err := l.Lock(c.address, owner, amount); err != nil {
			return nil, err
		}
		return func() error { return l.Unlock(c.address, owner, amount) }, nil
	}
	if err := c.ledger.Burn(tok, c.address, owner, amount); err != nil {
		return nil, err
	}
	return func() error { return c.ledger.Mint(tok, c.address, owner, amount) }, nil
}

// releaseCustody pays amount of tok out of custody to receiver.
func (c *core) releaseCustody(tok, receiver common.Address, amount *uint256.Int) error {
	if l := c.locker(tok); l != nil {
		return l.Unlock(c.address, receiver, amount)
	}
	return c.ledger.Mint(tok, c.address, receiver, amount)
}

// restoreCustody puts amount of tok held by the router itself back into
// custody.
func (c *core) restoreCustody(tok common.Address, amount *uint256.Int) error {
	if err := c.ledger.Approve(tok, c.address, c.address, amount); err != nil {
		return err
	}
	_, err := c.takeCustody(tok, c.address, amount)
	return err
}

// usdValue prices amount of tok in USD.
func (c *core) usdValue(tok common.Address, amount *uint256.Int) (*uint256.Int, error) {
	c.mu.Lock()
	feed := c.priceFeed
	c.mu.Unlock()

	price, err := feed.Price(tok)
	if err != nil {
		return nil, err
	}
	decimals, err := c.ledger.Decimals(tok)
	if err != nil {
		return nil, err
	}
	return settlement.ToUSD(amount, price, decimals)
}

// quoteFee splits amount of tok into the relay fee and what remains, and
// returns the USD value of the remainder.
func (c *core) quoteFee(tok common.Address, amount *uint256.Int) (fee, remaining, usd *uint256.Int, err error) {
	gross, err := c.usdValue(tok, amount)
	if err != nil {
		return nil, nil, nil, err
	}
	rate, err := c.gas.FeePercentage(gross)
	if err != nil {
		return nil, nil, nil, err
	}
	fee, err = settlement.ApplyBps(amount, rate)
	if err != nil {
		return nil, nil, nil, err
	}
	remaining = new(uint256.Int).Sub(amount, fee)
	usd, err = c.usdValue(tok, remaining)
	if err != nil {
		return nil, nil, nil, err
	}
	return fee, remaining, usd, nil
}

// outbound is a validated send request.
type outbound struct {
	sender      common.Address
	receiver    common.Address
	destChainID uint64
	destChain   string
	token       common.Address
	amount      *uint256.Int
	fee         *uint256.Int
	usdValue    *uint256.Int
	details     []byte
	value       *uint256.Int

	// bookkeeping runs after the record is written and before custody
	// moves. Its writes must go through the journal.
	bookkeeping func() error
}

// send records o, takes custody, pays the relay fee and hands the message
// to the gateway. Nothing is left behind if any step fails.
func (c *core) send(o *outbound) (*SendResult, error) {
	var result *SendResult
	err := c.atomically(func() error {
		nonce, err := c.nextNonce(o.sender)
		if err != nil {
			return err
		}
		msg := &xroute.Message{
			ActionType:         c.action,
			Nonce:              nonce,
			SourceChainID:      c.chainID,
			DestinationChainID: o.destChainID,
			USDValue:           o.usdValue,
			Sender:             o.sender,
			Receiver:           o.receiver,
			Details:            o.details,
		}
		encoded, err := msg.Encode()
		if err != nil {
			return err
		}
		id := xroute.Keccak256ID(encoded)

		key := state.Key(prefixSent, id[:])
		exists, err := c.journal.Has(key.Bytes())
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, id)
		}
		err = state.PutRecord(c.journal, key, &SentMessage{
			Status:             StatusSent,
			SourceToken:        o.token,
			SourceAmount:       o.amount,
			DestinationChainID: o.destChainID,
			Sender:             o.sender,
		})
		if err != nil {
			return err
		}
		if o.bookkeeping != nil {
			if err := o.bookkeeping(); err != nil {
				return err
			}
		}

		undo, err := c.takeCustody(o.token, o.sender, o.amount)
		if err != nil {
			return err
		}
		err = c.gas.PayGas(&gasservice.Payment{
			Payer:              o.sender,
			Value:              o.value,
			FeeToken:           o.token,
			VariableFee:        o.fee,
			DestinationChain:   o.destChain,
			DestinationAddress: c.address.Hex(),
			PayloadHash:        xroute.Keccak256Hash(encoded),
			RefundAddress:      o.sender,
		})
		if err != nil {
			if uerr := undo(); uerr != nil {
				return errors.Join(err, uerr)
			}
			return err
		}

		c.gateway.CallContract(c.address, o.destChain, c.address.Hex(), encoded)
		result = &SendResult{MessageID: id, Message: msg, Fee: o.fee}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.emit(MessageSent{MessageID: result.MessageID, Message: result.Message, Fee: result.Fee})
	c.log.Info("message sent",
		log.Stringer("messageID", result.MessageID),
		log.Stringer("action", c.action),
		log.Uint64("nonce", result.Message.Nonce),
		log.String("destinationChain", o.destChain),
		log.Stringer("amount", o.amount),
		log.Stringer("fee", o.fee),
	)
	return result, nil
}

func (c *core) nextNonce(sender common.Address) (uint64, error) {
	key := state.Key(prefixNonce, sender.Bytes())
	var n uint64
	if _, err := state.GetRecord(c.journal, key, &n); err != nil {
		return 0, err
	}
	n, err := xroute.AddUint64(n, 1)
	if err != nil {
		return 0, err
	}
	return n, state.PutRecord(c.journal, key, n)
}

// resolveDestination checks the relay payment and returns the name of a
// registered destination chain.
func (c *core) resolveDestination(destChainID uint64) (string, error) {
	if destChainID == c.chainID {
		return "", ErrSameChain
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chains.name(destChainID)
}

// delivery is a planned receive-side transition. All hard checks have
// passed by the time one exists; run applies it.
type delivery struct {
	run func() (*ExecuteResult, error)
}

// cancelError turns a settlement step into a cancellation.
type cancelError struct {
	reason string
}

func (e *cancelError) Error() string {
	return e.reason
}

func cancelWith(format string, args ...interface{}) error {
	return &cancelError{reason: fmt.Sprintf(format, args...)}
}

// routeFunc picks the transition for a decoded message. The variants
// differ in the order of their guards.
type routeFunc func(msg *xroute.Message, id ids.ID, sourceChainID uint64, sourceChain string) (*delivery, error)

// execute validates the request, plans the transition, claims the gateway
// approval and applies the plan.
func (c *core) execute(req *ExecuteRequest, route routeFunc) (*ExecuteResult, error) {
	if err := c.enter(); err != nil {
		return nil, err
	}
	defer c.exit()

	sourceChainID := c.ChainIDOf(req.SourceChain)
	if sourceChainID == xroute.ChainIDNotSet {
		return nil, fmt.Errorf("%w: %q", ErrUnknownChain, req.SourceChain)
	}
	if !common.IsHexAddress(req.SourceAddress) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAddress, req.SourceAddress)
	}
	if common.HexToAddress(req.SourceAddress) != c.address {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotRouter, req.SourceAddress)
	}

	msg, id, err := xroute.Identify(req.Payload)
	if err != nil {
		return nil, err
	}
	d, err := route(msg, id, sourceChainID, req.SourceChain)
	if err != nil {
		return nil, err
	}

	payloadHash := xroute.Keccak256Hash(req.Payload)
	ok, err := c.gateway.ValidateContractCall(c.address, req.CommandID, req.SourceChain, req.SourceAddress, payloadHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: command %s", ErrNotApprovedByGateway, req.CommandID)
	}

	var result *ExecuteResult
	err = c.atomically(func() error {
		var err error
		result, err = d.run()
		return err
	})
	if err != nil {
		// the transition was rolled back, so the approval goes back too
		if rerr := c.gateway.RestoreContractCall(c.address, req.CommandID, req.SourceChain, req.SourceAddress, payloadHash); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		c.log.Warn("execution failed, approval restored",
			log.Stringer("messageID", id),
			log.Stringer("commandID", req.CommandID),
			log.Err(err),
		)
		return nil, err
	}
	return result, nil
}

func (c *core) requireNotReceived(id ids.ID) error {
	exists, err := c.journal.Has(state.Key(prefixReceived, id[:]).Bytes())
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrAlreadyReceived, id)
	}
	return nil
}

// settle wraps a settlement step. A *cancelError from apply rolls its
// writes back and cancels the message instead.
func (c *core) settle(
	msg *xroute.Message,
	id ids.ID,
	sourceChainID uint64,
	sourceChain string,
	apply func() (*MessageCompleted, error),
) *delivery {
	return &delivery{run: func() (*ExecuteResult, error) {
		snapshot := c.journal.Snapshot()
		completed, err := apply()
		var cancel *cancelError
		if errors.As(err, &cancel) {
			if rerr := c.journal.RevertTo(snapshot); rerr != nil {
				return nil, rerr
			}
			return c.cancelDelivery(msg, id, sourceChainID, sourceChain, cancel.reason)
		}
		if err != nil {
			return nil, err
		}

		err = state.PutRecord(c.journal, state.Key(prefixReceived, id[:]), &ReceivedMessage{
			Status:        StatusCompleted,
			SourceChainID: sourceChainID,
		})
		if err != nil {
			return nil, err
		}
		c.emit(*completed)
		c.log.Info("message completed",
			log.Stringer("messageID", id),
			log.Stringer("receiver", completed.Receiver),
			log.Stringer("amount", completed.Amount),
		)
		return &ExecuteResult{MessageID: id, Action: msg.ActionType, Status: StatusCompleted}, nil
	}}
}

// cancellation plans a destination-side cancel.
func (c *core) cancellation(msg *xroute.Message, id ids.ID, sourceChainID uint64, sourceChain string, reason string) *delivery {
	return &delivery{run: func() (*ExecuteResult, error) {
		return c.cancelDelivery(msg, id, sourceChainID, sourceChain, reason)
	}}
}

// cancelDelivery marks id canceled and sends the cancel back to the
// source chain.
func (c *core) cancelDelivery(msg *xroute.Message, id ids.ID, sourceChainID uint64, sourceChain string, reason string) (*ExecuteResult, error) {
	err := state.PutRecord(c.journal, state.Key(prefixReceived, id[:]), &ReceivedMessage{
		Status:        StatusCanceled,
		SourceChainID: sourceChainID,
	})
	if err != nil {
		return nil, err
	}
	encoded, err := msg.WithAction(xroute.ActionCancel).Encode()
	if err != nil {
		return nil, err
	}
	c.gateway.CallContract(c.address, sourceChain, c.address.Hex(), encoded)

	c.emit(MessageCanceled{MessageID: id, Reason: reason, Bounced: true})
	c.log.Warn("message canceled",
		log.Stringer("messageID", id),
		log.String("sourceChain", sourceChain),
		log.String("reason", reason),
	)
	return &ExecuteResult{
		MessageID: id,
		Action:    msg.ActionType,
		Status:    StatusCanceled,
		Reason:    reason,
		Bounced:   true,
	}, nil
}

// cancelAck plans the source-side handling of a returned cancel. onRefund
// runs after the record flips and before custody is returned.
func (c *core) cancelAck(msg *xroute.Message, sourceChainID uint64, onRefund func(*SentMessage) error) (*delivery, error) {
	original := msg.WithAction(c.action)
	id, err := original.ID()
	if err != nil {
		return nil, err
	}
	key := state.Key(prefixSent, id[:])
	sent := &SentMessage{}
	found, err := state.GetRecord(c.journal, key, sent)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotSent, id)
	}
	if sent.DestinationChainID != sourceChainID {
		return nil, fmt.Errorf("%w: sent to %d, cancel from %d", ErrChainMismatch, sent.DestinationChainID, sourceChainID)
	}
	if sent.Status != StatusSent {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotCancelable, id, sent.Status)
	}

	return &delivery{run: func() (*ExecuteResult, error) {
		sent.Status = StatusCanceled
		if err := state.PutRecord(c.journal, key, sent); err != nil {
			return nil, err
		}
		if onRefund != nil {
			if err := onRefund(sent); err != nil {
				return nil, err
			}
		}
		if err := c.releaseCustody(sent.SourceToken, sent.Sender, sent.SourceAmount); err != nil {
			return nil, err
		}

		c.emit(MessageCanceled{MessageID: id, Reason: "canceled by destination"})
		c.emit(MessageRefunded{MessageID: id, Sender: sent.Sender, Token: sent.SourceToken, Amount: sent.SourceAmount})
		c.log.Info("message refunded",
			log.Stringer("messageID", id),
			log.Stringer("sender", sent.Sender),
			log.Stringer("amount", sent.SourceAmount),
		)
		return &ExecuteResult{MessageID: id, Action: xroute.ActionCancel, Status: StatusCanceled}, nil
	}}, nil
}

// checkRelayGas compares the attached value against the declared relay
// gas. exact requires equality, otherwise value must cover it.
func checkRelayGas(value, relayGas *uint256.Int, exact bool) error {
	v := orZero(value)
	g := orZero(relayGas)
	if (exact && !v.Eq(g)) || v.Lt(g) {
		return fmt.Errorf("%w: value %s, relay gas %s", ErrInvalidRelayGas, v, g)
	}
	return nil
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
