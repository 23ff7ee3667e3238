// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/token"
)

// BridgeRequest moves Details.SourceAmount of Details.SourceToken to
// Receiver on another chain. Value is the native currency attached and
// must equal RelayGas. A zero DestinationAmount is filled with the amount
// left after the fee.
type BridgeRequest struct {
	Sender             common.Address
	Value              *uint256.Int
	RelayGas           *uint256.Int
	DestinationChainID uint64
	Receiver           common.Address
	Details            payload.BridgeDetails
}

// BridgeRouter moves tokens between deployments of itself on different
// chains. Each token has an owner-declared peer on every chain it may be
// bridged to.
type BridgeRouter struct {
	*core

	// peers[token][chainID] is the counterpart of token on chainID.
	// Guarded by core.mu.
	peers map[common.Address]map[uint64]common.Address
}

func NewBridgeRouter(logger log.Logger, cfg *Config) *BridgeRouter {
	return &BridgeRouter{
		core:  newCore(logger, cfg, xroute.ActionBridge),
		peers: make(map[common.Address]map[uint64]common.Address),
	}
}

// SetPeer declares peer as the counterpart of tok on chainID. A zero peer
// removes the mapping.
func (r *BridgeRouter) SetPeer(caller, tok common.Address, chainID uint64, peer common.Address) error {
	if chainID == xroute.ChainIDNotSet {
		return ErrInvalidChainID
	}
	return r.onlyOwner(caller, func() error {
		if peer == (common.Address{}) {
			delete(r.peers[tok], chainID)
			return nil
		}
		if r.peers[tok] == nil {
			r.peers[tok] = make(map[uint64]common.Address)
		}
		r.peers[tok][chainID] = peer
		return nil
	})
}

// Peer returns the counterpart of tok on chainID.
func (r *BridgeRouter) Peer(tok common.Address, chainID uint64) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	peer, ok := r.peers[tok][chainID]
	return peer, ok
}

// Send takes the fee and custody of the remainder and dispatches a bridge
// message.
func (r *BridgeRouter) Send(req *BridgeRequest) (*SendResult, error) {
	if err := r.enter(); err != nil {
		return nil, err
	}
	defer r.exit()

	if err := checkRelayGas(req.Value, req.RelayGas, true); err != nil {
		return nil, err
	}
	destChain, err := r.resolveDestination(req.DestinationChainID)
	if err != nil {
		return nil, err
	}

	d := req.Details
	if d.SourceToken == token.Native {
		return nil, ErrNativeToken
	}
	if d.SourceAmount == nil || d.SourceAmount.IsZero() {
		return nil, ErrZeroAmount
	}
	peer, ok := r.Peer(d.SourceToken, req.DestinationChainID)
	if !ok || peer != d.DestinationToken {
		return nil, fmt.Errorf("%w: %s on chain %d is %s, got %s",
			ErrPeerMismatch, d.SourceToken, req.DestinationChainID, peer, d.DestinationToken)
	}

	fee, remaining, usd, err := r.quoteFee(d.SourceToken, d.SourceAmount)
	if err != nil {
		return nil, err
	}
	if remaining.IsZero() {
		return nil, ErrZeroAmount
	}
	destAmount := new(uint256.Int).Set(orZero(d.DestinationAmount))
	switch {
	case destAmount.IsZero():
		destAmount.Set(remaining)
	case remaining.Lt(destAmount):
		return nil, fmt.Errorf("%w: %s < %s", ErrAmountBelowDestination, remaining, destAmount)
	}

	details := &payload.BridgeDetails{
		SourceToken:       d.SourceToken,
		SourceAmount:      remaining,
		DestinationToken:  d.DestinationToken,
		DestinationAmount: destAmount,
	}
	return r.send(&outbound{
		sender:      req.Sender,
		receiver:    req.Receiver,
		destChainID: req.DestinationChainID,
		destChain:   destChain,
		token:       d.SourceToken,
		amount:      remaining,
		fee:         fee,
		usdValue:    usd,
		details:     details.Bytes(),
		value:       orZero(req.Value),
	})
}

// Execute applies a gateway-approved message: a bridge delivery or the
// cancel of a bridge this router sent.
func (r *BridgeRouter) Execute(req *ExecuteRequest) (*ExecuteResult, error) {
	return r.execute(req, r.route)
}

// route checks the destination chain before the action type.
func (r *BridgeRouter) route(msg *xroute.Message, id ids.ID, sourceChainID uint64, sourceChain string) (*delivery, error) {
	if msg.DestinationChainID != r.chainID {
		if msg.ActionType == xroute.ActionCancel {
			return r.cancelAck(msg, sourceChainID, nil)
		}
		if err := r.requireNotReceived(id); err != nil {
			return nil, err
		}
		return r.cancellation(msg, id, sourceChainID, sourceChain,
			fmt.Sprintf("wrong destination chain %d", msg.DestinationChainID)), nil
	}
	if msg.ActionType != xroute.ActionBridge {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAction, msg.ActionType)
	}
	if err := r.requireNotReceived(id); err != nil {
		return nil, err
	}

	d, err := payload.ParseBridgeDetails(msg.Details)
	if err != nil {
		return r.cancellation(msg, id, sourceChainID, sourceChain, "invalid bridge details"), nil
	}
	peer, ok := r.Peer(d.DestinationToken, sourceChainID)
	if !ok || peer != d.SourceToken {
		return r.cancellation(msg, id, sourceChainID, sourceChain,
			fmt.Sprintf("no peer %s for %s on chain %d", d.SourceToken, d.DestinationToken, sourceChainID)), nil
	}
	if d.DestinationAmount.IsZero() {
		return r.cancellation(msg, id, sourceChainID, sourceChain, "zero destination amount"), nil
	}

	return r.settle(msg, id, sourceChainID, sourceChain, func() (*MessageCompleted, error) {
		if err := r.releaseCustody(d.DestinationToken, msg.Receiver, d.DestinationAmount); err != nil {
			return nil, err
		}
		return &MessageCompleted{
			MessageID: id,
			Receiver:  msg.Receiver,
			Token:     d.DestinationToken,
			Amount:    d.DestinationAmount,
		}, nil
	}), nil
}
