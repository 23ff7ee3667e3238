// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import "errors"

var (
	ErrNotOwner               = errors.New("caller is not the owner")
	ErrPaused                 = errors.New("router is paused")
	ErrReentrant              = errors.New("reentrant call")
	ErrInvalidChainID         = errors.New("chain id 0 is reserved")
	ErrInvalidChainName       = errors.New("empty chain name")
	ErrUnknownChain           = errors.New("chain not registered")
	ErrSameChain              = errors.New("destination is this chain")
	ErrInvalidRelayGas        = errors.New("attached value does not match relay gas")
	ErrNativeToken            = errors.New("native currency cannot be routed")
	ErrZeroAmount             = errors.New("zero amount")
	ErrPeerMismatch           = errors.New("token peer mismatch")
	ErrUnsupportedToken       = errors.New("token not supported")
	ErrAmountBelowDestination = errors.New("amount after fee below destination amount")
	ErrDuplicateMessage       = errors.New("message already sent")
	ErrMalformedAddress       = errors.New("malformed address string")
	ErrSourceNotRouter        = errors.New("source address is not this router")
	ErrNotApprovedByGateway   = errors.New("call not approved by gateway")
	ErrAlreadyReceived        = errors.New("message already received")
	ErrMessageNotSent         = errors.New("message not sent from this router")
	ErrChainMismatch          = errors.New("cancel arrived from a chain the message was not sent to")
	ErrNotCancelable          = errors.New("message is not in sent state")
	ErrUnsupportedAction      = errors.New("action not handled by this router")
	ErrCircuitBreaker         = errors.New("settlement asset outflow exceeds debt threshold")
	ErrNoPool                 = errors.New("pool not configured")
	ErrNoAggregator           = errors.New("aggregator not configured")
	ErrNoTiers                = errors.New("subsidy tiers not configured")
)
