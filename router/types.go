// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package router

import (
	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"

	"github.com/luxfi/xroute"
)

// Status is the lifecycle state of a message on one router.
type Status uint8

const (
	StatusNotSet Status = iota
	StatusSent
	StatusCompleted
	StatusCanceled
)

func (s Status) String() string {
	switch s {
	case StatusNotSet:
		return "NOTSET"
	case StatusSent:
		return "SENT"
	case StatusCompleted:
		return "COMPLETED"
	case StatusCanceled:
		return "CANCELED"
	default:
		return "UNKNOWN"
	}
}

// SentMessage is the source-side record of an outbound message.
// SourceAmount is what went into custody and what a cancel refunds.
type SentMessage struct {
	Status             Status
	SourceToken        common.Address
	SourceAmount       *uint256.Int
	DestinationChainID uint64
	Sender             common.Address
}

// ReceivedMessage is the destination-side record of a delivered message.
type ReceivedMessage struct {
	Status        Status
	SourceChainID uint64
}

// ExecuteRequest is an approved gateway call delivered to a router.
type ExecuteRequest struct {
	CommandID     ids.ID
	SourceChain   string
	SourceAddress string
	Payload       []byte
}

// ExecuteResult describes the transition Execute made. Reason is set when
// the message was canceled; Bounced when a cancel was sent back.
type ExecuteResult struct {
	MessageID ids.ID
	Action    xroute.ActionType
	Status    Status
	Reason    string
	Bounced   bool
}

// SendResult describes an accepted outbound message.
type SendResult struct {
	MessageID ids.ID
	Message   *xroute.Message
	Fee       *uint256.Int
}

// Event is a record emitted by a router.
type Event interface {
	EventName() string
}

type MessageSent struct {
	MessageID ids.ID
	Message   *xroute.Message
	Fee       *uint256.Int
}

type MessageCompleted struct {
	MessageID ids.ID
	Receiver  common.Address
	Token     common.Address
	Amount    *uint256.Int
}

// MessageCanceled is emitted on the destination when delivery is refused
// and on the source when the refund is paid out.
type MessageCanceled struct {
	MessageID ids.ID
	Reason    string
	Bounced   bool
}

type MessageRefunded struct {
	MessageID ids.ID
	Sender    common.Address
	Token     common.Address
	Amount    *uint256.Int
}

func (MessageSent) EventName() string      { return "MessageSent" }
func (MessageCompleted) EventName() string { return "MessageCompleted" }
func (MessageCanceled) EventName() string  { return "MessageCanceled" }
func (MessageRefunded) EventName() string  { return "MessageRefunded" }
