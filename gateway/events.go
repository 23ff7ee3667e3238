// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"github.com/luxfi/geth/common"
	"github.com/luxfi/ids"
)

// Event is a record emitted by the gateway.
type Event interface {
	EventName() string
}

// ContractCall is emitted by CallContract and read by relayers.
type ContractCall struct {
	Sender             common.Address
	DestinationChain   string
	DestinationAddress string
	PayloadHash        common.Hash
	Payload            []byte
	SourceTxHash       common.Hash
	Index              uint64
}

// ContractCallApproved is emitted when a batch approves a call.
type ContractCallApproved struct {
	CommandID        ids.ID
	SourceChain      string
	SourceAddress    string
	ContractAddress  common.Address
	PayloadHash      common.Hash
	SourceTxHash     common.Hash
	SourceEventIndex uint64
}

// ContractCallConsumed is emitted when a destination contract claims its
// approval.
type ContractCallConsumed struct {
	CommandID       ids.ID
	ContractAddress common.Address
}

// ContractCallRestored is emitted when a claimed approval is handed back
// after the claimant failed to apply it.
type ContractCallRestored struct {
	CommandID       ids.ID
	ContractAddress common.Address
}

// Executed is emitted for every command that ran successfully.
type Executed struct {
	CommandID ids.ID
}

// OperatorshipTransferred is emitted when a batch rotates the signer set.
type OperatorshipTransferred struct {
	Params []byte
}

func (ContractCall) EventName() string            { return "ContractCall" }
func (ContractCallApproved) EventName() string    { return "ContractCallApproved" }
func (ContractCallConsumed) EventName() string    { return "ContractCallConsumed" }
func (ContractCallRestored) EventName() string    { return "ContractCallRestored" }
func (Executed) EventName() string                { return "Executed" }
func (OperatorshipTransferred) EventName() string { return "OperatorshipTransferred" }
