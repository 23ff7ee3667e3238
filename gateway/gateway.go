// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package gateway applies signed command batches and hands out one-shot
// contract-call approvals to destination contracts.
package gateway

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/xroute"
	"github.com/luxfi/xroute/auth"
	"github.com/luxfi/xroute/payload"
	"github.com/luxfi/xroute/state"
)

var (
	prefixExecuted = []byte("executed")
	prefixApproved = []byte("approved")
	prefixConsumed = []byte("consumed")
)

var (
	ErrInvalidProof    = errors.New("invalid proof")
	ErrInvalidChainID  = errors.New("invalid chain id")
	ErrInvalidCommands = errors.New("invalid commands")
	ErrNotConsumed     = errors.New("approval not consumed")
)

// CommandStatus is the outcome of one command in a batch.
type CommandStatus uint8

const (
	CommandExecuted CommandStatus = iota
	CommandFailed
	CommandSkippedExecuted
	CommandSkippedUnknown
	CommandSkippedNotAllowed
)

func (s CommandStatus) String() string {
	switch s {
	case CommandExecuted:
		return "executed"
	case CommandFailed:
		return "failed"
	case CommandSkippedExecuted:
		return "skipped: already executed"
	case CommandSkippedUnknown:
		return "skipped: unknown command"
	case CommandSkippedNotAllowed:
		return "skipped: not allowed"
	default:
		return "unknown"
	}
}

// CommandResult reports what happened to one command.
type CommandResult struct {
	CommandID ids.ID
	Command   string
	Status    CommandStatus
	Err       error
}

// BatchReport lists the command results of a batch in order.
type BatchReport struct {
	Results []CommandResult
}

// Count returns how many commands ended with status.
func (r *BatchReport) Count(status CommandStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == status {
			n++
		}
	}
	return n
}

// Gateway is the on-ledger endpoint of the relay for one chain.
type Gateway struct {
	log       log.Logger
	chainID   uint64
	chainName string
	auth      auth.Authorizer

	mu     sync.Mutex
	kv     state.KV
	calls  []ContractCall
	events []Event
}

// New returns a gateway for chainID that keeps its markers in kv.
func New(logger log.Logger, chainID uint64, chainName string, authorizer auth.Authorizer, kv state.KV) *Gateway {
	return &Gateway{
		log:       logger,
		chainID:   chainID,
		chainName: chainName,
		auth:      authorizer,
		kv:        kv,
	}
}

func (g *Gateway) ChainID() uint64 {
	return g.chainID
}

func (g *Gateway) ChainName() string {
	return g.chainName
}

// Execute validates proof over data and applies its commands in order.
// Individual command failures are reported, not returned: only a bad proof
// or a malformed batch aborts the call.
func (g *Gateway) Execute(data, proof []byte) (*BatchReport, error) {
	allowOperatorshipTransfer, err := g.auth.ValidateProof(auth.SigningHash(data), proof)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProof, err)
	}

	batch, err := payload.ParseBatchData(data)
	if err != nil {
		return nil, err
	}
	if batch.ChainID != g.chainID {
		return nil, fmt.Errorf("%w: batch for %d, gateway on %d", ErrInvalidChainID, batch.ChainID, g.chainID)
	}
	if err := batch.Verify(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCommands, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	report := &BatchReport{Results: make([]CommandResult, 0, len(batch.CommandIDs))}
	for i, commandID := range batch.CommandIDs {
		command := batch.Commands[i]
		result := CommandResult{CommandID: commandID, Command: command}

		executed, err := g.isExecuted(commandID)
		if err != nil {
			return nil, err
		}
		if executed {
			g.log.Debug("skipping executed command", log.Stringer("commandID", commandID))
			result.Status = CommandSkippedExecuted
			report.Results = append(report.Results, result)
			continue
		}

		var run func([]byte, ids.ID) error
		switch command {
		case payload.CommandApproveContractCall:
			run = g.approveContractCall
		case payload.CommandTransferOperatorship:
			if !allowOperatorshipTransfer {
				g.log.Debug("operatorship transfer not allowed", log.Stringer("commandID", commandID))
				result.Status = CommandSkippedNotAllowed
				report.Results = append(report.Results, result)
				continue
			}
			allowOperatorshipTransfer = false
			run = g.transferOperatorship
		default:
			g.log.Debug("skipping unknown command",
				log.Stringer("commandID", commandID),
				log.String("command", command),
			)
			result.Status = CommandSkippedUnknown
			report.Results = append(report.Results, result)
			continue
		}

		if err := g.setExecuted(commandID, true); err != nil {
			return nil, err
		}
		if err := run(batch.Params[i], commandID); err != nil {
			if rerr := g.setExecuted(commandID, false); rerr != nil {
				return nil, rerr
			}
			g.log.Warn("command failed",
				log.Stringer("commandID", commandID),
				log.String("command", command),
				log.Err(err),
			)
			result.Status = CommandFailed
			result.Err = err
			report.Results = append(report.Results, result)
			continue
		}

		g.events = append(g.events, Executed{CommandID: commandID})
		result.Status = CommandExecuted
		report.Results = append(report.Results, result)
	}
	return report, nil
}

func (g *Gateway) approveContractCall(params []byte, commandID ids.ID) error {
	p, err := payload.ParseApproveContractCallParams(params)
	if err != nil {
		return err
	}
	key, err := approvalKey(commandID, p.SourceChain, p.SourceAddress, p.ContractAddress, p.PayloadHash)
	if err != nil {
		return err
	}
	if err := g.kv.Put(key.Bytes(), []byte{1}); err != nil {
		return err
	}
	g.events = append(g.events, ContractCallApproved{
		CommandID:        commandID,
		SourceChain:      p.SourceChain,
		SourceAddress:    p.SourceAddress,
		ContractAddress:  p.ContractAddress,
		PayloadHash:      p.PayloadHash,
		SourceTxHash:     p.SourceTxHash,
		SourceEventIndex: p.SourceEventIndex,
	})
	g.log.Info("contract call approved",
		log.Stringer("commandID", commandID),
		log.String("sourceChain", p.SourceChain),
		log.Stringer("contract", p.ContractAddress),
	)
	return nil
}

func (g *Gateway) transferOperatorship(params []byte, _ ids.ID) error {
	if err := g.auth.TransferOperatorship(params); err != nil {
		return err
	}
	g.events = append(g.events, OperatorshipTransferred{Params: append([]byte{}, params...)})
	return nil
}

// ValidateContractCall claims the approval for a call to caller. A true
// result is returned once per approval; the record is cleared before
// returning.
func (g *Gateway) ValidateContractCall(
	caller common.Address,
	commandID ids.ID,
	sourceChain string,
	sourceAddress string,
	payloadHash common.Hash,
) (bool, error) {
	key, err := approvalKey(commandID, sourceChain, sourceAddress, caller, payloadHash)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	ok, err := g.kv.Has(key.Bytes())
	if err != nil || !ok {
		return false, err
	}
	consumed := state.Key(prefixConsumed, key.Bytes()).Bytes()
	if err := g.kv.Put(consumed, []byte{1}); err != nil {
		return false, err
	}
	if err := g.kv.Delete(key.Bytes()); err != nil {
		return false, errors.Join(err, g.kv.Delete(consumed))
	}
	g.events = append(g.events, ContractCallConsumed{CommandID: commandID, ContractAddress: caller})
	return true, nil
}

// RestoreContractCall hands back an approval that caller claimed but could
// not apply. Only a claimed approval can be restored, and only once per
// claim.
func (g *Gateway) RestoreContractCall(
	caller common.Address,
	commandID ids.ID,
	sourceChain string,
	sourceAddress string,
	payloadHash common.Hash,
) error {
	key, err := approvalKey(commandID, sourceChain, sourceAddress, caller, payloadHash)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	consumed := state.Key(prefixConsumed, key.Bytes()).Bytes()
	ok, err := g.kv.Has(consumed)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: command %s", ErrNotConsumed, commandID)
	}
	if err := g.kv.Put(key.Bytes(), []byte{1}); err != nil {
		return err
	}
	if err := g.kv.Delete(consumed); err != nil {
		return errors.Join(err, g.kv.Delete(key.Bytes()))
	}
	g.events = append(g.events, ContractCallRestored{CommandID: commandID, ContractAddress: caller})
	g.log.Warn("contract call approval restored",
		log.Stringer("commandID", commandID),
		log.Stringer("contract", caller),
	)
	return nil
}

// IsContractCallApproved reports whether an unclaimed approval exists.
func (g *Gateway) IsContractCallApproved(
	commandID ids.ID,
	sourceChain string,
	sourceAddress string,
	contractAddress common.Address,
	payloadHash common.Hash,
) (bool, error) {
	key, err := approvalKey(commandID, sourceChain, sourceAddress, contractAddress, payloadHash)
	if err != nil {
		return false, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.kv.Has(key.Bytes())
}

// IsCommandExecuted reports whether commandID ran successfully.
func (g *Gateway) IsCommandExecuted(commandID ids.ID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.isExecuted(commandID)
}

// CallContract records an outbound call for relayers to pick up.
func (g *Gateway) CallContract(sender common.Address, destinationChain, destinationAddress string, payload []byte) ContractCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	index := uint64(len(g.calls))
	var seq [16]byte
	binary.BigEndian.PutUint64(seq[:8], g.chainID)
	binary.BigEndian.PutUint64(seq[8:], index)

	call := ContractCall{
		Sender:             sender,
		DestinationChain:   destinationChain,
		DestinationAddress: destinationAddress,
		PayloadHash:        xroute.Keccak256Hash(payload),
		Payload:            append([]byte{}, payload...),
		SourceTxHash:       xroute.Keccak256Hash(seq[:]),
		Index:              index,
	}
	g.calls = append(g.calls, call)
	g.events = append(g.events, call)

	g.log.Debug("contract call",
		log.Stringer("sender", sender),
		log.String("destinationChain", destinationChain),
		log.Stringer("payloadHash", call.PayloadHash),
	)
	return call
}

// ContractCalls returns the outbound calls with Index >= from.
func (g *Gateway) ContractCalls(from uint64) []ContractCall {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from >= uint64(len(g.calls)) {
		return nil
	}
	out := make([]ContractCall, len(g.calls)-int(from))
	copy(out, g.calls[from:])
	return out
}

// Events returns every event emitted so far.
func (g *Gateway) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]Event, len(g.events))
	copy(out, g.events)
	return out
}

func (g *Gateway) isExecuted(commandID ids.ID) (bool, error) {
	return g.kv.Has(state.Key(prefixExecuted, commandID[:]).Bytes())
}

func (g *Gateway) setExecuted(commandID ids.ID, executed bool) error {
	key := state.Key(prefixExecuted, commandID[:]).Bytes()
	if executed {
		return g.kv.Put(key, []byte{1})
	}
	return g.kv.Delete(key)
}

type approval struct {
	CommandID       ids.ID
	SourceChain     string
	SourceAddress   string
	ContractAddress common.Address
	PayloadHash     common.Hash
}

func approvalKey(
	commandID ids.ID,
	sourceChain string,
	sourceAddress string,
	contractAddress common.Address,
	payloadHash common.Hash,
) (common.Hash, error) {
	b, err := rlp.EncodeToBytes(&approval{
		CommandID:       commandID,
		SourceChain:     sourceChain,
		SourceAddress:   sourceAddress,
		ContractAddress: contractAddress,
		PayloadHash:     payloadHash,
	})
	if err != nil {
		return common.Hash{}, err
	}
	return state.Key(prefixApproved, b), nil
}
