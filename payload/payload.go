// Copyright (C) 2019-2025, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package payload

import (
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/rlp"
	"github.com/luxfi/ids"
)

// Gateway command names
const (
	// CommandApproveContractCall authorizes one contract call on the
	// destination ledger.
	CommandApproveContractCall = "approveContractCall"

	// CommandTransferOperatorship rotates the operator set.
	CommandTransferOperatorship = "transferOperatorship"
)

var (
	// ErrInvalidPayload is returned when a payload is invalid
	ErrInvalidPayload = errors.New("invalid payload")

	ErrArrayLengthMismatch = errors.New("command arrays differ in length")
	ErrEmptyOperators      = errors.New("empty operator set")
	ErrWeightsMismatch     = errors.New("operators and weights differ in length")
)

// Payload is an interface for gateway payloads
type Payload interface {
	// Bytes returns the byte representation of the payload
	Bytes() []byte

	// Verify verifies the payload
	Verify() error
}

var (
	_ Payload = (*BatchData)(nil)
	_ Payload = (*ApproveContractCallParams)(nil)
	_ Payload = (*TransferOperatorshipParams)(nil)
	_ Payload = (*OperatorProof)(nil)
	_ Payload = (*BLSProof)(nil)
)

// BatchData is the signed body of a command batch. The three command
// slices are parallel.
type BatchData struct {
	ChainID    uint64
	CommandIDs []ids.ID
	Commands   []string
	Params     [][]byte
}

// NewBatchData creates a new batch body
func NewBatchData(chainID uint64, commandIDs []ids.ID, commands []string, params [][]byte) (*BatchData, error) {
	b := &BatchData{
		ChainID:    chainID,
		CommandIDs: commandIDs,
		Commands:   commands,
		Params:     params,
	}
	if err := b.Verify(); err != nil {
		return nil, err
	}
	return b, nil
}

// Verify checks the parallel arrays line up
func (b *BatchData) Verify() error {
	if len(b.CommandIDs) != len(b.Commands) || len(b.CommandIDs) != len(b.Params) {
		return fmt.Errorf("%w: %d ids, %d commands, %d params",
			ErrArrayLengthMismatch, len(b.CommandIDs), len(b.Commands), len(b.Params))
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (b *BatchData) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(b)
	return bytes
}

// ParseBatchData decodes a batch body. Array lengths are checked by the
// caller so the mismatch can be reported distinctly.
func ParseBatchData(bytes []byte) (*BatchData, error) {
	b := &BatchData{}
	if err := rlp.DecodeBytes(bytes, b); err != nil {
		return nil, fmt.Errorf("%w: batch data: %w", ErrInvalidPayload, err)
	}
	return b, nil
}

// ApproveContractCallParams are the parameters of an approveContractCall
// command.
type ApproveContractCallParams struct {
	SourceChain      string
	SourceAddress    string
	ContractAddress  common.Address
	PayloadHash      common.Hash
	SourceTxHash     common.Hash
	SourceEventIndex uint64
}

// Verify verifies the approval parameters
func (p *ApproveContractCallParams) Verify() error {
	if p.SourceChain == "" {
		return fmt.Errorf("%w: empty source chain", ErrInvalidPayload)
	}
	if p.SourceAddress == "" {
		return fmt.Errorf("%w: empty source address", ErrInvalidPayload)
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (p *ApproveContractCallParams) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(p)
	return bytes
}

// ParseApproveContractCallParams decodes and verifies approval parameters.
func ParseApproveContractCallParams(bytes []byte) (*ApproveContractCallParams, error) {
	p := &ApproveContractCallParams{}
	if err := rlp.DecodeBytes(bytes, p); err != nil {
		return nil, fmt.Errorf("%w: approve params: %w", ErrInvalidPayload, err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// TransferOperatorshipParams describe a new weighted operator set.
type TransferOperatorshipParams struct {
	Operators []common.Address
	Weights   []uint64
	Threshold uint64
}

// Verify checks the shape only. Ordering and weight rules belong to the
// authorizer that installs the set.
func (p *TransferOperatorshipParams) Verify() error {
	if len(p.Operators) == 0 {
		return ErrEmptyOperators
	}
	if len(p.Operators) != len(p.Weights) {
		return fmt.Errorf("%w: %d operators, %d weights", ErrWeightsMismatch, len(p.Operators), len(p.Weights))
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (p *TransferOperatorshipParams) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(p)
	return bytes
}

// ParseTransferOperatorshipParams decodes and verifies a new operator set.
func ParseTransferOperatorshipParams(bytes []byte) (*TransferOperatorshipParams, error) {
	p := &TransferOperatorshipParams{}
	if err := rlp.DecodeBytes(bytes, p); err != nil {
		return nil, fmt.Errorf("%w: operatorship params: %w", ErrInvalidPayload, err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// OperatorProof is a weighted multisig proof. Signatures are 65 byte
// recoverable ECDSA signatures ordered like the operators that produced them.
type OperatorProof struct {
	Operators  []common.Address
	Weights    []uint64
	Threshold  uint64
	Signatures [][]byte
}

// Verify verifies the proof shape
func (p *OperatorProof) Verify() error {
	if len(p.Operators) == 0 {
		return ErrEmptyOperators
	}
	if len(p.Operators) != len(p.Weights) {
		return fmt.Errorf("%w: %d operators, %d weights", ErrWeightsMismatch, len(p.Operators), len(p.Weights))
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (p *OperatorProof) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(p)
	return bytes
}

// ParseOperatorProof decodes an operator proof
func ParseOperatorProof(bytes []byte) (*OperatorProof, error) {
	p := &OperatorProof{}
	if err := rlp.DecodeBytes(bytes, p); err != nil {
		return nil, fmt.Errorf("%w: operator proof: %w", ErrInvalidPayload, err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}

// BLSProof is an aggregate BLS signature over the signing hash together
// with the bit set of canonical validator indices that signed.
type BLSProof struct {
	Signers   []byte
	Signature []byte
}

// Verify verifies the proof shape
func (p *BLSProof) Verify() error {
	if len(p.Signers) == 0 {
		return fmt.Errorf("%w: no signers", ErrInvalidPayload)
	}
	if len(p.Signature) == 0 {
		return fmt.Errorf("%w: empty signature", ErrInvalidPayload)
	}
	return nil
}

// Bytes returns the byte representation of the payload
func (p *BLSProof) Bytes() []byte {
	bytes, _ := rlp.EncodeToBytes(p)
	return bytes
}

// ParseBLSProof decodes a BLS proof
func ParseBLSProof(bytes []byte) (*BLSProof, error) {
	p := &BLSProof{}
	if err := rlp.DecodeBytes(bytes, p); err != nil {
		return nil, fmt.Errorf("%w: bls proof: %w", ErrInvalidPayload, err)
	}
	if err := p.Verify(); err != nil {
		return nil, err
	}
	return p, nil
}
