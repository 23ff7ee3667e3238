// Copyright (C) 2019-2025, Lux Industries Inc All rights reserved.
// See the file LICENSE for licensing terms.

// Package config describes a devnet: its chains, tokens, pools, operator
// set and the fee and subsidy schedules every router shares.
package config

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/crypto/bls"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/luxfi/math/set"

	"github.com/luxfi/xroute/settlement"
)

const (
	defaultLogLevel       = "info"
	defaultPollIntervalMS = 500
	defaultRetryTimeoutMS = 10_000
	defaultMaxBatchSize   = 32
	defaultTVLPercentage  = 5_000
	defaultAuthorizer     = AuthorizerOperators

	CustodyLock = "lock"
	CustodyBurn = "burn"

	AuthorizerOperators = "operators"
	AuthorizerBLS       = "bls"
)

var (
	ErrNoChains          = errors.New("no chains configured")
	ErrDuplicateChain    = errors.New("duplicate chain")
	ErrDuplicateToken    = errors.New("duplicate token")
	ErrUnknownChain      = errors.New("unknown chain")
	ErrUnknownToken      = errors.New("unknown token")
	ErrInvalidAddress    = errors.New("invalid address")
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInvalidCustody    = errors.New("custody must be lock or burn")
	ErrInvalidOperators  = errors.New("invalid operator set")
	ErrInvalidAuthorizer = errors.New("authorizer must be operators or bls")
	ErrInvalidValidators = errors.New("invalid validator set")
)

type Config struct {
	LogLevel       string          `mapstructure:"log-level" json:"log-level"`
	StateDir       string          `mapstructure:"state-dir" json:"state-dir"`
	PollIntervalMS uint64          `mapstructure:"poll-interval-ms" json:"poll-interval-ms"`
	RetryTimeoutMS uint64          `mapstructure:"retry-timeout-ms" json:"retry-timeout-ms"`
	MaxBatchSize   int             `mapstructure:"max-batch-size" json:"max-batch-size"`
	BridgeRouter   string          `mapstructure:"bridge-router" json:"bridge-router"`
	SwapRouter     string          `mapstructure:"swap-router" json:"swap-router"`
	Authorizer     string          `mapstructure:"authorizer" json:"authorizer"`
	Operators      OperatorConfig  `mapstructure:"operators" json:"operators"`
	Validators     ValidatorConfig `mapstructure:"validators" json:"validators"`
	Chains         []ChainConfig   `mapstructure:"chains" json:"chains"`
	Tokens         []TokenConfig   `mapstructure:"tokens" json:"tokens"`
	Pools          []PoolConfig    `mapstructure:"pools" json:"pools"`
	Accounts       []AccountConfig `mapstructure:"accounts" json:"accounts"`
	FeeTiers       []TierConfig    `mapstructure:"fee-tiers" json:"fee-tiers"`
	SubsidyTiers   []TierConfig    `mapstructure:"subsidy-tiers" json:"subsidy-tiers"`
	USDMaxSubsidy  string          `mapstructure:"usd-max-subsidy" json:"usd-max-subsidy"`
	TVLPercentage  uint64          `mapstructure:"tvl-percentage" json:"tvl-percentage"`
	DebtThreshold  string          `mapstructure:"debt-threshold" json:"debt-threshold"`
}

// OperatorConfig is the operator set signing command batches on every
// chain. Keys are hex encoded secp256k1 private keys.
type OperatorConfig struct {
	PrivateKeys []string `mapstructure:"private-keys" json:"private-keys"`
	Weights     []uint64 `mapstructure:"weights" json:"weights"`
	Threshold   uint64   `mapstructure:"threshold" json:"threshold"`
}

// ValidatorConfig is the BLS validator set used when the authorizer is
// bls. Seeds are hex encoded, at least 32 bytes each, and derive the
// secret keys. A batch is accepted once signers hold QuorumNum/QuorumDen
// of the total weight.
type ValidatorConfig struct {
	Seeds     []string `mapstructure:"seeds" json:"seeds"`
	Weights   []uint64 `mapstructure:"weights" json:"weights"`
	QuorumNum uint64   `mapstructure:"quorum-num" json:"quorum-num"`
	QuorumDen uint64   `mapstructure:"quorum-den" json:"quorum-den"`
}

// ChainConfig is one ledger. Routers are deployed at the same address on
// every chain; a swap router only where SettlementToken is set.
type ChainConfig struct {
	Name            string `mapstructure:"name" json:"name"`
	ChainID         uint64 `mapstructure:"chain-id" json:"chain-id"`
	GasService      string `mapstructure:"gas-service" json:"gas-service"`
	Aggregator      string `mapstructure:"aggregator" json:"aggregator"`
	SettlementToken string `mapstructure:"settlement-token" json:"settlement-token"`
}

// TokenConfig is an asset deployed on one or more chains. Addresses maps
// chain names to the token's address there. Price is USD with six
// decimals.
//
// With lock custody the asset is locked on its home chain and minted
// everywhere else. With burn custody routers mint and burn it on every
// chain.
type TokenConfig struct {
	Symbol    string            `mapstructure:"symbol" json:"symbol"`
	Decimals  uint8             `mapstructure:"decimals" json:"decimals"`
	Price     string            `mapstructure:"price" json:"price"`
	Custody   string            `mapstructure:"custody" json:"custody"`
	Home      string            `mapstructure:"home" json:"home"`
	Addresses map[string]string `mapstructure:"addresses" json:"addresses"`
}

// Locks reports whether the token is held in a locker on chain.
func (t *TokenConfig) Locks(chain string) bool {
	return t.Custody == CustodyLock && t.Home == chain
}

type PoolConfig struct {
	Chain    string `mapstructure:"chain" json:"chain"`
	Address  string `mapstructure:"address" json:"address"`
	TokenA   string `mapstructure:"token-a" json:"token-a"`
	TokenB   string `mapstructure:"token-b" json:"token-b"`
	ReserveA string `mapstructure:"reserve-a" json:"reserve-a"`
	ReserveB string `mapstructure:"reserve-b" json:"reserve-b"`
	Fee      uint64 `mapstructure:"fee" json:"fee"`
}

// AccountConfig is a genesis balance.
type AccountConfig struct {
	Chain   string `mapstructure:"chain" json:"chain"`
	Address string `mapstructure:"address" json:"address"`
	Token   string `mapstructure:"token" json:"token"`
	Amount  string `mapstructure:"amount" json:"amount"`
}

// TierConfig is one row of a tier table. An empty threshold is only
// meaningful on the last row, which always matches.
type TierConfig struct {
	Threshold string `mapstructure:"threshold" json:"threshold"`
	Rate      uint64 `mapstructure:"rate" json:"rate"`
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	if _, err := log.ToLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	if err := c.validateOperators(); err != nil {
		return err
	}
	switch c.Authorizer {
	case AuthorizerOperators:
	case AuthorizerBLS:
		if err := c.validateValidators(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAuthorizer, c.Authorizer)
	}
	if len(c.Chains) == 0 {
		return ErrNoChains
	}
	if _, err := ParseAddress(c.BridgeRouter); err != nil {
		return fmt.Errorf("bridge router: %w", err)
	}

	names := set.NewSet[string](len(c.Chains))
	chainIDs := set.NewSet[uint64](len(c.Chains))
	for _, chain := range c.Chains {
		if chain.Name == "" || chain.ChainID == 0 {
			return fmt.Errorf("chain %q needs a name and a non-zero id", chain.Name)
		}
		if names.Contains(chain.Name) || chainIDs.Contains(chain.ChainID) {
			return fmt.Errorf("%w: %s (%d)", ErrDuplicateChain, chain.Name, chain.ChainID)
		}
		names.Add(chain.Name)
		chainIDs.Add(chain.ChainID)
		if _, err := ParseAddress(chain.GasService); err != nil {
			return fmt.Errorf("chain %s: %w", chain.Name, err)
		}
		if chain.SettlementToken != "" {
			for _, addr := range []string{c.SwapRouter, chain.Aggregator} {
				if _, err := ParseAddress(addr); err != nil {
					return fmt.Errorf("chain %s: %w", chain.Name, err)
				}
			}
		}
	}

	symbols := set.NewSet[string](len(c.Tokens))
	for _, tok := range c.Tokens {
		if symbols.Contains(tok.Symbol) {
			return fmt.Errorf("%w: %s", ErrDuplicateToken, tok.Symbol)
		}
		symbols.Add(tok.Symbol)
		if tok.Custody != CustodyLock && tok.Custody != CustodyBurn {
			return fmt.Errorf("token %s: %w: %q", tok.Symbol, ErrInvalidCustody, tok.Custody)
		}
		if tok.Custody == CustodyLock {
			if _, ok := tok.Addresses[tok.Home]; !ok {
				return fmt.Errorf("token %s: home chain %q has no deployment", tok.Symbol, tok.Home)
			}
		}
		if _, err := ParseAmount(tok.Price); err != nil {
			return fmt.Errorf("token %s price: %w", tok.Symbol, err)
		}
		for chain, addr := range tok.Addresses {
			if !names.Contains(chain) {
				return fmt.Errorf("token %s: %w: %s", tok.Symbol, ErrUnknownChain, chain)
			}
			if _, err := ParseAddress(addr); err != nil {
				return fmt.Errorf("token %s on %s: %w", tok.Symbol, chain, err)
			}
		}
	}

	for _, chain := range c.Chains {
		if chain.SettlementToken == "" {
			continue
		}
		if _, err := c.TokenAddress(chain.SettlementToken, chain.Name); err != nil {
			return fmt.Errorf("chain %s settlement token: %w", chain.Name, err)
		}
	}
	for _, p := range c.Pools {
		if _, err := ParseAddress(p.Address); err != nil {
			return fmt.Errorf("pool on %s: %w", p.Chain, err)
		}
		for _, sym := range []string{p.TokenA, p.TokenB} {
			if _, err := c.TokenAddress(sym, p.Chain); err != nil {
				return fmt.Errorf("pool on %s: %w", p.Chain, err)
			}
		}
		for _, amount := range []string{p.ReserveA, p.ReserveB} {
			if _, err := ParseAmount(amount); err != nil {
				return fmt.Errorf("pool on %s reserve: %w", p.Chain, err)
			}
		}
		if p.Fee >= settlement.BasisPoints {
			return fmt.Errorf("pool on %s: %w", p.Chain, settlement.ErrInvalidFee)
		}
	}
	for _, acct := range c.Accounts {
		if _, err := ParseAddress(acct.Address); err != nil {
			return fmt.Errorf("account on %s: %w", acct.Chain, err)
		}
		if _, err := c.TokenAddress(acct.Token, acct.Chain); err != nil {
			return fmt.Errorf("account %s: %w", acct.Address, err)
		}
		if _, err := ParseAmount(acct.Amount); err != nil {
			return fmt.Errorf("account %s: %w", acct.Address, err)
		}
	}

	if _, err := c.FeeTierTable(); err != nil {
		return fmt.Errorf("fee tiers: %w", err)
	}
	if len(c.SubsidyTiers) > 0 {
		if _, err := c.SubsidyTierTable(); err != nil {
			return fmt.Errorf("subsidy tiers: %w", err)
		}
	}
	if c.TVLPercentage > settlement.BasisPoints {
		return fmt.Errorf("tvl percentage: %w", settlement.ErrRateOutOfBounds)
	}
	for _, amount := range []string{c.USDMaxSubsidy, c.DebtThreshold} {
		if amount == "" {
			continue
		}
		if _, err := ParseAmount(amount); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateOperators() error {
	op := c.Operators
	if len(op.PrivateKeys) == 0 || len(op.PrivateKeys) != len(op.Weights) {
		return fmt.Errorf("%w: %d keys, %d weights", ErrInvalidOperators, len(op.PrivateKeys), len(op.Weights))
	}
	var total uint64
	for _, w := range op.Weights {
		total += w
	}
	if op.Threshold == 0 || op.Threshold > total {
		return fmt.Errorf("%w: threshold %d of %d", ErrInvalidOperators, op.Threshold, total)
	}
	_, err := c.OperatorKeys()
	return err
}

// OperatorKeys parses the operator private keys.
func (c *Config) OperatorKeys() ([]*ecdsa.PrivateKey, error) {
	keys := make([]*ecdsa.PrivateKey, len(c.Operators.PrivateKeys))
	for i, hexKey := range c.Operators.PrivateKeys {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: key %d: %w", ErrInvalidOperators, i, err)
		}
		keys[i] = key
	}
	return keys, nil
}

func (c *Config) validateValidators() error {
	vc := c.Validators
	if len(vc.Seeds) == 0 || len(vc.Seeds) != len(vc.Weights) {
		return fmt.Errorf("%w: %d seeds, %d weights", ErrInvalidValidators, len(vc.Seeds), len(vc.Weights))
	}
	if vc.QuorumNum == 0 || vc.QuorumNum > vc.QuorumDen {
		return fmt.Errorf("%w: quorum %d/%d", ErrInvalidValidators, vc.QuorumNum, vc.QuorumDen)
	}
	_, err := c.ValidatorKeys()
	return err
}

// ValidatorKeys derives the BLS secret keys of the validator set.
func (c *Config) ValidatorKeys() ([]*bls.SecretKey, error) {
	keys := make([]*bls.SecretKey, len(c.Validators.Seeds))
	for i, hexSeed := range c.Validators.Seeds {
		seed, err := hex.DecodeString(strings.TrimPrefix(hexSeed, "0x"))
		if err != nil {
			return nil, fmt.Errorf("%w: seed %d: %w", ErrInvalidValidators, i, err)
		}
		key, err := bls.SecretKeyFromSeed(seed)
		if err != nil {
			return nil, fmt.Errorf("%w: seed %d: %w", ErrInvalidValidators, i, err)
		}
		keys[i] = key
	}
	return keys, nil
}

func (c *Config) Chain(name string) (*ChainConfig, error) {
	for i := range c.Chains {
		if c.Chains[i].Name == name {
			return &c.Chains[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownChain, name)
}

func (c *Config) Token(symbol string) (*TokenConfig, error) {
	for i := range c.Tokens {
		if c.Tokens[i].Symbol == symbol {
			return &c.Tokens[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
}

// TokenAddress returns the address of symbol on chain.
func (c *Config) TokenAddress(symbol, chain string) (common.Address, error) {
	tok, err := c.Token(symbol)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := tok.Addresses[chain]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s not deployed on %s", ErrUnknownToken, symbol, chain)
	}
	return ParseAddress(addr)
}

func (c *Config) FeeTierTable() (*settlement.TierTable, error) {
	return tierTable(c.FeeTiers)
}

func (c *Config) SubsidyTierTable() (*settlement.TierTable, error) {
	return tierTable(c.SubsidyTiers)
}

func tierTable(rows []TierConfig) (*settlement.TierTable, error) {
	tiers := make([]settlement.Tier, len(rows))
	for i, row := range rows {
		tiers[i].Rate = row.Rate
		if row.Threshold == "" {
			continue
		}
		threshold, err := ParseAmount(row.Threshold)
		if err != nil {
			return nil, fmt.Errorf("tier %d: %w", i, err)
		}
		tiers[i].Threshold = threshold
	}
	return settlement.NewTierTable(tiers)
}

// ParseAmount parses a decimal integer. The empty string is zero.
func ParseAmount(s string) (*uint256.Int, error) {
	if s == "" {
		return new(uint256.Int), nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, s, err)
	}
	return v, nil
}

// ParseAddress parses a hex address.
func ParseAddress(s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}
